package predict

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/lox/pmforecast/internal/cache"
	"github.com/lox/pmforecast/internal/forecast"
	"github.com/lox/pmforecast/internal/ingest"
	"github.com/lox/pmforecast/internal/models"
	"github.com/lox/pmforecast/internal/store"

	_ "modernc.org/sqlite"
)

var (
	seoulCity = models.City{Name: "서울", Slug: "seoul", Latitude: 37.5665, Longitude: 126.978, Region: "수도권"}
	busanCity = models.City{Name: "부산", Slug: "busan", Latitude: 35.1796, Longitude: 129.0756, Region: "영남권"}
)

func nf(v float64) sql.NullFloat64 {
	return sql.NullFloat64{Float64: v, Valid: true}
}

func setupService(t *testing.T) (*Service, *store.Store, time.Time) {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Seoul")
	if err != nil {
		t.Fatalf("load timezone: %v", err)
	}

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	st := store.New(db, loc)
	if err := st.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	now := time.Date(2025, 3, 12, 12, 0, 0, 0, loc)
	svc := NewService(st, forecast.NewEngine(), cache.NewMemory(), []models.City{seoulCity, busanCity}, loc, DefaultConfig())
	svc.now = func() time.Time { return now }
	return svc, st, now
}

// seedDays stores 24 flat hourly readings per day starting at first, and
// the daily aggregates the scheduler would derive from them.
func seedDays(t *testing.T, st *store.Store, slug string, first time.Time, pm25 ...float64) {
	t.Helper()
	var records []models.HourlyRecord
	for d, v := range pm25 {
		day := first.AddDate(0, 0, d)
		for h := 0; h < 24; h++ {
			records = append(records, models.HourlyRecord{
				Time: day.Add(time.Duration(h) * time.Hour),
				PM25: nf(v),
				PM10: nf(v * 2),
			})
		}
	}
	if _, err := st.UpsertHourlyRecords(slug, records, nil); err != nil {
		t.Fatalf("UpsertHourlyRecords: %v", err)
	}
	for _, d := range ingest.DailyStats(records, first.Location()) {
		if err := st.UpsertDailyRecord(slug, d); err != nil {
			t.Fatalf("UpsertDailyRecord: %v", err)
		}
	}
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func TestCity(t *testing.T) {
	svc, _, _ := setupService(t)

	tests := []struct {
		slug    string
		wantErr error
	}{
		{"seoul", nil},
		{"busan", nil},
		{"pyongyang", ErrUnknownCity},
	}

	for _, tt := range tests {
		t.Run(tt.slug, func(t *testing.T) {
			c, err := svc.City(tt.slug)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("City(%q) error = %v, want %v", tt.slug, err, tt.wantErr)
			}
			if err == nil && c.Slug != tt.slug {
				t.Errorf("City(%q).Slug = %q", tt.slug, c.Slug)
			}
		})
	}
}

func TestCityData(t *testing.T) {
	svc, st, now := setupService(t)
	today := midnight(now)
	seedDays(t, st, "seoul", today.AddDate(0, 0, -5), 20, 22, 24, 26, 28, 30, 40)

	data, err := svc.CityData(context.Background(), seoulCity)
	if err != nil {
		t.Fatalf("CityData: %v", err)
	}

	if len(data.History) != 5 {
		t.Errorf("len(History) = %d, want 5", len(data.History))
	}
	if today := data.Today(); today == nil || today.PM25Avg != 30 {
		t.Errorf("Today() = %+v, want PM25Avg 30", today)
	}
	if tomorrow := data.Tomorrow(); tomorrow == nil || tomorrow.PM25Avg != 40 {
		t.Errorf("Tomorrow() = %+v, want PM25Avg 40", tomorrow)
	}
	if len(data.TodayHourly) != 24 {
		t.Errorf("len(TodayHourly) = %d, want 24", len(data.TodayHourly))
	}
}

func TestPredict(t *testing.T) {
	svc, st, now := setupService(t)
	ctx := context.Background()
	today := midnight(now)
	seedDays(t, st, "seoul", today.AddDate(0, 0, -5), 20, 22, 24, 26, 28, 30, 40)

	p, err := svc.Predict(ctx, seoulCity)
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if p.TargetDate != "2025-03-13" {
		t.Errorf("TargetDate = %q, want 2025-03-13", p.TargetDate)
	}
	if p.Result.PredictedPM25 <= 0 {
		t.Errorf("PredictedPM25 = %v, want > 0", p.Result.PredictedPM25)
	}
	if p.Result.Message == "" {
		t.Error("Message is empty")
	}
	if p.Result.Visual != nil {
		t.Errorf("Visual = %+v, want nil without camera analyses", p.Result.Visual)
	}

	// A changed baseline is not seen until the cached prediction expires.
	seedDays(t, st, "seoul", today.AddDate(0, 0, 1), 90)
	again, err := svc.Predict(ctx, seoulCity)
	if err != nil {
		t.Fatalf("Predict (cached): %v", err)
	}
	if again.Result.PredictedPM25 != p.Result.PredictedPM25 {
		t.Errorf("cached PredictedPM25 = %v, want %v", again.Result.PredictedPM25, p.Result.PredictedPM25)
	}

	if _, err := svc.Predict(ctx, busanCity); !errors.Is(err, ErrNoForecast) {
		t.Errorf("Predict(busan) error = %v, want ErrNoForecast", err)
	}
}

func TestPredictUsesCameraAnalyses(t *testing.T) {
	svc, st, now := setupService(t)
	today := midnight(now)
	seedDays(t, st, "seoul", today.AddDate(0, 0, -5), 20, 22, 24, 26, 28, 30, 40)

	analyses := []models.VisualAnalysisResult{
		{StationID: "cam-1", StationName: "cam 1", Timestamp: now.Add(-5 * time.Minute), Metrics: models.VisualMetrics{Haziness: 0.9}, VisibilityGrade: models.GradeBad, Confidence: 0.8},
		{StationID: "cam-2", StationName: "cam 2", Timestamp: now.Add(-5 * time.Minute), Metrics: models.VisualMetrics{Haziness: 0.9}, VisibilityGrade: models.GradeBad, Confidence: 0.8},
		{StationID: "old", StationName: "old", Timestamp: now.Add(-2 * time.Hour), Metrics: models.VisualMetrics{Haziness: 0.1}, Confidence: 0.8},
	}
	if err := st.InsertVisualAnalyses("seoul", analyses); err != nil {
		t.Fatalf("InsertVisualAnalyses: %v", err)
	}

	p, err := svc.Predict(context.Background(), seoulCity)
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if p.Result.Visual == nil {
		t.Fatal("Visual = nil, want camera breakdown")
	}
	if p.Result.Visual.CameraCount != 2 {
		t.Errorf("Visual.CameraCount = %d, want 2", p.Result.Visual.CameraCount)
	}
	if p.Result.Visual.CombinedFactor <= 1 {
		t.Errorf("Visual.CombinedFactor = %v, want > 1 for hazy cameras", p.Result.Visual.CombinedFactor)
	}
}

func TestRecordDay(t *testing.T) {
	svc, st, now := setupService(t)
	ctx := context.Background()
	today := midnight(now)
	seedDays(t, st, "seoul", today.AddDate(0, 0, -5), 20, 22, 24, 26, 28, 30, 40)

	if err := svc.RecordDay(ctx, seoulCity, now); err != nil {
		t.Fatalf("RecordDay: %v", err)
	}

	sp, err := st.GetPrediction("seoul", today.AddDate(0, 0, 1))
	if err != nil {
		t.Fatalf("GetPrediction: %v", err)
	}
	if sp == nil {
		t.Fatal("GetPrediction() = nil, want stored prediction")
	}
	if sp.Result.PredictedPM25 <= 0 {
		t.Errorf("stored PredictedPM25 = %v, want > 0", sp.Result.PredictedPM25)
	}

	history, err := svc.AccuracyHistory(ctx, seoulCity)
	if err != nil {
		t.Fatalf("AccuracyHistory: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("len(AccuracyHistory) = %d, want 1", len(history))
	}
	if history[0].SampleDays == 0 {
		t.Error("SampleDays = 0, want scored days")
	}

	err = svc.RecordDay(ctx, busanCity, now)
	if !errors.Is(err, ErrNoForecast) {
		t.Errorf("RecordDay(busan) error = %v, want ErrNoForecast", err)
	}
}

func TestAccuracy(t *testing.T) {
	svc, st, now := setupService(t)
	today := midnight(now)

	tests := []struct {
		name   string
		days   []float64
		wantOK bool
	}{
		{"no history", nil, false},
		{"two days", []float64{20, 22}, false},
		{"steady week", []float64{20, 20, 20, 20, 20, 20, 20}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			slug := "seoul"
			if len(tt.days) > 0 {
				seedDays(t, st, slug, today.AddDate(0, 0, -len(tt.days)), tt.days...)
			}
			acc, ok, err := svc.Accuracy(context.Background(), seoulCity)
			if err != nil {
				t.Fatalf("Accuracy: %v", err)
			}
			if ok != tt.wantOK {
				t.Fatalf("Accuracy() ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && acc.PM25Accuracy != 100 {
				t.Errorf("PM25Accuracy = %v, want 100 for a flat series", acc.PM25Accuracy)
			}
		})
	}
}

func TestBacktest(t *testing.T) {
	svc, st, now := setupService(t)
	ctx := context.Background()
	today := midnight(now)
	seedDays(t, st, "seoul", today.AddDate(0, 0, -2), 20, 28)

	yesterday := today.AddDate(0, 0, -1)
	predicted := models.PredictionResult{
		TomorrowGrade: models.GradeModerate,
		Trend:         models.TrendStable,
		PredictedPM25: 30,
		PredictedPM10: 50,
	}
	if err := st.UpsertPrediction("seoul", yesterday, yesterday.Add(-18*time.Hour), predicted); err != nil {
		t.Fatalf("UpsertPrediction: %v", err)
	}

	bt, err := svc.Backtest(ctx, seoulCity, 0)
	if err != nil {
		t.Fatalf("Backtest: %v", err)
	}
	if len(bt.Outcomes) != 1 {
		t.Fatalf("len(Outcomes) = %d, want 1", len(bt.Outcomes))
	}
	if bt.PM25MAE != 2 {
		t.Errorf("PM25MAE = %v, want 2", bt.PM25MAE)
	}
	if bt.PM10MAE != 6 {
		t.Errorf("PM10MAE = %v, want 6", bt.PM10MAE)
	}
	if bt.GradeHitRate != 100 {
		t.Errorf("GradeHitRate = %v, want 100", bt.GradeHitRate)
	}
	if bt.Smoother != nil {
		t.Errorf("Smoother = %+v, want nil with two days of history", bt.Smoother)
	}

	empty, err := svc.Backtest(ctx, busanCity, 10)
	if err != nil {
		t.Fatalf("Backtest(busan): %v", err)
	}
	if len(empty.Outcomes) != 0 || empty.GradeHitRate != 0 {
		t.Errorf("Backtest(busan) = %+v, want empty", empty)
	}
}
