package forecast

import (
	"math"
	"testing"
	"time"

	"github.com/lox/pmforecast/internal/models"
)

// dailySeries builds consecutive days starting at start, with PM10 at twice PM2.5.
func dailySeries(t *testing.T, start time.Time, pm25 ...float64) []models.DailyRecord {
	t.Helper()
	days := make([]models.DailyRecord, len(pm25))
	for i, v := range pm25 {
		days[i] = NewDailyRecord(models.DailyRecord{
			Date:    start.AddDate(0, 0, i),
			PM25Avg: v,
			PM10Avg: v * 2,
		})
	}
	return days
}

func TestBlendRatio(t *testing.T) {
	start := time.Date(2025, 4, 10, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name         string
		history      []float64
		baseline     float64
		want         float64
		insufficient bool
	}{
		{"too short", []float64{30, 30, 30}, 30, DefaultBlendRatio, true},
		{"two comparisons only", []float64{30, 30, 30, 30}, 30, DefaultBlendRatio, true},
		{"equal errors", []float64{30, 30, 30, 30, 30}, 30, 0.5, false},
		{"smoother better clamps high", []float64{30, 30, 30, 30, 30}, 45, maxBlendRatio, false},
		{"baseline better clamps low", []float64{100, 100, 30, 30, 30}, 30, minBlendRatio, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			baseline := models.DailyRecord{PM25Avg: tt.baseline}
			got := BlendRatio(dailySeries(t, start, tt.history...), baseline, DefaultTrendWeight)
			if math.Abs(got.Ratio-tt.want) > 1e-9 {
				t.Errorf("BlendRatio().Ratio = %v, want %v", got.Ratio, tt.want)
			}
			if got.InsufficientData != tt.insufficient {
				t.Errorf("BlendRatio().InsufficientData = %v, want %v", got.InsufficientData, tt.insufficient)
			}
		})
	}
}

func TestBlendRatioSortsHistory(t *testing.T) {
	start := time.Date(2025, 4, 10, 0, 0, 0, 0, time.UTC)
	days := dailySeries(t, start, 20, 22, 25, 30, 40)
	reversed := []models.DailyRecord{days[4], days[3], days[2], days[1], days[0]}
	baseline := models.DailyRecord{PM25Avg: 32}

	want := BlendRatio(days, baseline, DefaultTrendWeight)
	got := BlendRatio(reversed, baseline, DefaultTrendWeight)
	if got != want {
		t.Errorf("BlendRatio(reversed) = %+v, want %+v", got, want)
	}
	if got.Samples != 3 {
		t.Errorf("Samples = %d, want 3", got.Samples)
	}
	// smoother errors 3, 6, 13; baseline errors 7, 2, 8
	if math.Abs(got.Ratio-0.436) > 0.001 {
		t.Errorf("Ratio = %v, want ~0.436", got.Ratio)
	}
}

func TestBlend(t *testing.T) {
	tests := []struct {
		smoother, baseline, ratio float64
		want                      float64
	}{
		{40, 20, 0.5, 30},
		{40, 20, 0.8, 36},
		{40, 20, 0.3, 26},
		{33, 30, 0.5, 32},
	}

	for _, tt := range tests {
		if got := Blend(tt.smoother, tt.baseline, tt.ratio); got != tt.want {
			t.Errorf("Blend(%v, %v, %v) = %v, want %v", tt.smoother, tt.baseline, tt.ratio, got, tt.want)
		}
	}
}

func TestRecentWindow(t *testing.T) {
	start := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	history := dailySeries(t, start, 1, 2, 3, 4, 5, 6, 7)
	today := models.DailyRecord{Date: start.AddDate(0, 0, 7), PM25Avg: 8}

	got := recentWindow(history, &today)
	if len(got) != 5 || got[0].PM25Avg != 4 || got[4].PM25Avg != 8 {
		t.Errorf("recentWindow(with today) = %v, want days 4..8", pm25s(got))
	}

	got = recentWindow(history, nil)
	if len(got) != 5 || got[0].PM25Avg != 3 || got[4].PM25Avg != 7 {
		t.Errorf("recentWindow(without today) = %v, want days 3..7", pm25s(got))
	}

	got = recentWindow(history[:2], nil)
	if len(got) != 2 {
		t.Errorf("recentWindow(short) len = %d, want 2", len(got))
	}
}

func TestSmoothedPrediction(t *testing.T) {
	start := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)

	recent := dailySeries(t, start, 20, 22, 25, 30, 40)
	if got, ok := SmoothedPrediction(recent, models.PM25, DefaultTrendWeight); !ok || got != 32 {
		t.Errorf("SmoothedPrediction(pm25) = %v, %v, want 32, true", got, ok)
	}
	if got, ok := SmoothedPrediction(recent, models.PM10, DefaultTrendWeight); !ok || got != 64 {
		t.Errorf("SmoothedPrediction(pm10) = %v, %v, want 64, true", got, ok)
	}

	sparse := dailySeries(t, start, 0, 0, 25, 0, 40)
	if _, ok := SmoothedPrediction(sparse, models.PM25, DefaultTrendWeight); ok {
		t.Error("SmoothedPrediction with two positive values should report insufficient data")
	}
}

func pm25s(days []models.DailyRecord) []float64 {
	out := make([]float64, len(days))
	for i, d := range days {
		out[i] = d.PM25Avg
	}
	return out
}
