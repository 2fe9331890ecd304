package ingest

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lox/pmforecast/internal/cctv"
	"github.com/lox/pmforecast/internal/metrics"
	"github.com/lox/pmforecast/internal/models"
	"github.com/lox/pmforecast/internal/store"
)

const SourceOpenMeteo = "open-meteo"

// DailyRecorder persists the day's prediction and accuracy for a city.
type DailyRecorder interface {
	RecordDay(ctx context.Context, city models.City, now time.Time) error
}

type SchedulerConfig struct {
	AirQualityInterval   time.Duration
	CameraInterval       time.Duration
	PastDays             int
	ForecastDays         int
	DailyJobHour         int
	PayloadRetentionDays int
}

func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		AirQualityInterval:   30 * time.Minute,
		CameraInterval:       10 * time.Minute,
		PastDays:             7,
		ForecastDays:         7,
		DailyJobHour:         6,
		PayloadRetentionDays: 30,
	}
}

type Scheduler struct {
	store    *store.Store
	client   *OpenMeteo
	analyzer *cctv.Analyzer
	recorder DailyRecorder
	cities   []models.City
	loc      *time.Location
	cfg      SchedulerConfig
	now      func() time.Time

	mu          sync.Mutex
	lastDailyAt time.Time
}

func NewScheduler(store *store.Store, client *OpenMeteo, cities []models.City, loc *time.Location, cfg SchedulerConfig) *Scheduler {
	return &Scheduler{
		store:  store,
		client: client,
		cities: cities,
		loc:    loc,
		cfg:    cfg,
		now:    time.Now,
	}
}

// SetAnalyzer enables periodic camera analysis.
func (s *Scheduler) SetAnalyzer(a *cctv.Analyzer) {
	s.analyzer = a
}

// SetDailyRecorder enables the daily prediction and accuracy job.
func (s *Scheduler) SetDailyRecorder(r DailyRecorder) {
	s.recorder = r
}

func (s *Scheduler) Run(ctx context.Context) {
	s.ingestAirQuality(ctx)
	s.ingestCameras(ctx)
	s.runDailyJobsIfNeeded(ctx)

	aqTicker := time.NewTicker(s.cfg.AirQualityInterval)
	camTicker := time.NewTicker(s.cfg.CameraInterval)
	dailyTicker := time.NewTicker(15 * time.Minute)
	defer aqTicker.Stop()
	defer camTicker.Stop()
	defer dailyTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("scheduler: shutting down")
			return
		case <-aqTicker.C:
			s.ingestAirQuality(ctx)
		case <-camTicker.C:
			s.ingestCameras(ctx)
		case <-dailyTicker.C:
			s.runDailyJobsIfNeeded(ctx)
		}
	}
}

// IngestOnce runs one air quality and camera pass over every city.
func (s *Scheduler) IngestOnce(ctx context.Context) error {
	s.ingestAirQuality(ctx)
	s.ingestCameras(ctx)
	return ctx.Err()
}

// RunDailyJobs records predictions and accuracy for every city now.
func (s *Scheduler) RunDailyJobs(ctx context.Context) error {
	if s.recorder == nil {
		return errors.New("no daily recorder configured")
	}
	now := s.now()
	var errs []error
	for _, city := range s.cities {
		if err := s.recorder.RecordDay(ctx, city, now); err != nil {
			log.Error().Err(err).Str("city", city.Slug).Msg("daily: record day")
			errs = append(errs, err)
		}
	}

	removed, err := s.store.CleanupOldRawPayloads(s.cfg.PayloadRetentionDays)
	if err != nil {
		log.Error().Err(err).Msg("daily: cleanup raw payloads")
	} else if removed > 0 {
		log.Info().Int64("removed", removed).Msg("daily: cleaned up raw payloads")
	}
	return errors.Join(errs...)
}

func (s *Scheduler) runDailyJobsIfNeeded(ctx context.Context) {
	if s.recorder == nil {
		return
	}
	local := s.now().In(s.loc)
	if local.Hour() < s.cfg.DailyJobHour {
		return
	}
	today := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.loc)

	s.mu.Lock()
	if !s.lastDailyAt.Before(today) {
		s.mu.Unlock()
		return
	}
	s.lastDailyAt = today
	s.mu.Unlock()

	log.Info().Str("date", today.Format("2006-01-02")).Msg("daily: running jobs")
	if err := s.RunDailyJobs(ctx); err != nil {
		log.Warn().Err(err).Msg("daily: completed with errors")
	}
}

func (s *Scheduler) ingestAirQuality(ctx context.Context) {
	log.Info().Int("cities", len(s.cities)).Msg("scheduler: ingesting air quality")

	var wg sync.WaitGroup
	for _, city := range s.cities {
		wg.Add(1)
		go func(city models.City) {
			defer wg.Done()
			s.ingestCityAirQuality(ctx, city)
			s.ingestCityWeather(ctx, city)
		}(city)
	}
	wg.Wait()
}

func (s *Scheduler) startRun(endpoint, slug string) *store.IngestRun {
	run, err := s.store.StartIngestRun(SourceOpenMeteo, endpoint, slug)
	if err != nil {
		log.Warn().Err(err).Str("city", slug).Msg("scheduler: start ingest run")
	}
	return run
}

func (s *Scheduler) finishRun(run *store.IngestRun, result *FetchResult, stored int, err error) {
	if run == nil {
		return
	}
	run.Success = err == nil
	if result != nil {
		run.HTTPStatus = sql.NullInt64{Int64: int64(result.HTTPStatus), Valid: result.HTTPStatus > 0}
		run.ResponseSizeBytes = sql.NullInt64{Int64: int64(result.ResponseSize), Valid: result.ResponseSize > 0}
		run.RecordsParsed = sql.NullInt64{Int64: int64(result.RecordCount), Valid: true}
	}
	if err != nil {
		run.ErrorMessage = sql.NullString{String: err.Error(), Valid: true}
	} else {
		run.RecordsStored = sql.NullInt64{Int64: int64(stored), Valid: true}
	}
	if err := s.store.CompleteIngestRun(run); err != nil {
		log.Warn().Err(err).Int64("run", run.ID).Msg("scheduler: complete ingest run")
	}
}

func (s *Scheduler) storePayload(run *store.IngestRun, endpoint, slug string, raw []byte) {
	if len(raw) == 0 {
		return
	}
	var runID int64
	if run != nil {
		runID = run.ID
	}
	if _, err := s.store.StoreRawPayload(runID, SourceOpenMeteo, endpoint, slug, raw); err != nil {
		log.Warn().Err(err).Str("city", slug).Msg("scheduler: store raw payload")
	}
}

func (s *Scheduler) ingestCityAirQuality(ctx context.Context, city models.City) {
	run := s.startRun(EndpointAirQuality, city.Slug)
	records, raw, result, err := s.client.FetchAirQuality(ctx, city, s.cfg.PastDays, s.cfg.ForecastDays)
	s.storePayload(run, EndpointAirQuality, city.Slug, raw)
	if err != nil {
		log.Error().Err(err).Str("city", city.Slug).Msg("scheduler: fetch air quality")
		s.finishRun(run, result, 0, err)
		return
	}

	stored, err := s.store.UpsertHourlyRecords(city.Slug, records, HourlyQualityFlags(records))
	if err != nil {
		log.Error().Err(err).Str("city", city.Slug).Msg("scheduler: store hourly records")
		s.finishRun(run, result, 0, err)
		return
	}
	metrics.HourlyRecordsIngested.WithLabelValues(city.Slug).Add(float64(stored))

	daily := DailyStats(records, s.loc)
	for _, d := range daily {
		if err := s.store.UpsertDailyRecord(city.Slug, d); err != nil {
			log.Error().Err(err).Str("city", city.Slug).Time("date", d.Date).Msg("scheduler: store daily record")
		}
	}
	s.finishRun(run, result, stored, nil)

	log.Info().Str("city", city.Slug).Int("hours", stored).Int("days", len(daily)).Msg("scheduler: ingested air quality")
}

func (s *Scheduler) ingestCityWeather(ctx context.Context, city models.City) {
	run := s.startRun(EndpointWeather, city.Slug)
	obs, raw, result, err := s.client.FetchWeather(ctx, city, s.now())
	s.storePayload(run, EndpointWeather, city.Slug, raw)
	if err != nil {
		log.Error().Err(err).Str("city", city.Slug).Msg("scheduler: fetch weather")
		s.finishRun(run, result, 0, err)
		return
	}
	if obs == nil {
		log.Warn().Str("city", city.Slug).Msg("scheduler: no current weather hour")
		s.finishRun(run, result, 0, nil)
		return
	}

	flags := ValidateWeather(*obs)
	if len(flags) > 0 {
		log.Warn().Str("city", city.Slug).Strs("flags", flags).Msg("scheduler: weather quality flags")
	}
	if err := s.store.UpsertWeatherObservation(city.Slug, *obs, QualityFlagsToJSON(flags)); err != nil {
		log.Error().Err(err).Str("city", city.Slug).Msg("scheduler: store weather")
		s.finishRun(run, result, 0, err)
		return
	}
	metrics.WeatherObservationsIngested.WithLabelValues(city.Slug).Inc()
	s.finishRun(run, result, 1, nil)
}

func (s *Scheduler) ingestCameras(ctx context.Context) {
	if s.analyzer == nil {
		return
	}
	for _, city := range s.cities {
		if !s.analyzer.HasSupport(city.Slug) {
			continue
		}

		analysis, err := s.analyzer.AnalyzeCity(ctx, city.Slug, s.currentPM25(city.Slug))
		if err != nil {
			log.Error().Err(err).Str("city", city.Slug).Msg("scheduler: analyze cameras")
			continue
		}
		if err := s.store.InsertVisualAnalyses(city.Slug, analysis.Analyses); err != nil {
			log.Error().Err(err).Str("city", city.Slug).Msg("scheduler: store camera analyses")
			continue
		}
		log.Info().
			Str("city", city.Slug).
			Int("cameras", len(analysis.Analyses)).
			Float64("factor", analysis.Factor.CombinedFactor).
			Bool("mock", analysis.Mock).
			Msg("scheduler: analyzed cameras")
	}
}

// currentPM25 returns the latest stored PM2.5 reading, or -1 if unknown.
func (s *Scheduler) currentPM25(slug string) float64 {
	now := s.now()
	hourly, err := s.store.GetHourlyRecords(slug, now.Add(-6*time.Hour), now)
	if err != nil {
		log.Warn().Err(err).Str("city", slug).Msg("scheduler: load current reading")
		return -1
	}
	current, ok := CurrentHour(hourly, now)
	if !ok || !current.PM25.Valid {
		return -1
	}
	return current.PM25.Float64
}
