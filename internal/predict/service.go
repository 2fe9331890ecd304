// Package predict assembles stored readings into engine inputs, produces
// next-day predictions and keeps a record of how well they did.
package predict

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lox/pmforecast/internal/cache"
	"github.com/lox/pmforecast/internal/forecast"
	"github.com/lox/pmforecast/internal/ingest"
	"github.com/lox/pmforecast/internal/metrics"
	"github.com/lox/pmforecast/internal/models"
	"github.com/lox/pmforecast/internal/store"
)

var (
	ErrUnknownCity = errors.New("unknown city")
	ErrNoForecast  = errors.New("no baseline forecast for tomorrow")
)

const (
	dateLayout      = "2006-01-02"
	accuracyDays    = 30
	visualMaxAge    = 30 * time.Minute
	outcomeLimit    = 30
	accuracyHistory = 30
)

// Prediction is a computed next-day forecast for one city.
type Prediction struct {
	CitySlug   string                  `json:"citySlug"`
	TargetDate string                  `json:"targetDate"`
	ComputedAt time.Time               `json:"computedAt"`
	Result     models.PredictionResult `json:"prediction"`
}

type Config struct {
	PastDays      int
	ForecastDays  int
	PredictionTTL time.Duration
}

func DefaultConfig() Config {
	return Config{
		PastDays:      7,
		ForecastDays:  7,
		PredictionTTL: 30 * time.Minute,
	}
}

type Service struct {
	store  *store.Store
	engine *forecast.Engine
	cache  cache.Service
	cities []models.City
	loc    *time.Location
	cfg    Config
	now    func() time.Time
}

func NewService(st *store.Store, engine *forecast.Engine, c cache.Service, cities []models.City, loc *time.Location, cfg Config) *Service {
	if c == nil {
		c = cache.NewMemory()
	}
	return &Service{
		store:  st,
		engine: engine,
		cache:  c,
		cities: cities,
		loc:    loc,
		cfg:    cfg,
		now:    time.Now,
	}
}

func (s *Service) Cities() []models.City {
	return s.cities
}

// City looks up a configured city by slug.
func (s *Service) City(slug string) (models.City, error) {
	for _, c := range s.cities {
		if c.Slug == slug {
			return c, nil
		}
	}
	return models.City{}, fmt.Errorf("%w: %q", ErrUnknownCity, slug)
}

func (s *Service) today(now time.Time) time.Time {
	local := now.In(s.loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.loc)
}

// CityData loads the stored hourly window around now and splits it into
// history, today and forecast views.
func (s *Service) CityData(ctx context.Context, city models.City) (*ingest.CityData, error) {
	return s.cityData(city, s.now())
}

func (s *Service) cityData(city models.City, now time.Time) (*ingest.CityData, error) {
	day := s.today(now)
	start := day.AddDate(0, 0, -s.cfg.PastDays)
	end := day.AddDate(0, 0, s.cfg.ForecastDays).Add(-time.Minute)

	hourly, err := s.store.GetHourlyRecords(city.Slug, start, end)
	if err != nil {
		return nil, fmt.Errorf("load hourly records: %w", err)
	}
	weather, err := s.store.GetLatestWeather(city.Slug, now)
	if err != nil {
		return nil, fmt.Errorf("load weather: %w", err)
	}
	return ingest.BuildCityData(city, hourly, weather, now, s.loc), nil
}

// Predict returns tomorrow's prediction for city, served from cache while
// it is fresh.
func (s *Service) Predict(ctx context.Context, city models.City) (*Prediction, error) {
	now := s.now()
	key := s.cacheKey(city.Slug, now)

	var cached Prediction
	err := cache.GetJSON(ctx, s.cache, key, &cached)
	if err == nil {
		return &cached, nil
	}
	if !errors.Is(err, cache.ErrMiss) {
		log.Warn().Err(err).Str("city", city.Slug).Msg("predict: cache read")
	}

	p, err := s.compute(city, now)
	if err != nil {
		return nil, err
	}
	if err := cache.SetJSON(ctx, s.cache, key, p, s.cfg.PredictionTTL); err != nil {
		log.Warn().Err(err).Str("city", city.Slug).Msg("predict: cache write")
	}
	return p, nil
}

func (s *Service) cacheKey(slug string, now time.Time) string {
	return "prediction:" + slug + ":" + s.today(now).Format(dateLayout)
}

func (s *Service) compute(city models.City, now time.Time) (*Prediction, error) {
	data, err := s.cityData(city, now)
	if err != nil {
		return nil, err
	}
	visual, err := s.store.GetLatestVisualAnalyses(city.Slug, now.Add(-visualMaxAge))
	if err != nil {
		return nil, fmt.Errorf("load camera analyses: %w", err)
	}

	result, ok := s.engine.Predict(forecast.PredictionInput{
		Today:    data.Today(),
		Tomorrow: data.Tomorrow(),
		History:  data.History,
		Weather:  data.Weather,
		Hourly:   data.TodayHourly,
		Visual:   visual,
	})
	if !ok {
		return nil, fmt.Errorf("%s: %w", city.Slug, ErrNoForecast)
	}

	metrics.PredictionsComputed.WithLabelValues(city.Slug, result.TomorrowGrade.String()).Inc()
	metrics.PredictionTotalFactor.WithLabelValues(city.Slug).Set(result.TotalFactor)

	return &Prediction{
		CitySlug:   city.Slug,
		TargetDate: data.Day.AddDate(0, 0, 1).Format(dateLayout),
		ComputedAt: now,
		Result:     result,
	}, nil
}

// Accuracy backtests the smoother over the stored daily history before
// today. It returns false when there are too few days to score.
func (s *Service) Accuracy(ctx context.Context, city models.City) (models.AccuracyResult, bool, error) {
	return s.accuracy(city, s.now())
}

func (s *Service) accuracy(city models.City, now time.Time) (models.AccuracyResult, bool, error) {
	day := s.today(now)
	history, err := s.store.GetDailyRecords(city.Slug, day.AddDate(0, 0, -accuracyDays), day.AddDate(0, 0, -1))
	if err != nil {
		return models.AccuracyResult{}, false, fmt.Errorf("load daily records: %w", err)
	}
	result, ok := s.engine.Accuracy(history)
	return result, ok, nil
}

// AccuracyHistory returns recorded accuracy snapshots, newest first.
func (s *Service) AccuracyHistory(ctx context.Context, city models.City) ([]store.AccuracySnapshot, error) {
	return s.store.GetAccuracyHistory(city.Slug, accuracyHistory)
}

// RecordDay computes and stores tomorrow's prediction and today's accuracy
// score for city.
func (s *Service) RecordDay(ctx context.Context, city models.City, now time.Time) error {
	var errs []error

	p, err := s.compute(city, now)
	if err != nil {
		errs = append(errs, err)
	} else {
		target, _ := time.ParseInLocation(dateLayout, p.TargetDate, s.loc)
		if err := s.store.UpsertPrediction(city.Slug, target, now, p.Result); err != nil {
			errs = append(errs, fmt.Errorf("store prediction: %w", err))
		}
		if err := cache.SetJSON(ctx, s.cache, s.cacheKey(city.Slug, now), p, s.cfg.PredictionTTL); err != nil {
			log.Warn().Err(err).Str("city", city.Slug).Msg("predict: cache write")
		}
		log.Info().
			Str("city", city.Slug).
			Str("target", p.TargetDate).
			Float64("pm25", p.Result.PredictedPM25).
			Str("grade", p.Result.TomorrowGrade.String()).
			Msg("predict: recorded prediction")
	}

	acc, ok, err := s.accuracy(city, now)
	switch {
	case err != nil:
		errs = append(errs, err)
	case ok:
		if err := s.store.UpsertAccuracy(city.Slug, s.today(now), acc); err != nil {
			errs = append(errs, fmt.Errorf("store accuracy: %w", err))
		}
	default:
		log.Debug().Str("city", city.Slug).Msg("predict: not enough history for accuracy")
	}

	return errors.Join(errs...)
}

// Backtest summarizes how stored predictions compared with what was
// observed, alongside the smoother's own backtest score.
type Backtest struct {
	CitySlug     string                    `json:"citySlug"`
	Smoother     *models.AccuracyResult    `json:"smoother,omitempty"`
	Outcomes     []store.PredictionOutcome `json:"outcomes"`
	PM25MAE      float64                   `json:"pm25Mae"`
	PM10MAE      float64                   `json:"pm10Mae"`
	GradeHitRate float64                   `json:"gradeHitRate"`
}

func (s *Service) Backtest(ctx context.Context, city models.City, limit int) (*Backtest, error) {
	if limit <= 0 {
		limit = outcomeLimit
	}
	outcomes, err := s.store.GetPredictionOutcomes(city.Slug, limit)
	if err != nil {
		return nil, fmt.Errorf("load prediction outcomes: %w", err)
	}

	bt := &Backtest{CitySlug: city.Slug, Outcomes: outcomes}
	if acc, ok, err := s.accuracy(city, s.now()); err != nil {
		return nil, err
	} else if ok {
		bt.Smoother = &acc
	}

	if len(outcomes) == 0 {
		return bt, nil
	}
	var sum25, sum10 float64
	var hits int
	for _, o := range outcomes {
		sum25 += math.Abs(o.PredictedPM25 - o.ActualPM25)
		sum10 += math.Abs(o.PredictedPM10 - o.ActualPM10)
		if o.Grade == o.ActualGrade {
			hits++
		}
	}
	n := float64(len(outcomes))
	bt.PM25MAE = round1(sum25 / n)
	bt.PM10MAE = round1(sum10 / n)
	bt.GradeHitRate = math.Round(float64(hits) / n * 100)
	return bt, nil
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
