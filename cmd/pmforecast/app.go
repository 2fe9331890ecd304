package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"github.com/lox/pmforecast/internal/cache"
	"github.com/lox/pmforecast/internal/cctv"
	"github.com/lox/pmforecast/internal/config"
	"github.com/lox/pmforecast/internal/forecast"
	"github.com/lox/pmforecast/internal/ingest"
	"github.com/lox/pmforecast/internal/predict"
	"github.com/lox/pmforecast/internal/store"
)

// app holds the wired collaborators every command works from.
type app struct {
	cfg       *config.Config
	db        *sql.DB
	loc       *time.Location
	store     *store.Store
	cache     cache.Service
	predictor *predict.Service
	openMeteo *ingest.OpenMeteo
	analyzer  *cctv.Analyzer
	scheduler *ingest.Scheduler
}

func newApp(ctx context.Context, g *Globals) (*app, error) {
	cfg, err := config.Load(g.Config)
	if err != nil {
		return nil, err
	}
	if g.DB != "" {
		cfg.Database.Path = g.DB
	}
	if g.RedisAddr != "" {
		cfg.Redis.Addr = g.RedisAddr
	}
	if g.LogLevel != "" {
		cfg.Log.Level = g.LogLevel
	}
	if g.LogFormat != "" {
		cfg.Log.Format = g.LogFormat
	}
	if err := setupLogging(cfg.Log); err != nil {
		return nil, err
	}

	loc := cfg.Location()

	if dir := filepath.Dir(cfg.Database.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.Exec("PRAGMA journal_mode=WAL")
	db.Exec("PRAGMA busy_timeout=5000")

	st := store.New(db, loc)
	if err := st.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	log.Info().Str("path", cfg.Database.Path).Msg("database migrated")

	cities := cfg.CityList()
	for _, c := range cities {
		if err := st.UpsertCity(c); err != nil {
			db.Close()
			return nil, fmt.Errorf("upsert city %s: %w", c.Slug, err)
		}
	}
	log.Info().Int("cities", len(cities)).Msg("cities seeded")

	holidays, err := cfg.HolidayCalendar()
	if err != nil {
		db.Close()
		return nil, err
	}
	engine := forecast.NewEngine(
		forecast.WithHolidayCalendar(holidays),
		forecast.WithTrendWeight(cfg.Forecast.TrendWeight),
	)

	c := cache.New(ctx, cfg.CacheConfig())
	predictor := predict.NewService(st, engine, c, cities, loc, predict.Config{
		PastDays:      cfg.Ingest.PastDays,
		ForecastDays:  cfg.Ingest.ForecastDays,
		PredictionTTL: cfg.Server.PredictionTTL,
	})

	openMeteo := ingest.NewOpenMeteo(loc).WithBaseURLs(cfg.Ingest.AirQualityURL, cfg.Ingest.WeatherURL)

	var snapshots *cctv.SnapshotCache
	if cfg.CCTV.SnapshotCacheDir != "" {
		snapshots = cctv.NewSnapshotCache(cfg.CCTV.SnapshotCacheDir, cfg.CCTV.SnapshotMaxAge)
	}
	analyzer := cctv.NewAnalyzer(cctv.NewRegistry(cfg.StationList()), cctv.NewFetcher(), snapshots)

	scheduler := ingest.NewScheduler(st, openMeteo, cities, loc, cfg.SchedulerConfig())
	scheduler.SetAnalyzer(analyzer)
	scheduler.SetDailyRecorder(predictor)

	return &app{
		cfg:       cfg,
		db:        db,
		loc:       loc,
		store:     st,
		cache:     c,
		predictor: predictor,
		openMeteo: openMeteo,
		analyzer:  analyzer,
		scheduler: scheduler,
	}, nil
}

func (a *app) Close() {
	if err := a.cache.Close(); err != nil {
		log.Warn().Err(err).Msg("close cache")
	}
	if err := a.db.Close(); err != nil {
		log.Warn().Err(err).Msg("close database")
	}
}

func setupLogging(cfg config.LogConfig) error {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	if cfg.Format == "console" {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
			With().Timestamp().Logger()
	} else {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
	return nil
}
