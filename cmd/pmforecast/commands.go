package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lox/pmforecast/internal/api"
	"github.com/lox/pmforecast/internal/models"
	"github.com/lox/pmforecast/internal/predict"
)

type ServeCmd struct {
	Addr   string `help:"Listen address (overrides config)." env:"PMFORECAST_ADDR"`
	NoPoll bool   `help:"Disable background ingest (server only, for local dev)."`
}

func (c *ServeCmd) Run(g *Globals) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(ctx, g)
	if err != nil {
		return err
	}
	defer a.Close()

	addr := a.cfg.Server.Addr
	if c.Addr != "" {
		addr = c.Addr
	}

	server := api.NewServer(a.predictor, a.store, addr, a.loc)
	server.SetCache(a.cache)
	server.SetAirQualitySource(a.openMeteo)
	server.SetAnalyzer(a.analyzer)
	server.SetShutdownTimeout(a.cfg.Server.ShutdownTimeout)

	if !c.NoPoll {
		go a.scheduler.Run(ctx)
	} else {
		log.Info().Msg("polling disabled (--no-poll)")
	}

	return server.Run(ctx)
}

type IngestCmd struct {
	Daily bool `help:"Also record predictions and accuracy for every city."`
}

func (c *IngestCmd) Run(g *Globals) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(ctx, g)
	if err != nil {
		return err
	}
	defer a.Close()

	log.Info().Msg("running single ingestion")
	if err := a.scheduler.IngestOnce(ctx); err != nil {
		return fmt.Errorf("ingest: %w", err)
	}
	if c.Daily {
		log.Info().Msg("running daily jobs")
		if err := a.scheduler.RunDailyJobs(ctx); err != nil {
			return fmt.Errorf("daily jobs: %w", err)
		}
	}
	log.Info().Msg("done")
	return nil
}

type PredictCmd struct {
	City   string `help:"City slug; all cities when empty."`
	Record bool   `help:"Store the prediction and today's accuracy score."`
	JSON   bool   `help:"Print JSON instead of text."`
}

func (c *PredictCmd) Run(g *Globals) error {
	ctx := context.Background()
	a, err := newApp(ctx, g)
	if err != nil {
		return err
	}
	defer a.Close()

	cities, err := selectCities(a.predictor, c.City)
	if err != nil {
		return err
	}

	var predictions []*predict.Prediction
	for _, city := range cities {
		if c.Record {
			if err := a.predictor.RecordDay(ctx, city, time.Now()); err != nil {
				log.Warn().Err(err).Str("city", city.Slug).Msg("record day")
			}
		}
		p, err := a.predictor.Predict(ctx, city)
		if errors.Is(err, predict.ErrNoForecast) {
			log.Warn().Str("city", city.Slug).Msg("no baseline forecast; run ingest first")
			continue
		}
		if err != nil {
			return err
		}
		predictions = append(predictions, p)
	}

	if c.JSON {
		return writeJSON(predictions)
	}
	for _, p := range predictions {
		r := p.Result
		fmt.Printf("%-8s %s  %-8s PM2.5 %3.0f  PM10 %3.0f  %-9s x%.2f  %s\n",
			p.CitySlug, p.TargetDate, r.TomorrowGrade, r.PredictedPM25, r.PredictedPM10, r.Trend, r.TotalFactor, r.Message)
	}
	return nil
}

type BacktestCmd struct {
	City  string `help:"City slug; all cities when empty."`
	Limit int    `help:"Number of past predictions to compare." default:"30"`
	JSON  bool   `help:"Print JSON instead of text."`
}

func (c *BacktestCmd) Run(g *Globals) error {
	ctx := context.Background()
	a, err := newApp(ctx, g)
	if err != nil {
		return err
	}
	defer a.Close()

	cities, err := selectCities(a.predictor, c.City)
	if err != nil {
		return err
	}

	var results []*predict.Backtest
	for _, city := range cities {
		bt, err := a.predictor.Backtest(ctx, city, c.Limit)
		if err != nil {
			return err
		}
		results = append(results, bt)
	}

	if c.JSON {
		return writeJSON(results)
	}
	for _, bt := range results {
		smoother := "n/a"
		if bt.Smoother != nil {
			smoother = fmt.Sprintf("%.0f%% over %d days", bt.Smoother.OverallAccuracy, bt.Smoother.SampleDays)
		}
		fmt.Printf("%-8s predictions %3d  PM2.5 MAE %5.1f  PM10 MAE %5.1f  grade hits %3.0f%%  smoother %s\n",
			bt.CitySlug, len(bt.Outcomes), bt.PM25MAE, bt.PM10MAE, bt.GradeHitRate, smoother)
	}
	return nil
}

func selectCities(p *predict.Service, slug string) ([]models.City, error) {
	if slug == "" {
		return p.Cities(), nil
	}
	city, err := p.City(slug)
	if err != nil {
		return nil, err
	}
	return []models.City{city}, nil
}

func writeJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
