package cctv

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lox/pmforecast/internal/forecast"
	"github.com/lox/pmforecast/internal/models"
	"github.com/lox/pmforecast/internal/visual"
)

// ErrNoCameras is returned for cities without registered cameras.
var ErrNoCameras = errors.New("city has no cameras")

// CityAnalysis is the set of per-camera analyses for one city together with
// the aggregated visual correction.
type CityAnalysis struct {
	CitySlug  string                        `json:"citySlug"`
	Analyses  []models.VisualAnalysisResult `json:"analyses"`
	Factor    models.VisualBreakdown        `json:"visualFactor"`
	Mock      bool                          `json:"isMock"`
	Timestamp time.Time                     `json:"timestamp"`
}

type snapshotFetcher interface {
	Fetch(ctx context.Context, rawURL string) ([]byte, error)
}

// Analyzer runs the haze analysis over every camera of a city.
type Analyzer struct {
	registry *Registry
	fetcher  snapshotFetcher
	cache    *SnapshotCache
	now      func() time.Time

	mu  sync.Mutex
	rng *rand.Rand
}

// NewAnalyzer builds an analyzer. cache may be nil.
func NewAnalyzer(registry *Registry, fetcher snapshotFetcher, cache *SnapshotCache) *Analyzer {
	return &Analyzer{
		registry: registry,
		fetcher:  fetcher,
		cache:    cache,
		now:      time.Now,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (a *Analyzer) HasSupport(slug string) bool {
	return a.registry.HasSupport(slug)
}

// AnalyzeCity analyses every camera registered for slug. Stations without a
// live feed get a mock analysis derived from pm25; a negative pm25 means the
// current level is unknown. Live stations that cannot be fetched or decoded
// are skipped.
func (a *Analyzer) AnalyzeCity(ctx context.Context, slug string, pm25 float64) (*CityAnalysis, error) {
	stations := a.registry.ForCity(slug)
	if len(stations) == 0 {
		return nil, fmt.Errorf("%s: %w", slug, ErrNoCameras)
	}

	at := a.now()
	results := make([]*models.VisualAnalysisResult, len(stations))
	mock := true

	var wg sync.WaitGroup
	for i, st := range stations {
		if st.Source == SourceMock || st.SnapshotURL == "" {
			r := a.mockAnalysis(st, pm25, at)
			results[i] = &r
			continue
		}

		mock = false
		wg.Add(1)
		go func(i int, st models.CCTVStation) {
			defer wg.Done()
			r, err := a.analyzeStation(ctx, st, at)
			if err != nil {
				log.Warn().Err(err).Str("station", st.ID).Msg("cctv: analysis failed")
				return
			}
			results[i] = &r
		}(i, st)
	}
	wg.Wait()

	analyses := make([]models.VisualAnalysisResult, 0, len(results))
	for _, r := range results {
		if r != nil {
			analyses = append(analyses, *r)
		}
	}

	return &CityAnalysis{
		CitySlug:  slug,
		Analyses:  analyses,
		Factor:    forecast.ComputeVisual(analyses),
		Mock:      mock,
		Timestamp: at,
	}, nil
}

func (a *Analyzer) mockAnalysis(st models.CCTVStation, pm25 float64, at time.Time) models.VisualAnalysisResult {
	a.mu.Lock()
	defer a.mu.Unlock()
	return visual.MockAnalysis(st, pm25, at, a.rng)
}

func (a *Analyzer) analyzeStation(ctx context.Context, st models.CCTVStation, at time.Time) (models.VisualAnalysisResult, error) {
	data, err := a.fetcher.Fetch(ctx, st.SnapshotURL)
	if err != nil {
		cached, storedAt, ok := a.cachedSnapshot(st.ID)
		if !ok {
			return models.VisualAnalysisResult{}, err
		}
		log.Info().Str("station", st.ID).Time("stored_at", storedAt).Msg("cctv: using cached snapshot")
		data, at = cached, storedAt
	} else if a.cache != nil {
		if err := a.cache.Set(st.ID, data); err != nil {
			log.Warn().Err(err).Str("station", st.ID).Msg("cctv: cache snapshot")
		}
	}

	img, _, err := Decode(data)
	if err != nil {
		return models.VisualAnalysisResult{}, err
	}
	return visual.Analyze(st, img, at)
}

func (a *Analyzer) cachedSnapshot(stationID string) ([]byte, time.Time, bool) {
	if a.cache == nil {
		return nil, time.Time{}, false
	}
	return a.cache.Get(stationID)
}
