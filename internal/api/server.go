// Package api serves cities, predictions and accuracy over HTTP as JSON.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/lox/pmforecast/internal/cache"
	"github.com/lox/pmforecast/internal/cctv"
	"github.com/lox/pmforecast/internal/ingest"
	"github.com/lox/pmforecast/internal/models"
	"github.com/lox/pmforecast/internal/predict"
	"github.com/lox/pmforecast/internal/store"
)

// AirQualitySource fetches hourly readings live from upstream.
type AirQualitySource interface {
	FetchAirQuality(ctx context.Context, city models.City, pastDays, forecastDays int) ([]models.HourlyRecord, []byte, *ingest.FetchResult, error)
}

type Server struct {
	predictor       *predict.Service
	store           *store.Store
	airQuality      AirQualitySource
	analyzer        *cctv.Analyzer
	cache           cache.Service
	addr            string
	loc             *time.Location
	shutdownTimeout time.Duration
	now             func() time.Time
}

func NewServer(predictor *predict.Service, st *store.Store, addr string, loc *time.Location) *Server {
	return &Server{
		predictor:       predictor,
		store:           st,
		cache:           cache.NewMemory(),
		addr:            addr,
		loc:             loc,
		shutdownTimeout: 5 * time.Second,
		now:             time.Now,
	}
}

// SetAirQualitySource enables the live /api/air-quality endpoint.
func (s *Server) SetAirQualitySource(src AirQualitySource) {
	s.airQuality = src
}

// SetAnalyzer enables /api/cctv-analysis.
func (s *Server) SetAnalyzer(a *cctv.Analyzer) {
	s.analyzer = a
}

func (s *Server) SetCache(c cache.Service) {
	s.cache = c
}

func (s *Server) SetShutdownTimeout(d time.Duration) {
	s.shutdownTimeout = d
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/cities", s.handleCities)
	mux.HandleFunc("GET /api/cities/{slug}", s.handleCity)
	mux.HandleFunc("GET /api/cities/{slug}/prediction", s.handlePrediction)
	mux.HandleFunc("GET /api/cities/{slug}/accuracy", s.handleAccuracy)
	mux.HandleFunc("GET /api/air-quality", s.handleAirQuality)
	mux.HandleFunc("GET /api/cctv-analysis", s.handleCCTVAnalysis)
	mux.HandleFunc("GET /api/ingest-health", s.handleIngestHealth)
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("api: shutdown")
		}
	}()

	log.Info().Str("addr", s.addr).Msg("api: listening")
	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("api: write response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// lookupCity resolves slug or writes a 404.
func (s *Server) lookupCity(w http.ResponseWriter, slug string) (models.City, bool) {
	city, err := s.predictor.City(slug)
	if err != nil {
		writeError(w, http.StatusNotFound, "unknown city")
		return models.City{}, false
	}
	return city, true
}
