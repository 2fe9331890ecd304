package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lox/pmforecast/internal/cache"
	"github.com/lox/pmforecast/internal/cctv"
	"github.com/lox/pmforecast/internal/ingest"
	"github.com/lox/pmforecast/internal/predict"
	"github.com/lox/pmforecast/internal/store"
)

const (
	defaultPastDays  = 7
	maxPastDays      = 92
	airQualityTTL    = time.Hour
	cctvMaxAge       = 10 * time.Minute
	ingestErrorLimit = 20
)

func (s *Server) handleCities(w http.ResponseWriter, r *http.Request) {
	cities := s.predictor.Cities()
	summaries := make([]CitySummary, 0, len(cities))
	for _, c := range cities {
		data, err := s.predictor.CityData(r.Context(), c)
		if err != nil {
			log.Error().Err(err).Str("city", c.Slug).Msg("api: load city data")
			writeError(w, http.StatusInternalServerError, "failed to load city data")
			return
		}
		summaries = append(summaries, newCitySummary(data))
	}
	writeJSON(w, http.StatusOK, summaries)
}

func (s *Server) handleCity(w http.ResponseWriter, r *http.Request) {
	city, ok := s.lookupCity(w, r.PathValue("slug"))
	if !ok {
		return
	}
	data, err := s.predictor.CityData(r.Context(), city)
	if err != nil {
		log.Error().Err(err).Str("city", city.Slug).Msg("api: load city data")
		writeError(w, http.StatusInternalServerError, "failed to load city data")
		return
	}
	writeJSON(w, http.StatusOK, newCityDetail(data))
}

func (s *Server) handlePrediction(w http.ResponseWriter, r *http.Request) {
	city, ok := s.lookupCity(w, r.PathValue("slug"))
	if !ok {
		return
	}
	p, err := s.predictor.Predict(r.Context(), city)
	if errors.Is(err, predict.ErrNoForecast) {
		writeError(w, http.StatusNotFound, "no forecast available for tomorrow")
		return
	}
	if err != nil {
		log.Error().Err(err).Str("city", city.Slug).Msg("api: predict")
		writeError(w, http.StatusInternalServerError, "failed to compute prediction")
		return
	}
	w.Header().Set("Cache-Control", "public, max-age=1800")
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleAccuracy(w http.ResponseWriter, r *http.Request) {
	city, ok := s.lookupCity(w, r.PathValue("slug"))
	if !ok {
		return
	}
	view := AccuracyView{CitySlug: city.Slug}

	bt, err := s.predictor.Backtest(r.Context(), city, 0)
	if err != nil {
		log.Error().Err(err).Str("city", city.Slug).Msg("api: backtest")
		writeError(w, http.StatusInternalServerError, "failed to evaluate accuracy")
		return
	}
	view.Current = bt.Smoother
	view.Outcomes = bt.Outcomes

	if view.History, err = s.predictor.AccuracyHistory(r.Context(), city); err != nil {
		log.Error().Err(err).Str("city", city.Slug).Msg("api: accuracy history")
		writeError(w, http.StatusInternalServerError, "failed to load accuracy history")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type airQualityResponse struct {
	City  CityView    `json:"city"`
	Daily []DailyView `json:"daily"`
}

// handleAirQuality fetches past daily averages live from Open-Meteo.
func (s *Server) handleAirQuality(w http.ResponseWriter, r *http.Request) {
	slug := r.URL.Query().Get("slug")
	if slug == "" {
		writeError(w, http.StatusBadRequest, "slug parameter is required")
		return
	}
	city, ok := s.lookupCity(w, slug)
	if !ok {
		return
	}

	pastDays := defaultPastDays
	if v := r.URL.Query().Get("past_days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxPastDays {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("past_days must be between 1 and %d", maxPastDays))
			return
		}
		pastDays = n
	}

	if s.airQuality == nil {
		writeError(w, http.StatusServiceUnavailable, "live air quality is not configured")
		return
	}

	key := fmt.Sprintf("air-quality:%s:%d", city.Slug, pastDays)
	var resp airQualityResponse
	if err := cache.GetJSON(r.Context(), s.cache, key, &resp); err != nil {
		records, _, _, err := s.airQuality.FetchAirQuality(r.Context(), city, pastDays, 1)
		if err != nil {
			log.Error().Err(err).Str("city", city.Slug).Msg("api: fetch air quality")
			writeError(w, http.StatusInternalServerError, "failed to fetch air quality data")
			return
		}
		resp = airQualityResponse{
			City:  newCityView(city),
			Daily: dailyViews(ingest.DailyStats(records, s.loc)),
		}
		if err := cache.SetJSON(r.Context(), s.cache, key, resp, airQualityTTL); err != nil {
			log.Warn().Err(err).Msg("api: cache air quality")
		}
	}

	w.Header().Set("Cache-Control", "public, max-age=3600")
	writeJSON(w, http.StatusOK, resp)
}

type cctvResponse struct {
	City CityView `json:"city"`
	*cctv.CityAnalysis
}

func (s *Server) handleCCTVAnalysis(w http.ResponseWriter, r *http.Request) {
	slug := r.URL.Query().Get("slug")
	if slug == "" {
		writeError(w, http.StatusBadRequest, "slug parameter is required")
		return
	}
	city, ok := s.lookupCity(w, slug)
	if !ok {
		return
	}
	if s.analyzer == nil || !s.analyzer.HasSupport(city.Slug) {
		writeError(w, http.StatusNotFound, "camera analysis is not available for this city")
		return
	}

	pm25 := -1.0
	if v := r.URL.Query().Get("pm25"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 {
			writeError(w, http.StatusBadRequest, "pm25 must be a non-negative number")
			return
		}
		pm25 = f
	}

	analysis, err := s.analyzer.AnalyzeCity(r.Context(), city.Slug, pm25)
	if errors.Is(err, cctv.ErrNoCameras) {
		writeError(w, http.StatusNotFound, "camera analysis is not available for this city")
		return
	}
	if err != nil {
		log.Error().Err(err).Str("city", city.Slug).Msg("api: analyze cameras")
		writeError(w, http.StatusInternalServerError, "failed to analyze cameras")
		return
	}

	w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d", int(cctvMaxAge.Seconds())))
	writeJSON(w, http.StatusOK, cctvResponse{City: newCityView(city), CityAnalysis: analysis})
}

type ingestHealthResponse struct {
	Summaries    []store.IngestHealthSummary `json:"summaries"`
	RecentErrors []IngestErrorView          `json:"recentErrors"`
}

func (s *Server) handleIngestHealth(w http.ResponseWriter, r *http.Request) {
	days := 7
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxPastDays {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("days must be between 1 and %d", maxPastDays))
			return
		}
		days = n
	}

	summaries, err := s.store.GetIngestHealth(days)
	if err != nil {
		log.Error().Err(err).Msg("api: ingest health")
		writeError(w, http.StatusInternalServerError, "failed to load ingest health")
		return
	}
	runs, err := s.store.GetRecentIngestErrors(ingestErrorLimit)
	if err != nil {
		log.Error().Err(err).Msg("api: ingest errors")
		writeError(w, http.StatusInternalServerError, "failed to load ingest errors")
		return
	}

	resp := ingestHealthResponse{
		Summaries:    summaries,
		RecentErrors: make([]IngestErrorView, len(runs)),
	}
	if resp.Summaries == nil {
		resp.Summaries = []store.IngestHealthSummary{}
	}
	for i, run := range runs {
		resp.RecentErrors[i] = newIngestErrorView(run)
	}
	writeJSON(w, http.StatusOK, resp)
}
