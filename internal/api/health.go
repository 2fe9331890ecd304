package api

import (
	"net/http"
	"time"
)

const staleThreshold = 2 * time.Hour

type HealthStatus struct {
	Status string       `json:"status"`
	Cities []CityHealth `json:"cities"`
	Errors []string     `json:"errors,omitempty"`
}

type CityHealth struct {
	Slug       string    `json:"slug"`
	LastSeen   time.Time `json:"lastSeen,omitempty"`
	AgeMinutes int       `json:"ageMinutes"`
	Stale      bool      `json:"stale"`
}

// handleHealth reports how fresh each city's weather observation is. Any
// stale city degrades the status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	cities := s.predictor.Cities()
	health := HealthStatus{
		Status: "ok",
		Cities: make([]CityHealth, 0, len(cities)),
	}
	now := s.now()

	for _, c := range cities {
		obs, err := s.store.GetLatestWeather(c.Slug, now)
		if err != nil {
			health.Errors = append(health.Errors, c.Slug+": "+err.Error())
			continue
		}

		ch := CityHealth{Slug: c.Slug}
		if obs != nil {
			ch.LastSeen = obs.ObservedAt
			ch.AgeMinutes = int(now.Sub(obs.ObservedAt).Minutes())
			ch.Stale = now.Sub(obs.ObservedAt) > staleThreshold
		} else {
			ch.Stale = true
			ch.AgeMinutes = -1
		}

		if ch.Stale {
			health.Status = "degraded"
		}
		health.Cities = append(health.Cities, ch)
	}

	if len(health.Errors) > 0 {
		health.Status = "error"
	}

	status := http.StatusOK
	if health.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, health)
}
