package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OpenMeteoAPICallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pmforecast_openmeteo_api_calls_total",
			Help: "Total Open-Meteo API calls",
		},
		[]string{"city", "endpoint", "status"},
	)

	OpenMeteoAPILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pmforecast_openmeteo_api_latency_seconds",
			Help:    "Open-Meteo API call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"city", "endpoint"},
	)

	HourlyRecordsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pmforecast_hourly_records_ingested_total",
			Help: "Total hourly air quality records successfully ingested",
		},
		[]string{"city"},
	)

	WeatherObservationsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pmforecast_weather_observations_ingested_total",
			Help: "Total weather observations successfully ingested",
		},
		[]string{"city"},
	)

	PredictionsComputed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pmforecast_predictions_computed_total",
			Help: "Total next-day predictions computed",
		},
		[]string{"city", "grade"},
	)

	PredictionTotalFactor = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pmforecast_prediction_total_factor",
			Help: "Composed correction multiplier of the latest prediction",
		},
		[]string{"city"},
	)

	CacheRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pmforecast_cache_requests_total",
			Help: "Prediction cache lookups by result",
		},
		[]string{"backend", "result"},
	)

	SnapshotFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pmforecast_snapshot_fetches_total",
			Help: "Camera snapshot fetches by scheme and status",
		},
		[]string{"scheme", "status"},
	)
)
