package ingest

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/lox/pmforecast/internal/httputil"
	"github.com/lox/pmforecast/internal/metrics"
	"github.com/lox/pmforecast/internal/models"
)

const (
	DefaultAirQualityURL = "https://air-quality-api.open-meteo.com/v1/air-quality"
	DefaultWeatherURL    = "https://api.open-meteo.com/v1/forecast"

	EndpointAirQuality = "air-quality"
	EndpointWeather    = "forecast"

	airQualityParams = "pm10,pm2_5,nitrogen_dioxide,sulphur_dioxide,carbon_monoxide"
	weatherParams    = "wind_direction_10m,wind_speed_10m,temperature_2m,relative_humidity_2m,precipitation,precipitation_probability,pressure_msl,surface_pressure,cloud_cover"

	hourLayout = "2006-01-02T15:04"
)

// FetchResult describes the HTTP exchange behind a fetch for the ingest
// audit log.
type FetchResult struct {
	HTTPStatus   int
	ResponseSize int
	RecordCount  int
}

// OpenMeteo fetches hourly air quality and weather from the Open-Meteo APIs.
type OpenMeteo struct {
	client         *http.Client
	airQualityURL  string
	weatherURL     string
	loc            *time.Location
	maxElapsedTime time.Duration
}

func NewOpenMeteo(loc *time.Location) *OpenMeteo {
	return &OpenMeteo{
		client:         httputil.NewClient(),
		airQualityURL:  DefaultAirQualityURL,
		weatherURL:     DefaultWeatherURL,
		loc:            loc,
		maxElapsedTime: 2 * time.Minute,
	}
}

// WithBaseURLs points the client at alternative endpoints.
func (o *OpenMeteo) WithBaseURLs(airQualityURL, weatherURL string) *OpenMeteo {
	if airQualityURL != "" {
		o.airQualityURL = airQualityURL
	}
	if weatherURL != "" {
		o.weatherURL = weatherURL
	}
	return o
}

type airQualityResponse struct {
	Hourly struct {
		Time []string   `json:"time"`
		PM10 []*float64 `json:"pm10"`
		PM25 []*float64 `json:"pm2_5"`
		NO2  []*float64 `json:"nitrogen_dioxide"`
		SO2  []*float64 `json:"sulphur_dioxide"`
		CO   []*float64 `json:"carbon_monoxide"`
	} `json:"hourly"`
}

type weatherResponse struct {
	Hourly struct {
		Time                     []string   `json:"time"`
		WindDirection            []*float64 `json:"wind_direction_10m"`
		WindSpeed                []*float64 `json:"wind_speed_10m"`
		Temperature              []*float64 `json:"temperature_2m"`
		Humidity                 []*float64 `json:"relative_humidity_2m"`
		Precipitation            []*float64 `json:"precipitation"`
		PrecipitationProbability []*float64 `json:"precipitation_probability"`
		PressureMSL              []*float64 `json:"pressure_msl"`
		SurfacePressure          []*float64 `json:"surface_pressure"`
		CloudCover               []*float64 `json:"cloud_cover"`
	} `json:"hourly"`
}

// at returns the i-th value of an optional series.
func at(series []*float64, i int) sql.NullFloat64 {
	if i >= len(series) || series[i] == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *series[i], Valid: true}
}

// FetchAirQuality returns hourly particulate and co-pollutant readings for
// the city covering pastDays before today and forecastDays from today.
func (o *OpenMeteo) FetchAirQuality(ctx context.Context, city models.City, pastDays, forecastDays int) ([]models.HourlyRecord, []byte, *FetchResult, error) {
	q := o.locationQuery(city)
	q.Set("hourly", airQualityParams)
	q.Set("past_days", strconv.Itoa(pastDays))
	q.Set("forecast_days", strconv.Itoa(forecastDays))

	body, result, err := o.get(ctx, city.Slug, EndpointAirQuality, o.airQualityURL+"?"+q.Encode())
	if err != nil {
		return nil, body, result, err
	}

	var data airQualityResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, body, result, fmt.Errorf("unmarshal air quality: %w", err)
	}

	h := data.Hourly
	records := make([]models.HourlyRecord, 0, len(h.Time))
	for i, ts := range h.Time {
		t, err := time.ParseInLocation(hourLayout, ts, o.loc)
		if err != nil {
			return nil, body, result, fmt.Errorf("parse time[%d]=%q: %w", i, ts, err)
		}
		records = append(records, models.HourlyRecord{
			Time: t,
			PM25: at(h.PM25, i),
			PM10: at(h.PM10, i),
			NO2:  at(h.NO2, i),
			SO2:  at(h.SO2, i),
			CO:   at(h.CO, i),
		})
	}
	result.RecordCount = len(records)
	return records, body, result, nil
}

// FetchWeather returns the observation for the current hour, or the latest
// earlier hour when the current one is missing. It returns nil when the
// response has no hour at or before now.
func (o *OpenMeteo) FetchWeather(ctx context.Context, city models.City, now time.Time) (*models.WeatherObservation, []byte, *FetchResult, error) {
	q := o.locationQuery(city)
	q.Set("hourly", weatherParams)
	q.Set("wind_speed_unit", "ms")
	q.Set("past_days", "0")
	q.Set("forecast_days", "2")

	body, result, err := o.get(ctx, city.Slug, EndpointWeather, o.weatherURL+"?"+q.Encode())
	if err != nil {
		return nil, body, result, err
	}

	var data weatherResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, body, result, fmt.Errorf("unmarshal weather: %w", err)
	}

	h := data.Hourly
	idx, observedAt, err := o.currentHourIndex(h.Time, now)
	if err != nil {
		return nil, body, result, err
	}
	if idx < 0 {
		return nil, body, result, nil
	}

	result.RecordCount = 1
	return &models.WeatherObservation{
		ObservedAt:               observedAt,
		WindDirection:            at(h.WindDirection, idx),
		WindSpeed:                at(h.WindSpeed, idx),
		Temperature:              at(h.Temperature, idx),
		Humidity:                 at(h.Humidity, idx),
		Precipitation:            at(h.Precipitation, idx),
		PrecipitationProbability: at(h.PrecipitationProbability, idx),
		PressureMSL:              at(h.PressureMSL, idx),
		SurfacePressure:          at(h.SurfacePressure, idx),
		CloudCover:               at(h.CloudCover, idx),
	}, body, result, nil
}

// currentHourIndex finds the hour containing now, falling back to the
// latest hour before it. Returns -1 when every hour is in the future.
func (o *OpenMeteo) currentHourIndex(times []string, now time.Time) (int, time.Time, error) {
	current := now.In(o.loc).Truncate(time.Hour)
	idx := -1
	var found time.Time
	for i, ts := range times {
		t, err := time.ParseInLocation(hourLayout, ts, o.loc)
		if err != nil {
			return -1, time.Time{}, fmt.Errorf("parse time[%d]=%q: %w", i, ts, err)
		}
		if t.After(current) {
			continue
		}
		if idx == -1 || !t.Before(found) {
			idx, found = i, t
		}
	}
	return idx, found, nil
}

func (o *OpenMeteo) locationQuery(city models.City) url.Values {
	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(city.Latitude, 'f', 4, 64))
	q.Set("longitude", strconv.FormatFloat(city.Longitude, 'f', 4, 64))
	q.Set("timezone", o.loc.String())
	return q
}

func (o *OpenMeteo) get(ctx context.Context, citySlug, endpoint, target string) ([]byte, *FetchResult, error) {
	result := &FetchResult{}
	start := time.Now()
	defer func() {
		metrics.OpenMeteoAPILatency.WithLabelValues(citySlug, endpoint).Observe(time.Since(start).Seconds())
	}()

	var body []byte
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("build request: %w", err))
		}
		resp, err := o.client.Do(req)
		if err != nil {
			return fmt.Errorf("fetch %s: %w", endpoint, err)
		}
		defer resp.Body.Close()

		result.HTTPStatus = resp.StatusCode
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return fmt.Errorf("fetch %s: status %d", endpoint, resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(resp.Body)
			result.ResponseSize = len(b)
			return backoff.Permanent(fmt.Errorf("fetch %s: status %d: %s", endpoint, resp.StatusCode, string(b)))
		}

		body, err = io.ReadAll(resp.Body)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("read body: %w", err))
		}
		result.ResponseSize = len(body)
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = o.maxElapsedTime
	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		metrics.OpenMeteoAPICallsTotal.WithLabelValues(citySlug, endpoint, "error").Inc()
		return nil, result, err
	}
	metrics.OpenMeteoAPICallsTotal.WithLabelValues(citySlug, endpoint, "success").Inc()
	return body, result, nil
}
