package api

import (
	"database/sql"
	"time"

	"github.com/lox/pmforecast/internal/ingest"
	"github.com/lox/pmforecast/internal/models"
	"github.com/lox/pmforecast/internal/store"
)

const dateLayout = "2006-01-02"

type CityView struct {
	Name      string  `json:"name"`
	Slug      string  `json:"slug"`
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
	Region    string  `json:"region"`
}

type DailyView struct {
	Date         string       `json:"date"`
	PM25Avg      float64      `json:"pm25Avg"`
	PM25Max      float64      `json:"pm25Max"`
	PM10Avg      float64      `json:"pm10Avg"`
	PM10Max      float64      `json:"pm10Max"`
	PM25Grade    models.Grade `json:"pm25Grade"`
	PM10Grade    models.Grade `json:"pm10Grade"`
	OverallGrade models.Grade `json:"overallGrade"`
	GradeLabel   string       `json:"gradeLabel"`
}

type HourlyView struct {
	Time time.Time `json:"time"`
	PM25 *float64  `json:"pm25"`
	PM10 *float64  `json:"pm10"`
	NO2  *float64  `json:"no2,omitempty"`
	SO2  *float64  `json:"so2,omitempty"`
	CO   *float64  `json:"co,omitempty"`
}

type WeatherView struct {
	ObservedAt               time.Time `json:"observedAt"`
	WindDirection            *float64  `json:"windDirection"`
	WindSpeed                *float64  `json:"windSpeed"`
	Temperature              *float64  `json:"temperature"`
	Humidity                 *float64  `json:"humidity"`
	Precipitation            *float64  `json:"precipitation"`
	PrecipitationProbability *float64  `json:"precipitationProbability"`
	PressureMSL              *float64  `json:"pressureMsl"`
	CloudCover               *float64  `json:"cloudCover"`
}

// CitySummary is one row of the city list.
type CitySummary struct {
	City    CityView    `json:"city"`
	Current *HourlyView `json:"current,omitempty"`
	Today   *DailyView  `json:"today,omitempty"`
}

// CityDetail is everything known about a city around today.
type CityDetail struct {
	City     CityView     `json:"city"`
	Current  *HourlyView  `json:"current,omitempty"`
	Today    *DailyView   `json:"today,omitempty"`
	Tomorrow *DailyView   `json:"tomorrow,omitempty"`
	History  []DailyView  `json:"history"`
	Forecast []DailyView  `json:"forecast"`
	Hourly   []HourlyView `json:"hourly"`
	Weather  *WeatherView `json:"weather,omitempty"`
}

type AccuracyView struct {
	CitySlug string                    `json:"citySlug"`
	Current  *models.AccuracyResult    `json:"current"`
	History  []store.AccuracySnapshot  `json:"history"`
	Outcomes []store.PredictionOutcome `json:"outcomes"`
}

type IngestErrorView struct {
	StartedAt  time.Time `json:"startedAt"`
	Source     string    `json:"source"`
	Endpoint   string    `json:"endpoint"`
	CitySlug   string    `json:"citySlug,omitempty"`
	HTTPStatus int64     `json:"httpStatus,omitempty"`
	Error      string    `json:"error"`
}

func ptr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func newCityView(c models.City) CityView {
	return CityView{Name: c.Name, Slug: c.Slug, Latitude: c.Latitude, Longitude: c.Longitude, Region: c.Region}
}

func newDailyView(d models.DailyRecord) DailyView {
	return DailyView{
		Date:         d.Date.Format(dateLayout),
		PM25Avg:      d.PM25Avg,
		PM25Max:      d.PM25Max,
		PM10Avg:      d.PM10Avg,
		PM10Max:      d.PM10Max,
		PM25Grade:    d.PM25Grade,
		PM10Grade:    d.PM10Grade,
		OverallGrade: d.OverallGrade,
		GradeLabel:   d.OverallGrade.Label(),
	}
}

func dailyViews(records []models.DailyRecord) []DailyView {
	out := make([]DailyView, len(records))
	for i, d := range records {
		out[i] = newDailyView(d)
	}
	return out
}

func optionalDaily(d *models.DailyRecord) *DailyView {
	if d == nil {
		return nil
	}
	v := newDailyView(*d)
	return &v
}

func newHourlyView(h models.HourlyRecord) HourlyView {
	return HourlyView{Time: h.Time, PM25: ptr(h.PM25), PM10: ptr(h.PM10), NO2: ptr(h.NO2), SO2: ptr(h.SO2), CO: ptr(h.CO)}
}

func newWeatherView(w *models.WeatherObservation) *WeatherView {
	if w == nil {
		return nil
	}
	return &WeatherView{
		ObservedAt:               w.ObservedAt,
		WindDirection:            ptr(w.WindDirection),
		WindSpeed:                ptr(w.WindSpeed),
		Temperature:              ptr(w.Temperature),
		Humidity:                 ptr(w.Humidity),
		Precipitation:            ptr(w.Precipitation),
		PrecipitationProbability: ptr(w.PrecipitationProbability),
		PressureMSL:              ptr(w.PressureMSL),
		CloudCover:               ptr(w.CloudCover),
	}
}

func newCitySummary(data *ingest.CityData) CitySummary {
	s := CitySummary{City: newCityView(data.City), Today: optionalDaily(data.Today())}
	if data.HasCurrent {
		cur := newHourlyView(data.Current)
		s.Current = &cur
	}
	return s
}

func newCityDetail(data *ingest.CityData) CityDetail {
	d := CityDetail{
		City:     newCityView(data.City),
		Today:    optionalDaily(data.Today()),
		Tomorrow: optionalDaily(data.Tomorrow()),
		History:  dailyViews(data.History),
		Forecast: dailyViews(data.Forecast),
		Hourly:   make([]HourlyView, len(data.TodayHourly)),
		Weather:  newWeatherView(data.Weather),
	}
	if data.HasCurrent {
		cur := newHourlyView(data.Current)
		d.Current = &cur
	}
	for i, h := range data.TodayHourly {
		d.Hourly[i] = newHourlyView(h)
	}
	return d
}

func newIngestErrorView(r store.IngestRun) IngestErrorView {
	return IngestErrorView{
		StartedAt:  r.StartedAt,
		Source:     r.Source,
		Endpoint:   r.Endpoint,
		CitySlug:   r.CitySlug.String,
		HTTPStatus: r.HTTPStatus.Int64,
		Error:      r.ErrorMessage.String,
	}
}
