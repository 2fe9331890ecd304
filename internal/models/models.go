package models

import (
	"database/sql"
	"time"
)

type City struct {
	Name      string
	Slug      string
	Latitude  float64
	Longitude float64
	Region    string
}

type CCTVStation struct {
	ID          string
	CitySlug    string
	Name        string
	Latitude    float64
	Longitude   float64
	SnapshotURL string
	Source      string // "its", "topis", "ftp" or "mock"
	RoadName    string
}

// DailyRecord is one calendar day of aggregated particulate readings.
type DailyRecord struct {
	Date         time.Time
	PM25Avg      float64
	PM25Max      float64
	PM10Avg      float64
	PM10Max      float64
	PM25Grade    Grade
	PM10Grade    Grade
	OverallGrade Grade
}

type HourlyRecord struct {
	Time time.Time
	PM25 sql.NullFloat64
	PM10 sql.NullFloat64
	NO2  sql.NullFloat64
	SO2  sql.NullFloat64
	CO   sql.NullFloat64
}

type WeatherObservation struct {
	ObservedAt               time.Time
	WindDirection            sql.NullFloat64 // degrees
	WindSpeed                sql.NullFloat64 // m/s
	Temperature              sql.NullFloat64
	Humidity                 sql.NullFloat64 // %
	Precipitation            sql.NullFloat64 // mm
	PrecipitationProbability sql.NullFloat64 // %
	PressureMSL              sql.NullFloat64 // hPa
	SurfacePressure          sql.NullFloat64 // hPa
	CloudCover               sql.NullFloat64 // %
}

type VisualMetrics struct {
	Contrast             float64 `json:"contrast"`
	EdgeDensity          float64 `json:"edgeDensity"`
	ColorShift           float64 `json:"colorShift"`
	Brightness           float64 `json:"brightness"`
	BrightnessUniformity float64 `json:"brightnessUniformity"`
	Haziness             float64 `json:"haziness"`
}

type PM25Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

type VisualAnalysisResult struct {
	StationID       string        `json:"stationId"`
	StationName     string        `json:"stationName"`
	Timestamp       time.Time     `json:"timestamp"`
	SnapshotURL     string        `json:"snapshotUrl"`
	Metrics         VisualMetrics `json:"metrics"`
	VisibilityGrade Grade         `json:"visibilityGrade"`
	EstimatedPM25   PM25Range     `json:"estimatedPm25Range"`
	Confidence      float64       `json:"confidence"`
}

type Trend string

const (
	TrendImproving Trend = "improving"
	TrendStable    Trend = "stable"
	TrendWorsening Trend = "worsening"
)

// IndustrialBreakdown explains the industrial-activity correction.
type IndustrialBreakdown struct {
	CombinedFactor  float64 `json:"combinedFactor"`
	WeekdayRate     float64 `json:"weekdayRate"`
	SeasonalFactor  float64 `json:"seasonalFactor"`
	WindFactor      float64 `json:"windFactor"`
	WindDescription string  `json:"windDescription"`
	HolidayName     string  `json:"holidayName,omitempty"`
	HolidayFactor   float64 `json:"holidayFactor"`
	Summary         string  `json:"summary"`
}

// WeatherBreakdown explains the meteorological correction.
type WeatherBreakdown struct {
	CombinedFactor         float64 `json:"combinedFactor"`
	PrecipitationFactor    float64 `json:"precipitationFactor"`
	PrecipitationDesc      string  `json:"precipitationDesc"`
	StabilityFactor        float64 `json:"stabilityFactor"`
	StabilityDesc          string  `json:"stabilityDesc"`
	HumidityFactor         float64 `json:"humidityFactor"`
	HumidityDesc           string  `json:"humidityDesc"`
	LeadingIndicatorFactor float64 `json:"leadingIndicatorFactor"`
	LeadingIndicatorDesc   string  `json:"leadingIndicatorDesc"`
	InsufficientHourly     bool    `json:"insufficientHourly"`
	Summary                string  `json:"summary"`
}

// VisualBreakdown explains the camera-haziness correction.
type VisualBreakdown struct {
	CombinedFactor float64 `json:"combinedFactor"`
	Haziness       float64 `json:"haziness"`
	CameraCount    int     `json:"cameraCount"`
	Summary        string  `json:"summary"`
}

type PredictionResult struct {
	TomorrowGrade Grade               `json:"tomorrowGrade"`
	Trend         Trend               `json:"trend"`
	PredictedPM25 float64             `json:"predictedPm25"`
	PredictedPM10 float64             `json:"predictedPm10"`
	Message       string              `json:"message"`
	BlendRatio    float64             `json:"blendRatio"`
	TotalFactor   float64             `json:"totalFactor"`
	Industrial    IndustrialBreakdown `json:"industrial"`
	Weather       WeatherBreakdown    `json:"weather"`
	Visual        *VisualBreakdown    `json:"visual,omitempty"`
}

type AccuracyResult struct {
	PM25Accuracy    float64 `json:"pm25Accuracy"`
	PM10Accuracy    float64 `json:"pm10Accuracy"`
	OverallAccuracy float64 `json:"overallAccuracy"`
	GradeMatchRate  float64 `json:"gradeMatchRate"`
	SampleDays      int     `json:"sampleDays"`
}
