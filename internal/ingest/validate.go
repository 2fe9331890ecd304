package ingest

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/lox/pmforecast/internal/models"
)

const (
	FlagPM25Negative         = "pm25_negative"
	FlagPM10Negative         = "pm10_negative"
	FlagPMImplausible        = "pm_implausible"
	FlagPM25ExceedsPM10      = "pm25_exceeds_pm10"
	FlagCoPollutantNegative  = "co_pollutant_negative"
	FlagHumidityInvalid      = "humidity_invalid"
	FlagWindDirInvalid       = "wind_dir_invalid"
	FlagWindSpeedUnlikely    = "wind_speed_unlikely"
	FlagPressureOutOfRange   = "pressure_out_of_range"
	FlagPrecipNegative       = "precip_negative"
	FlagPercentageOutOfRange = "percentage_out_of_range"
)

const maxPlausiblePM = 1000

func ValidateHourly(r models.HourlyRecord) []string {
	var flags []string

	if r.PM25.Valid && r.PM25.Float64 < 0 {
		flags = append(flags, FlagPM25Negative)
	}
	if r.PM10.Valid && r.PM10.Float64 < 0 {
		flags = append(flags, FlagPM10Negative)
	}
	if (r.PM25.Valid && r.PM25.Float64 > maxPlausiblePM) || (r.PM10.Valid && r.PM10.Float64 > maxPlausiblePM) {
		flags = append(flags, FlagPMImplausible)
	}
	if r.PM25.Valid && r.PM10.Valid && r.PM25.Float64 > r.PM10.Float64 {
		flags = append(flags, FlagPM25ExceedsPM10)
	}

	for _, v := range []sql.NullFloat64{r.NO2, r.SO2, r.CO} {
		if v.Valid && v.Float64 < 0 {
			flags = append(flags, FlagCoPollutantNegative)
			break
		}
	}

	return flags
}

func ValidateWeather(w models.WeatherObservation) []string {
	var flags []string

	if w.Humidity.Valid && (w.Humidity.Float64 < 0 || w.Humidity.Float64 > 100) {
		flags = append(flags, FlagHumidityInvalid)
	}

	if w.WindDirection.Valid && (w.WindDirection.Float64 < 0 || w.WindDirection.Float64 > 360) {
		flags = append(flags, FlagWindDirInvalid)
	}

	// m/s
	if w.WindSpeed.Valid && (w.WindSpeed.Float64 < 0 || w.WindSpeed.Float64 > 75) {
		flags = append(flags, FlagWindSpeedUnlikely)
	}

	for _, p := range []sql.NullFloat64{w.PressureMSL, w.SurfacePressure} {
		if p.Valid && (p.Float64 < 850 || p.Float64 > 1100) {
			flags = append(flags, FlagPressureOutOfRange)
			break
		}
	}

	if w.Precipitation.Valid && w.Precipitation.Float64 < 0 {
		flags = append(flags, FlagPrecipNegative)
	}

	for _, p := range []sql.NullFloat64{w.PrecipitationProbability, w.CloudCover} {
		if p.Valid && (p.Float64 < 0 || p.Float64 > 100) {
			flags = append(flags, FlagPercentageOutOfRange)
			break
		}
	}

	return flags
}

// HourlyQualityFlags validates every record and returns the JSON-encoded
// flags keyed by record time. Clean records are omitted.
func HourlyQualityFlags(records []models.HourlyRecord) map[time.Time]string {
	out := make(map[time.Time]string)
	for _, r := range records {
		if f := QualityFlagsToJSON(ValidateHourly(r)); f != "" {
			out[r.Time] = f
		}
	}
	return out
}

func QualityFlagsToJSON(flags []string) string {
	if len(flags) == 0 {
		return ""
	}
	b, _ := json.Marshal(flags)
	return string(b)
}
