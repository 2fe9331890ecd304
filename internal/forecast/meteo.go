package forecast

import (
	"database/sql"
	"strings"

	"github.com/lox/pmforecast/internal/models"
)

// Neutral stand-ins for missing weather fields.
const (
	neutralHumidity   = 50.0
	neutralCloudCover = 50.0
	neutralPressure   = 1013.0
)

const (
	leadingWindowHours = 24
	minLeadingSamples  = 6
)

const noSpecialWeatherCorrection = "no special weather correction"

// SubFactor is one component of the meteorological correction.
type SubFactor struct {
	Factor           float64
	Description      string
	InsufficientData bool
}

func orDefault(v sql.NullFloat64, def float64) float64 {
	if v.Valid {
		return v.Float64
	}
	return def
}

// PrecipitationFactor models rain washing particles out of the air.
func PrecipitationFactor(w models.WeatherObservation) SubFactor {
	prob := orDefault(w.PrecipitationProbability, 0)
	amount := orDefault(w.Precipitation, 0)

	switch {
	case prob > 70 && amount > 5:
		return SubFactor{Factor: 0.4, Description: "heavy rain expected (strong washout)"}
	case prob > 70 && amount > 1:
		return SubFactor{Factor: 0.6, Description: "rain expected (washout)"}
	case prob > 50:
		return SubFactor{Factor: 0.8, Description: "chance of rain (light washout)"}
	}
	return SubFactor{Factor: 1.0, Description: "no precipitation"}
}

// StabilityFactor scores how strongly the boundary layer traps pollutants,
// from 0.7 (unstable, good dispersion) to 1.3 (very stable).
func StabilityFactor(w models.WeatherObservation) SubFactor {
	windSpeed := orDefault(w.WindSpeed, defaultWindSpeed)
	humidity := orDefault(w.Humidity, neutralHumidity)
	cloudCover := orDefault(w.CloudCover, neutralCloudCover)
	pressureMSL := orDefault(w.PressureMSL, neutralPressure)
	surfacePressure := orDefault(w.SurfacePressure, neutralPressure)

	var score float64

	switch {
	case windSpeed < 1.5:
		score += 0.35
	case windSpeed < 3:
		score += 0.2
	case windSpeed > 7:
		score -= 0.1
	}

	switch {
	case humidity > 85:
		score += 0.2
	case humidity > 75:
		score += 0.1
	}

	// Clear skies allow radiative cooling and a surface inversion.
	switch {
	case cloudCover < 20:
		score += 0.2
	case cloudCover > 80:
		score -= 0.05
	}

	switch diff := pressureMSL - surfacePressure; {
	case diff > 10:
		score += 0.15
	case diff > 5:
		score += 0.1
	}

	// Subsidence under high pressure.
	switch {
	case pressureMSL > 1025:
		score += 0.1
	case pressureMSL > 1020:
		score += 0.05
	}

	score = clamp01(score)

	desc := "unstable atmosphere (good dispersion)"
	if score > 0.6 {
		desc = "very stable atmosphere (pollutants trapped)"
	} else if score > 0.3 {
		desc = "moderately stable atmosphere"
	}
	return SubFactor{Factor: round2(0.7 + score*0.6), Description: desc}
}

// HumidityFactor models hygroscopic particle growth in moist air.
func HumidityFactor(w models.WeatherObservation) SubFactor {
	humidity := orDefault(w.Humidity, neutralHumidity)

	switch {
	case humidity > 85:
		return SubFactor{Factor: 1.3, Description: "high humidity (particle growth)"}
	case humidity > 70:
		return SubFactor{Factor: round2(1.0 + (humidity-70)*0.02), Description: "somewhat humid"}
	}
	return SubFactor{Factor: 1.0, Description: "normal humidity"}
}

// LeadingIndicatorFactor compares co-pollutant levels in the older and newer
// halves of the trailing day of hourly samples. NO2, SO2 and CO react faster
// than particulates, so a rise anticipates a PM increase.
func LeadingIndicatorFactor(hourly []models.HourlyRecord) SubFactor {
	recent := hourly
	if len(recent) > leadingWindowHours {
		recent = recent[len(recent)-leadingWindowHours:]
	}
	if len(recent) < minLeadingSamples {
		return SubFactor{Factor: 1.0, Description: "insufficient data", InsufficientData: true}
	}

	half := len(recent) / 2
	older, newer := recent[:half], recent[half:]

	ratio := func(get func(models.HourlyRecord) sql.NullFloat64) float64 {
		oldMean := meanOf(older, get)
		if oldMean <= 0 {
			return 0
		}
		return (meanOf(newer, get) - oldMean) / oldMean
	}

	score := ratio(func(h models.HourlyRecord) sql.NullFloat64 { return h.NO2 })*0.5 +
		ratio(func(h models.HourlyRecord) sql.NullFloat64 { return h.SO2 })*0.3 +
		ratio(func(h models.HourlyRecord) sql.NullFloat64 { return h.CO })*0.2

	switch {
	case score > 0.6:
		return SubFactor{Factor: 1.2, Description: "co-pollutant surge (PM rise signal)"}
	case score > 0.3:
		return SubFactor{Factor: 1.1, Description: "co-pollutants rising"}
	case score < -0.2:
		return SubFactor{Factor: 0.9, Description: "co-pollutants falling (clearing signal)"}
	}
	return SubFactor{Factor: 1.0, Description: "co-pollutants steady"}
}

// meanOf averages the present samples, or returns 0 when none are present.
func meanOf(hours []models.HourlyRecord, get func(models.HourlyRecord) sql.NullFloat64) float64 {
	var sum float64
	var n int
	for _, h := range hours {
		if v := get(h); v.Valid {
			sum += v.Float64
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// ComputeWeather combines the four meteorological sub-factors. The product
// is clamped to [0.3, 2.0].
func ComputeWeather(w models.WeatherObservation, hourly []models.HourlyRecord) models.WeatherBreakdown {
	precip := PrecipitationFactor(w)
	stability := StabilityFactor(w)
	humidity := HumidityFactor(w)
	leading := LeadingIndicatorFactor(hourly)

	combined := clamp(precip.Factor*stability.Factor*humidity.Factor*leading.Factor, minWeatherFactor, maxWeatherFactor)

	var clauses []string
	if precip.Factor < 0.9 {
		clauses = append(clauses, precip.Description)
	}
	if stability.Factor > 1.15 || stability.Factor < 0.85 {
		clauses = append(clauses, stability.Description)
	}
	if humidity.Factor > 1.1 {
		clauses = append(clauses, humidity.Description)
	}
	if leading.Factor > 1.05 || leading.Factor < 0.95 {
		clauses = append(clauses, leading.Description)
	}

	summary := noSpecialWeatherCorrection
	if len(clauses) > 0 {
		summary = strings.Join(clauses, ", ")
	}

	return models.WeatherBreakdown{
		CombinedFactor:         round2(combined),
		PrecipitationFactor:    precip.Factor,
		PrecipitationDesc:      precip.Description,
		StabilityFactor:        stability.Factor,
		StabilityDesc:          stability.Description,
		HumidityFactor:         humidity.Factor,
		HumidityDesc:           humidity.Description,
		LeadingIndicatorFactor: leading.Factor,
		LeadingIndicatorDesc:   leading.Description,
		InsufficientHourly:     leading.InsufficientData,
		Summary:                summary,
	}
}
