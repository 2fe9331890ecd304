package forecast

import (
	"database/sql"
	"testing"
	"time"

	"github.com/lox/pmforecast/internal/models"
)

func TestPrecipitationFactor(t *testing.T) {
	tests := []struct {
		name        string
		probability sql.NullFloat64
		amount      sql.NullFloat64
		want        float64
	}{
		{"missing", sql.NullFloat64{}, sql.NullFloat64{}, 1.0},
		{"heavy rain", nullFloat(80), nullFloat(6), 0.4},
		{"rain", nullFloat(80), nullFloat(2), 0.6},
		{"likely but light", nullFloat(80), nullFloat(0.5), 0.8},
		{"chance of rain", nullFloat(60), sql.NullFloat64{}, 0.8},
		{"dry", nullFloat(20), nullFloat(0), 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := models.WeatherObservation{PrecipitationProbability: tt.probability, Precipitation: tt.amount}
			if got := PrecipitationFactor(w).Factor; got != tt.want {
				t.Errorf("PrecipitationFactor() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStabilityFactor(t *testing.T) {
	tests := []struct {
		name     string
		w        models.WeatherObservation
		want     float64
		wantDesc string
	}{
		{
			name:     "all missing uses neutral defaults",
			want:     0.7,
			wantDesc: "unstable atmosphere (good dispersion)",
		},
		{
			name: "calm humid clear high pressure",
			w: models.WeatherObservation{
				WindSpeed:       nullFloat(1),
				Humidity:        nullFloat(90),
				CloudCover:      nullFloat(10),
				PressureMSL:     nullFloat(1030),
				SurfacePressure: nullFloat(1015),
			},
			want:     1.3,
			wantDesc: "very stable atmosphere (pollutants trapped)",
		},
		{
			name: "moderate",
			w: models.WeatherObservation{
				WindSpeed:       nullFloat(2),
				CloudCover:      nullFloat(10),
				PressureMSL:     nullFloat(1026),
				SurfacePressure: nullFloat(1026),
			},
			want:     1.0,
			wantDesc: "moderately stable atmosphere",
		},
		{
			name: "windy overcast clamps at zero",
			w: models.WeatherObservation{
				WindSpeed:  nullFloat(9),
				CloudCover: nullFloat(90),
			},
			want:     0.7,
			wantDesc: "unstable atmosphere (good dispersion)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := StabilityFactor(tt.w)
			if got.Factor != tt.want {
				t.Errorf("StabilityFactor().Factor = %v, want %v", got.Factor, tt.want)
			}
			if got.Description != tt.wantDesc {
				t.Errorf("StabilityFactor().Description = %q, want %q", got.Description, tt.wantDesc)
			}
		})
	}
}

func TestHumidityFactor(t *testing.T) {
	tests := []struct {
		humidity sql.NullFloat64
		want     float64
	}{
		{sql.NullFloat64{}, 1.0},
		{nullFloat(60), 1.0},
		{nullFloat(70), 1.0},
		{nullFloat(80), 1.2},
		{nullFloat(85), 1.3},
		{nullFloat(95), 1.3},
	}

	for _, tt := range tests {
		got := HumidityFactor(models.WeatherObservation{Humidity: tt.humidity}).Factor
		if got != tt.want {
			t.Errorf("HumidityFactor(%v) = %v, want %v", tt.humidity, got, tt.want)
		}
	}
}

// hourlySeries returns n hourly records whose NO2 steps from older to newer
// at the midpoint. SO2 and CO are left missing.
func hourlySeries(n int, older, newer float64) []models.HourlyRecord {
	start := time.Date(2025, 4, 14, 0, 0, 0, 0, time.UTC)
	hours := make([]models.HourlyRecord, n)
	for i := range hours {
		v := older
		if i >= n/2 {
			v = newer
		}
		hours[i] = models.HourlyRecord{Time: start.Add(time.Duration(i) * time.Hour), NO2: nullFloat(v)}
	}
	return hours
}

func TestLeadingIndicatorFactor(t *testing.T) {
	tests := []struct {
		name         string
		hourly       []models.HourlyRecord
		want         float64
		insufficient bool
	}{
		{"none", nil, 1.0, true},
		{"five samples", hourlySeries(5, 10, 50), 1.0, true},
		{"steady", hourlySeries(24, 20, 20), 1.0, false},
		{"surge", hourlySeries(24, 10, 30), 1.2, false},
		{"rising", hourlySeries(12, 10, 18), 1.1, false},
		{"falling", hourlySeries(24, 30, 15), 0.9, false},
		{"only last day counts", append(hourlySeries(24, 100, 100), hourlySeries(24, 10, 30)...), 1.2, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := LeadingIndicatorFactor(tt.hourly)
			if got.Factor != tt.want {
				t.Errorf("LeadingIndicatorFactor().Factor = %v, want %v", got.Factor, tt.want)
			}
			if got.InsufficientData != tt.insufficient {
				t.Errorf("LeadingIndicatorFactor().InsufficientData = %v, want %v", got.InsufficientData, tt.insufficient)
			}
		})
	}
}

func TestComputeWeather(t *testing.T) {
	tests := []struct {
		name        string
		w           models.WeatherObservation
		hourly      []models.HourlyRecord
		want        float64
		wantSummary string
	}{
		{
			name: "neutral",
			w: models.WeatherObservation{
				WindSpeed:       nullFloat(2),
				CloudCover:      nullFloat(10),
				PressureMSL:     nullFloat(1026),
				SurfacePressure: nullFloat(1026),
			},
			want:        1.0,
			wantSummary: "no special weather correction",
		},
		{
			name: "heavy rain and dispersion clamp low",
			w: models.WeatherObservation{
				PrecipitationProbability: nullFloat(90),
				Precipitation:            nullFloat(10),
				WindSpeed:                nullFloat(9),
			},
			hourly:      hourlySeries(24, 30, 15),
			want:        0.3,
			wantSummary: "heavy rain expected (strong washout), unstable atmosphere (good dispersion), co-pollutants falling (clearing signal)",
		},
		{
			name: "stagnant humid surge",
			w: models.WeatherObservation{
				WindSpeed:       nullFloat(1),
				Humidity:        nullFloat(90),
				CloudCover:      nullFloat(10),
				PressureMSL:     nullFloat(1030),
				SurfacePressure: nullFloat(1015),
			},
			hourly:      hourlySeries(24, 10, 30),
			want:        2.0,
			wantSummary: "very stable atmosphere (pollutants trapped), high humidity (particle growth), co-pollutant surge (PM rise signal)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeWeather(tt.w, tt.hourly)
			if got.CombinedFactor != tt.want {
				t.Errorf("CombinedFactor = %v, want %v", got.CombinedFactor, tt.want)
			}
			if got.Summary != tt.wantSummary {
				t.Errorf("Summary = %q, want %q", got.Summary, tt.wantSummary)
			}
		})
	}
}
