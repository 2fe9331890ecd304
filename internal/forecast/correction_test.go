package forecast

import (
	"testing"
)

func TestClamp(t *testing.T) {
	tests := []struct {
		name   string
		v      float64
		lo, hi float64
		want   float64
	}{
		{"within range", 1.2, 0.3, 2.0, 1.2},
		{"at lower bound", 0.3, 0.3, 2.0, 0.3},
		{"at upper bound", 2.0, 0.3, 2.0, 2.0},
		{"below range", 0.1, 0.3, 2.0, 0.3},
		{"above range", 2.5, 0.3, 2.0, 2.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := clamp(tt.v, tt.lo, tt.hi)
			if got != tt.want {
				t.Errorf("clamp(%v, %v, %v) = %v, want %v", tt.v, tt.lo, tt.hi, got, tt.want)
			}
		})
	}
}

func TestRound2(t *testing.T) {
	tests := []struct {
		v    float64
		want float64
	}{
		{1.3 * 1.15, 1.5},
		{0.946, 0.95},
		{1.0, 1.0},
		{0.004, 0},
	}

	for _, tt := range tests {
		if got := round2(tt.v); got != tt.want {
			t.Errorf("round2(%v) = %v, want %v", tt.v, got, tt.want)
		}
	}
}

func TestComposeFactors(t *testing.T) {
	tests := []struct {
		name       string
		industrial float64
		weather    float64
		visual     float64
		want       float64
	}{
		{"neutral", 1.0, 1.0, 1.0, 1.0},
		{"product within range", 1.25, 1.5, 1.0, 1.875},
		{"clamped high", 2.0, 2.0, 1.15, maxTotalFactor},
		{"clamped low", 0.2, 0.3, 0.9, minTotalFactor},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComposeFactors(tt.industrial, tt.weather, tt.visual)
			if got != tt.want {
				t.Errorf("ComposeFactors(%v, %v, %v) = %v, want %v", tt.industrial, tt.weather, tt.visual, got, tt.want)
			}
		})
	}
}

func TestApplyFactor(t *testing.T) {
	tests := []struct {
		name          string
		value, factor float64
		want          float64
	}{
		{"rounds half up", 25, 1.1, 28},
		{"identity", 40, 1.0, 40},
		{"never negative", -10, 1.5, 0},
		{"zero", 0, 3.0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := applyFactor(tt.value, tt.factor); got != tt.want {
				t.Errorf("applyFactor(%v, %v) = %v, want %v", tt.value, tt.factor, got, tt.want)
			}
		})
	}
}
