package forecast

import "math"

// Safety ranges for composed multipliers.
const (
	minTotalFactor   = 0.2
	maxTotalFactor   = 3.0
	minWeatherFactor = 0.3
	maxWeatherFactor = 2.0
	minVisualFactor  = 0.9
	maxVisualFactor  = 1.15
)

// clamp limits v to [lo, hi].
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clamp01(v float64) float64 {
	return clamp(v, 0, 1)
}

// round2 rounds to two decimal places, the precision every reported factor uses.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// ComposeFactors multiplies the three model factors and clamps the product
// to the total safety range.
func ComposeFactors(industrial, weather, visual float64) float64 {
	return clamp(industrial*weather*visual, minTotalFactor, maxTotalFactor)
}

// applyFactor scales a predicted concentration and keeps it a non-negative integer.
func applyFactor(value, factor float64) float64 {
	return math.Max(0, math.Round(value*factor))
}
