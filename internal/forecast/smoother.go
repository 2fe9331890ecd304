package forecast

import (
	"math"
	"sort"
)

// DefaultTrendWeight scales the robust slope when projecting one day ahead.
const DefaultTrendWeight = 0.3

// ClipOutliers clamps values to [Q1-1.5*IQR, Q3+1.5*IQR]. Fewer than four
// values are returned unchanged. The input slice is never modified.
func ClipOutliers(values []float64) []float64 {
	out := make([]float64, len(values))
	copy(out, values)
	if len(values) < 4 {
		return out
	}

	lower, upper := iqrBounds(values)
	for i, v := range out {
		out[i] = clamp(v, lower, upper)
	}
	return out
}

func iqrBounds(values []float64) (lower, upper float64) {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	n := float64(len(sorted))
	q1 := sorted[int(math.Floor(n*0.25))]
	q3 := sorted[int(math.Floor(n*0.75))]
	iqr := q3 - q1
	return q1 - 1.5*iqr, q3 + 1.5*iqr
}

// WeightedMovingAverage weights the i-th value (oldest first) by i+1.
func WeightedMovingAverage(values []float64) float64 {
	switch len(values) {
	case 0:
		return 0
	case 1:
		return values[0]
	}

	var weightedSum, weightTotal float64
	for i, v := range values {
		w := float64(i + 1)
		weightedSum += v * w
		weightTotal += w
	}
	return weightedSum / weightTotal
}

// TheilSenSlope returns the median of all pairwise slopes.
func TheilSenSlope(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}

	slopes := make([]float64, 0, len(values)*(len(values)-1)/2)
	for i := 0; i < len(values); i++ {
		for j := i + 1; j < len(values); j++ {
			slopes = append(slopes, (values[j]-values[i])/float64(j-i))
		}
	}
	return median(slopes)
}

func median(values []float64) float64 {
	sort.Float64s(values)
	mid := len(values) / 2
	if len(values)%2 == 0 {
		return (values[mid-1] + values[mid]) / 2
	}
	return values[mid]
}

// PredictNext projects the next day's value from an ordered (oldest first)
// series of daily averages. The result is a non-negative integer.
func PredictNext(values []float64, trendWeight float64) float64 {
	clipped := ClipOutliers(values)
	wma := WeightedMovingAverage(clipped)
	slope := TheilSenSlope(clipped)
	return math.Max(0, math.Round(wma+slope*trendWeight))
}
