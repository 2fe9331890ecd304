package forecast

import (
	"math"

	"github.com/lox/pmforecast/internal/models"
)

// Error normalisation ranges, the upper bound of the "bad" band.
const (
	pm25ErrorRange  = 75.0
	pm10ErrorRange  = 150.0
	accuracyDecay   = 0.85
	minAccuracyDays = 3
)

// weightedErrors accumulates decay-weighted normalised errors for one pollutant.
type weightedErrors struct {
	sum, weights float64
	n            int
}

func (w *weightedErrors) add(err, weight float64) {
	w.sum += err * weight
	w.weights += weight
	w.n++
}

func (w weightedErrors) mean() float64 {
	if w.weights == 0 {
		return 0
	}
	return w.sum / w.weights
}

func accuracyPercent(meanErr float64) float64 {
	return math.Round(clamp01(1-meanErr) * 100)
}

// EvaluateAccuracy backtests the smoother over history: every day from the
// third onwards is predicted from up to five days before it. Recent days
// carry more weight. It reports false when there are fewer than three days
// or nothing could be evaluated.
func EvaluateAccuracy(history []models.DailyRecord, trendWeight float64) (models.AccuracyResult, bool) {
	sorted := sortByDate(history)
	if len(sorted) < minAccuracyDays {
		return models.AccuracyResult{}, false
	}

	var pm25, pm10 weightedErrors
	var matches, comparisons int

	for i := 2; i < len(sorted); i++ {
		actual := sorted[i]
		window := trailingWindow(sorted, i)
		weight := math.Pow(accuracyDecay, float64(len(sorted)-1-i))

		if vals := values(window, pm25Of, nonNegative); len(vals) >= minWindowValues {
			predicted := PredictNext(vals, trendWeight)
			pm25.add(math.Abs(predicted-actual.PM25Avg)/pm25ErrorRange, weight)

			if GradeFor(predicted, models.PM25) == GradeFor(actual.PM25Avg, models.PM25) {
				matches++
			}
			comparisons++
		}

		if vals := values(window, pm10Of, nonNegative); len(vals) >= minWindowValues {
			predicted := PredictNext(vals, trendWeight)
			pm10.add(math.Abs(predicted-actual.PM10Avg)/pm10ErrorRange, weight)
		}
	}

	if pm25.n == 0 && pm10.n == 0 {
		return models.AccuracyResult{}, false
	}

	result := models.AccuracyResult{
		PM25Accuracy: accuracyPercent(pm25.mean()),
		PM10Accuracy: accuracyPercent(pm10.mean()),
		SampleDays:   len(sorted),
	}
	result.OverallAccuracy = math.Round((result.PM25Accuracy + result.PM10Accuracy) / 2)
	if comparisons > 0 {
		result.GradeMatchRate = math.Round(float64(matches) / float64(comparisons) * 100)
	}
	return result, true
}
