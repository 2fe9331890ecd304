package forecast

import (
	"math"
	"sort"

	"github.com/lox/pmforecast/internal/models"
)

const (
	DefaultBlendRatio = 0.6
	minBlendRatio     = 0.3
	maxBlendRatio     = 0.8
	blendEpsilon      = 0.01
	blendTestDays     = 3
	backtestWindow    = 5
	minWindowValues   = 2
	minSmootherValues = 3
)

// BlendDecision is the share of the smoother prediction in the final value.
// InsufficientData is set when the ratio is the default rather than learned
// from recent errors.
type BlendDecision struct {
	Ratio            float64
	Samples          int
	SmootherError    float64
	BaselineError    float64
	InsufficientData bool
}

// sortByDate returns a date-ascending copy of the history.
func sortByDate(history []models.DailyRecord) []models.DailyRecord {
	sorted := make([]models.DailyRecord, len(history))
	copy(sorted, history)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Date.Before(sorted[j].Date)
	})
	return sorted
}

func pm25Of(d models.DailyRecord) float64 { return d.PM25Avg }
func pm10Of(d models.DailyRecord) float64 { return d.PM10Avg }

// values extracts one pollutant from days, keeping only values accepted by keep.
func values(days []models.DailyRecord, get func(models.DailyRecord) float64, keep func(float64) bool) []float64 {
	out := make([]float64, 0, len(days))
	for _, d := range days {
		if v := get(d); keep(v) {
			out = append(out, v)
		}
	}
	return out
}

func positive(v float64) bool    { return v > 0 }
func nonNegative(v float64) bool { return v >= 0 }

// trailingWindow returns up to backtestWindow days immediately before index i.
func trailingWindow(sorted []models.DailyRecord, i int) []models.DailyRecord {
	start := i - backtestWindow
	if start < 0 {
		start = 0
	}
	return sorted[start:i]
}

// BlendRatio weighs the smoother against the baseline forecast by their
// inverse mean absolute PM2.5 error over the last three history days.
func BlendRatio(history []models.DailyRecord, baseline models.DailyRecord, trendWeight float64) BlendDecision {
	decision := BlendDecision{Ratio: DefaultBlendRatio, InsufficientData: true}

	sorted := sortByDate(history)
	if len(sorted) < blendTestDays+1 {
		return decision
	}

	var smootherSum, baselineSum float64
	var count int
	for i := len(sorted) - blendTestDays; i < len(sorted); i++ {
		if i < 2 {
			continue
		}
		window := values(trailingWindow(sorted, i), pm25Of, positive)
		if len(window) < minWindowValues {
			continue
		}
		actual := sorted[i].PM25Avg
		smootherSum += math.Abs(PredictNext(window, trendWeight) - actual)
		baselineSum += math.Abs(baseline.PM25Avg - actual)
		count++
	}

	decision.Samples = count
	if count < blendTestDays {
		return decision
	}

	decision.SmootherError = smootherSum / float64(count)
	decision.BaselineError = baselineSum / float64(count)
	smootherWeight := 1 / (decision.SmootherError + blendEpsilon)
	baselineWeight := 1 / (decision.BaselineError + blendEpsilon)

	decision.Ratio = clamp(smootherWeight/(smootherWeight+baselineWeight), minBlendRatio, maxBlendRatio)
	decision.InsufficientData = false
	return decision
}

// Blend mixes the smoother and baseline predictions and rounds to an integer.
func Blend(smoother, baseline, ratio float64) float64 {
	return math.Round(smoother*ratio + baseline*(1-ratio))
}

// recentWindow is the trailing series the smoother runs on for tomorrow:
// the last four history days plus today, or the last five history days.
func recentWindow(sorted []models.DailyRecord, today *models.DailyRecord) []models.DailyRecord {
	n := backtestWindow
	if today != nil {
		n--
	}
	start := len(sorted) - n
	if start < 0 {
		start = 0
	}
	recent := make([]models.DailyRecord, 0, backtestWindow)
	recent = append(recent, sorted[start:]...)
	if today != nil {
		recent = append(recent, *today)
	}
	return recent
}

// SmoothedPrediction returns the smoother forecast for one pollutant and
// whether enough positive values were available to compute it.
func SmoothedPrediction(recent []models.DailyRecord, p models.Pollutant, trendWeight float64) (float64, bool) {
	get := pm25Of
	if p == models.PM10 {
		get = pm10Of
	}
	vals := values(recent, get, positive)
	if len(vals) < minSmootherValues {
		return 0, false
	}
	return PredictNext(vals, trendWeight), true
}
