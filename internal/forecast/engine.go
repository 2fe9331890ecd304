package forecast

import (
	"strings"

	"github.com/lox/pmforecast/internal/models"
)

const (
	minHistoryDays   = 3
	trendThreshold   = 5.0
	correctionJoiner = " / "
)

// PredictionInput is everything the engine needs for one city and day.
// Tomorrow is the external baseline forecast; the rest is optional.
type PredictionInput struct {
	Today    *models.DailyRecord
	Tomorrow *models.DailyRecord
	History  []models.DailyRecord
	Weather  *models.WeatherObservation
	Hourly   []models.HourlyRecord
	Visual   []models.VisualAnalysisResult
}

// Engine produces corrected next-day forecasts. It holds no mutable state
// and is safe for concurrent use.
type Engine struct {
	industrial  *IndustrialModel
	trendWeight float64
}

type Option func(*Engine)

// WithHolidayCalendar replaces the built-in holiday table.
func WithHolidayCalendar(cal *HolidayCalendar) Option {
	return func(e *Engine) {
		e.industrial = NewIndustrialModel(cal)
	}
}

// WithTrendWeight sets how much of the Theil-Sen slope is added to the WMA.
func WithTrendWeight(w float64) Option {
	return func(e *Engine) {
		e.trendWeight = w
	}
}

func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		industrial:  NewIndustrialModel(nil),
		trendWeight: DefaultTrendWeight,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Predict corrects the baseline forecast for tomorrow. It returns false when
// there is no baseline to correct.
func (e *Engine) Predict(in PredictionInput) (models.PredictionResult, bool) {
	if in.Tomorrow == nil {
		return models.PredictionResult{}, false
	}
	baseline := *in.Tomorrow

	pm25 := baseline.PM25Avg
	pm10 := baseline.PM10Avg
	ratio := DefaultBlendRatio

	if len(in.History) >= minHistoryDays {
		sorted := sortByDate(in.History)
		recent := recentWindow(sorted, in.Today)

		ratio = BlendRatio(sorted, baseline, e.trendWeight).Ratio

		if smoothed, ok := SmoothedPrediction(recent, models.PM25, e.trendWeight); ok {
			pm25 = Blend(smoothed, baseline.PM25Avg, ratio)
		}
		if smoothed, ok := SmoothedPrediction(recent, models.PM10, e.trendWeight); ok {
			pm10 = Blend(smoothed, baseline.PM10Avg, ratio)
		}
	}

	industrial := e.industrial.Compute(industrialInput(baseline, in.Weather))

	var weather models.WeatherBreakdown
	if in.Weather != nil {
		weather = ComputeWeather(*in.Weather, in.Hourly)
	} else {
		weather = ComputeWeather(models.WeatherObservation{}, in.Hourly)
	}

	var visual *models.VisualBreakdown
	visualFactor := 1.0
	if len(in.Visual) > 0 {
		v := ComputeVisual(in.Visual)
		visual = &v
		visualFactor = v.CombinedFactor
	}

	total := ComposeFactors(industrial.CombinedFactor, weather.CombinedFactor, visualFactor)
	pm25 = applyFactor(pm25, total)
	pm10 = applyFactor(pm10, total)

	var todayPM25 float64
	if in.Today != nil {
		todayPM25 = in.Today.PM25Avg
	}
	trend := trendFor(pm25 - todayPM25)
	grade := OverallGrade(GradeFor(pm25, models.PM25), GradeFor(pm10, models.PM10))

	return models.PredictionResult{
		TomorrowGrade: grade,
		Trend:         trend,
		PredictedPM25: pm25,
		PredictedPM10: pm10,
		Message:       message(trend, grade, industrial, weather, visual),
		BlendRatio:    round2(ratio),
		TotalFactor:   round2(total),
		Industrial:    industrial,
		Weather:       weather,
		Visual:        visual,
	}, true
}

// Accuracy backtests the engine's smoother over history.
func (e *Engine) Accuracy(history []models.DailyRecord) (models.AccuracyResult, bool) {
	return EvaluateAccuracy(history, e.trendWeight)
}

func industrialInput(baseline models.DailyRecord, w *models.WeatherObservation) IndustrialInput {
	in := IndustrialInput{Date: baseline.Date}
	if w != nil {
		in.WindDirection = w.WindDirection
		in.WindSpeed = w.WindSpeed
	}
	return in
}

func trendFor(diff float64) models.Trend {
	switch {
	case diff > trendThreshold:
		return models.TrendWorsening
	case diff < -trendThreshold:
		return models.TrendImproving
	}
	return models.TrendStable
}

func message(trend models.Trend, grade models.Grade, industrial models.IndustrialBreakdown, weather models.WeatherBreakdown, visual *models.VisualBreakdown) string {
	var b strings.Builder

	switch trend {
	case models.TrendWorsening:
		b.WriteString("Particulate levels are expected to rise tomorrow. Wearing a mask outdoors is recommended.")
	case models.TrendImproving:
		b.WriteString("Particulate levels are expected to fall tomorrow. A good day to air out your home.")
	default:
		b.WriteString("Particulate levels tomorrow are expected to be similar to today.")
	}

	if grade == models.GradeBad || grade == models.GradeVeryBad {
		b.WriteString(" Please limit outdoor activity.")
	}

	var corrections []string
	if industrial.Summary != noSpecialCorrection {
		corrections = append(corrections, industrial.Summary)
	}
	if weather.Summary != noSpecialWeatherCorrection {
		corrections = append(corrections, weather.Summary)
	}
	if visual != nil && visual.Summary != noVisualData {
		corrections = append(corrections, visual.Summary)
	}
	if len(corrections) > 0 {
		b.WriteString(" (correction: ")
		b.WriteString(strings.Join(corrections, correctionJoiner))
		b.WriteString(")")
	}

	return b.String()
}
