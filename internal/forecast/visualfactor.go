package forecast

import "github.com/lox/pmforecast/internal/models"

const (
	minVisualConfidence = 0.4
	visualInfluence     = 0.3
	hazeNeutralPoint    = 0.3
)

const noVisualData = "no data"

// ComputeVisual aggregates camera analyses into a damped correction.
// Analyses below the confidence cut-off are ignored.
func ComputeVisual(analyses []models.VisualAnalysisResult) models.VisualBreakdown {
	var weightedHaze, totalWeight float64
	var count int
	for _, a := range analyses {
		if a.Confidence < minVisualConfidence {
			continue
		}
		weightedHaze += a.Metrics.Haziness * a.Confidence
		totalWeight += a.Confidence
		count++
	}

	if count == 0 {
		return models.VisualBreakdown{CombinedFactor: 1.0, Summary: noVisualData}
	}

	haze := weightedHaze / totalWeight

	// 0 -> 0.85, 0.3 -> 1.0, 1.0 -> 1.4
	var raw float64
	if haze < hazeNeutralPoint {
		raw = 0.85 + (haze/hazeNeutralPoint)*0.15
	} else {
		raw = 1.0 + ((haze-hazeNeutralPoint)/(1-hazeNeutralPoint))*0.4
	}

	factor := clamp(1.0+(raw-1.0)*visualInfluence, minVisualFactor, maxVisualFactor)

	var summary string
	switch {
	case haze < 0.3:
		summary = "cameras show clear air"
	case haze < 0.5:
		summary = "cameras show slight haze"
	case haze < 0.7:
		summary = "cameras show noticeable particulate haze"
	default:
		summary = "cameras show heavy haze or fog"
	}

	return models.VisualBreakdown{
		CombinedFactor: round2(factor),
		Haziness:       round2(haze),
		CameraCount:    count,
		Summary:        summary,
	}
}
