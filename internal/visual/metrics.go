// Package visual extracts haze metrics from camera snapshots.
package visual

import (
	"fmt"
	"image"
	"math"
	"math/rand"
	"time"

	"golang.org/x/image/draw"

	"github.com/lox/pmforecast/internal/models"
)

const (
	edgeStep      = 2
	edgeThreshold = 15.0
	minRGAverage  = 10.0
)

// DefaultMaxDim bounds the longer side of an image before analysis.
const DefaultMaxDim = 640

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// AnalyzePixels computes haze metrics from an RGBA buffer laid out row by row
// with four bytes per pixel.
func AnalyzePixels(pix []byte, width, height int) (models.VisualMetrics, error) {
	total := width * height
	if width <= 0 || height <= 0 {
		return models.VisualMetrics{}, fmt.Errorf("invalid dimensions %dx%d", width, height)
	}
	if len(pix) < total*4 {
		return models.VisualMetrics{}, fmt.Errorf("pixel buffer has %d bytes, want %d", len(pix), total*4)
	}

	// BT.601 luma
	lum := make([]float64, total)
	var lumSum float64
	for i := 0; i < total; i++ {
		o := i * 4
		l := 0.299*float64(pix[o]) + 0.587*float64(pix[o+1]) + 0.114*float64(pix[o+2])
		lum[i] = l
		lumSum += l
	}
	brightness := lumSum / float64(total)

	var variance float64
	for _, l := range lum {
		variance += (l - brightness) * (l - brightness)
	}
	contrast := math.Min(1, math.Sqrt(variance/float64(total))/128)
	uniformity := 1 - contrast

	// Blue cast relative to the red-green average.
	var blueShift float64
	for i := 0; i < total; i++ {
		o := i * 4
		r, g, b := float64(pix[o]), float64(pix[o+1]), float64(pix[o+2])
		rg := (r + g) / 2
		if rg > minRGAverage {
			blueShift += math.Max(0, b-rg) / rg
		}
	}
	colorShift := math.Min(1, blueShift/float64(total)*5)

	var edges int
	for y := 1; y < height-1; y += edgeStep {
		for x := 1; x < width-1; x += edgeStep {
			i := y*width + x
			gx := math.Abs(lum[i+1] - lum[i-1])
			gy := math.Abs(lum[i+width] - lum[i-width])
			if gx+gy > edgeThreshold {
				edges++
			}
		}
	}
	sampled := ceilDiv(height-2, edgeStep) * ceilDiv(width-2, edgeStep)
	if sampled <= 0 {
		sampled = 1
	}
	edgeDensity := math.Min(1, float64(edges)/float64(sampled))

	haziness := clamp01((1-contrast)*0.30 + (1-edgeDensity)*0.30 + colorShift*0.20 + uniformity*0.20)

	return models.VisualMetrics{
		Contrast:             round2(contrast),
		EdgeDensity:          round2(edgeDensity),
		ColorShift:           round2(colorShift),
		Brightness:           math.Round(brightness),
		BrightnessUniformity: round2(uniformity),
		Haziness:             round2(haziness),
	}, nil
}

func ceilDiv(a, b int) int {
	if a <= 0 {
		return 0
	}
	return (a + b - 1) / b
}

// ToRGBA converts img to RGBA, scaling it down so neither side exceeds maxDim.
// A maxDim of zero or less keeps the original size.
func ToRGBA(img image.Image, maxDim int) *image.RGBA {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	if maxDim > 0 && (w > maxDim || h > maxDim) {
		scale := float64(maxDim) / float64(max(w, h))
		w = max(1, int(float64(w)*scale))
		h = max(1, int(float64(h)*scale))
		dst := image.NewRGBA(image.Rect(0, 0, w, h))
		draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
		return dst
	}

	if rgba, ok := img.(*image.RGBA); ok && rgba.Rect.Min == (image.Point{}) && rgba.Stride == w*4 {
		return rgba
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}

// AnalyzeImage computes haze metrics for a decoded image.
func AnalyzeImage(img image.Image, maxDim int) (models.VisualMetrics, error) {
	rgba := ToRGBA(img, maxDim)
	b := rgba.Bounds()
	return AnalyzePixels(rgba.Pix, b.Dx(), b.Dy())
}

// Confidence rates how far the metrics can be trusted. Night, twilight and
// overexposed frames score low; a frame with almost no edges is likely an
// obstructed or broken camera.
func Confidence(m models.VisualMetrics) float64 {
	c := 1.0
	switch {
	case m.Brightness < 40:
		c = 0.2
	case m.Brightness < 70:
		c = 0.5
	case m.Brightness > 230:
		c = 0.3
	}
	if m.EdgeDensity < 0.05 {
		c *= 0.5
	}
	return round2(c)
}

// VisibilityGrade maps haziness onto the air quality scale.
func VisibilityGrade(haziness float64) models.Grade {
	switch {
	case haziness < 0.3:
		return models.GradeGood
	case haziness < 0.5:
		return models.GradeModerate
	case haziness < 0.7:
		return models.GradeBad
	}
	return models.GradeVeryBad
}

// EstimatedPM25 returns the PM2.5 range a given haziness usually corresponds to.
func EstimatedPM25(haziness float64) models.PM25Range {
	switch {
	case haziness < 0.3:
		return models.PM25Range{Min: 0, Max: 15}
	case haziness < 0.5:
		return models.PM25Range{Min: 15, Max: 35}
	case haziness < 0.7:
		return models.PM25Range{Min: 35, Max: 75}
	}
	return models.PM25Range{Min: 75, Max: 150}
}

// Analyze produces a full analysis result for one station snapshot.
func Analyze(station models.CCTVStation, img image.Image, at time.Time) (models.VisualAnalysisResult, error) {
	m, err := AnalyzeImage(img, DefaultMaxDim)
	if err != nil {
		return models.VisualAnalysisResult{}, fmt.Errorf("analyze %s: %w", station.ID, err)
	}
	return models.VisualAnalysisResult{
		StationID:       station.ID,
		StationName:     station.Name,
		Timestamp:       at,
		SnapshotURL:     station.SnapshotURL,
		Metrics:         m,
		VisibilityGrade: VisibilityGrade(m.Haziness),
		EstimatedPM25:   EstimatedPM25(m.Haziness),
		Confidence:      Confidence(m),
	}, nil
}

const (
	mockConfidence  = 0.75
	defaultMockPM25 = 25.0
)

var mockSnapshots = [...]string{"clear", "moderate", "hazy", "very-hazy"}

// MockAnalysis fabricates a plausible analysis from the current PM2.5 level
// for stations without a live feed. A negative pm25 means unknown.
func MockAnalysis(station models.CCTVStation, pm25 float64, at time.Time, rng *rand.Rand) models.VisualAnalysisResult {
	if pm25 < 0 {
		pm25 = defaultMockPM25
	}
	jitter := (rng.Float64() - 0.5) * 0.1

	var haze float64
	switch {
	case pm25 < 15:
		haze = 0.15
	case pm25 < 35:
		haze = 0.35
	case pm25 < 75:
		haze = 0.55
	default:
		haze = 0.75
	}
	haze = clamp01(haze + jitter)

	grade := VisibilityGrade(haze)
	return models.VisualAnalysisResult{
		StationID:   station.ID,
		StationName: station.Name,
		Timestamp:   at,
		SnapshotURL: fmt.Sprintf("/mock-cctv/%s.jpg", mockSnapshots[grade.Rank()]),
		Metrics: models.VisualMetrics{
			Contrast:             round2((1 - haze) * 0.8),
			EdgeDensity:          round2((1 - haze) * 0.6),
			ColorShift:           round2(haze * 0.5),
			Brightness:           math.Round(120 + haze*60),
			BrightnessUniformity: round2(haze * 0.7),
			Haziness:             round2(haze),
		},
		VisibilityGrade: grade,
		EstimatedPM25:   EstimatedPM25(haze),
		Confidence:      mockConfidence,
	}
}
