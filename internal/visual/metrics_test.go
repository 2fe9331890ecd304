package visual

import (
	"image"
	"image/color"
	"math/rand"
	"testing"
	"time"

	"github.com/lox/pmforecast/internal/models"
)

func solidImage(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

// stripedImage alternates black and white columns two pixels wide.
func stripedImage(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.RGBA{A: 255}
			if (x/2)%2 == 1 {
				c = color.RGBA{255, 255, 255, 255}
			}
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func TestAnalyzePixels(t *testing.T) {
	tests := []struct {
		name string
		img  *image.RGBA
		want models.VisualMetrics
	}{
		{
			name: "flat grey",
			img:  solidImage(100, 100, color.RGBA{128, 128, 128, 255}),
			want: models.VisualMetrics{
				Contrast:             0,
				EdgeDensity:          0,
				ColorShift:           0,
				Brightness:           128,
				BrightnessUniformity: 1,
				Haziness:             0.8,
			},
		},
		{
			name: "high contrast stripes",
			img:  stripedImage(40, 40),
			want: models.VisualMetrics{
				Contrast:             1,
				EdgeDensity:          1,
				ColorShift:           0,
				Brightness:           128,
				BrightnessUniformity: 0,
				Haziness:             0,
			},
		},
		{
			name: "blue cast",
			img:  solidImage(20, 20, color.RGBA{100, 100, 200, 255}),
			want: models.VisualMetrics{
				Contrast:             0,
				EdgeDensity:          0,
				ColorShift:           1,
				Brightness:           111,
				BrightnessUniformity: 1,
				Haziness:             1,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := tt.img.Bounds()
			got, err := AnalyzePixels(tt.img.Pix, b.Dx(), b.Dy())
			if err != nil {
				t.Fatalf("AnalyzePixels: %v", err)
			}
			if got != tt.want {
				t.Errorf("AnalyzePixels() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestAnalyzePixelsErrors(t *testing.T) {
	if _, err := AnalyzePixels(nil, 0, 10); err == nil {
		t.Error("AnalyzePixels with zero width: error = nil")
	}
	if _, err := AnalyzePixels(make([]byte, 10), 4, 4); err == nil {
		t.Error("AnalyzePixels with short buffer: error = nil")
	}
}

func TestAnalyzePixelsTinyImage(t *testing.T) {
	img := solidImage(2, 2, color.RGBA{90, 90, 90, 255})
	got, err := AnalyzePixels(img.Pix, 2, 2)
	if err != nil {
		t.Fatalf("AnalyzePixels: %v", err)
	}
	if got.EdgeDensity != 0 {
		t.Errorf("EdgeDensity = %v, want 0", got.EdgeDensity)
	}
}

func TestToRGBA(t *testing.T) {
	tests := []struct {
		name         string
		img          image.Image
		maxDim       int
		wantW, wantH int
	}{
		{"downscale landscape", solidImage(1280, 720, color.RGBA{50, 50, 50, 255}), 640, 640, 360},
		{"downscale portrait", solidImage(300, 900, color.RGBA{50, 50, 50, 255}), 300, 100, 300},
		{"small kept", solidImage(200, 100, color.RGBA{50, 50, 50, 255}), 640, 200, 100},
		{"no limit", solidImage(800, 600, color.RGBA{50, 50, 50, 255}), 0, 800, 600},
		{"grey converted", image.NewGray(image.Rect(10, 10, 30, 20)), 640, 20, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ToRGBA(tt.img, tt.maxDim)
			if got.Bounds().Dx() != tt.wantW || got.Bounds().Dy() != tt.wantH {
				t.Errorf("ToRGBA() size = %dx%d, want %dx%d", got.Bounds().Dx(), got.Bounds().Dy(), tt.wantW, tt.wantH)
			}
			if got.Bounds().Min != (image.Point{}) {
				t.Errorf("ToRGBA() origin = %v, want (0,0)", got.Bounds().Min)
			}
		})
	}
}

func TestConfidence(t *testing.T) {
	tests := []struct {
		name       string
		brightness float64
		edges      float64
		want       float64
	}{
		{"daylight", 128, 0.3, 1.0},
		{"night", 30, 0.3, 0.2},
		{"twilight", 60, 0.3, 0.5},
		{"overexposed", 240, 0.3, 0.3},
		{"obstructed", 128, 0.01, 0.5},
		{"obstructed at night", 30, 0.01, 0.1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := models.VisualMetrics{Brightness: tt.brightness, EdgeDensity: tt.edges}
			if got := Confidence(m); got != tt.want {
				t.Errorf("Confidence() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestVisibilityGradeAndEstimate(t *testing.T) {
	tests := []struct {
		haziness  float64
		wantGrade models.Grade
		wantRange models.PM25Range
	}{
		{0.1, models.GradeGood, models.PM25Range{Min: 0, Max: 15}},
		{0.3, models.GradeModerate, models.PM25Range{Min: 15, Max: 35}},
		{0.6, models.GradeBad, models.PM25Range{Min: 35, Max: 75}},
		{0.7, models.GradeVeryBad, models.PM25Range{Min: 75, Max: 150}},
	}

	for _, tt := range tests {
		if got := VisibilityGrade(tt.haziness); got != tt.wantGrade {
			t.Errorf("VisibilityGrade(%v) = %v, want %v", tt.haziness, got, tt.wantGrade)
		}
		if got := EstimatedPM25(tt.haziness); got != tt.wantRange {
			t.Errorf("EstimatedPM25(%v) = %+v, want %+v", tt.haziness, got, tt.wantRange)
		}
	}
}

func TestAnalyze(t *testing.T) {
	station := models.CCTVStation{ID: "seoul-01", Name: "Gangbyeon", SnapshotURL: "http://cams/1.jpg"}
	at := time.Date(2025, 4, 15, 9, 0, 0, 0, time.UTC)

	got, err := Analyze(station, solidImage(64, 48, color.RGBA{128, 128, 128, 255}), at)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if got.StationID != "seoul-01" || got.SnapshotURL != station.SnapshotURL || !got.Timestamp.Equal(at) {
		t.Errorf("Analyze() identity = %+v", got)
	}
	if got.VisibilityGrade != models.GradeVeryBad {
		t.Errorf("VisibilityGrade = %v, want veryBad for a flat frame", got.VisibilityGrade)
	}
	if got.Confidence != 0.5 {
		t.Errorf("Confidence = %v, want 0.5 for an edgeless frame", got.Confidence)
	}
}

func TestMockAnalysis(t *testing.T) {
	station := models.CCTVStation{ID: "busan-01", Name: "Haeundae"}
	at := time.Date(2025, 4, 15, 9, 0, 0, 0, time.UTC)
	rng := rand.New(rand.NewSource(1))

	tests := []struct {
		name      string
		pm25      float64
		wantGrade models.Grade
		wantURL   string
		lo, hi    float64
	}{
		{"clean", 10, models.GradeGood, "/mock-cctv/clear.jpg", 0.10, 0.20},
		{"unknown uses default", -1, models.GradeModerate, "/mock-cctv/moderate.jpg", 0.30, 0.40},
		{"polluted", 50, models.GradeBad, "/mock-cctv/hazy.jpg", 0.50, 0.60},
		{"severe", 120, models.GradeVeryBad, "/mock-cctv/very-hazy.jpg", 0.70, 0.80},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MockAnalysis(station, tt.pm25, at, rng)
			if h := got.Metrics.Haziness; h < tt.lo || h > tt.hi {
				t.Errorf("Haziness = %v, want within [%v, %v]", h, tt.lo, tt.hi)
			}
			if got.VisibilityGrade != tt.wantGrade {
				t.Errorf("VisibilityGrade = %v, want %v", got.VisibilityGrade, tt.wantGrade)
			}
			if got.SnapshotURL != tt.wantURL {
				t.Errorf("SnapshotURL = %q, want %q", got.SnapshotURL, tt.wantURL)
			}
			if got.Confidence != mockConfidence {
				t.Errorf("Confidence = %v, want %v", got.Confidence, mockConfidence)
			}
		})
	}
}
