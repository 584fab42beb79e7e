package analysis

import (
	"math"
	"testing"

	"github.com/austinkregel/local-media/mixd/internal/config"
)

func constant(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func TestBuildEnergyCurveTruncatesToShortest(t *testing.T) {
	f := &WaveformFeatures{
		Volume:          constant(100, 0.5),
		Brightness:      constant(98, 0.5),
		RhythmicPunch:   constant(99, 0.5),
		FramesPerSecond: 43,
	}

	curve := BuildEnergyCurve(f, config.DefaultAnalysisConfig())
	if curve.Len() != 98 {
		t.Errorf("Expected curve length 98, got %d", curve.Len())
	}
	if curve.FramesPerSecond != 43 {
		t.Errorf("Expected frame rate 43, got %v", curve.FramesPerSecond)
	}
}

func TestBuildEnergyCurveWeights(t *testing.T) {
	tests := []struct {
		name                      string
		volume, brightness, punch float64
		expected                  float64
	}{
		{"volume only", 1, 0, 0, 0.4},
		{"brightness only", 0, 1, 0, 0.3},
		{"punch only", 0, 0, 1, 0.3},
		{"all", 1, 1, 1, 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &WaveformFeatures{
				Volume:          constant(500, tt.volume),
				Brightness:      constant(500, tt.brightness),
				RhythmicPunch:   constant(500, tt.punch),
				FramesPerSecond: 43,
			}
			curve := BuildEnergyCurve(f, config.DefaultAnalysisConfig())
			for i, v := range curve.Values {
				if math.Abs(v-tt.expected) > 1e-9 {
					t.Fatalf("Frame %d: expected %v, got %v", i, tt.expected, v)
				}
			}
		})
	}
}

func TestBuildEnergyCurveSmooths(t *testing.T) {
	f := &WaveformFeatures{
		Volume:          constant(1000, 0),
		Brightness:      constant(1000, 0),
		RhythmicPunch:   constant(1000, 0),
		FramesPerSecond: 43,
	}
	f.Volume[500] = 1
	f.Brightness[500] = 1
	f.RhythmicPunch[500] = 1

	curve := BuildEnergyCurve(f, config.DefaultAnalysisConfig())
	if !inUnitRange(curve.Values) {
		t.Fatal("Expected curve within [0,1]")
	}
	if curve.Values[500] >= 1 {
		t.Errorf("Expected spike to be smoothed, got %v", curve.Values[500])
	}
	if curve.Values[510] == 0 {
		t.Error("Expected spike to spread to neighbors")
	}
	if math.Abs(curve.Values[500]-1.0/43.0) > 1e-9 {
		t.Errorf("Expected 1/43 at spike, got %v", curve.Values[500])
	}
}

func TestSmoothingWidth(t *testing.T) {
	tests := []struct {
		n        int
		frames   float64
		expected int
	}{
		{10000, 43.07, 43},
		{10000, 44, 43},
		{100, 43, 19},
		{3, 43, 1},
		{10000, 0, 1},
	}

	for _, tt := range tests {
		if got := smoothingWidth(tt.n, tt.frames); got != tt.expected {
			t.Errorf("smoothingWidth(%d, %v): expected %d, got %d", tt.n, tt.frames, tt.expected, got)
		}
	}
}

func TestMovingAverageEdges(t *testing.T) {
	out := movingAverage([]float64{1, 1, 1, 1, 1}, 3)
	for i, v := range out {
		if math.Abs(v-1) > 1e-12 {
			t.Errorf("Index %d: expected 1, got %v", i, v)
		}
	}
}
