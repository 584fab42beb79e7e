package analysis

import (
	"math"
	"testing"
)

func TestResampleHeatmapInterpolates(t *testing.T) {
	samples := []HeatmapSample{
		{TimeSeconds: 20, Intensity: 0.8},
		{TimeSeconds: 10, Intensity: 0.2},
	}

	out := ResampleHeatmap(samples, 300, 10)
	if len(out) != 300 {
		t.Fatalf("Expected 300 frames, got %d", len(out))
	}

	tests := []struct {
		frame    int
		expected float64
	}{
		{50, 0},    // before the supplied range
		{100, 0.2}, // first sample
		{150, 0.5}, // halfway
		{200, 0.8}, // last sample
		{250, 0},   // after the supplied range
	}
	for _, tt := range tests {
		if math.Abs(out[tt.frame]-tt.expected) > 1e-9 {
			t.Errorf("Frame %d: expected %v, got %v", tt.frame, tt.expected, out[tt.frame])
		}
	}

	// Input order is left untouched
	if samples[0].TimeSeconds != 20 {
		t.Error("Expected input slice not to be reordered")
	}
}

func TestResampleHeatmapClamps(t *testing.T) {
	samples := []HeatmapSample{
		{TimeSeconds: 0, Intensity: -0.5},
		{TimeSeconds: 10, Intensity: 1.5},
	}

	out := ResampleHeatmap(samples, 200, 10)
	if !inUnitRange(out) {
		t.Error("Expected resampled values within [0,1]")
	}
	if out[100] != 1 {
		t.Errorf("Expected clamped 1 at the last sample, got %v", out[100])
	}
	if out[0] != 0 {
		t.Errorf("Expected clamped 0 at the first sample, got %v", out[0])
	}
}

func TestResampleHeatmapEdgeCases(t *testing.T) {
	if out := ResampleHeatmap(nil, 100, 10); out != nil {
		t.Errorf("Expected nil for no samples, got %d values", len(out))
	}

	out := ResampleHeatmap([]HeatmapSample{{TimeSeconds: 2.04, Intensity: 0.6}}, 100, 10)
	for i, v := range out {
		want := 0.0
		if i == 20 {
			want = 0.6
		}
		if v != want {
			t.Fatalf("Frame %d: expected %v, got %v", i, want, v)
		}
	}
}
