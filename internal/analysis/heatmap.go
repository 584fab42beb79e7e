package analysis

import (
	"math"
	"sort"
)

// HeatmapSample is one point of crowd replay intensity
type HeatmapSample struct {
	TimeSeconds float64 `json:"time"`
	Intensity   float64 `json:"intensity"`
}

// ResampleHeatmap interpolates samples onto a frame grid. Values are clamped to
// [0,1] and frames outside the sampled range are zero. It returns nil when
// there are no samples.
func ResampleHeatmap(samples []HeatmapSample, frames int, fps float64) []float64 {
	if len(samples) == 0 || frames <= 0 {
		return nil
	}

	sorted := make([]HeatmapSample, len(samples))
	copy(sorted, samples)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].TimeSeconds < sorted[j].TimeSeconds
	})

	out := make([]float64, frames)
	if len(sorted) == 1 {
		frame := int(math.Round(sorted[0].TimeSeconds * fps))
		if frame >= 0 && frame < frames {
			out[frame] = clamp01(sorted[0].Intensity)
		}
		return out
	}

	first, last := sorted[0].TimeSeconds, sorted[len(sorted)-1].TimeSeconds
	seg := 0
	for i := range out {
		t := float64(i) / fps
		if t < first || t > last {
			continue
		}
		for seg < len(sorted)-2 && sorted[seg+1].TimeSeconds < t {
			seg++
		}
		a, b := sorted[seg], sorted[seg+1]
		v := a.Intensity
		if span := b.TimeSeconds - a.TimeSeconds; span > 0 {
			v += (b.Intensity - a.Intensity) * (t - a.TimeSeconds) / span
		}
		out[i] = clamp01(v)
	}
	return out
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
