package analysis

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/austinkregel/local-media/mixd/internal/config"
)

// EnergyCurve is a smoothed composite energy value in [0,1] per frame
type EnergyCurve struct {
	Values          []float64
	FramesPerSecond float64
}

// Len returns the number of frames
func (c EnergyCurve) Len() int {
	return len(c.Values)
}

// Duration returns the curve length in seconds
func (c EnergyCurve) Duration() float64 {
	return float64(len(c.Values)) / c.FramesPerSecond
}

// FrameTime converts a frame index to seconds
func (c EnergyCurve) FrameTime(frame int) float64 {
	return float64(frame) / c.FramesPerSecond
}

// FramesIn returns how many whole frames fit into the given seconds, capped at the curve length
func (c EnergyCurve) FramesIn(seconds float64) int {
	n := int(seconds * c.FramesPerSecond)
	if n > len(c.Values) {
		n = len(c.Values)
	}
	if n < 0 {
		n = 0
	}
	return n
}

// Mean returns the mean energy of the whole curve
func (c EnergyCurve) Mean() float64 {
	if len(c.Values) == 0 {
		return 0
	}
	return stat.Mean(c.Values, nil)
}

// BuildEnergyCurve combines the features with the configured weights and smooths the result
func BuildEnergyCurve(f *WaveformFeatures, cfg config.AnalysisConfig) EnergyCurve {
	n := f.Len()
	combined := make([]float64, n)
	w := cfg.Weights
	for i := 0; i < n; i++ {
		combined[i] = w.Volume*f.Volume[i] + w.Brightness*f.Brightness[i] + w.Punch*f.RhythmicPunch[i]
	}

	width := smoothingWidth(n, cfg.SmoothingSeconds*f.FramesPerSecond)
	values := movingAverage(combined, width)
	for i, v := range values {
		values[i] = math.Max(0, math.Min(1, v))
	}

	return EnergyCurve{Values: values, FramesPerSecond: f.FramesPerSecond}
}

// smoothingWidth rounds the kernel to an odd frame count no larger than n/5
func smoothingWidth(n int, frames float64) int {
	width := int(math.Round(frames))
	if limit := n / 5; width > limit {
		width = limit
	}
	if width < 1 {
		width = 1
	}
	if width%2 == 0 {
		width--
	}
	if width < 1 {
		width = 1
	}
	return width
}

// movingAverage applies a centered mean, averaging only the samples present at the edges
func movingAverage(values []float64, width int) []float64 {
	out := make([]float64, len(values))
	if width <= 1 {
		copy(out, values)
		return out
	}

	prefix := make([]float64, len(values)+1)
	floats.CumSum(prefix[1:], values)

	half := width / 2
	for i := range values {
		lo := i - half
		if lo < 0 {
			lo = 0
		}
		hi := i + half + 1
		if hi > len(values) {
			hi = len(values)
		}
		out[i] = (prefix[hi] - prefix[lo]) / float64(hi-lo)
	}
	return out
}
