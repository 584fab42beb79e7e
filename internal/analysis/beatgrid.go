package analysis

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"

	"github.com/austinkregel/local-media/mixd/internal/config"
)

// fallbackTempo is reported when no periodicity is found
const fallbackTempo = 120.0

// BeatGrid holds the detected tempo, beats and phrase boundaries of a song
type BeatGrid struct {
	TempoBPM         float64
	BeatTimes        []float64 // seconds, strictly increasing
	PhraseBoundaries []float64 // seconds, ascending
	SearchRadius     float64
}

// HasBeats reports whether any beat was detected
func (g *BeatGrid) HasBeats() bool {
	return g != nil && len(g.BeatTimes) > 0
}

// NearestBeatAtOrAfter returns the first beat at or after t within the search radius
func (g *BeatGrid) NearestBeatAtOrAfter(t float64) (float64, error) {
	if v, ok := atOrAfter(g.BeatTimes, t, g.SearchRadius); ok {
		return v, nil
	}
	return 0, &NoBeatFoundError{Time: t, Direction: SearchAfter, Radius: g.SearchRadius}
}

// NearestBeatAtOrBefore returns the last beat at or before t within the search radius
func (g *BeatGrid) NearestBeatAtOrBefore(t float64) (float64, error) {
	if v, ok := atOrBefore(g.BeatTimes, t, g.SearchRadius); ok {
		return v, nil
	}
	return 0, &NoBeatFoundError{Time: t, Direction: SearchBefore, Radius: g.SearchRadius}
}

// NearestPhraseAtOrAfter returns the first phrase boundary at or after t within the search radius
func (g *BeatGrid) NearestPhraseAtOrAfter(t float64) (float64, bool) {
	return atOrAfter(g.PhraseBoundaries, t, g.SearchRadius)
}

// NearestPhraseAtOrBefore returns the last phrase boundary at or before t within the search radius
func (g *BeatGrid) NearestPhraseAtOrBefore(t float64) (float64, bool) {
	return atOrBefore(g.PhraseBoundaries, t, g.SearchRadius)
}

func atOrAfter(times []float64, t, radius float64) (float64, bool) {
	i := sort.SearchFloat64s(times, t)
	if i < len(times) && times[i]-t <= radius {
		return times[i], true
	}
	return 0, false
}

func atOrBefore(times []float64, t, radius float64) (float64, bool) {
	i := sort.Search(len(times), func(i int) bool { return times[i] > t })
	if i > 0 && t-times[i-1] <= radius {
		return times[i-1], true
	}
	return 0, false
}

// DetectBeatGrid estimates tempo and beat positions from the onset envelope
// and phrase boundaries from troughs in the volume.
func DetectBeatGrid(f *WaveformFeatures, cfg config.AnalysisConfig) *BeatGrid {
	n := f.Len()
	grid := &BeatGrid{
		TempoBPM:     fallbackTempo,
		SearchRadius: cfg.BeatSearchRadiusSeconds,
	}
	if n == 0 {
		return grid
	}

	onset := f.RhythmicPunch[:n]
	if period, ok := estimatePeriod(onset, f.FramesPerSecond, cfg.MinBPM, cfg.MaxBPM); ok {
		period = foldPeriod(period, f.FramesPerSecond, cfg.MinBPM, cfg.MaxBPM)
		grid.TempoBPM = clampTempo(60*f.FramesPerSecond/period, cfg.MinBPM, cfg.MaxBPM)
		grid.BeatTimes = trackBeats(onset, period, f.FramesPerSecond)
	}

	grid.PhraseBoundaries = detectPhraseBoundaries(f.Volume[:n], f.FramesPerSecond, cfg)
	return grid
}

// estimatePeriod finds the beat period in frames by weighted autocorrelation
func estimatePeriod(onset []float64, fps, minBPM, maxBPM float64) (float64, bool) {
	if floats.Max(onset) <= 0 {
		return 0, false
	}

	minLag := int(math.Floor(60 * fps / maxBPM))
	maxLag := int(math.Ceil(60 * fps / minBPM))
	if minLag < 1 {
		minLag = 1
	}
	if maxLag >= len(onset)/2 {
		maxLag = len(onset)/2 - 1
	}
	if maxLag < minLag {
		return 0, false
	}

	corr := make([]float64, maxLag+2)
	bestLag := -1
	bestCorr := 0.0
	for lag := minLag; lag <= maxLag+1 && lag < len(onset); lag++ {
		var sum float64
		count := len(onset) - lag
		for i := 0; i < count; i++ {
			sum += onset[i] * onset[i+lag]
		}
		sum /= float64(count)

		// Bias towards 120 BPM to avoid octave errors
		bpm := 60 * fps / float64(lag)
		weight := math.Exp(-0.5 * math.Pow((bpm-120.0)/40.0, 2))
		corr[lag] = sum * (0.8 + 0.2*weight)

		if lag <= maxLag && corr[lag] > bestCorr {
			bestCorr = corr[lag]
			bestLag = lag
		}
	}
	if bestLag < 0 {
		return 0, false
	}

	// Parabolic refinement around the peak
	period := float64(bestLag)
	if bestLag > minLag && bestLag+1 < len(corr) {
		a, b, c := corr[bestLag-1], corr[bestLag], corr[bestLag+1]
		if denom := a - 2*b + c; denom < 0 {
			period += math.Max(-0.5, math.Min(0.5, 0.5*(a-c)/denom))
		}
	}
	return period, true
}

// foldPeriod doubles or halves the beat period until its tempo lies within
// [minBPM, maxBPM], stopping if a step would overshoot the other bound
func foldPeriod(period, fps, minBPM, maxBPM float64) float64 {
	bpm := func(p float64) float64 { return 60 * fps / p }
	for bpm(period) > maxBPM && bpm(period*2) >= minBPM {
		period *= 2
	}
	for bpm(period) < minBPM && bpm(period/2) <= maxBPM {
		period /= 2
	}
	return period
}

// clampTempo rounds to 0.1 BPM and keeps the result within [minBPM, maxBPM]
func clampTempo(bpm, minBPM, maxBPM float64) float64 {
	return math.Max(minBPM, math.Min(maxBPM, math.Round(bpm*10)/10))
}

// trackBeats lays a beat grid at the phase that best matches the onsets,
// nudging each beat to the strongest nearby onset.
func trackBeats(onset []float64, period, fps float64) []float64 {
	n := len(onset)

	bestPhase := 0
	bestScore := -1.0
	for phase := 0; phase < int(math.Ceil(period)) && phase < n; phase++ {
		var score float64
		for pos := float64(phase); pos < float64(n); pos += period {
			score += onset[int(math.Round(pos))%n]
		}
		if score > bestScore {
			bestScore = score
			bestPhase = phase
		}
	}

	reach := int(math.Round(period * 0.1))
	if reach < 1 {
		reach = 1
	}

	var beats []float64
	last := -1
	for pos := float64(bestPhase); pos < float64(n); pos += period {
		center := int(math.Round(pos))
		if center >= n {
			break
		}
		frame := center
		for j := center - reach; j <= center+reach; j++ {
			if j >= 0 && j < n && onset[j] > onset[frame] {
				frame = j
			}
		}
		if frame <= last {
			continue
		}
		last = frame
		beats = append(beats, float64(frame)/fps)
	}
	return beats
}

// detectPhraseBoundaries returns times of quiet local minima in the volume
func detectPhraseBoundaries(volume []float64, fps float64, cfg config.AnalysisConfig) []float64 {
	if len(volume) < 3 {
		return nil
	}

	smooth := movingAverage(volume, 5)
	lo, hi := floats.Min(smooth), floats.Max(smooth)
	if hi-lo <= normEpsilon {
		return nil
	}
	threshold := lo + cfg.PhraseThreshold*(hi-lo)
	spacing := int(math.Round(cfg.MinPhraseSpacingSeconds * fps))

	var minima []int
	for i := 1; i < len(smooth)-1; i++ {
		if smooth[i] > threshold || smooth[i] > smooth[i-1] || smooth[i] >= smooth[i+1] {
			continue
		}
		if k := len(minima); k > 0 && i-minima[k-1] < spacing {
			if smooth[i] < smooth[minima[k-1]] {
				minima[k-1] = i
			}
			continue
		}
		minima = append(minima, i)
	}

	times := make([]float64, len(minima))
	for i, frame := range minima {
		times[i] = float64(frame) / fps
	}
	return times
}
