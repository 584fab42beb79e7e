package analysis

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"

	"github.com/austinkregel/local-media/mixd/internal/config"
	"github.com/austinkregel/local-media/mixd/internal/types"
)

// Scoring sources for the hybrid decision
const (
	SourceEnergy  = "energy"
	SourceHeatmap = "heatmap"
)

// candidateWindow is a scored frame range [startFrame, endFrame)
type candidateWindow struct {
	startFrame int
	endFrame   int
	rawScore   float64
}

// Selection is the outcome of segment selection for one song
type Selection struct {
	Segments  []types.Segment
	Status    types.AnalysisStatus
	Source    string
	PeakScore float64
	Band      config.DurationBand
}

// SegmentSelector picks beat-aligned high-value windows from a song
type SegmentSelector struct {
	cfg config.AnalysisConfig
}

// NewSegmentSelector creates a selector with the given policy
func NewSegmentSelector(cfg config.AnalysisConfig) *SegmentSelector {
	return &SegmentSelector{cfg: cfg}
}

// Select chooses up to MaxSegments windows. heat is the resampled heatmap
// (nil when absent) and grid may be nil or empty, which disables snapping.
func (s *SegmentSelector) Select(curve EnergyCurve, heat []float64, grid *BeatGrid) Selection {
	n := curve.Len()
	if n == 0 {
		return Selection{Status: types.StatusNoSegments, Source: SourceEnergy, Band: s.cfg.DurationBands[len(s.cfg.DurationBands)-1]}
	}
	horizon := curve.FramesIn(s.cfg.HorizonSeconds)
	if horizon == 0 {
		horizon = n
	}

	scoring, limit, source := curve.Values, n, SourceEnergy
	if s.useHeatmap(curve.Values[:horizon], heat) {
		scoring, limit, source = heat, horizon, SourceHeatmap
		if limit > len(heat) {
			limit = len(heat)
		}
	}

	peak := floats.Max(scoring[:min(horizon, len(scoring))])
	band := s.bandFor(peak)
	sel := Selection{Status: types.StatusNoSegments, Source: source, PeakScore: peak, Band: band}

	candidates := s.candidates(scoring[:limit], curve.FramesPerSecond, band)
	picked := s.pick(candidates, curve.FramesPerSecond)
	if len(picked) == 0 {
		return sel
	}

	sel.Segments = s.finalize(picked, curve, grid, band)
	sel.Status = types.StatusComplete
	return sel
}

// useHeatmap is the per-song hybrid decision
func (s *SegmentSelector) useHeatmap(audio, heat []float64) bool {
	if len(heat) == 0 {
		return false
	}
	end := min(len(audio), len(heat))
	if end == 0 {
		return false
	}
	heatmapPeak := floats.Max(heat[:end])
	maxAudioEnergy := floats.Max(audio)
	return heatmapPeak > s.cfg.HeatmapRelativeThreshold*maxAudioEnergy ||
		heatmapPeak > s.cfg.HeatmapAbsoluteThreshold
}

// bandFor returns the first band whose threshold the peak exceeds
func (s *SegmentSelector) bandFor(peak float64) config.DurationBand {
	for _, b := range s.cfg.DurationBands {
		if peak > b.MinScore {
			return b
		}
	}
	return s.cfg.DurationBands[len(s.cfg.DurationBands)-1]
}

// candidates slides windows of every band length across the signal
func (s *SegmentSelector) candidates(signal []float64, fps float64, band config.DurationBand) []candidateWindow {
	minFrames := int(math.Ceil(band.MinSeconds * fps))
	maxFrames := int(math.Floor(band.MaxSeconds * fps))
	if maxFrames < minFrames {
		maxFrames = minFrames
	}
	step := int(math.Round(s.cfg.WindowStepSeconds * fps))
	if step < 1 {
		step = 1
	}

	var lengths []int
	for l := minFrames; l < maxFrames; l += step {
		lengths = append(lengths, l)
	}
	lengths = append(lengths, maxFrames)

	prefix := make([]float64, len(signal)+1)
	floats.CumSum(prefix[1:], signal)

	var out []candidateWindow
	for _, length := range lengths {
		if length > len(signal) {
			continue
		}
		hop := length / 4
		if hop < 1 {
			hop = 1
		}
		for start := 0; start+length <= len(signal); start += hop {
			end := start + length
			out = append(out, candidateWindow{
				startFrame: start,
				endFrame:   end,
				rawScore:   (prefix[end] - prefix[start]) / float64(length),
			})
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.rawScore != b.rawScore {
			return a.rawScore > b.rawScore
		}
		if a.startFrame != b.startFrame {
			return a.startFrame < b.startFrame
		}
		return a.endFrame-a.startFrame > b.endFrame-b.startFrame
	})
	return out
}

// pick greedily accepts candidates that keep the minimum gap to every accepted window
func (s *SegmentSelector) pick(candidates []candidateWindow, fps float64) []candidateWindow {
	gap := int(math.Ceil(s.cfg.MinGapSeconds * fps))

	picked := make([]candidateWindow, 0, s.cfg.MaxSegments)
	for _, c := range candidates {
		if len(picked) == s.cfg.MaxSegments {
			break
		}
		ok := true
		for _, p := range picked {
			if c.startFrame < p.endFrame+gap && p.startFrame < c.endFrame+gap {
				ok = false
				break
			}
		}
		if ok {
			picked = append(picked, c)
		}
	}
	return picked
}

// finalize snaps, orders and labels the picked windows
func (s *SegmentSelector) finalize(picked []candidateWindow, curve EnergyCurve, grid *BeatGrid, band config.DurationBand) []types.Segment {
	primary := 0
	for i, p := range picked {
		if p.rawScore > picked[primary].rawScore ||
			(p.rawScore == picked[primary].rawScore && p.startFrame < picked[primary].startFrame) {
			primary = i
		}
	}

	type placed struct {
		seg   types.Segment
		start int
	}
	segs := make([]placed, len(picked))
	for i, p := range picked {
		rawStart, rawEnd := curve.FrameTime(p.startFrame), curve.FrameTime(p.endFrame)
		start, end := rawStart, rawEnd
		if grid.HasBeats() {
			start, end = s.snap(rawStart, rawEnd, grid, band.MinSeconds)
		}
		segs[i] = placed{
			start: p.startFrame,
			seg: types.Segment{
				StartTime:       start,
				EndTime:         end,
				DurationSeconds: end - start,
				EnergyScore:     math.Round(p.rawScore*1000) / 10,
				IsPrimary:       i == primary,
			},
		}
	}

	sort.SliceStable(segs, func(i, j int) bool { return segs[i].start < segs[j].start })

	out := make([]types.Segment, len(segs))
	for i, p := range segs {
		out[i] = p.seg
		out[i].Label = fmt.Sprintf("segment_%d", i+1)
	}
	return out
}

// snap moves the start forward and the end backward onto beats, preferring a
// phrase boundary when it disagrees with the beat. An edge keeps its raw time
// when snapping it would drop below the minimum duration.
func (s *SegmentSelector) snap(rawStart, rawEnd float64, grid *BeatGrid, minDuration float64) (float64, float64) {
	start := rawStart
	if beat, err := grid.NearestBeatAtOrAfter(rawStart); err == nil {
		start = beat
		if phrase, ok := grid.NearestPhraseAtOrAfter(rawStart); ok && math.Abs(phrase-beat) > s.cfg.PhraseToleranceSeconds {
			start = phrase
		}
	}

	end := rawEnd
	if beat, err := grid.NearestBeatAtOrBefore(rawEnd); err == nil {
		end = beat
		if phrase, ok := grid.NearestPhraseAtOrBefore(rawEnd); ok && math.Abs(phrase-beat) > s.cfg.PhraseToleranceSeconds {
			end = phrase
		}
	}

	if rawEnd-start < minDuration {
		start = rawStart
	}
	if end-start < minDuration {
		end = rawEnd
	}
	return start, end
}
