// Package analysis finds musically interesting segments of songs.
//
// A song is analyzed by extracting per-frame features, combining them into
// an energy curve, detecting its beat grid and selecting up to a few
// beat-aligned windows, optionally scored by crowd replay data instead of
// the audio itself.
package analysis

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"github.com/austinkregel/local-media/mixd/internal/config"
	"github.com/austinkregel/local-media/mixd/internal/types"
)

// SongAnalysis is the result of analyzing one song
type SongAnalysis struct {
	SongID        string
	Status        types.AnalysisStatus
	TempoBPM      float64
	OverallEnergy float64 // 0-100
	ScoringSource string
	PeakScore     float64
	Band          config.DurationBand
	Segments      []types.Segment
}

// Analyzer runs the per-song analysis pipeline. It performs no I/O and keeps
// no per-song state, so one Analyzer may serve any number of goroutines.
type Analyzer struct {
	cfg       config.AnalysisConfig
	extractor *FeatureExtractor
	selector  *SegmentSelector
	logger    zerolog.Logger
}

// NewAnalyzer creates an analyzer for the given policy
func NewAnalyzer(cfg config.AnalysisConfig, logger zerolog.Logger) *Analyzer {
	return &Analyzer{
		cfg:       cfg,
		extractor: NewFeatureExtractor(cfg),
		selector:  NewSegmentSelector(cfg),
		logger:    logger.With().Str("component", "analysis").Logger(),
	}
}

// AnalyzeSong selects segments for one song. heatmap may be nil.
func (a *Analyzer) AnalyzeSong(songID string, w Waveform, heatmap []HeatmapSample) (*SongAnalysis, error) {
	features, err := a.extractor.Extract(w)
	if err != nil {
		return nil, fmt.Errorf("extract features for %s: %w", songID, err)
	}

	curve := BuildEnergyCurve(features, a.cfg)
	grid := DetectBeatGrid(features, a.cfg)
	heat := ResampleHeatmap(heatmap, curve.Len(), curve.FramesPerSecond)
	sel := a.selector.Select(curve, heat, grid)

	for i := range sel.Segments {
		sel.Segments[i].SongID = songID
	}

	result := &SongAnalysis{
		SongID:        songID,
		Status:        sel.Status,
		TempoBPM:      grid.TempoBPM,
		OverallEnergy: math.Round(curve.Mean()*1000) / 10,
		ScoringSource: sel.Source,
		PeakScore:     sel.PeakScore,
		Band:          sel.Band,
		Segments:      sel.Segments,
	}

	a.logger.Debug().
		Str("song", songID).
		Float64("duration", curve.Duration()).
		Float64("bpm", grid.TempoBPM).
		Int("beats", len(grid.BeatTimes)).
		Str("source", sel.Source).
		Float64("peak", sel.PeakScore).
		Int("segments", len(sel.Segments)).
		Msg("song analyzed")

	return result, nil
}
