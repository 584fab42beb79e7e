package config

import (
	"fmt"
	"math"
)

// InvalidConfigurationError reports a policy constant that violates its invariants
type InvalidConfigurationError struct {
	Field  string
	Reason string
}

func (e *InvalidConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

func invalid(field, format string, args ...any) error {
	return &InvalidConfigurationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Validate checks every section of the configuration
func (c *Config) Validate() error {
	if err := c.Analysis.Validate(); err != nil {
		return err
	}
	if err := c.Mix.Validate(); err != nil {
		return err
	}
	if c.Worker.MaxWorkers < 1 {
		return invalid("worker.maxWorkers", "must be at least 1, got %d", c.Worker.MaxWorkers)
	}
	if c.Store.DatabaseFile == "" {
		return invalid("store.databaseFile", "must not be empty")
	}
	return nil
}

// Validate checks the analysis policy
func (a AnalysisConfig) Validate() error {
	if a.SampleRate <= 0 {
		return invalid("analysis.sampleRate", "must be positive, got %d", a.SampleRate)
	}
	if a.HopLength <= 0 {
		return invalid("analysis.hopLength", "must be positive, got %d", a.HopLength)
	}
	if a.FrameLength < a.HopLength {
		return invalid("analysis.frameLength", "must be at least hopLength (%d), got %d", a.HopLength, a.FrameLength)
	}

	w := a.Weights
	if w.Volume < 0 || w.Brightness < 0 || w.Punch < 0 {
		return invalid("analysis.weights", "must be non-negative")
	}
	if w.Volume+w.Brightness+w.Punch <= 0 {
		return invalid("analysis.weights", "must have a positive sum")
	}

	if a.SmoothingSeconds < 0 || isBad(a.SmoothingSeconds) {
		return invalid("analysis.smoothingSeconds", "must be non-negative, got %v", a.SmoothingSeconds)
	}
	if a.HorizonSeconds <= 0 || isBad(a.HorizonSeconds) {
		return invalid("analysis.horizonSeconds", "must be positive, got %v", a.HorizonSeconds)
	}

	if len(a.DurationBands) == 0 {
		return invalid("analysis.durationBands", "must not be empty")
	}
	for i, b := range a.DurationBands {
		field := fmt.Sprintf("analysis.durationBands[%d]", i)
		if b.MinSeconds <= 0 {
			return invalid(field, "minSeconds must be positive, got %v", b.MinSeconds)
		}
		if b.MinSeconds > b.MaxSeconds {
			return invalid(field, "minSeconds %v exceeds maxSeconds %v", b.MinSeconds, b.MaxSeconds)
		}
		if b.MinScore < 0 || b.MinScore > 1 {
			return invalid(field, "minScore must be within [0,1], got %v", b.MinScore)
		}
		if i > 0 && b.MinScore >= a.DurationBands[i-1].MinScore {
			return invalid(field, "bands must be ordered by descending minScore")
		}
	}
	if last := a.DurationBands[len(a.DurationBands)-1]; last.MinScore != 0 {
		return invalid("analysis.durationBands", "last band must have minScore 0, got %v", last.MinScore)
	}

	if a.WindowStepSeconds <= 0 {
		return invalid("analysis.windowStepSeconds", "must be positive, got %v", a.WindowStepSeconds)
	}
	if a.MaxSegments < 1 {
		return invalid("analysis.maxSegments", "must be at least 1, got %d", a.MaxSegments)
	}
	if a.MinGapSeconds < 0 || isBad(a.MinGapSeconds) {
		return invalid("analysis.minGapSeconds", "must be non-negative, got %v", a.MinGapSeconds)
	}
	if a.HeatmapRelativeThreshold < 0 || a.HeatmapAbsoluteThreshold < 0 {
		return invalid("analysis.heatmapThreshold", "must be non-negative")
	}
	if a.MinBPM <= 0 || a.MinBPM >= a.MaxBPM {
		return invalid("analysis.minBpm", "need 0 < minBpm < maxBpm, got %v and %v", a.MinBPM, a.MaxBPM)
	}
	// Tempo is folded by octaves, so the range must span one
	if a.MaxBPM < 2*a.MinBPM {
		return invalid("analysis.maxBpm", "must be at least twice minBpm (%v), got %v", a.MinBPM, a.MaxBPM)
	}
	if a.BeatSearchRadiusSeconds < 0 {
		return invalid("analysis.beatSearchRadiusSeconds", "must be non-negative, got %v", a.BeatSearchRadiusSeconds)
	}
	if a.PhraseThreshold < 0 || a.PhraseThreshold > 1 {
		return invalid("analysis.phraseThreshold", "must be within [0,1], got %v", a.PhraseThreshold)
	}
	if a.PhraseToleranceSeconds < 0 {
		return invalid("analysis.phraseToleranceSeconds", "must be non-negative, got %v", a.PhraseToleranceSeconds)
	}
	if a.MinPhraseSpacingSeconds < 0 {
		return invalid("analysis.minPhraseSpacingSeconds", "must be non-negative, got %v", a.MinPhraseSpacingSeconds)
	}
	return nil
}

// Validate checks the mix policy
func (m MixConfig) Validate() error {
	switch m.ArcShape {
	case ArcPeakMiddle, ArcAscending, ArcDescending, ArcWave:
	default:
		return invalid("mix.arcShape", "unknown shape %q", m.ArcShape)
	}
	if m.MaxSameLanguageRun < 1 {
		return invalid("mix.maxSameLanguageRun", "must be at least 1, got %d", m.MaxSameLanguageRun)
	}
	if m.BPMTieTolerance < 0 {
		return invalid("mix.bpmTieTolerance", "must be non-negative, got %v", m.BPMTieTolerance)
	}
	if m.CrossfadeSeconds < 0 {
		return invalid("mix.crossfadeSeconds", "must be non-negative, got %v", m.CrossfadeSeconds)
	}
	if m.TargetDurationSeconds <= 0 {
		return invalid("mix.targetDurationSeconds", "must be positive, got %v", m.TargetDurationSeconds)
	}
	return nil
}

func isBad(v float64) bool {
	return math.IsNaN(v) || math.IsInf(v, 0)
}
