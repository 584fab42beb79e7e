package analysis

import (
	"errors"
	"math"
	"testing"

	"github.com/rs/zerolog"

	"github.com/austinkregel/local-media/mixd/internal/config"
	"github.com/austinkregel/local-media/mixd/internal/types"
)

func TestAnalyzeSong(t *testing.T) {
	cfg := config.DefaultAnalysisConfig()
	a := NewAnalyzer(cfg, zerolog.Nop())

	w := clickTrack(150, cfg.SampleRate, 120, 60, 110)
	result, err := a.AnalyzeSong("song-1", w, nil)
	if err != nil {
		t.Fatalf("AnalyzeSong failed: %v", err)
	}

	if result.Status != types.StatusComplete {
		t.Fatalf("Expected complete status, got %s", result.Status)
	}
	if len(result.Segments) == 0 {
		t.Fatal("Expected at least one segment")
	}
	if result.TempoBPM < cfg.MinBPM || result.TempoBPM > cfg.MaxBPM {
		t.Errorf("Tempo %v outside detection range", result.TempoBPM)
	}
	if result.OverallEnergy < 0 || result.OverallEnergy > 100 {
		t.Errorf("Overall energy %v outside 0-100", result.OverallEnergy)
	}
	if result.ScoringSource != SourceEnergy {
		t.Errorf("Expected energy scoring without heatmap, got %s", result.ScoringSource)
	}

	primaries := 0
	for _, s := range result.Segments {
		if s.SongID != "song-1" {
			t.Errorf("Expected song id on segment, got %q", s.SongID)
		}
		if s.DurationSeconds < result.Band.MinSeconds-1e-9 || s.DurationSeconds > result.Band.MaxSeconds+1e-9 {
			t.Errorf("Duration %v outside band %v", s.DurationSeconds, result.Band)
		}
		if s.IsPrimary {
			primaries++
		}
	}
	if primaries != 1 {
		t.Errorf("Expected one primary, got %d", primaries)
	}

	primary := primaryOf(t, result.Segments)
	mid := (primary.StartTime + primary.EndTime) / 2
	if mid < 60 || mid > 110 {
		t.Errorf("Expected primary inside the loud section, centered at %v", mid)
	}
}

func TestAnalyzeSongIsDeterministic(t *testing.T) {
	cfg := config.DefaultAnalysisConfig()
	a := NewAnalyzer(cfg, zerolog.Nop())
	w := clickTrack(100, cfg.SampleRate, 128, 20, 70)

	first, err := a.AnalyzeSong("x", w, nil)
	if err != nil {
		t.Fatalf("AnalyzeSong failed: %v", err)
	}
	second, err := a.AnalyzeSong("x", w, nil)
	if err != nil {
		t.Fatalf("AnalyzeSong failed: %v", err)
	}

	if first.TempoBPM != second.TempoBPM || len(first.Segments) != len(second.Segments) {
		t.Fatal("Expected identical results for identical input")
	}
	for i := range first.Segments {
		if first.Segments[i] != second.Segments[i] {
			t.Errorf("Segment %d differs between runs", i)
		}
	}
}

func TestAnalyzeSongUsesHeatmap(t *testing.T) {
	cfg := config.DefaultAnalysisConfig()
	a := NewAnalyzer(cfg, zerolog.Nop())
	w := clickTrack(150, cfg.SampleRate, 120, 100, 140)

	heatmap := []HeatmapSample{
		{TimeSeconds: 0, Intensity: 0.05},
		{TimeSeconds: 20, Intensity: 0.05},
		{TimeSeconds: 30, Intensity: 1.0},
		{TimeSeconds: 40, Intensity: 0.05},
		{TimeSeconds: 150, Intensity: 0.05},
	}

	result, err := a.AnalyzeSong("hm", w, heatmap)
	if err != nil {
		t.Fatalf("AnalyzeSong failed: %v", err)
	}
	if result.ScoringSource != SourceHeatmap {
		t.Fatalf("Expected heatmap scoring, got %s", result.ScoringSource)
	}

	primary := primaryOf(t, result.Segments)
	if primary.StartTime > 30 || primary.EndTime < 30 {
		t.Errorf("Expected primary to include the replay peak, got %v-%v", primary.StartTime, primary.EndTime)
	}
}

func TestAnalyzeSongInsufficientAudio(t *testing.T) {
	a := NewAnalyzer(config.DefaultAnalysisConfig(), zerolog.Nop())

	_, err := a.AnalyzeSong("short", Waveform{Samples: make([]float64, 100), SampleRate: 22050}, nil)
	var shortErr *InsufficientAudioError
	if !errors.As(err, &shortErr) {
		t.Fatalf("Expected InsufficientAudioError, got %v", err)
	}
}

func TestAnalyzeSongTooShortForSegments(t *testing.T) {
	cfg := config.DefaultAnalysisConfig()
	a := NewAnalyzer(cfg, zerolog.Nop())

	result, err := a.AnalyzeSong("brief", clickTrack(30, cfg.SampleRate, 120, 0, 30), nil)
	if err != nil {
		t.Fatalf("AnalyzeSong failed: %v", err)
	}
	if result.Status != types.StatusNoSegments || len(result.Segments) != 0 {
		t.Errorf("Expected no segments, got %s with %d", result.Status, len(result.Segments))
	}
	if math.IsNaN(result.OverallEnergy) {
		t.Error("Expected finite overall energy")
	}
}
