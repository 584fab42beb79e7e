package mixer

import (
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/austinkregel/local-media/mixd/internal/config"
	"github.com/austinkregel/local-media/mixd/internal/types"
)

func item(energy, bpm float64, lang string) types.MixItem {
	return types.MixItem{
		SegmentID:   fmt.Sprintf("seg-%v", energy),
		SongID:      fmt.Sprintf("song-%v", energy),
		BPM:         bpm,
		EnergyScore: energy,
		Language:    lang,
	}
}

func energies(items []types.MixItem) []float64 {
	out := make([]float64, len(items))
	for i, it := range items {
		out[i] = it.EnergyScore
	}
	return out
}

func equalFloats(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestSequencePeakMiddle(t *testing.T) {
	var items []types.MixItem
	for e := 100.0; e >= 10; e -= 10 {
		items = append(items, item(e, 120, "ko"))
	}

	out, err := NewSequencer(config.DefaultMixConfig()).Sequence(items)
	if err != nil {
		t.Fatalf("Sequence failed: %v", err)
	}

	expected := []float64{30, 40, 60, 70, 80, 90, 100, 50, 20, 10}
	if got := energies(out); !equalFloats(got, expected) {
		t.Fatalf("Expected %v, got %v", expected, got)
	}

	// Builds to the peak, then cools down
	peak := 0
	for i, it := range out {
		if it.EnergyScore == 100 {
			peak = i
		}
	}
	for i := 1; i <= peak; i++ {
		if out[i].EnergyScore <= out[i-1].EnergyScore {
			t.Errorf("Expected rising energy before the peak at %d", i)
		}
	}
	if out[len(out)-1].EnergyScore >= out[peak].EnergyScore {
		t.Error("Expected the mix to end below its peak")
	}

	// Input is untouched
	if items[0].EnergyScore != 100 {
		t.Error("Expected input slice not to be reordered")
	}
}

func TestSequenceIsStable(t *testing.T) {
	items := []types.MixItem{
		item(40, 128, "en"), item(70, 100, "ko"), item(10, 90, "ja"),
		item(55, 126, "ko"), item(85, 140, "en"), item(25, 118, "ko"),
	}
	s := NewSequencer(config.DefaultMixConfig())

	first, err := s.Sequence(items)
	if err != nil {
		t.Fatalf("Sequence failed: %v", err)
	}
	for run := 0; run < 5; run++ {
		again, _ := s.Sequence(items)
		if !equalFloats(energies(first), energies(again)) {
			t.Fatalf("Expected identical ordering, got %v and %v", energies(first), energies(again))
		}
	}
	if len(first) != len(items) {
		t.Errorf("Expected %d items, got %d", len(items), len(first))
	}
}

func TestSequenceSmallMixes(t *testing.T) {
	s := NewSequencer(config.DefaultMixConfig())

	out, err := s.Sequence([]types.MixItem{item(80, 120, "en"), item(20, 120, "en"), item(50, 120, "en")})
	if err != nil {
		t.Fatalf("Sequence failed: %v", err)
	}
	if got := energies(out); !equalFloats(got, []float64{20, 50, 80}) {
		t.Errorf("Expected ascending order for small mixes, got %v", got)
	}

	out, err = s.Sequence([]types.MixItem{item(42, 120, "en")})
	if err != nil || len(out) != 1 {
		t.Errorf("Expected single item back, got %v (%v)", out, err)
	}
}

func TestSequenceArcShapes(t *testing.T) {
	items := []types.MixItem{
		item(30, 120, "a"), item(10, 120, "b"), item(50, 120, "a"), item(20, 120, "b"), item(40, 120, "a"),
	}

	tests := []struct {
		shape    string
		expected []float64
	}{
		{config.ArcAscending, []float64{10, 20, 30, 40, 50}},
		{config.ArcDescending, []float64{50, 40, 30, 20, 10}},
		{config.ArcWave, []float64{10, 50, 20, 40, 30}},
	}

	for _, tt := range tests {
		t.Run(tt.shape, func(t *testing.T) {
			cfg := config.DefaultMixConfig()
			cfg.ArcShape = tt.shape
			cfg.MaxSameLanguageRun = 5

			out, err := NewSequencer(cfg).Sequence(items)
			if err != nil {
				t.Fatalf("Sequence failed: %v", err)
			}
			if got := energies(out); !equalFloats(got, tt.expected) {
				t.Errorf("Expected %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestSequenceLanguageVariety(t *testing.T) {
	items := []types.MixItem{
		item(10, 120, "ko"), item(20, 120, "ko"), item(30, 120, "ko"), item(40, 120, "ko"),
		item(50, 120, "en"), item(60, 120, "en"), item(70, 120, "en"), item(80, 120, "en"),
	}

	out, err := NewSequencer(config.DefaultMixConfig()).Sequence(items)
	if err != nil {
		t.Fatalf("Sequence failed: %v", err)
	}

	expected := []float64{30, 50, 60, 40, 80, 70, 20, 10}
	if got := energies(out); !equalFloats(got, expected) {
		t.Errorf("Expected %v, got %v", expected, got)
	}

	run := 1
	for i := 1; i < len(out); i++ {
		if out[i].Language == out[i-1].Language {
			run++
		} else {
			run = 1
		}
		if run > 2 {
			t.Errorf("Language %s runs %d long at %d", out[i].Language, run, i)
		}
	}
}

func TestSequenceLanguageVarietyWhenImpossible(t *testing.T) {
	items := []types.MixItem{
		item(10, 120, "ko"), item(20, 120, "ko"), item(30, 120, "ko"),
		item(40, 120, "ko"), item(50, 120, "ko"), item(60, 120, "en"),
	}

	out, err := NewSequencer(config.DefaultMixConfig()).Sequence(items)
	if err != nil {
		t.Fatalf("Sequence failed: %v", err)
	}

	expected := []float64{20, 40, 60, 50, 30, 10}
	if got := energies(out); !equalFloats(got, expected) {
		t.Errorf("Expected %v, got %v", expected, got)
	}
}

func TestSmoothBPM(t *testing.T) {
	s := NewSequencer(config.DefaultMixConfig())
	bucket := []types.MixItem{item(1, 120, ""), item(2, 90, ""), item(3, 121, ""), item(4, 60, "")}

	out := s.smoothBPM(bucket)

	var bpms []float64
	for _, it := range out {
		bpms = append(bpms, it.BPM)
	}
	expected := []float64{120, 121, 60, 90}
	if !equalFloats(bpms, expected) {
		t.Errorf("Expected %v, got %v", expected, bpms)
	}
	if bucket[1].BPM != 90 {
		t.Error("Expected bucket not to be reordered in place")
	}
}

func TestBPMDistance(t *testing.T) {
	tests := []struct {
		a, b     float64
		expected float64
	}{
		{120, 120, 0},
		{80, 160, 0},
		{160, 80, 0},
		{100, 110, 10},
		{120, 90, 30},
		{60, 121, 0.75},
	}

	for _, tt := range tests {
		if got := BPMDistance(tt.a, tt.b); math.Abs(got-tt.expected) > 1e-9 {
			t.Errorf("BPMDistance(%v, %v): expected %v, got %v", tt.a, tt.b, tt.expected, got)
		}
	}
}

func TestSequenceValidation(t *testing.T) {
	s := NewSequencer(config.DefaultMixConfig())

	if _, err := s.Sequence(nil); !errors.Is(err, ErrEmptyMix) {
		t.Errorf("Expected ErrEmptyMix, got %v", err)
	}

	tests := []struct {
		name  string
		item  types.MixItem
		field string
	}{
		{"zero bpm", item(50, 0, "en"), "bpm"},
		{"negative bpm", item(50, -90, "en"), "bpm"},
		{"nan bpm", item(50, math.NaN(), "en"), "bpm"},
		{"energy above range", item(101, 120, "en"), "energyScore"},
		{"negative energy", item(-1, 120, "en"), "energyScore"},
		{"nan energy", types.MixItem{SegmentID: "x", BPM: 120, EnergyScore: math.NaN()}, "energyScore"},
		{"missing id", types.MixItem{BPM: 120, EnergyScore: 50}, "segmentId"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Sequence([]types.MixItem{item(10, 120, "en"), tt.item})
			var invalid *InvalidItemError
			if !errors.As(err, &invalid) {
				t.Fatalf("Expected InvalidItemError, got %v", err)
			}
			if invalid.Index != 1 || invalid.Field != tt.field {
				t.Errorf("Expected item 1 field %s, got item %d field %s", tt.field, invalid.Index, invalid.Field)
			}
		})
	}
}
