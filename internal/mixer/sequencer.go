// Package mixer orders segments from many songs into a single mix.
//
// Ordering happens in three stages: an energy arc shapes the overall flow,
// a nearest-neighbor pass inside each arc bucket keeps tempo changes small,
// and a final pass breaks up long runs of one language.
package mixer

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/austinkregel/local-media/mixd/internal/config"
	"github.com/austinkregel/local-media/mixd/internal/types"
)

// ErrEmptyMix is returned when there is nothing to sequence
var ErrEmptyMix = errors.New("mixer: no segments to sequence")

// InvalidItemError reports a malformed mix item
type InvalidItemError struct {
	Index int
	Field string
	Value any
}

func (e *InvalidItemError) Error() string {
	return fmt.Sprintf("mixer: item %d has invalid %s: %v", e.Index, e.Field, e.Value)
}

// Sequencer orders mix items. It is stateless apart from its policy.
type Sequencer struct {
	cfg config.MixConfig
}

// NewSequencer creates a sequencer with the given policy
func NewSequencer(cfg config.MixConfig) *Sequencer {
	return &Sequencer{cfg: cfg}
}

// Sequence returns a new ordering of items. The input slice is not modified.
func (s *Sequencer) Sequence(items []types.MixItem) ([]types.MixItem, error) {
	if err := validate(items); err != nil {
		return nil, err
	}

	var ordered []types.MixItem
	switch s.arcShape() {
	case config.ArcAscending:
		ordered = byEnergy(items)
	case config.ArcDescending:
		ordered = reversed(byEnergy(items))
	case config.ArcWave:
		ordered = wave(byEnergy(items))
	default:
		for _, bucket := range peakMiddle(items) {
			ordered = append(ordered, s.smoothBPM(bucket)...)
		}
	}

	return s.varyLanguage(ordered), nil
}

func (s *Sequencer) arcShape() string {
	switch s.cfg.ArcShape {
	case config.ArcAscending, config.ArcDescending, config.ArcWave:
		return s.cfg.ArcShape
	}
	return config.ArcPeakMiddle
}

func validate(items []types.MixItem) error {
	if len(items) == 0 {
		return ErrEmptyMix
	}
	for i, it := range items {
		switch {
		case it.SegmentID == "":
			return &InvalidItemError{Index: i, Field: "segmentId", Value: it.SegmentID}
		case math.IsNaN(it.BPM) || it.BPM <= 0:
			return &InvalidItemError{Index: i, Field: "bpm", Value: it.BPM}
		case math.IsNaN(it.EnergyScore) || it.EnergyScore < 0 || it.EnergyScore > 100:
			return &InvalidItemError{Index: i, Field: "energyScore", Value: it.EnergyScore}
		}
	}
	return nil
}

// byEnergy returns a stably sorted copy, lowest energy first
func byEnergy(items []types.MixItem) []types.MixItem {
	out := make([]types.MixItem, len(items))
	copy(out, items)
	sort.SliceStable(out, func(i, j int) bool { return out[i].EnergyScore < out[j].EnergyScore })
	return out
}

func reversed(items []types.MixItem) []types.MixItem {
	out := make([]types.MixItem, len(items))
	for i, it := range items {
		out[len(items)-1-i] = it
	}
	return out
}

// peakMiddle splits items into the buckets of a build, peak, cool-down arc:
// the lower half of the second quartile rising, the third and fourth
// quartiles rising, then the rest of the second quartile and the first
// quartile falling. Fewer than four items form one rising bucket.
func peakMiddle(items []types.MixItem) [][]types.MixItem {
	sorted := byEnergy(items)
	n := len(sorted)
	if n < 4 {
		return [][]types.MixItem{sorted}
	}

	q1, q2, q3, q4 := sorted[:n/4], sorted[n/4:n/2], sorted[n/2:3*n/4], sorted[3*n/4:]
	open := (len(q2) + 1) / 2

	buckets := [][]types.MixItem{q2[:open], q3, q4, reversed(q2[open:]), reversed(q1)}
	out := buckets[:0]
	for _, b := range buckets {
		if len(b) > 0 {
			out = append(out, b)
		}
	}
	return out
}

// wave alternates low and high energy items
func wave(sorted []types.MixItem) []types.MixItem {
	n := len(sorted)
	out := make([]types.MixItem, 0, n)
	for i := 0; i < n/2; i++ {
		out = append(out, sorted[i], sorted[n-1-i])
	}
	if n%2 == 1 {
		out = append(out, sorted[n/2])
	}
	return out
}

// smoothBPM reorders a bucket by nearest tempo, starting from its first item.
// Candidates within the tie tolerance of the best distance keep bucket order.
func (s *Sequencer) smoothBPM(bucket []types.MixItem) []types.MixItem {
	if len(bucket) <= 2 {
		return bucket
	}

	remaining := make([]types.MixItem, len(bucket)-1)
	copy(remaining, bucket[1:])
	out := []types.MixItem{bucket[0]}

	for len(remaining) > 0 {
		last := out[len(out)-1].BPM
		best := math.Inf(1)
		for _, it := range remaining {
			best = math.Min(best, BPMDistance(last, it.BPM))
		}
		pick := 0
		for i, it := range remaining {
			if BPMDistance(last, it.BPM) <= best+s.cfg.BPMTieTolerance {
				pick = i
				break
			}
		}
		out = append(out, remaining[pick])
		remaining = append(remaining[:pick], remaining[pick+1:]...)
	}
	return out
}

// varyLanguage swaps items forward so no language runs longer than the limit.
// A run is left alone when no later item has a different language.
func (s *Sequencer) varyLanguage(items []types.MixItem) []types.MixItem {
	limit := s.cfg.MaxSameLanguageRun
	if limit < 1 || len(items) <= limit {
		return items
	}

	for pass := 0; pass < len(items); pass++ {
		swapped := false
		run := 1
		for i := 1; i < len(items); i++ {
			if items[i].Language != items[i-1].Language {
				run = 1
				continue
			}
			run++
			if run <= limit {
				continue
			}
			j := i + 1
			for j < len(items) && items[j].Language == items[i].Language {
				j++
			}
			if j == len(items) {
				break
			}
			items[i], items[j] = items[j], items[i]
			swapped = true
			run = 1
		}
		if !swapped {
			break
		}
	}
	return items
}

// BPMDistance measures how far apart two tempos are, treating half and
// double time as close matches.
func BPMDistance(a, b float64) float64 {
	direct := math.Abs(a - b)

	var half, double float64
	if b > a {
		half = math.Abs(a - b/2)
		double = math.Abs(a*2 - b)
	} else {
		half = math.Abs(b - a/2)
		double = math.Abs(b*2 - a)
	}
	return math.Min(direct, math.Min(half*1.5, double*1.5))
}
