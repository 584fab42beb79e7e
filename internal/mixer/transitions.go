package mixer

import (
	"fmt"
	"math"
	"slices"
	"sort"

	"github.com/austinkregel/local-media/mixd/internal/types"
)

// Transition describes the step between two consecutive mix items
type Transition struct {
	From         string  `json:"from"`
	To           string  `json:"to"`
	BPMDiff      float64 `json:"bpmDiff"`
	EnergyDiff   float64 `json:"energyDiff"` // 0-1
	SameLanguage bool    `json:"sameLanguage"`
	Smoothness   float64 `json:"smoothness"` // 0-100
}

// MixResult is a sequenced mix with a rating of its flow
type MixResult struct {
	Items        []types.MixItem `json:"items"`
	Transitions  []Transition    `json:"transitions"`
	QualityScore float64         `json:"qualityScore"`
	Notes        []string        `json:"notes,omitempty"`
}

// Suggestion is a candidate next item and how well it would follow
type Suggestion struct {
	Item  types.MixItem `json:"item"`
	Score float64       `json:"score"`
}

// Mix sequences items and rates the resulting transitions
func (s *Sequencer) Mix(items []types.MixItem) (*MixResult, error) {
	ordered, err := s.Sequence(items)
	if err != nil {
		return nil, err
	}
	return s.Rate(ordered), nil
}

// Rate scores an already ordered mix without reordering it
func (s *Sequencer) Rate(ordered []types.MixItem) *MixResult {
	transitions := AnalyzeTransitions(ordered)
	result := &MixResult{
		Items:        ordered,
		Transitions:  transitions,
		QualityScore: QualityScore(ordered, transitions, s.cfg.MaxSameLanguageRun),
	}

	if len(ordered) == 1 {
		result.Notes = append(result.Notes, "single segment")
		return result
	}
	result.Notes = append(result.Notes,
		fmt.Sprintf("%s energy arc", s.arcShape()),
		fmt.Sprintf("at most %d consecutive segments per language", s.cfg.MaxSameLanguageRun))
	if run := longestLanguageRun(ordered); run > s.cfg.MaxSameLanguageRun {
		result.Notes = append(result.Notes, fmt.Sprintf("not enough languages to avoid a run of %d", run))
	}
	return result
}

// AnalyzeTransitions rates every consecutive pair of items
func AnalyzeTransitions(items []types.MixItem) []Transition {
	if len(items) < 2 {
		return nil
	}

	out := make([]Transition, 0, len(items)-1)
	for i := 0; i+1 < len(items); i++ {
		cur, next := items[i], items[i+1]
		bpm := BPMDistance(cur.BPM, next.BPM)
		energy := energyDiff(cur, next)

		out = append(out, Transition{
			From:         cur.SegmentID,
			To:           next.SegmentID,
			BPMDiff:      round(bpm, 1),
			EnergyDiff:   round(energy, 2),
			SameLanguage: cur.Language == next.Language,
			Smoothness:   round(clamp(100-bpm*2-energy*50, 0, 100), 1),
		})
	}
	return out
}

// QualityScore averages transition smoothness and subtracts 5 for every
// window of maxRun+1 items sharing a language. Mixes with fewer than two
// items score 100.
func QualityScore(items []types.MixItem, transitions []Transition, maxRun int) float64 {
	if len(transitions) == 0 {
		return 100
	}

	var total float64
	for _, t := range transitions {
		total += t.Smoothness
	}
	score := total / float64(len(transitions))

	if maxRun < 1 {
		maxRun = 1
	}
	for i := 0; i+maxRun < len(items); i++ {
		same := true
		for j := 1; j <= maxRun; j++ {
			if items[i+j].Language != items[i].Language {
				same = false
				break
			}
		}
		if same {
			score -= 5
		}
	}

	return round(math.Max(0, score), 1)
}

// SuggestNext ranks candidates as followers of current, best first.
// Ties keep candidate order.
func SuggestNext(current types.MixItem, candidates []types.MixItem, recentLanguages []string) []Suggestion {
	out := make([]Suggestion, 0, len(candidates))
	for _, c := range candidates {
		score := 50.0
		score += math.Max(0, 30-BPMDistance(current.BPM, c.BPM))
		score += math.Max(0, 20-energyDiff(current, c)*40)
		if c.Language != current.Language {
			score += 10
		}
		if !slices.Contains(recentLanguages, c.Language) {
			score += 5
		}
		out = append(out, Suggestion{Item: c, Score: score})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

func longestLanguageRun(items []types.MixItem) int {
	longest, run := 0, 0
	for i, it := range items {
		if i > 0 && it.Language == items[i-1].Language {
			run++
		} else {
			run = 1
		}
		longest = max(longest, run)
	}
	return longest
}

// energyDiff is the absolute energy change on a 0-1 scale
func energyDiff(a, b types.MixItem) float64 {
	return math.Abs(a.EnergyScore-b.EnergyScore) / 100
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
