// Package export turns a sequenced mix into a render plan on disk.
package export

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/austinkregel/local-media/mixd/internal/mixer"
	"github.com/austinkregel/local-media/mixd/internal/store"
)

// PlanItem is one clip of the rendered mix
type PlanItem struct {
	Position    int     `json:"position"`
	SegmentID   string  `json:"segmentId"`
	SongID      string  `json:"songId"`
	Title       string  `json:"title"`
	Artist      string  `json:"artist,omitempty"`
	Language    string  `json:"language,omitempty"`
	SourcePath  string  `json:"sourcePath"`
	StartTime   float64 `json:"startTime"`
	EndTime     float64 `json:"endTime"`
	BPM         float64 `json:"bpm"`
	EnergyScore float64 `json:"energyScore"`
	Crossfade   float64 `json:"crossfade"` // seconds of overlap with the next clip
}

// Plan is everything a renderer needs to produce the mix
type Plan struct {
	PlaylistID     string             `json:"playlistId,omitempty"`
	Name           string             `json:"name"`
	CreatedAt      time.Time          `json:"createdAt"`
	TargetDuration float64            `json:"targetDuration"`
	TotalDuration  float64            `json:"totalDuration"`
	QualityScore   float64            `json:"qualityScore"`
	Items          []PlanItem         `json:"items"`
	Transitions    []mixer.Transition `json:"transitions,omitempty"`
	Notes          []string           `json:"notes,omitempty"`
}

// TotalDuration is the length of clips played back to back, overlapping
// by crossfade seconds at each join
func TotalDuration(clips []store.MixCandidate, crossfade float64) float64 {
	var total float64
	for i, c := range clips {
		total += c.Segment.DurationSeconds
		if i > 0 {
			total -= crossfade
		}
	}
	return total
}

// FitToDuration keeps the longest prefix of clips that fits in target
// seconds. The first clip is always kept. A target of zero or less keeps
// everything.
func FitToDuration(clips []store.MixCandidate, target, crossfade float64) []store.MixCandidate {
	if target <= 0 || len(clips) == 0 {
		return clips
	}

	total := clips[0].Segment.DurationSeconds
	n := 1
	for _, c := range clips[1:] {
		next := total + c.Segment.DurationSeconds - crossfade
		if next > target {
			break
		}
		total = next
		n++
	}
	return clips[:n]
}

// BuildPlan lays out clips in order. result, when given, should rate the
// same clips. The last clip has no crossfade.
func BuildPlan(name string, clips []store.MixCandidate, result *mixer.MixResult, target, crossfade float64) *Plan {
	plan := &Plan{
		Name:           name,
		CreatedAt:      time.Now().UTC(),
		TargetDuration: target,
		TotalDuration:  TotalDuration(clips, crossfade),
		Items:          make([]PlanItem, 0, len(clips)),
	}

	for i, c := range clips {
		fade := crossfade
		if i == len(clips)-1 {
			fade = 0
		}
		plan.Items = append(plan.Items, PlanItem{
			Position:    i,
			SegmentID:   c.Segment.ID,
			SongID:      c.Song.ID,
			Title:       c.Song.Title,
			Artist:      c.Song.Artist,
			Language:    c.Song.Language,
			SourcePath:  c.Song.SourcePath,
			StartTime:   c.Segment.StartTime,
			EndTime:     c.Segment.EndTime,
			BPM:         c.Item.BPM,
			EnergyScore: c.Segment.EnergyScore,
			Crossfade:   fade,
		})
	}

	if result != nil {
		plan.Transitions = result.Transitions
		plan.QualityScore = result.QualityScore
		plan.Notes = result.Notes
	}
	return plan
}

// Save writes the plan as indented JSON
func (p *Plan) Save(path string) error {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal plan: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create plan directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write plan: %w", err)
	}
	return nil
}
