package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/austinkregel/local-media/mixd/internal/export"
	"github.com/austinkregel/local-media/mixd/internal/mixer"
	"github.com/austinkregel/local-media/mixd/internal/store"
	"github.com/austinkregel/local-media/mixd/internal/types"
)

func (a *app) mix(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("mix", flag.ContinueOnError)
	name := fs.String("name", "", "Playlist name (default: mix-<date>)")
	all := fs.Bool("all-segments", false, "Use every segment instead of one per song")
	target := fs.Float64("target", a.cfg.Mix.TargetDurationSeconds, "Target mix length in seconds, 0 for no limit")
	out := fs.String("out", "", "Render plan path (default: <dataDir>/plans/<name>-<id>.json)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *name == "" {
		*name = "mix-" + time.Now().Format("2006-01-02")
	}

	candidates, err := a.store.MixCandidates(ctx, !*all)
	if err != nil {
		return err
	}
	if len(candidates) == 0 {
		return errors.New("no analyzed segments, run analyze first")
	}

	seq := mixer.NewSequencer(a.cfg.Mix)
	ordered, err := seq.Sequence(itemsOf(candidates))
	if err != nil {
		return fmt.Errorf("failed to sequence mix: %w", err)
	}

	bySegment := make(map[string]store.MixCandidate, len(candidates))
	for _, c := range candidates {
		bySegment[c.Item.SegmentID] = c
	}
	clips := make([]store.MixCandidate, len(ordered))
	for i, item := range ordered {
		clips[i] = bySegment[item.SegmentID]
	}

	crossfade := a.cfg.Mix.CrossfadeSeconds
	clips = export.FitToDuration(clips, *target, crossfade)
	result := seq.Rate(itemsOf(clips))

	segmentIDs := make([]string, len(clips))
	for i, c := range clips {
		segmentIDs[i] = c.Segment.ID
	}
	id, err := a.store.CreatePlaylist(ctx, *name, *target, result.QualityScore, crossfade, segmentIDs)
	if err != nil {
		return err
	}

	plan := export.BuildPlan(*name, clips, result, *target, crossfade)
	plan.PlaylistID = id

	path := *out
	if path == "" {
		path = filepath.Join(a.cfg.PlanDir(), fmt.Sprintf("%s-%s.json", *name, id[:8]))
	}
	if err := plan.Save(path); err != nil {
		return err
	}

	printPlan(plan)
	fmt.Printf("Wrote %s\n", path)
	return nil
}

func itemsOf(candidates []store.MixCandidate) []types.MixItem {
	items := make([]types.MixItem, len(candidates))
	for i, c := range candidates {
		items[i] = c.Item
	}
	return items
}

func printPlan(plan *export.Plan) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "#\tTITLE\tLANG\tBPM\tENERGY\tRANGE\tSMOOTHNESS")
	for i, item := range plan.Items {
		smoothness := "-"
		if i > 0 && i-1 < len(plan.Transitions) {
			smoothness = fmt.Sprintf("%.1f", plan.Transitions[i-1].Smoothness)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%.0f\t%.1f\t%s-%s\t%s\n",
			item.Position+1, item.Title, item.Language, item.BPM, item.EnergyScore,
			clock(item.StartTime), clock(item.EndTime), smoothness)
	}
	w.Flush()

	fmt.Printf("\n%d segments, %s total, quality %.1f\n", len(plan.Items), clock(plan.TotalDuration), plan.QualityScore)
	for _, note := range plan.Notes {
		fmt.Printf("  %s\n", note)
	}
}

// clock formats seconds as m:ss
func clock(seconds float64) string {
	s := int(seconds + 0.5)
	return fmt.Sprintf("%d:%02d", s/60, s%60)
}
