package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/austinkregel/local-media/mixd/internal/mixer"
	"github.com/austinkregel/local-media/mixd/internal/store"
	"github.com/austinkregel/local-media/mixd/internal/types"
)

func (a *app) suggest(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("suggest", flag.ContinueOnError)
	segmentID := fs.String("segment", "", "Segment currently playing")
	count := fs.Int("n", 10, "Number of suggestions")
	recent := fs.String("recent", "", "Comma separated languages played recently")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *segmentID == "" {
		return errors.New("-segment is required")
	}

	candidates, err := a.store.MixCandidates(ctx, false)
	if err != nil {
		return err
	}

	var (
		current *store.MixCandidate
		pool    []types.MixItem
		lookup  = make(map[string]store.MixCandidate, len(candidates))
	)
	for i, c := range candidates {
		if c.Item.SegmentID == *segmentID {
			current = &candidates[i]
			continue
		}
		lookup[c.Item.SegmentID] = c
	}
	if current == nil {
		return fmt.Errorf("segment %s: %w", *segmentID, store.ErrNotFound)
	}
	// Segments of the same song never follow each other
	for _, c := range candidates {
		if c.Item.SongID != current.Item.SongID {
			pool = append(pool, c.Item)
		}
	}

	var recentLanguages []string
	for _, lang := range strings.Split(*recent, ",") {
		if lang = strings.TrimSpace(lang); lang != "" {
			recentLanguages = append(recentLanguages, lang)
		}
	}

	suggestions := mixer.SuggestNext(current.Item, pool, recentLanguages)
	if len(suggestions) > *count {
		suggestions = suggestions[:*count]
	}

	fmt.Printf("After %s (%.0f BPM, energy %.1f):\n\n", current.Song.Title, current.Item.BPM, current.Item.EnergyScore)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SCORE\tSEGMENT\tTITLE\tLANG\tBPM\tENERGY")
	for _, s := range suggestions {
		c := lookup[s.Item.SegmentID]
		fmt.Fprintf(w, "%.1f\t%s\t%s\t%s\t%.0f\t%.1f\n",
			s.Score, s.Item.SegmentID, c.Song.Title, s.Item.Language, s.Item.BPM, s.Item.EnergyScore)
	}
	return w.Flush()
}
