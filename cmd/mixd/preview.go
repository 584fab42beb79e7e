package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"time"

	"github.com/austinkregel/local-media/mixd/internal/audio"
	"github.com/austinkregel/local-media/mixd/internal/media"
)

func (a *app) preview(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("preview", flag.ContinueOnError)
	segmentID := fs.String("segment", "", "Segment to play")
	volume := fs.Float64("volume", 1.0, "Playback volume between 0 and 1")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *segmentID == "" {
		return errors.New("-segment is required")
	}

	seg, err := a.store.Segment(ctx, *segmentID)
	if err != nil {
		return err
	}
	song, err := a.store.Song(ctx, seg.SongID)
	if err != nil {
		return err
	}

	decoder, err := audio.NewFFmpegDecoder(a.logger)
	if err != nil {
		return err
	}
	output, err := audio.NewOtoOutput()
	if err != nil {
		return fmt.Errorf("failed to open audio output: %w", err)
	}
	defer output.Close()
	output.SetVolume(*volume)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	session, err := media.NewSession()
	if err != nil {
		a.logger.Debug().Err(err).Msg("Media session unavailable")
		session = media.NoOpSession{}
	}
	defer session.Close()
	session.OnStop(cancel)

	metadata := media.Metadata{
		SegmentID: seg.ID,
		Title:     song.Title,
		Artist:    song.Artist,
		Label:     seg.Label,
		Start:     time.Duration(seg.StartTime * float64(time.Second)),
		Duration:  time.Duration(seg.DurationSeconds * float64(time.Second)),
	}
	if err := session.Announce(metadata); err != nil {
		a.logger.Warn().Err(err).Msg("Failed to update media session")
	}
	defer session.Stopped()

	fmt.Printf("Playing %s\n", metadata.DisplayTitle())
	err = audio.NewPreviewer(decoder, output, a.cfg.Mix.CrossfadeSeconds).Preview(ctx, song.SourcePath, seg.StartTime, seg.EndTime)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
