package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"path/filepath"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/austinkregel/local-media/mixd/internal/analysis"
	"github.com/austinkregel/local-media/mixd/internal/audio"
	"github.com/austinkregel/local-media/mixd/internal/config"
	"github.com/austinkregel/local-media/mixd/internal/scanner"
	"github.com/austinkregel/local-media/mixd/internal/types"
)

func (a *app) analyze(ctx context.Context, configMgr *config.Manager, args []string) error {
	fs := flag.NewFlagSet("analyze", flag.ContinueOnError)
	workers := fs.Int("workers", a.cfg.Worker.MaxWorkers, "Concurrent analyses")
	force := fs.Bool("force", false, "Re-analyze songs that already have results")
	if err := fs.Parse(args); err != nil {
		return err
	}

	dirs := fs.Args()
	for _, dir := range dirs {
		abs, err := filepath.Abs(dir)
		if err != nil {
			return fmt.Errorf("invalid library path %s: %w", dir, err)
		}
		if err := configMgr.AddLibraryPath(abs); err != nil {
			a.logger.Warn().Err(err).Msg("Failed to remember library path")
		}
	}
	if len(dirs) == 0 {
		dirs = a.cfg.LibraryPaths
	}
	if len(dirs) == 0 {
		return errors.New("no library paths given or configured")
	}

	decoder, err := audio.NewFFmpegDecoder(a.logger)
	var metadata scanner.MetadataReader
	if err != nil {
		a.logger.Warn().Err(err).Msg("ffmpeg unavailable, only WAV files at the analysis rate can be analyzed")
	} else {
		metadata = decoder
	}

	songs, err := scanner.NewScanner(metadata, a.logger).Scan(ctx, dirs)
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	pending, err := a.queueSongs(ctx, songs, *force)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		fmt.Printf("Found %d songs, nothing to analyze\n", len(songs))
		return nil
	}

	progress := mpb.NewWithContext(ctx, mpb.WithWidth(64))
	bar := progress.AddBar(int64(len(pending)),
		mpb.PrependDecorators(
			decor.Name("Analyzing: "),
			decor.CountersNoUnit("%d / %d"),
		),
		mpb.AppendDecorators(
			decor.Percentage(),
			decor.EwmaETA(decor.ET_STYLE_GO, 60),
		),
	)

	// Results are stored even while shutting down
	persistCtx := context.WithoutCancel(ctx)

	worker, err := analysis.NewWorker(analysis.WorkerConfig{
		MaxWorkers: *workers,
		Waveforms:  audio.NewFileSource(decoder, a.cfg.Analysis.SampleRate, a.logger),
		Heatmaps:   scanner.InfoJSONHeatmaps{},
		OnResult: func(r analysis.Result) {
			a.persist(persistCtx, r)
			bar.EwmaIncrement(r.Elapsed)
		},
	}, analysis.NewAnalyzer(a.cfg.Analysis, a.logger), a.logger)
	if err != nil {
		return err
	}

	results, runErr := worker.Run(ctx, pending)
	if !bar.Completed() {
		bar.Abort(false)
	}
	progress.Wait()

	a.summarize(persistCtx, results)
	return runErr
}

// queueSongs stores scanned songs and returns those that need analysis
func (a *app) queueSongs(ctx context.Context, songs []types.SongInfo, force bool) ([]types.SongInfo, error) {
	var pending []types.SongInfo
	for _, song := range songs {
		if err := a.store.UpsertSong(ctx, song); err != nil {
			return nil, err
		}

		if !force {
			stored, err := a.store.Song(ctx, song.ID)
			if err != nil {
				return nil, err
			}
			if stored.Status == types.StatusComplete || stored.Status == types.StatusNoSegments {
				continue
			}
		}

		if err := a.store.SetSongStatus(ctx, song.ID, types.StatusAnalyzing, ""); err != nil {
			return nil, err
		}
		pending = append(pending, song)
	}
	return pending, nil
}

// persist records one analysis outcome
func (a *app) persist(ctx context.Context, r analysis.Result) {
	switch {
	case isCancelled(r.Err):
		// Left for summarize to reset
	case r.Err != nil:
		if err := a.store.SetSongStatus(ctx, r.Song.ID, types.StatusFailed, r.Err.Error()); err != nil {
			a.logger.Error().Err(err).Str("song", r.Song.ID).Msg("Failed to record failure")
		}
	default:
		if _, err := a.store.SaveAnalysis(ctx, r.Analysis); err != nil {
			a.logger.Error().Err(err).Str("song", r.Song.ID).Msg("Failed to save analysis")
		}
	}
}

func (a *app) summarize(ctx context.Context, results []analysis.Result) {
	var complete, empty, failed, cancelled int
	for _, r := range results {
		switch {
		case isCancelled(r.Err):
			cancelled++
			if err := a.store.SetSongStatus(ctx, r.Song.ID, types.StatusPending, ""); err != nil {
				a.logger.Warn().Err(err).Str("song", r.Song.ID).Msg("Failed to reset status")
			}
		case r.Err != nil:
			failed++
			fmt.Printf("  failed  %s: %v\n", r.Song.SourcePath, r.Err)
		case r.Analysis.Status == types.StatusNoSegments:
			empty++
		default:
			complete++
		}
	}

	fmt.Printf("Analyzed %d songs: %d with segments, %d without, %d failed", len(results), complete, empty, failed)
	if cancelled > 0 {
		fmt.Printf(", %d cancelled", cancelled)
	}
	fmt.Println()
}

func isCancelled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
