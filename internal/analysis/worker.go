package analysis

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/austinkregel/local-media/mixd/internal/types"
)

// WaveformSource supplies decoded mono audio for a song
type WaveformSource interface {
	LoadWaveform(ctx context.Context, song types.SongInfo) (Waveform, error)
}

// HeatmapSource supplies crowd replay samples for a song. A nil slice with a
// nil error means the song has no heatmap.
type HeatmapSource interface {
	LoadHeatmap(ctx context.Context, song types.SongInfo) ([]HeatmapSample, error)
}

// BatchStatus represents the current state of a batch analysis
type BatchStatus struct {
	Status     string `json:"status"` // "idle", "running", "complete"
	TotalSongs int    `json:"totalSongs"`
	Analyzed   int    `json:"analyzed"`
	InProgress int    `json:"inProgress"`
	Failed     int    `json:"failed"`
	Message    string `json:"message"`
	StartedAt  int64  `json:"startedAt,omitempty"`
}

// Result contains the outcome of analyzing a single song
type Result struct {
	Song     types.SongInfo
	Analysis *SongAnalysis
	Err      error
	Elapsed  time.Duration
}

// WorkerConfig contains configuration for the analysis worker
type WorkerConfig struct {
	MaxWorkers int            // Maximum concurrent analyses (0 = NumCPU - 1)
	Waveforms  WaveformSource // Required
	Heatmaps   HeatmapSource  // Optional
	OnResult   func(Result)   // Called from the worker goroutine after each song
}

// Worker analyzes batches of songs on a bounded pool of goroutines.
// A failing song is reported in its Result and never stops the batch.
type Worker struct {
	mu sync.Mutex

	maxWorkers int
	waveforms  WaveformSource
	heatmaps   HeatmapSource
	analyzer   *Analyzer
	onResult   func(Result)
	logger     zerolog.Logger

	status    BatchStatus
	isRunning bool

	analyzedCount   int64
	failedCount     int64
	inProgressCount int64
}

// NewWorker creates a new batch analysis worker
func NewWorker(cfg WorkerConfig, analyzer *Analyzer, logger zerolog.Logger) (*Worker, error) {
	if cfg.Waveforms == nil {
		return nil, fmt.Errorf("waveform source is required")
	}

	maxWorkers := cfg.MaxWorkers
	if maxWorkers <= 0 {
		maxWorkers = runtime.NumCPU() - 1
		if maxWorkers < 1 {
			maxWorkers = 1
		}
	}

	return &Worker{
		maxWorkers: maxWorkers,
		waveforms:  cfg.Waveforms,
		heatmaps:   cfg.Heatmaps,
		analyzer:   analyzer,
		onResult:   cfg.OnResult,
		logger:     logger.With().Str("component", "worker").Logger(),
		status:     BatchStatus{Status: "idle"},
	}, nil
}

// GetStatus returns the current batch status
func (w *Worker) GetStatus() BatchStatus {
	w.mu.Lock()
	defer w.mu.Unlock()

	status := w.status
	status.Analyzed = int(atomic.LoadInt64(&w.analyzedCount))
	status.Failed = int(atomic.LoadInt64(&w.failedCount))
	status.InProgress = int(atomic.LoadInt64(&w.inProgressCount))
	return status
}

// IsRunning returns whether a batch is in progress
func (w *Worker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.isRunning
}

// Run analyzes every song and blocks until all are done or ctx is cancelled.
// Results are returned in input order; songs skipped by cancellation carry ctx.Err().
func (w *Worker) Run(ctx context.Context, songs []types.SongInfo) ([]Result, error) {
	w.mu.Lock()
	if w.isRunning {
		w.mu.Unlock()
		return nil, fmt.Errorf("analysis already running")
	}
	w.isRunning = true
	atomic.StoreInt64(&w.analyzedCount, 0)
	atomic.StoreInt64(&w.failedCount, 0)
	atomic.StoreInt64(&w.inProgressCount, 0)
	w.status = BatchStatus{
		Status:     "running",
		TotalSongs: len(songs),
		StartedAt:  time.Now().Unix(),
	}
	w.mu.Unlock()

	workers := w.maxWorkers
	if workers > len(songs) {
		workers = len(songs)
	}
	w.logger.Info().Int("songs", len(songs)).Int("workers", workers).Msg("starting analysis")

	jobs := make(chan int, len(songs))
	for i := range songs {
		jobs <- i
	}
	close(jobs)

	results := make([]Result, len(songs))
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			w.worker(ctx, workerID, songs, jobs, results)
		}(i)
	}
	wg.Wait()

	analyzed := atomic.LoadInt64(&w.analyzedCount)
	failed := atomic.LoadInt64(&w.failedCount)

	w.mu.Lock()
	w.isRunning = false
	w.status.Status = "complete"
	w.status.Message = fmt.Sprintf("Analysis complete: %d songs analyzed, %d failed", analyzed, failed)
	w.mu.Unlock()

	w.logger.Info().Int64("analyzed", analyzed).Int64("failed", failed).Msg("analysis finished")
	return results, ctx.Err()
}

// worker processes songs from the job channel
func (w *Worker) worker(ctx context.Context, id int, songs []types.SongInfo, jobs <-chan int, results []Result) {
	for idx := range jobs {
		song := songs[idx]
		if err := ctx.Err(); err != nil {
			results[idx] = Result{Song: song, Err: err}
			continue
		}

		atomic.AddInt64(&w.inProgressCount, 1)
		result := w.analyzeSong(ctx, song)
		atomic.AddInt64(&w.inProgressCount, -1)

		if result.Err != nil {
			atomic.AddInt64(&w.failedCount, 1)
			w.logger.Warn().Int("worker", id).Str("song", song.ID).Err(result.Err).Msg("analysis failed")
		} else {
			atomic.AddInt64(&w.analyzedCount, 1)
		}

		results[idx] = result
		if w.onResult != nil {
			w.onResult(result)
		}
	}
}

// analyzeSong loads and analyzes a single song
func (w *Worker) analyzeSong(ctx context.Context, song types.SongInfo) (result Result) {
	start := time.Now()
	result.Song = song
	defer func() {
		if r := recover(); r != nil {
			result.Analysis = nil
			result.Err = fmt.Errorf("analysis panicked: %v", r)
		}
		result.Elapsed = time.Since(start)
	}()

	waveform, err := w.waveforms.LoadWaveform(ctx, song)
	if err != nil {
		result.Err = fmt.Errorf("load audio: %w", err)
		return result
	}

	var heatmap []HeatmapSample
	if w.heatmaps != nil {
		heatmap, err = w.heatmaps.LoadHeatmap(ctx, song)
		if err != nil {
			w.logger.Warn().Str("song", song.ID).Err(err).Msg("heatmap unavailable, using energy only")
			heatmap = nil
		}
	}

	result.Analysis, result.Err = w.analyzer.AnalyzeSong(song.ID, waveform, heatmap)
	return result
}
