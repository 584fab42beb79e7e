// Package scanner provides library scanning functionality.
// It walks configured library paths and finds songs, reading yt-dlp
// .info.json sidecars where they exist.
package scanner

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/austinkregel/local-media/mixd/internal/audio"
	"github.com/austinkregel/local-media/mixd/internal/types"
)

// SupportedExtensions are the audio file extensions we recognize
var SupportedExtensions = map[string]bool{
	".mp3":  true,
	".flac": true,
	".m4a":  true,
	".aac":  true,
	".ogg":  true,
	".wav":  true,
	".wma":  true,
	".alac": true,
	".opus": true,
	".webm": true,
}

// MetadataReader reads embedded tags from an audio file
type MetadataReader interface {
	Metadata(path string) (*audio.FileMetadata, error)
}

// Scanner handles library scanning
type Scanner struct {
	mu         sync.Mutex
	isRunning  bool
	metadata   MetadataReader
	numWorkers int
	logger     zerolog.Logger
}

// NewScanner creates a new scanner. metadata may be nil, in which case songs
// without a sidecar are named after their file.
func NewScanner(metadata MetadataReader, logger zerolog.Logger) *Scanner {
	return &Scanner{
		metadata:   metadata,
		numWorkers: 4,
		logger:     logger.With().Str("component", "scanner").Logger(),
	}
}

// IsRunning returns whether a scan is in progress
func (s *Scanner) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isRunning
}

// Scan walks the given library paths and returns the songs found, sorted by
// path. Unreadable library paths are logged and skipped.
func (s *Scanner) Scan(ctx context.Context, paths []string) ([]types.SongInfo, error) {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil, errors.New("scan already in progress")
	}
	s.isRunning = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()
	}()

	start := time.Now()
	var files []string
	for _, libraryPath := range paths {
		found, err := s.walk(ctx, libraryPath)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		if err != nil {
			s.logger.Warn().Err(err).Str("path", libraryPath).Msg("Skipping library path")
			continue
		}
		files = append(files, found...)
	}
	sort.Strings(files)

	songs, err := s.describe(ctx, files)
	if err != nil {
		return nil, err
	}

	// The same video can live in two libraries; keep the first path
	seen := make(map[string]bool, len(songs))
	out := songs[:0]
	for _, song := range songs {
		if seen[song.ID] {
			s.logger.Warn().Str("id", song.ID).Str("path", song.SourcePath).Msg("Duplicate song, skipping")
			continue
		}
		seen[song.ID] = true
		out = append(out, song)
	}

	s.logger.Info().
		Int("songs", len(out)).
		Int("libraries", len(paths)).
		Dur("elapsed", time.Since(start)).
		Msg("Scan complete")
	return out, nil
}

// walk collects audio files under a single library path
func (s *Scanner) walk(ctx context.Context, libraryPath string) ([]string, error) {
	info, err := os.Stat(libraryPath)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, errors.New("path is not a directory")
	}

	var files []string
	err = filepath.WalkDir(libraryPath, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // Skip files we can't access
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && path != libraryPath {
				return filepath.SkipDir
			}
			return nil
		}

		if SupportedExtensions[strings.ToLower(filepath.Ext(path))] {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// describe builds song info for each file using a small worker pool
func (s *Scanner) describe(ctx context.Context, files []string) ([]types.SongInfo, error) {
	songs := make([]types.SongInfo, len(files))
	jobs := make(chan int, len(files))
	for i := range files {
		jobs <- i
	}
	close(jobs)

	var wg sync.WaitGroup
	for w := 0; w < s.numWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				if ctx.Err() != nil {
					return
				}
				songs[i] = s.songFor(files[i])
			}
		}()
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return songs, nil
}

// songFor describes one file, preferring its .info.json sidecar
func (s *Scanner) songFor(path string) types.SongInfo {
	song := types.SongInfo{SourcePath: path}

	infoPath := SidecarPath(path)
	if info, err := ReadInfoJSON(infoPath); err == nil {
		song.ID = info.ID
		song.Title = info.Title
		song.Artist = info.ArtistName()
		song.Language = info.Language
		song.SourceURL = info.WebpageURL
		song.InfoPath = infoPath
		song.Duration = info.Duration
	} else if !errors.Is(err, os.ErrNotExist) {
		s.logger.Warn().Err(err).Str("path", infoPath).Msg("Ignoring unreadable sidecar")
	}

	if s.metadata != nil && (song.Title == "" || song.Duration == 0) {
		if meta, err := s.metadata.Metadata(path); err == nil {
			if song.Title == "" {
				song.Title = meta.Title
			}
			if song.Artist == "" {
				song.Artist = meta.Artist
			}
			if song.Language == "" {
				song.Language = meta.Language
			}
			if song.Duration == 0 {
				song.Duration = meta.Duration.Seconds()
			}
		} else {
			s.logger.Debug().Err(err).Str("path", path).Msg("No embedded metadata")
		}
	}

	if song.ID == "" {
		song.ID = PathID(path)
	}
	if song.Title == "" {
		base := filepath.Base(path)
		song.Title = strings.TrimSuffix(base, filepath.Ext(base))
	}
	return song
}

// SidecarPath returns where yt-dlp writes the info file for an audio file
func SidecarPath(path string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ".info.json"
}

// PathID derives a stable song ID from a file path
func PathID(path string) string {
	sum := sha256.Sum256([]byte(filepath.Clean(path)))
	return "local-" + hex.EncodeToString(sum[:8])
}
