// Package audio decodes songs for analysis and plays segment previews.
package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/tcolgate/mp3"
)

// FileMetadata contains metadata extracted from an audio file
type FileMetadata struct {
	Title    string
	Artist   string
	Language string
	Duration time.Duration
}

// FFmpegDecoder uses FFmpeg for audio decoding
type FFmpegDecoder struct {
	ffmpegPath  string
	ffprobePath string
	maxRetries  uint64
	logger      zerolog.Logger
}

// NewFFmpegDecoder creates a new FFmpeg-based decoder
func NewFFmpegDecoder(logger zerolog.Logger) (*FFmpegDecoder, error) {
	ffmpegPath, err := exec.LookPath("ffmpeg")
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found in PATH: %w", err)
	}

	ffprobePath, err := exec.LookPath("ffprobe")
	if err != nil {
		return nil, fmt.Errorf("ffprobe not found in PATH: %w", err)
	}

	return &FFmpegDecoder{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		maxRetries:  2,
		logger:      logger.With().Str("component", "audio").Logger(),
	}, nil
}

// DecodeMono decodes a whole file to mono float samples at sampleRate.
// Failed runs are retried unless the context is done.
func (d *FFmpegDecoder) DecodeMono(ctx context.Context, path string, sampleRate int) ([]float64, error) {
	args := []string{
		"-v", "error",
		"-nostdin",
		"-i", path,
		"-f", "f32le",
		"-acodec", "pcm_f32le",
		"-ac", "1",
		"-ar", strconv.Itoa(sampleRate),
		"-",
	}

	var raw []byte
	operation := func() error {
		var stderr bytes.Buffer
		cmd := exec.CommandContext(ctx, d.ffmpegPath, args...)
		cmd.Stderr = &stderr

		out, err := cmd.Output()
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		if err != nil {
			d.logger.Warn().Err(err).Str("path", path).Msg("ffmpeg decode failed")
			return fmt.Errorf("ffmpeg: %w: %s", err, strings.TrimSpace(stderr.String()))
		}
		raw = out
		return nil
	}

	b := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), d.maxRetries)
	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	return decodeFloat32LE(raw), nil
}

// decodeFloat32LE converts little-endian float32 PCM to float64 samples.
// A trailing partial sample is dropped.
func decodeFloat32LE(raw []byte) []float64 {
	samples := make([]float64, len(raw)/4)
	for i := range samples {
		bits := binary.LittleEndian.Uint32(raw[i*4:])
		samples[i] = float64(math.Float32frombits(bits))
	}
	return samples
}

// DecodeRange decodes the part of a file between start and end seconds and
// writes 16-bit PCM to the output
func (d *FFmpegDecoder) DecodeRange(ctx context.Context, path string, start, end float64, output Output) error {
	if end <= start {
		return fmt.Errorf("empty range %.3f-%.3f", start, end)
	}

	args := []string{
		"-v", "error",
		"-nostdin",
		"-ss", fmt.Sprintf("%.3f", start),
		"-t", fmt.Sprintf("%.3f", end-start),
		"-i", path,
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"-ac", strconv.Itoa(output.Channels()),
		"-ar", strconv.Itoa(output.SampleRate()),
		"-",
	}

	cmd := exec.CommandContext(ctx, d.ffmpegPath, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to get stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	// Ensure process is killed and reaped on any exit path
	defer func() {
		if cmd.Process != nil {
			cmd.Process.Kill()
			cmd.Wait()
		}
	}()

	buf := make([]byte, 4096)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, err := stdout.Read(buf)
		if n > 0 {
			if _, writeErr := output.Write(buf[:n]); writeErr != nil {
				return fmt.Errorf("failed to write to output: %w", writeErr)
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read ffmpeg output: %w", err)
		}
	}

	return cmd.Wait()
}

// Duration returns the duration of an audio file. MP3 files are measured
// frame by frame, everything else goes through ffprobe.
func (d *FFmpegDecoder) Duration(path string) (time.Duration, error) {
	if strings.EqualFold(filepath.Ext(path), ".mp3") {
		if dur, err := mp3Duration(path); err == nil && dur > 0 {
			return dur, nil
		}
	}

	args := []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	}

	output, err := exec.Command(d.ffprobePath, args...).Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe failed: %w", err)
	}

	durationSec, err := strconv.ParseFloat(strings.TrimSpace(string(output)), 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse duration: %w", err)
	}

	return time.Duration(durationSec * float64(time.Second)), nil
}

func mp3Duration(path string) (time.Duration, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	var (
		dec     = mp3.NewDecoder(f)
		frame   mp3.Frame
		skipped int
		total   time.Duration
	)
	for {
		if err := dec.Decode(&frame, &skipped); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return 0, err
		}
		total += frame.Duration()
	}
	return total, nil
}

// Metadata extracts tags from an audio file using ffprobe
func (d *FFmpegDecoder) Metadata(path string) (*FileMetadata, error) {
	args := []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		path,
	}

	output, err := exec.Command(d.ffprobePath, args...).Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe failed: %w", err)
	}

	return parseProbe(output, path)
}

func parseProbe(output []byte, path string) (*FileMetadata, error) {
	var probeResult struct {
		Format struct {
			Duration string            `json:"duration"`
			Tags     map[string]string `json:"tags"`
		} `json:"format"`
	}

	if err := json.Unmarshal(output, &probeResult); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	meta := &FileMetadata{}

	// Tag keys vary in case between containers
	for key, value := range probeResult.Format.Tags {
		switch strings.ToLower(key) {
		case "title":
			meta.Title = value
		case "artist":
			meta.Artist = value
		case "album_artist":
			if meta.Artist == "" {
				meta.Artist = value
			}
		case "language":
			meta.Language = value
		}
	}

	if probeResult.Format.Duration != "" {
		if durationSec, err := strconv.ParseFloat(probeResult.Format.Duration, 64); err == nil {
			meta.Duration = time.Duration(durationSec * float64(time.Second))
		}
	}

	if meta.Title == "" {
		base := filepath.Base(path)
		meta.Title = strings.TrimSuffix(base, filepath.Ext(base))
	}

	return meta, nil
}
