package audio

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-audio/wav"
	"github.com/rs/zerolog"

	"github.com/austinkregel/local-media/mixd/internal/analysis"
	"github.com/austinkregel/local-media/mixd/internal/types"
)

var errWAVMismatch = errors.New("wav format does not match analysis rate")

// FileSource loads song waveforms from local files
type FileSource struct {
	decoder    *FFmpegDecoder
	sampleRate int
	logger     zerolog.Logger
}

// NewFileSource creates a waveform source. decoder may be nil, in which case
// only WAV files at the analysis rate can be loaded.
func NewFileSource(decoder *FFmpegDecoder, sampleRate int, logger zerolog.Logger) *FileSource {
	return &FileSource{
		decoder:    decoder,
		sampleRate: sampleRate,
		logger:     logger.With().Str("component", "audio").Logger(),
	}
}

// LoadWaveform decodes a song to mono samples at the analysis rate
func (s *FileSource) LoadWaveform(ctx context.Context, song types.SongInfo) (analysis.Waveform, error) {
	if strings.EqualFold(filepath.Ext(song.SourcePath), ".wav") {
		samples, err := readWAV(song.SourcePath, s.sampleRate)
		if err == nil {
			return analysis.Waveform{Samples: samples, SampleRate: s.sampleRate}, nil
		}
		s.logger.Debug().Err(err).Str("path", song.SourcePath).Msg("WAV fast path unavailable")
	}

	if s.decoder == nil {
		return analysis.Waveform{}, fmt.Errorf("load %s: no decoder available", song.SourcePath)
	}

	samples, err := s.decoder.DecodeMono(ctx, song.SourcePath, s.sampleRate)
	if err != nil {
		return analysis.Waveform{}, err
	}
	return analysis.Waveform{Samples: samples, SampleRate: s.sampleRate}, nil
}

// readWAV reads a PCM WAV file recorded at sampleRate, mixing down to mono
func readWAV(path string, sampleRate int) ([]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	decoder := wav.NewDecoder(f)
	if !decoder.IsValidFile() {
		return nil, fmt.Errorf("invalid WAV file %s", path)
	}
	if int(decoder.SampleRate) != sampleRate || decoder.BitDepth == 0 || decoder.NumChans == 0 {
		return nil, errWAVMismatch
	}

	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("read WAV %s: %w", path, err)
	}

	channels := int(decoder.NumChans)
	scale := math.Pow(2, float64(decoder.BitDepth-1))
	samples := make([]float64, len(buf.Data)/channels)
	for i := range samples {
		var sum float64
		for c := 0; c < channels; c++ {
			sum += float64(buf.Data[i*channels+c])
		}
		samples[i] = sum / float64(channels) / scale
	}
	return samples, nil
}

var _ analysis.WaveformSource = (*FileSource)(nil)
