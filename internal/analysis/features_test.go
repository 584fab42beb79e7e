package analysis

import (
	"errors"
	"math"
	"testing"

	"github.com/austinkregel/local-media/mixd/internal/config"
)

func TestExtractRejectsShortAudio(t *testing.T) {
	fe := NewFeatureExtractor(config.DefaultAnalysisConfig())

	tests := []struct {
		name    string
		samples []float64
	}{
		{"empty", nil},
		{"shorter than one window", make([]float64, 1000)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := fe.Extract(Waveform{Samples: tt.samples, SampleRate: 22050})
			var shortErr *InsufficientAudioError
			if !errors.As(err, &shortErr) {
				t.Fatalf("Expected InsufficientAudioError, got %v", err)
			}
			if shortErr.Required != 2048 {
				t.Errorf("Expected required 2048, got %d", shortErr.Required)
			}
		})
	}
}

func TestExtractNormalizesFeatures(t *testing.T) {
	cfg := config.DefaultAnalysisConfig()
	fe := NewFeatureExtractor(cfg)
	w := clickTrack(10, cfg.SampleRate, 120, 4, 6)

	f, err := fe.Extract(w)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	expectedFrames := 1 + len(w.Samples)/cfg.HopLength
	for name, seq := range map[string][]float64{
		"volume":     f.Volume,
		"brightness": f.Brightness,
		"punch":      f.RhythmicPunch,
	} {
		if len(seq) != expectedFrames {
			t.Errorf("Expected %d %s frames, got %d", expectedFrames, name, len(seq))
		}
		if !inUnitRange(seq) {
			t.Errorf("Expected %s within [0,1]", name)
		}
	}

	if math.Abs(f.FramesPerSecond-22050.0/512.0) > 1e-9 {
		t.Errorf("Unexpected frame rate %v", f.FramesPerSecond)
	}
}

func TestExtractOddFrameLength(t *testing.T) {
	cfg := config.DefaultAnalysisConfig()
	cfg.FrameLength = 2047
	fe := NewFeatureExtractor(cfg)

	// A whole number of hops puts the last frame flush against the padding
	samples := make([]float64, 100*cfg.HopLength)
	for i := range samples {
		samples[i] = math.Sin(2 * math.Pi * 440 * float64(i) / float64(cfg.SampleRate))
	}

	f, err := fe.Extract(Waveform{Samples: samples, SampleRate: cfg.SampleRate})
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if f.Len() != 101 {
		t.Errorf("Expected 101 frames, got %d", f.Len())
	}
	if !inUnitRange(f.Volume) || !inUnitRange(f.Brightness) || !inUnitRange(f.RhythmicPunch) {
		t.Error("Expected features within [0,1]")
	}
}

func TestExtractLoudSectionHasHigherVolume(t *testing.T) {
	cfg := config.DefaultAnalysisConfig()
	fe := NewFeatureExtractor(cfg)
	f, err := fe.Extract(clickTrack(10, cfg.SampleRate, 120, 5, 10))
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	half := len(f.Volume) / 2
	var quiet, loud float64
	for i := 10; i < half-10; i++ {
		quiet += f.Volume[i]
	}
	for i := half + 10; i < len(f.Volume)-10; i++ {
		loud += f.Volume[i]
	}
	if loud <= quiet {
		t.Errorf("Expected loud half to have more volume (%v <= %v)", loud, quiet)
	}
}

func TestExtractBrightnessFollowsPitch(t *testing.T) {
	cfg := config.DefaultAnalysisConfig()
	fe := NewFeatureExtractor(cfg)

	n := cfg.SampleRate * 4
	samples := make([]float64, n)
	for i := range samples {
		freq := 300.0
		if i >= n/2 {
			freq = 5000.0
		}
		samples[i] = 0.5 * math.Sin(2*math.Pi*freq*float64(i)/float64(cfg.SampleRate))
	}

	f, err := fe.Extract(Waveform{Samples: samples, SampleRate: cfg.SampleRate})
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	first := f.Brightness[20]
	second := f.Brightness[len(f.Brightness)-20]
	if second <= first {
		t.Errorf("Expected brighter second half, got %v then %v", first, second)
	}
}

func TestExtractSilenceIsFinite(t *testing.T) {
	fe := NewFeatureExtractor(config.DefaultAnalysisConfig())

	f, err := fe.Extract(Waveform{Samples: make([]float64, 22050), SampleRate: 22050})
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	for _, seq := range [][]float64{f.Volume, f.Brightness, f.RhythmicPunch} {
		for _, v := range seq {
			if v != 0 {
				t.Fatalf("Expected zero features for silence, got %v", v)
			}
		}
	}
}
