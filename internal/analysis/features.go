package analysis

import (
	"fmt"
	"math"

	"github.com/mjibson/go-dsp/window"
	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/floats"

	"github.com/austinkregel/local-media/mixd/internal/config"
)

// normEpsilon keeps min-max normalization finite on constant input
const normEpsilon = 1e-8

// Waveform is decoded mono audio
type Waveform struct {
	Samples    []float64
	SampleRate int
}

// Duration returns the waveform length in seconds
func (w Waveform) Duration() float64 {
	if w.SampleRate <= 0 {
		return 0
	}
	return float64(len(w.Samples)) / float64(w.SampleRate)
}

// WaveformFeatures contains normalized per-frame features of a song
type WaveformFeatures struct {
	Volume          []float64 // RMS amplitude
	Brightness      []float64 // Spectral centroid
	RhythmicPunch   []float64 // Onset strength
	FramesPerSecond float64
}

// Len returns the aligned frame count
func (f *WaveformFeatures) Len() int {
	return minLen(f.Volume, f.Brightness, f.RhythmicPunch)
}

// FeatureExtractor extracts per-frame audio features from mono samples.
// It holds only read-only state and may be shared between goroutines.
type FeatureExtractor struct {
	frameLength int
	hopLength   int
	window      []float64
}

// NewFeatureExtractor creates a new feature extractor
func NewFeatureExtractor(cfg config.AnalysisConfig) *FeatureExtractor {
	return &FeatureExtractor{
		frameLength: cfg.FrameLength,
		hopLength:   cfg.HopLength,
		window:      window.Hann(cfg.FrameLength),
	}
}

// Extract computes volume, brightness and rhythmic punch for every frame.
// Frames are centered on multiples of the hop length.
func (fe *FeatureExtractor) Extract(w Waveform) (*WaveformFeatures, error) {
	if w.SampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate %d", w.SampleRate)
	}
	if len(w.Samples) < fe.frameLength {
		return nil, &InsufficientAudioError{Samples: len(w.Samples), Required: fe.frameLength}
	}

	// half zeros before, frameLength-half after, so odd lengths fit too
	half := fe.frameLength / 2
	padded := make([]float64, len(w.Samples)+fe.frameLength)
	copy(padded[half:], w.Samples)

	numFrames := 1 + len(w.Samples)/fe.hopLength
	volume := make([]float64, numFrames)
	brightness := make([]float64, numFrames)
	punch := make([]float64, numFrames)

	fft := fourier.NewFFT(fe.frameLength)
	windowed := make([]float64, fe.frameLength)
	coeffs := make([]complex128, fe.frameLength/2+1)
	spectrum := make([]float64, fe.frameLength/2+1)
	prevLog := make([]float64, len(spectrum))
	curLog := make([]float64, len(spectrum))
	binHz := float64(w.SampleRate) / float64(fe.frameLength)

	for i := 0; i < numFrames; i++ {
		start := i * fe.hopLength
		frame := padded[start : start+fe.frameLength]

		volume[i] = computeRMS(frame)

		for j := range frame {
			windowed[j] = frame[j] * fe.window[j]
		}
		coeffs = fft.Coefficients(coeffs, windowed)
		for j, c := range coeffs {
			spectrum[j] = math.Hypot(real(c), imag(c))
			curLog[j] = math.Log1p(spectrum[j])
		}

		brightness[i] = computeSpectralCentroid(spectrum, binHz)
		if i > 0 {
			punch[i] = computeSpectralFlux(curLog, prevLog)
		}
		prevLog, curLog = curLog, prevLog
	}

	return &WaveformFeatures{
		Volume:          normalize(volume),
		Brightness:      normalize(brightness),
		RhythmicPunch:   normalize(punch),
		FramesPerSecond: float64(w.SampleRate) / float64(fe.hopLength),
	}, nil
}

// computeRMS computes root mean square energy
func computeRMS(frame []float64) float64 {
	var sum float64
	for _, s := range frame {
		sum += s * s
	}
	return math.Sqrt(sum / float64(len(frame)))
}

// computeSpectralCentroid computes the "center of mass" of the spectrum in Hz
func computeSpectralCentroid(spectrum []float64, binHz float64) float64 {
	var weightedSum, sum float64
	for i, mag := range spectrum {
		weightedSum += float64(i) * binHz * mag
		sum += mag
	}
	if sum == 0 {
		return 0
	}
	return weightedSum / sum
}

// computeSpectralFlux is the mean positive change of the log spectrum
func computeSpectralFlux(cur, prev []float64) float64 {
	var flux float64
	for i := range cur {
		if diff := cur[i] - prev[i]; diff > 0 {
			flux += diff
		}
	}
	return flux / float64(len(cur))
}

// normalize min-max scales values into [0,1] in place
func normalize(values []float64) []float64 {
	if len(values) == 0 {
		return values
	}
	lo, hi := floats.Min(values), floats.Max(values)
	scale := hi - lo + normEpsilon
	for i, v := range values {
		values[i] = (v - lo) / scale
	}
	return values
}

func minLen(seqs ...[]float64) int {
	if len(seqs) == 0 {
		return 0
	}
	n := len(seqs[0])
	for _, s := range seqs[1:] {
		if len(s) < n {
			n = len(s)
		}
	}
	return n
}
