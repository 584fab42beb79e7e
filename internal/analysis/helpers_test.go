package analysis

import (
	"math"
	"math/rand"
)

// clickTrack renders noise bursts on every beat over a quiet sine bed.
// loudFrom/loudTo mark a section played at full level.
func clickTrack(seconds float64, sampleRate int, bpm, loudFrom, loudTo float64) Waveform {
	rng := rand.New(rand.NewSource(1))
	n := int(seconds * float64(sampleRate))
	samples := make([]float64, n)

	beat := 60.0 / bpm
	burst := int(0.03 * float64(sampleRate))
	for i := range samples {
		t := float64(i) / float64(sampleRate)
		level := 0.2
		if t >= loudFrom && t < loudTo {
			level = 0.9
		}
		samples[i] = 0.1 * level * math.Sin(2*math.Pi*220*t)

		sinceBeat := math.Mod(t, beat)
		if int(sinceBeat*float64(sampleRate)) < burst {
			samples[i] += level * (rng.Float64()*2 - 1)
		}
	}
	return Waveform{Samples: samples, SampleRate: sampleRate}
}

// flatCurve returns a curve of the given length at a constant value
func flatCurve(seconds, fps, value float64) EnergyCurve {
	values := make([]float64, int(seconds*fps))
	for i := range values {
		values[i] = value
	}
	return EnergyCurve{Values: values, FramesPerSecond: fps}
}

// raise sets the curve to value between two times
func raise(c EnergyCurve, from, to, value float64) {
	for i := int(from * c.FramesPerSecond); i <= int(to*c.FramesPerSecond) && i < len(c.Values); i++ {
		c.Values[i] = value
	}
}

func inUnitRange(values []float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || v < 0 || v > 1 {
			return false
		}
	}
	return true
}
