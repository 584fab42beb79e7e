package analysis

import "fmt"

// InsufficientAudioError is returned when a waveform is too short to analyze
type InsufficientAudioError struct {
	Samples  int
	Required int
}

func (e *InsufficientAudioError) Error() string {
	return fmt.Sprintf("insufficient audio: %d samples, need at least %d", e.Samples, e.Required)
}

// Beat search directions
const (
	SearchAfter  = "after"
	SearchBefore = "before"
)

// NoBeatFoundError is returned when no beat lies on the requested side of a time
type NoBeatFoundError struct {
	Time      float64
	Direction string
	Radius    float64
}

func (e *NoBeatFoundError) Error() string {
	return fmt.Sprintf("no beat %s %.2fs within %.2fs", e.Direction, e.Time, e.Radius)
}
