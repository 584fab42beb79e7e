package audio

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/hajimehoshi/oto/v2"
)

const (
	defaultSampleRate = 44100
	defaultChannels   = 2
	defaultBitDepth   = 2 // 16-bit = 2 bytes

	// 100ms at 44100Hz stereo 16-bit
	maxBufferSize = 17640
)

// Output receives interleaved 16-bit PCM
type Output interface {
	io.WriteCloser
	SampleRate() int
	Channels() int
}

// OtoOutput is an audio output using the Oto library. Playback gain follows
// a fade-in/fade-out envelope over the clip being played.
type OtoOutput struct {
	context    *oto.Context
	player     oto.Player // oto.Player is an interface, not a pointer
	sampleRate int
	channels   int
	mu         sync.Mutex
	buffer     *bytes.Buffer
	volume     float64 // 0.0 - 1.0
	closed     bool

	// Envelope, in frames
	played      int
	totalFrames int
	fadeFrames  int
}

// NewOtoOutput creates a new Oto-based audio output
func NewOtoOutput() (*OtoOutput, error) {
	return NewOtoOutputWithConfig(defaultSampleRate, defaultChannels)
}

// NewOtoOutputWithConfig creates a new Oto-based audio output with custom config
func NewOtoOutputWithConfig(sampleRate, channels int) (*OtoOutput, error) {
	ctx, ready, err := oto.NewContext(sampleRate, channels, defaultBitDepth)
	if err != nil {
		return nil, fmt.Errorf("failed to create oto context: %w", err)
	}
	<-ready

	output := &OtoOutput{
		context:    ctx,
		sampleRate: sampleRate,
		channels:   channels,
		buffer:     &bytes.Buffer{},
		volume:     1.0,
	}
	output.player = ctx.NewPlayer(output)

	return output, nil
}

// SetEnvelope resets the playback position and fades the first and last
// fade seconds of a clip lasting total seconds
func (o *OtoOutput) SetEnvelope(total, fade float64) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.played = 0
	o.totalFrames = int(total * float64(o.sampleRate))
	o.fadeFrames = int(fade * float64(o.sampleRate))
}

// Read implements io.Reader for the player to read from
func (o *OtoOutput) Read(p []byte) (n int, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return 0, io.EOF
	}

	// Keep the stream alive with silence while the decoder catches up
	if o.buffer.Len() == 0 {
		for i := range p {
			p[i] = 0
		}
		return len(p), nil
	}

	n, err = o.buffer.Read(p)
	if err != nil {
		return n, err
	}
	o.applyGain(p[:n])

	return n, nil
}

// gain returns the envelope times volume for a frame
func (o *OtoOutput) gain(frame int) float64 {
	g := o.volume
	if o.fadeFrames <= 0 {
		return g
	}
	if frame < o.fadeFrames {
		g *= float64(frame) / float64(o.fadeFrames)
	}
	if o.totalFrames > 0 {
		if left := o.totalFrames - frame; left < o.fadeFrames {
			g *= max(0, float64(left)) / float64(o.fadeFrames)
		}
	}
	return g
}

// applyGain scales 16-bit little-endian PCM in place and advances the
// playback position
func (o *OtoOutput) applyGain(data []byte) {
	channels := max(o.channels, 1)
	frameBytes := 2 * channels

	for i := 0; i+1 < len(data); i += 2 {
		frame := o.played + i/frameBytes
		g := o.gain(frame)
		if g >= 1.0 {
			continue
		}

		sample := int16(data[i]) | int16(data[i+1])<<8
		scaled := int16(float64(sample) * g)
		data[i] = byte(scaled)
		data[i+1] = byte(scaled >> 8)
	}
	o.played += len(data) / frameBytes
}

// SetVolume sets the playback volume (0.0 - 1.0)
func (o *OtoOutput) SetVolume(v float64) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	o.volume = v
}

// GetVolume returns the current volume
func (o *OtoOutput) GetVolume() float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.volume
}

// Write writes PCM audio data to the output buffer.
// Blocks while the buffer is full so decoding keeps pace with playback.
func (o *OtoOutput) Write(data []byte) (int, error) {
	for {
		o.mu.Lock()
		if o.closed {
			o.mu.Unlock()
			return 0, io.ErrClosedPipe
		}
		if o.buffer.Len() < maxBufferSize {
			break
		}
		o.mu.Unlock()
		time.Sleep(10 * time.Millisecond)
	}
	defer o.mu.Unlock()

	n, err := o.buffer.Write(data)
	if err != nil {
		return n, err
	}

	if o.player != nil && !o.player.IsPlaying() {
		o.player.Play()
	}

	return n, nil
}

// Drain waits until everything written has been handed to the device
func (o *OtoOutput) Drain(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		o.mu.Lock()
		empty := o.buffer.Len() == 0
		o.mu.Unlock()
		if empty {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Stop stops playback and clears the buffer
func (o *OtoOutput) Stop() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.player != nil {
		o.player.Pause()
	}
	o.buffer.Reset()
}

// Close releases the audio output resources
func (o *OtoOutput) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.closed = true
	if o.player != nil {
		if err := o.player.Close(); err != nil {
			return err
		}
	}
	return nil
}

// SampleRate returns the sample rate
func (o *OtoOutput) SampleRate() int {
	return o.sampleRate
}

// Channels returns the number of channels
func (o *OtoOutput) Channels() int {
	return o.channels
}

var _ Output = (*OtoOutput)(nil)
