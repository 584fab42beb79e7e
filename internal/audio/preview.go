package audio

import (
	"context"
	"fmt"
)

// Previewer plays a time range of a song with short fades at both ends
type Previewer struct {
	decoder *FFmpegDecoder
	output  *OtoOutput
	fade    float64
}

// NewPreviewer creates a previewer that fades in and out over fade seconds
func NewPreviewer(decoder *FFmpegDecoder, output *OtoOutput, fade float64) *Previewer {
	return &Previewer{decoder: decoder, output: output, fade: fade}
}

// Preview plays path from start to end seconds and returns once playback
// has finished or ctx is done
func (p *Previewer) Preview(ctx context.Context, path string, start, end float64) error {
	p.output.Stop()
	p.output.SetEnvelope(end-start, min(p.fade, (end-start)/2))

	if err := p.decoder.DecodeRange(ctx, path, start, end, p.output); err != nil {
		return fmt.Errorf("preview %s: %w", path, err)
	}
	return p.output.Drain(ctx)
}
