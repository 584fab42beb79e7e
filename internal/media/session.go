// Package media announces segment previews to the desktop's media controls.
package media

import (
	"fmt"
	"time"
)

// PlaybackState represents the playback state shown by the desktop
type PlaybackState int

const (
	StateStopped PlaybackState = iota
	StatePlaying
)

// Metadata describes the segment being previewed
type Metadata struct {
	SegmentID string
	Title     string
	Artist    string
	Label     string
	Start     time.Duration // offset of the segment in the song
	Duration  time.Duration // length of the segment
}

// DisplayTitle is the song title followed by the segment label and offset
func (m Metadata) DisplayTitle() string {
	if m.Label == "" {
		return m.Title
	}
	s := int(m.Start.Seconds())
	return fmt.Sprintf("%s (%s @ %d:%02d)", m.Title, m.Label, s/60, s%60)
}

// Session is the interface for OS media session integration
type Session interface {
	// Announce shows metadata as playing
	Announce(metadata Metadata) error

	// Stopped clears the playing state
	Stopped() error

	// OnStop registers fn to be called when the user stops or pauses
	// playback from the desktop
	OnStop(fn func())

	// Close releases resources
	Close() error
}

// NoOpSession is used when media session integration is not available
type NoOpSession struct{}

func (NoOpSession) Announce(Metadata) error { return nil }
func (NoOpSession) Stopped() error          { return nil }
func (NoOpSession) OnStop(func())           {}
func (NoOpSession) Close() error            { return nil }
