//go:build linux

package media

import (
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"
)

const (
	mprisInterface       = "org.mpris.MediaPlayer2"
	mprisPlayerInterface = "org.mpris.MediaPlayer2.Player"
	mprisBusName         = "org.mpris.MediaPlayer2.mixd"
	mprisObjectPath      = "/org/mpris/MediaPlayer2"
	propertiesInterface  = "org.freedesktop.DBus.Properties"
)

// MPRISSession exposes previews over MPRIS on the session bus
type MPRISSession struct {
	conn *dbus.Conn

	mu       sync.Mutex
	onStop   func()
	metadata Metadata
	state    PlaybackState
}

// NewSession connects to the session bus and claims the mixd MPRIS name
func NewSession() (Session, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to session bus: %w", err)
	}

	reply, err := conn.RequestName(mprisBusName, dbus.NameFlagDoNotQueue)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to request bus name: %w", err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		conn.Close()
		return nil, fmt.Errorf("bus name %s already taken", mprisBusName)
	}

	s := &MPRISSession{conn: conn}
	for _, iface := range []string{mprisInterface, mprisPlayerInterface, propertiesInterface} {
		if err := conn.Export(s, mprisObjectPath, iface); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to export %s: %w", iface, err)
		}
	}
	return s, nil
}

// Announce publishes metadata and marks the session as playing
func (s *MPRISSession) Announce(metadata Metadata) error {
	s.mu.Lock()
	s.metadata = metadata
	s.state = StatePlaying
	props := map[string]dbus.Variant{
		"Metadata":       dbus.MakeVariant(s.metadataMap()),
		"PlaybackStatus": dbus.MakeVariant(s.playbackStatus()),
	}
	s.mu.Unlock()

	return s.emitPropertiesChanged(props)
}

// Stopped marks the session as stopped
func (s *MPRISSession) Stopped() error {
	s.mu.Lock()
	s.state = StateStopped
	props := map[string]dbus.Variant{
		"PlaybackStatus": dbus.MakeVariant(s.playbackStatus()),
	}
	s.mu.Unlock()

	return s.emitPropertiesChanged(props)
}

// OnStop sets the function called on Stop or Pause from the desktop
func (s *MPRISSession) OnStop(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onStop = fn
}

// Close releases the bus connection
func (s *MPRISSession) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

func (s *MPRISSession) stop() {
	s.mu.Lock()
	fn := s.onStop
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// org.mpris.MediaPlayer2

func (s *MPRISSession) Raise() *dbus.Error { return nil }
func (s *MPRISSession) Quit() *dbus.Error  { return nil }

// org.mpris.MediaPlayer2.Player. A preview can only be stopped.

func (s *MPRISSession) Play() *dbus.Error     { return nil }
func (s *MPRISSession) Next() *dbus.Error     { return nil }
func (s *MPRISSession) Previous() *dbus.Error { return nil }

func (s *MPRISSession) Pause() *dbus.Error {
	s.stop()
	return nil
}

func (s *MPRISSession) PlayPause() *dbus.Error {
	s.stop()
	return nil
}

func (s *MPRISSession) Stop() *dbus.Error {
	s.stop()
	return nil
}

func (s *MPRISSession) Seek(offset int64) *dbus.Error { return nil }

func (s *MPRISSession) SetPosition(trackID dbus.ObjectPath, position int64) *dbus.Error {
	return nil
}

// org.freedesktop.DBus.Properties

func (s *MPRISSession) Get(iface, prop string) (dbus.Variant, *dbus.Error) {
	all, dErr := s.GetAll(iface)
	if dErr != nil {
		return dbus.Variant{}, dErr
	}
	v, ok := all[prop]
	if !ok {
		return dbus.Variant{}, dbus.MakeFailedError(fmt.Errorf("unknown property: %s", prop))
	}
	return v, nil
}

func (s *MPRISSession) GetAll(iface string) (map[string]dbus.Variant, *dbus.Error) {
	switch iface {
	case mprisInterface:
		return map[string]dbus.Variant{
			"CanQuit":             dbus.MakeVariant(false),
			"CanRaise":            dbus.MakeVariant(false),
			"HasTrackList":        dbus.MakeVariant(false),
			"Identity":            dbus.MakeVariant("mixd"),
			"SupportedUriSchemes": dbus.MakeVariant([]string{"file"}),
			"SupportedMimeTypes":  dbus.MakeVariant([]string{"audio/mpeg", "audio/ogg", "audio/webm", "audio/x-m4a"}),
		}, nil
	case mprisPlayerInterface:
		s.mu.Lock()
		defer s.mu.Unlock()
		return map[string]dbus.Variant{
			"PlaybackStatus": dbus.MakeVariant(s.playbackStatus()),
			"Metadata":       dbus.MakeVariant(s.metadataMap()),
			"Rate":           dbus.MakeVariant(1.0),
			"MinimumRate":    dbus.MakeVariant(1.0),
			"MaximumRate":    dbus.MakeVariant(1.0),
			"CanGoNext":      dbus.MakeVariant(false),
			"CanGoPrevious":  dbus.MakeVariant(false),
			"CanPlay":        dbus.MakeVariant(false),
			"CanPause":       dbus.MakeVariant(true),
			"CanSeek":        dbus.MakeVariant(false),
			"CanControl":     dbus.MakeVariant(true),
		}, nil
	}
	return nil, dbus.MakeFailedError(fmt.Errorf("unknown interface: %s", iface))
}

func (s *MPRISSession) Set(iface, prop string, value dbus.Variant) *dbus.Error {
	return nil
}

// playbackStatus and metadataMap expect s.mu to be held
func (s *MPRISSession) playbackStatus() string {
	if s.state == StatePlaying {
		return "Playing"
	}
	return "Stopped"
}

func (s *MPRISSession) metadataMap() map[string]dbus.Variant {
	m := map[string]dbus.Variant{
		"mpris:trackid": dbus.MakeVariant(trackPath(s.metadata.SegmentID)),
	}
	if title := s.metadata.DisplayTitle(); title != "" {
		m["xesam:title"] = dbus.MakeVariant(title)
	}
	if s.metadata.Artist != "" {
		m["xesam:artist"] = dbus.MakeVariant([]string{s.metadata.Artist})
	}
	if s.metadata.Duration > 0 {
		m["mpris:length"] = dbus.MakeVariant(s.metadata.Duration.Microseconds())
	}
	return m
}

// trackPath turns a segment ID into a valid D-Bus object path
func trackPath(segmentID string) dbus.ObjectPath {
	clean := make([]byte, 0, len(segmentID))
	for i := 0; i < len(segmentID); i++ {
		c := segmentID[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_':
			clean = append(clean, c)
		default:
			clean = append(clean, '_')
		}
	}
	if len(clean) == 0 {
		return "/org/mixd/segment/none"
	}
	return dbus.ObjectPath("/org/mixd/segment/" + string(clean))
}

func (s *MPRISSession) emitPropertiesChanged(props map[string]dbus.Variant) error {
	return s.conn.Emit(
		mprisObjectPath,
		propertiesInterface+".PropertiesChanged",
		mprisPlayerInterface,
		props,
		[]string{},
	)
}
