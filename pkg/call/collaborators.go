package call

import (
	"context"
	"encoding/json"

	"github.com/tomaslejdung/peepcall/pkg/layout"
	"github.com/tomaslejdung/peepcall/pkg/media"
	"github.com/tomaslejdung/peepcall/pkg/reconnect"
)

// Track is a local capture that can be switched on and off
type Track int

const (
	Microphone Track = iota
	Camera
)

func (t Track) String() string {
	if t == Microphone {
		return "microphone"
	}
	return "camera"
}

// Signaling is the media and transport layer a Session drives. Every
// method may block on the network and may fail.
type Signaling interface {
	// ConnectionID returns this client's ID in the current room
	ConnectionID() string

	// Publish starts sending a local source and returns its handle
	Publish(ctx context.Context, kind media.Kind) (media.Handle, error)

	// Unpublish stops sending a local source
	Unpublish(ctx context.Context, h media.Handle) error

	// SetTrackEnabled pauses or resumes a local capture without unpublishing
	SetTrackEnabled(track Track, enabled bool) error

	// Reconnect rejoins the session with the original credentials
	Reconnect(ctx context.Context) error

	// Send delivers an application message to the room
	Send(ctx context.Context, typ string, payload json.RawMessage) error
}

// Level is the severity of a notice
type Level int

const (
	Info Level = iota
	Success
	Warning
	Error
)

// Notice is a short-lived message for the user
type Notice struct {
	Level Level
	Text  string
}

// Participant is a remote member of the call
type Participant struct {
	ConnectionID string
	Label        string
}

// MediaState is the state of the local captures
type MediaState struct {
	MicOn        bool
	CameraOn     bool
	ScreenShared bool
}

// Presenter shows the call. A Session calls it from a single goroutine.
type Presenter interface {
	SetSlot(a layout.Assignment)
	ClearSlot(slot layout.Slot)
	SetConnectionStatus(st reconnect.Status)
	Notify(n Notice)
	ChatReceived(m ChatMessage)
	FileReceived(f SharedFile)
	ParticipantsChanged(ps []Participant)
	MediaStateChanged(ms MediaState)
}
