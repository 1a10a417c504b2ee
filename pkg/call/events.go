package call

import (
	"encoding/json"

	"github.com/tomaslejdung/peepcall/pkg/media"
)

// Event is something the signaling layer reports to a Session
type Event interface {
	eventName() string
}

// StreamCreated announces a remote stream. Handle may be nil until the
// tracks arrive; StreamReady fills it in.
type StreamCreated struct {
	ConnectionID string
	Data         string // raw participant metadata
	StreamID     string
	ScreenShare  bool
	Handle       media.Handle
}

// StreamDestroyed removes a stream, local or remote
type StreamDestroyed struct {
	StreamID string
}

// StreamReady reports that the media of a stream can be shown. It may
// arrive before the matching StreamCreated.
type StreamReady struct {
	StreamID string
	Handle   media.Handle
}

// StreamEnded reports that the media of a stream stopped on its own, such
// as a screen file reaching its end
type StreamEnded struct {
	StreamID string
}

// ConnectionCreated announces a participant
type ConnectionCreated struct {
	ConnectionID string
	Data         string
}

// ConnectionDestroyed reports that a participant left
type ConnectionDestroyed struct {
	ConnectionID string
}

// Disconnected reports that the session lost its network connection
type Disconnected struct {
	Reason string
}

// Reconnecting reports that the signaling layer is retrying on its own
type Reconnecting struct{}

// Reconnected reports that the signaling layer recovered on its own
type Reconnected struct{}

// SignalReceived carries an application message such as chat or a file
type SignalReceived struct {
	Type    string
	From    string // connection ID of the sender
	Data    string // raw metadata of the sender
	Payload json.RawMessage
}

func (StreamCreated) eventName() string       { return "stream-created" }
func (StreamDestroyed) eventName() string     { return "stream-destroyed" }
func (StreamReady) eventName() string         { return "stream-ready" }
func (StreamEnded) eventName() string         { return "stream-ended" }
func (ConnectionCreated) eventName() string   { return "connection-created" }
func (ConnectionDestroyed) eventName() string { return "connection-destroyed" }
func (Disconnected) eventName() string        { return "disconnected" }
func (Reconnecting) eventName() string        { return "reconnecting" }
func (Reconnected) eventName() string         { return "reconnected" }
func (SignalReceived) eventName() string      { return "signal" }
