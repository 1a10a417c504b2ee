// Package media tracks the logical video sources of a call: the local camera,
// the local screen share, and the cameras and screen shares of remote
// participants.
package media

import "fmt"

// Kind identifies the origin of a source
type Kind int

const (
	LocalCamera Kind = iota
	LocalScreen
	RemoteCamera
	RemoteScreen
)

func (k Kind) String() string {
	switch k {
	case LocalCamera:
		return "local-camera"
	case LocalScreen:
		return "local-screen"
	case RemoteCamera:
		return "remote-camera"
	case RemoteScreen:
		return "remote-screen"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// IsLocal reports whether the kind is published by this client
func (k Kind) IsLocal() bool {
	return k == LocalCamera || k == LocalScreen
}

// IsScreen reports whether the kind is a screen share
func (k Kind) IsScreen() bool {
	return k == LocalScreen || k == RemoteScreen
}

// ReadyState is the readiness of the underlying media
type ReadyState int

const (
	Pending ReadyState = iota
	Ready
	Ended
)

func (s ReadyState) String() string {
	switch s {
	case Pending:
		return "pending"
	case Ready:
		return "ready"
	case Ended:
		return "ended"
	default:
		return "unknown"
	}
}

// Handle is a non-owning reference to a set of tracks owned by the
// signaling layer. It must not be used after the stream is destroyed.
type Handle interface {
	StreamID() string
}

// Source is one logical video origin
type Source struct {
	Kind   Kind
	Owner  string // local username or remote connection ID
	Label  string // display name of the owner
	ID     string // stream ID, for sources whose handle is not known yet
	Handle Handle
	State  ReadyState

	seq uint64 // registration order, stamped by the registry
}

// StreamID returns ID if set, else the handle's stream ID
func (s Source) StreamID() string {
	if s.ID != "" {
		return s.ID
	}
	if s.Handle == nil {
		return ""
	}
	return s.Handle.StreamID()
}

// Key identifies a source for slot comparisons
func (s Source) Key() string {
	return s.Kind.String() + "/" + s.Owner
}

// Seq returns the registration sequence number
func (s Source) Seq() uint64 {
	return s.seq
}

// Displayable reports whether the source can be put in a slot.
// Sources without a handle or whose media has ended are skipped.
func (s Source) Displayable() bool {
	return s.Handle != nil && s.State != Ended
}
