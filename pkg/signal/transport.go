package signal

import (
	"errors"
	"fmt"
)

// ErrTransportClosed is returned when sending on a closed transport
var ErrTransportClosed = errors.New("signal transport closed")

// Transport is a joined signaling connection.
// Client implements it over a WebSocket, LocalClient in-process.
type Transport interface {
	// Joined returns the server's join confirmation
	Joined() Message

	// Send delivers a message to the server
	Send(msg Message) error

	// Messages returns the channel of incoming messages. It is closed when
	// the connection ends.
	Messages() <-chan Message

	// SetDisconnectHandler sets a callback for a connection lost without
	// Close being called. If the connection is already gone the handler
	// runs right away.
	SetDisconnectHandler(handler func(err error))

	// Close leaves the room and shuts the connection down
	Close() error
}

// JoinError is a join refused by the server
type JoinError struct {
	Code    string
	Message string
}

func (e *JoinError) Error() string {
	return fmt.Sprintf("join refused (%s): %s", e.Code, e.Message)
}

// Retryable reports whether joining again later could succeed
func (e *JoinError) Retryable() bool {
	return e.Code == CodeRoomFull
}

// disconnectNotifier runs a disconnect handler at most once, whichever of
// the disconnect and the handler registration comes last
type disconnectNotifier struct {
	handler func(error)
	fired   bool
	err     error
	done    bool
}

// set stores h and returns a call to make if the disconnect already happened
func (d *disconnectNotifier) set(h func(error)) func() {
	d.handler = h
	if d.done && !d.fired && h != nil {
		d.fired = true
		err := d.err
		return func() { h(err) }
	}
	return nil
}

// trigger records the disconnect and returns a call to make if a handler is set
func (d *disconnectNotifier) trigger(err error) func() {
	d.done = true
	d.err = err
	if d.handler != nil && !d.fired {
		d.fired = true
		h := d.handler
		return func() { h(err) }
	}
	return nil
}
