package signal

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	plog "github.com/tomaslejdung/peepcall/pkg/log"
)

// DialOptions tunes Dial
type DialOptions struct {
	HandshakeTimeout time.Duration // websocket handshake and join reply (default: 5s)
	Previous         string        // connection ID this join replaces, if any
}

// Client implements Transport over a WebSocket to a signal server
type Client struct {
	conn    *websocket.Conn
	connMu  sync.Mutex
	joined  Message
	msgChan chan Message
	done    chan struct{}
	logger  zerolog.Logger

	closeMu    sync.Mutex
	closed     bool
	disconnect disconnectNotifier
}

// Dial connects to the signal server at signalURL and joins the session
func Dial(ctx context.Context, signalURL string, p JoinParams, opts DialOptions) (*Client, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = 5 * time.Second
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: opts.HandshakeTimeout,
	}
	wsURL := WebSocketURL(signalURL, p.Room())
	conn, _, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("connect to signal server: %w", err)
	}
	conn.SetReadLimit(DefaultReadLimit)

	joinMsg := Message{
		Type:     TypeJoin,
		Room:     p.Room(),
		Token:    p.Token,
		Data:     EncodeParticipantMetadata(p.Username),
		Previous: opts.Previous,
	}
	if err := conn.WriteJSON(joinMsg); err != nil {
		conn.Close()
		return nil, fmt.Errorf("send join message: %w", err)
	}

	// Wait for join confirmation
	conn.SetReadDeadline(time.Now().Add(opts.HandshakeTimeout))
	var joinResp Message
	if err := conn.ReadJSON(&joinResp); err != nil {
		conn.Close()
		return nil, fmt.Errorf("read join response: %w", err)
	}
	if joinResp.Type == TypeError {
		conn.Close()
		return nil, &JoinError{Code: joinResp.Code, Message: joinResp.Error}
	}
	if joinResp.Type != TypeJoined {
		conn.Close()
		return nil, fmt.Errorf("unexpected join response %q", joinResp.Type)
	}
	conn.SetReadDeadline(time.Time{})

	c := &Client{
		conn:    conn,
		joined:  joinResp,
		msgChan: make(chan Message, 100),
		done:    make(chan struct{}),
		logger:  plog.Component("signal-client").With().Str(plog.FieldConnectionID, joinResp.ConnectionID).Logger(),
	}
	go c.readLoop()
	return c, nil
}

func (c *Client) readLoop() {
	var readErr error
	defer func() {
		close(c.msgChan)
		c.closeMu.Lock()
		var call func()
		if !c.closed {
			call = c.disconnect.trigger(readErr)
		}
		c.closeMu.Unlock()
		if call != nil {
			call()
		}
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			readErr = err
			c.logger.Debug().Err(err).Msg("websocket read ended")
			return
		}
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Warn().Err(err).Msg("invalid message format")
			continue
		}
		select {
		case c.msgChan <- msg:
		case <-c.done:
			return
		}
	}
}

// Joined returns the join confirmation
func (c *Client) Joined() Message {
	return c.joined
}

// Send writes a message to the server
func (c *Client) Send(msg Message) error {
	c.closeMu.Lock()
	closed := c.closed
	c.closeMu.Unlock()
	if closed {
		return ErrTransportClosed
	}

	c.connMu.Lock()
	defer c.connMu.Unlock()
	if err := c.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("send %s: %w", msg.Type, err)
	}
	return nil
}

// Messages returns channel of incoming messages
func (c *Client) Messages() <-chan Message {
	return c.msgChan
}

// SetDisconnectHandler sets callback for when connection is lost
func (c *Client) SetDisconnectHandler(handler func(err error)) {
	c.closeMu.Lock()
	call := c.disconnect.set(handler)
	c.closeMu.Unlock()
	if call != nil {
		go call()
	}
}

// Close leaves the room and shuts the connection down
func (c *Client) Close() error {
	c.closeMu.Lock()
	if c.closed {
		c.closeMu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	c.closeMu.Unlock()

	c.connMu.Lock()
	c.conn.SetWriteDeadline(time.Now().Add(time.Second))
	c.conn.WriteJSON(Message{Type: TypeLeave})
	c.connMu.Unlock()
	return c.conn.Close()
}
