package signal

import (
	"encoding/json"
	"fmt"
	"sync"
)

// LocalClient implements Transport against a Server in the same process.
// It is used when the signal server runs embedded in the client.
type LocalClient struct {
	member  *member
	joined  Message
	msgChan chan Message
	done    chan struct{}

	mu         sync.Mutex
	closed     bool
	removed    bool
	disconnect disconnectNotifier
}

// ConnectLocal joins a room on s without a network connection
func (s *Server) ConnectLocal(p JoinParams, previous string) (*LocalClient, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	m := s.newMember(p.Room(), nil)
	m.handleMessage(Message{
		Type:     TypeJoin,
		Token:    p.Token,
		Data:     EncodeParticipantMetadata(p.Username),
		Previous: previous,
	})

	// join always answers synchronously
	var resp Message
	select {
	case data := <-m.send:
		if err := json.Unmarshal(data, &resp); err != nil {
			return nil, fmt.Errorf("decode join response: %w", err)
		}
	default:
		return nil, fmt.Errorf("no join response")
	}
	if resp.Type == TypeError {
		m.closeSend()
		return nil, &JoinError{Code: resp.Code, Message: resp.Error}
	}

	c := &LocalClient{
		member:  m,
		joined:  resp,
		msgChan: make(chan Message, 100),
		done:    make(chan struct{}),
	}
	go c.pump()
	return c, nil
}

func (c *LocalClient) pump() {
	for data := range c.member.send {
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		select {
		case c.msgChan <- msg:
		case <-c.done:
		}
	}
	close(c.msgChan)

	c.mu.Lock()
	c.removed = true
	var call func()
	if !c.closed {
		call = c.disconnect.trigger(fmt.Errorf("removed from room"))
	}
	c.mu.Unlock()
	if call != nil {
		call()
	}
}

// Joined returns the join confirmation
func (c *LocalClient) Joined() Message {
	return c.joined
}

// Send hands a message to the server. It fails with ErrTransportClosed
// once the client is closed or the server has dropped it.
func (c *LocalClient) Send(msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.removed {
		return ErrTransportClosed
	}
	if !c.member.handleMessage(msg) && msg.Type != TypeLeave {
		return ErrTransportClosed
	}
	return nil
}

// Messages returns channel of incoming messages
func (c *LocalClient) Messages() <-chan Message {
	return c.msgChan
}

// SetDisconnectHandler sets callback for when the server drops the client
func (c *LocalClient) SetDisconnectHandler(handler func(err error)) {
	c.mu.Lock()
	call := c.disconnect.set(handler)
	c.mu.Unlock()
	if call != nil {
		go call()
	}
}

// Close leaves the room
func (c *LocalClient) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	c.mu.Unlock()

	c.member.server.removeMember(c.member, "left")
	return nil
}
