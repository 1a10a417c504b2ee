package signal

import (
	"encoding/json"

	"github.com/gorilla/websocket"

	plog "github.com/tomaslejdung/peepcall/pkg/log"
)

// readPump reads messages from the WebSocket
func (m *member) readPump() {
	defer func() {
		m.server.removeMember(m, "connection closed")
		m.conn.Close()
	}()

	for {
		_, data, err := m.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				m.server.logger.Warn().Err(err).Str(plog.FieldConnectionID, m.id).Msg("websocket error")
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			m.server.logger.Warn().Err(err).Msg("invalid message format")
			continue
		}

		if !m.handleMessage(msg) {
			return
		}
	}
}

// writePump sends messages to the WebSocket
func (m *member) writePump() {
	defer m.conn.Close()

	for data := range m.send {
		if err := m.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			m.server.logger.Warn().Err(err).Str(plog.FieldConnectionID, m.id).Msg("websocket write error")
			return
		}
	}
	m.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// handleMessage processes one incoming message. It returns false once the
// member has left or been removed; nothing it sends afterwards is handled.
func (m *member) handleMessage(msg Message) bool {
	if m.isClosed() {
		return false
	}
	if msg.Type == TypeJoin {
		m.server.join(m, msg)
		return true
	}

	room, ok := m.server.lookupRoom(m.room)
	if !ok || !room.has(m) {
		m.deliverMsg(Message{Type: TypeError, Code: CodeBadRequest, Error: "join first"})
		return true
	}

	switch msg.Type {
	case TypeOffer, TypeAnswer, TypeICE:
		m.forwardTo(room, msg)
	case TypeStreamCreated:
		m.handleStreamCreated(room, msg)
	case TypeStreamDestroyed:
		m.handleStreamDestroyed(room, msg)
	case TypeChat, TypeFile:
		m.broadcastAll(room, msg)
	case TypeLeave:
		m.server.removeMember(m, "left")
		return false
	default:
		m.server.logger.Debug().Str("type", msg.Type).Msg("unknown message type")
	}
	return true
}

func (r *Room) has(m *member) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return m.id != "" && r.members[m.id] == m
}

// forwardTo routes a negotiation message to msg.To, stamped with the sender
func (m *member) forwardTo(room *Room, msg Message) {
	room.mu.RLock()
	defer room.mu.RUnlock()

	target, ok := room.members[msg.To]
	if !ok {
		m.server.logger.Debug().Str("to", msg.To).Str("type", msg.Type).Msg("recipient not in room")
		return
	}
	msg.ConnectionID = m.id
	target.deliverMsg(msg)
}

// handleStreamCreated records a published stream and tells the others
func (m *member) handleStreamCreated(room *Room, msg Message) {
	if msg.Stream == nil || msg.Stream.StreamID == "" {
		m.deliverMsg(Message{Type: TypeError, Code: CodeBadRequest, Error: "stream-created without stream"})
		return
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	info := *msg.Stream
	info.ConnectionID = m.id
	room.streams[info.StreamID] = info
	room.broadcast(Message{Type: TypeStreamCreated, ConnectionID: m.id, Data: m.data, Stream: &info}, m)
}

// handleStreamDestroyed drops a stream the sender owns and tells the others
func (m *member) handleStreamDestroyed(room *Room, msg Message) {
	if msg.Stream == nil {
		return
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	info, ok := room.streams[msg.Stream.StreamID]
	if !ok || info.ConnectionID != m.id {
		return
	}
	delete(room.streams, info.StreamID)
	room.broadcast(Message{Type: TypeStreamDestroyed, ConnectionID: m.id, Stream: &info}, m)
}

// broadcastAll echoes chat and files to the whole room, sender included
func (m *member) broadcastAll(room *Room, msg Message) {
	room.mu.RLock()
	defer room.mu.RUnlock()

	msg.ConnectionID = m.id
	msg.Data = m.data
	msg.To = ""
	room.broadcast(msg, nil)
}
