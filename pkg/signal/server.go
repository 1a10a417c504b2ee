package signal

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	plog "github.com/tomaslejdung/peepcall/pkg/log"
)

const (
	// DefaultMaxParticipants keeps rooms one-to-one
	DefaultMaxParticipants = 2
	// DefaultReadLimit leaves room for a 2 MiB file after base64 encoding
	DefaultReadLimit = 4 << 20
)

// member is one connected client, over a websocket or in-process
type member struct {
	id     string
	room   string
	data   string
	conn   *websocket.Conn // nil for in-process clients
	send   chan []byte
	server *Server

	mu     sync.Mutex
	closed bool // send is closed, the member is gone
}

// deliver queues data without blocking. A full buffer drops the message,
// and so does a member that has been removed.
func (m *member) deliver(data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	select {
	case m.send <- data:
	default:
		m.server.logger.Warn().Str(plog.FieldConnectionID, m.id).Msg("send buffer full, dropping message")
	}
}

func (m *member) deliverMsg(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		m.server.logger.Error().Err(err).Str("type", msg.Type).Msg("marshal message")
		return
	}
	m.deliver(data)
}

func (m *member) closeSend() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.send)
	}
}

func (m *member) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Room holds the members and live streams of one session
type Room struct {
	code    string
	token   string // set by the first member, required from later ones
	members map[string]*member
	streams map[string]StreamInfo
	mu      sync.RWMutex
}

// others returns every member except m, as wire participants
func (r *Room) others(m *member) []Participant {
	out := make([]Participant, 0, len(r.members))
	for id, other := range r.members {
		if other == m {
			continue
		}
		out = append(out, Participant{ConnectionID: id, Data: other.data})
	}
	return out
}

func (r *Room) broadcast(msg Message, except *member) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	for _, other := range r.members {
		if other != except {
			other.deliver(data)
		}
	}
}

// Options configures a Server
type Options struct {
	MaxParticipants int
	ReadLimit       int64
	Logger          *zerolog.Logger
}

// Server manages WebSocket connections and room routing
type Server struct {
	rooms    map[string]*Room
	mu       sync.RWMutex
	upgrader websocket.Upgrader

	maxParticipants int
	readLimit       int64
	logger          zerolog.Logger
}

// NewServer creates a new signaling server
func NewServer(opts Options) *Server {
	if opts.MaxParticipants <= 0 {
		opts.MaxParticipants = DefaultMaxParticipants
	}
	if opts.ReadLimit <= 0 {
		opts.ReadLimit = DefaultReadLimit
	}
	logger := plog.Component("signal-server")
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	return &Server{
		rooms: make(map[string]*Room),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		maxParticipants: opts.MaxParticipants,
		readLimit:       opts.ReadLimit,
		logger:          logger,
	}
}

// newMember creates an unjoined member for room
func (s *Server) newMember(roomCode string, conn *websocket.Conn) *member {
	return &member{
		room:   NormalizeRoomCode(roomCode),
		conn:   conn,
		send:   make(chan []byte, 256),
		server: s,
	}
}

// lookupRoom returns the room if it exists
func (s *Server) lookupRoom(code string) (*Room, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	room, ok := s.rooms[NormalizeRoomCode(code)]
	return room, ok
}

// join adds m to its room, creating the room if needed
func (s *Server) join(m *member, msg Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, exists := s.rooms[m.room]
	if !exists {
		room = &Room{
			code:    m.room,
			token:   msg.Token,
			members: make(map[string]*member),
			streams: make(map[string]StreamInfo),
		}
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	if room.token != "" && msg.Token != room.token {
		m.deliverMsg(Message{Type: TypeError, Code: CodeTokenInvalid, Error: "invalid room token"})
		return
	}
	if m.id != "" && room.members[m.id] == m {
		m.deliverMsg(Message{Type: TypeError, Code: CodeBadRequest, Error: "already joined"})
		return
	}

	// a rejoining client replaces its stale connection
	if msg.Previous != "" {
		if stale, ok := room.members[msg.Previous]; ok {
			s.logger.Info().Str(plog.FieldRoom, room.code).Str(plog.FieldConnectionID, stale.id).Msg("replacing stale connection")
			s.removeLocked(room, stale)
		}
	}

	if len(room.members) >= s.maxParticipants {
		m.deliverMsg(Message{Type: TypeError, Code: CodeRoomFull, Error: "room is full"})
		return
	}

	m.id = uuid.NewString()
	m.data = msg.Data
	room.members[m.id] = m
	s.rooms[room.code] = room

	streams := make([]StreamInfo, 0, len(room.streams))
	for _, st := range room.streams {
		streams = append(streams, st)
	}
	m.deliverMsg(Message{
		Type:         TypeJoined,
		Room:         room.code,
		ConnectionID: m.id,
		Participants: room.others(m),
		Streams:      streams,
	})
	room.broadcast(Message{Type: TypeParticipantJoined, ConnectionID: m.id, Data: m.data}, m)

	s.logger.Info().
		Str(plog.FieldRoom, room.code).
		Str(plog.FieldConnectionID, m.id).
		Int("participants", len(room.members)).
		Msg("participant joined")
}

// removeMember removes m from its room. Removing a member twice is a no-op.
func (s *Server) removeMember(m *member, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, exists := s.rooms[m.room]
	if !exists {
		m.closeSend()
		return
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	if room.members[m.id] == m {
		s.logger.Info().
			Str(plog.FieldRoom, room.code).
			Str(plog.FieldConnectionID, m.id).
			Str(plog.FieldReason, reason).
			Msg("participant left")
		s.removeLocked(room, m)
	} else {
		m.closeSend()
	}

	if len(room.members) == 0 {
		delete(s.rooms, room.code)
	}
}

// removeLocked drops m and its streams and tells the others.
// Callers hold s.mu and room.mu.
func (s *Server) removeLocked(room *Room, m *member) {
	delete(room.members, m.id)
	for id, st := range room.streams {
		if st.ConnectionID != m.id {
			continue
		}
		delete(room.streams, id)
		info := st
		room.broadcast(Message{Type: TypeStreamDestroyed, ConnectionID: m.id, Stream: &info}, nil)
	}
	room.broadcast(Message{Type: TypeParticipantLeft, ConnectionID: m.id}, nil)
	m.closeSend()
}

// HandleWebSocket handles WebSocket connections for signaling
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	// Extract room code from URL path: /ws/{room-code}
	roomCode := NormalizeRoomCode(strings.TrimPrefix(r.URL.Path, "/ws/"))
	if !ValidateRoomCode(roomCode) {
		http.Error(w, "Invalid room code", http.StatusBadRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	conn.SetReadLimit(s.readLimit)

	m := s.newMember(roomCode, conn)
	go m.writePump()
	go m.readPump()
}

// HandleHealth reports liveness and the number of open rooms
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status": "ok",
		"rooms":  s.RoomCount(),
	})
}

// Handler returns the HTTP routes of the server
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws/", s.HandleWebSocket)
	mux.HandleFunc("/health", s.HandleHealth)
	return mux
}

// Run serves on addr until ctx is cancelled
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("signal server starting")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

// RoomCount returns the number of open rooms
func (s *Server) RoomCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rooms)
}

// ParticipantCount returns number of members in a room
func (s *Server) ParticipantCount(roomCode string) int {
	room, ok := s.lookupRoom(roomCode)
	if !ok {
		return 0
	}
	room.mu.RLock()
	defer room.mu.RUnlock()
	return len(room.members)
}

// Disconnect drops a member as if its connection had been lost
func (s *Server) Disconnect(roomCode, connectionID string) bool {
	room, ok := s.lookupRoom(roomCode)
	if !ok {
		return false
	}
	room.mu.RLock()
	m, ok := room.members[connectionID]
	room.mu.RUnlock()
	if !ok {
		return false
	}
	s.removeMember(m, "dropped")
	return true
}
