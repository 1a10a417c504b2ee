package signal

import "encoding/json"

// Message types exchanged over the signaling channel
const (
	TypeJoin              = "join"               // client -> server
	TypeJoined            = "joined"             // server -> joining client
	TypeLeave             = "leave"              // client -> server
	TypeParticipantJoined = "participant-joined" // server -> others
	TypeParticipantLeft   = "participant-left"   // server -> others
	TypeOffer             = "offer"              // client -> client, routed by To
	TypeAnswer            = "answer"             // client -> client, routed by To
	TypeICE               = "ice"                // client -> client, routed by To
	TypeStreamCreated     = "stream-created"     // client -> others
	TypeStreamDestroyed   = "stream-destroyed"   // client -> others
	TypeChat              = "chat"               // client -> whole room
	TypeFile              = "file"               // client -> whole room
	TypeError             = "error"              // server -> client
)

// Error codes carried in Message.Code
const (
	CodeRoomFull     = "room-full"
	CodeTokenInvalid = "token-invalid"
	CodeBadRequest   = "bad-request"
)

// Message is a WebSocket signaling message
type Message struct {
	Type         string `json:"type"`
	Room         string `json:"room,omitempty"`         // session code
	Token        string `json:"token,omitempty"`        // room token, checked on join
	Data         string `json:"data,omitempty"`         // raw participant metadata
	ConnectionID string `json:"connectionId,omitempty"` // sender, or own ID in joined
	Previous     string `json:"previous,omitempty"`     // connection ID being replaced on rejoin
	To           string `json:"to,omitempty"`           // recipient for offer/answer/ice
	SDP          string `json:"sdp,omitempty"`
	Candidate    string `json:"candidate,omitempty"` // JSON-encoded ICE candidate init
	Code         string `json:"code,omitempty"`
	Error        string `json:"error,omitempty"`

	Stream       *StreamInfo     `json:"stream,omitempty"`       // stream-created / stream-destroyed
	Participants []Participant   `json:"participants,omitempty"` // joined
	Streams      []StreamInfo    `json:"streams,omitempty"`      // joined
	Payload      json.RawMessage `json:"payload,omitempty"`      // chat and file bodies
}

// Participant is another member of the room
type Participant struct {
	ConnectionID string `json:"connectionId"`
	Data         string `json:"data,omitempty"`
}

// StreamInfo describes a published stream
type StreamInfo struct {
	StreamID     string `json:"streamId"`
	ConnectionID string `json:"connectionId"`
	ScreenShare  bool   `json:"screenShare,omitempty"`
	HasAudio     bool   `json:"hasAudio,omitempty"`
	HasVideo     bool   `json:"hasVideo,omitempty"`
}
