package call

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ChatMessage is the body of a chat signal
type ChatMessage struct {
	Message   string    `json:"message"`
	Username  string    `json:"username"`
	Timestamp time.Time `json:"timestamp"`

	From string `json:"-"` // connection ID of the sender
	Mine bool   `json:"-"`
}

// encodeChat builds the payload for text. Blank text yields nil.
func encodeChat(text, username string, now time.Time) (json.RawMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}
	b, err := json.Marshal(ChatMessage{Message: text, Username: username, Timestamp: now})
	if err != nil {
		return nil, fmt.Errorf("encode chat: %w", err)
	}
	return b, nil
}

func decodeChat(payload json.RawMessage) (ChatMessage, error) {
	var m ChatMessage
	if err := json.Unmarshal(payload, &m); err != nil {
		return ChatMessage{}, fmt.Errorf("decode chat: %w", err)
	}
	m.Message = strings.TrimSpace(m.Message)
	if m.Message == "" {
		return ChatMessage{}, fmt.Errorf("decode chat: empty message")
	}
	return m, nil
}
