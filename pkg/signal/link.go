package signal

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrMissingSessionParams is returned when a call cannot start because the
// session ID, username or token is absent
var ErrMissingSessionParams = errors.New("missing session parameters")

// JoinParams identifies the call to join and who is joining
type JoinParams struct {
	SessionID string
	Username  string
	Token     string
}

// Validate reports every missing field at once
func (p JoinParams) Validate() error {
	var missing []string
	if strings.TrimSpace(p.SessionID) == "" {
		missing = append(missing, "sessionId")
	}
	if strings.TrimSpace(p.Username) == "" {
		missing = append(missing, "username")
	}
	if strings.TrimSpace(p.Token) == "" {
		missing = append(missing, "token")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingSessionParams, strings.Join(missing, ", "))
	}
	if !ValidateRoomCode(NormalizeRoomCode(p.SessionID)) {
		return fmt.Errorf("invalid session id %q", p.SessionID)
	}
	return nil
}

// Room returns the normalized room code for the session
func (p JoinParams) Room() string {
	return NormalizeRoomCode(p.SessionID)
}

// ParseCallLink reads sessionId, username and token from the query string
// of a call link such as https://host/call?sessionId=X&username=Y&token=Z.
// A bare query string ("sessionId=X&...") is accepted as well. Missing
// parameters are left empty; call Validate to enforce them.
func ParseCallLink(raw string) (JoinParams, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return JoinParams{}, nil
	}

	query := raw
	if i := strings.Index(raw, "?"); i >= 0 {
		query = raw[i+1:]
	} else if strings.Contains(raw, "://") {
		query = ""
	}
	if i := strings.Index(query, "#"); i >= 0 {
		query = query[:i]
	}

	values, err := url.ParseQuery(query)
	if err != nil {
		return JoinParams{}, fmt.Errorf("parse call link: %w", err)
	}
	return JoinParams{
		SessionID: values.Get("sessionId"),
		Username:  values.Get("username"),
		Token:     values.Get("token"),
	}, nil
}

// CallLink builds a link that ParseCallLink reads back
func CallLink(base string, p JoinParams) string {
	v := url.Values{}
	v.Set("sessionId", p.SessionID)
	if p.Username != "" {
		v.Set("username", p.Username)
	}
	v.Set("token", p.Token)
	return strings.TrimSuffix(base, "/") + "/call?" + v.Encode()
}

// WebSocketURL normalizes a signal server address into the ws(s) URL of a room
func WebSocketURL(signalURL, room string) string {
	switch {
	case strings.HasPrefix(signalURL, "http://"):
		signalURL = "ws://" + strings.TrimPrefix(signalURL, "http://")
	case strings.HasPrefix(signalURL, "https://"):
		signalURL = "wss://" + strings.TrimPrefix(signalURL, "https://")
	case !strings.HasPrefix(signalURL, "ws://") && !strings.HasPrefix(signalURL, "wss://"):
		signalURL = "wss://" + signalURL
	}
	return strings.TrimSuffix(signalURL, "/") + "/ws/" + url.PathEscape(room)
}
