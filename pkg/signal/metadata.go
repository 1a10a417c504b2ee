package signal

import (
	"encoding/json"
	"fmt"
	"strings"

	plog "github.com/tomaslejdung/peepcall/pkg/log"
)

// ParticipantMetadata is the typed form of the free-form data a participant
// attaches when joining
type ParticipantMetadata struct {
	Username   string
	ClientData string
}

// DisplayName returns the best name to show for the participant
func (m ParticipantMetadata) DisplayName() string {
	if m.ClientData != "" {
		return m.ClientData
	}
	return m.Username
}

// UnparseableMetadataError is returned when the data carries no usable name
type UnparseableMetadataError struct {
	Raw string
}

func (e *UnparseableMetadataError) Error() string {
	return fmt.Sprintf("unparseable participant metadata %q", e.Raw)
}

// ParseParticipantMetadata accepts the forms seen on the wire:
//
//	{"clientData":"Alice"} or {"username":"alice"}   JSON object
//	Alice%{"serverData":...}                          '%'-joined segments, first wins
//	Alice                                             plain string
func ParseParticipantMetadata(raw string) (ParticipantMetadata, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ParticipantMetadata{}, &UnparseableMetadataError{Raw: raw}
	}

	if md, ok := parseJSONMetadata(s); ok {
		return md, nil
	}

	// the first '%' segment carries the client's own data
	if i := strings.Index(s, "%"); i >= 0 {
		s = strings.TrimSpace(s[:i])
	}
	if s == "" {
		return ParticipantMetadata{}, &UnparseableMetadataError{Raw: raw}
	}

	if strings.HasPrefix(s, "{") {
		md, ok := parseJSONMetadata(s)
		if !ok {
			return ParticipantMetadata{}, &UnparseableMetadataError{Raw: raw}
		}
		return md, nil
	}

	return ParticipantMetadata{Username: s}, nil
}

func parseJSONMetadata(s string) (ParticipantMetadata, bool) {
	if !strings.HasPrefix(s, "{") {
		return ParticipantMetadata{}, false
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(s), &obj); err != nil {
		return ParticipantMetadata{}, false
	}
	md := ParticipantMetadata{
		ClientData: stringField(obj, "clientData"),
		Username:   stringField(obj, "username"),
	}
	if md.DisplayName() == "" {
		return ParticipantMetadata{}, false
	}
	return md, true
}

func stringField(obj map[string]any, key string) string {
	v, ok := obj[key].(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(v)
}

// EncodeParticipantMetadata builds the data string sent with join
func EncodeParticipantMetadata(username string) string {
	b, _ := json.Marshal(map[string]string{"clientData": username, "username": username})
	return string(b)
}

// LabelFor parses raw and returns the display name, or fallback with a
// warning logged when raw cannot be parsed
func LabelFor(raw, fallback string) string {
	md, err := ParseParticipantMetadata(raw)
	if err != nil {
		logger := plog.Component("signal")
		logger.Warn().Str("raw", raw).Msg("participant metadata unparseable, using placeholder label")
		return fallback
	}
	return md.DisplayName()
}
