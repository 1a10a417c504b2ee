package signal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseParticipantMetadata(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"plain", "Alice", "Alice"},
		{"client data json", `{"clientData":"Alice"}`, "Alice"},
		{"username json", `{"username":"alice"}`, "alice"},
		{"client data preferred", `{"clientData":"Alice","username":"alice"}`, "Alice"},
		{"percent joined", `Alice%{"serverData":"x"}`, "Alice"},
		{"percent joined json", `{"clientData":"Alice"}%{"serverData":"x"}`, "Alice"},
		{"percent inside json", `{"clientData":"50% Alice"}`, "50% Alice"},
		{"surrounding space", "  Bob  ", "Bob"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			md, err := ParseParticipantMetadata(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, md.DisplayName())
		})
	}
}

func TestParseParticipantMetadataUnparseable(t *testing.T) {
	for _, raw := range []string{"", "   ", "%rest", `{"clientData":""}`, `{"other":1}`, `{broken`} {
		_, err := ParseParticipantMetadata(raw)
		var unparseable *UnparseableMetadataError
		require.ErrorAs(t, err, &unparseable, "raw %q", raw)
		assert.Equal(t, raw, unparseable.Raw)
	}
}

func TestLabelFor(t *testing.T) {
	assert.Equal(t, "Alice", LabelFor(EncodeParticipantMetadata("Alice"), "Participant"))
	assert.Equal(t, "Participant", LabelFor("", "Participant"))
}
