package main

import (
	"bytes"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/pion/webrtc/v3"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomaslejdung/peepcall/pkg/config"
	"github.com/tomaslejdung/peepcall/pkg/layout"
	"github.com/tomaslejdung/peepcall/pkg/reconnect"
	"github.com/tomaslejdung/peepcall/pkg/settings"
	sig "github.com/tomaslejdung/peepcall/pkg/signal"
)

func TestJoinParams(t *testing.T) {
	link := "https://call.example.com/call?sessionId=coffee-1&username=Alice&token=tok"

	t.Run("from link", func(t *testing.T) {
		p, err := joinParams([]string{link}, sig.JoinParams{}, "")
		require.NoError(t, err)
		assert.Equal(t, "Alice", p.Username)
		assert.Equal(t, "COFFEE-1", p.Room())
	})

	t.Run("flags override link", func(t *testing.T) {
		p, err := joinParams([]string{link}, sig.JoinParams{Username: "Bob"}, "")
		require.NoError(t, err)
		assert.Equal(t, "Bob", p.Username)
		assert.Equal(t, "tok", p.Token)
	})

	t.Run("saved username fills the gap", func(t *testing.T) {
		p, err := joinParams(nil, sig.JoinParams{SessionID: "coffee-1", Token: "tok"}, "Carol")
		require.NoError(t, err)
		assert.Equal(t, "Carol", p.Username)
	})

	t.Run("missing parameters", func(t *testing.T) {
		_, err := joinParams([]string{"https://call.example.com/call?sessionId=coffee-1"}, sig.JoinParams{}, "")
		require.ErrorIs(t, err, sig.ErrMissingSessionParams)
		assert.Contains(t, err.Error(), "username")
		assert.Contains(t, err.Error(), "token")
	})
}

func TestLinkBase(t *testing.T) {
	assert.Equal(t, "https://gopeep.tineestudio.se", linkBase("wss://gopeep.tineestudio.se"))
	assert.Equal(t, "http://localhost:8080", linkBase("ws://localhost:8080"))
	assert.Equal(t, "https://example.com", linkBase("https://example.com"))
}

func TestNewCommandPrintsValidLink(t *testing.T) {
	var out bytes.Buffer
	cmd := newCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--base", "https://example.com"})
	require.NoError(t, cmd.Execute())

	link := strings.TrimSpace(out.String())
	assert.True(t, strings.HasPrefix(link, "https://example.com/call?"), link)

	p, err := sig.ParseCallLink(link)
	require.NoError(t, err)
	assert.True(t, sig.ValidateRoomCode(p.SessionID))
	assert.NotEmpty(t, p.Token)
	assert.Empty(t, p.Username)
}

func testJoinCommand(t *testing.T) *cobra.Command {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())
	chdir(t, t.TempDir())
	return joinCmd(&rootOptions{})
}

func TestLoadConfigPrecedence(t *testing.T) {
	prefs := settings.UserSettings{
		SignalURL:     "wss://saved.example.com",
		LayoutVariant: "local-primary",
		Codec:         "vp9",
	}

	t.Run("saved settings beat defaults", func(t *testing.T) {
		cmd := testJoinCommand(t)
		cfg, err := loadConfig(cmd, "", prefs)
		require.NoError(t, err)
		assert.Equal(t, "wss://saved.example.com", cfg.Signal.URL)
		assert.Equal(t, "local-primary", cfg.Layout.Variant)
		assert.Equal(t, "vp9", cfg.Publisher.Codec)
	})

	t.Run("flags beat saved settings", func(t *testing.T) {
		cmd := testJoinCommand(t)
		require.NoError(t, cmd.Flags().Set("signal", LocalSignalServer))
		require.NoError(t, cmd.Flags().Set("codec", "h264"))
		require.NoError(t, cmd.Flags().Set("force-relay", "true"))
		cfg, err := loadConfig(cmd, "", prefs)
		require.NoError(t, err)
		assert.Equal(t, LocalSignalServer, cfg.Signal.URL)
		assert.Equal(t, "h264", cfg.Publisher.Codec)
		assert.True(t, cfg.ICE.ForceRelay)
	})

	t.Run("environment beats saved settings", func(t *testing.T) {
		cmd := testJoinCommand(t)
		t.Setenv("PEEPCALL_LAYOUT_VARIANT", "remote-primary")
		cfg, err := loadConfig(cmd, "", prefs)
		require.NoError(t, err)
		assert.Equal(t, "remote-primary", cfg.Layout.Variant)
	})

	t.Run("invalid flag value is rejected", func(t *testing.T) {
		cmd := testJoinCommand(t)
		require.NoError(t, cmd.Flags().Set("codec", "theora"))
		_, err := loadConfig(cmd, "", settings.DefaultSettings())
		assert.Error(t, err)
	})
}

func TestSessionConfig(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	sc := sessionConfig(cfg, settings.UserSettings{StartMuted: true}, "Alice")
	assert.Equal(t, "Alice", sc.Username)
	assert.Equal(t, layout.RemotePrimary, sc.Variant)
	assert.Equal(t, []time.Duration{500 * time.Millisecond, time.Second, 2 * time.Second}, sc.ArrangementDelays)
	assert.Equal(t, reconnect.Policy{MaxAttempts: 5, BaseDelay: 2 * time.Second}, sc.Policy)
	assert.Equal(t, reconnect.DialChecker{Address: "stun.l.google.com:19302"}, sc.Online)
	assert.Equal(t, int64(2*1024*1024), sc.MaxFileSize)
	assert.True(t, sc.StartMuted)
	assert.False(t, sc.StartNoCamera)
}

func TestICEConfiguration(t *testing.T) {
	stun := []string{"stun:stun.l.google.com:19302"}

	t.Run("stun only", func(t *testing.T) {
		c := iceConfiguration(config.ICEConfig{STUNServers: stun})
		require.Len(t, c.ICEServers, 1)
		assert.Equal(t, stun, c.ICEServers[0].URLs)
		assert.Equal(t, webrtc.ICETransportPolicyAll, c.ICETransportPolicy)
	})

	t.Run("turn with credentials", func(t *testing.T) {
		c := iceConfiguration(config.ICEConfig{
			STUNServers: stun,
			TURNServer:  "turn:turn.example.com:3478",
			TURNUser:    "user",
			TURNPass:    "pass",
		})
		require.Len(t, c.ICEServers, 2)
		turn := c.ICEServers[1]
		assert.Equal(t, "user", turn.Username)
		assert.Equal(t, "pass", turn.Credential)
	})

	t.Run("force relay drops stun", func(t *testing.T) {
		c := iceConfiguration(config.ICEConfig{
			STUNServers: stun,
			TURNServer:  "turn:turn.example.com:3478",
			ForceRelay:  true,
		})
		require.Len(t, c.ICEServers, 1)
		assert.Equal(t, []string{"turn:turn.example.com:3478"}, c.ICEServers[0].URLs)
		assert.Equal(t, webrtc.ICETransportPolicyRelay, c.ICETransportPolicy)
	})
}

// chdir changes the working directory for the duration of the test,
// mirroring testing.T.Chdir (Go 1.24+) on older toolchains.
func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(wd); err != nil {
			t.Fatal(err)
		}
	})
}
