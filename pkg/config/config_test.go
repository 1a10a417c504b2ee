package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "wss://gopeep.tineestudio.se", cfg.Signal.URL)
	assert.Equal(t, 5*time.Second, cfg.Signal.HandshakeTimeout)
	assert.Equal(t, 5, cfg.Reconnect.MaxAttempts)
	assert.Equal(t, 2*time.Second, cfg.Reconnect.BaseDelay)
	assert.Equal(t, []time.Duration{500 * time.Millisecond, time.Second, 2 * time.Second}, cfg.Arrangement.Delays)
	assert.Equal(t, "remote-primary", cfg.Layout.Variant)
	assert.Equal(t, int64(2*1024*1024), cfg.Files.MaxSize)
	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Addr())
	assert.Equal(t, 2, cfg.Server.MaxParticipants)
	assert.Equal(t, "peepcall-debug.log", cfg.Log.File)
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "peepcall.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
signal:
  url: ws://localhost:9000
reconnect:
  max_attempts: 3
  base_delay: 500ms
arrangement:
  delays: [100ms, 300ms]
layout:
  variant: local-primary
`), 0o644))
	t.Setenv("PEEPCALL_SERVER_PORT", "9999")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:9000", cfg.Signal.URL)
	assert.Equal(t, 3, cfg.Reconnect.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.Reconnect.BaseDelay)
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 300 * time.Millisecond}, cfg.Arrangement.Delays)
	assert.Equal(t, "local-primary", cfg.Layout.Variant)
	assert.Equal(t, 9999, cfg.Server.Port)
}

func TestLoadExplicitMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("PEEPCALL_LAYOUT_VARIANT", "diagonal")
	t.Setenv("PEEPCALL_RECONNECT_MAX_ATTEMPTS", "0")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "layout.variant")
	assert.Contains(t, err.Error(), "reconnect.max_attempts")
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
