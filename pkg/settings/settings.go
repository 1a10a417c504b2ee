// Package settings persists user preferences between runs.
package settings

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
)

// UserSettings holds persistable user preferences
type UserSettings struct {
	Username      string `json:"username,omitempty"`
	SignalURL     string `json:"signalUrl,omitempty"`
	LayoutVariant string `json:"layoutVariant,omitempty"`
	Codec         string `json:"codec,omitempty"`
	StartMuted    bool   `json:"startMuted"`
	StartNoCamera bool   `json:"startNoCamera"`
}

// DefaultSettings returns the default settings
func DefaultSettings() UserSettings {
	return UserSettings{
		LayoutVariant: "remote-primary",
		Codec:         "vp8",
	}
}

// Manager handles loading and saving user settings
type Manager struct {
	path     string
	settings UserSettings
}

// NewManager creates a settings manager for path. An empty path uses the
// default location.
func NewManager(path string) (*Manager, error) {
	if path == "" {
		var err error
		path, err = DefaultPath()
		if err != nil {
			return nil, err
		}
	}
	return &Manager{path: path, settings: DefaultSettings()}, nil
}

// DefaultPath returns the settings file path.
// Uses XDG_CONFIG_HOME if set, otherwise the OS user config directory.
func DefaultPath() (string, error) {
	var configDir string

	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		configDir = filepath.Join(xdg, "peepcall")
	} else {
		userConfigDir, err := os.UserConfigDir()
		if err != nil {
			return "", err
		}
		configDir = filepath.Join(userConfigDir, "peepcall")
	}

	return filepath.Join(configDir, "settings.json"), nil
}

// Path returns the file the manager reads and writes
func (m *Manager) Path() string {
	return m.path
}

// Load reads settings from the file.
// Returns default settings if the file doesn't exist or is invalid.
func (m *Manager) Load() (UserSettings, error) {
	m.settings = DefaultSettings()

	data, err := os.ReadFile(m.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return m.settings, nil
		}
		return m.settings, err
	}

	// Parse JSON, keeping defaults for missing fields
	if err := json.Unmarshal(data, &m.settings); err != nil {
		m.settings = DefaultSettings()
		return m.settings, nil
	}

	m.validate()
	return m.settings, nil
}

func (m *Manager) validate() {
	switch m.settings.LayoutVariant {
	case "remote-primary", "local-primary":
	default:
		m.settings.LayoutVariant = DefaultSettings().LayoutVariant
	}
	if m.settings.Codec == "" {
		m.settings.Codec = DefaultSettings().Codec
	}
}

// Save writes settings to the file
func (m *Manager) Save(settings UserSettings) error {
	m.settings = settings

	if err := os.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(m.path, data, 0o644)
}

// Settings returns the current settings
func (m *Manager) Settings() UserSettings {
	return m.settings
}
