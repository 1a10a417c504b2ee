package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tomaslejdung/peepcall/pkg/call"
	"github.com/tomaslejdung/peepcall/pkg/config"
	"github.com/tomaslejdung/peepcall/pkg/layout"
	"github.com/tomaslejdung/peepcall/pkg/reconnect"
	"github.com/tomaslejdung/peepcall/pkg/settings"
)

// DefaultSignalServer is the default remote signal server
const DefaultSignalServer = "wss://gopeep.tineestudio.se"

// LocalSignalServer is the URL for a signal server on this machine
const LocalSignalServer = "ws://localhost:8080"

// flagKeys maps join flags to the config keys they override
var flagKeys = map[string]string{
	"signal":      "signal.url",
	"turn":        "ice.turn_server",
	"turn-user":   "ice.turn_user",
	"turn-pass":   "ice.turn_pass",
	"force-relay": "ice.force_relay",
	"codec":       "publisher.codec",
	"fps":         "publisher.fps",
	"camera":      "publisher.camera_file",
	"screen":      "publisher.screen_file",
	"mic":         "publisher.mic_file",
	"layout":      "layout.variant",
	"port":        "server.port",
	"downloads":   "files.download_dir",
}

// bindFlags lets the command's flags override config values. Unset flags
// leave the file, environment and defaults in charge.
func bindFlags(v *viper.Viper, cmd *cobra.Command) error {
	for name, key := range flagKeys {
		f := cmd.Flags().Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return err
		}
	}
	return nil
}

// applySettings makes saved preferences the new defaults so the config
// file, environment and flags still win over them
func applySettings(v *viper.Viper, prefs settings.UserSettings) {
	if prefs.SignalURL != "" {
		v.SetDefault("signal.url", prefs.SignalURL)
	}
	if prefs.LayoutVariant != "" {
		v.SetDefault("layout.variant", prefs.LayoutVariant)
	}
	if prefs.Codec != "" {
		v.SetDefault("publisher.codec", prefs.Codec)
	}
}

// loadConfig reads the layered configuration for a command
func loadConfig(cmd *cobra.Command, path string, prefs settings.UserSettings) (*config.Config, error) {
	v := config.New()
	applySettings(v, prefs)
	if err := bindFlags(v, cmd); err != nil {
		return nil, err
	}
	if err := config.ReadFile(v, path); err != nil {
		return nil, err
	}
	return config.Decode(v)
}

// sessionConfig assembles the call session configuration
func sessionConfig(cfg *config.Config, prefs settings.UserSettings, username string) call.Config {
	return call.Config{
		Username:          username,
		Variant:           layout.ParseVariant(cfg.Layout.Variant),
		ArrangementDelays: cfg.Arrangement.Delays,
		Policy: reconnect.Policy{
			MaxAttempts: cfg.Reconnect.MaxAttempts,
			BaseDelay:   cfg.Reconnect.BaseDelay,
		},
		Online:        reconnect.DialChecker{Address: cfg.Reconnect.CheckAddress},
		OnlinePoll:    cfg.Reconnect.OnlinePollInterval,
		MaxFileSize:   cfg.Files.MaxSize,
		DownloadDir:   cfg.Files.DownloadDir,
		StartMuted:    prefs.StartMuted,
		StartNoCamera: prefs.StartNoCamera,
	}
}
