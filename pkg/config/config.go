// Package config loads peepcall configuration from a YAML file, the
// environment and built-in defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	plog "github.com/tomaslejdung/peepcall/pkg/log"
)

// EnvPrefix is prepended to every environment override, e.g.
// PEEPCALL_SIGNAL_URL for signal.url
const EnvPrefix = "PEEPCALL"

type Config struct {
	Signal      SignalConfig
	Server      ServerConfig
	Reconnect   ReconnectConfig
	Arrangement ArrangementConfig
	Layout      LayoutConfig
	Publisher   PublisherConfig
	ICE         ICEConfig `mapstructure:"ice"`
	Files       FilesConfig
	Log         plog.Config
}

type SignalConfig struct {
	URL              string        `mapstructure:"url"`
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"`
}

type ServerConfig struct {
	Host            string
	Port            int
	MaxParticipants int `mapstructure:"max_participants"`
}

// Addr returns host:port
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type ReconnectConfig struct {
	MaxAttempts        int           `mapstructure:"max_attempts"`
	BaseDelay          time.Duration `mapstructure:"base_delay"`
	OnlinePollInterval time.Duration `mapstructure:"online_poll_interval"`
	CheckAddress       string        `mapstructure:"check_address"`
}

type ArrangementConfig struct {
	Delays []time.Duration
}

type LayoutConfig struct {
	Variant string
}

type PublisherConfig struct {
	Codec      string
	CameraFile string `mapstructure:"camera_file"`
	ScreenFile string `mapstructure:"screen_file"`
	MicFile    string `mapstructure:"mic_file"`
	FPS        int
	Loop       bool
}

type ICEConfig struct {
	STUNServers []string `mapstructure:"stun_servers"`
	TURNServer  string   `mapstructure:"turn_server"`
	TURNUser    string   `mapstructure:"turn_user"`
	TURNPass    string   `mapstructure:"turn_pass"`
	ForceRelay  bool     `mapstructure:"force_relay"`
}

type FilesConfig struct {
	MaxSize     int64  `mapstructure:"max_size"`
	DownloadDir string `mapstructure:"download_dir"`
}

// New returns a viper instance with defaults and environment binding but
// no file read yet. Callers may bind flags to it before calling Decode.
func New() *viper.Viper {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("signal.url", "wss://gopeep.tineestudio.se")
	v.SetDefault("signal.handshake_timeout", "5s")
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.max_participants", 2)
	v.SetDefault("reconnect.max_attempts", 5)
	v.SetDefault("reconnect.base_delay", "2s")
	v.SetDefault("reconnect.online_poll_interval", "1s")
	v.SetDefault("reconnect.check_address", "stun.l.google.com:19302")
	v.SetDefault("arrangement.delays", []string{"500ms", "1s", "2s"})
	v.SetDefault("layout.variant", "remote-primary")
	v.SetDefault("publisher.codec", "vp8")
	v.SetDefault("publisher.camera_file", "")
	v.SetDefault("publisher.screen_file", "")
	v.SetDefault("publisher.mic_file", "")
	v.SetDefault("publisher.fps", 30)
	v.SetDefault("publisher.loop", true)
	v.SetDefault("ice.stun_servers", []string{"stun:stun.l.google.com:19302", "stun:stun1.l.google.com:19302"})
	v.SetDefault("ice.turn_server", "")
	v.SetDefault("ice.turn_user", "")
	v.SetDefault("ice.turn_pass", "")
	v.SetDefault("ice.force_relay", false)
	v.SetDefault("files.max_size", 2*1024*1024)
	v.SetDefault("files.download_dir", ".")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "peepcall-debug.log")
	v.SetDefault("log.pretty", false)
	v.SetDefault("log.service_name", "peepcall")
}

// ReadFile merges a YAML config file into v. An empty path looks for
// peepcall.yaml in the working directory and the user config dir; a missing
// file is not an error unless the path was given explicitly.
func ReadFile(v *viper.Viper, path string) error {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("peepcall")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/peepcall")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path == "" && errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("failed to read config: %w", err)
	}
	return nil
}

// Decode unmarshals v into a Config
func Decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Load reads defaults, the optional file at path and the environment
func Load(path string) (*Config, error) {
	v := New()
	if err := ReadFile(v, path); err != nil {
		return nil, err
	}
	return Decode(v)
}

// Validate rejects values the call cannot run with
func (c *Config) Validate() error {
	var errs []error
	if c.Reconnect.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("reconnect.max_attempts must be at least 1, got %d", c.Reconnect.MaxAttempts))
	}
	if c.Reconnect.BaseDelay <= 0 {
		errs = append(errs, fmt.Errorf("reconnect.base_delay must be positive"))
	}
	for _, d := range c.Arrangement.Delays {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("arrangement.delays must be positive, got %s", d))
			break
		}
	}
	switch c.Layout.Variant {
	case "remote-primary", "local-primary":
	default:
		errs = append(errs, fmt.Errorf("layout.variant must be remote-primary or local-primary, got %q", c.Layout.Variant))
	}
	switch c.Publisher.Codec {
	case "vp8", "vp9", "h264":
	default:
		errs = append(errs, fmt.Errorf("publisher.codec must be vp8, vp9 or h264, got %q", c.Publisher.Codec))
	}
	if c.Publisher.FPS <= 0 {
		errs = append(errs, fmt.Errorf("publisher.fps must be positive"))
	}
	if c.Files.MaxSize <= 0 {
		errs = append(errs, fmt.Errorf("files.max_size must be positive"))
	}
	if c.Server.MaxParticipants < 2 {
		errs = append(errs, fmt.Errorf("server.max_participants must be at least 2"))
	}
	return errors.Join(errs...)
}
