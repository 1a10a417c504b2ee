package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tomaslejdung/peepcall/pkg/call"
	"github.com/tomaslejdung/peepcall/pkg/config"
	plog "github.com/tomaslejdung/peepcall/pkg/log"
	"github.com/tomaslejdung/peepcall/pkg/recording"
	"github.com/tomaslejdung/peepcall/pkg/settings"
	sig "github.com/tomaslejdung/peepcall/pkg/signal"
)

var version = "0.1.0"

// rootOptions are the persistent flags
type rootOptions struct {
	configPath string
	logLevel   string
}

func main() {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "peepcall",
		Short: "peepcall - 1:1 video calls in the terminal",
		Long: `peepcall joins a 1:1 video call from the terminal. It publishes a camera
(and optionally a screen share) from media files, shows who is on which of the
two display slots and recovers the call when the network drops.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Config file (default: ./peepcall.yaml)")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level (debug|info|warn|error)")

	rootCmd.AddCommand(
		joinCmd(opts),
		serveCmd(opts),
		newCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func joinCmd(opts *rootOptions) *cobra.Command {
	var (
		params   sig.JoinParams
		local    bool
		embedded bool
		muted    bool
		noCamera bool
	)

	cmd := &cobra.Command{
		Use:   "join [call-link]",
		Short: "Join a call",
		Long: `Join a call by link (https://host/call?sessionId=...&username=...&token=...)
or by --session, --username and --token. Flags override values in the link.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prefsManager, err := settings.NewManager("")
			if err != nil {
				return fmt.Errorf("failed to locate settings: %w", err)
			}
			prefs, err := prefsManager.Load()
			if err != nil {
				fmt.Fprintf(os.Stderr, "Warning: could not load settings: %v\n", err)
			}

			if local {
				if err := cmd.Flags().Set("signal", LocalSignalServer); err != nil {
					return err
				}
			}
			cfg, err := loadConfig(cmd, opts.configPath, prefs)
			if err != nil {
				return err
			}
			if opts.logLevel != "" {
				cfg.Log.Level = opts.logLevel
			}

			join, err := joinParams(args, params, prefs.Username)
			if err != nil {
				return err
			}

			closer, err := plog.Init(cfg.Log)
			if err != nil {
				return err
			}
			defer closer.Close()
			logger := plog.Component("main")

			prefs.Username = join.Username
			prefs.SignalURL = cfg.Signal.URL
			if cmd.Flags().Changed("muted") {
				prefs.StartMuted = muted
			}
			if cmd.Flags().Changed("no-camera") {
				prefs.StartNoCamera = noCamera
			}
			if err := prefsManager.Save(prefs); err != nil {
				logger.Warn().Err(err).Msg("save settings")
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			dial := websocketDialer(cfg.Signal.URL, join, cfg.Signal.HandshakeTimeout)
			info := callInfo{
				Username: join.Username,
				Room:     join.Room(),
				Link:     sig.CallLink(linkBase(cfg.Signal.URL), sig.JoinParams{SessionID: join.Room(), Token: join.Token}),
			}
			if embedded {
				srv := sig.NewServer(sig.Options{MaxParticipants: cfg.Server.MaxParticipants})
				go func() {
					if err := srv.Run(ctx, cfg.Server.Addr()); err != nil {
						logger.Error().Err(err).Msg("embedded signal server stopped")
					}
				}()
				dial = localDialer(srv, join)
				info.Link = sig.CallLink(fmt.Sprintf("http://localhost:%d", cfg.Server.Port), sig.JoinParams{SessionID: join.Room(), Token: join.Token})
			}

			for {
				restart, err := runCall(ctx, cfg, prefs, join, dial, info)
				if err != nil {
					return err
				}
				if !restart || ctx.Err() != nil {
					return nil
				}
				logger.Info().Str(plog.FieldRoom, join.Room()).Msg("restarting call")
			}
		},
	}

	cmd.Flags().StringVar(&params.SessionID, "session", "", "Session ID")
	cmd.Flags().StringVarP(&params.Username, "username", "u", "", "Display name (default: last used)")
	cmd.Flags().StringVar(&params.Token, "token", "", "Session token")
	cmd.Flags().String("signal", DefaultSignalServer, "Signal server URL")
	cmd.Flags().BoolVar(&local, "local", false, "Use local signal server ("+LocalSignalServer+")")
	cmd.Flags().BoolVar(&embedded, "embedded", false, "Host the signal server in this process")
	cmd.Flags().Int("port", 8080, "Port for the embedded signal server")

	// Media flags
	cmd.Flags().String("codec", "vp8", "Video codec of the media files (vp8|vp9|h264)")
	cmd.Flags().Int("fps", 30, "Frame rate for H.264 files")
	cmd.Flags().String("camera", "", "Camera video file (.ivf or .h264)")
	cmd.Flags().String("screen", "", "Screen share video file (.ivf or .h264)")
	cmd.Flags().String("mic", "", "Microphone audio file (.ogg, Opus)")
	cmd.Flags().String("layout", "remote-primary", "Camera layout (remote-primary|local-primary)")
	cmd.Flags().String("downloads", ".", "Directory for saved files")
	cmd.Flags().BoolVar(&muted, "muted", false, "Join with the microphone off (remembered)")
	cmd.Flags().BoolVar(&noCamera, "no-camera", false, "Join with the camera off (remembered)")

	// Network flags
	cmd.Flags().String("turn", "", "TURN server URL (e.g., turn:turn.example.com:3478)")
	cmd.Flags().String("turn-user", "", "TURN server username")
	cmd.Flags().String("turn-pass", "", "TURN server password")
	cmd.Flags().Bool("force-relay", false, "Force TURN relay (disable direct P2P)")

	return cmd
}

// joinParams merges the call link, flags and saved username. A missing
// field is an initialization failure the call cannot recover from.
func joinParams(args []string, flags sig.JoinParams, savedUsername string) (sig.JoinParams, error) {
	var p sig.JoinParams
	if len(args) > 0 {
		var err error
		if p, err = sig.ParseCallLink(args[0]); err != nil {
			return p, err
		}
	}
	if flags.SessionID != "" {
		p.SessionID = flags.SessionID
	}
	if flags.Username != "" {
		p.Username = flags.Username
	}
	if flags.Token != "" {
		p.Token = flags.Token
	}
	if p.Username == "" {
		p.Username = savedUsername
	}
	if err := p.Validate(); err != nil {
		return p, err
	}
	return p, nil
}

// linkBase turns a signal URL into the http(s) base of call links
func linkBase(signalURL string) string {
	switch {
	case strings.HasPrefix(signalURL, "ws://"):
		return "http://" + strings.TrimPrefix(signalURL, "ws://")
	case strings.HasPrefix(signalURL, "wss://"):
		return "https://" + strings.TrimPrefix(signalURL, "wss://")
	}
	return signalURL
}

// runCall runs one call from first connect to leave. The initial connect
// is not retried; recovery only applies once the call is up.
func runCall(ctx context.Context, cfg *config.Config, prefs settings.UserSettings, join sig.JoinParams, dial dialFunc, info callInfo) (bool, error) {
	client, err := NewPeerClient(dial, cfg.ICE, cfg.Publisher)
	if err != nil {
		return false, err
	}
	defer client.Close()

	rec := recording.New(cfg.Files.DownloadDir)
	client.SetRecorder(rec)
	defer finishRecording(rec)

	presenter := &tuiPresenter{}
	session := call.New(sessionConfig(cfg, prefs, join.Username), client, presenter)
	client.SetSink(session.Deliver)

	if err := client.Connect(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return false, nil
		}
		return false, fmt.Errorf("failed to join %s: %w", join.Room(), err)
	}

	return runCallUI(ctx, session, rec, presenter, info)
}

// finishRecording saves a take still running when the call ends
func finishRecording(rec *recording.Recorder) {
	if !rec.Active() {
		return
	}
	logger := plog.Component("main")
	r, err := rec.Stop()
	if err != nil {
		logger.Warn().Err(err).Msg("stop recording")
	}
	if len(r.Files) > 0 {
		fmt.Fprintf(os.Stderr, "Recording saved: %s\n", strings.Join(r.Files, ", "))
	}
}

func serveCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a signal server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, opts.configPath, settings.DefaultSettings())
			if err != nil {
				return err
			}
			// The server has no TUI, so it logs to the terminal
			cfg.Log.File = ""
			cfg.Log.Pretty = true
			if opts.logLevel != "" {
				cfg.Log.Level = opts.logLevel
			}
			closer, err := plog.Init(cfg.Log)
			if err != nil {
				return err
			}
			defer closer.Close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			srv := sig.NewServer(sig.Options{MaxParticipants: cfg.Server.MaxParticipants})
			return srv.Run(ctx, cfg.Server.Addr())
		},
	}
	cmd.Flags().Int("port", 8080, "Port to listen on")
	return cmd
}

func newCmd() *cobra.Command {
	var base string
	cmd := &cobra.Command{
		Use:   "new",
		Short: "Create a new call link",
		RunE: func(cmd *cobra.Command, args []string) error {
			p := sig.JoinParams{SessionID: sig.GenerateRoomCode(), Token: sig.GenerateToken()}
			fmt.Fprintln(cmd.OutOrStdout(), sig.CallLink(base, p))
			return nil
		},
	}
	cmd.Flags().StringVar(&base, "base", linkBase(DefaultSignalServer), "Base URL of the link")
	return cmd
}
