// Command server runs the peepcall signal server on its own, for cloud
// deployments where no client hosts the room.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tomaslejdung/peepcall/pkg/config"
	plog "github.com/tomaslejdung/peepcall/pkg/log"
	sig "github.com/tomaslejdung/peepcall/pkg/signal"
)

func main() {
	var configPath string

	cmd := &cobra.Command{
		Use:   "peepcall-server",
		Short: "peepcall signal server",
		RunE: func(cmd *cobra.Command, args []string) error {
			v := config.New()
			if err := v.BindPFlag("server.port", cmd.Flags().Lookup("port")); err != nil {
				return err
			}
			if err := v.BindPFlag("server.max_participants", cmd.Flags().Lookup("max-participants")); err != nil {
				return err
			}
			if err := v.BindPFlag("log.level", cmd.Flags().Lookup("log-level")); err != nil {
				return err
			}
			// PORT is set by most cloud platforms
			if err := v.BindEnv("server.port", "PORT"); err != nil {
				return err
			}
			if err := config.ReadFile(v, configPath); err != nil {
				return err
			}
			return run(v)
		},
		SilenceUsage: true,
	}
	cmd.Flags().StringVar(&configPath, "config", "", "Config file")
	cmd.Flags().Int("port", 8080, "Server port")
	cmd.Flags().Int("max-participants", 2, "Participants allowed per room")
	cmd.Flags().String("log-level", "info", "Log level (debug|info|warn|error)")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(v *viper.Viper) error {
	cfg, err := config.Decode(v)
	if err != nil {
		return err
	}
	// Logs go to stderr for the platform's collector
	cfg.Log.File = ""
	closer, err := plog.Init(cfg.Log)
	if err != nil {
		return err
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := sig.NewServer(sig.Options{MaxParticipants: cfg.Server.MaxParticipants})
	logger := plog.L()
	logger.Info().
		Str("share_url_format", "https://your-domain/call?sessionId="+sig.GenerateRoomCode()).
		Msg("peepcall signal server")
	return srv.Run(ctx, cfg.Server.Addr())
}
