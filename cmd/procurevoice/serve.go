package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/normanking/procurevoice/internal/config"
	"github.com/normanking/procurevoice/internal/logging"
	"github.com/normanking/procurevoice/internal/portal"
)

func newServeCmd(flags *globalFlags) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the assistant to browsers over a websocket",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(flags)
			if err != nil {
				return err
			}
			defer a.close()

			if addr != "" {
				a.cfg.Server.Addr = addr
			}

			store, err := a.archive()
			if err != nil {
				return err
			}
			if store != nil {
				defer store.Close()
			}

			// only the log level is applied without a restart
			a.loader.Watch(func(cfg *config.Config, err error) {
				if err != nil {
					a.logger.Warn().Err(err).Msg("Ignoring invalid configuration change")
					return
				}
				a.log.SetLevel(logging.LogLevel(cfg.Logging.Level))
				a.logger.Info().Str("level", cfg.Logging.Level).Msg("Configuration reloaded")
			})

			srv := portal.New(portal.Options{
				Server:          a.cfg.Server,
				Speech:          a.speechConfig(),
				Filter:          a.filter(),
				Resolver:        a.resolver(),
				Training:        a.trainingSource(),
				TrainingTimeout: a.cfg.Training.Timeout,
				Archive:         store,
				Lang:            a.language(),
				Sound:           a.cfg.Speech.Sound,
			}, a.logger)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return srv.Start(ctx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	return cmd
}
