package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"RedCardNews/internal/app"
	"RedCardNews/internal/config"
	"RedCardNews/internal/logging"
)

func serveCmd() *cobra.Command {
	var addrFlag string
	var autoStartFlag bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the control API and the scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if addrFlag != "" {
				cfg.HTTP.Addr = addrFlag
			}
			if cmd.Flags().Changed("autostart") {
				cfg.Scheduler.AutoStart = autoStartFlag
			}
			log := logging.New(cfg.Logging.Level, cfg.Logging.Format)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, os.Interrupt)
			defer stop()

			application, err := app.New(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer application.Close()

			return application.Serve(ctx)
		},
	}
	cmd.Flags().StringVar(&addrFlag, "addr", "", "Listen address (overrides http.addr)")
	cmd.Flags().BoolVar(&autoStartFlag, "autostart", false, "Register the configured schedules on startup")
	return cmd
}
