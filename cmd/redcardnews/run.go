package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"RedCardNews/internal/app"
	"RedCardNews/internal/config"
	"RedCardNews/internal/logging"
	"RedCardNews/internal/usecase"
)

var runTargets = map[string]string{
	"scrape":    usecase.JobScraping,
	"transform": usecase.JobTransform,
	"pipeline":  usecase.JobPipeline,
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "run scrape|transform|pipeline",
		Short:     "Run one job now and print its ledger entries",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"scrape", "transform", "pipeline"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			log := logging.New(cfg.Logging.Level, cfg.Logging.Format)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, os.Interrupt)
			defer stop()

			application, err := app.New(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer application.Close()

			report, runErr := application.RunOnce(ctx, runTargets[args[0]])

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(report); err != nil {
				return fmt.Errorf("print report: %w", err)
			}
			return runErr
		},
	}
}
