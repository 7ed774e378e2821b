package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"RedCardNews/internal/app"
	"RedCardNews/internal/config"
	"RedCardNews/internal/domain"
	"RedCardNews/internal/logging"
)

func jobsCmd() *cobra.Command {
	var kindFlag string
	var limitFlag int

	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List recent job ledger entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			kind := domain.JobKind(kindFlag)
			switch kind {
			case "", domain.JobKindScrape, domain.JobKindTransform:
			default:
				return fmt.Errorf("unknown job kind %q", kindFlag)
			}

			cfg := config.Load()
			log := logging.New(cfg.Logging.Level, cfg.Logging.Format)
			ctx := context.Background()

			application, err := app.New(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer application.Close()

			jobs, err := application.Jobs(ctx, kind, limitFlag)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tKIND\tSTATUS\tSTARTED\tDURATION\tSCRAPED\tPROCESSED\tFAILED\tERROR")
			for _, j := range jobs {
				duration := "-"
				if j.Status.Finished() {
					duration = j.CompletedAt.Sub(j.StartedAt).Round(time.Millisecond).String()
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
					j.ID, j.Kind, j.Status, j.StartedAt.Format(time.RFC3339), duration,
					j.Result.ArticlesScraped, j.Result.ArticlesProcessed, j.Result.ItemsFailed, j.Result.Error)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&kindFlag, "kind", "", "Filter by job kind (scrape or transform)")
	cmd.Flags().IntVar(&limitFlag, "limit", 20, "Maximum number of entries")
	return cmd
}
