package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:          "redcardnews",
		Short:        "Sports news scraper and rewriter",
		Long:         "Reads the publisher feeds, stores new articles, rewrites them through the generation API and publishes the results on a schedule.",
		SilenceUsage: true,
	}

	root.AddCommand(
		serveCmd(),
		runCmd(),
		jobsCmd(),
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
