package main

import (
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/david/tender-finder/internal/app"
	"github.com/david/tender-finder/internal/models"
)

var (
	runsSource string
	runsLimit  int
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Show recent ingest runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		store, closeStore, err := app.OpenStore(ctx, appConfig, logger)
		if err != nil {
			return err
		}
		defer closeStore()

		runs, err := store.ListRuns(ctx, runsSource, runsLimit)
		if err != nil {
			return err
		}
		renderRuns(cmd.OutOrStdout(), runs)
		return nil
	},
}

func init() {
	runsCmd.Flags().StringVar(&runsSource, "source", "", "Only runs of this source")
	runsCmd.Flags().IntVar(&runsLimit, "limit", 10, "Number of runs to show")
	rootCmd.AddCommand(runsCmd)
}

func renderRuns(w io.Writer, runs []models.IngestRun) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Source", "Status", "Found", "Saved", "Errors", "Duration", "Started At"})

	for _, r := range runs {
		duration := "Running..."
		if r.CompletedAt != nil {
			duration = r.Duration().Round(time.Second).String()
		}
		t.AppendRow(table.Row{r.SourceID, r.Status, r.ItemsFound, r.ItemsSaved, r.Errors, duration, r.StartedAt.Format("2006-01-02 15:04:05")})
	}
	t.Render()
}
