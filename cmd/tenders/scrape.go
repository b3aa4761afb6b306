package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/david/tender-finder/internal/app"
	"github.com/david/tender-finder/internal/ingest"
	"github.com/david/tender-finder/internal/models"
	"github.com/david/tender-finder/internal/output"
)

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Scrape one or more sources",
	Long:  "Fetches listing pages, classifies and extracts tender rows, enriches them from tender documents and writes the assembled records.",
	RunE:  runScrape,
}

var (
	scrapeSources []string
	scrapeAll     bool
	scrapeLimit   int
	scrapeFormat  string
	scrapeOut     string
	scrapeStore   bool
	scrapeStatus  []string
)

func init() {
	scrapeCmd.Flags().StringSliceVarP(&scrapeSources, "source", "s", nil, "Source id (repeatable)")
	scrapeCmd.Flags().BoolVar(&scrapeAll, "all", false, "Scrape every registered source")
	scrapeCmd.Flags().IntVar(&scrapeLimit, "limit", 0, "Maximum records per source (0 = source default)")
	scrapeCmd.Flags().StringVarP(&scrapeFormat, "format", "f", output.FormatCSV, "Output format: csv, json or table")
	scrapeCmd.Flags().StringVarP(&scrapeOut, "out", "o", "", "Output file (default stdout)")
	scrapeCmd.Flags().BoolVar(&scrapeStore, "store", false, "Also upsert the records into the database")
	scrapeCmd.Flags().StringSliceVar(&scrapeStatus, "status", nil, "Keep only open, closed, awarded, cancelled or unknown tenders")
	scrapeCmd.MarkFlagsMutuallyExclusive("source", "all")

	rootCmd.AddCommand(scrapeCmd)
}

func runScrape(cmd *cobra.Command, _ []string) error {
	if scrapeLimit < 0 {
		return fmt.Errorf("limit must be zero or positive, got %d", scrapeLimit)
	}

	reg, err := app.LoadRegistry(appConfig)
	if err != nil {
		return err
	}
	sources, err := app.SelectSources(reg, scrapeSources, scrapeAll)
	if err != nil {
		return fmt.Errorf("%w (use --source ID or --all)", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	pipeline := app.NewPipeline(appConfig, logger)
	results, err := pipeline.RunAll(ctx, sources, scrapeLimit)
	if err != nil {
		return err
	}

	if scrapeStore {
		if err := storeResults(ctx, pipeline, results); err != nil {
			return err
		}
	}

	records := collectRecords(results, time.Now(), scrapeStatus)

	var w io.Writer = cmd.OutOrStdout()
	if scrapeOut != "" {
		f, err := os.Create(scrapeOut)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	if err := output.Write(w, scrapeFormat, records); err != nil {
		return err
	}
	logger.Info().Int("sources", len(results)).Int("records", len(records)).Msg("scrape complete")
	return nil
}

// collectRecords concatenates per-source records in source order, applying
// the optional status filter.
func collectRecords(results []ingest.SourceResult, now time.Time, statuses []string) []models.TenderRecord {
	var out []models.TenderRecord
	for _, res := range results {
		out = append(out, ingest.FilterByStatus(res.Records, now, statuses...)...)
	}
	return out
}

func storeResults(ctx context.Context, pipeline *ingest.Pipeline, results []ingest.SourceResult) error {
	store, closeStore, err := app.OpenStore(ctx, appConfig, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	runs, err := pipeline.StoreResults(ctx, store, results)
	for id, run := range runs {
		logger.Info().Str("source", id).Int("saved", run.ItemsSaved).Str("status", run.Status).Msg("stored tenders")
	}
	return err
}
