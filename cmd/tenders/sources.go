package main

import (
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/david/tender-finder/internal/app"
	"github.com/david/tender-finder/internal/ingest"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List registered sources",
	RunE: func(cmd *cobra.Command, _ []string) error {
		reg, err := app.LoadRegistry(appConfig)
		if err != nil {
			return err
		}
		renderSources(cmd.OutOrStdout(), reg)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sourcesCmd)
}

func renderSources(w io.Writer, reg *ingest.Registry) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"ID", "Short Name", "Province", "Style", "Engine", "Listing URLs", "Documents"})

	for _, id := range reg.IDs() {
		cfg, _ := reg.Lookup(id)
		engine := cfg.Fetch.Engine
		if engine == "" {
			engine = ingest.EngineHTTP
		}
		docs := "yes"
		switch {
		case cfg.HTMLOnly:
			docs = "no"
		case cfg.DetailPages:
			docs = "detail pages"
		}
		t.AppendRow(table.Row{cfg.ID, cfg.ShortName, cfg.Province, cfg.Style(), engine, len(cfg.ListingURLs), docs})
	}
	t.Render()
}
