package output

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/david/tender-finder/internal/models"
)

const (
	FormatCSV   = "csv"
	FormatJSON  = "json"
	FormatTable = "table"
)

// Formats lists the accepted --format values.
var Formats = []string{FormatCSV, FormatJSON, FormatTable}

// Write renders records in the named format.
func Write(w io.Writer, format string, records []models.TenderRecord) error {
	switch strings.ToLower(format) {
	case "", FormatCSV:
		return WriteCSV(w, records)
	case FormatJSON:
		return WriteJSON(w, records)
	case FormatTable:
		return WriteTable(w, records)
	}
	return fmt.Errorf("unknown output format %q", format)
}

// WriteCSV writes the header row followed by one row per record.
func WriteCSV(w io.Writer, records []models.TenderRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(models.Columns); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	for i, r := range records {
		if err := cw.Write(r.Row()); err != nil {
			return fmt.Errorf("failed to write csv row %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteJSON writes records as an indented array. An empty batch is "[]".
func WriteJSON(w io.Writer, records []models.TenderRecord) error {
	if records == nil {
		records = []models.TenderRecord{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(records)
}

// WriteTable prints a terminal summary with the columns people scan first.
func WriteTable(w io.Writer, records []models.TenderRecord) error {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Tender Number", "Description", "Advertised", "Closing", "Briefing", "Source"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Description", WidthMax: 60, Transformer: func(v any) string {
			return text.Trim(fmt.Sprint(v), 60)
		}},
	})
	for _, r := range records {
		t.AppendRow(table.Row{r.TenderNumber, r.Description, r.AdvertisedDate, r.ClosingDate, r.BriefingSession, r.Source})
	}
	t.AppendFooter(table.Row{"", fmt.Sprintf("%d tenders", len(records))})
	t.Render()
	return nil
}
