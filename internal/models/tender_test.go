package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRowFollowsColumnOrder(t *testing.T) {
	rec := TenderRecord{
		Category:     "Services",
		TenderNumber: "SCM 12/2025",
		Description:  "Supply of cleaning chemicals",
		ClosingDate:  "14/03/2025",
		SourceURL:    "https://example.gov.za/tenders/scm-12.pdf",
		Source:       "Example",
	}

	row := rec.Row()
	require.Len(t, row, len(Columns))

	byName := make(map[string]string, len(Columns))
	for i, name := range Columns {
		byName[name] = row[i]
	}
	assert.Equal(t, "Services", byName["Category"])
	assert.Equal(t, "SCM 12/2025", byName["Tender Number"])
	assert.Equal(t, "Supply of cleaning chemicals", byName["Tender Description"])
	assert.Equal(t, "14/03/2025", byName["Closing"])
	assert.Equal(t, "https://example.gov.za/tenders/scm-12.pdf", byName["Source URL"])
	assert.Equal(t, "Example", byName["Source"])
	assert.Equal(t, "Source", Columns[len(Columns)-1])
}

func TestIngestRunDuration(t *testing.T) {
	start := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	run := IngestRun{StartedAt: start}
	assert.Zero(t, run.Duration())

	done := start.Add(90 * time.Second)
	run.CompletedAt = &done
	assert.Equal(t, 90*time.Second, run.Duration())
}
