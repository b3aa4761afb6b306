package output

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/david/tender-finder/internal/models"
)

var sample = []models.TenderRecord{
	{
		TenderNumber: "SCM 12/2025",
		Description:  "Supply of cleaning chemicals, detergents and \"green\" products",
		ClosingDate:  "14/03/2025",
		Source:       "Example",
	},
	{TenderNumber: "SCM 13/2025", Description: "Repairs to roof", Source: "Example"},
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, "csv", sample))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, models.Columns, rows[0])
	assert.Equal(t, sample[0].Description, rows[1][2])
	assert.Equal(t, "Example", rows[2][len(rows[2])-1])
}

func TestWriteJSONEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, nil))
	assert.Equal(t, "[]\n", buf.String())
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, "JSON", sample))

	var got []models.TenderRecord
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, sample, got)
}

func TestWriteTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, "table", sample))

	out := strings.ToLower(buf.String())
	assert.Contains(t, out, "scm 13/2025")
	assert.Contains(t, out, "2 tenders")
}

func TestWriteUnknownFormat(t *testing.T) {
	assert.Error(t, Write(&bytes.Buffer{}, "xml", sample))
}
