package export

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCSVExporterRender(t *testing.T) {
	data := Dataset{Headers: []string{"id", "title"}}
	data.Append("r-1", "Hockey, practice")
	data.Append("r-2")

	out, err := NewCSVExporter().Render(data)
	require.NoError(t, err)
	assert.Equal(t, "id,title\nr-1,\"Hockey, practice\"\nr-2,\n", string(out))
}

func TestPDFExporterRender(t *testing.T) {
	data := Dataset{Headers: []string{"Date", "Amount"}}
	data.Append("2025-03-17", "50.00")

	out, err := NewPDFExporter().Render(Document{
		Title:  "Invoice",
		Lines:  []string{"Bill to: owner-1"},
		Table:  data,
		Widths: []float64{120, 70},
		Footer: "Total: 50.00",
	})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))

	_, err = NewPDFExporter().Render(Document{Table: Dataset{Headers: []string{"a"}}, Widths: []float64{1, 2}})
	require.Error(t, err)
}
