package export

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
)

// Document is a printable page: a title, a block of header lines, a table and a footer.
type Document struct {
	Title  string
	Lines  []string
	Table  Dataset
	Widths []float64
	Footer string
}

// PDFExporter renders documents with gofpdf.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// Render creates a single-column A4 PDF for the document.
func (e *PDFExporter) Render(doc Document) ([]byte, error) {
	if len(doc.Table.Headers) == 0 {
		return nil, fmt.Errorf("pdf requires at least one header")
	}
	if len(doc.Widths) != 0 && len(doc.Widths) != len(doc.Table.Headers) {
		return nil, fmt.Errorf("pdf column widths do not match headers")
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(10, 15, 10)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	if doc.Title != "" {
		pdf.SetFont("Arial", "B", 16)
		pdf.CellFormat(0, 10, tr(doc.Title), "", 1, "L", false, 0, "")
		pdf.Ln(2)
	}

	pdf.SetFont("Arial", "", 10)
	for _, line := range doc.Lines {
		pdf.CellFormat(0, 6, tr(line), "", 1, "L", false, 0, "")
	}
	if len(doc.Lines) > 0 {
		pdf.Ln(4)
	}

	widths := doc.Widths
	if len(widths) == 0 {
		col := 190.0 / float64(len(doc.Table.Headers))
		widths = make([]float64, len(doc.Table.Headers))
		for i := range widths {
			widths[i] = col
		}
	}

	pdf.SetFont("Arial", "B", 10)
	pdf.SetFillColor(230, 236, 245)
	for i, header := range doc.Table.Headers {
		pdf.CellFormat(widths[i], 8, tr(header), "1", 0, "C", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 9)
	for _, row := range doc.Table.Rows {
		for i, header := range doc.Table.Headers {
			pdf.CellFormat(widths[i], 7, tr(row[header]), "1", 0, "", false, 0, "")
		}
		pdf.Ln(-1)
	}

	if doc.Footer != "" {
		pdf.Ln(4)
		pdf.SetFont("Arial", "B", 11)
		pdf.CellFormat(0, 8, tr(doc.Footer), "", 1, "R", false, 0, "")
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}
