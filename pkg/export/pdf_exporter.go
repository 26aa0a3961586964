package export

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// PDFExporter renders a form's result dataset into a tabular PDF. Wide
// forms switch to landscape so the columns stay readable.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

const landscapeThreshold = 7

// Render creates the PDF document: form name as title, a generation stamp,
// then the result table.
func (e *PDFExporter) Render(data Dataset) ([]byte, error) {
	if len(data.Columns) == 0 {
		return nil, fmt.Errorf("form %s: export needs at least one column", data.FormID)
	}

	orientation := "P"
	pageWidth := 190.0
	if len(data.Columns) >= landscapeThreshold {
		orientation = "L"
		pageWidth = 277.0
	}
	pdf := gofpdf.New(orientation, "mm", "A4", "")
	pdf.SetMargins(10, 15, 10)
	pdf.AddPage()

	title := data.FormName
	if title == "" {
		title = data.FormID
	}
	pdf.SetFont("Arial", "B", 14)
	pdf.CellFormat(0, 10, title, "", 1, "C", false, 0, "")

	generated := data.GeneratedAt
	if generated.IsZero() {
		generated = time.Now().UTC()
	}
	pdf.SetFont("Arial", "I", 8)
	stamp := fmt.Sprintf("%d submissions, generated %s", len(data.Rows), generated.Format("2006-01-02 15:04 MST"))
	pdf.CellFormat(0, 5, stamp, "", 1, "C", false, 0, "")
	pdf.Ln(4)

	colWidth := pageWidth / float64(len(data.Columns))
	pdf.SetFont("Arial", "B", 10)
	pdf.SetFillColor(230, 230, 230)
	for _, label := range data.labels() {
		pdf.CellFormat(colWidth, 8, label, "1", 0, "C", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 9)
	for _, row := range data.Rows {
		for _, col := range data.Columns {
			pdf.CellFormat(colWidth, 7, row[col.Key], "1", 0, "", false, 0, "")
		}
		pdf.Ln(-1)
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}
