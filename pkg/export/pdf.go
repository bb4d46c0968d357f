package export

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
)

const pdfBodyWidth = 190.0

func renderPDF(report Report) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(10, 15, 10)
	pdf.SetTitle(report.Title, true)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	if report.Title != "" {
		pdf.SetFont("Arial", "B", 14)
		pdf.CellFormat(0, 10, tr(report.Title), "", 1, "L", false, 0, "")
	}
	if report.Subtitle != "" {
		pdf.SetFont("Arial", "", 9)
		pdf.SetTextColor(90, 90, 90)
		pdf.CellFormat(0, 6, tr(report.Subtitle), "", 1, "L", false, 0, "")
		pdf.SetTextColor(0, 0, 0)
	}
	pdf.Ln(4)

	colWidth := pdfBodyWidth / float64(len(report.Headers))
	pdf.SetFont("Arial", "B", 10)
	pdf.SetFillColor(225, 232, 240)
	for _, header := range report.Headers {
		pdf.CellFormat(colWidth, 8, tr(header), "1", 0, "C", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 9)
	pdf.SetFillColor(245, 247, 250)
	for i, row := range report.Rows {
		fill := i%2 == 1
		for col := range report.Headers {
			value := ""
			if col < len(row) {
				value = row[col]
			}
			pdf.CellFormat(colWidth, 7, tr(value), "1", 0, "", fill, 0, "")
		}
		pdf.Ln(-1)
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}
