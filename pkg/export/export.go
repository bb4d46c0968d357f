package export

import (
	"fmt"
	"strings"
)

// Format selects the rendered document type.
type Format string

const (
	FormatCSV Format = "csv"
	FormatPDF Format = "pdf"
)

// ParseFormat accepts csv or pdf, case-insensitively.
func ParseFormat(raw string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(raw))) {
	case FormatCSV:
		return FormatCSV, nil
	case FormatPDF:
		return FormatPDF, nil
	default:
		return "", fmt.Errorf("unsupported export format %q", raw)
	}
}

// ContentType returns the MIME type for the format.
func (f Format) ContentType() string {
	if f == FormatPDF {
		return "application/pdf"
	}
	return "text/csv"
}

// FileName appends the format extension to base.
func (f Format) FileName(base string) string {
	return base + "." + string(f)
}

// Report is a titled table.
type Report struct {
	Title    string
	Subtitle string
	Headers  []string
	Rows     [][]string
}

// Render produces the report in the requested format.
func Render(format Format, report Report) ([]byte, error) {
	if len(report.Headers) == 0 {
		return nil, fmt.Errorf("%s export requires at least one header", format)
	}
	switch format {
	case FormatCSV:
		return renderCSV(report)
	case FormatPDF:
		return renderPDF(report)
	default:
		return nil, fmt.Errorf("unsupported export format %q", format)
	}
}
