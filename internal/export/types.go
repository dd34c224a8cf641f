// Package export renders a page as a standalone document.
package export

import (
	"encoding/json"
	"errors"
	"time"
)

type Format string

const (
	FormatPDF  Format = "pdf"
	FormatHTML Format = "html"
)

// ParseFormat maps a query value to a Format. Empty means PDF.
func ParseFormat(value string) (Format, bool) {
	switch Format(value) {
	case "", FormatPDF:
		return FormatPDF, true
	case FormatHTML:
		return FormatHTML, true
	default:
		return "", false
	}
}

// Request is everything needed to render one page.
type Request struct {
	WorldID    string
	WorldName  string
	PageID     string
	Title      string
	Emoji      string
	Breadcrumb []string
	Children   []string
	Doc        json.RawMessage
	Author     string
	UpdatedAt  time.Time
	Format     Format
}

// Result contains the export output. URL is set when the file was archived
// to object storage.
type Result struct {
	Data     []byte
	Filename string
	MimeType string
	URL      string
}

var (
	// ErrPDFDependencyMissing indicates PDF export runtime dependencies are unavailable.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
	ErrUnsupportedFormat    = errors.New("export format not supported")
)
