// Package export renders whole contract templates to HTML, PDF and DOCX.
package export

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"clausebook/api/internal/contract"
)

// Format represents the export output format
type Format string

const (
	FormatHTML Format = "html"
	FormatPDF  Format = "pdf"
	FormatDOCX Format = "docx"
)

func ParseFormat(raw string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(raw))); f {
	case FormatHTML, FormatPDF, FormatDOCX:
		return f, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, raw)
}

// Request contains parameters for an export operation
type Request struct {
	TemplateID string
	Version    string // "latest", a commit hash or a release name
	Format     Format
}

// Template is everything an export needs from a stored template.
type Template struct {
	ID        string
	Name      string
	Revision  int64
	Version   string
	UpdatedBy string
	UpdatedAt time.Time
	Tree      *contract.Tree
}

// Source loads templates for export.
type Source interface {
	TemplateForExport(ctx context.Context, templateID, version string) (Template, error)
}

// Result contains the export output
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

var (
	ErrUnsupportedFormat = errors.New("unsupported export format")
	// ErrPDFDependencyMissing indicates PDF export runtime dependencies are unavailable.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
)
