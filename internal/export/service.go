package export

import (
	"context"
	"fmt"
)

// Service provides template export functionality
type Service struct {
	source     Source
	chromePath string
}

// NewService creates a new export service. chromePath may be empty to search PATH.
func NewService(source Source, chromePath string) *Service {
	return &Service{source: source, chromePath: chromePath}
}

// Export loads a template version and renders it in the requested format
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	if s.source == nil {
		return nil, fmt.Errorf("export: no template source")
	}
	tpl, err := s.source.TemplateForExport(ctx, req.TemplateID, req.Version)
	if err != nil {
		return nil, fmt.Errorf("load template: %w", err)
	}
	return s.Render(ctx, tpl, req.Format)
}

// Render produces the export for an already loaded template.
func (s *Service) Render(ctx context.Context, tpl Template, format Format) (*Result, error) {
	switch format {
	case FormatHTML, FormatPDF:
		html, err := RenderTemplateHTML(BuildView(tpl))
		if err != nil {
			return nil, fmt.Errorf("render template: %w", err)
		}
		if format == FormatPDF {
			return exportPDF(ctx, html, tpl.Name, s.chromePath)
		}
		return &Result{
			Data:     []byte(html),
			Filename: sanitizeFilename(tpl.Name) + ".html",
			MimeType: "text/html; charset=utf-8",
		}, nil
	case FormatDOCX:
		return exportDOCX(tpl)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}
