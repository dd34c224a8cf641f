package export

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Service renders pages and, when an archive is configured, keeps a copy.
type Service struct {
	archive Archiver
	log     zerolog.Logger
	pdf     func(ctx context.Context, html string) ([]byte, error)
	now     func() time.Time
}

// NewService creates an export service. archive may be nil.
func NewService(archive Archiver, log zerolog.Logger) *Service {
	return &Service{
		archive: archive,
		log:     log.With().Str("component", "export").Logger(),
		pdf:     renderPDF,
		now:     time.Now,
	}
}

// Export renders the page in the requested format. Archive failures are
// logged; the rendered file is still returned.
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	body, err := DocToHTML(req.Doc)
	if err != nil {
		return nil, err
	}
	html, err := RenderPageHTML(TemplateData{
		Title:       req.Title,
		Emoji:       req.Emoji,
		WorldName:   req.WorldName,
		Breadcrumb:  req.Breadcrumb,
		Children:    req.Children,
		ContentHTML: body,
		Author:      req.Author,
		UpdatedAt:   req.UpdatedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	var result *Result
	switch req.Format {
	case FormatHTML:
		result = &Result{
			Data:     []byte(html),
			Filename: sanitizeFilename(req.Title) + ".html",
			MimeType: "text/html; charset=utf-8",
		}
	case FormatPDF, "":
		data, err := s.pdf(ctx, html)
		if err != nil {
			return nil, err
		}
		result = &Result{
			Data:     data,
			Filename: sanitizeFilename(req.Title) + ".pdf",
			MimeType: "application/pdf",
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, req.Format)
	}

	if s.archive != nil {
		key := archiveKey(req, result.Filename, s.now())
		link, err := s.archive.Put(ctx, key, result)
		if err != nil {
			s.log.Warn().Err(err).Str("page_id", req.PageID).Msg("archive export failed")
		} else {
			result.URL = link
		}
	}
	return result, nil
}
