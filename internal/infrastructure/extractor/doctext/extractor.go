// Package doctext extracts per-page text from uploaded documents. PDFs are
// parsed page by page; plain-text payloads pass through as a single page.
// Per-page confidence is a heuristic over how much of the extracted text
// looks like readable words.
package doctext

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"

	"github.com/kirillkom/docflow/internal/core/domain"
)

type Extractor struct {
	maxBytes int64
	now      func() time.Time
}

func New(maxBytes int64) *Extractor {
	if maxBytes <= 0 {
		maxBytes = 64 << 20
	}
	return &Extractor{
		maxBytes: maxBytes,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (e *Extractor) Available() bool { return true }

func (e *Extractor) Extract(ctx context.Context, contentType string, data io.Reader) ([]domain.PageResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	raw, err := io.ReadAll(io.LimitReader(data, e.maxBytes+1))
	if err != nil {
		return nil, domain.WrapError(domain.ErrTemporary, "read document bytes", err)
	}
	if int64(len(raw)) > e.maxBytes {
		return nil, domain.WrapError(domain.ErrInvalidInput, "read document bytes",
			fmt.Errorf("document exceeds %d bytes", e.maxBytes))
	}

	mediaType := contentType
	if i := strings.Index(mediaType, ";"); i >= 0 {
		mediaType = mediaType[:i]
	}
	mediaType = strings.TrimSpace(strings.ToLower(mediaType))

	switch {
	case mediaType == "application/pdf":
		return e.extractPDF(raw)
	case strings.HasPrefix(mediaType, "text/"):
		return e.extractPlainText(raw), nil
	default:
		return nil, domain.WrapError(domain.ErrInvalidInput, "extract text",
			fmt.Errorf("unsupported content type %q", contentType))
	}
}

func (e *Extractor) extractPDF(raw []byte) ([]domain.PageResult, error) {
	reader, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return nil, domain.WrapError(domain.ErrExternalService, "parse pdf", err)
	}

	var pages []domain.PageResult
	for pageNr := 1; pageNr <= reader.NumPage(); pageNr++ {
		started := e.now()
		page := reader.Page(pageNr)
		if page.V.IsNull() {
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			// A single undecodable page degrades confidence instead of
			// failing the whole document.
			pages = append(pages, domain.PageResult{
				PageNumber:       pageNr,
				Confidence:       0,
				ProcessingTimeMs: e.now().Sub(started).Milliseconds(),
			})
			continue
		}

		pages = append(pages, buildPage(pageNr, text, e.now().Sub(started)))
	}
	return pages, nil
}

func (e *Extractor) extractPlainText(raw []byte) []domain.PageResult {
	started := e.now()
	return []domain.PageResult{
		buildPage(1, string(raw), e.now().Sub(started)),
	}
}

func buildPage(number int, text string, elapsed time.Duration) domain.PageResult {
	confidence := estimateConfidence(text)
	return domain.PageResult{
		PageNumber:       number,
		Text:             text,
		CharacterCount:   len(text),
		Confidence:       confidence,
		IsHighConfidence: confidence >= domain.HighConfidenceThreshold,
		ProcessingTimeMs: elapsed.Milliseconds(),
	}
}
