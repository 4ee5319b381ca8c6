package doctext

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/kirillkom/docflow/internal/core/domain"
)

func TestExtractPlainText(t *testing.T) {
	extractor := New(1 << 20)

	pages, err := extractor.Extract(context.Background(), "text/plain; charset=utf-8",
		strings.NewReader("hello extraction world"))
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if len(pages) != 1 {
		t.Fatalf("expected one page, got %d", len(pages))
	}
	page := pages[0]
	if page.PageNumber != 1 || page.Text != "hello extraction world" {
		t.Fatalf("unexpected page %+v", page)
	}
	if page.CharacterCount != len("hello extraction world") {
		t.Fatalf("unexpected character count %d", page.CharacterCount)
	}
	if !page.IsHighConfidence {
		t.Fatalf("clean text must be high confidence, got %d", page.Confidence)
	}
}

func TestExtractUnsupportedContentType(t *testing.T) {
	extractor := New(1 << 20)

	_, err := extractor.Extract(context.Background(), "image/png", strings.NewReader("x"))
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestExtractOversizedDocument(t *testing.T) {
	extractor := New(8)

	_, err := extractor.Extract(context.Background(), "text/plain",
		strings.NewReader("this is longer than eight bytes"))
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for oversized document, got %v", err)
	}
}

func TestExtractCorruptPDF(t *testing.T) {
	extractor := New(1 << 20)

	_, err := extractor.Extract(context.Background(), "application/pdf",
		strings.NewReader("not a pdf at all"))
	if !errors.Is(err, domain.ErrExternalService) {
		t.Fatalf("expected ErrExternalService for corrupt pdf, got %v", err)
	}
}

func TestExtractCancelledContext(t *testing.T) {
	extractor := New(1 << 20)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := extractor.Extract(ctx, "text/plain", strings.NewReader("x"))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
