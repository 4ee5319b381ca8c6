package ports

import (
	"context"
	"io"

	"github.com/kirillkom/docflow/internal/core/domain"
)

// DocumentRepository persists and reads document state.
type DocumentRepository interface {
	Create(ctx context.Context, doc *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	// UpdateStatus writes a new status guarded by the optimistic version
	// counter. Returns domain.ErrVersionConflict when another writer won.
	UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, version int64) error
	SaveSummary(ctx context.Context, id string, summary string, version int64) error
	Delete(ctx context.Context, id string) error
}

// AnalyticsRepository persists derived per-document analytics.
type AnalyticsRepository interface {
	Upsert(ctx context.Context, analytics *domain.DocumentAnalytics) error
	GetByDocumentID(ctx context.Context, documentID string) (*domain.DocumentAnalytics, error)
	Delete(ctx context.Context, documentID string) error
}

// IdempotencyGuard atomically claims message identifiers. The first claim for
// an identifier returns true; every later claim returns false. An unreachable
// store is an error, never an implicit "unclaimed". Release gives a claim
// back when the claimed work failed and the broker will redeliver; without it
// the redelivery would be dropped as a duplicate.
type IdempotencyGuard interface {
	TryClaim(ctx context.Context, messageID string) (bool, error)
	Release(ctx context.Context, messageID string) error
}

// ObjectStorage stores source document bytes.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// SearchIndex is the full-text search collaborator.
type SearchIndex interface {
	Index(ctx context.Context, documentID, title, text string, metadata map[string]string) error
	Delete(ctx context.Context, documentID string) error
}

// EventPublisher publishes pipeline events by routing key. Publishing is
// mandatory-mode: an unroutable event surfaces as an error.
type EventPublisher interface {
	PublishDocumentCreated(ctx context.Context, event domain.DocumentCreated) error
	PublishDocumentDeleted(ctx context.Context, event domain.DocumentDeleted) error
	PublishOcrResult(ctx context.Context, event domain.OcrResult) error
	PublishSummaryResult(ctx context.Context, event domain.SummaryResult) error
}

// TextExtractor is the OCR capability: bytes in, ordered page results out.
type TextExtractor interface {
	Extract(ctx context.Context, contentType string, data io.Reader) ([]domain.PageResult, error)
	Available() bool
}

// Summarizer is the generative summarization capability.
type Summarizer interface {
	Summarize(ctx context.Context, text string) (string, error)
	IsConfigured() bool
}
