package ports

import (
	"context"
	"io"

	"github.com/kirillkom/docflow/internal/core/domain"
)

// DocumentIngestor is the inbound contract for document upload orchestration.
type DocumentIngestor interface {
	Upload(ctx context.Context, title, filename, contentType string, body io.Reader) (*domain.Document, error)
	Remove(ctx context.Context, documentID string) error
}

// DocumentReader is the inbound read model for document metadata/state.
type DocumentReader interface {
	GetByID(ctx context.Context, id string) (*domain.Document, error)
}

// OcrStage handles DocumentCreated events on the OCR worker.
type OcrStage interface {
	HandleDocumentCreated(ctx context.Context, event domain.DocumentCreated) error
}

// SummaryStage handles OcrResult events on the summarization worker.
type SummaryStage interface {
	HandleOcrResult(ctx context.Context, event domain.OcrResult) error
}

// ResultConsumer folds pipeline results back into persisted document state on
// the originating service.
type ResultConsumer interface {
	HandleOcrResult(ctx context.Context, event domain.OcrResult) error
	HandleSummaryResult(ctx context.Context, event domain.SummaryResult) error
	HandleDocumentDeleted(ctx context.Context, event domain.DocumentDeleted) error
}
