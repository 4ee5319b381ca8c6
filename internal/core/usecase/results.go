package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/docflow/internal/core/domain"
	"github.com/kirillkom/docflow/internal/core/ports"
)

// ResultConsumerUseCase folds OcrResult and SummaryResult events back into
// persisted document state. It carries no idempotency claim: every step is
// structurally safe to double-process (analytics are recomputed from scratch,
// status transitions are table-gated, the search index write is an upsert),
// so a redelivery converges on the same state.
type ResultConsumerUseCase struct {
	repo      ports.DocumentRepository
	analytics ports.AnalyticsRepository
	search    ports.SearchIndex
	storage   ports.ObjectStorage
	now       func() time.Time
}

func NewResultConsumerUseCase(
	repo ports.DocumentRepository,
	analytics ports.AnalyticsRepository,
	search ports.SearchIndex,
	storage ports.ObjectStorage,
) *ResultConsumerUseCase {
	return &ResultConsumerUseCase{
		repo:      repo,
		analytics: analytics,
		search:    search,
		storage:   storage,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (uc *ResultConsumerUseCase) HandleOcrResult(ctx context.Context, event domain.OcrResult) error {
	if event.Status != domain.ResultSuccess {
		// Failed OCR only drives the status transition; analytics are never
		// created or updated for it.
		if err := uc.markStatus(ctx, event.DocumentID, domain.EventOcrFailed); err != nil {
			return fmt.Errorf("set status=%s: %w", domain.StatusOcrFailed, err)
		}
		slog.Warn("ocr_failed",
			"document_id", event.DocumentID,
			"error_message", event.ErrorMessage,
		)
		return nil
	}

	record := domain.BuildAnalytics(event, uc.now())
	if err := uc.analytics.Upsert(ctx, &record); err != nil {
		return fmt.Errorf("upsert analytics: %w", err)
	}
	if err := uc.markStatus(ctx, event.DocumentID, domain.EventOcrSucceeded); err != nil {
		return fmt.Errorf("set status=%s: %w", domain.StatusOcrCompleted, err)
	}

	metadata := map[string]string{
		"language":   event.Language,
		"confidence": fmt.Sprintf("%d", event.OverallConfidence),
	}
	if err := uc.search.Index(ctx, event.DocumentID, event.DocumentTitle, event.ExtractedText, metadata); err != nil {
		return fmt.Errorf("index document text: %w", err)
	}
	if err := uc.markStatus(ctx, event.DocumentID, domain.EventIndexed); err != nil {
		return fmt.Errorf("set status=%s: %w", domain.StatusIndexed, err)
	}
	return nil
}

func (uc *ResultConsumerUseCase) HandleSummaryResult(ctx context.Context, event domain.SummaryResult) error {
	if event.Status != domain.ResultSuccess {
		slog.Warn("summary_failed",
			"document_id", event.DocumentID,
			"error_message", event.ErrorMessage,
		)
		return nil
	}

	doc, err := uc.repo.GetByID(ctx, event.DocumentID)
	if err != nil {
		return fmt.Errorf("fetch document for summary: %w", err)
	}
	if err := uc.repo.SaveSummary(ctx, doc.ID, event.Summary, doc.Version); err != nil {
		return fmt.Errorf("save summary: %w", err)
	}
	return nil
}

func (uc *ResultConsumerUseCase) HandleDocumentDeleted(ctx context.Context, event domain.DocumentDeleted) error {
	doc, err := uc.repo.GetByID(ctx, event.DocumentID)
	if err != nil {
		if domain.IsKind(err, domain.ErrDocumentNotFound) {
			return nil
		}
		return fmt.Errorf("fetch document for deletion: %w", err)
	}

	if err := uc.storage.Delete(ctx, doc.Storage.Key); err != nil {
		return fmt.Errorf("delete stored document: %w", err)
	}
	if err := uc.search.Delete(ctx, doc.ID); err != nil {
		return fmt.Errorf("delete search entry: %w", err)
	}
	if err := uc.analytics.Delete(ctx, doc.ID); err != nil {
		return fmt.Errorf("delete analytics: %w", err)
	}
	if err := uc.repo.Delete(ctx, doc.ID); err != nil {
		return fmt.Errorf("delete document metadata: %w", err)
	}
	return nil
}

// markStatus applies the transition table at the single mutation point. A
// transition the table rejects means the document already advanced past it
// (redelivery), which is not an error here.
func (uc *ResultConsumerUseCase) markStatus(ctx context.Context, documentID string, event domain.StatusEvent) error {
	doc, err := uc.repo.GetByID(ctx, documentID)
	if err != nil {
		return err
	}
	next, err := domain.Apply(doc.Status, event)
	if err != nil {
		if domain.IsKind(err, domain.ErrInvalidTransition) {
			slog.Debug("status_transition_skipped",
				"document_id", documentID,
				"status", string(doc.Status),
				"event", string(event),
			)
			return nil
		}
		return err
	}
	return uc.repo.UpdateStatus(ctx, documentID, next, doc.Version)
}
