package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/docflow/internal/core/domain"
	"github.com/kirillkom/docflow/internal/core/ports"
)

// OcrStageUseCase consumes DocumentCreated events, runs text extraction and
// publishes exactly one OcrResult per claimed message.
type OcrStageUseCase struct {
	repo      ports.DocumentRepository
	storage   ports.ObjectStorage
	extractor ports.TextExtractor
	publisher ports.EventPublisher
	guard     ports.IdempotencyGuard
	language  string
	now       func() time.Time
}

func NewOcrStageUseCase(
	repo ports.DocumentRepository,
	storage ports.ObjectStorage,
	extractor ports.TextExtractor,
	publisher ports.EventPublisher,
	guard ports.IdempotencyGuard,
	language string,
) *OcrStageUseCase {
	return &OcrStageUseCase{
		repo:      repo,
		storage:   storage,
		extractor: extractor,
		publisher: publisher,
		guard:     guard,
		language:  language,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (uc *OcrStageUseCase) HandleDocumentCreated(ctx context.Context, event domain.DocumentCreated) error {
	claimed, err := uc.guard.TryClaim(ctx, event.MessageID)
	if err != nil {
		return domain.WrapError(domain.ErrTemporary, "claim message", err)
	}
	if !claimed {
		slog.Info("duplicate_delivery_dropped", "message_id", event.MessageID, "document_id", event.DocumentID)
		return nil
	}

	if err := uc.process(ctx, event); err != nil {
		// The error goes back to the broker for redelivery. Give the claim
		// back so the retry is processed instead of dropped as a duplicate.
		releaseClaim(ctx, uc.guard, event.MessageID, event.DocumentID)
		return err
	}
	return nil
}

func (uc *OcrStageUseCase) process(ctx context.Context, event domain.DocumentCreated) error {
	if err := uc.markStatus(ctx, event.DocumentID, domain.EventOcrStarted); err != nil {
		return fmt.Errorf("set status=%s: %w", domain.StatusOcrInProgress, err)
	}

	started := uc.now()
	pages, err := uc.extractPages(ctx, event)
	if err != nil {
		if domain.IsKind(err, domain.ErrTemporary) {
			return err
		}
		// Extraction errors are a pipeline outcome, not a redelivery case.
		return uc.publishFailure(ctx, event, started, err)
	}

	agg := domain.AggregatePages(pages)
	result := domain.OcrResult{
		MessageID:         uuid.NewString(),
		DocumentID:        event.DocumentID,
		DocumentTitle:     event.Title,
		ExtractedText:     agg.ExtractedText,
		TotalCharacters:   agg.TotalCharacters,
		TotalPages:        agg.TotalPages,
		PageResults:       pages,
		Language:          uc.language,
		OverallConfidence: agg.OverallConfidence,
		IsHighConfidence:  agg.IsHighConfidence,
		ProcessingTimeMs:  uc.now().Sub(started).Milliseconds(),
		Status:            domain.ResultSuccess,
		ProcessedAt:       uc.now(),
	}
	if err := uc.publisher.PublishOcrResult(ctx, result); err != nil {
		return fmt.Errorf("publish ocr result: %w", err)
	}
	return nil
}

func (uc *OcrStageUseCase) extractPages(ctx context.Context, event domain.DocumentCreated) ([]domain.PageResult, error) {
	if !uc.extractor.Available() {
		return nil, domain.WrapError(domain.ErrExternalService, "extract text",
			fmt.Errorf("extractor unavailable for %s", event.ContentType))
	}

	blob, err := uc.storage.Open(ctx, event.StorageKey)
	if err != nil {
		return nil, domain.WrapError(domain.ErrTemporary, "open stored document", err)
	}
	defer blob.Close()

	pages, err := uc.extractor.Extract(ctx, event.ContentType, blob)
	if err != nil {
		return nil, fmt.Errorf("extract text: %w", err)
	}
	if len(pages) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "extract text",
			fmt.Errorf("no pages extracted from %q", event.OriginalFilename))
	}
	return pages, nil
}

func (uc *OcrStageUseCase) publishFailure(ctx context.Context, event domain.DocumentCreated, started time.Time, cause error) error {
	result := domain.OcrResult{
		MessageID:        uuid.NewString(),
		DocumentID:       event.DocumentID,
		DocumentTitle:    event.Title,
		Language:         uc.language,
		ProcessingTimeMs: uc.now().Sub(started).Milliseconds(),
		Status:           domain.ResultFailed,
		ErrorMessage:     cause.Error(),
		ProcessedAt:      uc.now(),
	}
	if err := uc.publisher.PublishOcrResult(ctx, result); err != nil {
		return fmt.Errorf("publish failed ocr result: %w", err)
	}
	return nil
}

func (uc *OcrStageUseCase) markStatus(ctx context.Context, documentID string, event domain.StatusEvent) error {
	doc, err := uc.repo.GetByID(ctx, documentID)
	if err != nil {
		return err
	}
	next, err := domain.Apply(doc.Status, event)
	if err != nil {
		// A retried delivery finds the status it already wrote; resume the
		// work instead of rejecting the transition.
		if errors.Is(err, domain.ErrInvalidTransition) && doc.Status == domain.StatusOcrInProgress {
			return nil
		}
		return err
	}
	return uc.repo.UpdateStatus(ctx, documentID, next, doc.Version)
}

// releaseClaim is best-effort: a claim that cannot be released expires with
// its TTL, and until then redeliveries are dropped as duplicates.
func releaseClaim(ctx context.Context, guard ports.IdempotencyGuard, messageID, documentID string) {
	if err := guard.Release(context.WithoutCancel(ctx), messageID); err != nil {
		slog.Error("claim_release_failed", "message_id", messageID, "document_id", documentID, "error", err)
	}
}
