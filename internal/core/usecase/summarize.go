package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/docflow/internal/core/domain"
	"github.com/kirillkom/docflow/internal/core/ports"
)

// SummarizeUseCase is the summarization orchestrator. Every OcrResult that
// passes the idempotency claim produces exactly one SummaryResult: success,
// validation failure or capability failure. There is no silent no-op path.
type SummarizeUseCase struct {
	summarizer ports.Summarizer
	publisher  ports.EventPublisher
	guard      ports.IdempotencyGuard
	minChars   int
	timeout    time.Duration
	now        func() time.Time

	publishAttempts   int
	publishRetryDelay time.Duration

	wg sync.WaitGroup
}

func NewSummarizeUseCase(
	summarizer ports.Summarizer,
	publisher ports.EventPublisher,
	guard ports.IdempotencyGuard,
	minChars int,
	timeout time.Duration,
) *SummarizeUseCase {
	if minChars <= 0 {
		minChars = 50
	}
	if timeout <= 0 {
		timeout = 3 * time.Minute
	}
	return &SummarizeUseCase{
		summarizer: summarizer,
		publisher:  publisher,
		guard:      guard,
		minChars:   minChars,
		timeout:    timeout,
		now:        func() time.Time { return time.Now().UTC() },

		publishAttempts:   3,
		publishRetryDelay: 2 * time.Second,
	}
}

// HandleOcrResult claims the message, validates eligibility and dispatches
// summarization off the consumer goroutine so the next message can be picked
// up while the capability call runs.
func (uc *SummarizeUseCase) HandleOcrResult(ctx context.Context, event domain.OcrResult) error {
	claimed, err := uc.guard.TryClaim(ctx, event.MessageID)
	if err != nil {
		return domain.WrapError(domain.ErrTemporary, "claim message", err)
	}
	if !claimed {
		slog.Info("duplicate_delivery_dropped", "message_id", event.MessageID, "document_id", event.DocumentID)
		return nil
	}

	started := uc.now()
	if err := uc.validate(event); err != nil {
		if pubErr := uc.publishResult(ctx, event, "", started, err); pubErr != nil {
			releaseClaim(ctx, uc.guard, event.MessageID, event.DocumentID)
			return pubErr
		}
		return nil
	}

	uc.wg.Add(1)
	go func() {
		defer uc.wg.Done()
		// Detached from the message context: the inbound delivery is already
		// acknowledged once dispatch succeeds.
		callCtx, cancel := context.WithTimeout(context.Background(), uc.timeout)
		defer cancel()

		summary, err := uc.summarizer.Summarize(callCtx, event.ExtractedText)
		if err != nil {
			err = domain.WrapError(domain.ErrExternalService, "summarize document", err)
		}
		uc.publishWithRetry(callCtx, event, summary, started, err)
	}()
	return nil
}

// publishWithRetry covers the one path where the inbound delivery is already
// acknowledged: if the result cannot be published here, nobody retries it.
func (uc *SummarizeUseCase) publishWithRetry(
	ctx context.Context,
	event domain.OcrResult,
	summary string,
	started time.Time,
	cause error,
) {
	for attempt := 1; ; attempt++ {
		pubErr := uc.publishResult(ctx, event, summary, started, cause)
		if pubErr == nil {
			return
		}
		if attempt >= uc.publishAttempts || ctx.Err() != nil {
			slog.Error("summary_result_publish_failed",
				"document_id", event.DocumentID,
				"message_id", event.MessageID,
				"attempts", attempt,
				"error", pubErr,
			)
			return
		}
		slog.Warn("summary_result_publish_retry",
			"document_id", event.DocumentID,
			"message_id", event.MessageID,
			"attempt", attempt,
			"error", pubErr,
		)
		select {
		case <-ctx.Done():
		case <-time.After(uc.publishRetryDelay):
		}
	}
}

// Drain blocks until all dispatched summarizations have completed and
// published their results. Called on worker shutdown.
func (uc *SummarizeUseCase) Drain() {
	uc.wg.Wait()
}

// validate applies the eligibility rules in order; the first failure
// short-circuits without invoking the summarization capability.
func (uc *SummarizeUseCase) validate(event domain.OcrResult) error {
	if event.Status != domain.ResultSuccess {
		return domain.WrapError(domain.ErrInvalidInput, "validate ocr result",
			fmt.Errorf("ocr status is %s", event.Status))
	}
	text := strings.TrimSpace(event.ExtractedText)
	if len(text) == 0 {
		return domain.WrapError(domain.ErrInvalidInput, "validate ocr result",
			fmt.Errorf("extracted text is empty"))
	}
	if len(text) < uc.minChars {
		return domain.WrapError(domain.ErrInvalidInput, "validate ocr result",
			fmt.Errorf("extracted text has %d characters, minimum is %d", len(text), uc.minChars))
	}
	if !uc.summarizer.IsConfigured() {
		return domain.WrapError(domain.ErrExternalService, "validate ocr result",
			fmt.Errorf("summarization capability is not configured"))
	}
	return nil
}

func (uc *SummarizeUseCase) publishResult(
	ctx context.Context,
	event domain.OcrResult,
	summary string,
	started time.Time,
	cause error,
) error {
	result := domain.SummaryResult{
		MessageID:        uuid.NewString(),
		DocumentID:       event.DocumentID,
		Title:            event.DocumentTitle,
		Summary:          summary,
		Status:           domain.ResultSuccess,
		ProcessingTimeMs: uc.now().Sub(started).Milliseconds(),
		Timestamp:        uc.now(),
	}
	if cause != nil {
		result.Status = domain.ResultFailed
		result.Summary = ""
		result.ErrorMessage = cause.Error()
	}
	if err := uc.publisher.PublishSummaryResult(ctx, result); err != nil {
		return fmt.Errorf("publish summary result: %w", err)
	}
	return nil
}
