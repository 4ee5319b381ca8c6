package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/docflow/internal/core/domain"
)

func summaryInput(messageID string) domain.OcrResult {
	return domain.OcrResult{
		MessageID:     messageID,
		DocumentID:    "doc-1",
		DocumentTitle: "Scan",
		ExtractedText: strings.Repeat("the quick brown fox ", 10),
		Status:        domain.ResultSuccess,
	}
}

func TestSummarizeSuccess(t *testing.T) {
	summarizer := &summarizerFake{summary: "A document about foxes."}
	publisher := &publisherFake{}
	uc := NewSummarizeUseCase(summarizer, publisher, newGuardFake(), 50, time.Minute)

	if err := uc.HandleOcrResult(context.Background(), summaryInput("msg-1")); err != nil {
		t.Fatalf("HandleOcrResult() error = %v", err)
	}
	uc.Drain()

	results := publisher.summaryResults()
	if len(results) != 1 {
		t.Fatalf("expected one SummaryResult, got %d", len(results))
	}
	if results[0].Status != domain.ResultSuccess {
		t.Fatalf("expected SUCCESS, got %s (%s)", results[0].Status, results[0].ErrorMessage)
	}
	if results[0].Summary != "A document about foxes." {
		t.Fatalf("unexpected summary %q", results[0].Summary)
	}
	if results[0].DocumentID != "doc-1" || results[0].Title != "Scan" {
		t.Fatalf("result does not reference the document: %+v", results[0])
	}
}

func TestSummarizeDuplicateDeliveryProducesOneResult(t *testing.T) {
	summarizer := &summarizerFake{summary: "s"}
	publisher := &publisherFake{}
	uc := NewSummarizeUseCase(summarizer, publisher, newGuardFake(), 50, time.Minute)

	event := summaryInput("msg-dup")
	if err := uc.HandleOcrResult(context.Background(), event); err != nil {
		t.Fatalf("first delivery error = %v", err)
	}
	if err := uc.HandleOcrResult(context.Background(), event); err != nil {
		t.Fatalf("duplicate delivery error = %v", err)
	}
	uc.Drain()

	if got := len(publisher.summaryResults()); got != 1 {
		t.Fatalf("expected exactly one SummaryResult, got %d", got)
	}
	if summarizer.callCount() != 1 {
		t.Fatalf("expected one capability call, got %d", summarizer.callCount())
	}
}

func TestSummarizeRejectsFailedOcr(t *testing.T) {
	summarizer := &summarizerFake{summary: "s"}
	publisher := &publisherFake{}
	uc := NewSummarizeUseCase(summarizer, publisher, newGuardFake(), 50, time.Minute)

	event := summaryInput("msg-2")
	event.Status = domain.ResultFailed
	if err := uc.HandleOcrResult(context.Background(), event); err != nil {
		t.Fatalf("HandleOcrResult() error = %v", err)
	}
	uc.Drain()

	results := publisher.summaryResults()
	if len(results) != 1 || results[0].Status != domain.ResultFailed {
		t.Fatalf("expected one FAILED result, got %+v", results)
	}
	if summarizer.callCount() != 0 {
		t.Fatal("failed OCR must not reach the summarizer")
	}
}

func TestSummarizeRejectsShortText(t *testing.T) {
	summarizer := &summarizerFake{summary: "s"}
	publisher := &publisherFake{}
	uc := NewSummarizeUseCase(summarizer, publisher, newGuardFake(), 50, time.Minute)

	event := summaryInput("msg-3")
	event.ExtractedText = "too short"
	if err := uc.HandleOcrResult(context.Background(), event); err != nil {
		t.Fatalf("HandleOcrResult() error = %v", err)
	}

	results := publisher.summaryResults()
	if len(results) != 1 {
		t.Fatalf("expected one result, got %d", len(results))
	}
	if results[0].Status != domain.ResultFailed || results[0].Summary != "" {
		t.Fatalf("expected FAILED result without summary, got %+v", results[0])
	}
	if !strings.Contains(results[0].ErrorMessage, "minimum") {
		t.Fatalf("expected minimum-length message, got %q", results[0].ErrorMessage)
	}
	if summarizer.callCount() != 0 {
		t.Fatal("short text must not reach the summarizer")
	}
}

func TestSummarizeUnconfiguredCapability(t *testing.T) {
	summarizer := &summarizerFake{unconfigured: true}
	publisher := &publisherFake{}
	uc := NewSummarizeUseCase(summarizer, publisher, newGuardFake(), 50, time.Minute)

	if err := uc.HandleOcrResult(context.Background(), summaryInput("msg-4")); err != nil {
		t.Fatalf("HandleOcrResult() error = %v", err)
	}

	results := publisher.summaryResults()
	if len(results) != 1 || results[0].Status != domain.ResultFailed {
		t.Fatalf("expected FAILED result, got %+v", results)
	}
	if summarizer.callCount() != 0 {
		t.Fatal("unconfigured capability must not be invoked")
	}
}

func TestSummarizeCapabilityErrorPublishesFailure(t *testing.T) {
	summarizer := &summarizerFake{err: errors.New("model timeout")}
	publisher := &publisherFake{}
	uc := NewSummarizeUseCase(summarizer, publisher, newGuardFake(), 50, time.Minute)

	if err := uc.HandleOcrResult(context.Background(), summaryInput("msg-5")); err != nil {
		t.Fatalf("HandleOcrResult() error = %v", err)
	}
	uc.Drain()

	results := publisher.summaryResults()
	if len(results) != 1 || results[0].Status != domain.ResultFailed {
		t.Fatalf("expected FAILED result, got %+v", results)
	}
	if !strings.Contains(results[0].ErrorMessage, "model timeout") {
		t.Fatalf("expected cause in error message, got %q", results[0].ErrorMessage)
	}
}

func TestSummarizeValidationPublishErrorReleasesClaim(t *testing.T) {
	publisher := &publisherFake{summaryErr: errors.New("broker unavailable")}
	guard := newGuardFake()
	uc := NewSummarizeUseCase(&summarizerFake{summary: "s"}, publisher, guard, 50, time.Minute)

	event := summaryInput("msg-7")
	event.Status = domain.ResultFailed
	if err := uc.HandleOcrResult(context.Background(), event); err == nil {
		t.Fatal("expected publish error")
	}
	if guard.holds(event.MessageID) {
		t.Fatal("failed delivery must release its claim for the redelivery")
	}

	publisher.summaryErr = nil
	if err := uc.HandleOcrResult(context.Background(), event); err != nil {
		t.Fatalf("redelivery error = %v", err)
	}
	if got := len(publisher.summaryResults()); got != 1 {
		t.Fatalf("expected one SummaryResult after redelivery, got %d", got)
	}
}

func TestSummarizeRetriesResultPublish(t *testing.T) {
	summarizer := &summarizerFake{summary: "s"}
	publisher := &publisherFake{summaryFailures: 2}
	uc := NewSummarizeUseCase(summarizer, publisher, newGuardFake(), 50, time.Minute)
	uc.publishRetryDelay = time.Millisecond

	// The inbound delivery is acked once dispatch succeeds, so the result
	// publish must survive a transient broker outage on its own.
	if err := uc.HandleOcrResult(context.Background(), summaryInput("msg-8")); err != nil {
		t.Fatalf("HandleOcrResult() error = %v", err)
	}
	uc.Drain()

	results := publisher.summaryResults()
	if len(results) != 1 {
		t.Fatalf("expected one SummaryResult after retries, got %d", len(results))
	}
	if results[0].Status != domain.ResultSuccess {
		t.Fatalf("expected SUCCESS, got %s", results[0].Status)
	}
}

func TestSummarizeGuardUnavailable(t *testing.T) {
	guard := newGuardFake()
	guard.claimErr = errors.New("store down")
	publisher := &publisherFake{}
	uc := NewSummarizeUseCase(&summarizerFake{summary: "s"}, publisher, guard, 50, time.Minute)

	err := uc.HandleOcrResult(context.Background(), summaryInput("msg-6"))
	if !errors.Is(err, domain.ErrTemporary) {
		t.Fatalf("expected ErrTemporary, got %v", err)
	}
	if len(publisher.summaryResults()) != 0 {
		t.Fatal("no result may be published when the claim fails")
	}
}
