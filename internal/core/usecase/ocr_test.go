package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/kirillkom/docflow/internal/core/domain"
)

func ocrFixture() (*repoFake, *storageFake, *extractorFake, *publisherFake, *guardFake, domain.DocumentCreated) {
	repo := newRepoFake(&domain.Document{
		ID:      "doc-1",
		Status:  domain.StatusOcrPending,
		Version: 2,
		Storage: domain.StorageRef{Bucket: "b", Key: "doc-1_scan.pdf"},
	})
	storage := newStorageFake()
	storage.content = "raw bytes"
	extractor := &extractorFake{pages: []domain.PageResult{
		{PageNumber: 1, Text: "alpha beta ", Confidence: 90},
		{PageNumber: 2, Text: "gamma", Confidence: 70},
	}}
	event := domain.DocumentCreated{
		MessageID:   "msg-1",
		DocumentID:  "doc-1",
		Title:       "Scan",
		ContentType: "application/pdf",
		StorageKey:  "doc-1_scan.pdf",
		Status:      domain.StatusUploaded,
	}
	return repo, storage, extractor, &publisherFake{}, newGuardFake(), event
}

func TestOcrStageSuccess(t *testing.T) {
	repo, storage, extractor, publisher, guard, event := ocrFixture()
	uc := NewOcrStageUseCase(repo, storage, extractor, publisher, guard, "en")

	if err := uc.HandleDocumentCreated(context.Background(), event); err != nil {
		t.Fatalf("HandleDocumentCreated() error = %v", err)
	}
	if len(publisher.ocrResults) != 1 {
		t.Fatalf("expected one OcrResult, got %d", len(publisher.ocrResults))
	}
	result := publisher.ocrResults[0]
	if result.Status != domain.ResultSuccess {
		t.Fatalf("expected SUCCESS, got %s (%s)", result.Status, result.ErrorMessage)
	}
	if result.ExtractedText != "alpha beta gamma" {
		t.Fatalf("unexpected text %q", result.ExtractedText)
	}
	if result.OverallConfidence != 80 || !result.IsHighConfidence {
		t.Fatalf("expected confidence 80 high, got %d", result.OverallConfidence)
	}
	if result.TotalPages != 2 {
		t.Fatalf("expected 2 pages, got %d", result.TotalPages)
	}
	if result.MessageID == event.MessageID {
		t.Fatal("result must carry its own message id")
	}
	if len(repo.statusWrites) != 1 || repo.statusWrites[0] != domain.StatusOcrInProgress {
		t.Fatalf("expected single OCR_IN_PROGRESS write, got %v", repo.statusWrites)
	}
}

func TestOcrStageDuplicateDelivery(t *testing.T) {
	repo, storage, extractor, publisher, guard, event := ocrFixture()
	uc := NewOcrStageUseCase(repo, storage, extractor, publisher, guard, "en")

	if err := uc.HandleDocumentCreated(context.Background(), event); err != nil {
		t.Fatalf("first delivery error = %v", err)
	}
	if err := uc.HandleDocumentCreated(context.Background(), event); err != nil {
		t.Fatalf("duplicate delivery error = %v", err)
	}
	if len(publisher.ocrResults) != 1 {
		t.Fatalf("duplicate delivery must not publish again, got %d results", len(publisher.ocrResults))
	}
}

func TestOcrStageGuardUnavailable(t *testing.T) {
	repo, storage, extractor, publisher, guard, event := ocrFixture()
	guard.claimErr = errors.New("store down")
	uc := NewOcrStageUseCase(repo, storage, extractor, publisher, guard, "en")

	err := uc.HandleDocumentCreated(context.Background(), event)
	if !errors.Is(err, domain.ErrTemporary) {
		t.Fatalf("expected ErrTemporary for unreachable guard, got %v", err)
	}
	if len(publisher.ocrResults) != 0 {
		t.Fatal("no result may be published when the claim fails")
	}
}

func TestOcrStageStorageOpenErrorIsRetryable(t *testing.T) {
	repo, storage, extractor, publisher, guard, event := ocrFixture()
	storage.openErr = errors.New("blob store timeout")
	uc := NewOcrStageUseCase(repo, storage, extractor, publisher, guard, "en")

	err := uc.HandleDocumentCreated(context.Background(), event)
	if !errors.Is(err, domain.ErrTemporary) {
		t.Fatalf("expected ErrTemporary, got %v", err)
	}
	if len(publisher.ocrResults) != 0 {
		t.Fatal("transient failures go back to the queue, not into a FAILED result")
	}
}

func TestOcrStageTransientFailureReleasesClaim(t *testing.T) {
	repo, storage, extractor, publisher, guard, event := ocrFixture()
	storage.openFailures = 1
	uc := NewOcrStageUseCase(repo, storage, extractor, publisher, guard, "en")

	err := uc.HandleDocumentCreated(context.Background(), event)
	if !errors.Is(err, domain.ErrTemporary) {
		t.Fatalf("expected ErrTemporary on first delivery, got %v", err)
	}
	if guard.holds(event.MessageID) {
		t.Fatal("failed delivery must release its claim for the redelivery")
	}
	if len(publisher.ocrResults) != 0 {
		t.Fatalf("no result yet, got %d", len(publisher.ocrResults))
	}

	// The broker redelivers after the outage. The redelivery must be
	// processed, not dropped as a duplicate.
	if err := uc.HandleDocumentCreated(context.Background(), event); err != nil {
		t.Fatalf("redelivery error = %v", err)
	}
	if len(publisher.ocrResults) != 1 {
		t.Fatalf("expected one OcrResult after redelivery, got %d", len(publisher.ocrResults))
	}
	if publisher.ocrResults[0].Status != domain.ResultSuccess {
		t.Fatalf("expected SUCCESS, got %s", publisher.ocrResults[0].Status)
	}
	// The first attempt already wrote OCR_IN_PROGRESS; the redelivery resumes
	// from there without a second write.
	if len(repo.statusWrites) != 1 || repo.statusWrites[0] != domain.StatusOcrInProgress {
		t.Fatalf("expected single OCR_IN_PROGRESS write, got %v", repo.statusWrites)
	}
}

func TestOcrStageReleaseFailureKeepsHandlerError(t *testing.T) {
	repo, storage, extractor, publisher, guard, event := ocrFixture()
	storage.openErr = errors.New("blob store timeout")
	guard.releaseErr = errors.New("store down")
	uc := NewOcrStageUseCase(repo, storage, extractor, publisher, guard, "en")

	// The release is best-effort; the handler error still reaches the broker.
	err := uc.HandleDocumentCreated(context.Background(), event)
	if !errors.Is(err, domain.ErrTemporary) {
		t.Fatalf("expected ErrTemporary, got %v", err)
	}
}

func TestOcrStagePublishErrorReleasesClaim(t *testing.T) {
	repo, storage, extractor, publisher, guard, event := ocrFixture()
	publisher.ocrErr = errors.New("broker unavailable")
	uc := NewOcrStageUseCase(repo, storage, extractor, publisher, guard, "en")

	if err := uc.HandleDocumentCreated(context.Background(), event); err == nil {
		t.Fatal("expected publish error")
	}
	if guard.holds(event.MessageID) {
		t.Fatal("failed delivery must release its claim for the redelivery")
	}

	publisher.ocrErr = nil
	if err := uc.HandleDocumentCreated(context.Background(), event); err != nil {
		t.Fatalf("redelivery error = %v", err)
	}
	if len(publisher.ocrResults) != 1 {
		t.Fatalf("expected one OcrResult after redelivery, got %d", len(publisher.ocrResults))
	}
}

func TestOcrStageExtractorUnavailablePublishesFailure(t *testing.T) {
	repo, storage, extractor, publisher, guard, event := ocrFixture()
	extractor.unavailable = true
	uc := NewOcrStageUseCase(repo, storage, extractor, publisher, guard, "en")

	if err := uc.HandleDocumentCreated(context.Background(), event); err != nil {
		t.Fatalf("HandleDocumentCreated() error = %v", err)
	}
	if len(publisher.ocrResults) != 1 {
		t.Fatalf("expected one FAILED result, got %d", len(publisher.ocrResults))
	}
	result := publisher.ocrResults[0]
	if result.Status != domain.ResultFailed || result.ErrorMessage == "" {
		t.Fatalf("expected FAILED result with message, got %+v", result)
	}
}

func TestOcrStageZeroPagesPublishesFailure(t *testing.T) {
	repo, storage, extractor, publisher, guard, event := ocrFixture()
	extractor.pages = nil
	uc := NewOcrStageUseCase(repo, storage, extractor, publisher, guard, "en")

	if err := uc.HandleDocumentCreated(context.Background(), event); err != nil {
		t.Fatalf("HandleDocumentCreated() error = %v", err)
	}
	if len(publisher.ocrResults) != 1 || publisher.ocrResults[0].Status != domain.ResultFailed {
		t.Fatalf("expected FAILED result, got %+v", publisher.ocrResults)
	}
}
