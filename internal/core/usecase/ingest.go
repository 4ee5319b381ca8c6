package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/docflow/internal/core/domain"
	"github.com/kirillkom/docflow/internal/core/ports"
)

type IngestDocumentUseCase struct {
	repo      ports.DocumentRepository
	storage   ports.ObjectStorage
	publisher ports.EventPublisher
	bucket    string
}

func NewIngestDocumentUseCase(
	repo ports.DocumentRepository,
	storage ports.ObjectStorage,
	publisher ports.EventPublisher,
	bucket string,
) *IngestDocumentUseCase {
	return &IngestDocumentUseCase{
		repo:      repo,
		storage:   storage,
		publisher: publisher,
		bucket:    bucket,
	}
}

// Upload stores the document bytes, persists metadata and publishes the
// DocumentCreated event that starts the pipeline. The storage reference is
// durable before the status ever leaves NEW.
func (uc *IngestDocumentUseCase) Upload(
	ctx context.Context,
	title, filename, contentType string,
	body io.Reader,
) (*domain.Document, error) {
	id := uuid.NewString()
	storageKey := fmt.Sprintf("%s_%s", id, sanitizeFilename(filename))
	now := time.Now().UTC()

	hasher := sha256.New()
	counter := &countingReader{r: io.TeeReader(body, hasher)}
	if err := uc.storage.Save(ctx, storageKey, counter); err != nil {
		return nil, fmt.Errorf("save to object storage: %w", err)
	}

	if strings.TrimSpace(title) == "" {
		title = filename
	}

	doc := &domain.Document{
		ID:               id,
		Title:            title,
		OriginalFilename: filename,
		ContentType:      contentType,
		SizeBytes:        counter.n,
		Storage: domain.StorageRef{
			Bucket: uc.bucket,
			Key:    storageKey,
		},
		Checksum:  hex.EncodeToString(hasher.Sum(nil)),
		Status:    domain.StatusUploaded,
		Tags:      []string{},
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := uc.repo.Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("create document metadata: %w", err)
	}

	// OCR_PENDING must be durable before the event is visible: the worker's
	// first act is the OCR_PENDING -> OCR_IN_PROGRESS transition, and a prompt
	// delivery must not race the status write.
	next, err := domain.Apply(doc.Status, domain.EventOcrRequested)
	if err != nil {
		return nil, err
	}
	if err := uc.repo.UpdateStatus(ctx, doc.ID, next, doc.Version); err != nil {
		return nil, fmt.Errorf("set status=%s: %w", next, err)
	}
	doc.Status = next
	doc.Version++

	event := domain.DocumentCreated{
		MessageID:        uuid.NewString(),
		DocumentID:       doc.ID,
		Title:            doc.Title,
		OriginalFilename: doc.OriginalFilename,
		ContentType:      doc.ContentType,
		SizeBytes:        doc.SizeBytes,
		StorageBucket:    doc.Storage.Bucket,
		StorageKey:       doc.Storage.Key,
		Status:           doc.Status,
	}
	if err := uc.publisher.PublishDocumentCreated(ctx, event); err != nil {
		return nil, fmt.Errorf("publish creation event: %w", err)
	}

	return doc, nil
}

// Remove publishes the deletion event; collaborator cleanup (blob, search
// entry, analytics, metadata) happens in the result consumer.
func (uc *IngestDocumentUseCase) Remove(ctx context.Context, documentID string) error {
	if _, err := uc.repo.GetByID(ctx, documentID); err != nil {
		return err
	}
	event := domain.DocumentDeleted{
		MessageID:  uuid.NewString(),
		DocumentID: documentID,
	}
	if err := uc.publisher.PublishDocumentDeleted(ctx, event); err != nil {
		return fmt.Errorf("publish deletion event: %w", err)
	}
	return nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" {
		return "document.bin"
	}
	return base
}
