package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kirillkom/docflow/internal/core/domain"
)

type DocumentRepository struct {
	db *sql.DB
}

func NewDocumentRepository(db *sql.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

func (r *DocumentRepository) Create(ctx context.Context, doc *domain.Document) error {
	tagsJSON, err := json.Marshal(doc.Tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO documents (
	id, title, original_filename, content_type, size_bytes,
	storage_bucket, storage_key, storage_uri, checksum,
	status, tags, summary, version, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
`,
		doc.ID, doc.Title, doc.OriginalFilename, doc.ContentType, doc.SizeBytes,
		doc.Storage.Bucket, doc.Storage.Key, doc.Storage.URI, doc.Checksum,
		string(doc.Status), tagsJSON, doc.Summary, doc.Version, doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, title, original_filename, content_type, size_bytes,
	storage_bucket, storage_key, storage_uri, checksum,
	status, tags, summary, version, created_at, updated_at
FROM documents
WHERE id = $1
`, id)

	var doc domain.Document
	var tagsRaw []byte
	var status string
	var storageURI, checksum, summary sql.NullString

	err := row.Scan(
		&doc.ID, &doc.Title, &doc.OriginalFilename, &doc.ContentType, &doc.SizeBytes,
		&doc.Storage.Bucket, &doc.Storage.Key, &storageURI, &checksum,
		&status, &tagsRaw, &summary, &doc.Version, &doc.CreatedAt, &doc.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", fmt.Errorf("id %s", id))
		}
		return nil, fmt.Errorf("scan document: %w", err)
	}

	if err := json.Unmarshal(tagsRaw, &doc.Tags); err != nil {
		return nil, fmt.Errorf("unmarshal tags: %w", err)
	}
	doc.Storage.URI = storageURI.String
	doc.Checksum = checksum.String
	doc.Summary = summary.String
	doc.Status = domain.DocumentStatus(status)
	return &doc, nil
}

// UpdateStatus writes the new status under the optimistic version counter.
// Zero rows affected means either a concurrent writer bumped the version or
// the document is gone; the two are reported as distinct errors.
func (r *DocumentRepository) UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, version int64) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE documents
SET status = $2, version = version + 1, updated_at = $3
WHERE id = $1 AND version = $4
`, id, string(status), time.Now().UTC(), version)
	if err != nil {
		return fmt.Errorf("update document status: %w", err)
	}
	return r.checkVersionedWrite(ctx, res, id, "update status")
}

func (r *DocumentRepository) SaveSummary(ctx context.Context, id string, summary string, version int64) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE documents
SET summary = $2, version = version + 1, updated_at = $3
WHERE id = $1 AND version = $4
`, id, summary, time.Now().UTC(), version)
	if err != nil {
		return fmt.Errorf("save summary: %w", err)
	}
	return r.checkVersionedWrite(ctx, res, id, "save summary")
}

func (r *DocumentRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return nil
}

func (r *DocumentRepository) checkVersionedWrite(ctx context.Context, res sql.Result, id, operation string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", operation, err)
	}
	if affected > 0 {
		return nil
	}

	var exists bool
	if err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM documents WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("%s existence check: %w", operation, err)
	}
	if !exists {
		return domain.WrapError(domain.ErrDocumentNotFound, operation, fmt.Errorf("id %s", id))
	}
	return domain.WrapError(domain.ErrVersionConflict, operation, fmt.Errorf("id %s", id))
}
