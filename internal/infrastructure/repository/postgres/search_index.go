package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kirillkom/docflow/internal/core/domain"
)

// SearchIndex keeps a full-text projection of indexed documents. It satisfies
// the search collaborator boundary with a tsvector-backed table.
type SearchIndex struct {
	db *sql.DB
}

func NewSearchIndex(db *sql.DB) *SearchIndex {
	return &SearchIndex{db: db}
}

func (s *SearchIndex) Index(ctx context.Context, documentID, title, text string, metadata map[string]string) error {
	if metadata == nil {
		metadata = map[string]string{}
	}
	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("marshal search metadata: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
INSERT INTO document_search (document_id, title, content, metadata, tsv, indexed_at)
VALUES ($1, $2, $3, $4, to_tsvector('simple', $2 || ' ' || $3), $5)
ON CONFLICT (document_id) DO UPDATE SET
	title = EXCLUDED.title,
	content = EXCLUDED.content,
	metadata = EXCLUDED.metadata,
	tsv = EXCLUDED.tsv,
	indexed_at = EXCLUDED.indexed_at
`, documentID, title, text, metaJSON, time.Now().UTC())
	if err != nil {
		return domain.WrapError(domain.ErrTemporary, "index document", err)
	}
	return nil
}

func (s *SearchIndex) Delete(ctx context.Context, documentID string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM document_search WHERE document_id = $1`, documentID); err != nil {
		return fmt.Errorf("delete search entry: %w", err)
	}
	return nil
}
