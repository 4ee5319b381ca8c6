package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kirillkom/docflow/internal/core/domain"
)

type AnalyticsRepository struct {
	db *sql.DB
}

func NewAnalyticsRepository(db *sql.DB) *AnalyticsRepository {
	return &AnalyticsRepository{db: db}
}

// Upsert replaces the analytics row wholesale. The record is recomputed from
// the OCR result by the caller, so there is nothing to merge.
func (r *AnalyticsRepository) Upsert(ctx context.Context, a *domain.DocumentAnalytics) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO document_analytics (
	document_id, total_characters, total_words, total_pages, average_confidence,
	language, ocr_time_ms, words_per_page, chars_per_page,
	quality_score, is_high_quality, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
ON CONFLICT (document_id) DO UPDATE SET
	total_characters = EXCLUDED.total_characters,
	total_words = EXCLUDED.total_words,
	total_pages = EXCLUDED.total_pages,
	average_confidence = EXCLUDED.average_confidence,
	language = EXCLUDED.language,
	ocr_time_ms = EXCLUDED.ocr_time_ms,
	words_per_page = EXCLUDED.words_per_page,
	chars_per_page = EXCLUDED.chars_per_page,
	quality_score = EXCLUDED.quality_score,
	is_high_quality = EXCLUDED.is_high_quality,
	updated_at = EXCLUDED.updated_at
`,
		a.DocumentID, a.TotalCharacters, a.TotalWords, a.TotalPages, a.AverageConfidence,
		a.Language, a.OcrTimeMs, a.WordsPerPage, a.CharsPerPage,
		a.QualityScore, a.IsHighQuality, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert analytics: %w", err)
	}
	return nil
}

func (r *AnalyticsRepository) GetByDocumentID(ctx context.Context, documentID string) (*domain.DocumentAnalytics, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT document_id, total_characters, total_words, total_pages, average_confidence,
	language, ocr_time_ms, words_per_page, chars_per_page,
	quality_score, is_high_quality, created_at, updated_at
FROM document_analytics
WHERE document_id = $1
`, documentID)

	var a domain.DocumentAnalytics
	var language sql.NullString
	err := row.Scan(
		&a.DocumentID, &a.TotalCharacters, &a.TotalWords, &a.TotalPages, &a.AverageConfidence,
		&language, &a.OcrTimeMs, &a.WordsPerPage, &a.CharsPerPage,
		&a.QualityScore, &a.IsHighQuality, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrDocumentNotFound, "get analytics", fmt.Errorf("document %s", documentID))
		}
		return nil, fmt.Errorf("scan analytics: %w", err)
	}
	a.Language = language.String
	return &a, nil
}

func (r *AnalyticsRepository) Delete(ctx context.Context, documentID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM document_analytics WHERE document_id = $1`, documentID); err != nil {
		return fmt.Errorf("delete analytics: %w", err)
	}
	return nil
}
