package domain

import (
	"math"
	"sort"
	"strings"
	"time"
)

const (
	// HighConfidenceThreshold marks a page or document as reliably extracted.
	HighConfidenceThreshold = 70
	// HighQualityThreshold marks an analytics record as high quality.
	HighQualityThreshold = 70.0
	// qualityWordsPerPageRef is the words-per-page density that saturates the
	// density component of the quality score.
	qualityWordsPerPageRef = 400.0
)

// DocumentAnalytics is the derived per-document record, recomputed from
// scratch on every successful OCR result.
type DocumentAnalytics struct {
	DocumentID        string    `json:"document_id"`
	TotalCharacters   int       `json:"total_characters"`
	TotalWords        int       `json:"total_words"`
	TotalPages        int       `json:"total_pages"`
	AverageConfidence int       `json:"average_confidence"`
	Language          string    `json:"language,omitempty"`
	OcrTimeMs         int64     `json:"ocr_time_ms"`
	WordsPerPage      float64   `json:"words_per_page"`
	CharsPerPage      float64   `json:"chars_per_page"`
	QualityScore      float64   `json:"quality_score"`
	IsHighQuality     bool      `json:"is_high_quality"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Aggregate is the document-level view of an ordered page result list.
type Aggregate struct {
	ExtractedText     string
	TotalCharacters   int
	TotalWords        int
	TotalPages        int
	OverallConfidence int
	IsHighConfidence  bool
}

// AggregatePages combines per-page OCR output in ascending page order.
// Deterministic: the same input always yields the same aggregate.
func AggregatePages(pages []PageResult) Aggregate {
	ordered := make([]PageResult, len(pages))
	copy(ordered, pages)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].PageNumber < ordered[j].PageNumber
	})

	var text strings.Builder
	confidenceSum := 0
	for _, p := range ordered {
		text.WriteString(p.Text)
		confidenceSum += p.Confidence
	}

	extracted := text.String()
	overall := 0
	if len(ordered) > 0 {
		overall = int(math.Round(float64(confidenceSum) / float64(len(ordered))))
	}

	return Aggregate{
		ExtractedText:     extracted,
		TotalCharacters:   len(extracted),
		TotalWords:        len(strings.Fields(extracted)),
		TotalPages:        len(ordered),
		OverallConfidence: overall,
		IsHighConfidence:  overall >= HighConfidenceThreshold,
	}
}

// QualityScore weighs extraction confidence against text density. The density
// component saturates at qualityWordsPerPageRef words per page.
func QualityScore(averageConfidence int, wordsPerPage float64) float64 {
	density := math.Min(wordsPerPage/qualityWordsPerPageRef*100, 100)
	return float64(averageConfidence)*0.7 + density*0.3
}

// BuildAnalytics derives the analytics record for one successful OCR result.
func BuildAnalytics(result OcrResult, now time.Time) DocumentAnalytics {
	wordsPerPage := 0.0
	charsPerPage := 0.0
	totalWords := len(strings.Fields(result.ExtractedText))
	if result.TotalPages > 0 {
		wordsPerPage = float64(totalWords) / float64(result.TotalPages)
		charsPerPage = float64(result.TotalCharacters) / float64(result.TotalPages)
	}

	score := QualityScore(result.OverallConfidence, wordsPerPage)
	return DocumentAnalytics{
		DocumentID:        result.DocumentID,
		TotalCharacters:   result.TotalCharacters,
		TotalWords:        totalWords,
		TotalPages:        result.TotalPages,
		AverageConfidence: result.OverallConfidence,
		Language:          result.Language,
		OcrTimeMs:         result.ProcessingTimeMs,
		WordsPerPage:      wordsPerPage,
		CharsPerPage:      charsPerPage,
		QualityScore:      score,
		IsHighQuality:     score >= HighQualityThreshold,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}
