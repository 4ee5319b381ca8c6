package domain

import "time"

// ResultStatus is the logical outcome carried by result-type events.
type ResultStatus string

const (
	ResultSuccess ResultStatus = "SUCCESS"
	ResultFailed  ResultStatus = "FAILED"
	ResultPending ResultStatus = "PENDING"
)

// RoutingKey selects the queue(s) an event is dispatched to.
type RoutingKey string

const (
	KeyDocumentCreated RoutingKey = "document.created"
	KeyDocumentDeleted RoutingKey = "document.deleted"
	KeyOcrResult       RoutingKey = "ocr.result"
	KeySummaryResult   RoutingKey = "summary.result"
)

// DocumentCreated is published by the originating service once the document
// bytes are durably stored.
type DocumentCreated struct {
	MessageID        string         `json:"messageId"`
	DocumentID       string         `json:"documentId"`
	Title            string         `json:"title"`
	OriginalFilename string         `json:"originalFilename"`
	ContentType      string         `json:"contentType"`
	SizeBytes        int64          `json:"sizeBytes"`
	StorageBucket    string         `json:"storageBucket"`
	StorageKey       string         `json:"storageKey"`
	Status           DocumentStatus `json:"status"`
}

type DocumentDeleted struct {
	MessageID  string `json:"messageId"`
	DocumentID string `json:"documentId"`
}

// PageResult is one page of extraction output, owned by the OcrResult event.
type PageResult struct {
	PageNumber       int    `json:"pageNumber"`
	Text             string `json:"text"`
	CharacterCount   int    `json:"characterCount"`
	Confidence       int    `json:"confidence"`
	IsHighConfidence bool   `json:"isHighConfidence"`
	ProcessingTimeMs int64  `json:"processingTimeMs"`
}

type OcrResult struct {
	MessageID         string       `json:"messageId"`
	DocumentID        string       `json:"documentId"`
	DocumentTitle     string       `json:"documentTitle"`
	ExtractedText     string       `json:"extractedText"`
	TotalCharacters   int          `json:"totalCharacters"`
	TotalPages        int          `json:"totalPages"`
	PageResults       []PageResult `json:"pageResults"`
	Language          string       `json:"language,omitempty"`
	OverallConfidence int          `json:"overallConfidence"`
	IsHighConfidence  bool         `json:"isHighConfidence"`
	ProcessingTimeMs  int64        `json:"processingTimeMs"`
	Status            ResultStatus `json:"status"`
	ErrorMessage      string       `json:"errorMessage,omitempty"`
	ProcessedAt       time.Time    `json:"processedAt"`
}

type SummaryResult struct {
	MessageID        string       `json:"messageId"`
	DocumentID       string       `json:"documentId"`
	Title            string       `json:"title"`
	Summary          string       `json:"summary,omitempty"`
	Status           ResultStatus `json:"status"`
	ErrorMessage     string       `json:"errorMessage,omitempty"`
	ProcessingTimeMs int64        `json:"processingTimeMs"`
	Timestamp        time.Time    `json:"timestamp"`
}
