package domain

import "time"

type DocumentStatus string

const (
	StatusNew           DocumentStatus = "NEW"
	StatusUploaded      DocumentStatus = "UPLOADED"
	StatusOcrPending    DocumentStatus = "OCR_PENDING"
	StatusOcrInProgress DocumentStatus = "OCR_IN_PROGRESS"
	StatusOcrCompleted  DocumentStatus = "OCR_COMPLETED"
	StatusOcrFailed     DocumentStatus = "OCR_FAILED"
	StatusIndexed       DocumentStatus = "INDEXED"
)

// StorageRef locates the original bytes in object storage. Opaque to the
// pipeline: only the originating service and the OCR stage dereference it.
type StorageRef struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
	URI    string `json:"uri,omitempty"`
}

type Document struct {
	ID               string         `json:"id"`
	Title            string         `json:"title"`
	OriginalFilename string         `json:"original_filename"`
	ContentType      string         `json:"content_type"`
	SizeBytes        int64          `json:"size_bytes"`
	Storage          StorageRef     `json:"storage"`
	Checksum         string         `json:"checksum,omitempty"`
	Status           DocumentStatus `json:"status"`
	Tags             []string       `json:"tags,omitempty"`
	Summary          string         `json:"summary,omitempty"`
	Version          int64          `json:"version"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// IsProcessing reports whether the document is between OCR request and result.
func (s DocumentStatus) IsProcessing() bool {
	return s == StatusOcrPending || s == StatusOcrInProgress
}

func (s DocumentStatus) IsCompleted() bool {
	return s == StatusOcrCompleted || s == StatusIndexed
}

func (s DocumentStatus) IsFailed() bool {
	return s == StatusOcrFailed
}

// CanStartOCR reports whether an OCR run may be requested for this status.
func (s DocumentStatus) CanStartOCR() bool {
	return s == StatusNew || s == StatusUploaded
}

// StatusEvent is a pipeline occurrence that may move a document between
// statuses. Transitions not listed in the table are rejected.
type StatusEvent string

const (
	EventUploadStored StatusEvent = "upload_stored"
	EventOcrRequested StatusEvent = "ocr_requested"
	EventOcrStarted   StatusEvent = "ocr_started"
	EventOcrSucceeded StatusEvent = "ocr_succeeded"
	EventOcrFailed    StatusEvent = "ocr_failed"
	EventIndexed      StatusEvent = "indexed"
)

var transitions = map[StatusEvent]map[DocumentStatus]DocumentStatus{
	EventUploadStored: {
		StatusNew: StatusUploaded,
	},
	EventOcrRequested: {
		StatusNew:      StatusOcrPending,
		StatusUploaded: StatusOcrPending,
	},
	EventOcrStarted: {
		StatusOcrPending: StatusOcrInProgress,
	},
	EventOcrSucceeded: {
		StatusOcrPending:    StatusOcrCompleted,
		StatusOcrInProgress: StatusOcrCompleted,
	},
	EventOcrFailed: {
		StatusOcrPending:    StatusOcrFailed,
		StatusOcrInProgress: StatusOcrFailed,
	},
	EventIndexed: {
		StatusOcrCompleted: StatusIndexed,
	},
}

// Apply resolves the transition table for (current, event). It is the single
// source of truth for status mutation; callers must not write a status they
// did not obtain from here.
func Apply(current DocumentStatus, event StatusEvent) (DocumentStatus, error) {
	next, ok := transitions[event][current]
	if !ok {
		return current, WrapError(ErrInvalidTransition, string(event),
			statusTransitionError{from: current, event: event})
	}
	return next, nil
}

type statusTransitionError struct {
	from  DocumentStatus
	event StatusEvent
}

func (e statusTransitionError) Error() string {
	return "no transition from " + string(e.from) + " on " + string(e.event)
}
