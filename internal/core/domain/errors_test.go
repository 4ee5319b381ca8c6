package domain

import (
	"errors"
	"strings"
	"testing"
)

func TestWrapErrorPreservesKindAndCause(t *testing.T) {
	cause := errors.New("row missing")
	err := WrapError(ErrDocumentNotFound, "get document", cause)

	if !IsKind(err, ErrDocumentNotFound) {
		t.Fatalf("expected ErrDocumentNotFound kind, got %v", err)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected wrapped cause, got %v", err)
	}
	if !strings.HasPrefix(err.Error(), "get document:") {
		t.Fatalf("expected operation prefix, got %q", err.Error())
	}
	if IsKind(err, ErrTemporary) {
		t.Fatal("kinds must not bleed into each other")
	}
}

func TestWrapErrorNilCause(t *testing.T) {
	if err := WrapError(ErrInvalidInput, "validate", nil); err != nil {
		t.Fatalf("nil cause must yield nil, got %v", err)
	}
}
