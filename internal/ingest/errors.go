package ingest

import "errors"

// Validation failures surfaced to ingestion callers. Wrap with context and
// test with errors.Is.
var (
	// ErrInvalidNamespace indicates an empty namespace after trimming.
	ErrInvalidNamespace = errors.New("namespace must be a non-empty string")

	// ErrEmptyContent indicates empty document content.
	ErrEmptyContent = errors.New("document content is empty")

	// ErrEmptyAfterChunking indicates content that produced zero chunks.
	ErrEmptyAfterChunking = errors.New("document content is empty after preprocessing")
)
