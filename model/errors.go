package model

import "errors"

// Error kinds. Components wrap the underlying cause with one of these,
// e.g. fmt.Errorf("%w: %w", ErrStore, err), so callers can check both.
var (
	// ErrInvalidInput marks malformed arguments (bad chunk sizes, empty text, wrong dimensions).
	ErrInvalidInput = errors.New("invalid input")
	// ErrProvider marks a failure of the embedding provider.
	ErrProvider = errors.New("embedding provider error")
	// ErrStore marks a failure of the vector index or the metadata store.
	ErrStore = errors.New("store error")
	// ErrExtraction marks a failure of a content extractor.
	ErrExtraction = errors.New("extraction error")
	// ErrNoContent is returned when a document yields no chunks.
	ErrNoContent = errors.New("no indexable content")
	// ErrInvalidTransition is returned for an index state change the state machine forbids.
	ErrInvalidTransition = errors.New("invalid index state transition")
	// ErrNotFound is returned when a document does not exist.
	ErrNotFound = errors.New("not found")
)
