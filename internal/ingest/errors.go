package ingest

import "errors"

var (
	// ErrLoadFailed covers corrupt or unsupported documents; terminal for
	// the request.
	ErrLoadFailed = errors.New("document load failed")
	// ErrEmptyDocument is returned when a document yields no text.
	ErrEmptyDocument = errors.New("document is empty")
	// ErrEmbeddingUnavailable marks retryable embedding-provider failures.
	ErrEmbeddingUnavailable = errors.New("embedding provider unavailable")
	// ErrPersistFailed marks store-write failures; partial persistence is
	// possible and must be reported to the caller.
	ErrPersistFailed = errors.New("persisting chunks failed")
)
