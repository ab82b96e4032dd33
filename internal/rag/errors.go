package rag

import "errors"

var (
	// ErrModelUnavailable marks retryable LLM/embedding-provider failures
	// during answering.
	ErrModelUnavailable = errors.New("model provider unavailable")
	// ErrStoreUnavailable marks collection load/search failures.
	ErrStoreUnavailable = errors.New("vector store unavailable")
)
