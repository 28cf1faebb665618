package domain

import "errors"

var (
	// ErrEmptyCorpus means the vector store produced no candidates at all.
	ErrEmptyCorpus = errors.New("no indexed chunks available")
	// ErrServiceUnavailable wraps failures of embedding, reranking,
	// generation or vector store services. Callers may retry.
	ErrServiceUnavailable = errors.New("scoring service unavailable")
	// ErrInvalidRequest marks caller mistakes.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrInvalidChunk marks chunk metadata that cannot be indexed.
	ErrInvalidChunk = errors.New("invalid chunk")
	// ErrNotReady is returned while the startup reindex is still running.
	ErrNotReady = errors.New("index not ready")
)
