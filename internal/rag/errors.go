package rag

import "errors"

// Sentinel errors classifying every failure mode of the retrieval core.
// Layers wrap these with fmt.Errorf("...: %w", ...) so callers can use
// errors.Is without parsing messages. Errors propagate to the immediate
// caller unmodified — retry and backoff are an orchestration concern.
var (
	// ErrEmptyInput is returned when a bulk operation receives zero items.
	// Rejected before any side effect.
	ErrEmptyInput = errors.New("empty input")

	// ErrUnknownCollection is returned for info, drop, or search against a
	// collection that does not exist, in contexts that do not tolerate
	// absence.
	ErrUnknownCollection = errors.New("unknown collection")

	// ErrDimensionMismatch is returned when a query vector's length differs
	// from the collection's embedding dimension. Vectors are never silently
	// truncated or padded.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrEmbeddingProvider classifies upstream embedding failures (rate
	// limit, auth, network).
	ErrEmbeddingProvider = errors.New("embedding provider error")

	// ErrStorageBackend classifies index-service failures: unreachable
	// server, rejected request, or an operation the backend does not
	// support (e.g. upsert into a read-only snapshot).
	ErrStorageBackend = errors.New("storage backend error")
)

// errEmptyEmbedBatch guards against an embedder returning zero vectors for a
// non-empty batch.
var errEmptyEmbedBatch = errors.New("rag: embedder returned empty result")
