// Package rag implements the vector retrieval core: record and result types,
// the CollectionStore contract, a Qdrant-backed store, a flat-file in-memory
// store, and the domain retriever that exposes incident/runbook search.
// Both store variants honor the same contract so callers can swap the
// flat-file snapshot in for a live Qdrant server without code changes.
package rag

import (
	"context"
)

// Record is the atomic unit stored in a collection: an embedding, the text
// it was computed from, and the metadata attached at ingestion time.
type Record struct {
	// ID is the opaque unique identifier, assigned at upsert time and stable
	// across export/import.
	ID string `json:"id"`

	// Embedding is the dense vector for Text. Every record in a collection
	// has the same embedding length.
	Embedding []float32 `json:"embedding"`

	// Text is the original content that was embedded.
	Text string `json:"text"`

	// Metadata holds scalar key-value pairs (service, severity, category, ...)
	// used for exact-match filtering and display. Never altered by search.
	Metadata map[string]any `json:"metadata"`
}

// Result is one ranked hit returned from a similarity search.
type Result struct {
	// ID is the matched record's identifier.
	ID string `json:"id"`

	// Score is the cosine similarity between the query vector and the
	// record's embedding, in [-1, 1].
	Score float32 `json:"score"`

	// Text is the matched record's original content.
	Text string `json:"text"`

	// Metadata is the record's stored metadata map, excluding the text field.
	Metadata map[string]any `json:"metadata"`
}

// Filter is a set of required exact metadata matches. All conditions are
// ANDed. Values of a type the backend cannot match (e.g. a slice) are
// treated as non-matching rather than raising an error.
type Filter map[string]any

// FilterPolicy controls what happens when a filter eliminates every record.
type FilterPolicy int

const (
	// FilterHard treats the filter as a hard constraint: every returned
	// result satisfies all conditions, and an over-restrictive filter
	// yields an empty result list. This is the default.
	FilterHard FilterPolicy = iota

	// FilterSoft falls back to searching the full unfiltered collection when
	// the filter matches nothing, trading precision for recall so a query
	// never dead-ends on zero results.
	FilterSoft
)

// CollectionInfo describes the current state of a collection.
type CollectionInfo struct {
	// Name is the collection name.
	Name string `json:"name"`
	// PointsCount is the number of records currently stored.
	PointsCount uint64 `json:"points_count"`
	// Status is the backend's status label ("green", "ok", "empty", ...).
	Status string `json:"status"`
}

// CollectionStore owns the records of one named collection and performs
// similarity search over them. Implementations must be safe to call from
// multiple goroutines.
type CollectionStore interface {
	// Name returns the collection name this store operates on.
	Name() string

	// Create provisions the collection with the store's configured embedding
	// dimension and the cosine metric. It is a no-op if the collection
	// already exists.
	Create(ctx context.Context) error

	// Drop removes the collection and all its records. Irreversible.
	// Returns ErrUnknownCollection if the collection does not exist.
	Drop(ctx context.Context) error

	// Exists reports whether the collection currently exists.
	Exists(ctx context.Context) (bool, error)

	// Info returns the point count and status of the collection.
	// Returns ErrUnknownCollection if the collection does not exist; callers
	// that tolerate absence must check Exists first.
	Info(ctx context.Context) (CollectionInfo, error)

	// Upsert writes a batch of records, creating the collection if absent.
	// Records with an empty ID are assigned a fresh UUID. Returns
	// ErrEmptyInput when given zero records, before any side effect.
	Upsert(ctx context.Context, records []Record) error

	// Search returns the limit highest-scoring records for the query vector,
	// descending by score, optionally restricted by filter. The query vector
	// length must match the collection dimension (ErrDimensionMismatch).
	Search(ctx context.Context, query []float32, limit int, filter Filter, policy FilterPolicy) ([]Result, error)

	// ReadAll pages through the entire collection and returns every record,
	// embeddings included. Used by the export pipeline.
	ReadAll(ctx context.Context) ([]Record, error)

	// Close releases any resources held by the store.
	Close() error
}

// Embedder converts text into dense vector embeddings.
// Implementations must be safe to call from multiple goroutines.
type Embedder interface {
	// Embed converts a batch of texts into their corresponding embeddings.
	// The returned slice is parallel to the input slice.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// EmbedOne embeds a single text through a batch Embedder.
func EmbedOne(ctx context.Context, e Embedder, text string) ([]float32, error) {
	vecs, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, errEmptyEmbedBatch
	}
	return vecs[0], nil
}
