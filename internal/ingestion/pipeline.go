// Package ingestion implements the bulk ingest and export pipelines.
// Ingest reads raw {content, metadata} documents, embeds all contents in one
// batch call, and upserts the resulting records into a collection store.
// Export pages through a server-hosted collection and writes the JSON
// snapshot the flat-file store loads, making the two backends
// interchangeable. Both pipelines are invoked by the `opsrag load` and
// `opsrag export` CLI commands.
package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/dv8r/opsrag-go/internal/rag"
)

// Document is one raw input to the ingest pipeline, domain-agnostic.
type Document struct {
	// Content is the text to embed — the similarity basis.
	Content string `json:"content"`

	// Metadata holds scalar key-value pairs attached to the stored record.
	Metadata map[string]any `json:"metadata"`
}

// Pipeline orchestrates the embed → upsert flow for a batch of documents
// targeting one collection store.
type Pipeline struct {
	// embedder converts document contents into dense vector embeddings.
	embedder rag.Embedder

	// store persists the embedded records.
	store rag.CollectionStore

	// log is the structured logger for pipeline progress.
	log *slog.Logger
}

// NewPipeline constructs a Pipeline from the provided dependencies.
func NewPipeline(embedder rag.Embedder, store rag.CollectionStore, log *slog.Logger) (*Pipeline, error) {
	if embedder == nil {
		return nil, fmt.Errorf("ingestion: embedder must not be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("ingestion: store must not be nil")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{embedder: embedder, store: store, log: log}, nil
}

// Ingest embeds all document contents in one batch call and upserts the
// records, creating the collection if absent. Every call appends — there is
// no deduplication against existing records; callers that want a clean slate
// drop and recreate the collection first.
func (p *Pipeline) Ingest(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return fmt.Errorf("ingestion: no documents for collection %q: %w", p.store.Name(), rag.ErrEmptyInput)
	}

	texts := make([]string, len(docs))
	for i, doc := range docs {
		texts[i] = doc.Content
	}

	// One batch call rather than per-document requests, for throughput.
	embeddings, err := p.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("ingestion: embedding %d documents: %w", len(docs), err)
	}
	if len(embeddings) != len(docs) {
		return fmt.Errorf("ingestion: expected %d embeddings, got %d: %w",
			len(docs), len(embeddings), rag.ErrEmbeddingProvider)
	}

	records := make([]rag.Record, 0, len(docs))
	for i, doc := range docs {
		// ID left empty — the store assigns a fresh UUID at upsert time.
		records = append(records, rag.Record{
			Embedding: embeddings[i],
			Text:      doc.Content,
			Metadata:  doc.Metadata,
		})
	}

	if err := p.store.Upsert(ctx, records); err != nil {
		return fmt.Errorf("ingestion: upsert into %q: %w", p.store.Name(), err)
	}

	p.log.Info("ingestion: documents stored",
		slog.String("collection", p.store.Name()),
		slog.Int("documents", len(docs)),
	)
	return nil
}

// LoadDocuments reads a JSON array of {content, metadata} objects from path.
func LoadDocuments(path string) ([]Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ingestion: read %s: %w", path, err)
	}

	var docs []Document
	if err := json.Unmarshal(data, &docs); err != nil {
		return nil, fmt.Errorf("ingestion: parse %s: %w", path, err)
	}
	return docs, nil
}
