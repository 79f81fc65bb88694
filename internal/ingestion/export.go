package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dv8r/opsrag-go/internal/rag"
)

// Export pages through the entire collection and returns every record,
// ids, texts, embeddings, and metadata included. Id stability is preserved
// so exported records re-loaded through the flat-file store remain
// referentially identical to the originals.
func Export(ctx context.Context, store rag.CollectionStore, log *slog.Logger) ([]rag.Record, error) {
	if log == nil {
		log = slog.Default()
	}

	records, err := store.ReadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("export: read collection %q: %w", store.Name(), err)
	}

	log.Info("export: collection read",
		slog.String("collection", store.Name()),
		slog.Int("records", len(records)),
	)
	return records, nil
}

// WriteSnapshot serializes records as one pretty-printed JSON array at path,
// creating parent directories as needed. The written file is exactly what
// rag.NewFileStore loads.
func WriteSnapshot(path string, records []rag.Record) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("export: create %s: %w", filepath.Dir(path), err)
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("export: marshal snapshot: %w", err)
	}

	// Write to a temp file then rename so a crash mid-write never leaves a
	// truncated snapshot for the file store to choke on.
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("export: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("export: rename %s: %w", tmp, err)
	}
	return nil
}

// ExportToFile combines Export and WriteSnapshot for one collection.
// Returns the number of records written.
func ExportToFile(ctx context.Context, store rag.CollectionStore, path string, log *slog.Logger) (int, error) {
	records, err := Export(ctx, store, log)
	if err != nil {
		return 0, err
	}
	if err := WriteSnapshot(path, records); err != nil {
		return 0, err
	}
	return len(records), nil
}
