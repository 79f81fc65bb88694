package rag

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
)

// FileStore implements CollectionStore over a JSON snapshot file produced by
// the export pipeline. The entire snapshot is loaded into memory at
// construction and is read-only afterwards — there is no upsert path, since
// the snapshot is a derived copy of a server-hosted collection, not a
// primary store. Safe for concurrent search calls.
type FileStore struct {
	// name is the logical collection name this snapshot represents.
	name string

	// path is the snapshot file the records were loaded from.
	path string

	// mu guards records. Search only reads; Drop is the sole mutation.
	mu sync.RWMutex

	// records is the full in-memory record set.
	records []Record
}

// NewFileStore loads the snapshot at path into memory and returns a
// ready-to-search store. A missing file is an expected bootstrap state and
// yields an empty collection rather than an error; a present but malformed
// file is a hard error.
func NewFileStore(path, name string, log *slog.Logger) (*FileStore, error) {
	s := &FileStore{name: name, path: path}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Warn("file store: snapshot not found, starting empty",
				slog.String("collection", name),
				slog.String("path", path),
			)
			return s, nil
		}
		return nil, fmt.Errorf("file store: read %s: %w", path, err)
	}

	if err := json.Unmarshal(data, &s.records); err != nil {
		return nil, fmt.Errorf("file store: parse %s: %w", path, err)
	}

	log.Info("file store: snapshot loaded",
		slog.String("collection", name),
		slog.String("path", path),
		slog.Int("records", len(s.records)),
	)
	return s, nil
}

// NewFileStoreFromRecords constructs a FileStore directly from an in-memory
// record set. Used by tests and by callers that already hold exported records.
func NewFileStoreFromRecords(name string, records []Record) *FileStore {
	return &FileStore{name: name, records: records}
}

// Name returns the collection name this snapshot represents.
func (s *FileStore) Name() string { return s.name }

// Create is a no-op: the snapshot collection exists from construction,
// empty or not.
func (s *FileStore) Create(ctx context.Context) error { return nil }

// Drop discards the in-memory record set. The snapshot file on disk is not
// touched.
func (s *FileStore) Drop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = nil
	return nil
}

// Exists always reports true: an absent snapshot file is an empty
// collection, not a missing one.
func (s *FileStore) Exists(ctx context.Context) (bool, error) { return true, nil }

// Info reports the in-memory record count. An empty set has status "empty".
func (s *FileStore) Info(ctx context.Context) (CollectionInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status := "ok"
	if len(s.records) == 0 {
		status = "empty"
	}
	return CollectionInfo{
		Name:        s.name,
		PointsCount: uint64(len(s.records)),
		Status:      status,
	}, nil
}

// Upsert is not supported: the snapshot is read-only. Re-run the export
// pipeline to refresh it.
func (s *FileStore) Upsert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return fmt.Errorf("file store: upsert into %q: %w", s.name, ErrEmptyInput)
	}
	return fmt.Errorf("file store: collection %q is a read-only snapshot: %w", s.name, ErrStorageBackend)
}

// Search performs a full linear cosine scan over the in-memory records.
// O(records × dimension) per query — acceptable at the hundreds-to-thousands
// scale these collections hold.
func (s *FileStore) Search(ctx context.Context, query []float32, limit int, filter Filter, policy FilterPolicy) ([]Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.records) == 0 {
		return nil, nil
	}

	if dim := len(s.records[0].Embedding); len(query) != dim {
		return nil, fmt.Errorf("file store: query vector has %d dimensions, collection %q has %d: %w",
			len(query), s.name, dim, ErrDimensionMismatch)
	}

	candidates := filterRecords(s.records, filter, policy)
	return rankRecords(candidates, query, limit), nil
}

// ReadAll returns a copy of the full in-memory record set.
func (s *FileStore) ReadAll(ctx context.Context) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Record, len(s.records))
	copy(out, s.records)
	return out, nil
}

// Close is a no-op: the store holds no external resources.
func (s *FileStore) Close() error { return nil }
