package ingestion

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/dv8r/opsrag-go/internal/rag"
)

func exportLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// Test_ExportToFile_RoundTrip exports an in-memory collection to a snapshot
// and reloads it through the file store, checking id stability and that the
// snapshot is byte-compatible with what the file store expects.
func Test_ExportToFile_RoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	records := []rag.Record{
		{
			ID:        "3f2a7c1e-0000-4000-8000-000000000001",
			Embedding: []float32{0.1, 0.9, 0.3},
			Text:      "Rollback procedure for checkout deployments",
			Metadata:  map[string]any{"service": "checkout", "category": "deploy"},
		},
		{
			ID:        "3f2a7c1e-0000-4000-8000-000000000002",
			Embedding: []float32{0.8, 0.1, 0.2},
			Text:      "Connection pool tuning for the payments database",
			Metadata:  map[string]any{"service": "payments", "category": "database"},
		},
	}
	source := rag.NewFileStoreFromRecords("devops_runbooks", records)

	path := filepath.Join(t.TempDir(), "runbooks.json")
	count, err := ExportToFile(ctx, source, path, exportLogger())
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if count != 2 {
		t.Errorf("want 2 records exported, got %d", count)
	}

	reloaded, err := rag.NewFileStore(path, "devops_runbooks", exportLogger())
	if err != nil {
		t.Fatalf("reload snapshot: %v", err)
	}
	got, err := reloaded.ReadAll(ctx)
	if err != nil {
		t.Fatalf("readall: %v", err)
	}
	if len(got) != len(records) {
		t.Fatalf("want %d records, got %d", len(records), len(got))
	}
	for i := range got {
		if got[i].ID != records[i].ID {
			t.Errorf("record %d: id changed across export: %s != %s", i, got[i].ID, records[i].ID)
		}
		if got[i].Text != records[i].Text {
			t.Errorf("record %d: text changed across export", i)
		}
		if got[i].Metadata["service"] != records[i].Metadata["service"] {
			t.Errorf("record %d: metadata changed across export", i)
		}
	}
}

// Test_WriteSnapshot_CreatesParentDirs verifies directory creation and the
// atomic tmp-then-rename write (no .tmp file left behind).
func Test_WriteSnapshot_CreatesParentDirs(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "dir", "incidents.json")
	if err := WriteSnapshot(path, []rag.Record{{ID: "a", Text: "x"}}); err != nil {
		t.Fatalf("write snapshot: %v", err)
	}

	if _, err := os.Stat(path); err != nil {
		t.Errorf("snapshot not written: %v", err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file left behind after rename")
	}
}

// Test_WriteSnapshot_EmptyCollection verifies that an empty collection writes
// a valid empty-array snapshot the file store can load.
func Test_WriteSnapshot_EmptyCollection(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "incidents.json")
	if err := WriteSnapshot(path, nil); err != nil {
		t.Fatalf("write snapshot: %v", err)
	}

	s, err := rag.NewFileStore(path, "devops_incidents", exportLogger())
	if err != nil {
		t.Fatalf("reload empty snapshot: %v", err)
	}
	info, err := s.Info(context.Background())
	if err != nil {
		t.Fatalf("info: %v", err)
	}
	if info.PointsCount != 0 {
		t.Errorf("want empty collection, got %d points", info.PointsCount)
	}
}
