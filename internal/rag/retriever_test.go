package rag

import (
	"context"
	"errors"
	"testing"
)

// stubEmbedder returns the same fixed vector for every text.
type stubEmbedder struct {
	vector []float32
	err    error
	calls  int
}

func (e *stubEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = e.vector
	}
	return out, nil
}

// recordingStore wraps a FileStore and records the filter of the last search.
type recordingStore struct {
	*FileStore
	exists     bool
	lastFilter Filter
	lastLimit  int
}

func (s *recordingStore) Exists(ctx context.Context) (bool, error) { return s.exists, nil }

func (s *recordingStore) Search(ctx context.Context, query []float32, limit int, filter Filter, policy FilterPolicy) ([]Result, error) {
	s.lastFilter = filter
	s.lastLimit = limit
	return s.FileStore.Search(ctx, query, limit, filter, policy)
}

// newTestRetriever builds a retriever over in-memory incident and runbook
// fixtures with a 3-dimensional stub embedder.
func newTestRetriever(t *testing.T) (*Retriever, *recordingStore, *recordingStore) {
	t.Helper()

	incidents := &recordingStore{
		FileStore: NewFileStoreFromRecords("devops_incidents", incidentFixtures()),
		exists:    true,
	}
	runbooks := &recordingStore{
		FileStore: NewFileStoreFromRecords("devops_runbooks", []Record{
			{
				ID:        "7ba7b810-9dad-11d1-80b4-00c04fd430c1",
				Embedding: []float32{1, 0, 0},
				Text:      "Scale up the payments connection pool",
				Metadata:  map[string]any{"service": "payments", "category": "database"},
			},
		}),
		exists: true,
	}

	r, err := NewRetriever(&stubEmbedder{vector: []float32{1, 0, 0}}, incidents, runbooks, &RetrieverConfig{DefaultK: 2})
	if err != nil {
		t.Fatalf("new retriever: %v", err)
	}
	return r, incidents, runbooks
}

func Test_Retriever_SearchIncidentsFilterConstruction(t *testing.T) {
	t.Parallel()
	r, incidents, _ := newTestRetriever(t)

	results, err := r.SearchIncidents(context.Background(), "pool exhausted", 3, "payments", "critical")
	if err != nil {
		t.Fatalf("search incidents: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("want 1 result, got %d", len(results))
	}
	if incidents.lastFilter["service"] != "payments" || incidents.lastFilter["severity"] != "critical" {
		t.Errorf("unexpected filter: %v", incidents.lastFilter)
	}
	if incidents.lastLimit != 3 {
		t.Errorf("want limit 3, got %d", incidents.lastLimit)
	}
}

func Test_Retriever_SearchRunbooksUsesCategory(t *testing.T) {
	t.Parallel()
	r, _, runbooks := newTestRetriever(t)

	_, err := r.SearchRunbooks(context.Background(), "connection pool", 0, "", "database")
	if err != nil {
		t.Fatalf("search runbooks: %v", err)
	}
	if runbooks.lastFilter["category"] != "database" {
		t.Errorf("unexpected filter: %v", runbooks.lastFilter)
	}
	if _, ok := runbooks.lastFilter["severity"]; ok {
		t.Error("runbook search must not carry a severity filter")
	}
}

func Test_Retriever_DefaultK(t *testing.T) {
	t.Parallel()
	r, incidents, _ := newTestRetriever(t)

	if _, err := r.SearchIncidents(context.Background(), "anything", 0, "", ""); err != nil {
		t.Fatalf("search: %v", err)
	}
	if incidents.lastLimit != 2 {
		t.Errorf("k=0 should use the configured default 2, got %d", incidents.lastLimit)
	}
}

func Test_Retriever_EmptyFilterOmitted(t *testing.T) {
	t.Parallel()
	r, incidents, _ := newTestRetriever(t)

	if _, err := r.SearchIncidents(context.Background(), "anything", 1, "", ""); err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(incidents.lastFilter) != 0 {
		t.Errorf("empty flag values must not become filter conditions: %v", incidents.lastFilter)
	}
}

func Test_Retriever_AbsentCollectionIsEmpty(t *testing.T) {
	t.Parallel()
	r, incidents, _ := newTestRetriever(t)
	incidents.exists = false

	emb := &stubEmbedder{vector: []float32{1, 0, 0}}
	r.embedder = emb

	results, err := r.SearchIncidents(context.Background(), "anything", 3, "", "")
	if err != nil {
		t.Fatalf("absent collection should not error: %v", err)
	}
	if results != nil {
		t.Errorf("want nil results for absent collection, got %v", results)
	}
	if emb.calls != 0 {
		t.Error("query must not be embedded when the collection is absent")
	}
}

func Test_Retriever_EmbedderErrorPropagates(t *testing.T) {
	t.Parallel()
	r, _, _ := newTestRetriever(t)

	wantErr := errors.New("provider down")
	r.embedder = &stubEmbedder{err: wantErr}

	_, err := r.SearchIncidents(context.Background(), "anything", 3, "", "")
	if !errors.Is(err, wantErr) {
		t.Errorf("want embedder error to propagate, got %v", err)
	}
}

func Test_Retriever_GetStatus(t *testing.T) {
	t.Parallel()
	r, incidents, _ := newTestRetriever(t)

	status, err := r.GetStatus(context.Background())
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.Incidents.PointsCount != 3 || status.Incidents.Status != "ok" {
		t.Errorf("unexpected incidents status: %+v", status.Incidents)
	}
	if status.Runbooks.PointsCount != 1 {
		t.Errorf("unexpected runbooks status: %+v", status.Runbooks)
	}

	incidents.exists = false
	status, err = r.GetStatus(context.Background())
	if err != nil {
		t.Fatalf("status with absent collection: %v", err)
	}
	if status.Incidents.Status != "not_created" {
		t.Errorf("absent collection should report not_created, got %q", status.Incidents.Status)
	}
}
