package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/dv8r/opsrag-go/internal/history"
	"github.com/dv8r/opsrag-go/internal/rag"
)

// fakeSearcher is a test double for the retrieval facade. It records the
// arguments of the last search call.
type fakeSearcher struct {
	results []rag.Result
	err     error
	status  rag.Status

	lastQuery    string
	lastK        int
	lastService  string
	lastSeverity string
	lastCategory string
}

func (f *fakeSearcher) SearchIncidents(ctx context.Context, query string, k int, service, severity string) ([]rag.Result, error) {
	f.lastQuery, f.lastK, f.lastService, f.lastSeverity = query, k, service, severity
	return f.results, f.err
}

func (f *fakeSearcher) SearchRunbooks(ctx context.Context, query string, k int, service, category string) ([]rag.Result, error) {
	f.lastQuery, f.lastK, f.lastService, f.lastCategory = query, k, service, category
	return f.results, f.err
}

func (f *fakeSearcher) GetStatus(ctx context.Context) (rag.Status, error) {
	return f.status, f.err
}

// quietLogger keeps test output readable.
func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// newTestServerWith builds a Server over the given fake with auth disabled
// and a rate limit high enough to never interfere.
func newTestServerWith(t *testing.T, f *fakeSearcher, hist history.Store) *Server {
	t.Helper()
	s, err := New(f, hist, &Config{
		Logger:    quietLogger(),
		RateLimit: 1000,
		RateBurst: 1000,
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	t.Cleanup(s.stopRL)
	return s
}

// newTestServer builds a Server with an empty fake searcher, for tests that
// only exercise middleware and probes.
func newTestServer() *Server {
	s, err := New(&fakeSearcher{}, nil, &Config{
		Logger:    quietLogger(),
		RateLimit: 1000,
		RateBurst: 1000,
	})
	if err != nil {
		panic(err)
	}
	return s
}

// searchBody builds the JSON body for a search request.
func searchBody(t *testing.T, req searchRequest) *strings.Reader {
	t.Helper()
	data, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	return strings.NewReader(string(data))
}

func Test_SearchIncidents_OK(t *testing.T) {
	t.Parallel()

	f := &fakeSearcher{results: []rag.Result{
		{ID: "a", Score: 0.92, Text: "Database connection pool exhausted", Metadata: map[string]any{"service": "payments"}},
		{ID: "b", Score: 0.81, Text: "Read replica lag spike"},
	}}
	s := newTestServerWith(t, f, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/search/incidents",
		searchBody(t, searchRequest{Query: "pool exhausted", K: 2, Service: "payments", Severity: "critical"}))
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d — body: %s", w.Code, w.Body.String())
	}

	var resp searchResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Count != 2 || len(resp.Results) != 2 {
		t.Errorf("want 2 results, got count=%d len=%d", resp.Count, len(resp.Results))
	}
	if resp.Results[0].ID != "a" {
		t.Errorf("result order changed: %v", resp.Results)
	}

	if f.lastQuery != "pool exhausted" || f.lastK != 2 || f.lastService != "payments" || f.lastSeverity != "critical" {
		t.Errorf("request fields not forwarded: %+v", f)
	}
}

func Test_SearchRunbooks_UsesCategory(t *testing.T) {
	t.Parallel()

	f := &fakeSearcher{}
	s := newTestServerWith(t, f, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/search/runbooks",
		searchBody(t, searchRequest{Query: "rollback deploy", Category: "deploy"}))
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d — body: %s", w.Code, w.Body.String())
	}
	if f.lastCategory != "deploy" {
		t.Errorf("category not forwarded: %+v", f)
	}
}

func Test_Search_EmptyQueryRejected(t *testing.T) {
	t.Parallel()

	s := newTestServerWith(t, &fakeSearcher{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/search/incidents",
		searchBody(t, searchRequest{Query: ""}))
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for empty query, got %d", w.Code)
	}
}

func Test_Search_MalformedBodyRejected(t *testing.T) {
	t.Parallel()

	s := newTestServerWith(t, &fakeSearcher{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/search/incidents", strings.NewReader("{not json"))
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for malformed body, got %d", w.Code)
	}
}

func Test_Search_ErrorMapping(t *testing.T) {
	t.Parallel()

	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("wrapped: %w", rag.ErrEmptyInput), http.StatusBadRequest},
		{fmt.Errorf("wrapped: %w", rag.ErrDimensionMismatch), http.StatusBadRequest},
		{fmt.Errorf("wrapped: %w", rag.ErrUnknownCollection), http.StatusNotFound},
		{fmt.Errorf("wrapped: %w", rag.ErrEmbeddingProvider), http.StatusBadGateway},
		{fmt.Errorf("wrapped: %w", rag.ErrStorageBackend), http.StatusBadGateway},
		{errors.New("something else"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		s := newTestServerWith(t, &fakeSearcher{err: tc.err}, nil)

		req := httptest.NewRequest(http.MethodPost, "/api/search/incidents",
			searchBody(t, searchRequest{Query: "anything"}))
		w := httptest.NewRecorder()
		s.Handler().ServeHTTP(w, req)

		if w.Code != tc.want {
			t.Errorf("error %v: expected %d, got %d", tc.err, tc.want, w.Code)
		}
	}
}

func Test_Status_WithHistory(t *testing.T) {
	t.Parallel()

	hist, err := history.Open(":memory:")
	if err != nil {
		t.Fatalf("open history: %v", err)
	}
	t.Cleanup(func() { _ = hist.Close() })

	f := &fakeSearcher{
		results: []rag.Result{{ID: "a", Score: 0.9, Text: "hit"}},
		status: rag.Status{
			Incidents: rag.CollectionInfo{Name: "devops_incidents", PointsCount: 12, Status: "green"},
			Runbooks:  rag.CollectionInfo{Name: "devops_runbooks", Status: "not_created"},
		},
	}
	s := newTestServerWith(t, f, hist)

	// One search first so the status payload carries a history row.
	req := httptest.NewRequest(http.MethodPost, "/api/search/incidents",
		searchBody(t, searchRequest{Query: "disk full", K: 3}))
	s.Handler().ServeHTTP(httptest.NewRecorder(), req)

	req = httptest.NewRequest(http.MethodGet, "/api/status", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d — body: %s", w.Code, w.Body.String())
	}

	var resp statusResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Collections.Incidents.PointsCount != 12 {
		t.Errorf("unexpected incidents info: %+v", resp.Collections.Incidents)
	}
	if resp.Collections.Runbooks.Status != "not_created" {
		t.Errorf("unexpected runbooks info: %+v", resp.Collections.Runbooks)
	}
	if len(resp.RecentSearches) != 1 {
		t.Fatalf("want 1 recent search, got %d", len(resp.RecentSearches))
	}
	ev := resp.RecentSearches[0]
	if ev.Collection != "incidents" || ev.Query != "disk full" || ev.Results != 1 {
		t.Errorf("unexpected history event: %+v", ev)
	}
}

func Test_Search_HistoryFailureDoesNotFailRequest(t *testing.T) {
	t.Parallel()

	f := &fakeSearcher{results: []rag.Result{{ID: "a", Score: 0.5, Text: "hit"}}}
	s := newTestServerWith(t, f, failingHistory{})

	req := httptest.NewRequest(http.MethodPost, "/api/search/incidents",
		searchBody(t, searchRequest{Query: "anything"}))
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("history failures must not fail the search: got %d", w.Code)
	}
}

// failingHistory always errors, to verify best-effort history recording.
type failingHistory struct{}

func (failingHistory) Append(context.Context, history.Search) error { return errors.New("disk full") }
func (failingHistory) Recent(context.Context, int) ([]history.Search, error) {
	return nil, errors.New("disk full")
}
func (failingHistory) Close() error { return nil }

func Test_MetricsEndpointExposed(t *testing.T) {
	t.Parallel()

	s := newTestServerWith(t, &fakeSearcher{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 from /metrics, got %d", w.Code)
	}
}

func Test_AuthRequiredOnProtectedRoutes(t *testing.T) {
	t.Parallel()

	s, err := New(&fakeSearcher{}, nil, &Config{
		Logger:    quietLogger(),
		APIKey:    "secret",
		RateLimit: 1000,
		RateBurst: 1000,
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	t.Cleanup(s.stopRL)

	// Protected route without a token: 401.
	req := httptest.NewRequest(http.MethodPost, "/api/search/incidents",
		searchBody(t, searchRequest{Query: "anything"}))
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without token, got %d", w.Code)
	}

	// Health stays public.
	req = httptest.NewRequest(http.MethodGet, "/api/health", nil)
	w = httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("health must stay public, got %d", w.Code)
	}

	// Correct token passes.
	req = httptest.NewRequest(http.MethodPost, "/api/search/incidents",
		searchBody(t, searchRequest{Query: "anything"}))
	req.Header.Set("Authorization", "Bearer secret")
	w = httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("expected 200 with valid token, got %d", w.Code)
	}
}

func Test_New_NilRetrieverRejected(t *testing.T) {
	t.Parallel()

	if _, err := New(nil, nil, &Config{Logger: quietLogger()}); err == nil {
		t.Error("nil retriever must be rejected")
	}
}
