package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dv8r/opsrag-go/internal/history"
	"github.com/dv8r/opsrag-go/internal/rag"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, [logging.New] is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on rate-limited
	// endpoints (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// APIKey is the Bearer token required on all protected /api/* routes.
	// If empty, authentication is disabled (development mode).
	APIKey string
	// Registry is the Prometheus registry metrics are registered into.
	// If nil, a fresh registry is created — tests stay hermetic either way.
	Registry *prometheus.Registry
}

// searcher is the interface the search handlers call. *rag.Retriever
// satisfies it; tests inject a fake.
type searcher interface {
	// SearchIncidents returns the k incidents most similar to the query.
	SearchIncidents(ctx context.Context, query string, k int, serviceFilter, severityFilter string) ([]rag.Result, error)
	// SearchRunbooks returns the k runbooks most similar to the query.
	SearchRunbooks(ctx context.Context, query string, k int, serviceFilter, categoryFilter string) ([]rag.Result, error)
	// GetStatus reports per-collection info with absence tolerance.
	GetStatus(ctx context.Context) (rag.Status, error)
}

// Server is the HTTP server exposing the retrieval API.
type Server struct {
	// retriever handles all search and status calls.
	retriever searcher
	// hist records search events; nil disables history.
	hist history.Store
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// metrics holds all Prometheus metrics owned by this server.
	metrics *serverMetrics
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// searchRequest is the JSON body for POST /api/search/incidents and
// POST /api/search/runbooks.
type searchRequest struct {
	// Query is the natural-language query text.
	Query string `json:"query"`
	// K is the maximum number of results (0 = server default).
	K int `json:"k,omitempty"`
	// Service restricts results to one service when non-empty.
	Service string `json:"service,omitempty"`
	// Severity restricts incident results to one severity when non-empty.
	// Ignored for runbook searches.
	Severity string `json:"severity,omitempty"`
	// Category restricts runbook results to one category when non-empty.
	// Ignored for incident searches.
	Category string `json:"category,omitempty"`
}

// searchResponse is the JSON body returned by the search endpoints.
type searchResponse struct {
	// Results is the ranked hit list, best first.
	Results []rag.Result `json:"results"`
	// Count is len(Results), surfaced for convenience.
	Count int `json:"count"`
}

// statusResponse is the JSON body returned by GET /api/status.
type statusResponse struct {
	// Collections reports per-collection point counts and status.
	Collections rag.Status `json:"collections"`
	// RecentSearches is the tail of the search history, newest first.
	// Omitted when history is disabled.
	RecentSearches []searchEvent `json:"recent_searches,omitempty"`
}

// searchEvent is the JSON shape of one history row in statusResponse.
type searchEvent struct {
	Collection string  `json:"collection"`
	Query      string  `json:"query"`
	K          int     `json:"k"`
	Results    int     `json:"results"`
	TopScore   float64 `json:"top_score"`
	DurationMS int64   `json:"duration_ms"`
	CreatedAt  string  `json:"created_at"`
}
