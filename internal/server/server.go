// Package server implements the HTTP server that exposes the retrieval API:
// incident and runbook search, collection status, health/readiness probes,
// and Prometheus metrics. The server is started by the `opsrag serve` CLI
// command.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dv8r/opsrag-go/internal/history"
	"github.com/dv8r/opsrag-go/internal/logging"
	"github.com/dv8r/opsrag-go/internal/rag"
)

// New constructs a Server from the provided retriever, optional history
// store, and config.
func New(retriever searcher, hist history.Store, cfg *Config) (*Server, error) {
	if retriever == nil {
		return nil, fmt.Errorf("server: retriever must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 60 * time.Second
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.New()
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.RateBurst == 0 {
		cfg.RateBurst = defaultRateBurst
	}
	registry := cfg.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	s := &Server{
		retriever: retriever,
		hist:      hist,
		cfg:       cfg,
		log:       cfg.Logger,
		pingers:   cfg.Pingers,
		metrics:   newServerMetrics(registry),
	}

	rl, stopRL := newRateLimiter(cfg.RateLimit, cfg.RateBurst, cfg.Logger)
	s.stopRL = stopRL

	auth := func(h http.HandlerFunc) http.Handler {
		return authMiddleware(cfg.APIKey, h)
	}

	mux := http.NewServeMux()
	mux.Handle("POST /api/search/incidents", auth(s.handleSearchIncidents))
	mux.Handle("POST /api/search/runbooks", auth(s.handleSearchRunbooks))
	mux.Handle("GET /api/status", auth(s.handleStatus))
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/ready", s.handleReady)
	mux.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	handler := requestLogger(cfg.Logger, rl.middleware(s.metrics.middleware(mux)))

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	if cfg.APIKey == "" {
		cfg.Logger.Warn("server: OPSRAG_API_KEY not set — API authentication disabled")
	}

	return s, nil
}

// Start begins listening and serving HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		fmt.Printf("opsrag server listening on http://%s\n", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		s.stopRL()
		return fmt.Errorf("server: listen error: %w", err)
	case <-ctx.Done():
		s.stopRL()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		return nil
	}
}

// Handler returns the fully wrapped HTTP handler. Exposed for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// handleSearchIncidents handles POST /api/search/incidents.
func (s *Server) handleSearchIncidents(w http.ResponseWriter, r *http.Request) {
	s.handleSearch(w, r, "incidents", func(ctx context.Context, req *searchRequest) ([]rag.Result, error) {
		return s.retriever.SearchIncidents(ctx, req.Query, req.K, req.Service, req.Severity)
	})
}

// handleSearchRunbooks handles POST /api/search/runbooks.
func (s *Server) handleSearchRunbooks(w http.ResponseWriter, r *http.Request) {
	s.handleSearch(w, r, "runbooks", func(ctx context.Context, req *searchRequest) ([]rag.Result, error) {
		return s.retriever.SearchRunbooks(ctx, req.Query, req.K, req.Service, req.Category)
	})
}

// handleSearch decodes the request, runs the domain search, records metrics
// and history, and writes the ranked results.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request, collection string, search func(context.Context, *searchRequest) ([]rag.Result, error)) {
	log := logging.FromContext(r.Context())

	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Query == "" {
		http.Error(w, "query is required", http.StatusBadRequest)
		return
	}

	start := time.Now()
	results, err := search(r.Context(), &req)
	elapsed := time.Since(start)

	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	s.metrics.searchRequestsTotal.WithLabelValues(collection, outcome).Inc()
	s.metrics.searchDurationSeconds.WithLabelValues(collection).Observe(elapsed.Seconds())

	if err != nil {
		log.Error("search failed", "collection", collection, "error", err)
		http.Error(w, err.Error(), statusFromErr(err))
		return
	}

	s.recordHistory(r.Context(), collection, &req, results, elapsed)

	writeJSON(w, http.StatusOK, searchResponse{Results: results, Count: len(results)})
}

// recordHistory appends one search event, best-effort. History failures are
// logged and never fail the request.
func (s *Server) recordHistory(ctx context.Context, collection string, req *searchRequest, results []rag.Result, elapsed time.Duration) {
	if s.hist == nil {
		return
	}

	var topScore float64
	if len(results) > 0 {
		topScore = float64(results[0].Score)
	}
	ev := history.Search{
		Collection: collection,
		Query:      req.Query,
		K:          req.K,
		Results:    len(results),
		TopScore:   topScore,
		Duration:   elapsed,
	}
	if err := s.hist.Append(ctx, ev); err != nil {
		logging.FromContext(ctx).Warn("history append failed", "error", err)
	}
}

// handleStatus handles GET /api/status: per-collection info plus the tail of
// the search history.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.retriever.GetStatus(r.Context())
	if err != nil {
		logging.FromContext(r.Context()).Error("status failed", "error", err)
		http.Error(w, err.Error(), statusFromErr(err))
		return
	}

	resp := statusResponse{Collections: status}
	if s.hist != nil {
		recent, err := s.hist.Recent(r.Context(), 20)
		if err != nil {
			logging.FromContext(r.Context()).Warn("history read failed", "error", err)
		}
		for _, ev := range recent {
			resp.RecentSearches = append(resp.RecentSearches, searchEvent{
				Collection: ev.Collection,
				Query:      ev.Query,
				K:          ev.K,
				Results:    ev.Results,
				TopScore:   ev.TopScore,
				DurationMS: ev.Duration.Milliseconds(),
				CreatedAt:  ev.CreatedAt.UTC().Format(time.RFC3339),
			})
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleHealth handles GET /api/health for liveness checks.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeJSON serializes v with the given status code.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFromErr maps retrieval-core errors to HTTP status codes.
func statusFromErr(err error) int {
	switch {
	case errors.Is(err, rag.ErrEmptyInput), errors.Is(err, rag.ErrDimensionMismatch):
		return http.StatusBadRequest
	case errors.Is(err, rag.ErrUnknownCollection):
		return http.StatusNotFound
	case errors.Is(err, rag.ErrEmbeddingProvider), errors.Is(err, rag.ErrStorageBackend):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
