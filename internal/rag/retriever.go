package rag

import (
	"context"
	"fmt"
	"log/slog"
)

// Retriever is the per-domain facade over the incident and runbook
// collections. It embeds query text, translates the typed filter arguments
// into generic filter maps, and treats collection absence as an empty result
// list — unlike CollectionStore.Info, which treats absence as an error.
type Retriever struct {
	// embedder converts query text to a dense vector.
	embedder Embedder

	// incidents is the store backing the incident collection.
	incidents CollectionStore

	// runbooks is the store backing the runbook collection.
	runbooks CollectionStore

	// defaultK is the result count used when the caller passes k <= 0.
	defaultK int

	// policy is the filter fallback policy applied to every search.
	policy FilterPolicy

	// log is the structured logger for retrieval events.
	log *slog.Logger
}

// RetrieverConfig holds the construction parameters for a Retriever.
type RetrieverConfig struct {
	// DefaultK is the fallback result count (default: 3, matching the
	// diagnostic pipeline's context window budget).
	DefaultK int

	// Policy is the filter fallback policy (default: FilterHard).
	Policy FilterPolicy

	// Logger is the structured logger. If nil, slog.Default is used.
	Logger *slog.Logger
}

// Status aggregates per-collection state for operators and health endpoints.
type Status struct {
	// Incidents describes the incident collection. Status is "not_created"
	// when the collection does not exist yet.
	Incidents CollectionInfo `json:"incidents"`
	// Runbooks describes the runbook collection.
	Runbooks CollectionInfo `json:"runbooks"`
}

// NewRetriever constructs a Retriever over the given embedder and stores.
func NewRetriever(embedder Embedder, incidents, runbooks CollectionStore, cfg *RetrieverConfig) (*Retriever, error) {
	if embedder == nil {
		return nil, fmt.Errorf("rag: embedder must not be nil")
	}
	if incidents == nil || runbooks == nil {
		return nil, fmt.Errorf("rag: incident and runbook stores must not be nil")
	}
	if cfg == nil {
		cfg = &RetrieverConfig{}
	}
	if cfg.DefaultK <= 0 {
		cfg.DefaultK = 3
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Retriever{
		embedder:  embedder,
		incidents: incidents,
		runbooks:  runbooks,
		defaultK:  cfg.DefaultK,
		policy:    cfg.Policy,
		log:       cfg.Logger,
	}, nil
}

// SearchIncidents returns the k incidents most similar to the query,
// optionally restricted to a service and/or severity.
func (r *Retriever) SearchIncidents(ctx context.Context, query string, k int, serviceFilter, severityFilter string) ([]Result, error) {
	filter := Filter{}
	if serviceFilter != "" {
		filter["service"] = serviceFilter
	}
	if severityFilter != "" {
		filter["severity"] = severityFilter
	}
	return r.search(ctx, r.incidents, query, k, filter)
}

// SearchRunbooks returns the k runbooks most similar to the query,
// optionally restricted to a service and/or category.
func (r *Retriever) SearchRunbooks(ctx context.Context, query string, k int, serviceFilter, categoryFilter string) ([]Result, error) {
	filter := Filter{}
	if serviceFilter != "" {
		filter["service"] = serviceFilter
	}
	if categoryFilter != "" {
		filter["category"] = categoryFilter
	}
	return r.search(ctx, r.runbooks, query, k, filter)
}

// search embeds the query and runs the store search, reporting collection
// absence as an empty result list.
func (r *Retriever) search(ctx context.Context, store CollectionStore, query string, k int, filter Filter) ([]Result, error) {
	if k <= 0 {
		k = r.defaultK
	}

	exists, err := store.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("rag: checking collection %q: %w", store.Name(), err)
	}
	if !exists {
		r.log.Info("rag: collection does not exist, returning no results",
			slog.String("collection", store.Name()),
		)
		return nil, nil
	}

	vector, err := EmbedOne(ctx, r.embedder, query)
	if err != nil {
		return nil, fmt.Errorf("rag: embedding query: %w", err)
	}

	results, err := store.Search(ctx, vector, k, filter, r.policy)
	if err != nil {
		return nil, fmt.Errorf("rag: search in %q: %w", store.Name(), err)
	}

	r.log.Debug("rag: search complete",
		slog.String("collection", store.Name()),
		slog.Int("k", k),
		slog.Int("filters", len(filter)),
		slog.Int("results", len(results)),
	)
	return results, nil
}

// GetStatus reports per-collection info, mapping absence to a synthetic
// "not_created" entry rather than an error.
func (r *Retriever) GetStatus(ctx context.Context) (Status, error) {
	var status Status
	var err error

	status.Incidents, err = collectionStatus(ctx, r.incidents)
	if err != nil {
		return Status{}, err
	}
	status.Runbooks, err = collectionStatus(ctx, r.runbooks)
	if err != nil {
		return Status{}, err
	}
	return status, nil
}

// collectionStatus resolves one collection's info with absence tolerance.
func collectionStatus(ctx context.Context, store CollectionStore) (CollectionInfo, error) {
	exists, err := store.Exists(ctx)
	if err != nil {
		return CollectionInfo{}, fmt.Errorf("rag: checking collection %q: %w", store.Name(), err)
	}
	if !exists {
		return CollectionInfo{Name: store.Name(), Status: "not_created"}, nil
	}

	info, err := store.Info(ctx)
	if err != nil {
		return CollectionInfo{}, fmt.Errorf("rag: info for collection %q: %w", store.Name(), err)
	}
	return info, nil
}
