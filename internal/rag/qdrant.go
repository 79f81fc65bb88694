package rag

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

// payloadTextKey is the Qdrant payload field holding the record's original
// content. It is surfaced as Result.Text and excluded from Result.Metadata.
const payloadTextKey = "text"

// scrollPageSize is the number of points fetched per scroll page during
// ReadAll. Paging continues until Qdrant stops returning a next offset.
const scrollPageSize = 100

// QdrantConfig holds connection parameters for one Qdrant-backed collection.
type QdrantConfig struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string

	// Port is the Qdrant gRPC port (default: 6334).
	Port int

	// Collection is the Qdrant collection name this store operates on.
	Collection string

	// VectorSize is the embedding dimension for this collection, fixed by
	// the embedding model. Mixing dimensions in one collection is a
	// configuration error.
	VectorSize uint64

	// APIKey is the optional Qdrant API key for authenticated clusters.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool
}

// QdrantStore implements CollectionStore backed by one collection on a
// Qdrant instance. Concurrency control is delegated entirely to the server;
// concurrent upserts against the same collection may interleave.
type QdrantStore struct {
	// client is the underlying Qdrant gRPC client.
	client *qdrant.Client

	// cfg holds the resolved configuration for this store.
	cfg *QdrantConfig
}

// NewQdrantStore connects to Qdrant and returns a store bound to
// cfg.Collection. The collection itself is created lazily on the first
// Upsert, or explicitly via Create.
func NewQdrantStore(cfg *QdrantConfig) (*QdrantStore, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}
	if cfg.Collection == "" {
		return nil, fmt.Errorf("qdrant: collection name must not be empty")
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to create client: %w: %w", ErrStorageBackend, err)
	}

	return &QdrantStore{client: client, cfg: cfg}, nil
}

// Name returns the collection name this store operates on.
func (s *QdrantStore) Name() string { return s.cfg.Collection }

// Create provisions the collection with the configured dimension and the
// cosine metric. Calling Create on an existing collection is a no-op.
func (s *QdrantStore) Create(ctx context.Context) error {
	exists, err := s.Exists(ctx)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.cfg.Collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     s.cfg.VectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("qdrant: create collection %q: %w: %w", s.cfg.Collection, ErrStorageBackend, err)
	}
	return nil
}

// Drop removes the collection and all its points. Irreversible.
func (s *QdrantStore) Drop(ctx context.Context) error {
	exists, err := s.Exists(ctx)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("qdrant: drop collection %q: %w", s.cfg.Collection, ErrUnknownCollection)
	}

	if err := s.client.DeleteCollection(ctx, s.cfg.Collection); err != nil {
		return fmt.Errorf("qdrant: drop collection %q: %w: %w", s.cfg.Collection, ErrStorageBackend, err)
	}
	return nil
}

// Exists reports whether the collection currently exists on the server.
func (s *QdrantStore) Exists(ctx context.Context) (bool, error) {
	exists, err := s.client.CollectionExists(ctx, s.cfg.Collection)
	if err != nil {
		return false, fmt.Errorf("qdrant: check collection %q: %w: %w", s.cfg.Collection, ErrStorageBackend, err)
	}
	return exists, nil
}

// Info returns the point count and status of the collection.
func (s *QdrantStore) Info(ctx context.Context) (CollectionInfo, error) {
	exists, err := s.Exists(ctx)
	if err != nil {
		return CollectionInfo{}, err
	}
	if !exists {
		return CollectionInfo{}, fmt.Errorf("qdrant: info for collection %q: %w", s.cfg.Collection, ErrUnknownCollection)
	}

	info, err := s.client.GetCollectionInfo(ctx, s.cfg.Collection)
	if err != nil {
		return CollectionInfo{}, fmt.Errorf("qdrant: info for collection %q: %w: %w", s.cfg.Collection, ErrStorageBackend, err)
	}

	return CollectionInfo{
		Name:        s.cfg.Collection,
		PointsCount: info.GetPointsCount(),
		Status:      strings.ToLower(info.GetStatus().String()),
	}, nil
}

// Upsert writes a batch of records, creating the collection first if it does
// not exist. Records with an empty ID get a fresh UUID. The batch is sent in
// one request; Qdrant offers no atomicity guarantee beyond its own.
func (s *QdrantStore) Upsert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return fmt.Errorf("qdrant: upsert into %q: %w", s.cfg.Collection, ErrEmptyInput)
	}

	if err := s.Create(ctx); err != nil {
		return err
	}

	points := make([]*qdrant.PointStruct, 0, len(records))
	for _, rec := range records {
		id := rec.ID
		if id == "" {
			id = uuid.New().String()
		}

		payload := make(map[string]any, len(rec.Metadata)+1)
		payload[payloadTextKey] = rec.Text
		for k, v := range rec.Metadata {
			if k == payloadTextKey {
				continue
			}
			payload[k] = v
		}

		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(id),
			Vectors: qdrant.NewVectors(rec.Embedding...),
			Payload: qdrant.NewValueMap(payload),
		})
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.cfg.Collection,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("qdrant: upsert into %q: %w: %w", s.cfg.Collection, ErrStorageBackend, err)
	}
	return nil
}

// Search runs a cosine similarity query and returns the limit best hits.
// With FilterSoft, a filtered query that matches nothing is retried without
// the filter so the caller never dead-ends on zero results.
func (s *QdrantStore) Search(ctx context.Context, query []float32, limit int, filter Filter, policy FilterPolicy) ([]Result, error) {
	exists, err := s.Exists(ctx)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("qdrant: search in collection %q: %w", s.cfg.Collection, ErrUnknownCollection)
	}

	if uint64(len(query)) != s.cfg.VectorSize {
		return nil, fmt.Errorf("qdrant: query vector has %d dimensions, collection %q has %d: %w",
			len(query), s.cfg.Collection, s.cfg.VectorSize, ErrDimensionMismatch)
	}

	queryFilter, matchable := buildFilter(filter)

	var results []Result
	if matchable {
		results, err = s.query(ctx, query, limit, queryFilter)
		if err != nil {
			return nil, err
		}
	}

	// An unmatchable filter value behaves like a filter nobody satisfies.
	if len(results) == 0 && len(filter) > 0 && policy == FilterSoft {
		return s.query(ctx, query, limit, nil)
	}
	return results, nil
}

// query issues a single Qdrant Query call and converts the scored points.
func (s *QdrantStore) query(ctx context.Context, query []float32, limit int, filter *qdrant.Filter) ([]Result, error) {
	qlimit := uint64(limit)
	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.cfg.Collection,
		Query:          qdrant.NewQuery(query...),
		Limit:          &qlimit,
		Filter:         filter,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: search in collection %q: %w: %w", s.cfg.Collection, ErrStorageBackend, err)
	}

	results := make([]Result, 0, len(points))
	for _, p := range points {
		text, metadata := splitPayload(p.GetPayload())
		results = append(results, Result{
			ID:       p.GetId().GetUuid(),
			Score:    p.GetScore(),
			Text:     text,
			Metadata: metadata,
		})
	}
	return results, nil
}

// ReadAll scrolls the entire collection page by page, vectors included,
// until the server stops returning a next offset.
func (s *QdrantStore) ReadAll(ctx context.Context) ([]Record, error) {
	exists, err := s.Exists(ctx)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("qdrant: read collection %q: %w", s.cfg.Collection, ErrUnknownCollection)
	}

	pageLimit := uint32(scrollPageSize)
	req := &qdrant.ScrollPoints{
		CollectionName: s.cfg.Collection,
		Limit:          &pageLimit,
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(true),
	}

	// The high-level Scroll wrapper drops next_page_offset, so the raw
	// points client is used for cursor-based paging.
	pointsClient := s.client.GetPointsClient()

	var records []Record
	for {
		resp, err := pointsClient.Scroll(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("qdrant: scroll collection %q: %w: %w", s.cfg.Collection, ErrStorageBackend, err)
		}

		for _, p := range resp.GetResult() {
			text, metadata := splitPayload(p.GetPayload())
			records = append(records, Record{
				ID:        p.GetId().GetUuid(),
				Embedding: p.GetVectors().GetVector().GetData(),
				Text:      text,
				Metadata:  metadata,
			})
		}

		next := resp.GetNextPageOffset()
		if next == nil {
			return records, nil
		}
		req.Offset = next
	}
}

// Ping checks server reachability for readiness probes.
func (s *QdrantStore) Ping(ctx context.Context) error {
	if _, err := s.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("qdrant: health check: %w", err)
	}
	return nil
}

// Close closes the underlying Qdrant gRPC connection.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}

// buildFilter converts a Filter into a Qdrant must-match filter. The second
// return value is false when any condition uses a value Qdrant cannot
// exact-match (non-integral floats, composites) — such a filter matches
// nothing, mirroring the per-record "malformed values are non-matching" rule.
func buildFilter(filter Filter) (*qdrant.Filter, bool) {
	if len(filter) == 0 {
		return nil, true
	}

	conditions := make([]*qdrant.Condition, 0, len(filter))
	for key, value := range filter {
		switch v := value.(type) {
		case string:
			conditions = append(conditions, qdrant.NewMatch(key, v))
		case bool:
			conditions = append(conditions, qdrant.NewMatchBool(key, v))
		case int:
			conditions = append(conditions, qdrant.NewMatchInt(key, int64(v)))
		case int64:
			conditions = append(conditions, qdrant.NewMatchInt(key, v))
		case float64:
			// JSON decoding yields float64 for every number; integral
			// values still match Qdrant's integer index.
			if v != math.Trunc(v) {
				return nil, false
			}
			conditions = append(conditions, qdrant.NewMatchInt(key, int64(v)))
		default:
			return nil, false
		}
	}

	return &qdrant.Filter{Must: conditions}, true
}

// splitPayload converts a Qdrant payload into (text, metadata), dropping the
// text field from the metadata map and skipping values of kinds the record
// model does not carry.
func splitPayload(payload map[string]*qdrant.Value) (string, map[string]any) {
	metadata := make(map[string]any, len(payload))
	var text string

	for k, v := range payload {
		if k == payloadTextKey {
			text = v.GetStringValue()
			continue
		}
		switch kind := v.GetKind().(type) {
		case *qdrant.Value_StringValue:
			metadata[k] = kind.StringValue
		case *qdrant.Value_IntegerValue:
			metadata[k] = kind.IntegerValue
		case *qdrant.Value_DoubleValue:
			metadata[k] = kind.DoubleValue
		case *qdrant.Value_BoolValue:
			metadata[k] = kind.BoolValue
		}
	}
	return text, metadata
}
