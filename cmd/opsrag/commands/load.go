package commands

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/dv8r/opsrag-go/internal/embedder"
	"github.com/dv8r/opsrag-go/internal/ingestion"
	"github.com/dv8r/opsrag-go/internal/logging"
	"github.com/dv8r/opsrag-go/internal/rag"
)

// NewLoadCmd constructs the `opsrag load` command, which bulk-ingests raw
// documents into a Qdrant collection.
func NewLoadCmd() *cobra.Command {
	var collection string
	var file string
	var recreate bool

	cmd := &cobra.Command{
		Use:   "load",
		Short: "Bulk-load documents into the incident or runbook collection",
		Long: `Read a JSON array of {content, metadata} documents, embed all contents in
one batch call, and upsert the records into the selected Qdrant collection.
The collection is created on first use with the dimension of the configured
embedding model.

Every load appends. Use --recreate to drop and recreate the collection first
for a clean slate.

Required environment variables:
  QDRANT_HOST          Qdrant server hostname (default: localhost)
  QDRANT_PORT          Qdrant gRPC port (default: 6334)
  QDRANT_API_KEY       Optional API key for authenticated clusters
  EMBEDDING_PROVIDER   Embedding backend: ollama, openai, azure (default: ollama)
  EMBEDDING_*          Provider-specific overrides (see README)

Examples:
  opsrag load --collection incidents --file data/incidents.json
  opsrag load --collection runbooks --file data/runbooks.json --recreate`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			if file == "" {
				return fmt.Errorf("load: --file is required")
			}
			name, err := collectionForDomain(collection)
			if err != nil {
				return fmt.Errorf("load: %w", err)
			}

			if err := embedder.ValidatePreflight(log); err != nil {
				return fmt.Errorf("load: %w", err)
			}

			emb, err := embedder.NewFromEnv()
			if err != nil {
				return fmt.Errorf("load: failed to initialise embedder: %w", err)
			}
			log.Info("embedder initialised",
				slog.String("provider", getEnvOrDefault("EMBEDDING_PROVIDER", "ollama")),
				slog.Int("dimensions", emb.Dimensions()),
			)

			docs, err := ingestion.LoadDocuments(file)
			if err != nil {
				return fmt.Errorf("load: %w", err)
			}
			log.Info("documents read", slog.String("file", file), slog.Int("documents", len(docs)))

			store, err := newQdrantStore(name, uint64(emb.Dimensions())) //nolint:gosec // dimensions are bounded
			if err != nil {
				return fmt.Errorf("load: %w", err)
			}
			defer store.Close()

			if recreate {
				if err := store.Drop(ctx); err != nil && !errors.Is(err, rag.ErrUnknownCollection) {
					return fmt.Errorf("load: dropping collection %q: %w", name, err)
				}
				if err := store.Create(ctx); err != nil {
					return fmt.Errorf("load: recreating collection %q: %w", name, err)
				}
				log.Info("collection recreated", slog.String("collection", name))
			}

			pipeline, err := ingestion.NewPipeline(emb, store, log)
			if err != nil {
				return fmt.Errorf("load: %w", err)
			}
			if err := pipeline.Ingest(ctx, docs); err != nil {
				return fmt.Errorf("load: %w", err)
			}

			info, err := store.Info(ctx)
			if err != nil {
				return fmt.Errorf("load: verifying collection %q: %w", name, err)
			}

			fmt.Printf("loaded %d documents into %s (points: %d, status: %s)\n",
				len(docs), name, info.PointsCount, info.Status)
			return nil
		},
	}

	cmd.Flags().StringVarP(&collection, "collection", "c", domainIncidents, "Target collection (incidents, runbooks)")
	cmd.Flags().StringVarP(&file, "file", "f", "", "Path to a JSON array of {content, metadata} documents")
	cmd.Flags().BoolVar(&recreate, "recreate", false, "Drop and recreate the collection before loading")

	return cmd
}
