package commands

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/dv8r/opsrag-go/internal/ingestion"
	"github.com/dv8r/opsrag-go/internal/logging"
)

// NewExportCmd constructs the `opsrag export` command, which writes the
// flat-file snapshots the file backend loads.
func NewExportCmd() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export both Qdrant collections to flat-file JSON snapshots",
		Long: `Page through the incident and runbook collections on the Qdrant server and
write each one as a JSON snapshot (incidents.json, runbooks.json). The
snapshots preserve ids, texts, embeddings, and metadata, and are exactly
what the file backend ('--backend file') loads — so retrieval keeps working
when the Qdrant server is unavailable.

Examples:
  opsrag export
  opsrag export --dir /var/lib/opsrag/vectors`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			if dir == "" {
				dir = vectorsDir()
			}

			domains := []struct {
				domain     string
				collection string
			}{
				{domainIncidents, incidentsCollection()},
				{domainRunbooks, runbooksCollection()},
			}

			vectorSize := embeddingDimensions()
			for _, d := range domains {
				store, err := newQdrantStore(d.collection, vectorSize)
				if err != nil {
					return fmt.Errorf("export: %w", err)
				}

				path := filepath.Join(dir, d.domain+".json")
				count, err := ingestion.ExportToFile(ctx, store, path, log)
				_ = store.Close()
				if err != nil {
					return fmt.Errorf("export: collection %q: %w", d.collection, err)
				}

				log.Info("snapshot written",
					slog.String("collection", d.collection),
					slog.String("path", path),
					slog.Int("records", count),
				)
				fmt.Printf("exported %d records from %s to %s\n", count, d.collection, path)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&dir, "dir", "d", "", "Output directory for snapshots (default: $VECTORS_DIR or ./vectors)")

	return cmd
}
