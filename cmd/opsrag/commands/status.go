package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dv8r/opsrag-go/internal/logging"
	"github.com/dv8r/opsrag-go/internal/rag"
)

// NewStatusCmd constructs the `opsrag status` command, which reports
// per-collection point counts and state.
func NewStatusCmd() *cobra.Command {
	var backend string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show point counts and state for both collections",
		Long: `Report the name, point count, and status of the incident and runbook
collections on the selected backend. A collection that has not been created
yet is reported as "not_created" rather than an error.

Examples:
  opsrag status
  opsrag status --backend file`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			incidents, runbooks, cleanup, err := buildStores(backend, embeddingDimensions(), log)
			if err != nil {
				return fmt.Errorf("status: %w", err)
			}
			defer cleanup()

			for _, store := range []rag.CollectionStore{incidents, runbooks} {
				info, err := storeInfo(ctx, store)
				if err != nil {
					return fmt.Errorf("status: collection %q: %w", store.Name(), err)
				}
				fmt.Printf("%-24s points: %-8d status: %s\n", info.Name, info.PointsCount, info.Status)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&backend, "backend", "b", backendQdrant, "Storage backend (qdrant, file)")

	return cmd
}

// storeInfo resolves one collection's info, reporting absence as a synthetic
// "not_created" entry.
func storeInfo(ctx context.Context, store rag.CollectionStore) (rag.CollectionInfo, error) {
	exists, err := store.Exists(ctx)
	if err != nil {
		return rag.CollectionInfo{}, err
	}
	if !exists {
		return rag.CollectionInfo{Name: store.Name(), Status: "not_created"}, nil
	}
	return store.Info(ctx)
}
