package commands

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dv8r/opsrag-go/internal/logging"
	"github.com/dv8r/opsrag-go/internal/rag"
)

// NewSearchCmd constructs the `opsrag search` command, a one-shot retrieval
// against either backend from the terminal.
func NewSearchCmd() *cobra.Command {
	var backend string
	var collection string
	var k int
	var service string
	var severity string
	var category string

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the incident or runbook collection for similar entries",
		Long: `Embed the query text and return the most similar entries from the selected
collection, ranked by cosine similarity.

Filters are exact-match metadata constraints. --service applies to both
collections; --severity applies to incidents, --category to runbooks.
RETRIEVAL_FILTER_POLICY=soft makes an over-restrictive filter fall back to
an unfiltered search instead of returning nothing.

Examples:
  opsrag search "payment API returning 503 errors"
  opsrag search --collection runbooks --service checkout "rollback a bad deploy"
  opsrag search --backend file --severity critical "database connection pool exhausted"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			query := strings.Join(args, " ")

			retriever, cleanup, err := buildRetriever(backend, log)
			if err != nil {
				return fmt.Errorf("search: %w", err)
			}
			defer cleanup()

			var results []rag.Result
			switch collection {
			case domainIncidents:
				results, err = retriever.SearchIncidents(ctx, query, k, service, severity)
			case domainRunbooks:
				results, err = retriever.SearchRunbooks(ctx, query, k, service, category)
			default:
				return fmt.Errorf("search: unknown collection %q — valid values: %s, %s",
					collection, domainIncidents, domainRunbooks)
			}
			if err != nil {
				return fmt.Errorf("search: %w", err)
			}

			if len(results) == 0 {
				fmt.Println("no results")
				return nil
			}

			for i, res := range results {
				fmt.Printf("%d. [%.4f] %s\n", i+1, res.Score, res.Text)
				if len(res.Metadata) > 0 {
					fmt.Printf("   %s\n", formatMetadata(res.Metadata))
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&backend, "backend", "b", backendQdrant, "Storage backend (qdrant, file)")
	cmd.Flags().StringVarP(&collection, "collection", "c", domainIncidents, "Collection to search (incidents, runbooks)")
	cmd.Flags().IntVarP(&k, "top-k", "k", 0, "Number of results (0 = configured default)")
	cmd.Flags().StringVar(&service, "service", "", "Restrict results to one service")
	cmd.Flags().StringVar(&severity, "severity", "", "Restrict incident results to one severity")
	cmd.Flags().StringVar(&category, "category", "", "Restrict runbook results to one category")

	return cmd
}

// formatMetadata renders a metadata map as "key=value" pairs in stable order.
func formatMetadata(md map[string]any) string {
	pairs := make([]string, 0, len(md))
	for _, key := range sortedKeys(md) {
		pairs = append(pairs, fmt.Sprintf("%s=%v", key, md[key]))
	}
	return strings.Join(pairs, " ")
}

// sortedKeys returns the map keys in ascending order.
func sortedKeys(md map[string]any) []string {
	keys := make([]string, 0, len(md))
	for k := range md {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
