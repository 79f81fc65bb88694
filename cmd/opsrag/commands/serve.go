package commands

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dv8r/opsrag-go/internal/embedder"
	"github.com/dv8r/opsrag-go/internal/history"
	"github.com/dv8r/opsrag-go/internal/logging"
	"github.com/dv8r/opsrag-go/internal/rag"
	"github.com/dv8r/opsrag-go/internal/server"
)

// NewServeCmd constructs the `opsrag serve` command, which starts the HTTP
// retrieval API.
func NewServeCmd() *cobra.Command {
	var host string
	var port int
	var backend string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the opsrag HTTP retrieval API",
		Long: `Start the opsrag HTTP server on localhost.

The server exposes POST /api/search/incidents and /api/search/runbooks,
GET /api/status, health and readiness probes, and Prometheus metrics on
/metrics. Set OPSRAG_API_KEY to require Bearer authentication on the
/api/search/* and /api/status routes.

Examples:
  opsrag serve
  opsrag serve --port 9090
  opsrag serve --backend file`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			// Flags win over env vars; env vars (including YAML-applied ones)
			// win over the built-in defaults.
			if !cmd.Flags().Changed("host") {
				host = getEnvOrDefault("OPSRAG_HOST", host)
			}
			if !cmd.Flags().Changed("port") {
				port = getEnvInt("OPSRAG_PORT", port)
			}

			log.Info("serve starting",
				slog.String("backend", backend),
				slog.String("embedding_provider", getEnvOrDefault("EMBEDDING_PROVIDER", "ollama")),
			)

			if err := embedder.ValidatePreflight(log); err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			emb, err := embedder.NewFromEnv()
			if err != nil {
				return fmt.Errorf("serve: failed to initialise embedder: %w", err)
			}

			incidents, runbooks, cleanup, err := buildStores(backend, uint64(emb.Dimensions()), log) //nolint:gosec // dimensions are bounded
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer cleanup()

			retriever, err := rag.NewRetriever(emb, incidents, runbooks, &rag.RetrieverConfig{
				DefaultK: getEnvInt("RETRIEVAL_DEFAULT_K", 3),
				Policy:   filterPolicyFromEnv(),
				Logger:   log,
			})
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			// Open search history store. OPSRAG_HISTORY_DB overrides the
			// default path (~/.opsrag/history.db). Set to "disabled" to disable.
			var historyStore history.Store
			dbPath := os.Getenv("OPSRAG_HISTORY_DB")
			if dbPath != "disabled" {
				if dbPath == "" {
					dbPath, err = history.DefaultDBPath()
					if err != nil {
						log.Warn("history: could not resolve default DB path, disabling", slog.Any("error", err))
					}
				}
				if dbPath != "" {
					hs, hsErr := history.Open(dbPath)
					if hsErr != nil {
						log.Warn("history: failed to open store, disabling", slog.Any("error", hsErr))
					} else {
						historyStore = hs
						defer func() { _ = hs.Close() }()
						log.Info("history: store opened", slog.String("path", dbPath))
					}
				}
			} else {
				log.Info("history: disabled via OPSRAG_HISTORY_DB=disabled")
			}

			// The Qdrant backend gets a readiness probe against the server;
			// the file backend has no external dependency to probe.
			var pingers []server.Pinger
			if qs, ok := incidents.(*rag.QdrantStore); ok {
				pingers = append(pingers, server.NewPinger("qdrant", qs.Ping))
			}

			srv, err := server.New(retriever, historyStore, &server.Config{
				Host:      host,
				Port:      port,
				Logger:    log,
				Pingers:   pingers,
				APIKey:    os.Getenv("OPSRAG_API_KEY"),
				RateLimit: float64(getEnvInt("OPSRAG_RATE_LIMIT", 0)),
				RateBurst: getEnvInt("OPSRAG_RATE_BURST", 0),
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "TCP port to listen on")
	cmd.Flags().StringVarP(&backend, "backend", "b", backendQdrant, "Storage backend (qdrant, file)")

	return cmd
}
