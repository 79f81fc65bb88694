package commands

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dv8r/opsrag-go/internal/config"
	"github.com/dv8r/opsrag-go/internal/embedder"
	"github.com/dv8r/opsrag-go/internal/rag"
)

// Collection selector values accepted by --collection flags.
const (
	domainIncidents = "incidents"
	domainRunbooks  = "runbooks"
)

// Backend selector values accepted by --backend flags.
const (
	backendQdrant = "qdrant"
	backendFile   = "file"
)

// incidentsCollection returns the configured incident collection name.
func incidentsCollection() string {
	return getEnvOrDefault("INCIDENTS_COLLECTION", config.DefaultIncidentsCollection)
}

// runbooksCollection returns the configured runbook collection name.
func runbooksCollection() string {
	return getEnvOrDefault("RUNBOOKS_COLLECTION", config.DefaultRunbooksCollection)
}

// vectorsDir returns the directory holding the flat-file snapshots.
func vectorsDir() string {
	return getEnvOrDefault("VECTORS_DIR", "vectors")
}

// snapshotPath returns the snapshot file path for one domain.
func snapshotPath(domain string) string {
	return filepath.Join(vectorsDir(), domain+".json")
}

// collectionForDomain maps a --collection flag value to the physical
// collection name, rejecting anything else.
func collectionForDomain(domain string) (string, error) {
	switch domain {
	case domainIncidents:
		return incidentsCollection(), nil
	case domainRunbooks:
		return runbooksCollection(), nil
	default:
		return "", fmt.Errorf("unknown collection %q — valid values: %s, %s", domain, domainIncidents, domainRunbooks)
	}
}

// embeddingDimensions resolves the vector dimension implied by the current
// embedding configuration without constructing an embedder. Used by commands
// (export, status) that talk to the store but never embed.
func embeddingDimensions() uint64 {
	backend := getEnvOrDefault("EMBEDDING_PROVIDER", "ollama")
	defaultModel := "text-embedding-3-large"
	if backend == "ollama" {
		defaultModel = "nomic-embed-text"
	}
	model := getEnvOrDefault("EMBEDDING_MODEL", defaultModel)
	return uint64(embedder.ModelDimensions(model)) //nolint:gosec // dimensions are bounded
}

// newQdrantStore connects to the configured Qdrant instance and binds the
// returned store to the named collection.
func newQdrantStore(collection string, vectorSize uint64) (*rag.QdrantStore, error) {
	return rag.NewQdrantStore(&rag.QdrantConfig{
		Host:       getEnvOrDefault("QDRANT_HOST", "localhost"),
		Port:       getEnvInt("QDRANT_PORT", 6334),
		Collection: collection,
		VectorSize: vectorSize,
		APIKey:     os.Getenv("QDRANT_API_KEY"),
		UseTLS:     os.Getenv("QDRANT_TLS") == "true",
	})
}

// buildStores constructs the incident and runbook stores for the selected
// backend. The returned cleanup function closes both stores.
func buildStores(backend string, vectorSize uint64, log *slog.Logger) (incidents, runbooks rag.CollectionStore, cleanup func(), err error) {
	switch backend {
	case backendQdrant:
		inc, err := newQdrantStore(incidentsCollection(), vectorSize)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("connecting to Qdrant: %w", err)
		}
		run, err := newQdrantStore(runbooksCollection(), vectorSize)
		if err != nil {
			_ = inc.Close()
			return nil, nil, nil, fmt.Errorf("connecting to Qdrant: %w", err)
		}
		return inc, run, func() {
			_ = inc.Close()
			_ = run.Close()
		}, nil

	case backendFile:
		inc, err := rag.NewFileStore(snapshotPath(domainIncidents), incidentsCollection(), log)
		if err != nil {
			return nil, nil, nil, err
		}
		run, err := rag.NewFileStore(snapshotPath(domainRunbooks), runbooksCollection(), log)
		if err != nil {
			return nil, nil, nil, err
		}
		return inc, run, func() {}, nil

	default:
		return nil, nil, nil, fmt.Errorf("unknown backend %q — valid values: %s, %s", backend, backendQdrant, backendFile)
	}
}

// filterPolicyFromEnv maps RETRIEVAL_FILTER_POLICY to a rag.FilterPolicy.
// Anything other than "soft" means hard filtering.
func filterPolicyFromEnv() rag.FilterPolicy {
	if getEnvOrDefault("RETRIEVAL_FILTER_POLICY", "hard") == "soft" {
		return rag.FilterSoft
	}
	return rag.FilterHard
}

// buildRetriever wires an embedder and both stores into a retrieval facade
// configured from the environment.
func buildRetriever(backend string, log *slog.Logger) (*rag.Retriever, func(), error) {
	if err := embedder.ValidatePreflight(log); err != nil {
		return nil, nil, err
	}

	emb, err := embedder.NewFromEnv()
	if err != nil {
		return nil, nil, fmt.Errorf("initialising embedder: %w", err)
	}

	incidents, runbooks, cleanup, err := buildStores(backend, uint64(emb.Dimensions()), log) //nolint:gosec // dimensions are bounded
	if err != nil {
		return nil, nil, err
	}

	retriever, err := rag.NewRetriever(emb, incidents, runbooks, &rag.RetrieverConfig{
		DefaultK: getEnvInt("RETRIEVAL_DEFAULT_K", 3),
		Policy:   filterPolicyFromEnv(),
		Logger:   log,
	})
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	return retriever, cleanup, nil
}
