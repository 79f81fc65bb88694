// Package config provides YAML-based configuration for opsrag.
// Configuration is loaded with a layered precedence: defaults → YAML file →
// env vars. Environment variables always win, so existing env-only
// workflows are unaffected.
//
// File search order:
//  1. --config CLI flag (explicit path)
//  2. OPSRAG_CONFIG environment variable
//  3. ~/.opsrag/config.yaml
//  4. ./opsrag.yaml
//
// If no file is found the system runs entirely from env vars.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Default collection names, matching the deployment convention of one
// physical collection per domain.
const (
	DefaultIncidentsCollection = "devops_incidents"
	DefaultRunbooksCollection  = "devops_runbooks"
)

// Config is the top-level YAML configuration structure.
// Field names use yaml tags that mirror the env var naming.
type Config struct {
	// Embedding configures the embedding provider.
	Embedding EmbeddingConfig `yaml:"embedding"`

	// Qdrant configures the server-hosted vector store connection.
	Qdrant QdrantConfig `yaml:"qdrant"`

	// Collections names the two domain collections.
	Collections CollectionsConfig `yaml:"collections"`

	// Vectors configures the flat-file snapshot backend.
	Vectors VectorsConfig `yaml:"vectors"`

	// Retrieval configures search defaults.
	Retrieval RetrievalConfig `yaml:"retrieval"`

	// Server configures the HTTP server.
	Server ServerConfig `yaml:"server"`

	// Logging configures structured logging.
	Logging LoggingConfig `yaml:"logging"`

	// History configures the search-history store.
	History HistoryConfig `yaml:"history"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	// Provider selects the backend: ollama, openai, azure.
	Provider string `yaml:"provider"`
	// Model is the embedding model name (e.g. text-embedding-3-large).
	Model string `yaml:"model"`
	// Dimensions overrides the model's default vector length.
	Dimensions int `yaml:"dimensions"`
	// APIKey is the embedding API key. Prefer env var EMBEDDING_API_KEY.
	APIKey string `yaml:"api_key"`
	// Endpoint is the embedding API endpoint.
	Endpoint string `yaml:"endpoint"`
	// Deployment is the Azure deployment name serving the model.
	Deployment string `yaml:"deployment"`
}

// QdrantConfig holds Qdrant connection settings.
type QdrantConfig struct {
	// Host is the Qdrant server hostname.
	Host string `yaml:"host"`
	// Port is the Qdrant gRPC port.
	Port int `yaml:"port"`
	// APIKey is the Qdrant API key. Prefer env var QDRANT_API_KEY.
	APIKey string `yaml:"api_key"`
	// TLS enables TLS for the Qdrant connection.
	TLS bool `yaml:"tls"`
}

// CollectionsConfig names the two domain collections.
type CollectionsConfig struct {
	// Incidents is the incident collection name (default: devops_incidents).
	Incidents string `yaml:"incidents"`
	// Runbooks is the runbook collection name (default: devops_runbooks).
	Runbooks string `yaml:"runbooks"`
}

// VectorsConfig holds flat-file backend settings.
type VectorsConfig struct {
	// Dir is the directory holding incidents.json and runbooks.json
	// snapshots written by `opsrag export`.
	Dir string `yaml:"dir"`
}

// RetrievalConfig holds search defaults.
type RetrievalConfig struct {
	// DefaultK is the result count used when a caller passes k=0.
	DefaultK int `yaml:"default_k"`
	// FilterPolicy is "hard" (filters are constraints, the default) or
	// "soft" (an over-restrictive filter falls back to an unfiltered search).
	FilterPolicy string `yaml:"filter_policy"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the bind address.
	Host string `yaml:"host"`
	// Port is the TCP port.
	Port int `yaml:"port"`
	// APIKey is the Bearer token for API authentication. Prefer env var OPSRAG_API_KEY.
	APIKey string `yaml:"api_key"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is the log output format: json, text.
	Format string `yaml:"format"`
}

// HistoryConfig holds search-history settings.
type HistoryConfig struct {
	// DBPath is the SQLite database path. Set to "disabled" to disable.
	DBPath string `yaml:"db_path"`
}

// envMapping maps YAML config fields to their corresponding env var names.
// Only non-empty YAML values are applied; env vars always take precedence.
var envMapping = []struct {
	envKey string
	value  func(*Config) string
}{
	{"EMBEDDING_PROVIDER", func(c *Config) string { return c.Embedding.Provider }},
	{"EMBEDDING_MODEL", func(c *Config) string { return c.Embedding.Model }},
	{"EMBEDDING_DIMENSIONS", func(c *Config) string { return intStr(c.Embedding.Dimensions) }},
	{"EMBEDDING_API_KEY", func(c *Config) string { return c.Embedding.APIKey }},
	{"EMBEDDING_ENDPOINT", func(c *Config) string { return c.Embedding.Endpoint }},
	{"AZURE_OPENAI_DEPLOYMENT", func(c *Config) string { return c.Embedding.Deployment }},
	{"QDRANT_HOST", func(c *Config) string { return c.Qdrant.Host }},
	{"QDRANT_PORT", func(c *Config) string { return intStr(c.Qdrant.Port) }},
	{"QDRANT_API_KEY", func(c *Config) string { return c.Qdrant.APIKey }},
	{"QDRANT_TLS", func(c *Config) string { return boolStr(c.Qdrant.TLS) }},
	{"INCIDENTS_COLLECTION", func(c *Config) string { return c.Collections.Incidents }},
	{"RUNBOOKS_COLLECTION", func(c *Config) string { return c.Collections.Runbooks }},
	{"VECTORS_DIR", func(c *Config) string { return c.Vectors.Dir }},
	{"RETRIEVAL_DEFAULT_K", func(c *Config) string { return intStr(c.Retrieval.DefaultK) }},
	{"RETRIEVAL_FILTER_POLICY", func(c *Config) string { return c.Retrieval.FilterPolicy }},
	{"OPSRAG_HOST", func(c *Config) string { return c.Server.Host }},
	{"OPSRAG_PORT", func(c *Config) string { return intStr(c.Server.Port) }},
	{"OPSRAG_API_KEY", func(c *Config) string { return c.Server.APIKey }},
	{"LOG_LEVEL", func(c *Config) string { return c.Logging.Level }},
	{"LOG_FORMAT", func(c *Config) string { return c.Logging.Format }},
	{"OPSRAG_HISTORY_DB", func(c *Config) string { return c.History.DBPath }},
}

// Load reads a YAML config file and applies non-empty values as environment
// variables. Existing env vars are never overwritten (env always wins).
// Returns the path that was loaded, or empty string if no file was found.
func Load(explicitPath string, log *slog.Logger) (string, error) {
	path := resolveConfigPath(explicitPath)
	if path == "" {
		log.Debug("config: no YAML config file found, using env vars only")
		return "", nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("config: failed to read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return "", fmt.Errorf("config: failed to parse %s: %w", path, err)
	}

	applied := 0
	for _, m := range envMapping {
		yamlVal := m.value(&cfg)
		if yamlVal == "" {
			continue
		}
		if os.Getenv(m.envKey) != "" {
			continue // env var already set — do not override
		}
		os.Setenv(m.envKey, yamlVal)
		applied++
	}

	log.Info("config: loaded YAML config",
		slog.String("path", path),
		slog.Int("keys_applied", applied),
	)

	return path, nil
}

// resolveConfigPath returns the first config file path that exists.
func resolveConfigPath(explicit string) string {
	if explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			return explicit
		}
		return ""
	}

	if envPath := os.Getenv("OPSRAG_CONFIG"); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	home, err := os.UserHomeDir()
	if err == nil {
		p := filepath.Join(home, ".opsrag", "config.yaml")
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	if _, err := os.Stat("opsrag.yaml"); err == nil {
		return "opsrag.yaml"
	}

	return ""
}

// intStr converts an int to string, returning "" for zero values.
func intStr(v int) string {
	if v == 0 {
		return ""
	}
	return fmt.Sprintf("%d", v)
}

// boolStr converts a bool to string, returning "" for false.
func boolStr(v bool) string {
	if !v {
		return ""
	}
	return "true"
}
