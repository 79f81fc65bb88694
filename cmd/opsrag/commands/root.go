// Package commands defines all Cobra CLI commands for the opsrag binary.
package commands

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/dv8r/opsrag-go/internal/audit"
	"github.com/dv8r/opsrag-go/internal/config"
	"github.com/dv8r/opsrag-go/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// loadedConfigPath stores the resolved config file path for audit logging.
var loadedConfigPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "opsrag",
		Short: "opsrag — vector similarity retrieval for SRE incidents and runbooks",
		Long: `opsrag indexes historical incident reports and operational runbooks into a
vector store and retrieves the most similar entries for a natural-language
query, optionally restricted by service, severity, or category.

Two storage backends are supported: a server-hosted Qdrant instance and a
read-only flat-file snapshot produced by 'opsrag export'. The embedding
provider is selected via the EMBEDDING_PROVIDER environment variable or a
YAML config file (~/.opsrag/config.yaml).
See 'opsrag --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// Load .env first so its values participate in config precedence.
			// A missing file is the normal case, not an error.
			_ = godotenv.Load()

			log := logging.New()

			// Load YAML config (env vars always override YAML values).
			path, err := config.Load(configPath, log)
			if err != nil {
				return err
			}
			loadedConfigPath = path

			// Emit structured audit log for every command invocation.
			audit.LogCommandStart(log, cmd.Name(), loadedConfigPath)

			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.opsrag/config.yaml)")

	root.AddCommand(
		NewSearchCmd(),
		NewLoadCmd(),
		NewExportCmd(),
		NewStatusCmd(),
		NewServeCmd(),
		NewVersionCmd(),
	)

	return root
}
