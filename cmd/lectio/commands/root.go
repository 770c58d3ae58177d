// Package commands defines all Cobra CLI commands for the lectio binary.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/courseai/lectio-go/internal/audit"
	"github.com/courseai/lectio-go/internal/config"
	"github.com/courseai/lectio-go/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// loadedConfigPath stores the resolved config file path for audit logging.
var loadedConfigPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "lectio",
		Short: "Lectio — a course assistant grounded in your lecture material",
		Long: `Lectio indexes lecture PDFs into a persistent vector store and answers
student questions grounded in that material, citing the chunks each
answer came from.

Build the knowledge base once with 'lectio init', append more material
with 'lectio add', then ask questions with 'lectio ask' or start the
HTTP API with 'lectio serve'.

Model and embedding providers are selected via the MODEL_PROVIDER and
EMBEDDING_PROVIDER environment variables or a YAML config file
(~/.lectio/config.yaml). See 'lectio --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
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

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.lectio/config.yaml)")

	root.AddCommand(
		NewInitCmd(),
		NewAddCmd(),
		NewAskCmd(),
		NewStatusCmd(),
		NewServeCmd(),
		NewVersionCmd(),
	)

	return root
}
