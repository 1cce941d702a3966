// Package commands defines all Cobra CLI commands for the groundqa binary.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/54b3r/groundqa-go/internal/audit"
	"github.com/54b3r/groundqa-go/internal/config"
	"github.com/54b3r/groundqa-go/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// loadedConfigPath stores the resolved config file path for audit logging.
var loadedConfigPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "groundqa",
		Short: "groundqa answers questions from your documents, and only from them",
		Long: `groundqa is a closed-corpus question answering tool.

Ingest a set of documents (text, Markdown, HTML, PDF, DOCX, XLSX or web
pages), then ask questions. Answers are generated only from retrieved
passages and cite their sources. When the corpus does not contain the
answer, groundqa replies "I don't know." instead of guessing.

The generation backend is selected via MODEL_PROVIDER and the embedding
backend via EMBEDDING_PROVIDER, or a YAML config file
(~/.groundqa/config.yaml). See 'groundqa --help' for available commands.`,
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

			audit.LogCommandStart(log, cmd.Name(), loadedConfigPath)

			cmd.SetContext(logging.WithLogger(cmd.Context(), log))
			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.groundqa/config.yaml)")

	root.AddCommand(
		NewAskCmd(),
		NewIngestCmd(),
		NewServeCmd(),
		NewSourcesCmd(),
		NewStatusCmd(),
		NewHistoryCmd(),
		NewVersionCmd(),
	)

	return root
}
