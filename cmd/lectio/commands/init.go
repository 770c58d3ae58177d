package commands

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/courseai/lectio-go/internal/embedder"
	"github.com/courseai/lectio-go/internal/logging"
)

// NewInitCmd constructs the `lectio init` command, which builds the
// knowledge base from scratch out of the given lecture files.
func NewInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init [files...]",
		Short: "Build the knowledge base from lecture files",
		Long: `Extract, chunk, embed, and index the given lecture files into the
knowledge base, replacing any previously built index.

PDF files are read page by page; any other file is treated as plain text.

Examples:
  lectio init lectures/week1.pdf lectures/week2.pdf
  lectio init --config course.yaml lectures/*.pdf`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			w, closeAll, err := buildAssistant(ctx, log)
			if err != nil {
				return fmt.Errorf("init: %w", err)
			}
			defer closeAll()

			// Fail fast with a clear message when the embedding backend is
			// unreachable, before any file is read.
			dims, err := embedder.ValidateForRAG(ctx, w.Embedder)
			if err != nil {
				return fmt.Errorf("init: %w", err)
			}
			log.Info("embedder ready", slog.Int("dimensions", dims))

			chunks, err := w.Assistant.InitializeKnowledgeBase(ctx, args)
			if err != nil {
				return fmt.Errorf("init: %w", err)
			}

			fmt.Printf("Knowledge base initialized: %d files, %d chunks indexed\n",
				len(args), chunks)
			return nil
		},
	}
}
