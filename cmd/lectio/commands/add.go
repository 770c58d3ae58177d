package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/courseai/lectio-go/internal/embedder"
	"github.com/courseai/lectio-go/internal/logging"
)

// NewAddCmd constructs the `lectio add` command, which appends lecture files
// to an existing knowledge base.
func NewAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add [files...]",
		Short: "Add lecture files to the existing knowledge base",
		Long: `Extract, chunk, embed, and append the given lecture files to the
knowledge base built with 'lectio init'.

Examples:
  lectio add lectures/week3.pdf
  lectio add notes/errata.txt`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			w, closeAll, err := buildAssistant(ctx, log)
			if err != nil {
				return fmt.Errorf("add: %w", err)
			}
			defer closeAll()

			if _, err := embedder.ValidateForRAG(ctx, w.Embedder); err != nil {
				return fmt.Errorf("add: %w", err)
			}

			added, err := w.Assistant.ExtendKnowledgeBase(ctx, args)
			if err != nil {
				return fmt.Errorf("add: %w", err)
			}

			status, err := w.Assistant.Status(ctx)
			if err != nil {
				return fmt.Errorf("add: %w", err)
			}

			fmt.Printf("Added %d chunks (%d total in knowledge base)\n",
				added, status.Chunks)
			return nil
		},
	}
}
