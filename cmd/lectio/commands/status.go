package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/courseai/lectio-go/internal/logging"
)

// NewStatusCmd constructs the `lectio status` command, which reports the
// knowledge base lifecycle state and collection size without modifying it.
func NewStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the knowledge base state and chunk count",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			w, closeAll, err := buildAssistant(ctx, log)
			if err != nil {
				return fmt.Errorf("status: %w", err)
			}
			defer closeAll()

			status, err := w.Assistant.Status(ctx)
			if err != nil {
				return fmt.Errorf("status: %w", err)
			}

			fmt.Printf("State:  %s\n", status.State)
			fmt.Printf("Chunks: %d\n", status.Chunks)
			if w.StorePath != "" {
				fmt.Printf("Store:  %s\n", w.StorePath)
			} else {
				fmt.Printf("Store:  qdrant (%s:%d)\n", w.Qdrant.Host, w.Qdrant.Port)
			}
			return nil
		},
	}
}
