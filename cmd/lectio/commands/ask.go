package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/courseai/lectio-go/internal/logging"
)

// NewAskCmd constructs the `lectio ask` command, which answers a single
// question against the knowledge base and prints the sources used.
func NewAskCmd() *cobra.Command {
	var session string
	var showSources bool

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a question about the indexed course material",
		Long: `Ask the course assistant a natural language question. The answer is
grounded in the indexed lecture material; the chunks it came from are
listed below the answer.

Conversation history is kept per session for follow-up questions within
one process. Use --session to separate concurrent conversations when
running through the HTTP server.

Examples:
  lectio ask "What does Dijkstra's algorithm compute?"
  lectio ask --session alice "And what is its time complexity?"
  lectio ask --sources=false "When is the midterm?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			w, closeAll, err := buildAssistant(ctx, log)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			defer closeAll()

			result, err := w.Assistant.Answer(ctx, session, args[0])
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			fmt.Println(result.Text)

			if showSources && len(result.Sources) > 0 {
				fmt.Println("\nSources:")
				for _, src := range result.Sources {
					fmt.Printf("  - %s (chunk %d): %s\n",
						src.Source, src.ChunkID, src.Preview)
				}
			}

			return nil
		},
	}

	cmd.Flags().StringVarP(&session, "session", "s", "", "Conversation session ID (default: the shared session)")
	cmd.Flags().BoolVar(&showSources, "sources", true, "Print the source chunks the answer was grounded on")

	return cmd
}
