package commands

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloudwego/eino/callbacks"
	"github.com/qdrant/go-client/qdrant"
	"github.com/spf13/cobra"

	"github.com/courseai/lectio-go/internal/logging"
	"github.com/courseai/lectio-go/internal/server"
	"github.com/courseai/lectio-go/internal/tracing"
)

// sweepInterval is how often idle conversation sessions are evicted while
// the server runs.
const sweepInterval = 5 * time.Minute

// NewServeCmd constructs the `lectio serve` command, which starts the HTTP
// API for the course assistant.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the lectio HTTP API",
		Long: `Start the lectio HTTP server on localhost.

The server exposes the knowledge base operations and question answering
as a REST API:

  POST /api/rag/init   build the knowledge base from lecture files
  POST /api/rag/add    append lecture files to the knowledge base
  POST /api/rag/ask    answer a question within a conversation session
  GET  /api/health     liveness
  GET  /api/ready      dependency readiness (embedder, store)
  GET  /metrics        Prometheus metrics

Set LECTIO_API_KEY to require Bearer authentication on the /api/rag/*
routes.

Examples:
  lectio serve
  lectio serve --port 9090
  STORE_BACKEND=qdrant lectio serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			log.Info("serve starting",
				slog.String("provider", os.Getenv("MODEL_PROVIDER")),
				slog.String("store", getEnvOrDefault("STORE_BACKEND", "sqlite")),
			)

			// Setup Langfuse tracing — opt-in, no-op if keys are absent.
			handler, flush, ok := tracing.Setup()
			if ok {
				callbacks.AppendGlobalHandlers(handler)
				defer flush()
				log.Info("langfuse tracing enabled")
			} else {
				log.Info("langfuse tracing disabled", slog.String("reason", "LANGFUSE_PUBLIC_KEY not set"))
			}

			w, closeAll, err := buildAssistant(ctx, log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer closeAll()

			// Evict idle conversation sessions for as long as the server runs.
			go w.Sessions.Run(ctx, sweepInterval)

			pingers, err := buildPingers(w)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			srv, err := server.New(w.Assistant, &server.Config{
				Host:    host,
				Port:    port,
				Logger:  log,
				Pingers: pingers,
				APIKey:  os.Getenv("LECTIO_API_KEY"),
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "TCP port to listen on")

	return cmd
}

// buildPingers assembles the readiness probes for the wired dependencies:
// the embedding backend plus whichever vector store backend is configured.
func buildPingers(w *wiring) ([]server.Pinger, error) {
	embProvider := getEnvOrDefault("EMBEDDING_PROVIDER", getEnvOrDefault("MODEL_PROVIDER", "ollama"))
	pingers := []server.Pinger{
		server.NewEmbedderPinger(w.Embedder, embProvider),
	}

	switch w.StoreBackend {
	case "sqlite":
		pingers = append(pingers, &server.SQLitePinger{Path: w.StorePath})
	case "qdrant":
		client, err := qdrant.NewClient(&qdrant.Config{
			Host:   w.Qdrant.Host,
			Port:   w.Qdrant.Port,
			APIKey: w.Qdrant.APIKey,
			UseTLS: w.Qdrant.UseTLS,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create qdrant client for readiness probe: %w", err)
		}
		pingers = append(pingers, server.NewQdrantPinger(client))
	}

	return pingers, nil
}
