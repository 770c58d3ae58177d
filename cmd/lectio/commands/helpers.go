package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/courseai/lectio-go/internal/answer"
	"github.com/courseai/lectio-go/internal/assistant"
	"github.com/courseai/lectio-go/internal/embedder"
	"github.com/courseai/lectio-go/internal/index"
	"github.com/courseai/lectio-go/internal/ingest"
	"github.com/courseai/lectio-go/internal/memory"
	"github.com/courseai/lectio-go/internal/provider"
	"github.com/courseai/lectio-go/internal/rag"
)

// defaultCollection is the fixed collection name the knowledge base lives in.
const defaultCollection = "course_material"

// wiring bundles everything buildAssistant constructed so commands can reach
// the individual collaborators (e.g. serve needs the embedder for pingers).
type wiring struct {
	// Assistant is the fully wired orchestrator.
	Assistant *assistant.Assistant
	// Embedder is the embedding client the knowledge base uses.
	Embedder rag.Embedder
	// Sessions is the conversation memory registry.
	Sessions *memory.Registry
	// StoreBackend is the resolved STORE_BACKEND value ("sqlite" or "qdrant").
	StoreBackend string
	// StorePath is the SQLite database path (empty for qdrant).
	StorePath string
	// Qdrant holds the Qdrant settings when StoreBackend is "qdrant".
	Qdrant *rag.QdrantConfig
}

// buildAssistant wires the full pipeline from the environment: embedder,
// chat model, vector store backend, ingest pipeline, answer generator, and
// session registry. The returned close function releases the knowledge base.
func buildAssistant(ctx context.Context, log *slog.Logger) (*wiring, func(), error) {
	emb, err := embedder.NewFromEnv()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialise embedder: %w", err)
	}

	chatModel, err := provider.NewFromEnv(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialise model provider: %w", err)
	}

	w := &wiring{Embedder: emb}

	backend, err := buildStoreBackend(w)
	if err != nil {
		return nil, nil, err
	}
	log.Info("store backend selected",
		slog.String("backend", w.StoreBackend),
		slog.String("path", w.StorePath),
	)

	topK := getEnvInt("RETRIEVAL_TOP_K", 5)
	kb, err := index.New(backend, emb, topK)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open knowledge base: %w", err)
	}

	pipeline := ingest.NewPipeline(&ingest.Config{
		ChunkSize:    getEnvInt("CHUNK_SIZE", ingest.DefaultChunkSize),
		ChunkOverlap: getEnvInt("CHUNK_OVERLAP", ingest.DefaultChunkOverlap),
	})

	gen, err := answer.NewGenerator(&answer.Config{
		ChatModel: chatModel,
		Retriever: kb,
		TopK:      topK,
		Prompt: &answer.PromptConfig{
			CourseName: os.Getenv("COURSE_NAME"),
			Grounding:  answer.GroundingPolicy(os.Getenv("PROMPT_GROUNDING")),
			Refusal:    os.Getenv("PROMPT_REFUSAL"),
		},
	})
	if err != nil {
		_ = kb.Close()
		return nil, nil, fmt.Errorf("failed to initialise answer generator: %w", err)
	}

	sessions := memory.NewRegistry(
		getEnvInt("MEMORY_EXCHANGES", memory.DefaultExchanges),
		getEnvDuration("SESSION_TTL", memory.DefaultSessionTTL),
	)

	a, err := assistant.New(&assistant.Config{
		Pipeline:      pipeline,
		KnowledgeBase: kb,
		Generator:     gen,
		Sessions:      sessions,
	})
	if err != nil {
		_ = kb.Close()
		return nil, nil, fmt.Errorf("failed to initialise assistant: %w", err)
	}

	w.Assistant = a
	w.Sessions = sessions

	return w, func() { _ = a.Close() }, nil
}

// buildStoreBackend resolves STORE_BACKEND into a concrete index backend and
// records the resolved settings on w for logging and pinger construction.
func buildStoreBackend(w *wiring) (index.Backend, error) {
	w.StoreBackend = getEnvOrDefault("STORE_BACKEND", "sqlite")
	collection := getEnvOrDefault("STORE_COLLECTION", defaultCollection)

	switch w.StoreBackend {
	case "sqlite":
		path := os.Getenv("STORE_PATH")
		if path == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return nil, fmt.Errorf("could not resolve home directory for index path: %w", err)
			}
			path = filepath.Join(home, ".lectio", "index.db")
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("could not create index directory: %w", err)
		}
		w.StorePath = path
		return &index.SQLiteBackend{Path: path, Collection: collection}, nil

	case "qdrant":
		embProvider := getEnvOrDefault("EMBEDDING_PROVIDER", getEnvOrDefault("MODEL_PROVIDER", "ollama"))
		dims := getEnvInt("EMBEDDING_DIMENSIONS",
			embedder.DefaultDimensions(embProvider, os.Getenv("EMBEDDING_MODEL")))

		w.Qdrant = &rag.QdrantConfig{
			Host:       getEnvOrDefault("QDRANT_HOST", "localhost"),
			Port:       getEnvInt("QDRANT_PORT", 6334),
			Collection: collection,
			VectorSize: uint64(dims), //nolint:gosec // dimensions are bounded
			APIKey:     os.Getenv("QDRANT_API_KEY"),
			UseTLS:     os.Getenv("QDRANT_TLS") == "true",
		}
		return &index.QdrantBackend{Config: w.Qdrant}, nil

	default:
		return nil, fmt.Errorf("unknown STORE_BACKEND %q (want sqlite or qdrant)", w.StoreBackend)
	}
}

// getEnvOrDefault returns the env var value or fallback when unset/empty.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt returns the env var parsed as int, or fallback when unset or
// unparseable.
func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// getEnvDuration returns the env var parsed as a Go duration (e.g. "30m"),
// or fallback when unset or unparseable.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
