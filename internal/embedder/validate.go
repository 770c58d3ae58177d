package embedder

import (
	"context"
	"fmt"
	"time"

	"github.com/courseai/lectio-go/internal/rag"
)

// ValidateForRAG performs a quick pre-flight check that the embedder is
// reachable and produces non-empty vectors. It is meant to run once at
// startup, before any documents are ingested, so that a misconfigured
// embedding backend fails fast instead of surfacing mid-ingestion.
func ValidateForRAG(ctx context.Context, e rag.Embedder) (int, error) {
	if e == nil {
		return 0, fmt.Errorf("embedder: validate: embedder is nil")
	}

	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	embeddings, err := e.Embed(ctx, []string{"connectivity check"})
	if err != nil {
		return 0, fmt.Errorf("embedder: validate: %w", err)
	}
	if len(embeddings) != 1 || len(embeddings[0]) == 0 {
		return 0, fmt.Errorf("embedder: validate: backend returned an empty embedding")
	}

	return len(embeddings[0]), nil
}
