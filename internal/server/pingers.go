package server

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/qdrant/go-client/qdrant"

	"github.com/courseai/lectio-go/internal/rag"
)

// EmbedderPinger probes an embedding backend by embedding a single short
// probe string. It satisfies the Pinger interface and is used by
// GET /api/ready. The probe costs one tiny embedding call, which is cheap
// for every supported backend.
type EmbedderPinger struct {
	// embedder is the embedding client to probe.
	embedder rag.Embedder
	// name identifies the backend in readiness responses (e.g. "ollama").
	name string
}

// NewEmbedderPinger constructs an EmbedderPinger for the given embedder and
// backend name.
func NewEmbedderPinger(e rag.Embedder, name string) *EmbedderPinger {
	return &EmbedderPinger{embedder: e, name: name}
}

// Name returns the backend label used in readiness responses.
func (p *EmbedderPinger) Name() string { return p.name }

// Ping embeds a probe string and verifies a non-empty vector comes back.
func (p *EmbedderPinger) Ping(ctx context.Context) error {
	vecs, err := p.embedder.Embed(ctx, []string{"ping"})
	if err != nil {
		return fmt.Errorf("embed failed: %w", err)
	}
	if len(vecs) != 1 || len(vecs[0]) == 0 {
		return fmt.Errorf("embed returned an empty vector")
	}
	return nil
}

// QdrantPinger probes a Qdrant instance using its native HealthCheck RPC.
// It satisfies the Pinger interface and is used by GET /api/ready.
type QdrantPinger struct {
	// client is the Qdrant gRPC client to probe.
	client *qdrant.Client
}

// NewQdrantPinger constructs a QdrantPinger for the given Qdrant client.
func NewQdrantPinger(client *qdrant.Client) *QdrantPinger {
	return &QdrantPinger{client: client}
}

// Name returns the dependency label used in readiness responses.
func (p *QdrantPinger) Name() string { return "qdrant" }

// Ping calls the Qdrant HealthCheck RPC.
// Returns nil if Qdrant is reachable, or a descriptive error otherwise.
func (p *QdrantPinger) Ping(ctx context.Context) error {
	_, err := p.client.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

// SQLitePinger probes the local SQLite index location. The index file itself
// may legitimately not exist yet (knowledge base never built), so the probe
// only requires that the parent directory is present and accessible.
type SQLitePinger struct {
	// Path is the SQLite database file path.
	Path string
}

// Name returns the dependency label used in readiness responses.
func (p *SQLitePinger) Name() string { return "sqlite" }

// Ping verifies the index directory exists and is a directory.
func (p *SQLitePinger) Ping(_ context.Context) error {
	dir := filepath.Dir(p.Path)
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("index directory %s: %w", dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("index location %s is not a directory", dir)
	}
	return nil
}
