package rag

import (
	"context"
	"fmt"
	"strconv"

	"github.com/qdrant/go-client/qdrant"
)

// QdrantConfig holds connection parameters for a Qdrant vector store instance.
type QdrantConfig struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string

	// Port is the Qdrant gRPC port (default: 6334).
	Port int

	// Collection is the public collection name. After a staged rebuild it is
	// an alias pointing at the current generation collection.
	Collection string

	// VectorSize is the dimensionality of the embeddings stored in this collection.
	VectorSize uint64

	// APIKey is the optional Qdrant API key for authenticated clusters.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool
}

// QdrantStore implements VectorStore backed by a Qdrant instance. It is the
// alternative backend for deployments that already run Qdrant; the default
// remains the on-disk SQLite store.
type QdrantStore struct {
	// client is the underlying Qdrant gRPC client.
	client *qdrant.Client

	// cfg holds the resolved configuration for this store.
	cfg *QdrantConfig
}

// newQdrantClient dials the configured instance, filling in host and port
// defaults on cfg.
func newQdrantClient(cfg *QdrantConfig) (*qdrant.Client, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to create client: %w", err)
	}
	return client, nil
}

// qdrantTarget resolves the concrete collection behind name: the alias target
// when name is an alias, name itself when a real collection exists under it,
// or "" when neither does.
func qdrantTarget(ctx context.Context, client *qdrant.Client, name string) (string, error) {
	aliases, err := client.ListAliases(ctx)
	if err != nil {
		return "", fmt.Errorf("qdrant: failed to list aliases: %w", err)
	}
	for _, a := range aliases {
		if a.GetAliasName() == name {
			return a.GetCollectionName(), nil
		}
	}
	exists, err := client.CollectionExists(ctx, name)
	if err != nil {
		return "", fmt.Errorf("qdrant: failed to check collection existence: %w", err)
	}
	if exists {
		return name, nil
	}
	return "", nil
}

// NewQdrantStore connects to the existing collection named by cfg.Collection,
// which may be a real collection or the alias a staged rebuild left behind.
// A missing collection is reported as an error so the caller can distinguish
// an absent knowledge base from a connection failure.
func NewQdrantStore(ctx context.Context, cfg *QdrantConfig) (*QdrantStore, error) {
	client, err := newQdrantClient(cfg)
	if err != nil {
		return nil, err
	}

	target, err := qdrantTarget(ctx, client, cfg.Collection)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	if target == "" {
		_ = client.Close()
		return nil, fmt.Errorf("qdrant: collection %q does not exist", cfg.Collection)
	}

	return &QdrantStore{client: client, cfg: cfg}, nil
}

// QdrantCollectionExists reports whether the configured collection already
// holds persisted data, without creating anything. Alias names count as
// existing.
func QdrantCollectionExists(ctx context.Context, cfg *QdrantConfig) (bool, error) {
	client, err := newQdrantClient(cfg)
	if err != nil {
		return false, err
	}
	defer client.Close()

	target, err := qdrantTarget(ctx, client, cfg.Collection)
	if err != nil {
		return false, err
	}
	return target != "", nil
}

// QdrantStaging builds a replacement collection under a generation name
// (<collection>-a or <collection>-b) and promotes it behind the public
// collection alias only on Commit, so a failed rebuild never touches the
// live collection.
type QdrantStaging struct {
	cfg      *QdrantConfig
	client   *qdrant.Client
	staged   string // generation collection being filled
	previous string // concrete collection currently live, "" when none
	store    *QdrantStore
}

// BeginQdrantStaging creates the next generation collection and returns a
// staging handle for filling it. The live collection keeps serving reads
// until Commit.
func BeginQdrantStaging(ctx context.Context, cfg *QdrantConfig) (*QdrantStaging, error) {
	client, err := newQdrantClient(cfg)
	if err != nil {
		return nil, err
	}

	previous, err := qdrantTarget(ctx, client, cfg.Collection)
	if err != nil {
		_ = client.Close()
		return nil, err
	}

	staged := cfg.Collection + "-a"
	if previous == staged {
		staged = cfg.Collection + "-b"
	}

	// A crashed rebuild may have left the target generation behind.
	exists, err := client.CollectionExists(ctx, staged)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("qdrant: failed to check collection existence: %w", err)
	}
	if exists {
		if err := client.DeleteCollection(ctx, staged); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("qdrant: failed to drop stale collection %q: %w", staged, err)
		}
	}

	err = client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: staged,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     cfg.VectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("qdrant: failed to create collection %q: %w", staged, err)
	}

	stagedCfg := *cfg
	stagedCfg.Collection = staged
	return &QdrantStaging{
		cfg:      cfg,
		client:   client,
		staged:   staged,
		previous: previous,
		store:    &QdrantStore{client: client, cfg: &stagedCfg},
	}, nil
}

// Store returns the handle the staged generation is filled through.
func (s *QdrantStaging) Store() VectorStore {
	return s.store
}

// Commit points the public alias at the staged generation and drops the
// previous one. The returned store addresses the alias, so the next rebuild
// can swap generations underneath it. The staging must not be used after
// Commit returns.
func (s *QdrantStaging) Commit(ctx context.Context) (VectorStore, error) {
	switch s.previous {
	case "":
		// Nothing was live; the public name is free for the alias.
	case s.cfg.Collection:
		// Legacy layout: a real collection occupies the public name. It has
		// to go before an alias can take the name over.
		if err := s.client.DeleteCollection(ctx, s.previous); err != nil {
			return nil, fmt.Errorf("qdrant: failed to retire collection %q: %w", s.previous, err)
		}
	default:
		if err := s.client.DeleteAlias(ctx, s.cfg.Collection); err != nil {
			return nil, fmt.Errorf("qdrant: failed to detach alias %q: %w", s.cfg.Collection, err)
		}
	}

	if err := s.client.CreateAlias(ctx, s.cfg.Collection, s.staged); err != nil {
		return nil, fmt.Errorf("qdrant: failed to promote collection %q: %w", s.staged, err)
	}

	if s.previous != "" && s.previous != s.cfg.Collection {
		if err := s.client.DeleteCollection(ctx, s.previous); err != nil {
			return nil, fmt.Errorf("qdrant: failed to drop previous generation %q: %w", s.previous, err)
		}
	}

	return &QdrantStore{client: s.client, cfg: s.cfg}, nil
}

// Abort drops the staged generation, leaving the live collection as it was.
func (s *QdrantStaging) Abort() error {
	err := s.client.DeleteCollection(context.Background(), s.staged)
	_ = s.client.Close()
	if err != nil {
		return fmt.Errorf("qdrant: failed to drop staged collection %q: %w", s.staged, err)
	}
	return nil
}

// Client exposes the underlying gRPC client for readiness probing.
func (s *QdrantStore) Client() *qdrant.Client {
	return s.client
}

// Upsert stores a batch of documents with their embeddings. Qdrant applies
// the whole batch as one operation, so readers never observe a partial write.
func (s *QdrantStore) Upsert(ctx context.Context, docs []Document, embeddings [][]float32) error {
	if len(docs) != len(embeddings) {
		return fmt.Errorf("qdrant: %d documents but %d embeddings", len(docs), len(embeddings))
	}
	if len(docs) == 0 {
		return nil
	}

	points := make([]*qdrant.PointStruct, 0, len(docs))
	for i, doc := range docs {
		id := doc.ID
		if id == "" {
			id = DocumentID(doc.Source, doc.ChunkID)
		}
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(uuidFromHex(id)),
			Vectors: qdrant.NewVectors(embeddings[i]...),
			Payload: qdrant.NewValueMap(map[string]any{
				"content":      doc.Content,
				"source":       doc.Source,
				"chunk_id":     strconv.Itoa(doc.ChunkID),
				"size":         strconv.Itoa(doc.Size),
				"content_type": doc.ContentType,
			}),
		})
	}

	wait := true
	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.cfg.Collection,
		Points:         points,
		Wait:           &wait,
	})
	if err != nil {
		return fmt.Errorf("qdrant: upsert failed: %w", err)
	}
	return nil
}

// Search performs a cosine similarity search and returns the top-k results.
func (s *QdrantStore) Search(ctx context.Context, queryEmbedding []float32, topK int) ([]Document, error) {
	if topK <= 0 {
		return nil, nil
	}

	limit := uint64(topK)
	results, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.cfg.Collection,
		Query:          qdrant.NewQuery(queryEmbedding...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: search failed: %w", err)
	}

	docs := make([]Document, 0, len(results))
	for _, r := range results {
		doc := Document{
			ID:    r.Id.GetUuid(),
			Score: r.Score,
		}
		if p := r.Payload; p != nil {
			if v, ok := p["content"]; ok {
				doc.Content = v.GetStringValue()
			}
			if v, ok := p["source"]; ok {
				doc.Source = v.GetStringValue()
			}
			if v, ok := p["chunk_id"]; ok {
				doc.ChunkID, _ = strconv.Atoi(v.GetStringValue())
			}
			if v, ok := p["size"]; ok {
				doc.Size, _ = strconv.Atoi(v.GetStringValue())
			}
			if v, ok := p["content_type"]; ok {
				doc.ContentType = v.GetStringValue()
			}
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// Count returns the total number of points in the collection.
func (s *QdrantStore) Count(ctx context.Context) (int, error) {
	exact := true
	n, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.cfg.Collection,
		Exact:          &exact,
	})
	if err != nil {
		return 0, fmt.Errorf("qdrant: count failed: %w", err)
	}
	return int(n), nil
}

// Close closes the underlying Qdrant gRPC connection.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}

// uuidFromHex formats a 32-character hex document ID as a canonical UUID
// string, which is the point ID form Qdrant accepts.
func uuidFromHex(h string) string {
	if len(h) != 32 {
		return h
	}
	return h[0:8] + "-" + h[8:12] + "-" + h[12:16] + "-" + h[16:20] + "-" + h[20:32]
}
