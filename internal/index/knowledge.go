// Package index manages the lifecycle of the persistent vector index over
// course material. The index is always one fixed collection at a fixed
// location; it moves between three states:
//
//	Absent   — nothing persisted yet, only Build can move it forward
//	Unloaded — persisted data exists on disk but no handle is open
//	Loaded   — an open handle serves searches and additions
//
// Loading never re-embeds anything; it only opens the persisted collection.
package index

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/courseai/lectio-go/internal/logging"
	"github.com/courseai/lectio-go/internal/rag"
)

// State describes where the persistent index is in its lifecycle.
type State int

const (
	// StateAbsent means no persisted index exists.
	StateAbsent State = iota
	// StateUnloaded means persisted data exists but no handle is open.
	StateUnloaded
	// StateLoaded means the index is open and ready to serve.
	StateLoaded
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateAbsent:
		return "absent"
	case StateUnloaded:
		return "unloaded"
	case StateLoaded:
		return "loaded"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

var (
	// ErrAbsent is returned when an operation needs persisted data and none exists.
	ErrAbsent = errors.New("index: no persisted index exists")
	// ErrNoDocuments is returned when Build or Add is given nothing to index.
	ErrNoDocuments = errors.New("index: no documents to index")
	// ErrNotLoaded is returned when a search reaches an index that could not be loaded.
	ErrNotLoaded = errors.New("index: index is not loaded")
)

// Backend abstracts how the collection is persisted, checked for existence,
// staged for replacement, and reopened.
type Backend interface {
	// Exists reports whether persisted collection data is present.
	Exists(ctx context.Context) (bool, error)
	// Begin starts a staged rebuild. The previously persisted collection
	// stays live and untouched until the staging is committed.
	Begin(ctx context.Context) (Staging, error)
	// Open returns a handle to the existing collection without modifying it.
	// It fails if no persisted data exists.
	Open(ctx context.Context) (rag.VectorStore, error)
}

// Staging is a replacement collection under construction. The previous
// persisted collection stays intact until Commit; a failed build calls Abort
// and the index is left exactly as it was.
type Staging interface {
	// Store is the handle new documents are written through.
	Store() rag.VectorStore
	// Commit atomically publishes the staged data as the live collection and
	// returns an open handle to it. The staging must not be used afterwards.
	Commit(ctx context.Context) (rag.VectorStore, error)
	// Abort discards the staged data without touching the live collection.
	Abort() error
}

// embedBatchSize bounds how many chunks go to the embedding backend per call.
const embedBatchSize = 100

// KnowledgeBase owns the vector index handle and serializes lifecycle
// transitions. Searches take a read lock so they run concurrently with each
// other but never with a Build, Load, or Add.
type KnowledgeBase struct {
	mu        sync.RWMutex
	backend   Backend
	embedder  rag.Embedder
	topK      int
	store     rag.VectorStore     // non-nil exactly when loaded
	retriever *rag.QueryRetriever // composed over store, same lifetime
}

// New constructs a KnowledgeBase in whatever state the backend's persisted
// data implies. topK is the default number of search results; non-positive
// values fall back to 5.
func New(backend Backend, embedder rag.Embedder, topK int) (*KnowledgeBase, error) {
	if backend == nil {
		return nil, fmt.Errorf("index: backend must not be nil")
	}
	if embedder == nil {
		return nil, fmt.Errorf("index: embedder must not be nil")
	}
	if topK <= 0 {
		topK = 5
	}
	return &KnowledgeBase{backend: backend, embedder: embedder, topK: topK}, nil
}

// State reports the current lifecycle state.
func (kb *KnowledgeBase) State(ctx context.Context) (State, error) {
	kb.mu.RLock()
	loaded := kb.store != nil
	kb.mu.RUnlock()
	if loaded {
		return StateLoaded, nil
	}

	exists, err := kb.backend.Exists(ctx)
	if err != nil {
		return StateAbsent, fmt.Errorf("index: check persisted data: %w", err)
	}
	if exists {
		return StateUnloaded, nil
	}
	return StateAbsent, nil
}

// Build creates the collection from scratch, embedding and storing every
// document, and leaves the index loaded. The previous collection is replaced
// only once the new one is fully written: a failed build aborts the staging
// and leaves the persisted index as it was. An empty document set is an
// error: an index over nothing answers nothing.
func (kb *KnowledgeBase) Build(ctx context.Context, docs []rag.Document) error {
	if len(docs) == 0 {
		return ErrNoDocuments
	}

	kb.mu.Lock()
	defer kb.mu.Unlock()

	embeddings, err := kb.embedAll(ctx, docs)
	if err != nil {
		return err
	}

	stg, err := kb.backend.Begin(ctx)
	if err != nil {
		return fmt.Errorf("index: stage collection: %w", err)
	}

	if err := stg.Store().Upsert(ctx, docs, embeddings); err != nil {
		_ = stg.Abort()
		return fmt.Errorf("index: store documents: %w", err)
	}

	// Release the old handle before the swap so two handles never address
	// the same backend at once.
	if kb.store != nil {
		kb.store.Close()
		kb.store = nil
		kb.retriever = nil
	}

	store, err := stg.Commit(ctx)
	if err != nil {
		return fmt.Errorf("index: publish collection: %w", err)
	}
	if err := kb.adoptLocked(store); err != nil {
		return err
	}

	logging.FromContext(ctx).Info("knowledge base built", "documents", len(docs))
	return nil
}

// Load opens the persisted collection. It is a no-op when already loaded and
// returns ErrAbsent when nothing is persisted. No embedding happens here.
func (kb *KnowledgeBase) Load(ctx context.Context) error {
	kb.mu.Lock()
	defer kb.mu.Unlock()
	return kb.loadLocked(ctx)
}

func (kb *KnowledgeBase) loadLocked(ctx context.Context) error {
	if kb.store != nil {
		return nil
	}

	exists, err := kb.backend.Exists(ctx)
	if err != nil {
		return fmt.Errorf("index: check persisted data: %w", err)
	}
	if !exists {
		return ErrAbsent
	}

	store, err := kb.backend.Open(ctx)
	if err != nil {
		return fmt.Errorf("index: open collection: %w", err)
	}
	if err := kb.adoptLocked(store); err != nil {
		return err
	}

	logging.FromContext(ctx).Info("knowledge base loaded")
	return nil
}

// adoptLocked takes ownership of an open store and wires the retriever that
// serves searches over it. Callers hold the write lock.
func (kb *KnowledgeBase) adoptLocked(store rag.VectorStore) error {
	retriever, err := rag.NewRetriever(kb.embedder, store, kb.topK)
	if err != nil {
		store.Close()
		return fmt.Errorf("index: wire retriever: %w", err)
	}
	kb.store = store
	kb.retriever = retriever
	return nil
}

// Add embeds and appends documents to the existing collection, loading it
// first if needed. Adding to an absent index returns ErrAbsent — Build must
// run first.
func (kb *KnowledgeBase) Add(ctx context.Context, docs []rag.Document) error {
	if len(docs) == 0 {
		return ErrNoDocuments
	}

	kb.mu.Lock()
	defer kb.mu.Unlock()

	if err := kb.loadLocked(ctx); err != nil {
		return err
	}

	embeddings, err := kb.embedAll(ctx, docs)
	if err != nil {
		return err
	}

	if err := kb.store.Upsert(ctx, docs, embeddings); err != nil {
		return fmt.Errorf("index: store documents: %w", err)
	}

	logging.FromContext(ctx).Info("knowledge base extended", "documents", len(docs))
	return nil
}

// Retrieve returns the chunks most similar to query, best-first. topK <= 0
// uses the configured default. The index must be loaded.
func (kb *KnowledgeBase) Retrieve(ctx context.Context, query string, topK int) ([]rag.Document, error) {
	kb.mu.RLock()
	defer kb.mu.RUnlock()

	if kb.retriever == nil {
		return nil, ErrNotLoaded
	}

	docs, err := kb.retriever.Retrieve(ctx, query, topK)
	if err != nil {
		return nil, fmt.Errorf("index: retrieve: %w", err)
	}
	return docs, nil
}

// Count returns the number of indexed chunks. A persisted but unloaded
// collection is peeked through a short-lived handle so the count is real
// without changing the lifecycle state; an absent index counts zero.
func (kb *KnowledgeBase) Count(ctx context.Context) (int, error) {
	kb.mu.RLock()
	defer kb.mu.RUnlock()

	if kb.store != nil {
		n, err := kb.store.Count(ctx)
		if err != nil {
			return 0, fmt.Errorf("index: count: %w", err)
		}
		return n, nil
	}

	exists, err := kb.backend.Exists(ctx)
	if err != nil {
		return 0, fmt.Errorf("index: check persisted data: %w", err)
	}
	if !exists {
		return 0, nil
	}

	store, err := kb.backend.Open(ctx)
	if err != nil {
		return 0, fmt.Errorf("index: open collection: %w", err)
	}
	defer store.Close()

	n, err := store.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("index: count: %w", err)
	}
	return n, nil
}

// Close releases the open handle, returning the index to Unloaded (or Absent
// if nothing was ever persisted). Safe to call when not loaded.
func (kb *KnowledgeBase) Close() error {
	kb.mu.Lock()
	defer kb.mu.Unlock()

	if kb.store == nil {
		return nil
	}
	err := kb.store.Close()
	kb.store = nil
	kb.retriever = nil
	return err
}

// embedAll runs the embedder over doc contents in bounded batches.
func (kb *KnowledgeBase) embedAll(ctx context.Context, docs []rag.Document) ([][]float32, error) {
	embeddings := make([][]float32, 0, len(docs))
	for start := 0; start < len(docs); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(docs) {
			end = len(docs)
		}
		texts := make([]string, 0, end-start)
		for _, d := range docs[start:end] {
			texts = append(texts, d.Content)
		}
		batch, err := kb.embedder.Embed(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("index: embed documents: %w", err)
		}
		if len(batch) != len(texts) {
			return nil, fmt.Errorf("index: expected %d embeddings, got %d", len(texts), len(batch))
		}
		embeddings = append(embeddings, batch...)
	}
	return embeddings, nil
}
