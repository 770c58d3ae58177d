package index

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/courseai/lectio-go/internal/rag"
)

// stubEmbedder produces a deterministic vector per text so similarity is
// predictable without a real model. With empty set it returns nil vectors,
// which every store rejects at write time.
type stubEmbedder struct {
	calls int
	fail  bool
	empty bool
}

func (e *stubEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.calls++
	if e.fail {
		return nil, errors.New("embedder down")
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if e.empty {
			continue
		}
		out[i] = []float32{float32(len(t)), 1}
	}
	return out, nil
}

// memStore is an in-memory rag.VectorStore used to observe lifecycle calls.
type memStore struct {
	docs      []rag.Document
	closed    bool
	upsertErr error
}

func (s *memStore) Upsert(_ context.Context, docs []rag.Document, embeddings [][]float32) error {
	if s.upsertErr != nil {
		return s.upsertErr
	}
	if len(docs) != len(embeddings) {
		return fmt.Errorf("parallel slice mismatch: %d docs, %d embeddings", len(docs), len(embeddings))
	}
	s.docs = append(s.docs, docs...)
	return nil
}

func (s *memStore) Search(_ context.Context, _ []float32, topK int) ([]rag.Document, error) {
	if topK > len(s.docs) {
		topK = len(s.docs)
	}
	return s.docs[:topK], nil
}

func (s *memStore) Count(_ context.Context) (int, error) { return len(s.docs), nil }
func (s *memStore) Close() error                         { s.closed = true; return nil }

// memBackend keeps its "persisted" collection in memory across Open calls.
// Staged stores only become the persisted collection on Commit, mirroring
// the real backends.
type memBackend struct {
	persisted *memStore
	stageErr  error // injected as Upsert failure on staged stores
	aborted   bool
}

func (b *memBackend) Exists(_ context.Context) (bool, error) {
	return b.persisted != nil, nil
}

func (b *memBackend) Begin(_ context.Context) (Staging, error) {
	return &memStaging{backend: b, staged: &memStore{upsertErr: b.stageErr}}, nil
}

func (b *memBackend) Open(_ context.Context) (rag.VectorStore, error) {
	if b.persisted == nil {
		return nil, ErrAbsent
	}
	return b.persisted, nil
}

type memStaging struct {
	backend *memBackend
	staged  *memStore
}

func (s *memStaging) Store() rag.VectorStore { return s.staged }

func (s *memStaging) Commit(_ context.Context) (rag.VectorStore, error) {
	s.backend.persisted = s.staged
	return s.staged, nil
}

func (s *memStaging) Abort() error {
	s.backend.aborted = true
	return nil
}

func docsOf(texts ...string) []rag.Document {
	out := make([]rag.Document, len(texts))
	for i, t := range texts {
		out[i] = rag.Document{
			ID:      rag.DocumentID("test.pdf", i),
			Content: t,
			Source:  "test.pdf",
			ChunkID: i,
			Size:    len(t),
		}
	}
	return out
}

func TestKnowledgeBase_StateTransitions(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	kb, err := New(&memBackend{}, &stubEmbedder{}, 5)
	if err != nil {
		t.Fatal(err)
	}

	if s, _ := kb.State(ctx); s != StateAbsent {
		t.Fatalf("initial state = %v, want absent", s)
	}

	if err := kb.Build(ctx, docsOf("graphs", "trees")); err != nil {
		t.Fatalf("Build: %v", err)
	}
	if s, _ := kb.State(ctx); s != StateLoaded {
		t.Fatalf("state after Build = %v, want loaded", s)
	}

	if err := kb.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if s, _ := kb.State(ctx); s != StateUnloaded {
		t.Fatalf("state after Close = %v, want unloaded", s)
	}

	if err := kb.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s, _ := kb.State(ctx); s != StateLoaded {
		t.Fatalf("state after Load = %v, want loaded", s)
	}
}

func TestKnowledgeBase_BuildRejectsEmpty(t *testing.T) {
	t.Parallel()

	kb, _ := New(&memBackend{}, &stubEmbedder{}, 5)
	if err := kb.Build(context.Background(), nil); !errors.Is(err, ErrNoDocuments) {
		t.Fatalf("Build(nil) error = %v, want ErrNoDocuments", err)
	}
}

func TestKnowledgeBase_LoadAbsent(t *testing.T) {
	t.Parallel()

	kb, _ := New(&memBackend{}, &stubEmbedder{}, 5)
	if err := kb.Load(context.Background()); !errors.Is(err, ErrAbsent) {
		t.Fatalf("Load error = %v, want ErrAbsent", err)
	}
}

func TestKnowledgeBase_LoadDoesNotEmbed(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	backend := &memBackend{persisted: &memStore{docs: docsOf("existing")}}
	emb := &stubEmbedder{}
	kb, _ := New(backend, emb, 5)

	if err := kb.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if emb.calls != 0 {
		t.Errorf("Load invoked the embedder %d times, want 0", emb.calls)
	}
	if n, _ := kb.Count(ctx); n != 1 {
		t.Errorf("Count = %d, want 1", n)
	}
}

func TestKnowledgeBase_AddAutoLoads(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	backend := &memBackend{persisted: &memStore{docs: docsOf("existing")}}
	kb, _ := New(backend, &stubEmbedder{}, 5)

	if err := kb.Add(ctx, docsOf("more material")); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if s, _ := kb.State(ctx); s != StateLoaded {
		t.Fatalf("state after Add = %v, want loaded", s)
	}
	if n, _ := kb.Count(ctx); n != 2 {
		t.Errorf("Count = %d, want 2", n)
	}
}

func TestKnowledgeBase_AddToAbsentFails(t *testing.T) {
	t.Parallel()

	kb, _ := New(&memBackend{}, &stubEmbedder{}, 5)
	if err := kb.Add(context.Background(), docsOf("orphan")); !errors.Is(err, ErrAbsent) {
		t.Fatalf("Add error = %v, want ErrAbsent", err)
	}
}

func TestKnowledgeBase_BuildReplacesPreviousCollection(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	backend := &memBackend{persisted: &memStore{docs: docsOf("old material")}}
	kb, _ := New(backend, &stubEmbedder{}, 5)

	if err := kb.Build(ctx, docsOf("new material")); err != nil {
		t.Fatalf("Build: %v", err)
	}
	if n, _ := kb.Count(ctx); n != 1 {
		t.Errorf("Count = %d, want 1 (old collection replaced)", n)
	}
}

func TestKnowledgeBase_BuildEmbedderFailureLeavesStateAlone(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	backend := &memBackend{}
	kb, _ := New(backend, &stubEmbedder{fail: true}, 5)

	if err := kb.Build(ctx, docsOf("doomed")); err == nil {
		t.Fatal("expected Build to fail")
	}
	if s, _ := kb.State(ctx); s != StateAbsent {
		t.Fatalf("state after failed Build = %v, want absent", s)
	}
}

func TestKnowledgeBase_FailedRebuildKeepsPreviousCollection(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	backend := &memBackend{}
	kb, _ := New(backend, &stubEmbedder{}, 5)
	if err := kb.Build(ctx, docsOf("surviving chunk")); err != nil {
		t.Fatalf("Build: %v", err)
	}
	if err := kb.Close(); err != nil {
		t.Fatal(err)
	}

	// The rebuild fails at write time; the staging must be aborted and the
	// previously persisted collection left untouched.
	backend.stageErr = errors.New("write rejected")
	if err := kb.Build(ctx, docsOf("replacement")); err == nil {
		t.Fatal("expected rebuild to fail")
	}
	if !backend.aborted {
		t.Error("failed rebuild did not abort its staging")
	}

	if err := kb.Load(ctx); err != nil {
		t.Fatalf("Load after failed rebuild: %v", err)
	}
	if n, _ := kb.Count(ctx); n != 1 {
		t.Errorf("Count after failed rebuild = %d, want 1", n)
	}
	docs, err := kb.Retrieve(ctx, "anything", 1)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(docs) != 1 || docs[0].Content != "surviving chunk" {
		t.Errorf("retrieved %v, want the original chunk", docs)
	}
}

func TestKnowledgeBase_RetrieveRequiresLoad(t *testing.T) {
	t.Parallel()

	kb, _ := New(&memBackend{}, &stubEmbedder{}, 5)
	if _, err := kb.Retrieve(context.Background(), "what is a graph?", 0); !errors.Is(err, ErrNotLoaded) {
		t.Fatalf("Retrieve error = %v, want ErrNotLoaded", err)
	}
}

func TestKnowledgeBase_RetrieveDefaultTopK(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	kb, _ := New(&memBackend{}, &stubEmbedder{}, 2)
	if err := kb.Build(ctx, docsOf("a", "b", "c", "d")); err != nil {
		t.Fatal(err)
	}

	docs, err := kb.Retrieve(ctx, "question", 0)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("Retrieve returned %d docs, want the configured default 2", len(docs))
	}
}

func TestKnowledgeBase_CountZeroWhenAbsent(t *testing.T) {
	t.Parallel()

	kb, _ := New(&memBackend{}, &stubEmbedder{}, 5)
	n, err := kb.Count(context.Background())
	if err != nil || n != 0 {
		t.Fatalf("Count = %d, %v; want 0, nil", n, err)
	}
}

func TestKnowledgeBase_CountPeeksUnloadedCollection(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	backend := &memBackend{persisted: &memStore{docs: docsOf("a", "b", "c")}}
	kb, _ := New(backend, &stubEmbedder{}, 5)

	n, err := kb.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 3 {
		t.Errorf("Count = %d, want 3 from the persisted collection", n)
	}
	if s, _ := kb.State(ctx); s != StateUnloaded {
		t.Errorf("state after Count = %v, want still unloaded", s)
	}
}

func TestSQLiteBackend_Lifecycle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "kb", "lectio.db")
	backend := &SQLiteBackend{Path: path, Collection: "course_material"}
	kb, err := New(backend, &stubEmbedder{}, 5)
	if err != nil {
		t.Fatal(err)
	}

	if s, _ := kb.State(ctx); s != StateAbsent {
		t.Fatalf("state = %v, want absent before any build", s)
	}

	if err := kb.Build(ctx, docsOf("persistent chunk one", "persistent chunk two")); err != nil {
		t.Fatalf("Build: %v", err)
	}
	if err := kb.Close(); err != nil {
		t.Fatal(err)
	}

	// A fresh knowledge base over the same path sees the persisted data.
	kb2, err := New(&SQLiteBackend{Path: path, Collection: "course_material"}, &stubEmbedder{}, 5)
	if err != nil {
		t.Fatal(err)
	}
	defer kb2.Close()

	if s, _ := kb2.State(ctx); s != StateUnloaded {
		t.Fatalf("state = %v, want unloaded for persisted data", s)
	}
	if err := kb2.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if n, _ := kb2.Count(ctx); n != 2 {
		t.Errorf("Count = %d, want 2", n)
	}
}

func TestSQLiteBackend_FailedRebuildKeepsPreviousIndex(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "lectio.db")
	kb, err := New(&SQLiteBackend{Path: path, Collection: "course_material"}, &stubEmbedder{}, 5)
	if err != nil {
		t.Fatal(err)
	}
	if err := kb.Build(ctx, docsOf("surviving chunk")); err != nil {
		t.Fatalf("Build: %v", err)
	}
	if err := kb.Close(); err != nil {
		t.Fatal(err)
	}

	// Rebuild with an embedder that yields empty vectors: the store rejects
	// the write, so the staged database must be discarded and the published
	// one survive as-is.
	kb2, _ := New(&SQLiteBackend{Path: path, Collection: "course_material"}, &stubEmbedder{empty: true}, 5)
	if err := kb2.Build(ctx, docsOf("replacement")); err == nil {
		t.Fatal("expected rebuild to fail on rejected embeddings")
	}
	kb2.Close()

	if _, err := os.Stat(path + ".staging"); !os.IsNotExist(err) {
		t.Errorf("staged database left behind after abort: %v", err)
	}

	kb3, _ := New(&SQLiteBackend{Path: path, Collection: "course_material"}, &stubEmbedder{}, 5)
	defer kb3.Close()
	if err := kb3.Load(ctx); err != nil {
		t.Fatalf("Load after failed rebuild: %v", err)
	}
	if n, _ := kb3.Count(ctx); n != 1 {
		t.Errorf("Count after failed rebuild = %d, want 1", n)
	}
}

func TestSQLiteBackend_RebuildReplacesOnDiskData(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "lectio.db")
	kb, _ := New(&SQLiteBackend{Path: path, Collection: "course_material"}, &stubEmbedder{}, 5)
	if err := kb.Build(ctx, docsOf("one", "two", "three")); err != nil {
		t.Fatalf("Build: %v", err)
	}

	// A rebuild from the loaded state swaps the file underneath the handle.
	if err := kb.Build(ctx, docsOf("only")); err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	if n, _ := kb.Count(ctx); n != 1 {
		t.Errorf("Count = %d, want 1 after rebuild", n)
	}
	if err := kb.Close(); err != nil {
		t.Fatal(err)
	}

	kb2, _ := New(&SQLiteBackend{Path: path, Collection: "course_material"}, &stubEmbedder{}, 5)
	defer kb2.Close()
	if n, _ := kb2.Count(ctx); n != 1 {
		t.Errorf("persisted Count = %d, want 1", n)
	}
}
