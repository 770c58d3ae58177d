package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

// fakePinger is a test double for the Pinger interface.
type fakePinger struct {
	// name is returned by Name().
	name string
	// err is returned by Ping(); nil means healthy.
	err error
}

func (f *fakePinger) Name() string                 { return f.name }
func (f *fakePinger) Ping(_ context.Context) error { return f.err }

// newReadyTestServer builds a *Server with the given pingers wired in.
func newReadyTestServer(pingers ...Pinger) *Server {
	s := newTestServer(&fakeRAG{})
	s.pingers = pingers
	return s
}

// TestHandleHealth_OK verifies that GET /api/health returns 200 with a JSON
// body containing {"status":"ok"}.
func TestHandleHealth_OK(t *testing.T) {
	t.Parallel()

	s := newTestServer(&fakeRAG{})
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	w := httptest.NewRecorder()

	s.handleHealth(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 OK, got %d — body: %s", w.Code, w.Body.String())
	}

	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: expected application/json, got %q", ct)
	}

	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode JSON response: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status: expected %q, got %q", "ok", body["status"])
	}
}

// TestHandleReady_NoPingers verifies that /api/ready returns 200 with
// ready:true and an empty checks array when no pingers are registered.
func TestHandleReady_NoPingers(t *testing.T) {
	t.Parallel()

	s := newReadyTestServer()
	req := httptest.NewRequest(http.MethodGet, "/api/ready", nil)
	w := httptest.NewRecorder()

	s.handleReady(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d — body: %s", w.Code, w.Body.String())
	}

	var resp readyResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Ready {
		t.Errorf("expected ready:true with no pingers")
	}
	if len(resp.Checks) != 0 {
		t.Errorf("expected 0 checks, got %d", len(resp.Checks))
	}
}

// TestHandleReady_AllHealthy verifies that /api/ready returns 200 with
// ready:true when all pingers succeed.
func TestHandleReady_AllHealthy(t *testing.T) {
	t.Parallel()

	s := newReadyTestServer(
		&fakePinger{name: "embedder"},
		&fakePinger{name: "sqlite"},
	)
	req := httptest.NewRequest(http.MethodGet, "/api/ready", nil)
	w := httptest.NewRecorder()

	s.handleReady(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d — body: %s", w.Code, w.Body.String())
	}

	var resp readyResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Ready {
		t.Error("expected ready:true")
	}
	if len(resp.Checks) != 2 {
		t.Fatalf("expected 2 checks, got %d", len(resp.Checks))
	}
	for _, c := range resp.Checks {
		if !c.OK {
			t.Errorf("check %s: expected ok, got error %q", c.Name, c.Error)
		}
	}
}

// TestHandleReady_OneUnhealthy verifies that /api/ready returns 503 with
// ready:false and the failing dependency named when a probe fails.
func TestHandleReady_OneUnhealthy(t *testing.T) {
	t.Parallel()

	s := newReadyTestServer(
		&fakePinger{name: "embedder"},
		&fakePinger{name: "qdrant", err: errors.New("connection refused")},
	)
	req := httptest.NewRequest(http.MethodGet, "/api/ready", nil)
	w := httptest.NewRecorder()

	s.handleReady(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d — body: %s", w.Code, w.Body.String())
	}

	var resp readyResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Ready {
		t.Error("expected ready:false")
	}
	var failing *readyCheck
	for i := range resp.Checks {
		if resp.Checks[i].Name == "qdrant" {
			failing = &resp.Checks[i]
		}
	}
	if failing == nil {
		t.Fatal("expected a qdrant check in the response")
	}
	if failing.OK || failing.Error == "" {
		t.Errorf("expected qdrant check to carry the failure, got %+v", failing)
	}
}

// TestEmbedderPinger verifies the embedder probe against a stub.
func TestEmbedderPinger(t *testing.T) {
	t.Parallel()

	healthy := NewEmbedderPinger(pingEmbedder{vec: []float32{0.1, 0.2}}, "ollama")
	if err := healthy.Ping(t.Context()); err != nil {
		t.Errorf("healthy embedder: unexpected error %v", err)
	}
	if healthy.Name() != "ollama" {
		t.Errorf("name: expected ollama, got %q", healthy.Name())
	}

	down := NewEmbedderPinger(pingEmbedder{err: errors.New("connection refused")}, "ollama")
	if err := down.Ping(t.Context()); err == nil {
		t.Error("unreachable embedder: expected error")
	}

	empty := NewEmbedderPinger(pingEmbedder{vec: nil}, "ollama")
	if err := empty.Ping(t.Context()); err == nil {
		t.Error("empty vector: expected error")
	}
}

// pingEmbedder is a minimal rag.Embedder stub for pinger tests.
type pingEmbedder struct {
	vec []float32
	err error
}

func (p pingEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if p.err != nil {
		return nil, p.err
	}
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = p.vec
	}
	return out, nil
}

// TestSQLitePinger verifies the SQLite index location probe.
func TestSQLitePinger(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	// Directory exists, database file does not — still ready.
	p := &SQLitePinger{Path: filepath.Join(dir, "index.db")}
	if err := p.Ping(t.Context()); err != nil {
		t.Errorf("existing directory: unexpected error %v", err)
	}

	// Missing directory — not ready.
	missing := &SQLitePinger{Path: filepath.Join(dir, "nope", "index.db")}
	if err := missing.Ping(t.Context()); err == nil {
		t.Error("missing directory: expected error")
	}

	// Path whose parent is a regular file — not ready.
	file := filepath.Join(dir, "notadir")
	if err := os.WriteFile(file, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
	bad := &SQLitePinger{Path: filepath.Join(file, "index.db")}
	if err := bad.Ping(t.Context()); err == nil {
		t.Error("file as parent: expected error")
	}
}
