package index

import (
	"context"
	"fmt"
	"os"

	"github.com/courseai/lectio-go/internal/rag"
)

// sqliteSidecars are the auxiliary files SQLite keeps next to a database.
var sqliteSidecars = []string{"-wal", "-shm"}

// SQLiteBackend persists the collection in a single SQLite database file at
// a fixed path. This is the default backend: existence is a plain file
// check, so Absent vs Unloaded is decided without opening anything.
type SQLiteBackend struct {
	// Path is the database file location.
	Path string
	// Collection is the fixed collection name within the database.
	Collection string
}

// Exists reports whether the database file is present.
func (b *SQLiteBackend) Exists(_ context.Context) (bool, error) {
	return rag.SQLiteExists(b.Path), nil
}

// Begin opens a staged database next to the live one. The live file is not
// touched until Commit renames the staged file over it.
func (b *SQLiteBackend) Begin(_ context.Context) (Staging, error) {
	staged := b.Path + ".staging"
	if err := removeSQLiteFiles(staged); err != nil {
		return nil, fmt.Errorf("index: remove stale staging database: %w", err)
	}
	store, err := rag.OpenSQLite(staged, b.Collection)
	if err != nil {
		return nil, err
	}
	return &sqliteStaging{live: b.Path, path: staged, collection: b.Collection, store: store}, nil
}

// Open opens the existing database file without modifying it.
func (b *SQLiteBackend) Open(_ context.Context) (rag.VectorStore, error) {
	if !rag.SQLiteExists(b.Path) {
		return nil, ErrAbsent
	}
	return rag.OpenSQLite(b.Path, b.Collection)
}

// sqliteStaging is a fresh database being filled at a side path. Commit swaps
// it over the live path with an atomic rename; Abort deletes it and leaves
// the live database untouched.
type sqliteStaging struct {
	live       string
	path       string
	collection string
	store      *rag.SQLiteStore
}

func (s *sqliteStaging) Store() rag.VectorStore { return s.store }

func (s *sqliteStaging) Commit(_ context.Context) (rag.VectorStore, error) {
	// Closing checkpoints the WAL so the staged file is self-contained.
	if err := s.store.Close(); err != nil {
		return nil, fmt.Errorf("index: close staged database: %w", err)
	}
	// A leftover WAL of the previous database would be replayed against the
	// new file on open, so the sidecars must go before the rename.
	for _, suffix := range sqliteSidecars {
		if err := os.Remove(s.live + suffix); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("index: remove stale sidecar: %w", err)
		}
	}
	if err := os.Rename(s.path, s.live); err != nil {
		return nil, fmt.Errorf("index: publish staged database: %w", err)
	}
	return rag.OpenSQLite(s.live, s.collection)
}

func (s *sqliteStaging) Abort() error {
	_ = s.store.Close()
	if err := removeSQLiteFiles(s.path); err != nil {
		return fmt.Errorf("index: remove staged database: %w", err)
	}
	return nil
}

// removeSQLiteFiles deletes a database file and its sidecars, tolerating
// files that never existed.
func removeSQLiteFiles(path string) error {
	for _, suffix := range append([]string{""}, sqliteSidecars...) {
		if err := os.Remove(path + suffix); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

// QdrantBackend persists the collection in a Qdrant instance. Used when the
// index should live in a shared vector database instead of a local file.
type QdrantBackend struct {
	// Config holds the Qdrant connection and collection settings.
	Config *rag.QdrantConfig
}

// Exists reports whether the named collection exists in Qdrant.
func (b *QdrantBackend) Exists(ctx context.Context) (bool, error) {
	return rag.QdrantCollectionExists(ctx, b.Config)
}

// Begin stages the next generation collection; the live one keeps serving
// until Commit promotes the staged generation behind the public alias.
func (b *QdrantBackend) Begin(ctx context.Context) (Staging, error) {
	return rag.BeginQdrantStaging(ctx, b.Config)
}

// Open connects to the existing collection, failing if it does not exist.
func (b *QdrantBackend) Open(ctx context.Context) (rag.VectorStore, error) {
	exists, err := b.Exists(ctx)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrAbsent
	}
	return rag.NewQdrantStore(ctx, b.Config)
}
