package rag

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	_ "modernc.org/sqlite" // register "sqlite" driver
)

// SQLiteStore implements VectorStore backed by a single SQLite database file.
// Similarity search is brute-force cosine over the collection, which is the
// right trade-off for a single-course knowledge base: no external service,
// durable on local disk, and every Upsert is committed before returning.
type SQLiteStore struct {
	// db is the underlying database connection pool.
	db *sql.DB

	// collection is the fixed collection name rows are keyed by.
	collection string
}

// SQLiteExists reports whether a persisted store exists at path. It checks
// only for the database file — an existing but empty collection still counts
// as present.
func SQLiteExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// OpenSQLite opens (or creates) a SQLite-backed store at the given path and
// runs the schema migration. The parent directory is created if needed.
// Use ":memory:" for an in-memory database in tests.
func OpenSQLite(path, collection string) (*SQLiteStore, error) {
	if collection == "" {
		return nil, fmt.Errorf("rag: collection name must not be empty")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("rag: could not create store directory: %w", err)
		}
	}

	// WAL mode improves concurrent read performance and is safe for single-host use.
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("rag: open %s: %w", path, err)
	}
	// Limit to a single writer connection to avoid SQLITE_BUSY under concurrent writes.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db, collection: collection}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// migrate creates the schema if it does not already exist.
func (s *SQLiteStore) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS chunks (
    id           TEXT    NOT NULL,
    collection   TEXT    NOT NULL,
    source       TEXT    NOT NULL,
    chunk_id     INTEGER NOT NULL,
    size         INTEGER NOT NULL,
    content_type TEXT    NOT NULL,
    content      TEXT    NOT NULL,
    embedding    BLOB    NOT NULL,
    PRIMARY KEY (collection, id)
);
CREATE INDEX IF NOT EXISTS idx_chunks_collection ON chunks (collection);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("rag: migrate: %w", err)
	}
	return nil
}

// Upsert stores a batch of documents with their embeddings in one transaction
// so a crash mid-batch never leaves a partially written collection.
func (s *SQLiteStore) Upsert(ctx context.Context, docs []Document, embeddings [][]float32) error {
	if len(docs) != len(embeddings) {
		return fmt.Errorf("rag: %d documents but %d embeddings", len(docs), len(embeddings))
	}
	if len(docs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("rag: begin upsert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const q = `INSERT OR REPLACE INTO chunks
    (id, collection, source, chunk_id, size, content_type, content, embedding)
    VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		return fmt.Errorf("rag: prepare upsert: %w", err)
	}
	defer stmt.Close()

	for i, d := range docs {
		id := d.ID
		if id == "" {
			id = DocumentID(d.Source, d.ChunkID)
		}
		if len(embeddings[i]) == 0 {
			return fmt.Errorf("rag: empty embedding for chunk %s#%d", d.Source, d.ChunkID)
		}
		blob := encodeEmbedding(embeddings[i])
		if _, err := stmt.ExecContext(ctx, id, s.collection, d.Source, d.ChunkID,
			d.Size, d.ContentType, d.Content, blob); err != nil {
			return fmt.Errorf("rag: upsert chunk %s#%d: %w", d.Source, d.ChunkID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("rag: commit upsert: %w", err)
	}
	return nil
}

// scored pairs a document with its similarity and insertion order for ranking.
type scored struct {
	doc   Document
	score float64
	rowid int64
}

// Search scans the collection and returns the top-k documents by cosine
// similarity, best-first. Ties are broken by insertion rowid so the result
// order is deterministic for a fixed store state.
func (s *SQLiteStore) Search(ctx context.Context, queryEmbedding []float32, topK int) ([]Document, error) {
	if topK <= 0 {
		return nil, nil
	}

	const q = `SELECT rowid, id, source, chunk_id, size, content_type, content, embedding
    FROM chunks WHERE collection = ?`
	rows, err := s.db.QueryContext(ctx, q, s.collection)
	if err != nil {
		return nil, fmt.Errorf("rag: search query: %w", err)
	}
	defer rows.Close()

	var candidates []scored
	for rows.Next() {
		var (
			d     Document
			rowid int64
			blob  []byte
		)
		if err := rows.Scan(&rowid, &d.ID, &d.Source, &d.ChunkID, &d.Size,
			&d.ContentType, &d.Content, &blob); err != nil {
			return nil, fmt.Errorf("rag: search scan: %w", err)
		}
		emb, err := decodeEmbedding(blob)
		if err != nil {
			return nil, err
		}
		sim, err := cosineSimilarity(queryEmbedding, emb)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, scored{doc: d, score: sim, rowid: rowid})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rag: search rows: %w", err)
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].rowid < candidates[j].rowid
	})

	if len(candidates) > topK {
		candidates = candidates[:topK]
	}
	out := make([]Document, 0, len(candidates))
	for _, c := range candidates {
		c.doc.Score = float32(c.score)
		out = append(out, c.doc)
	}
	return out, nil
}

// Count returns the total number of documents in the collection.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM chunks WHERE collection = ?`, s.collection).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("rag: count: %w", err)
	}
	return n, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
