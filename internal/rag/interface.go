// Package rag defines the interfaces for retrieval-augmented generation
// components: vector storage, chunk retrieval, and embedding.
// Concrete implementations (SQLite, Qdrant) satisfy these interfaces so the
// answering layer never depends on a specific backend.
package rag

import (
	"context"
	"crypto/sha256"
	"fmt"
)

// Document represents one indexed chunk of course material.
type Document struct {
	// ID is the unique identifier for this chunk within the collection.
	ID string

	// Content is the raw chunk text.
	Content string

	// Source is the originating file name (e.g. "syllabus.pdf").
	Source string

	// ChunkID is the 0-based position of this chunk within its source
	// document. It is only unique per source — pair it with Source.
	ChunkID int

	// Size is the chunk length in characters at indexing time.
	Size int

	// ContentType tags the kind of material the chunk came from
	// (e.g. "lecture_notes", "slides").
	ContentType string

	// Score is the similarity score assigned during retrieval.
	// Zero value means the score was not computed.
	Score float32
}

// DocumentID generates the deterministic collection-wide identifier for a
// chunk from its source file name and per-source chunk index.
func DocumentID(source string, chunkID int) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("%s#%d", source, chunkID)))
	return fmt.Sprintf("%x", h[:16])
}

// VectorStore is the interface for persisting and searching chunk embeddings.
// Implementations must be safe to call from multiple goroutines.
type VectorStore interface {
	// Upsert stores a batch of documents with their pre-computed embeddings.
	// The embeddings slice must be parallel to docs — embeddings[i] is the
	// vector for docs[i]. The write is atomic: either every document is
	// persisted or none are.
	Upsert(ctx context.Context, docs []Document, embeddings [][]float32) error

	// Search returns the top-k documents most similar to queryEmbedding,
	// ordered best-first. It never returns more than k results and never
	// applies a distance cutoff — weak matches are still returned. Ties are
	// broken by insertion order so results are stable for a fixed store.
	Search(ctx context.Context, queryEmbedding []float32, topK int) ([]Document, error)

	// Count returns the total number of documents in the collection.
	Count(ctx context.Context) (int, error)

	// Close releases any resources held by the store.
	Close() error
}

// Embedder is the interface for converting text into dense vector embeddings.
// The same embedder must be used at index-build time and query time for a
// given collection; mixing models is undefined behaviour.
// Implementations must be safe to call from multiple goroutines.
type Embedder interface {
	// Embed converts a batch of texts into their corresponding embeddings.
	// The returned slice is parallel to the input slice.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Retriever is the high-level interface used by the answer generator to
// fetch relevant chunks for a question. It combines embedding and vector
// search. Implementations must be safe to call from multiple goroutines.
type Retriever interface {
	// Retrieve returns the top-k most relevant documents for the query.
	Retrieve(ctx context.Context, query string, topK int) ([]Document, error)
}
