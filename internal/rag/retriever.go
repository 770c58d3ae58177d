package rag

import (
	"context"
	"fmt"
)

// QueryRetriever answers "which chunks matter for this question" by pairing
// the collection's Embedder with its VectorStore: the question is embedded
// with the same model the chunks were, then ranked by cosine similarity.
// It is the retrieval half of every answer the assistant produces.
type QueryRetriever struct {
	// embedder turns the question into a dense vector.
	embedder Embedder

	// store ranks stored chunks against the question vector.
	store VectorStore

	// defaultTopK is used when Retrieve is called with a non-positive k.
	defaultTopK int
}

// NewRetriever wires an Embedder and a VectorStore into a QueryRetriever.
// defaultTopK is the result count when a caller passes topK <= 0.
func NewRetriever(embedder Embedder, store VectorStore, defaultTopK int) (*QueryRetriever, error) {
	if embedder == nil {
		return nil, fmt.Errorf("rag: embedder must not be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("rag: store must not be nil")
	}
	if defaultTopK <= 0 {
		defaultTopK = 5
	}
	return &QueryRetriever{
		embedder:    embedder,
		store:       store,
		defaultTopK: defaultTopK,
	}, nil
}

// Retrieve embeds the question and returns the topK most similar chunks,
// best-first. topK <= 0 falls back to the configured default.
func (r *QueryRetriever) Retrieve(ctx context.Context, query string, topK int) ([]Document, error) {
	if topK <= 0 {
		topK = r.defaultTopK
	}

	embeddings, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("rag: embed question: %w", err)
	}
	if len(embeddings) != 1 {
		return nil, fmt.Errorf("rag: expected 1 question embedding, got %d", len(embeddings))
	}

	docs, err := r.store.Search(ctx, embeddings[0], topK)
	if err != nil {
		return nil, fmt.Errorf("rag: search chunks: %w", err)
	}
	return docs, nil
}
