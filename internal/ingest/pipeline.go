package ingest

import (
	"context"
	"fmt"
	"os"

	"github.com/courseai/lectio-go/internal/logging"
	"github.com/courseai/lectio-go/internal/rag"
)

// Config holds the configuration for the extraction pipeline.
type Config struct {
	// ChunkSize is the maximum number of characters per document chunk.
	// Defaults to 800 if zero.
	ChunkSize int

	// ChunkOverlap is the number of characters repeated between consecutive
	// chunks. Defaults to 100 if zero.
	ChunkOverlap int
}

// Pipeline turns lecture files into indexed-ready documents:
// extract text with page annotations, then chunk with overlap.
// Embedding and storage belong to the knowledge base layer.
type Pipeline struct {
	chunker *Chunker
}

// NewPipeline constructs a Pipeline from the given config.
func NewPipeline(cfg *Config) *Pipeline {
	if cfg == nil {
		cfg = &Config{}
	}
	size := cfg.ChunkSize
	if size <= 0 {
		size = DefaultChunkSize
	}
	overlap := cfg.ChunkOverlap
	if overlap <= 0 {
		overlap = DefaultChunkOverlap
	}
	return &Pipeline{chunker: NewChunker(size, overlap)}
}

// Documents extracts and chunks every readable lecture file in paths.
// Files that do not exist are skipped with a warning rather than failing the
// whole batch; files that exist but cannot be parsed abort with an error.
// Chunk IDs are 0-based and scoped per source file.
func (p *Pipeline) Documents(ctx context.Context, paths []string) ([]rag.Document, error) {
	log := logging.FromContext(ctx)

	var docs []rag.Document
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			log.Warn("skipping unreadable lecture file", "path", path, "error", err)
			continue
		}

		text, err := ExtractText(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("ingest: %s: %w", path, err)
		}

		chunks := p.chunker.Split(text)
		if len(chunks) == 0 {
			log.Warn("lecture file produced no text", "path", path)
			continue
		}

		source := SourceName(path)
		contentType := ContentTypeForFile(path)
		for i, chunk := range chunks {
			docs = append(docs, rag.Document{
				ID:          rag.DocumentID(source, i),
				Content:     chunk,
				Source:      source,
				ChunkID:     i,
				Size:        len(chunk),
				ContentType: contentType,
			})
		}

		log.Info("chunked lecture file", "path", path, "chunks", len(chunks))
	}

	return docs, nil
}
