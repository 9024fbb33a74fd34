package driven

import (
	"context"

	"github.com/jltournay/farmer-power-knowledge/internal/core/domain"
)

// Chunker splits text into ordered chunks.
// Implementations are deterministic: the same text and configuration
// always produce the same boundaries.
type Chunker interface {
	// Name returns the chunker name for logging and configuration.
	Name() string

	// Chunk splits text. Returned chunks carry content, section title,
	// counts and a 0-based index. Empty text yields no chunks.
	Chunk(text string) []domain.Chunk
}

// DocumentChunker turns a document version into identified chunks.
type DocumentChunker interface {
	// Process chunks the document content and stamps each chunk with
	// the document identity and its deterministic ID.
	Process(ctx context.Context, doc *domain.Document) ([]domain.Chunk, error)
}
