package driven

import (
	"context"

	"github.com/jltournay/farmer-power-knowledge/internal/core/domain"
)

// ChunkStore persists chunks per document version. It is the source of
// truth for chunk text; the vector index stores only metadata.
type ChunkStore interface {
	// SaveChunks stores chunks in bulk, replacing any with the same ID.
	SaveChunks(ctx context.Context, chunks []domain.Chunk) error

	// GetChunks retrieves all chunks of a document version ordered by index.
	GetChunks(ctx context.Context, documentID string, version int) ([]domain.Chunk, error)

	// GetChunk retrieves a specific chunk by ID.
	// Returns domain.ErrNotFound if it does not exist.
	GetChunk(ctx context.Context, id string) (*domain.Chunk, error)

	// DeleteChunks removes all chunks of a document version.
	// Returns the number of chunks removed.
	DeleteChunks(ctx context.Context, documentID string, version int) (int, error)

	// DeleteOlderVersions removes the chunks of every version of the
	// document below version. Returns the number of chunks removed.
	DeleteOlderVersions(ctx context.Context, documentID string, version int) (int, error)

	// SetVectorRef records the vector ID of a stored chunk.
	SetVectorRef(ctx context.Context, chunkID, vectorRef string) error
}
