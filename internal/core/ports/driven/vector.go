package driven

import (
	"context"

	"github.com/jltournay/farmer-power-knowledge/internal/core/domain"
)

// VectorIndex provides namespaced vector storage and similarity search.
type VectorIndex interface {
	// Upsert inserts or replaces records by ID within a namespace.
	// Returns the number of records written.
	Upsert(ctx context.Context, namespace string, records []domain.VectorRecord) (int, error)

	// Query returns up to TopK matches ordered by descending similarity.
	// No matches is an empty slice, not an error.
	Query(ctx context.Context, query domain.VectorQuery) ([]domain.VectorMatch, error)

	// Stats reports vector counts. An empty namespace covers all namespaces.
	Stats(ctx context.Context, namespace string) (*domain.IndexStats, error)

	// Close releases resources.
	Close() error
}
