package driven

import (
	"context"

	"github.com/jltournay/farmer-power-knowledge/internal/core/domain"
)

// Reranker rescores candidate passages against a query with a
// cross-encoder model.
type Reranker interface {
	// Rerank returns one score per document, keyed by input index.
	// Results may arrive in any order.
	Rerank(ctx context.Context, model, query string, documents []string) ([]domain.RerankResult, error)

	// Close releases resources.
	Close() error
}
