package driving

import (
	"context"

	"github.com/jltournay/farmer-power-knowledge/internal/core/domain"
)

// RetrievalService answers knowledge queries from the vector index.
type RetrievalService interface {
	// Search embeds the query, retrieves candidates and ranks them.
	Search(ctx context.Context, query string, opts domain.RetrievalOptions) (*domain.RankingResult, error)

	// IndexStats reports vector counts for a namespace, or all when empty.
	IndexStats(ctx context.Context, namespace string) (*domain.IndexStats, error)
}
