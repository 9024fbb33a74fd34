package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jltournay/farmer-power-knowledge/internal/core/domain"
	"github.com/jltournay/farmer-power-knowledge/internal/core/ports/driven"
	"github.com/jltournay/farmer-power-knowledge/internal/core/ports/driving"
	"github.com/jltournay/farmer-power-knowledge/internal/logger"
)

// Ensure RetrievalService implements the interface.
var _ driving.RetrievalService = (*RetrievalService)(nil)

// RetrievalService answers queries: embed in query mode, search the
// index, hydrate chunk text, rank.
type RetrievalService struct {
	embedder   *EmbeddingClient
	index      *VectorIndexClient
	chunkStore driven.ChunkStore
	ranker     *RankingEngine
	settings   driven.RankingConfigProvider
	namespace  string
}

// NewRetrievalService creates a retrieval service.
// The settings provider is optional; without it default ranking applies.
func NewRetrievalService(
	embedder *EmbeddingClient,
	index *VectorIndexClient,
	chunkStore driven.ChunkStore,
	ranker *RankingEngine,
	settings driven.RankingConfigProvider,
	namespace string,
) *RetrievalService {
	if ranker == nil {
		ranker = NewRankingEngine()
	}
	return &RetrievalService{
		embedder:   embedder,
		index:      index,
		chunkStore: chunkStore,
		ranker:     ranker,
		settings:   settings,
		namespace:  namespace,
	}
}

// Search embeds the query, retrieves candidates and ranks them.
func (s *RetrievalService) Search(
	ctx context.Context, query string, opts domain.RetrievalOptions,
) (*domain.RankingResult, error) {
	logger.Section("Retrieval")

	query = strings.TrimSpace(query)
	if query == "" {
		logger.Debug("empty query, returning no results")
		return &domain.RankingResult{Matches: []domain.RankedMatch{}}, nil
	}

	cfg := s.rankingConfig(opts)
	if err := validateStruct(cfg); err != nil {
		return nil, err
	}

	namespace := opts.Namespace
	if namespace == "" {
		namespace = s.namespace
	}
	topK := opts.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}

	vector, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	hits, err := s.index.Query(ctx, domain.VectorQuery{
		Vector:    vector,
		TopK:      topK,
		Namespace: namespace,
		Filter:    opts.Filter,
	})
	if err != nil {
		return nil, err
	}
	logger.Debug("vector hits", "namespace", namespace, "top_k", topK, "hits", len(hits))

	matches, err := s.hydrate(ctx, hits)
	if err != nil {
		return nil, fmt.Errorf("hydrate matches: %w", err)
	}

	return s.ranker.Rank(ctx, query, matches, cfg)
}

// IndexStats reports vector counts for a namespace, or all when empty.
func (s *RetrievalService) IndexStats(ctx context.Context, namespace string) (*domain.IndexStats, error) {
	return s.index.Stats(ctx, namespace)
}

func (s *RetrievalService) rankingConfig(opts domain.RetrievalOptions) domain.RankingConfig {
	switch {
	case opts.Ranking != nil:
		return opts.Ranking.Clone()
	case s.settings != nil:
		return s.settings.RankingConfig()
	default:
		return domain.DefaultRankingConfig()
	}
}

// hydrate joins vector hits with chunk text. Hits whose chunk no longer
// exists are skipped.
func (s *RetrievalService) hydrate(ctx context.Context, hits []domain.VectorMatch) ([]domain.RetrievalMatch, error) {
	matches := make([]domain.RetrievalMatch, 0, len(hits))
	for _, hit := range hits {
		chunkID := hit.Metadata.ChunkID
		if chunkID == "" {
			logger.Debug("vector hit without chunk id", "vector_id", hit.ID)
			continue
		}

		chunk, err := s.chunkStore.GetChunk(ctx, chunkID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				logger.Debug("chunk gone, skipping hit", "chunk_id", chunkID)
				continue
			}
			return nil, fmt.Errorf("get chunk %s: %w", chunkID, err)
		}

		matches = append(matches, domain.RetrievalMatch{
			ChunkID:    chunk.ID,
			DocumentID: chunk.DocumentID,
			ChunkIndex: chunk.ChunkIndex,
			VectorID:   hit.ID,
			Content:    chunk.Content,
			Title:      hit.Metadata.Title,
			Domain:     hit.Metadata.Domain,
			Score:      hit.Score,
			UpdatedAt:  hit.Metadata.UpdatedAt,
		})
	}
	return matches, nil
}
