// Package ai provides factory functions for creating the embedding provider
// and vector index adapters named in the config file.
package ai

import (
	"context"
	"fmt"
	"time"

	"github.com/jltournay/farmer-power-knowledge/internal/adapters/driven/config/file"
	"github.com/jltournay/farmer-power-knowledge/internal/adapters/driven/embedding/hashing"
	ollamaembed "github.com/jltournay/farmer-power-knowledge/internal/adapters/driven/embedding/ollama"
	openaiembed "github.com/jltournay/farmer-power-knowledge/internal/adapters/driven/embedding/openai"
	vectormemory "github.com/jltournay/farmer-power-knowledge/internal/adapters/driven/vector/memory"
	"github.com/jltournay/farmer-power-knowledge/internal/adapters/driven/vector/qdrant"
	"github.com/jltournay/farmer-power-knowledge/internal/core/domain"
	"github.com/jltournay/farmer-power-knowledge/internal/core/ports/driven"
)

// pingTimeout is the maximum time to wait for service connectivity validation.
const pingTimeout = 5 * time.Second

// InitResult contains the result of AI service initialisation.
type InitResult struct {
	EmbeddingProvider driven.EmbeddingProvider
	VectorIndex       driven.VectorIndex
	Warnings          []string // Non-fatal issues found while connecting.
}

// Close releases all resources held by InitResult.
func (r *InitResult) Close() error {
	var firstErr error
	if r.VectorIndex != nil {
		firstErr = r.VectorIndex.Close()
	}
	if r.EmbeddingProvider != nil {
		if err := r.EmbeddingProvider.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Init creates the embedding provider and the vector index sized to its
// dimensions. An unreachable embedding provider is reported as a warning
// rather than an error so commands that never embed keep working.
func Init(ctx context.Context, embedding file.EmbeddingConfig, index file.VectorIndexConfig) (*InitResult, error) {
	provider, err := CreateEmbeddingProvider(embedding)
	if err != nil {
		return nil, err
	}

	result := &InitResult{EmbeddingProvider: provider}
	if err := ValidateEmbeddingProvider(ctx, provider); err != nil {
		result.Warnings = append(result.Warnings, err.Error())
	}

	result.VectorIndex, err = CreateVectorIndex(index, provider.Dimensions())
	if err != nil {
		_ = provider.Close()
		return nil, err
	}
	if index.Provider == "memory" {
		result.Warnings = append(result.Warnings, "memory vector index: vectors are lost when the process exits")
	}
	return result, nil
}

// ValidateEmbeddingProvider pings the provider with a short deadline.
func ValidateEmbeddingProvider(ctx context.Context, provider driven.EmbeddingProvider) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := provider.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %s unreachable: %w", domain.ErrEmbeddingUnavailable, provider.ModelName(), err)
	}
	return nil
}

// CreateEmbeddingProvider creates the embedding provider named by cfg.
func CreateEmbeddingProvider(cfg file.EmbeddingConfig) (driven.EmbeddingProvider, error) {
	switch cfg.Provider {
	case "ollama":
		return ollamaembed.NewEmbeddingService(ollamaembed.Config{
			BaseURL:       cfg.BaseURL,
			Model:         cfg.Model,
			Timeout:       cfg.Timeout.Duration,
			Dimensions:    cfg.Dimensions,
			InputPrefixes: cfg.InputPrefixes,
		}), nil

	case "openai":
		return openaiembed.NewEmbeddingService(openaiembed.Config{
			APIKey:        cfg.APIKey,
			BaseURL:       cfg.BaseURL,
			Model:         cfg.Model,
			Timeout:       cfg.Timeout.Duration,
			Dimensions:    cfg.Dimensions,
			InputPrefixes: cfg.InputPrefixes,
		})

	case "hashing":
		return hashing.NewEmbeddingService(cfg.Dimensions, 0), nil

	default:
		return nil, fmt.Errorf("%w: unsupported embedding provider: %s", domain.ErrInvalidInput, cfg.Provider)
	}
}

// CreateVectorIndex creates the vector index named by cfg.
func CreateVectorIndex(cfg file.VectorIndexConfig, dimension int) (driven.VectorIndex, error) {
	switch cfg.Provider {
	case "qdrant":
		return qdrant.NewIndex(qdrant.Config{
			URL:        cfg.URL,
			APIKey:     cfg.APIKey,
			Collection: cfg.Collection,
			Dimension:  dimension,
			Timeout:    cfg.Timeout.Duration,
		})

	case "memory":
		return vectormemory.NewIndex(dimension), nil

	default:
		return nil, fmt.Errorf("%w: unsupported vector index provider: %s", domain.ErrInvalidInput, cfg.Provider)
	}
}
