package driven

import (
	"context"

	"github.com/jltournay/farmer-power-knowledge/internal/core/domain"
)

// EmbeddingProvider generates vector embeddings from text.
//
// Note: This is separate from VectorIndex which stores and searches vectors.
// EmbeddingProvider generates vectors; VectorIndex stores them.
//
// Implementations may include:
//   - OpenAI-compatible endpoints (text-embedding-3-small, multilingual-e5)
//   - Ollama (nomic-embed-text, all-minilm)
//   - A local hashing embedder for offline runs
//
// Providers return errors classified with the domain taxonomy:
// ErrRateLimited and ErrEmbeddingUnavailable are retried by the caller,
// ErrInvalidInput is not.
type EmbeddingProvider interface {
	// Embed generates embeddings for texts in a single provider call.
	// The caller guarantees len(texts) <= MaxBatchSize().
	Embed(ctx context.Context, texts []string, inputType domain.InputType, truncate domain.TruncateMode) (*EmbeddingResponse, error)

	// MaxBatchSize returns the most texts accepted by one Embed call.
	MaxBatchSize() int

	// Dimensions returns the embedding vector size (e.g., 384, 1024, 1536).
	// This is determined by the model and must match VectorIndex configuration.
	Dimensions() int

	// ModelName returns the name of the embedding model being used.
	ModelName() string

	// Ping validates the service is reachable by making a lightweight test request.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}

// EmbeddingResponse is the result of one provider call.
type EmbeddingResponse struct {
	// Embeddings are in the same order as the input texts.
	Embeddings [][]float32

	// Model is the model that produced the embeddings.
	Model string

	// TokensUsed is the provider-reported token usage, 0 if unknown.
	TokensUsed int
}
