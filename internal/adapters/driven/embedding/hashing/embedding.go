// Package hashing provides a deterministic local embedding provider.
//
// Texts are tokenised into lower-cased words and each word is hashed into
// a fixed number of buckets (the "hashing trick"). Vectors are L2
// normalised, so cosine similarity reflects shared vocabulary. It needs no
// network and is used for offline runs and tests.
package hashing

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	"github.com/jltournay/farmer-power-knowledge/internal/core/domain"
	"github.com/jltournay/farmer-power-knowledge/internal/core/ports/driven"
)

// Ensure EmbeddingService implements the interface.
var _ driven.EmbeddingProvider = (*EmbeddingService)(nil)

// Default configuration values.
const (
	DefaultDimensions   = 384
	DefaultMaxBatchSize = 256
	ModelName           = "hashing-v1"
)

// markerWeight is the weight of the input type feature relative to one word.
const markerWeight = 0.25

// EmbeddingService generates feature-hashed embeddings.
type EmbeddingService struct {
	dimensions   int
	maxBatchSize int
}

// NewEmbeddingService creates a hashing embedder. Non-positive values use defaults.
func NewEmbeddingService(dimensions, maxBatchSize int) *EmbeddingService {
	if dimensions <= 0 {
		dimensions = DefaultDimensions
	}
	if maxBatchSize <= 0 {
		maxBatchSize = DefaultMaxBatchSize
	}
	return &EmbeddingService{dimensions: dimensions, maxBatchSize: maxBatchSize}
}

// Embed hashes every text. The input type contributes one marker feature so
// passage and query vectors of the same text differ but remain close.
func (s *EmbeddingService) Embed(
	ctx context.Context,
	texts []string,
	inputType domain.InputType,
	_ domain.TruncateMode,
) (*driven.EmbeddingResponse, error) {
	embeddings := make([][]float32, len(texts))
	tokens := 0
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		words := Tokenize(text)
		tokens += len(words)
		embeddings[i] = s.vector(words, inputType)
	}
	return &driven.EmbeddingResponse{
		Embeddings: embeddings,
		Model:      ModelName,
		TokensUsed: tokens,
	}, nil
}

func (s *EmbeddingService) vector(words []string, inputType domain.InputType) []float32 {
	vec := make([]float64, s.dimensions)
	for _, w := range words {
		idx, sign := s.bucket(w)
		vec[idx] += sign
	}
	idx, sign := s.bucket("\x00" + string(inputType))
	vec[idx] += sign * markerWeight

	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	out := make([]float32, s.dimensions)
	if norm == 0 {
		return out
	}
	norm = math.Sqrt(norm)
	for i, v := range vec {
		out[i] = float32(v / norm)
	}
	return out
}

// bucket maps a feature to an index and a sign. The sign keeps collisions
// from always adding up.
func (s *EmbeddingService) bucket(feature string) (int, float64) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(feature))
	sum := h.Sum64()
	sign := 1.0
	if sum&(1<<63) != 0 {
		sign = -1.0
	}
	return int(sum % uint64(s.dimensions)), sign
}

// Tokenize splits text into lower-cased runs of letters and digits.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// MaxBatchSize returns the most texts accepted by one Embed call.
func (s *EmbeddingService) MaxBatchSize() int {
	return s.maxBatchSize
}

// Dimensions returns the embedding vector size.
func (s *EmbeddingService) Dimensions() int {
	return s.dimensions
}

// ModelName returns the name of the embedding model.
func (s *EmbeddingService) ModelName() string {
	return ModelName
}

// Ping always succeeds.
func (s *EmbeddingService) Ping(context.Context) error {
	return nil
}

// Close releases resources.
func (s *EmbeddingService) Close() error {
	return nil
}
