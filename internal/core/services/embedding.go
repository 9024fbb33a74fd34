package services

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"

	"github.com/jltournay/farmer-power-knowledge/internal/core/domain"
	"github.com/jltournay/farmer-power-knowledge/internal/core/ports/driven"
	"github.com/jltournay/farmer-power-knowledge/internal/logger"
	"github.com/jltournay/farmer-power-knowledge/internal/telemetry"
)

// Default embedding client values.
const (
	DefaultEmbeddingBatchSize = 96
	DefaultMaxTextLength      = 8192
)

// EmbeddingClient wraps an EmbeddingProvider with input checks, batching,
// throttling and retries.
type EmbeddingClient struct {
	provider      driven.EmbeddingProvider
	batchSize     int
	maxTextLength int
	truncate      domain.TruncateMode
	retry         RetryPolicy
	limiter       *RateLimiter
}

// EmbeddingOption configures the embedding client.
type EmbeddingOption func(*EmbeddingClient)

// WithEmbeddingBatchSize sets the number of texts per provider call.
// It is capped by the provider's MaxBatchSize.
func WithEmbeddingBatchSize(size int) EmbeddingOption {
	return func(c *EmbeddingClient) {
		if size > 0 {
			c.batchSize = size
		}
	}
}

// WithMaxTextLength sets the per-text length limit in characters.
func WithMaxTextLength(n int) EmbeddingOption {
	return func(c *EmbeddingClient) {
		if n > 0 {
			c.maxTextLength = n
		}
	}
}

// WithPassageTruncate sets the truncate mode used by EmbedPassages.
func WithPassageTruncate(mode domain.TruncateMode) EmbeddingOption {
	return func(c *EmbeddingClient) {
		if mode.IsValid() {
			c.truncate = mode
		}
	}
}

// WithEmbeddingRetry sets the retry policy.
func WithEmbeddingRetry(p RetryPolicy) EmbeddingOption {
	return func(c *EmbeddingClient) {
		c.retry = p
	}
}

// WithEmbeddingRateLimit throttles provider calls.
func WithEmbeddingRateLimit(requestsPerSecond float64, burst int) EmbeddingOption {
	return func(c *EmbeddingClient) {
		c.limiter = NewRateLimiter(requestsPerSecond, burst)
	}
}

// NewEmbeddingClient creates an embedding client for the provider.
func NewEmbeddingClient(provider driven.EmbeddingProvider, opts ...EmbeddingOption) *EmbeddingClient {
	c := &EmbeddingClient{
		provider:      provider,
		batchSize:     DefaultEmbeddingBatchSize,
		maxTextLength: DefaultMaxTextLength,
		truncate:      domain.TruncateEnd,
		retry:         DefaultRetryPolicy(),
		limiter:       NewRateLimiter(0, 1),
	}

	for _, opt := range opts {
		opt(c)
	}

	if limit := provider.MaxBatchSize(); limit > 0 && c.batchSize > limit {
		c.batchSize = limit
	}

	return c
}

// Dimensions returns the provider's vector size.
func (c *EmbeddingClient) Dimensions() int {
	return c.provider.Dimensions()
}

// ModelName returns the provider's model name.
func (c *EmbeddingClient) ModelName() string {
	return c.provider.ModelName()
}

// BatchSize returns the effective batch size.
func (c *EmbeddingClient) BatchSize() int {
	return c.batchSize
}

// Embed produces one embedding per input text, in input order.
// Requests larger than the batch size are split into several provider
// calls. A batch that still fails after retries aborts the request with
// a *domain.BatchError.
func (c *EmbeddingClient) Embed(ctx context.Context, req domain.EmbedRequest) (*domain.EmbedResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	texts, err := c.prepare(req.Texts, req.Truncate)
	if err != nil {
		return nil, err
	}

	ctx, span := telemetry.StartSpan(ctx, "embedding.embed",
		attribute.String("embedding.model", c.provider.ModelName()),
		attribute.String("embedding.input_type", string(req.InputType)),
		attribute.Int("embedding.texts", len(texts)),
	)

	result := &domain.EmbedResult{
		Embeddings: make([][]float32, 0, len(texts)),
		Model:      c.provider.ModelName(),
		Dimensions: c.provider.Dimensions(),
	}

	for batch, start := 0, 0; start < len(texts); batch, start = batch+1, start+c.batchSize {
		end := start + c.batchSize
		if end > len(texts) {
			end = len(texts)
		}

		resp, err := c.embedBatch(ctx, texts[start:end], req.InputType, req.Truncate)
		if err != nil {
			err = &domain.BatchError{BatchIndex: batch, Start: start, End: end, Err: err}
			telemetry.EndSpan(span, err)
			return nil, err
		}

		result.Embeddings = append(result.Embeddings, resp.Embeddings...)
		result.TokensTotal += resp.TokensUsed
		if resp.Model != "" {
			result.Model = resp.Model
		}
	}

	if result.Dimensions == 0 && len(result.Embeddings) > 0 {
		result.Dimensions = len(result.Embeddings[0])
	}

	logger.Debug("embedded texts",
		"model", result.Model, "input_type", req.InputType,
		"texts", len(texts), "tokens", result.TokensTotal)
	telemetry.EndSpan(span, nil)
	return result, nil
}

// EmbedPassages embeds chunk text for indexing.
func (c *EmbeddingClient) EmbedPassages(ctx context.Context, texts []string) ([][]float32, error) {
	result, err := c.Embed(ctx, domain.EmbedRequest{
		Texts:     texts,
		InputType: domain.InputPassage,
		Truncate:  c.truncate,
	})
	if err != nil {
		return nil, err
	}
	return result.Embeddings, nil
}

// EmbedQuery embeds a search query.
func (c *EmbeddingClient) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	result, err := c.Embed(ctx, domain.EmbedRequest{
		Texts:     []string{query},
		InputType: domain.InputQuery,
		Truncate:  domain.TruncateEnd,
	})
	if err != nil {
		return nil, err
	}
	return result.Embeddings[0], nil
}

// prepare enforces the length limit, truncating or rejecting texts.
func (c *EmbeddingClient) prepare(texts []string, mode domain.TruncateMode) ([]string, error) {
	out := make([]string, len(texts))
	for i, text := range texts {
		n := utf8.RuneCountInString(text)
		if n <= c.maxTextLength {
			out[i] = text
			continue
		}
		if mode == domain.TruncateNone {
			return nil, &domain.TextTooLongError{Index: i, Length: n, Max: c.maxTextLength}
		}
		out[i] = truncateRunes(text, c.maxTextLength)
	}
	return out, nil
}

// embedBatch makes one provider call with throttling and retries.
func (c *EmbeddingClient) embedBatch(
	ctx context.Context,
	texts []string,
	inputType domain.InputType,
	truncate domain.TruncateMode,
) (*driven.EmbeddingResponse, error) {
	var resp *driven.EmbeddingResponse
	err := c.retry.Do(ctx, c.provider.ModelName(), "embed", func(ctx context.Context) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		r, err := c.provider.Embed(ctx, texts, inputType, truncate)
		if err != nil {
			if errors.Is(err, domain.ErrRateLimited) {
				c.limiter.Pause(c.retry.normalised().InitialBackoff)
			}
			return err
		}
		if len(r.Embeddings) != len(texts) {
			return fmt.Errorf("%w: provider returned %d embeddings for %d texts",
				domain.ErrEmbeddingUnavailable, len(r.Embeddings), len(texts))
		}
		resp = r
		return nil
	})
	return resp, err
}

// truncateRunes keeps the first n runes of s.
func truncateRunes(s string, n int) string {
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
