package services

import (
	"context"
	"fmt"
	"sort"

	"go.opentelemetry.io/otel/attribute"

	"github.com/jltournay/farmer-power-knowledge/internal/core/domain"
	"github.com/jltournay/farmer-power-knowledge/internal/core/ports/driven"
	"github.com/jltournay/farmer-power-knowledge/internal/telemetry"
)

// DefaultTopK is the number of candidates retrieved when none is given.
const DefaultTopK = 20

// VectorIndexClient wraps a VectorIndex with record building, validation
// and retries. Chunk text never reaches the index.
type VectorIndexClient struct {
	index      driven.VectorIndex
	name       string
	dimensions int
	retry      RetryPolicy
}

// VectorIndexOption configures the vector index client.
type VectorIndexOption func(*VectorIndexClient)

// WithVectorIndexRetry sets the retry policy.
func WithVectorIndexRetry(p RetryPolicy) VectorIndexOption {
	return func(c *VectorIndexClient) {
		c.retry = p
	}
}

// WithVectorIndexName sets the provider label used in metrics and logs.
func WithVectorIndexName(name string) VectorIndexOption {
	return func(c *VectorIndexClient) {
		if name != "" {
			c.name = name
		}
	}
}

// NewVectorIndexClient creates a client that enforces vectors of the
// given dimension. A dimension of 0 skips the check.
func NewVectorIndexClient(index driven.VectorIndex, dimensions int, opts ...VectorIndexOption) *VectorIndexClient {
	c := &VectorIndexClient{
		index:      index,
		name:       "vector-index",
		dimensions: dimensions,
		retry:      DefaultRetryPolicy(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BuildRecord creates the index record for a chunk.
// The record ID is always domain.VectorID of the chunk.
func (c *VectorIndexClient) BuildRecord(chunk domain.Chunk, meta domain.DocumentMeta, values []float32) (domain.VectorRecord, error) {
	record := domain.VectorRecord{
		ID:     domain.VectorID(chunk.DocumentID, chunk.ChunkIndex),
		Values: values,
		Metadata: domain.VectorMetadata{
			DocumentID: chunk.DocumentID,
			ChunkID:    chunk.ID,
			ChunkIndex: chunk.ChunkIndex,
			Domain:     meta.Domain,
			Title:      meta.Title,
			Region:     meta.Region,
			Season:     meta.Season,
			Tags:       append([]string(nil), meta.Tags...),
			UpdatedAt:  meta.UpdatedAt,
		},
	}
	if err := c.validateRecord(record); err != nil {
		return domain.VectorRecord{}, err
	}
	return record, nil
}

// Upsert writes records, idempotent by ID. Invalid records fail the
// whole call before anything is written.
func (c *VectorIndexClient) Upsert(ctx context.Context, namespace string, records []domain.VectorRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	for _, r := range records {
		if err := c.validateRecord(r); err != nil {
			return 0, err
		}
	}

	ctx, span := telemetry.StartSpan(ctx, "vector.upsert",
		attribute.String("vector.namespace", namespace),
		attribute.Int("vector.records", len(records)),
	)

	var written int
	err := c.retry.Do(ctx, c.name, "upsert", func(ctx context.Context) error {
		n, err := c.index.Upsert(ctx, namespace, records)
		written = n
		return err
	})
	telemetry.EndSpan(span, err)
	if err != nil {
		return 0, fmt.Errorf("upsert %d vectors: %w", len(records), err)
	}
	return written, nil
}

// Query returns matches ordered by descending score. Provider order is
// kept for equal scores.
func (c *VectorIndexClient) Query(ctx context.Context, q domain.VectorQuery) ([]domain.VectorMatch, error) {
	if len(q.Vector) == 0 {
		return nil, fmt.Errorf("%w: query vector is empty", domain.ErrInvalidInput)
	}
	if c.dimensions > 0 && len(q.Vector) != c.dimensions {
		return nil, fmt.Errorf("%w: query vector has %d dimensions, index expects %d",
			domain.ErrInvalidInput, len(q.Vector), c.dimensions)
	}
	if q.TopK <= 0 {
		q.TopK = DefaultTopK
	}

	ctx, span := telemetry.StartSpan(ctx, "vector.query",
		attribute.String("vector.namespace", q.Namespace),
		attribute.Int("vector.top_k", q.TopK),
	)

	var matches []domain.VectorMatch
	err := c.retry.Do(ctx, c.name, "query", func(ctx context.Context) error {
		m, err := c.index.Query(ctx, q)
		matches = m
		return err
	})
	telemetry.EndSpan(span, err)
	if err != nil {
		return nil, fmt.Errorf("query vectors: %w", err)
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	if len(matches) > q.TopK {
		matches = matches[:q.TopK]
	}
	if matches == nil {
		matches = []domain.VectorMatch{}
	}
	return matches, nil
}

// Stats reports vector counts for a namespace, or all when empty.
func (c *VectorIndexClient) Stats(ctx context.Context, namespace string) (*domain.IndexStats, error) {
	var stats *domain.IndexStats
	err := c.retry.Do(ctx, c.name, "stats", func(ctx context.Context) error {
		s, err := c.index.Stats(ctx, namespace)
		stats = s
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("index stats: %w", err)
	}
	return stats, nil
}

func (c *VectorIndexClient) validateRecord(r domain.VectorRecord) error {
	if r.ID == "" {
		return fmt.Errorf("%w: vector record has no id", domain.ErrInvalidInput)
	}
	if len(r.Values) == 0 {
		return fmt.Errorf("%w: vector %s has no values", domain.ErrInvalidInput, r.ID)
	}
	if c.dimensions > 0 && len(r.Values) != c.dimensions {
		return fmt.Errorf("%w: vector %s has %d dimensions, index expects %d",
			domain.ErrInvalidInput, r.ID, len(r.Values), c.dimensions)
	}
	if size := r.Metadata.Size(); size > domain.MaxMetadataBytes {
		return &domain.MetadataTooLargeError{ID: r.ID, Size: size, Limit: domain.MaxMetadataBytes}
	}
	return nil
}
