// Package memory provides an in-process vector index using brute-force
// cosine similarity. Suitable for tests, offline runs and small corpora.
package memory

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"slices"
	"sync"

	"github.com/jltournay/farmer-power-knowledge/internal/core/domain"
	"github.com/jltournay/farmer-power-knowledge/internal/core/ports/driven"
)

// Verify interface compliance.
var _ driven.VectorIndex = (*Index)(nil)

// Index is a namespaced in-memory vector index.
type Index struct {
	mu         sync.RWMutex
	dimension  int
	namespaces map[string]map[string]domain.VectorRecord
}

// NewIndex creates an empty index. A dimension of 0 is fixed by the first
// upsert.
func NewIndex(dimension int) *Index {
	return &Index{
		dimension:  dimension,
		namespaces: make(map[string]map[string]domain.VectorRecord),
	}
}

// Upsert inserts or replaces records by ID. All records are validated
// before any is written.
func (x *Index) Upsert(_ context.Context, namespace string, records []domain.VectorRecord) (int, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	dim := x.dimension
	for _, r := range records {
		if r.ID == "" {
			return 0, fmt.Errorf("%w: vector record without id", domain.ErrInvalidInput)
		}
		if dim == 0 {
			dim = len(r.Values)
		}
		if len(r.Values) != dim {
			return 0, fmt.Errorf("%w: vector %s has %d dimensions, index has %d",
				domain.ErrInvalidInput, r.ID, len(r.Values), dim)
		}
	}
	x.dimension = dim

	ns, ok := x.namespaces[namespace]
	if !ok {
		ns = make(map[string]domain.VectorRecord)
		x.namespaces[namespace] = ns
	}
	for _, r := range records {
		r.Values = slices.Clone(r.Values)
		r.Metadata.Tags = slices.Clone(r.Metadata.Tags)
		ns[r.ID] = r
	}
	return len(records), nil
}

// Query returns up to TopK matches by descending cosine similarity.
// Ties are broken by ID so results are deterministic.
func (x *Index) Query(_ context.Context, query domain.VectorQuery) ([]domain.VectorMatch, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if x.dimension > 0 && len(query.Vector) != x.dimension {
		return nil, fmt.Errorf("%w: query has %d dimensions, index has %d",
			domain.ErrInvalidInput, len(query.Vector), x.dimension)
	}

	matches := []domain.VectorMatch{}
	for id, r := range x.namespaces[query.Namespace] {
		if !query.Filter.Matches(r.Metadata) {
			continue
		}
		matches = append(matches, domain.VectorMatch{
			ID:       id,
			Score:    cosine(query.Vector, r.Values),
			Metadata: r.Metadata,
		})
	}

	slices.SortFunc(matches, func(a, b domain.VectorMatch) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	if query.TopK > 0 && len(matches) > query.TopK {
		matches = matches[:query.TopK]
	}
	return matches, nil
}

// Stats reports vector counts per namespace.
func (x *Index) Stats(_ context.Context, namespace string) (*domain.IndexStats, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	stats := &domain.IndexStats{
		NamespaceCounts: make(map[string]int),
		Dimension:       x.dimension,
	}
	for name, ns := range x.namespaces {
		if namespace != "" && name != namespace {
			continue
		}
		if len(ns) == 0 {
			continue
		}
		stats.NamespaceCounts[name] = len(ns)
		stats.TotalVectorCount += len(ns)
	}
	return stats, nil
}

// Close releases resources.
func (x *Index) Close() error {
	return nil
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		if i >= len(b) {
			break
		}
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
