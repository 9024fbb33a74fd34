package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jltournay/farmer-power-knowledge/internal/core/domain"
	"github.com/jltournay/farmer-power-knowledge/internal/core/ports/driven"
)

// Ensure ChunkStore implements the interface.
var _ driven.ChunkStore = (*ChunkStore)(nil)

// ChunkStore is an in-memory implementation of driven.ChunkStore.
type ChunkStore struct {
	mu     sync.RWMutex
	chunks map[string]domain.Chunk
}

// NewChunkStore creates a new in-memory chunk store.
func NewChunkStore() *ChunkStore {
	return &ChunkStore{
		chunks: make(map[string]domain.Chunk),
	}
}

// SaveChunks stores chunks, replacing any with the same ID.
func (s *ChunkStore) SaveChunks(_ context.Context, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	now := time.Now().UTC()
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range chunks {
		if c.CreatedAt.IsZero() {
			c.CreatedAt = now
		}
		s.chunks[c.ID] = c
	}
	return nil
}

// GetChunks retrieves all chunks of a document version ordered by index.
func (s *ChunkStore) GetChunks(_ context.Context, documentID string, version int) ([]domain.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Chunk
	for _, c := range s.chunks {
		if c.DocumentID == documentID && c.DocumentVersion == version {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChunkIndex < out[j].ChunkIndex })
	return out, nil
}

// GetChunk retrieves a specific chunk by ID.
func (s *ChunkStore) GetChunk(_ context.Context, id string) (*domain.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.chunks[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &c, nil
}

// DeleteChunks removes all chunks of a document version.
func (s *ChunkStore) DeleteChunks(_ context.Context, documentID string, version int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, c := range s.chunks {
		if c.DocumentID == documentID && c.DocumentVersion == version {
			delete(s.chunks, id)
			n++
		}
	}
	return n, nil
}

// DeleteOlderVersions removes the chunks of versions below version.
func (s *ChunkStore) DeleteOlderVersions(_ context.Context, documentID string, version int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, c := range s.chunks {
		if c.DocumentID == documentID && c.DocumentVersion < version {
			delete(s.chunks, id)
			n++
		}
	}
	return n, nil
}

// SetVectorRef records the vector ID of a stored chunk.
func (s *ChunkStore) SetVectorRef(_ context.Context, chunkID, vectorRef string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.chunks[chunkID]
	if !ok {
		return domain.ErrNotFound
	}
	c.VectorRef = vectorRef
	s.chunks[chunkID] = c
	return nil
}
