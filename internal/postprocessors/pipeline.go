// Package postprocessors turns document content into identified chunks.
package postprocessors

import (
	"context"
	"fmt"

	"github.com/jltournay/farmer-power-knowledge/internal/core/domain"
	"github.com/jltournay/farmer-power-knowledge/internal/core/ports/driven"
)

// Ensure Pipeline implements the interface.
var _ driven.DocumentChunker = (*Pipeline)(nil)

// Pipeline runs a Chunker over a document and stamps the resulting
// chunks with the document identity.
// It implements the DocumentChunker interface.
type Pipeline struct {
	chunker driven.Chunker
}

// NewPipeline creates a new chunking pipeline around the given chunker.
func NewPipeline(c driven.Chunker) *Pipeline {
	return &Pipeline{chunker: c}
}

// Process chunks the document content.
// Chunk IDs are derived from document ID, version and index, so
// re-processing the same version yields the same IDs.
func (p *Pipeline) Process(ctx context.Context, doc *domain.Document) ([]domain.Chunk, error) {
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	if p.chunker == nil {
		return nil, fmt.Errorf("%w: no chunker configured", domain.ErrInvalidInput)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	chunks := p.chunker.Chunk(doc.Content)
	for i := range chunks {
		chunks[i].DocumentID = doc.ID
		chunks[i].DocumentVersion = doc.Version
		chunks[i].ID = domain.ChunkID(doc.ID, doc.Version, chunks[i].ChunkIndex)
	}

	if err := domain.CheckContiguous(chunks); err != nil {
		return nil, fmt.Errorf("chunker %s: %w", p.chunker.Name(), err)
	}
	return chunks, nil
}

// ChunkerName returns the name of the wrapped chunker.
func (p *Pipeline) ChunkerName() string {
	if p.chunker == nil {
		return ""
	}
	return p.chunker.Name()
}
