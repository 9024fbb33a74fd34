package domain

import (
	"fmt"
	"time"
)

// Chunk represents a bounded, ordered slice of a document version.
// Chunks are immutable once created except for VectorRef.
type Chunk struct {
	// ID is deterministic from document ID, version and index.
	ID string

	// DocumentID links to the parent document.
	DocumentID string

	// DocumentVersion is the document version the chunk was cut from.
	DocumentVersion int

	// ChunkIndex is the 0-based position within the document version.
	// Indices for one (document, version) form a contiguous range.
	ChunkIndex int

	// Content is the text content of this chunk.
	Content string

	// SectionTitle is the heading the chunk falls under, if any.
	SectionTitle string

	// WordCount and CharCount describe Content.
	WordCount int
	CharCount int

	// VectorRef is the vector record ID, set once the chunk is vectorized.
	VectorRef string

	// CreatedAt is when the chunk was persisted.
	CreatedAt time.Time
}

// ChunkID builds the deterministic chunk identifier.
func ChunkID(documentID string, version, index int) string {
	return fmt.Sprintf("%s-v%d-%d", documentID, version, index)
}

// VectorID builds the deterministic vector record identifier.
// It omits the version so re-vectorizing a newer version
// overwrites the previous vectors in place.
func VectorID(documentID string, index int) string {
	return fmt.Sprintf("%s-%d", documentID, index)
}

// IsVectorized reports whether the chunk has a stored vector.
func (c *Chunk) IsVectorized() bool {
	return c.VectorRef != ""
}

// CheckContiguous verifies that chunk indices form 0..N-1 in order.
func CheckContiguous(chunks []Chunk) error {
	for i := range chunks {
		if chunks[i].ChunkIndex != i {
			return fmt.Errorf("%w: chunk at position %d has index %d", ErrInvalidInput, i, chunks[i].ChunkIndex)
		}
	}
	return nil
}
