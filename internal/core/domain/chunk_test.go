package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChunkID(t *testing.T) {
	assert.Equal(t, "doc-42-v3-0", ChunkID("doc-42", 3, 0))
	assert.Equal(t, "doc-42-v3-17", ChunkID("doc-42", 3, 17))
	assert.Equal(t, ChunkID("a", 1, 2), ChunkID("a", 1, 2))
}

func TestVectorID(t *testing.T) {
	assert.Equal(t, "doc-42-0", VectorID("doc-42", 0))
	assert.Equal(t, "doc-42-7", VectorID("doc-42", 7))
}

func TestChunk_IsVectorized(t *testing.T) {
	c := Chunk{ID: "doc-v1-0"}
	assert.False(t, c.IsVectorized())

	c.VectorRef = "doc-0"
	assert.True(t, c.IsVectorized())
}

func TestCheckContiguous(t *testing.T) {
	assert.NoError(t, CheckContiguous(nil))
	assert.NoError(t, CheckContiguous([]Chunk{{ChunkIndex: 0}, {ChunkIndex: 1}, {ChunkIndex: 2}}))

	err := CheckContiguous([]Chunk{{ChunkIndex: 0}, {ChunkIndex: 2}})
	assert.True(t, errors.Is(err, ErrInvalidInput))

	err = CheckContiguous([]Chunk{{ChunkIndex: 1}})
	assert.Error(t, err)
}
