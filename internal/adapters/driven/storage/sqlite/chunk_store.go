package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jltournay/farmer-power-knowledge/internal/core/domain"
	"github.com/jltournay/farmer-power-knowledge/internal/core/ports/driven"
)

// chunkStore implements driven.ChunkStore.
type chunkStore struct {
	store *Store
}

var _ driven.ChunkStore = (*chunkStore)(nil)

const chunkColumns = `id, document_id, document_version, chunk_index, content,
	section_title, word_count, char_count, vector_ref, created_at`

// SaveChunks stores chunks in one transaction, replacing any with the same ID.
func (s *chunkStore) SaveChunks(ctx context.Context, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (`+chunkColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			content = excluded.content,
			section_title = excluded.section_title,
			word_count = excluded.word_count,
			char_count = excluded.char_count,
			vector_ref = excluded.vector_ref
	`)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, c := range chunks {
		created := c.CreatedAt
		if created.IsZero() {
			created = now
		}
		if _, err := stmt.ExecContext(ctx, c.ID, c.DocumentID, c.DocumentVersion, c.ChunkIndex,
			c.Content, nullString(c.SectionTitle), c.WordCount, c.CharCount,
			nullString(c.VectorRef), formatTime(created)); err != nil {
			return fmt.Errorf("saving chunk %s: %w", c.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// GetChunks retrieves all chunks of a document version ordered by index.
func (s *chunkStore) GetChunks(ctx context.Context, documentID string, version int) ([]domain.Chunk, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT `+chunkColumns+`
		FROM chunks WHERE document_id = ? AND document_version = ?
		ORDER BY chunk_index
	`, documentID, version)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	var chunks []domain.Chunk //nolint:prealloc // size unknown from query
	for rows.Next() {
		chunk, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, *chunk)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunks: %w", err)
	}

	return chunks, nil
}

// GetChunk retrieves a specific chunk by ID.
func (s *chunkStore) GetChunk(ctx context.Context, id string) (*domain.Chunk, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT `+chunkColumns+`
		FROM chunks WHERE id = ?
	`, id)

	chunk, err := scanChunk(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return chunk, err
}

// DeleteChunks removes all chunks of a document version.
func (s *chunkStore) DeleteChunks(ctx context.Context, documentID string, version int) (int, error) {
	res, err := s.store.db.ExecContext(ctx,
		"DELETE FROM chunks WHERE document_id = ? AND document_version = ?", documentID, version)
	if err != nil {
		return 0, fmt.Errorf("deleting chunks: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting deleted chunks: %w", err)
	}
	return int(n), nil
}

// DeleteOlderVersions removes the chunks of versions below version.
func (s *chunkStore) DeleteOlderVersions(ctx context.Context, documentID string, version int) (int, error) {
	res, err := s.store.db.ExecContext(ctx,
		"DELETE FROM chunks WHERE document_id = ? AND document_version < ?", documentID, version)
	if err != nil {
		return 0, fmt.Errorf("deleting older chunks: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting deleted chunks: %w", err)
	}
	return int(n), nil
}

// SetVectorRef records the vector ID of a stored chunk.
func (s *chunkStore) SetVectorRef(ctx context.Context, chunkID, vectorRef string) error {
	res, err := s.store.db.ExecContext(ctx,
		"UPDATE chunks SET vector_ref = ? WHERE id = ?", nullString(vectorRef), chunkID)
	if err != nil {
		return fmt.Errorf("setting vector ref: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("setting vector ref: %w", err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// scanChunk scans a chunk row. sql.ErrNoRows is returned unwrapped.
func scanChunk(row scanner) (*domain.Chunk, error) {
	var c domain.Chunk
	var sectionTitle, vectorRef, createdAt sql.NullString

	if err := row.Scan(&c.ID, &c.DocumentID, &c.DocumentVersion, &c.ChunkIndex, &c.Content,
		&sectionTitle, &c.WordCount, &c.CharCount, &vectorRef, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning chunk: %w", err)
	}

	c.SectionTitle = sectionTitle.String
	c.VectorRef = vectorRef.String
	c.CreatedAt = parseOptionalTime(createdAt)
	return &c, nil
}
