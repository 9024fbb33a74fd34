package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jltournay/farmer-power-knowledge/internal/core/domain"
	"github.com/jltournay/farmer-power-knowledge/internal/core/ports/driven"
)

// jobStore implements driven.JobStore.
type jobStore struct {
	store *Store
}

var _ driven.JobStore = (*jobStore)(nil)

const jobColumns = `id, document_id, document_version, namespace, status,
	chunks_total, chunks_embedded, chunks_stored, failed_count, failed_chunks,
	content_hash, document_meta, error, created_at, started_at, completed_at, updated_at`

// Create stores a new job.
func (s *jobStore) Create(ctx context.Context, job *domain.VectorizationJob) error {
	if job == nil || job.ID == "" {
		return domain.ErrInvalidInput
	}
	failedJSON, metaJSON, err := marshalJobFields(job)
	if err != nil {
		return err
	}

	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var count int
	if err := tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM vectorization_jobs WHERE id = ?", job.ID).Scan(&count); err != nil {
		return fmt.Errorf("checking job id: %w", err)
	}
	if count > 0 {
		return domain.ErrAlreadyExists
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO vectorization_jobs (`+jobColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, job.ID, job.DocumentID, job.DocumentVersion, job.Namespace, string(job.Status),
		job.Progress.ChunksTotal, job.Progress.ChunksEmbedded, job.Progress.ChunksStored,
		job.Progress.FailedCount, failedJSON, nullString(job.ContentHash), metaJSON,
		nullString(job.Error), formatTime(job.CreatedAt), formatOptionalTime(job.StartedAt),
		formatOptionalTime(job.CompletedAt), formatTime(job.UpdatedAt))
	if isUniqueViolation(err) {
		return domain.ErrJobInProgress
	}
	if err != nil {
		return fmt.Errorf("creating job: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// Save updates an existing job unless it is already terminal.
func (s *jobStore) Save(ctx context.Context, job *domain.VectorizationJob) error {
	if job == nil {
		return domain.ErrInvalidInput
	}
	failedJSON, metaJSON, err := marshalJobFields(job)
	if err != nil {
		return err
	}

	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var current string
	err = tx.QueryRowContext(ctx, "SELECT status FROM vectorization_jobs WHERE id = ?", job.ID).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("reading job status: %w", err)
	}
	if domain.JobStatus(current).IsTerminal() {
		return domain.ErrJobTerminal
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE vectorization_jobs SET
			namespace = ?, status = ?,
			chunks_total = ?, chunks_embedded = ?, chunks_stored = ?, failed_count = ?,
			failed_chunks = ?, content_hash = ?, document_meta = ?, error = ?,
			started_at = ?, completed_at = ?, updated_at = ?
		WHERE id = ?
	`, job.Namespace, string(job.Status),
		job.Progress.ChunksTotal, job.Progress.ChunksEmbedded, job.Progress.ChunksStored,
		job.Progress.FailedCount, failedJSON, nullString(job.ContentHash), metaJSON,
		nullString(job.Error), formatOptionalTime(job.StartedAt),
		formatOptionalTime(job.CompletedAt), formatTime(job.UpdatedAt), job.ID)
	if err != nil {
		return fmt.Errorf("saving job: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// Get retrieves a job by ID.
func (s *jobStore) Get(ctx context.Context, id string) (*domain.VectorizationJob, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT `+jobColumns+`
		FROM vectorization_jobs WHERE id = ?
	`, id)

	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return job, err
}

// ListByStatus returns jobs in any of the given statuses, oldest first.
func (s *jobStore) ListByStatus(ctx context.Context, statuses ...domain.JobStatus) ([]domain.VectorizationJob, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(statuses))
	args := make([]any, len(statuses))
	for i, st := range statuses {
		placeholders[i] = "?"
		args[i] = string(st)
	}

	return s.list(ctx, `
		SELECT `+jobColumns+`
		FROM vectorization_jobs
		WHERE status IN (`+strings.Join(placeholders, ", ")+`)
		ORDER BY created_at ASC, id ASC
	`, args...)
}

// ListByDocument returns all jobs for a document, newest first.
func (s *jobStore) ListByDocument(ctx context.Context, documentID string) ([]domain.VectorizationJob, error) {
	return s.list(ctx, `
		SELECT `+jobColumns+`
		FROM vectorization_jobs
		WHERE document_id = ?
		ORDER BY created_at DESC, document_version DESC
	`, documentID)
}

// PruneTerminal deletes terminal jobs completed before olderThan.
func (s *jobStore) PruneTerminal(ctx context.Context, olderThan time.Time) (int, error) {
	res, err := s.store.db.ExecContext(ctx, `
		DELETE FROM vectorization_jobs
		WHERE status IN (?, ?, ?) AND completed_at IS NOT NULL AND completed_at < ?
	`, string(domain.JobCompleted), string(domain.JobFailed), string(domain.JobPartial), formatTime(olderThan))
	if err != nil {
		return 0, fmt.Errorf("pruning jobs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting pruned jobs: %w", err)
	}
	return int(n), nil
}

func (s *jobStore) list(ctx context.Context, query string, args ...any) ([]domain.VectorizationJob, error) {
	rows, err := s.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying jobs: %w", err)
	}
	defer rows.Close()

	var jobs []domain.VectorizationJob //nolint:prealloc // size unknown from query
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating jobs: %w", err)
	}
	return jobs, nil
}

func marshalJobFields(job *domain.VectorizationJob) (failed, meta string, err error) {
	failedChunks := job.FailedChunks
	if failedChunks == nil {
		failedChunks = []domain.FailedChunk{}
	}
	failedJSON, err := json.Marshal(failedChunks)
	if err != nil {
		return "", "", fmt.Errorf("marshalling failed chunks: %w", err)
	}
	metaJSON, err := json.Marshal(job.DocumentMeta)
	if err != nil {
		return "", "", fmt.Errorf("marshalling document meta: %w", err)
	}
	return string(failedJSON), string(metaJSON), nil
}

// scanJob scans a job row. sql.ErrNoRows is returned unwrapped.
func scanJob(row scanner) (*domain.VectorizationJob, error) {
	var job domain.VectorizationJob
	var status, failedJSON, metaJSON string
	var contentHash, errMsg, createdAt, startedAt, completedAt, updatedAt sql.NullString

	if err := row.Scan(&job.ID, &job.DocumentID, &job.DocumentVersion, &job.Namespace, &status,
		&job.Progress.ChunksTotal, &job.Progress.ChunksEmbedded, &job.Progress.ChunksStored,
		&job.Progress.FailedCount, &failedJSON, &contentHash, &metaJSON, &errMsg,
		&createdAt, &startedAt, &completedAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning job: %w", err)
	}

	job.Status = domain.JobStatus(status)
	job.ContentHash = contentHash.String
	job.Error = errMsg.String
	job.CreatedAt = parseOptionalTime(createdAt)
	job.StartedAt = parseOptionalTime(startedAt)
	job.CompletedAt = parseOptionalTime(completedAt)
	job.UpdatedAt = parseOptionalTime(updatedAt)

	if err := json.Unmarshal([]byte(failedJSON), &job.FailedChunks); err != nil {
		return nil, fmt.Errorf("unmarshaling failed chunks: %w", err)
	}
	if len(job.FailedChunks) == 0 {
		job.FailedChunks = nil
	}
	if err := json.Unmarshal([]byte(metaJSON), &job.DocumentMeta); err != nil {
		return nil, fmt.Errorf("unmarshaling document meta: %w", err)
	}
	return &job, nil
}
