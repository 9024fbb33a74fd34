package domain

import (
	"errors"
	"fmt"
)

// Domain errors represent business logic failures.
// Adapters translate provider-specific failures into these before
// they reach the services.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates an entity already exists.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput indicates malformed or invalid input.
	// Never retried.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotImplemented indicates functionality is not yet available.
	ErrNotImplemented = errors.New("not implemented")

	// ErrUnsupportedType indicates an unknown provider or chunker type.
	ErrUnsupportedType = errors.New("unsupported type")

	// Provider Errors.

	// ErrRateLimited indicates a provider rate limit was exceeded. Retryable.
	ErrRateLimited = errors.New("rate limited")

	// ErrEmbeddingUnavailable indicates the embedding provider cannot be reached. Retryable.
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")

	// ErrVectorIndexUnavailable indicates the vector index cannot be reached. Retryable.
	ErrVectorIndexUnavailable = errors.New("vector index unavailable")

	// ErrRerankerUnavailable indicates the reranker failed or is not configured.
	// Ranking degrades to retrieval scores.
	ErrRerankerUnavailable = errors.New("reranker unavailable")

	// ErrChunkStoreUnavailable indicates the chunk store failed entirely.
	// Fatal for a vectorization job.
	ErrChunkStoreUnavailable = errors.New("chunk store unavailable")

	// Job Errors.

	// ErrJobInProgress indicates a job is already active for the document version.
	ErrJobInProgress = errors.New("vectorization job in progress")

	// ErrJobTerminal indicates a write to a job that already reached a terminal state.
	ErrJobTerminal = errors.New("vectorization job already terminal")

	// ErrJobCancelled indicates the job was cancelled before the chunk was committed.
	ErrJobCancelled = errors.New("vectorization job cancelled")

	// ErrTaskRunning indicates a maintenance task is already executing.
	ErrTaskRunning = errors.New("maintenance task already running")
)

// IsRetryable reports whether err is a transient provider failure
// that adapters may retry with backoff.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrInvalidInput) {
		return false
	}
	return errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrEmbeddingUnavailable) ||
		errors.Is(err, ErrVectorIndexUnavailable)
}

// TextTooLongError reports a text that exceeds the embedding length limit
// when truncation is disabled.
type TextTooLongError struct {
	Index  int
	Length int
	Max    int
}

func (e *TextTooLongError) Error() string {
	return fmt.Sprintf("text %d is %d characters, limit is %d", e.Index, e.Length, e.Max)
}

// Unwrap classifies the error as invalid input.
func (e *TextTooLongError) Unwrap() error { return ErrInvalidInput }

// BatchError reports a provider batch that failed after all retries.
// Start and End are the input text offsets covered by the batch.
type BatchError struct {
	BatchIndex int
	Start      int
	End        int
	Err        error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("embedding batch %d (texts %d-%d): %v", e.BatchIndex, e.Start, e.End-1, e.Err)
}

func (e *BatchError) Unwrap() error { return e.Err }

// MetadataTooLargeError reports vector metadata above the provider limit.
type MetadataTooLargeError struct {
	ID    string
	Size  int
	Limit int
}

func (e *MetadataTooLargeError) Error() string {
	return fmt.Sprintf("metadata for vector %s is %d bytes, limit is %d", e.ID, e.Size, e.Limit)
}

// Unwrap classifies the error as invalid input.
func (e *MetadataTooLargeError) Unwrap() error { return ErrInvalidInput }
