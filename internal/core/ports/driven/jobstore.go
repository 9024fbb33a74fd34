package driven

import (
	"context"
	"time"

	"github.com/jltournay/farmer-power-knowledge/internal/core/domain"
)

// JobStore persists vectorization jobs.
type JobStore interface {
	// Create stores a new job.
	// Returns domain.ErrAlreadyExists for a duplicate ID and
	// domain.ErrJobInProgress if an active job exists for the same
	// document version.
	Create(ctx context.Context, job *domain.VectorizationJob) error

	// Save updates an existing job.
	// Returns domain.ErrJobTerminal if the stored job is already terminal.
	Save(ctx context.Context, job *domain.VectorizationJob) error

	// Get retrieves a job by ID.
	// Returns domain.ErrNotFound if it does not exist.
	Get(ctx context.Context, id string) (*domain.VectorizationJob, error)

	// ListByStatus returns jobs in any of the given statuses, oldest first.
	ListByStatus(ctx context.Context, statuses ...domain.JobStatus) ([]domain.VectorizationJob, error)

	// ListByDocument returns all jobs for a document, newest first.
	ListByDocument(ctx context.Context, documentID string) ([]domain.VectorizationJob, error)

	// PruneTerminal deletes terminal jobs completed before olderThan.
	// Returns the number of jobs removed.
	PruneTerminal(ctx context.Context, olderThan time.Time) (int, error)
}
