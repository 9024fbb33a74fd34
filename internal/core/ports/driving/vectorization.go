package driving

import (
	"context"

	"github.com/jltournay/farmer-power-knowledge/internal/core/domain"
)

// VectorizationService turns document versions into stored vectors and
// tracks each run as a persisted job.
type VectorizationService interface {
	// Vectorize starts a job for the document version and returns once the
	// job has reached a terminal status. The returned job is never nil when
	// a job was created, even if an error is returned.
	Vectorize(ctx context.Context, doc *domain.Document) (*domain.VectorizationJob, error)

	// Status returns live progress for a job.
	Status(ctx context.Context, jobID string) (*JobStatusReport, error)

	// Cancel stops an active job. Uncommitted chunks are recorded as failed.
	Cancel(ctx context.Context, jobID string) error

	// Recover examines stale jobs left by a crash and resumes or fails them.
	Recover(ctx context.Context) (*RecoveryReport, error)

	// PruneJobs deletes old terminal jobs. Returns the number removed.
	PruneJobs(ctx context.Context) (int, error)

	// ListJobs returns the jobs of a document, newest first.
	ListJobs(ctx context.Context, documentID string) ([]domain.VectorizationJob, error)
}

// JobStatusReport is a point-in-time view of a job.
type JobStatusReport struct {
	Job *domain.VectorizationJob

	// Active is true while the job is running in this process.
	Active bool

	// ETASeconds is an advisory estimate, -1 when unknown.
	ETASeconds float64
}

// RecoveryReport summarises one recovery pass.
type RecoveryReport struct {
	Examined int
	Resumed  []string
	Failed   []string
}
