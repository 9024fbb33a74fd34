package driving

import (
	"context"

	"github.com/jltournay/farmer-power-knowledge/internal/core/domain"
)

// Scheduler runs background job maintenance: stale job recovery and
// pruning of expired terminal jobs.
type Scheduler interface {
	// Start runs due tasks until ctx is done or Stop is called.
	Start(ctx context.Context) error

	// Stop waits for running tasks and ends Start.
	Stop() error

	// Tasks returns every known task with its schedule state.
	Tasks(ctx context.Context) ([]domain.MaintenanceTask, error)

	// History returns recent runs of a task, most recent first.
	History(ctx context.Context, taskID string, limit int) ([]domain.TaskRun, error)

	// RunNow executes a task synchronously regardless of its schedule.
	// Returns domain.ErrTaskRunning if the task is already executing.
	RunNow(ctx context.Context, taskID string) (*domain.TaskRun, error)
}
