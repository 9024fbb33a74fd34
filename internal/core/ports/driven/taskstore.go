package driven

import (
	"context"

	"github.com/jltournay/farmer-power-knowledge/internal/core/domain"
)

// SchedulerStore persists maintenance task schedules and their run
// history so the schedule survives restarts.
type SchedulerStore interface {
	// GetTask retrieves a task by ID.
	// Returns nil and no error if the task does not exist.
	GetTask(ctx context.Context, taskID string) (*domain.MaintenanceTask, error)

	// ListTasks returns all tasks ordered by ID.
	ListTasks(ctx context.Context) ([]domain.MaintenanceTask, error)

	// SaveTask creates or replaces a task.
	SaveTask(ctx context.Context, task *domain.MaintenanceTask) error

	// DeleteTask removes a task and its runs.
	DeleteTask(ctx context.Context, taskID string) error

	// RecordRun appends a run to the task's history.
	RecordRun(ctx context.Context, run *domain.TaskRun) error

	// ListRuns returns up to limit runs of a task, most recent first.
	// A non-positive limit returns all runs.
	ListRuns(ctx context.Context, taskID string, limit int) ([]domain.TaskRun, error)

	// PruneRuns keeps the most recent keep runs per task.
	PruneRuns(ctx context.Context, keep int) error
}
