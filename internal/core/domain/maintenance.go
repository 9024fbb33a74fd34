package domain

import "time"

// Built-in maintenance task IDs.
const (
	TaskJobRecovery = "job-recovery"
	TaskJobPrune    = "job-prune"
)

// taskNames are the display names of the built-in tasks.
var taskNames = map[string]string{
	TaskJobRecovery: "Stale job recovery",
	TaskJobPrune:    "Terminal job pruning",
}

// TaskName returns the display name of a built-in task, or the ID itself.
func TaskName(id string) string {
	if name, ok := taskNames[id]; ok {
		return name
	}
	return id
}

// IsBuiltinTask reports whether id names a built-in maintenance task.
func IsBuiltinTask(id string) bool {
	_, ok := taskNames[id]
	return ok
}

// MaintenanceTask is a recurring job maintenance task and its schedule.
type MaintenanceTask struct {
	ID       string
	Name     string
	Interval time.Duration
	Enabled  bool

	// LastRun is when the task last started; zero if it never ran.
	LastRun time.Time

	// NextRun is when the task is due. Zero means due now.
	NextRun time.Time

	// LastSuccess is when the task last completed without error.
	LastSuccess time.Time

	// LastError is the error of the last run, empty after a success.
	LastError string

	// LastSummary describes what the last run did, e.g. "pruned 4 jobs".
	LastSummary string
}

// Due reports whether an enabled task should run at now.
func (t *MaintenanceTask) Due(now time.Time) bool {
	return t.Enabled && (t.NextRun.IsZero() || !t.NextRun.After(now))
}

// TaskTrigger records why a task ran.
type TaskTrigger string

const (
	TriggerSchedule TaskTrigger = "schedule"
	TriggerManual   TaskTrigger = "manual"
)

// TaskRunRetention is the number of runs kept per task.
const TaskRunRetention = 100

// TaskRun is the outcome of one maintenance task execution.
type TaskRun struct {
	TaskID    string
	Trigger   TaskTrigger
	StartedAt time.Time
	EndedAt   time.Time
	Success   bool

	// Error is set when Success is false.
	Error string

	// ItemsProcessed counts jobs recovered or pruned.
	ItemsProcessed int

	// Summary is a one-line description of the outcome.
	Summary string
}

// Duration is how long the run took.
func (r TaskRun) Duration() time.Duration {
	if r.EndedAt.Before(r.StartedAt) {
		return 0
	}
	return r.EndedAt.Sub(r.StartedAt)
}

// SchedulerConfig holds scheduler configuration.
type SchedulerConfig struct {
	// Enabled is the master switch for scheduled runs. Manual runs are
	// allowed either way.
	Enabled bool

	// Tasks holds per-task configuration keyed by task ID.
	Tasks map[string]TaskConfig
}

// TaskConfig holds configuration for a single task.
type TaskConfig struct {
	Enabled  bool
	Interval time.Duration
}

// Task returns the configuration for a task, or a zero TaskConfig if the
// task is not configured.
func (c SchedulerConfig) Task(id string) TaskConfig {
	return c.Tasks[id]
}

// DefaultSchedulerConfig returns the default maintenance schedule.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Enabled: true,
		Tasks: map[string]TaskConfig{
			TaskJobRecovery: {Enabled: true, Interval: 5 * time.Minute},
			TaskJobPrune:    {Enabled: true, Interval: 24 * time.Hour},
		},
	}
}
