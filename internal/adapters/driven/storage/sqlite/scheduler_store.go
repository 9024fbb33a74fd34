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

// schedulerStore implements driven.SchedulerStore on the
// maintenance_tasks and task_runs tables.
type schedulerStore struct {
	store *Store
}

var _ driven.SchedulerStore = (*schedulerStore)(nil)

const (
	taskColumns = `id, name, interval_seconds, enabled, last_run, next_run, last_success, last_error, last_summary`
	runColumns  = `task_id, triggered_by, started_at, ended_at, success, error, items_processed, summary`
)

func (s *schedulerStore) GetTask(ctx context.Context, taskID string) (*domain.MaintenanceTask, error) {
	row := s.store.db.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM maintenance_tasks WHERE id = ?`, taskID)

	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return task, err
}

func (s *schedulerStore) ListTasks(ctx context.Context) ([]domain.MaintenanceTask, error) {
	rows, err := s.store.db.QueryContext(ctx,
		`SELECT `+taskColumns+` FROM maintenance_tasks ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("querying maintenance tasks: %w", err)
	}
	defer rows.Close()

	tasks := []domain.MaintenanceTask{}
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating maintenance tasks: %w", err)
	}
	return tasks, nil
}

func (s *schedulerStore) SaveTask(ctx context.Context, task *domain.MaintenanceTask) error {
	if task == nil || task.ID == "" {
		return fmt.Errorf("%w: task must have an ID", domain.ErrInvalidInput)
	}

	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO maintenance_tasks (`+taskColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			interval_seconds = excluded.interval_seconds,
			enabled = excluded.enabled,
			last_run = excluded.last_run,
			next_run = excluded.next_run,
			last_success = excluded.last_success,
			last_error = excluded.last_error,
			last_summary = excluded.last_summary
	`, task.ID, task.Name, int64(task.Interval/time.Second), boolToInt(task.Enabled),
		formatOptionalTime(task.LastRun), formatOptionalTime(task.NextRun),
		formatOptionalTime(task.LastSuccess), nullString(task.LastError), nullString(task.LastSummary))
	if err != nil {
		return fmt.Errorf("saving maintenance task %s: %w", task.ID, err)
	}
	return nil
}

// DeleteTask removes the task and its runs in one transaction.
func (s *schedulerStore) DeleteTask(ctx context.Context, taskID string) error {
	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("deleting maintenance task: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, "DELETE FROM task_runs WHERE task_id = ?", taskID); err != nil {
		return fmt.Errorf("deleting task runs: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM maintenance_tasks WHERE id = ?", taskID); err != nil {
		return fmt.Errorf("deleting maintenance task: %w", err)
	}
	return tx.Commit()
}

func (s *schedulerStore) RecordRun(ctx context.Context, run *domain.TaskRun) error {
	if run == nil || run.TaskID == "" {
		return fmt.Errorf("%w: run must name a task", domain.ErrInvalidInput)
	}

	_, err := s.store.db.ExecContext(ctx,
		`INSERT INTO task_runs (`+runColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.TaskID, string(run.Trigger), formatTime(run.StartedAt), formatTime(run.EndedAt),
		boolToInt(run.Success), nullString(run.Error), run.ItemsProcessed, nullString(run.Summary))
	if err != nil {
		return fmt.Errorf("recording task run: %w", err)
	}
	return nil
}

// ListRuns orders by start time, then insertion order for runs that
// started in the same instant.
func (s *schedulerStore) ListRuns(ctx context.Context, taskID string, limit int) ([]domain.TaskRun, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT `+runColumns+`
		FROM task_runs
		WHERE task_id = ?
		ORDER BY started_at DESC, id DESC
		LIMIT ?
	`, taskID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying task runs: %w", err)
	}
	defer rows.Close()

	runs := []domain.TaskRun{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating task runs: %w", err)
	}
	return runs, nil
}

func (s *schedulerStore) PruneRuns(ctx context.Context, keep int) error {
	if keep < 0 {
		keep = 0
	}
	_, err := s.store.db.ExecContext(ctx, `
		DELETE FROM task_runs
		WHERE id IN (
			SELECT id FROM (
				SELECT id, ROW_NUMBER() OVER (
					PARTITION BY task_id ORDER BY started_at DESC, id DESC
				) AS rn
				FROM task_runs
			) WHERE rn > ?
		)
	`, keep)
	if err != nil {
		return fmt.Errorf("pruning task runs: %w", err)
	}
	return nil
}

// scanTask returns sql.ErrNoRows unwrapped.
func scanTask(row scanner) (*domain.MaintenanceTask, error) {
	var (
		task                          domain.MaintenanceTask
		seconds                       int64
		enabled                       int
		lastRun, nextRun, lastSuccess sql.NullString
		lastError, lastSummary        sql.NullString
	)
	err := row.Scan(&task.ID, &task.Name, &seconds, &enabled,
		&lastRun, &nextRun, &lastSuccess, &lastError, &lastSummary)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scanning maintenance task: %w", err)
	}

	task.Interval = time.Duration(seconds) * time.Second
	task.Enabled = enabled == 1
	task.LastRun = parseOptionalTime(lastRun)
	task.NextRun = parseOptionalTime(nextRun)
	task.LastSuccess = parseOptionalTime(lastSuccess)
	task.LastError = lastError.String
	task.LastSummary = lastSummary.String
	return &task, nil
}

func scanRun(row scanner) (*domain.TaskRun, error) {
	var (
		run                domain.TaskRun
		trigger            string
		startedAt, endedAt sql.NullString
		success            int
		errMsg, summary    sql.NullString
	)
	if err := row.Scan(&run.TaskID, &trigger, &startedAt, &endedAt,
		&success, &errMsg, &run.ItemsProcessed, &summary); err != nil {
		return nil, fmt.Errorf("scanning task run: %w", err)
	}

	run.Trigger = domain.TaskTrigger(trigger)
	run.StartedAt = parseOptionalTime(startedAt)
	run.EndedAt = parseOptionalTime(endedAt)
	run.Success = success == 1
	run.Error = errMsg.String
	run.Summary = summary.String
	return &run, nil
}
