package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jltournay/farmer-power-knowledge/internal/core/domain"
	"github.com/jltournay/farmer-power-knowledge/internal/core/ports/driven"
	"github.com/jltournay/farmer-power-knowledge/internal/core/ports/driving"
	"github.com/jltournay/farmer-power-knowledge/internal/logger"
	"github.com/jltournay/farmer-power-knowledge/internal/telemetry"
)

// Ensure Scheduler implements the interface.
var _ driving.Scheduler = (*Scheduler)(nil)

// builtinTasks lists the maintenance tasks in display order.
var builtinTasks = []string{domain.TaskJobRecovery, domain.TaskJobPrune}

// Scheduler runs periodic job maintenance: crash recovery and pruning.
// Task schedules and run history live in the SchedulerStore. A task never
// runs twice at the same time, whether triggered by schedule or by hand.
type Scheduler struct {
	config   domain.SchedulerConfig
	store    driven.SchedulerStore
	pipeline driving.VectorizationService
	tick     time.Duration
	now      func() time.Time

	mu       sync.Mutex
	running  bool
	stopCh   chan struct{}
	inFlight map[string]bool
	wg       sync.WaitGroup
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithSchedulerTick sets how often due tasks are checked (default 1m).
func WithSchedulerTick(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if d > 0 {
			s.tick = d
		}
	}
}

// WithSchedulerClock replaces time.Now.
func WithSchedulerClock(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// NewScheduler creates a scheduler with configuration.
func NewScheduler(
	config domain.SchedulerConfig,
	store driven.SchedulerStore,
	pipeline driving.VectorizationService,
	opts ...SchedulerOption,
) *Scheduler {
	s := &Scheduler{
		config:   config,
		store:    store,
		pipeline: pipeline,
		tick:     time.Minute,
		now:      time.Now,
		inFlight: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start begins the scheduler loop. This method blocks until Stop is called
// or the context is done.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.stopCh = make(chan struct{})
	stopCh := s.stopCh
	s.mu.Unlock()

	if err := s.initialiseTasks(ctx); err != nil {
		logger.Error("scheduler: failed to initialise tasks", "error", err)
	}

	if !s.config.Enabled {
		logger.Info("scheduler: disabled by config")
		select {
		case <-ctx.Done():
		case <-stopCh:
		}
		return nil
	}

	return s.run(ctx, stopCh)
}

// Stop gracefully shuts down the scheduler, waiting for running tasks.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
	return nil
}

// Tasks returns the built-in tasks with their schedule state.
func (s *Scheduler) Tasks(ctx context.Context) ([]domain.MaintenanceTask, error) {
	if err := s.initialiseTasks(ctx); err != nil {
		return nil, err
	}
	return s.store.ListTasks(ctx)
}

// History returns recent runs of a task, most recent first.
func (s *Scheduler) History(ctx context.Context, taskID string, limit int) ([]domain.TaskRun, error) {
	if !domain.IsBuiltinTask(taskID) {
		return nil, fmt.Errorf("%w: task %q", domain.ErrNotFound, taskID)
	}
	return s.store.ListRuns(ctx, taskID, limit)
}

// RunNow executes a task synchronously regardless of its schedule or the
// master switch.
func (s *Scheduler) RunNow(ctx context.Context, taskID string) (*domain.TaskRun, error) {
	if !domain.IsBuiltinTask(taskID) {
		return nil, fmt.Errorf("%w: task %q", domain.ErrNotFound, taskID)
	}
	if err := s.initialiseTasks(ctx); err != nil {
		return nil, err
	}
	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, fmt.Errorf("%w: task %q", domain.ErrNotFound, taskID)
	}
	if !s.claim(taskID) {
		return nil, fmt.Errorf("%w: %s", domain.ErrTaskRunning, taskID)
	}
	defer s.release(taskID)

	return s.execute(ctx, task, domain.TriggerManual), nil
}

// initialiseTasks ensures every built-in task exists in the store with
// the configured interval.
func (s *Scheduler) initialiseTasks(ctx context.Context) error {
	for _, id := range builtinTasks {
		if err := s.ensureTask(ctx, id, s.config.Task(id)); err != nil {
			return err
		}
	}
	return nil
}

// ensureTask creates or updates a task in the store.
func (s *Scheduler) ensureTask(ctx context.Context, id string, cfg domain.TaskConfig) error {
	task, err := s.store.GetTask(ctx, id)
	if err != nil {
		return err
	}

	enabled := cfg.Enabled && cfg.Interval > 0
	switch {
	case task == nil:
		task = &domain.MaintenanceTask{
			ID:       id,
			Name:     domain.TaskName(id),
			Interval: cfg.Interval,
			Enabled:  enabled,
		}
		// Recovery runs straight away on a fresh store.
		if id != domain.TaskJobRecovery {
			task.NextRun = s.now().Add(cfg.Interval)
		}
	case task.Interval != cfg.Interval:
		task.Interval = cfg.Interval
		task.NextRun = s.now().Add(cfg.Interval)
		task.Enabled = enabled
	case task.Enabled != enabled:
		task.Enabled = enabled
	default:
		return nil
	}

	return s.store.SaveTask(ctx, task)
}

// run is the main scheduler loop.
func (s *Scheduler) run(ctx context.Context, stopCh <-chan struct{}) error {
	s.checkAndRunDueTasks(ctx)

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stopCh:
			return nil
		case <-ticker.C:
			s.checkAndRunDueTasks(ctx)
		}
	}
}

// checkAndRunDueTasks starts every due task that is not already running.
func (s *Scheduler) checkAndRunDueTasks(ctx context.Context) {
	tasks, err := s.store.ListTasks(ctx)
	if err != nil {
		logger.Error("scheduler: failed to list tasks", "error", err)
		return
	}

	now := s.now()
	for i := range tasks {
		task := tasks[i]
		if !task.Due(now) || !s.claim(task.ID) {
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.release(task.ID)
			s.execute(ctx, &task, domain.TriggerSchedule)
		}()
	}
}

func (s *Scheduler) claim(taskID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight[taskID] {
		return false
	}
	s.inFlight[taskID] = true
	return true
}

func (s *Scheduler) release(taskID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, taskID)
}

// execute runs one task, then stores its new schedule and the run record.
// Store failures are logged; the run is returned either way.
func (s *Scheduler) execute(ctx context.Context, task *domain.MaintenanceTask, trigger domain.TaskTrigger) *domain.TaskRun {
	run := &domain.TaskRun{
		TaskID:    task.ID,
		Trigger:   trigger,
		StartedAt: s.now(),
	}

	var err error
	switch task.ID {
	case domain.TaskJobRecovery:
		run.ItemsProcessed, run.Summary, err = s.runJobRecovery(ctx)
	case domain.TaskJobPrune:
		run.ItemsProcessed, run.Summary, err = s.runJobPrune(ctx)
	default:
		err = fmt.Errorf("%w: task %q", domain.ErrNotFound, task.ID)
	}

	run.EndedAt = s.now()
	if err != nil {
		run.Error = err.Error()
		task.LastError = err.Error()
		logger.Warn("scheduler: task failed", "task_id", task.ID, "trigger", trigger, "error", err)
	} else {
		run.Success = true
		task.LastError = ""
		task.LastSuccess = run.EndedAt
		logger.Info("scheduler: task finished", "task_id", task.ID, "trigger", trigger,
			"summary", run.Summary, "took", run.Duration())
	}
	telemetry.MaintenanceRun(task.ID, string(trigger), err, run.ItemsProcessed)

	task.LastRun = run.StartedAt
	task.LastSummary = run.Summary
	task.NextRun = run.EndedAt.Add(task.Interval)

	if saveErr := s.store.SaveTask(ctx, task); saveErr != nil {
		logger.Error("scheduler: failed to save task", "task_id", task.ID, "error", saveErr)
	}
	if recordErr := s.store.RecordRun(ctx, run); recordErr != nil {
		logger.Error("scheduler: failed to record run", "task_id", task.ID, "error", recordErr)
	}
	if pruneErr := s.store.PruneRuns(ctx, domain.TaskRunRetention); pruneErr != nil {
		logger.Error("scheduler: failed to prune runs", "error", pruneErr)
	}
	return run
}

// runJobRecovery resumes or fails stale jobs.
func (s *Scheduler) runJobRecovery(ctx context.Context) (int, string, error) {
	if s.pipeline == nil {
		return 0, "no pipeline configured", nil
	}
	report, err := s.pipeline.Recover(ctx)
	if report == nil {
		return 0, "", err
	}
	handled := len(report.Resumed) + len(report.Failed)
	summary := fmt.Sprintf("examined %d stale jobs: %d resumed, %d failed",
		report.Examined, len(report.Resumed), len(report.Failed))
	return handled, summary, err
}

// runJobPrune deletes expired terminal jobs.
func (s *Scheduler) runJobPrune(ctx context.Context) (int, string, error) {
	if s.pipeline == nil {
		return 0, "no pipeline configured", nil
	}
	n, err := s.pipeline.PruneJobs(ctx)
	return n, fmt.Sprintf("pruned %d jobs", n), err
}
