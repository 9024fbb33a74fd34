package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/jltournay/farmer-power-knowledge/internal/core/domain"
	"github.com/jltournay/farmer-power-knowledge/internal/core/ports/driven"
)

// Ensure SchedulerStore implements the interface.
var _ driven.SchedulerStore = (*SchedulerStore)(nil)

// SchedulerStore keeps maintenance tasks and runs in memory. Runs are
// appended in record order and listed newest first.
type SchedulerStore struct {
	mu    sync.RWMutex
	tasks map[string]domain.MaintenanceTask
	runs  map[string][]domain.TaskRun
}

// NewSchedulerStore creates an empty in-memory scheduler store.
func NewSchedulerStore() *SchedulerStore {
	return &SchedulerStore{
		tasks: make(map[string]domain.MaintenanceTask),
		runs:  make(map[string][]domain.TaskRun),
	}
}

func (s *SchedulerStore) GetTask(_ context.Context, taskID string) (*domain.MaintenanceTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	task, ok := s.tasks[taskID]
	if !ok {
		return nil, nil
	}
	return &task, nil
}

func (s *SchedulerStore) ListTasks(_ context.Context) ([]domain.MaintenanceTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.MaintenanceTask, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *SchedulerStore) SaveTask(_ context.Context, task *domain.MaintenanceTask) error {
	if task == nil || task.ID == "" {
		return fmt.Errorf("%w: task must have an ID", domain.ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[task.ID] = *task
	return nil
}

func (s *SchedulerStore) DeleteTask(_ context.Context, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tasks, taskID)
	delete(s.runs, taskID)
	return nil
}

func (s *SchedulerStore) RecordRun(_ context.Context, run *domain.TaskRun) error {
	if run == nil || run.TaskID == "" {
		return fmt.Errorf("%w: run must name a task", domain.ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	runs := append(s.runs[run.TaskID], *run)
	sort.SliceStable(runs, func(i, j int) bool { return runs[i].StartedAt.Before(runs[j].StartedAt) })
	s.runs[run.TaskID] = runs
	return nil
}

func (s *SchedulerStore) ListRuns(_ context.Context, taskID string, limit int) ([]domain.TaskRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored := s.runs[taskID]
	n := len(stored)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]domain.TaskRun, 0, n)
	for i := len(stored) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, stored[i])
	}
	return out, nil
}

func (s *SchedulerStore) PruneRuns(_ context.Context, keep int) error {
	if keep < 0 {
		keep = 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, runs := range s.runs {
		if len(runs) > keep {
			s.runs[id] = append([]domain.TaskRun(nil), runs[len(runs)-keep:]...)
		}
	}
	return nil
}
