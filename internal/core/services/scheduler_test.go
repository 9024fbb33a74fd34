package services

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jltournay/farmer-power-knowledge/internal/core/domain"
	"github.com/jltournay/farmer-power-knowledge/internal/core/ports/driven"
	"github.com/jltournay/farmer-power-knowledge/internal/core/ports/driving"
)

// mockSchedulerStore implements driven.SchedulerStore for testing.
type mockSchedulerStore struct {
	mu      sync.RWMutex
	tasks   map[string]domain.MaintenanceTask
	runs    map[string][]domain.TaskRun
	saveErr error
	listErr error
	pruned  []int
}

func newMockSchedulerStore() *mockSchedulerStore {
	return &mockSchedulerStore{
		tasks: make(map[string]domain.MaintenanceTask),
		runs:  make(map[string][]domain.TaskRun),
	}
}

func (m *mockSchedulerStore) GetTask(_ context.Context, taskID string) (*domain.MaintenanceTask, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	task, ok := m.tasks[taskID]
	if !ok {
		return nil, nil
	}
	return &task, nil
}

func (m *mockSchedulerStore) ListTasks(_ context.Context) ([]domain.MaintenanceTask, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	tasks := make([]domain.MaintenanceTask, 0, len(m.tasks))
	for _, t := range m.tasks {
		tasks = append(tasks, t)
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].ID < tasks[j].ID })
	return tasks, nil
}

func (m *mockSchedulerStore) SaveTask(_ context.Context, task *domain.MaintenanceTask) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.tasks[task.ID] = *task
	return nil
}

func (m *mockSchedulerStore) DeleteTask(_ context.Context, taskID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tasks, taskID)
	delete(m.runs, taskID)
	return nil
}

func (m *mockSchedulerStore) RecordRun(_ context.Context, run *domain.TaskRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[run.TaskID] = append(m.runs[run.TaskID], *run)
	return nil
}

func (m *mockSchedulerStore) ListRuns(_ context.Context, taskID string, limit int) ([]domain.TaskRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stored := m.runs[taskID]
	out := make([]domain.TaskRun, 0, len(stored))
	for i := len(stored) - 1; i >= 0; i-- {
		out = append(out, stored[i])
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *mockSchedulerStore) PruneRuns(_ context.Context, keep int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pruned = append(m.pruned, keep)
	return nil
}

// mockMaintenance implements driving.VectorizationService for scheduler testing.
type mockMaintenance struct {
	mu           sync.Mutex
	recoverCalls int
	pruneCalls   int
	report       *driving.RecoveryReport
	recoverErr   error
	pruned       int
	block        chan struct{}
}

func (m *mockMaintenance) Vectorize(_ context.Context, _ *domain.Document) (*domain.VectorizationJob, error) {
	return nil, domain.ErrNotImplemented
}

func (m *mockMaintenance) Status(_ context.Context, _ string) (*driving.JobStatusReport, error) {
	return nil, domain.ErrNotFound
}

func (m *mockMaintenance) Cancel(_ context.Context, _ string) error {
	return domain.ErrNotFound
}

func (m *mockMaintenance) ListJobs(_ context.Context, _ string) ([]domain.VectorizationJob, error) {
	return nil, nil
}

func (m *mockMaintenance) Recover(_ context.Context) (*driving.RecoveryReport, error) {
	if m.block != nil {
		<-m.block
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recoverCalls++
	if m.report == nil {
		return &driving.RecoveryReport{}, m.recoverErr
	}
	return m.report, m.recoverErr
}

func (m *mockMaintenance) PruneJobs(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pruneCalls++
	return m.pruned, nil
}

func (m *mockMaintenance) calls() (recovered, pruned int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.recoverCalls, m.pruneCalls
}

var (
	_ driven.SchedulerStore        = (*mockSchedulerStore)(nil)
	_ driving.VectorizationService = (*mockMaintenance)(nil)
)

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func TestScheduler_StartStop(t *testing.T) {
	pipeline := &mockMaintenance{}
	scheduler := NewScheduler(domain.DefaultSchedulerConfig(), newMockSchedulerStore(), pipeline,
		WithSchedulerTick(10*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- scheduler.Start(ctx) }()

	require.Eventually(t, func() bool {
		recovered, _ := pipeline.calls()
		return recovered == 1
	}, time.Second, 5*time.Millisecond, "recovery runs on start")

	require.NoError(t, scheduler.Stop())
	require.NoError(t, <-done)
	require.NoError(t, scheduler.Stop(), "second stop is a no-op")
}

func TestScheduler_DisabledStillInitialisesTasks(t *testing.T) {
	config := domain.DefaultSchedulerConfig()
	config.Enabled = false
	store := newMockSchedulerStore()
	pipeline := &mockMaintenance{}
	scheduler := NewScheduler(config, store, pipeline, WithSchedulerTick(5*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- scheduler.Start(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	tasks, err := store.ListTasks(context.Background())
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	for _, task := range tasks {
		assert.False(t, task.Enabled, task.ID)
	}
	recovered, pruned := pipeline.calls()
	assert.Zero(t, recovered)
	assert.Zero(t, pruned)
}

func TestScheduler_StopWithoutStart(t *testing.T) {
	scheduler := NewScheduler(domain.DefaultSchedulerConfig(), newMockSchedulerStore(), &mockMaintenance{})
	require.NoError(t, scheduler.Stop())
}

func TestScheduler_DoubleStart(t *testing.T) {
	scheduler := NewScheduler(domain.DefaultSchedulerConfig(), newMockSchedulerStore(), &mockMaintenance{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = scheduler.Start(ctx)
	}()
	time.Sleep(50 * time.Millisecond)

	assert.NoError(t, scheduler.Start(context.Background()))

	require.NoError(t, scheduler.Stop())
	wg.Wait()
}

func TestScheduler_InitialiseTasks(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := newMockSchedulerStore()
	scheduler := NewScheduler(domain.DefaultSchedulerConfig(), store, &mockMaintenance{},
		WithSchedulerClock(fixedClock(now)))

	ctx := context.Background()
	require.NoError(t, scheduler.initialiseTasks(ctx))

	recovery, err := store.GetTask(ctx, domain.TaskJobRecovery)
	require.NoError(t, err)
	require.NotNil(t, recovery)
	assert.Equal(t, domain.TaskName(domain.TaskJobRecovery), recovery.Name)
	assert.True(t, recovery.Enabled)
	assert.True(t, recovery.Due(now), "recovery is due immediately")

	prune, err := store.GetTask(ctx, domain.TaskJobPrune)
	require.NoError(t, err)
	require.NotNil(t, prune)
	assert.Equal(t, 24*time.Hour, prune.Interval)
	assert.Equal(t, now.Add(24*time.Hour), prune.NextRun)
}

func TestScheduler_InitialiseTasks_DisabledTaskKept(t *testing.T) {
	config := domain.DefaultSchedulerConfig()
	config.Tasks[domain.TaskJobPrune] = domain.TaskConfig{Enabled: false, Interval: time.Hour}
	store := newMockSchedulerStore()

	scheduler := NewScheduler(config, store, &mockMaintenance{})
	require.NoError(t, scheduler.initialiseTasks(context.Background()))

	task, err := store.GetTask(context.Background(), domain.TaskJobPrune)
	require.NoError(t, err)
	require.NotNil(t, task)
	assert.False(t, task.Enabled)
}

func TestScheduler_EnsureTask_UpdateInterval(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := newMockSchedulerStore()
	scheduler := NewScheduler(domain.DefaultSchedulerConfig(), store, nil, WithSchedulerClock(fixedClock(now)))
	ctx := context.Background()

	cfg := domain.TaskConfig{Enabled: true, Interval: time.Hour}
	require.NoError(t, scheduler.ensureTask(ctx, domain.TaskJobPrune, cfg))

	cfg.Interval = 2 * time.Hour
	require.NoError(t, scheduler.ensureTask(ctx, domain.TaskJobPrune, cfg))

	task, err := store.GetTask(ctx, domain.TaskJobPrune)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Hour, task.Interval)
	assert.Equal(t, now.Add(2*time.Hour), task.NextRun)
}

func TestScheduler_EnsureTask_ZeroIntervalDisables(t *testing.T) {
	store := newMockSchedulerStore()
	scheduler := NewScheduler(domain.DefaultSchedulerConfig(), store, nil)

	require.NoError(t, scheduler.ensureTask(context.Background(), domain.TaskJobPrune,
		domain.TaskConfig{Enabled: true}))

	task, err := store.GetTask(context.Background(), domain.TaskJobPrune)
	require.NoError(t, err)
	assert.False(t, task.Enabled)
}

func TestScheduler_RunJobRecovery(t *testing.T) {
	pipeline := &mockMaintenance{report: &driving.RecoveryReport{
		Examined: 3,
		Resumed:  []string{"a"},
		Failed:   []string{"b", "c"},
	}}
	scheduler := NewScheduler(domain.DefaultSchedulerConfig(), newMockSchedulerStore(), pipeline)

	n, summary, err := scheduler.runJobRecovery(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, "examined 3 stale jobs: 1 resumed, 2 failed", summary)
}

func TestScheduler_RunJobPrune(t *testing.T) {
	pipeline := &mockMaintenance{pruned: 4}
	scheduler := NewScheduler(domain.DefaultSchedulerConfig(), newMockSchedulerStore(), pipeline)

	n, summary, err := scheduler.runJobPrune(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, "pruned 4 jobs", summary)
}

func TestScheduler_NilPipeline(t *testing.T) {
	scheduler := NewScheduler(domain.DefaultSchedulerConfig(), newMockSchedulerStore(), nil)
	ctx := context.Background()

	n, _, err := scheduler.runJobRecovery(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	n, _, err = scheduler.runJobPrune(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestScheduler_CheckAndRunDueTasks(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := newMockSchedulerStore()
	pipeline := &mockMaintenance{}
	scheduler := NewScheduler(domain.DefaultSchedulerConfig(), store, pipeline, WithSchedulerClock(fixedClock(now)))
	ctx := context.Background()

	require.NoError(t, store.SaveTask(ctx, &domain.MaintenanceTask{
		ID:       domain.TaskJobRecovery,
		Interval: 5 * time.Minute,
		NextRun:  now.Add(-time.Minute),
		Enabled:  true,
	}))
	require.NoError(t, store.SaveTask(ctx, &domain.MaintenanceTask{
		ID:       domain.TaskJobPrune,
		Interval: 24 * time.Hour,
		NextRun:  now.Add(time.Hour),
		Enabled:  true,
	}))

	scheduler.checkAndRunDueTasks(ctx)
	scheduler.wg.Wait()

	recovered, pruned := pipeline.calls()
	assert.Equal(t, 1, recovered)
	assert.Zero(t, pruned, "prune is not due yet")

	task, err := store.GetTask(ctx, domain.TaskJobRecovery)
	require.NoError(t, err)
	assert.Empty(t, task.LastError)
	assert.Equal(t, now, task.LastSuccess)
	assert.Equal(t, now.Add(5*time.Minute), task.NextRun)
	assert.Equal(t, "examined 0 stale jobs: 0 resumed, 0 failed", task.LastSummary)

	runs, err := store.ListRuns(ctx, domain.TaskJobRecovery, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.True(t, runs[0].Success)
	assert.Equal(t, domain.TriggerSchedule, runs[0].Trigger)
	assert.Equal(t, []int{domain.TaskRunRetention}, store.pruned)
}

func TestScheduler_RunNow(t *testing.T) {
	pipeline := &mockMaintenance{pruned: 2}
	store := newMockSchedulerStore()
	config := domain.DefaultSchedulerConfig()
	config.Enabled = false
	scheduler := NewScheduler(config, store, pipeline)
	ctx := context.Background()

	run, err := scheduler.RunNow(ctx, domain.TaskJobPrune)
	require.NoError(t, err)
	assert.True(t, run.Success)
	assert.Equal(t, domain.TriggerManual, run.Trigger)
	assert.Equal(t, 2, run.ItemsProcessed)
	assert.Equal(t, "pruned 2 jobs", run.Summary)

	history, err := scheduler.History(ctx, domain.TaskJobPrune, 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, domain.TriggerManual, history[0].Trigger)
}

func TestScheduler_RunNow_UnknownTask(t *testing.T) {
	scheduler := NewScheduler(domain.DefaultSchedulerConfig(), newMockSchedulerStore(), &mockMaintenance{})

	_, err := scheduler.RunNow(context.Background(), "reindex")
	require.ErrorIs(t, err, domain.ErrNotFound)

	_, err = scheduler.History(context.Background(), "reindex", 5)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestScheduler_RunNow_AlreadyRunning(t *testing.T) {
	pipeline := &mockMaintenance{block: make(chan struct{})}
	scheduler := NewScheduler(domain.DefaultSchedulerConfig(), newMockSchedulerStore(), pipeline)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := scheduler.RunNow(ctx, domain.TaskJobRecovery)
		done <- err
	}()

	require.Eventually(t, func() bool {
		scheduler.mu.Lock()
		defer scheduler.mu.Unlock()
		return scheduler.inFlight[domain.TaskJobRecovery]
	}, time.Second, 5*time.Millisecond)

	_, err := scheduler.RunNow(ctx, domain.TaskJobRecovery)
	require.ErrorIs(t, err, domain.ErrTaskRunning)

	close(pipeline.block)
	require.NoError(t, <-done)
}

func TestScheduler_Execute_RecordsFailure(t *testing.T) {
	store := newMockSchedulerStore()
	pipeline := &mockMaintenance{recoverErr: domain.ErrChunkStoreUnavailable}
	scheduler := NewScheduler(domain.DefaultSchedulerConfig(), store, pipeline)
	ctx := context.Background()

	task := &domain.MaintenanceTask{ID: domain.TaskJobRecovery, Interval: time.Minute, Enabled: true}
	run := scheduler.execute(ctx, task, domain.TriggerSchedule)
	assert.False(t, run.Success)

	saved, err := store.GetTask(ctx, domain.TaskJobRecovery)
	require.NoError(t, err)
	assert.Contains(t, saved.LastError, "chunk store unavailable")
	assert.True(t, saved.LastSuccess.IsZero())

	runs, err := store.ListRuns(ctx, domain.TaskJobRecovery, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.False(t, runs[0].Success)
}

func TestScheduler_Execute_StoreErrorStillReturnsRun(t *testing.T) {
	store := newMockSchedulerStore()
	store.saveErr = errors.New("disk full")
	scheduler := NewScheduler(domain.DefaultSchedulerConfig(), store, &mockMaintenance{pruned: 1})

	run := scheduler.execute(context.Background(), &domain.MaintenanceTask{ID: domain.TaskJobPrune}, domain.TriggerManual)
	assert.True(t, run.Success)
	assert.Equal(t, 1, run.ItemsProcessed)
}

func TestScheduler_Tasks(t *testing.T) {
	scheduler := NewScheduler(domain.DefaultSchedulerConfig(), newMockSchedulerStore(), nil)

	tasks, err := scheduler.Tasks(context.Background())
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, domain.TaskJobPrune, tasks[0].ID)
	assert.Equal(t, domain.TaskJobRecovery, tasks[1].ID)
}
