package cli

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/jltournay/farmer-power-knowledge/internal/core/domain"
	"github.com/jltournay/farmer-power-knowledge/internal/core/ports/driving"
)

var testEpoch = time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)

type mockVectorization struct {
	mu        sync.Mutex
	docs      []*domain.Document
	jobs      map[string]*domain.VectorizationJob
	cancelled []string
	err       error
}

func newMockVectorization() *mockVectorization {
	return &mockVectorization{jobs: make(map[string]*domain.VectorizationJob)}
}

func (m *mockVectorization) Vectorize(_ context.Context, doc *domain.Document) (*domain.VectorizationJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs = append(m.docs, doc)

	job := &domain.VectorizationJob{
		ID:              fmt.Sprintf("job-%d", len(m.docs)),
		DocumentID:      doc.ID,
		DocumentVersion: doc.Version,
		Namespace:       "knowledge",
		Status:          domain.JobCompleted,
		Progress:        domain.JobProgress{ChunksTotal: 2, ChunksEmbedded: 2, ChunksStored: 2},
		CreatedAt:       testEpoch,
		StartedAt:       testEpoch,
		CompletedAt:     testEpoch.Add(1500 * time.Millisecond),
	}
	if m.err != nil {
		job.Status = domain.JobFailed
		job.Progress.ChunksStored = 0
		job.Error = m.err.Error()
	}
	m.jobs[job.ID] = job
	return job, m.err
}

func (m *mockVectorization) Status(_ context.Context, jobID string) (*driving.JobStatusReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &driving.JobStatusReport{Job: job, Active: job.Status.IsActive(), ETASeconds: 12.5}, nil
}

func (m *mockVectorization) Cancel(_ context.Context, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return domain.ErrNotFound
	}
	if job.Status.IsTerminal() {
		return domain.ErrJobTerminal
	}
	m.cancelled = append(m.cancelled, jobID)
	return nil
}

func (m *mockVectorization) Recover(context.Context) (*driving.RecoveryReport, error) {
	return &driving.RecoveryReport{Examined: 2, Resumed: []string{"job-a"}, Failed: []string{"job-b"}}, nil
}

func (m *mockVectorization) PruneJobs(context.Context) (int, error) {
	return 3, nil
}

func (m *mockVectorization) ListJobs(_ context.Context, documentID string) ([]domain.VectorizationJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.VectorizationJob
	for _, j := range m.jobs {
		if j.DocumentID == documentID {
			out = append(out, *j.Clone())
		}
	}
	return out, nil
}

type mockRetrieval struct {
	lastQuery string
	lastOpts  domain.RetrievalOptions
	result    *domain.RankingResult
	err       error
}

func (m *mockRetrieval) Search(_ context.Context, query string, opts domain.RetrievalOptions) (*domain.RankingResult, error) {
	m.lastQuery = query
	m.lastOpts = opts
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

func (m *mockRetrieval) IndexStats(_ context.Context, namespace string) (*domain.IndexStats, error) {
	if namespace != "" {
		return &domain.IndexStats{TotalVectorCount: 4, NamespaceCounts: map[string]int{namespace: 4}, Dimension: 384}, nil
	}
	return &domain.IndexStats{
		TotalVectorCount: 7,
		NamespaceCounts:  map[string]int{"knowledge": 4, "tea": 3},
		Dimension:        384,
	}, nil
}

type mockScheduler struct {
	mu    sync.Mutex
	tasks []domain.MaintenanceTask
	runs  map[string][]domain.TaskRun
	fail  error
}

var _ driving.Scheduler = (*mockScheduler)(nil)

func (m *mockScheduler) Start(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func (m *mockScheduler) Stop() error { return nil }

func (m *mockScheduler) Tasks(context.Context) ([]domain.MaintenanceTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.MaintenanceTask(nil), m.tasks...), nil
}

func (m *mockScheduler) History(_ context.Context, taskID string, limit int) ([]domain.TaskRun, error) {
	if !domain.IsBuiltinTask(taskID) {
		return nil, domain.ErrNotFound
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	runs := m.runs[taskID]
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

func (m *mockScheduler) RunNow(_ context.Context, taskID string) (*domain.TaskRun, error) {
	if !domain.IsBuiltinTask(taskID) {
		return nil, domain.ErrNotFound
	}
	run := domain.TaskRun{
		TaskID:    taskID,
		Trigger:   domain.TriggerManual,
		StartedAt: testEpoch,
		EndedAt:   testEpoch.Add(40 * time.Millisecond),
		Success:   m.fail == nil,
		Summary:   "pruned 3 jobs",
	}
	if m.fail != nil {
		run.Error = m.fail.Error()
		run.Summary = ""
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[taskID] = append([]domain.TaskRun{run}, m.runs[taskID]...)
	return &run, nil
}

type staticRanking domain.RankingConfig

func (s staticRanking) RankingConfig() domain.RankingConfig { return domain.RankingConfig(s).Clone() }

type testServices struct {
	vectorization *mockVectorization
	retrieval     *mockRetrieval
	scheduler     *mockScheduler
}

// setupTestServices installs mock services and returns them with a
// cleanup that restores the previous state.
func setupTestServices(t *testing.T) *testServices {
	t.Helper()

	ts := &testServices{
		vectorization: newMockVectorization(),
		retrieval: &mockRetrieval{result: &domain.RankingResult{
			Matches: []domain.RankedMatch{{
				RetrievalMatch: domain.RetrievalMatch{
					ChunkID:    "blight-v1-0",
					DocumentID: "blight",
					Title:      "Blister blight",
					Domain:     "plant_disease",
					Content:    "Blister   blight shows\nas pale translucent spots.",
				},
				FinalScore: 0.875,
			}},
			DuplicatesRemoved: 1,
			RerankerUsed:      true,
		}},
		scheduler: &mockScheduler{runs: make(map[string][]domain.TaskRun)},
	}

	ranking := domain.DefaultRankingConfig()
	ranking.RecencyWeight = 0.3

	prev := services
	services = &Services{
		Vectorization: ts.vectorization,
		Retrieval:     ts.retrieval,
		Scheduler:     ts.scheduler,
		Ranking:       staticRanking(ranking),
	}
	t.Cleanup(func() { services = prev })
	return ts
}

// execute runs the root command with args and returns its output.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	resetFlags(rootCmd)
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetIn(strings.NewReader(""))
	rootCmd.SetArgs(args)
	defer rootCmd.SetArgs(nil)

	err := rootCmd.Execute()
	return buf.String(), err
}

// resetFlags restores every flag in the command tree to its default so
// values do not leak between executions.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func stringsReader(s string) *strings.Reader {
	return strings.NewReader(s)
}
