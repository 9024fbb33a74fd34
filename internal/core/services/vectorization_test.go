package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jltournay/farmer-power-knowledge/internal/core/domain"
)

type pipelineFixture struct {
	provider *fakeProvider
	index    *fakeIndex
	chunks   *fakeChunkStore
	jobs     *fakeJobStore
	chunker  *lineChunker
	pipeline *VectorizationPipeline
}

func newPipelineFixture(t *testing.T, opts ...PipelineOption) *pipelineFixture {
	t.Helper()
	f := &pipelineFixture{
		provider: newFakeProvider(4),
		index:    newFakeIndex(),
		chunks:   newFakeChunkStore(),
		jobs:     newFakeJobStore(),
		chunker:  &lineChunker{},
	}
	embedder := NewEmbeddingClient(f.provider, WithEmbeddingRetry(fastRetry))
	index := NewVectorIndexClient(f.index, 4, WithVectorIndexRetry(fastRetry))
	opts = append([]PipelineOption{WithPipelineBatchSize(2), WithPipelineWorkers(2)}, opts...)
	f.pipeline = NewVectorizationPipeline(f.chunker, f.chunks, f.jobs, embedder, index, opts...)
	return f
}

func testDocument(id string, version int, lines ...string) *domain.Document {
	return &domain.Document{
		ID:        id,
		Version:   version,
		Title:     "Tea husbandry " + id,
		Domain:    "plant_disease",
		Content:   strings.Join(lines, "\n"),
		UpdatedAt: time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
	}
}

func numbered(prefix string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("%s line %d", prefix, i)
	}
	return out
}

func failedIDs(job *domain.VectorizationJob) []string {
	out := make([]string, len(job.FailedChunks))
	for i, fc := range job.FailedChunks {
		out[i] = fc.ChunkID
	}
	return out
}

func TestVectorizationPipeline_Defaults(t *testing.T) {
	p := NewVectorizationPipeline(nil, nil, nil, nil, nil, WithPipelineWorkers(0), WithPipelineNamespace(""))
	assert.Equal(t, DefaultPipelineWorkers, p.workers)
	assert.Equal(t, DefaultPipelineBatch, p.batchSize)
	assert.Equal(t, DefaultNamespace, p.Namespace())
	assert.Equal(t, DefaultStaleAfter, p.staleAfter)
}

func TestVectorizationPipeline_Vectorize_Completed(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()

	job, err := f.pipeline.Vectorize(ctx, testDocument("blight", 1, numbered("blight", 5)...))
	require.NoError(t, err)
	require.NotNil(t, job)

	assert.Equal(t, domain.JobCompleted, job.Status)
	assert.Equal(t, domain.JobProgress{ChunksTotal: 5, ChunksEmbedded: 5, ChunksStored: 5}, job.Progress)
	assert.Empty(t, job.FailedChunks)
	assert.Empty(t, job.Error)
	assert.Equal(t, DefaultNamespace, job.Namespace)
	assert.NotEmpty(t, job.ContentHash)
	assert.False(t, job.StartedAt.IsZero())
	assert.False(t, job.CompletedAt.IsZero())

	assert.Equal(t, 5, f.index.count(DefaultNamespace))
	chunks, err := f.chunks.GetChunks(ctx, "blight", 1)
	require.NoError(t, err)
	require.Len(t, chunks, 5)
	for _, c := range chunks {
		assert.Equal(t, domain.VectorID("blight", c.ChunkIndex), c.VectorRef)
	}

	for _, typ := range f.provider.types {
		assert.Equal(t, domain.InputPassage, typ)
	}

	stored, err := f.jobs.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobCompleted, stored.Status)
	assert.Greater(t, f.jobs.saves, 5, "every progress change is persisted")

	report, err := f.pipeline.Status(ctx, job.ID)
	require.NoError(t, err)
	assert.False(t, report.Active)
	assert.Equal(t, domain.JobCompleted, report.Job.Status)
	assert.Equal(t, float64(-1), report.ETASeconds)
}

func TestVectorizationPipeline_Vectorize_DocumentNamespace(t *testing.T) {
	f := newPipelineFixture(t, WithPipelineNamespace("default-ns"))
	doc := testDocument("ns-doc", 1, "one", "two")
	doc.Namespace = "tenant-a"

	job, err := f.pipeline.Vectorize(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, "tenant-a", job.Namespace)
	assert.Equal(t, 2, f.index.count("tenant-a"))
	assert.Zero(t, f.index.count("default-ns"))
}

func TestVectorizationPipeline_Vectorize_InvalidDocument(t *testing.T) {
	f := newPipelineFixture(t)

	job, err := f.pipeline.Vectorize(context.Background(), &domain.Document{ID: "", Version: 1})
	require.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Nil(t, job)

	_, err = f.pipeline.Vectorize(context.Background(), &domain.Document{ID: "doc", Version: 0})
	require.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestVectorizationPipeline_Vectorize_EmptyDocument(t *testing.T) {
	f := newPipelineFixture(t)

	job, err := f.pipeline.Vectorize(context.Background(), testDocument("empty", 1))
	require.NoError(t, err)
	assert.Equal(t, domain.JobCompleted, job.Status)
	assert.Zero(t, job.Progress.ChunksTotal)
	assert.Zero(t, f.provider.callCount())
}

func TestVectorizationPipeline_Vectorize_Partial(t *testing.T) {
	f := newPipelineFixture(t)
	f.provider.failOn = "line 2"
	f.provider.err = fmt.Errorf("%w: unsupported characters", domain.ErrInvalidInput)

	job, err := f.pipeline.Vectorize(context.Background(), testDocument("doc", 1, numbered("doc", 5)...))
	require.NoError(t, err)

	assert.Equal(t, domain.JobPartial, job.Status)
	assert.Equal(t, 4, job.Progress.ChunksStored)
	assert.Equal(t, 1, job.Progress.FailedCount)
	require.Len(t, job.FailedChunks, 1)
	assert.Equal(t, "doc-v1-2", job.FailedChunks[0].ChunkID)
	assert.Equal(t, 2, job.FailedChunks[0].ChunkIndex)
	assert.Contains(t, job.FailedChunks[0].ErrorMessage, "unsupported characters")

	// Batch [2,3] failed as a whole, then each chunk went on its own.
	assert.Contains(t, f.provider.embedded(), "doc line 3")
	chunk, err := f.chunks.GetChunk(context.Background(), "doc-v1-3")
	require.NoError(t, err)
	assert.True(t, chunk.IsVectorized())
}

func TestVectorizationPipeline_Vectorize_ChunkExhaustsRetries(t *testing.T) {
	f := newPipelineFixture(t, WithPipelineWorkers(4))
	f.provider.failOn = "doc line 7"
	f.provider.err = fmt.Errorf("%w: upstream timeout", domain.ErrEmbeddingUnavailable)

	job, err := f.pipeline.Vectorize(context.Background(), testDocument("doc", 1, numbered("doc", 10)...))
	require.NoError(t, err)

	assert.Equal(t, domain.JobPartial, job.Status)
	assert.Equal(t, 10, job.Progress.ChunksTotal)
	assert.Equal(t, 9, job.Progress.ChunksStored)
	assert.Equal(t, 1, job.Progress.FailedCount)
	require.Len(t, job.FailedChunks, 1)
	assert.Equal(t, 7, job.FailedChunks[0].ChunkIndex)
	assert.Equal(t, "doc-v1-7", job.FailedChunks[0].ChunkID)
	assert.Contains(t, job.FailedChunks[0].ErrorMessage, "embedding batch")
	assert.Contains(t, job.FailedChunks[0].ErrorMessage, "upstream timeout")

	attempts := 0
	for _, text := range f.provider.embedded() {
		if text == "doc line 7" {
			attempts++
		}
	}
	assert.Equal(t, 2*(fastRetry.MaxRetries+1), attempts, "batch and single-chunk calls are both retried")
	assert.Empty(t, f.jobs.invalidProgress())
}

func TestVectorizationPipeline_ProgressOrderingAtEverySave(t *testing.T) {
	f := newPipelineFixture(t, WithPipelineBatchSize(3), WithPipelineWorkers(4))
	f.provider.failOn = "line 1"
	f.provider.err = domain.ErrInvalidInput

	job, err := f.pipeline.Vectorize(context.Background(), testDocument("doc", 1, numbered("doc", 25)...))
	require.NoError(t, err)

	assert.Equal(t, domain.JobPartial, job.Status)
	assert.Greater(t, f.jobs.saves, 25)
	assert.Empty(t, f.jobs.invalidProgress(), "chunks_stored <= chunks_embedded <= chunks_total on every write")
}

func TestVectorizationPipeline_Vectorize_AllChunksFail(t *testing.T) {
	f := newPipelineFixture(t)
	f.provider.err = domain.ErrInvalidInput
	f.provider.failures = 1000

	job, err := f.pipeline.Vectorize(context.Background(), testDocument("doc", 1, numbered("doc", 3)...))
	require.NoError(t, err)
	assert.Equal(t, domain.JobFailed, job.Status)
	assert.Equal(t, 3, job.Progress.FailedCount)
	assert.Zero(t, job.Progress.ChunksStored)
	assert.NotEmpty(t, job.Error)
}

func TestVectorizationPipeline_Vectorize_UpsertFallback(t *testing.T) {
	t.Run("batch upsert retried per record", func(t *testing.T) {
		f := newPipelineFixture(t)
		f.index.failBatch = true

		job, err := f.pipeline.Vectorize(context.Background(), testDocument("doc", 1, numbered("doc", 4)...))
		require.NoError(t, err)
		assert.Equal(t, domain.JobCompleted, job.Status)
		assert.Equal(t, 4, f.index.count(DefaultNamespace))
	})

	t.Run("failing record marked", func(t *testing.T) {
		f := newPipelineFixture(t)
		f.index.failOnID = "doc-1"
		f.index.err = fmt.Errorf("%w: rejected payload", domain.ErrInvalidInput)

		job, err := f.pipeline.Vectorize(context.Background(), testDocument("doc", 1, numbered("doc", 4)...))
		require.NoError(t, err)
		assert.Equal(t, domain.JobPartial, job.Status)
		assert.Equal(t, []string{"doc-v1-1"}, failedIDs(job))
		assert.Equal(t, 3, f.index.count(DefaultNamespace))
	})
}

func TestVectorizationPipeline_Vectorize_VectorRefFailure(t *testing.T) {
	f := newPipelineFixture(t)
	f.chunks.refErrFor = "doc-v1-0"

	job, err := f.pipeline.Vectorize(context.Background(), testDocument("doc", 1, numbered("doc", 2)...))
	require.NoError(t, err)
	assert.Equal(t, domain.JobPartial, job.Status)
	require.Len(t, job.FailedChunks, 1)
	assert.Contains(t, job.FailedChunks[0].ErrorMessage, "chunk store unavailable")
}

func TestVectorizationPipeline_Vectorize_FatalErrors(t *testing.T) {
	t.Run("chunk store", func(t *testing.T) {
		f := newPipelineFixture(t)
		f.chunks.saveErr = errors.New("database is locked")

		job, err := f.pipeline.Vectorize(context.Background(), testDocument("doc", 1, "a", "b"))
		require.ErrorIs(t, err, domain.ErrChunkStoreUnavailable)
		require.NotNil(t, job)
		assert.Equal(t, domain.JobFailed, job.Status)
		assert.Contains(t, job.Error, "database is locked")

		stored, getErr := f.jobs.Get(context.Background(), job.ID)
		require.NoError(t, getErr)
		assert.Equal(t, domain.JobFailed, stored.Status)
	})

	t.Run("chunker", func(t *testing.T) {
		f := newPipelineFixture(t)
		f.chunker.err = errors.New("unreadable markup")

		job, err := f.pipeline.Vectorize(context.Background(), testDocument("doc", 1, "a"))
		require.Error(t, err)
		assert.Equal(t, domain.JobFailed, job.Status)
		assert.Contains(t, job.Error, "unreadable markup")
	})
}

func TestVectorizationPipeline_Vectorize_ReplacesChunks(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()

	_, err := f.pipeline.Vectorize(ctx, testDocument("doc", 1, numbered("doc", 4)...))
	require.NoError(t, err)
	_, err = f.pipeline.Vectorize(ctx, testDocument("doc", 1, numbered("doc", 2)...))
	require.NoError(t, err)

	chunks, err := f.chunks.GetChunks(ctx, "doc", 1)
	require.NoError(t, err)
	assert.Len(t, chunks, 2)

	jobs, err := f.pipeline.ListJobs(ctx, "doc")
	require.NoError(t, err)
	assert.Len(t, jobs, 2)
}

func TestVectorizationPipeline_Vectorize_ActiveJobInStore(t *testing.T) {
	f := newPipelineFixture(t)
	f.jobs.put(&domain.VectorizationJob{
		ID: "other-process", DocumentID: "doc", DocumentVersion: 1,
		Status: domain.JobInProgress, UpdatedAt: time.Now(),
	})

	_, err := f.pipeline.Vectorize(context.Background(), testDocument("doc", 1, "a"))
	require.ErrorIs(t, err, domain.ErrJobInProgress)
}

func TestVectorizationPipeline_Cancel(t *testing.T) {
	f := newPipelineFixture(t, WithPipelineBatchSize(1), WithPipelineWorkers(1))
	f.provider.blockOn = "slow"
	ctx := context.Background()

	done := make(chan *domain.VectorizationJob, 1)
	go func() {
		job, _ := f.pipeline.Vectorize(ctx, testDocument("doc", 1, "slow a", "slow b", "slow c"))
		done <- job
	}()

	require.Eventually(t, func() bool { return f.provider.blockedCount() == 1 }, time.Second, 5*time.Millisecond)

	jobs, err := f.jobs.ListByDocument(ctx, "doc")
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	jobID := jobs[0].ID

	report, err := f.pipeline.Status(ctx, jobID)
	require.NoError(t, err)
	assert.True(t, report.Active)
	assert.Equal(t, domain.JobInProgress, report.Job.Status)
	assert.Equal(t, 3, report.Job.Progress.ChunksTotal)

	require.NoError(t, f.pipeline.Cancel(ctx, jobID))

	var job *domain.VectorizationJob
	select {
	case job = <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("job did not stop after cancel")
	}

	assert.Equal(t, domain.JobFailed, job.Status)
	assert.Equal(t, 3, job.Progress.FailedCount)
	for _, fc := range job.FailedChunks {
		assert.Contains(t, fc.ErrorMessage, "cancelled")
	}

	err = f.pipeline.Cancel(ctx, jobID)
	require.ErrorIs(t, err, domain.ErrJobTerminal)
}

func TestVectorizationPipeline_Cancel_PersistedOnly(t *testing.T) {
	f := newPipelineFixture(t)
	f.jobs.put(&domain.VectorizationJob{ID: "orphan", DocumentID: "doc", DocumentVersion: 1, Status: domain.JobPending})

	require.NoError(t, f.pipeline.Cancel(context.Background(), "orphan"))

	job, err := f.jobs.Get(context.Background(), "orphan")
	require.NoError(t, err)
	assert.Equal(t, domain.JobFailed, job.Status)
	assert.Contains(t, job.Error, "cancelled")

	err = f.pipeline.Cancel(context.Background(), "missing")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestVectorizationPipeline_Supersede(t *testing.T) {
	f := newPipelineFixture(t, WithPipelineBatchSize(1), WithPipelineWorkers(1))
	f.provider.blockOn = "old"
	ctx := context.Background()

	done := make(chan *domain.VectorizationJob, 1)
	go func() {
		job, _ := f.pipeline.Vectorize(ctx, testDocument("doc", 1, "old a", "old b"))
		done <- job
	}()
	require.Eventually(t, func() bool { return f.provider.blockedCount() == 1 }, time.Second, 5*time.Millisecond)

	newer, err := f.pipeline.Vectorize(ctx, testDocument("doc", 2, "new a", "new b"))
	require.NoError(t, err)
	assert.Equal(t, domain.JobCompleted, newer.Status)

	var older *domain.VectorizationJob
	select {
	case older = <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("older job was not superseded")
	}
	assert.Equal(t, domain.JobFailed, older.Status)
	assert.Zero(t, older.Progress.ChunksStored)
}

func TestVectorizationPipeline_NewVersionDropsOlderChunks(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()

	_, err := f.pipeline.Vectorize(ctx, testDocument("doc", 1,
		"prune bushes in march", "pluck two leaves and a bud", "obsolete copper spray advice"))
	require.NoError(t, err)

	newer, err := f.pipeline.Vectorize(ctx, testDocument("doc", 2,
		"prune bushes in april", "pluck two leaves and a bud"))
	require.NoError(t, err)
	require.Equal(t, domain.JobCompleted, newer.Status)

	old, err := f.chunks.GetChunks(ctx, "doc", 1)
	require.NoError(t, err)
	assert.Empty(t, old)
	assert.Equal(t, 3, f.index.count(DefaultNamespace), "the tail vector of version 1 is still indexed")

	retrieval := NewRetrievalService(
		NewEmbeddingClient(f.provider), NewVectorIndexClient(f.index, 4), f.chunks, nil, nil, DefaultNamespace)
	result, err := retrieval.Search(ctx, "copper spray", domain.RetrievalOptions{})
	require.NoError(t, err)
	require.NotEmpty(t, result.Matches)
	for _, m := range result.Matches {
		assert.NotContains(t, m.Content, "obsolete")
		assert.True(t, strings.HasPrefix(m.ChunkID, "doc-v2-"), m.ChunkID)
	}
}

func TestVectorizationPipeline_FailedNewVersionKeepsOlderChunks(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()

	_, err := f.pipeline.Vectorize(ctx, testDocument("doc", 1, "first", "second"))
	require.NoError(t, err)

	f.provider.failOn = "broken"
	f.provider.err = domain.ErrInvalidInput
	newer, err := f.pipeline.Vectorize(ctx, testDocument("doc", 2, "broken text"))
	require.NoError(t, err)
	require.Equal(t, domain.JobFailed, newer.Status)

	old, err := f.chunks.GetChunks(ctx, "doc", 1)
	require.NoError(t, err)
	assert.Len(t, old, 2)
}

func TestVectorizationPipeline_OlderVersionRejectedWhileNewerActive(t *testing.T) {
	f := newPipelineFixture(t, WithPipelineBatchSize(1), WithPipelineWorkers(1))
	f.provider.blockOn = "v3"
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = f.pipeline.Vectorize(ctx, testDocument("doc", 3, "v3 text"))
	}()
	require.Eventually(t, func() bool { return f.provider.blockedCount() == 1 }, time.Second, 5*time.Millisecond)

	_, err := f.pipeline.Vectorize(context.Background(), testDocument("doc", 2, "v2 text"))
	require.ErrorIs(t, err, domain.ErrJobInProgress)

	_, err = f.pipeline.Vectorize(context.Background(), testDocument("doc", 3, "v3 again"))
	require.ErrorIs(t, err, domain.ErrJobInProgress)

	cancel()
	<-done
}

func TestVectorizationPipeline_Status_NotFound(t *testing.T) {
	f := newPipelineFixture(t)
	_, err := f.pipeline.Status(context.Background(), "nope")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestVectorizationPipeline_Recover(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	f := newPipelineFixture(t, WithPipelineClock(func() time.Time { return now }), WithStaleAfter(15*time.Minute))
	ctx := context.Background()
	stale := now.Add(-time.Hour)

	// In progress, all three chunks saved, one already vectorized.
	resumable := &domain.VectorizationJob{
		ID: "resumable", DocumentID: "doc-r", DocumentVersion: 1, Namespace: "knowledge",
		Status: domain.JobInProgress, Progress: domain.JobProgress{ChunksTotal: 3, ChunksStored: 1},
		CreatedAt: stale, StartedAt: stale, UpdatedAt: stale,
	}
	chunks := []domain.Chunk{
		{ID: "doc-r-v1-0", DocumentID: "doc-r", DocumentVersion: 1, ChunkIndex: 0, Content: "zero", VectorRef: "doc-r-0"},
		{ID: "doc-r-v1-1", DocumentID: "doc-r", DocumentVersion: 1, ChunkIndex: 1, Content: "one"},
		{ID: "doc-r-v1-2", DocumentID: "doc-r", DocumentVersion: 1, ChunkIndex: 2, Content: "two"},
	}
	require.NoError(t, f.chunks.SaveChunks(ctx, chunks))
	f.jobs.put(resumable)

	// In progress, but the crash hit before all chunks were saved.
	incomplete := &domain.VectorizationJob{
		ID: "incomplete", DocumentID: "doc-i", DocumentVersion: 1,
		Status: domain.JobInProgress, Progress: domain.JobProgress{ChunksTotal: 4},
		CreatedAt: stale, UpdatedAt: stale,
	}
	require.NoError(t, f.chunks.SaveChunks(ctx, []domain.Chunk{
		{ID: "doc-i-v1-0", DocumentID: "doc-i", DocumentVersion: 1, ChunkIndex: 0, Content: "x"},
	}))
	f.jobs.put(incomplete)

	f.jobs.put(&domain.VectorizationJob{
		ID: "pending", DocumentID: "doc-p", DocumentVersion: 1,
		Status: domain.JobPending, CreatedAt: stale, UpdatedAt: stale,
	})
	f.jobs.put(&domain.VectorizationJob{
		ID: "fresh", DocumentID: "doc-f", DocumentVersion: 1,
		Status: domain.JobInProgress, CreatedAt: now, UpdatedAt: now.Add(-time.Minute),
	})

	report, err := f.pipeline.Recover(ctx)
	require.NoError(t, err)

	assert.Equal(t, 3, report.Examined)
	assert.Equal(t, []string{"resumable"}, report.Resumed)
	assert.ElementsMatch(t, []string{"incomplete", "pending"}, report.Failed)

	job, err := f.jobs.Get(ctx, "resumable")
	require.NoError(t, err)
	assert.Equal(t, domain.JobCompleted, job.Status)
	assert.Equal(t, 3, job.Progress.ChunksStored)
	assert.ElementsMatch(t, []string{"one", "two"}, f.provider.embedded(), "only unvectorized chunks are processed")

	for _, id := range []string{"incomplete", "pending"} {
		job, err := f.jobs.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, domain.JobFailed, job.Status)
		assert.Contains(t, job.Error, "abandoned")
	}

	fresh, err := f.jobs.Get(ctx, "fresh")
	require.NoError(t, err)
	assert.Equal(t, domain.JobInProgress, fresh.Status)
}

func TestVectorizationPipeline_Recover_BlockedResumeIsPersisted(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	f := newPipelineFixture(t, WithPipelineClock(func() time.Time { return now }),
		WithPipelineBatchSize(1), WithPipelineWorkers(1))
	f.provider.blockOn = "current"
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stale := now.Add(-time.Hour)

	f.jobs.put(&domain.VectorizationJob{
		ID: "stale", DocumentID: "doc", DocumentVersion: 1, Namespace: "knowledge",
		Status: domain.JobInProgress, Progress: domain.JobProgress{ChunksTotal: 1},
		CreatedAt: stale, StartedAt: stale, UpdatedAt: stale,
	})
	require.NoError(t, f.chunks.SaveChunks(ctx, []domain.Chunk{
		{ID: "doc-v1-0", DocumentID: "doc", DocumentVersion: 1, ChunkIndex: 0, Content: "stale text"},
	}))

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = f.pipeline.Vectorize(ctx, testDocument("doc", 2, "current text"))
	}()
	require.Eventually(t, func() bool { return f.provider.blockedCount() == 1 }, time.Second, 5*time.Millisecond)

	report, err := f.pipeline.Recover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Examined)
	assert.Empty(t, report.Resumed)
	assert.Equal(t, []string{"stale"}, report.Failed)

	job, err := f.jobs.Get(context.Background(), "stale")
	require.NoError(t, err)
	assert.Equal(t, domain.JobFailed, job.Status, "report and store agree")
	assert.Contains(t, job.Error, "not resumed")
	assert.NotContains(t, f.provider.embedded(), "stale text")

	cancel()
	<-done
}

func TestVectorizationPipeline_PruneJobs(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	f := newPipelineFixture(t, WithPipelineClock(func() time.Time { return now }), WithJobRetention(7*24*time.Hour))

	f.jobs.put(&domain.VectorizationJob{ID: "old", Status: domain.JobCompleted, CompletedAt: now.AddDate(0, 0, -30)})
	f.jobs.put(&domain.VectorizationJob{ID: "recent", Status: domain.JobPartial, CompletedAt: now.AddDate(0, 0, -1)})
	f.jobs.put(&domain.VectorizationJob{ID: "running", Status: domain.JobInProgress})

	n, err := f.pipeline.PruneJobs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = f.jobs.Get(context.Background(), "old")
	require.ErrorIs(t, err, domain.ErrNotFound)
	_, err = f.jobs.Get(context.Background(), "recent")
	require.NoError(t, err)
}
