package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/jltournay/farmer-power-knowledge/internal/core/domain"
	"github.com/jltournay/farmer-power-knowledge/internal/core/ports/driven"
	"github.com/jltournay/farmer-power-knowledge/internal/core/ports/driving"
	"github.com/jltournay/farmer-power-knowledge/internal/logger"
	"github.com/jltournay/farmer-power-knowledge/internal/telemetry"
)

// Ensure VectorizationPipeline implements the interface.
var _ driving.VectorizationService = (*VectorizationPipeline)(nil)

// Default pipeline values.
const (
	DefaultNamespace       = "knowledge"
	DefaultPipelineBatch   = 32
	DefaultPipelineWorkers = 4
	DefaultStaleAfter      = 15 * time.Minute
	DefaultJobRetention    = 30 * 24 * time.Hour
)

// VectorizationPipeline chunks documents, embeds the chunks and stores
// the vectors, tracking every run as a persisted job.
type VectorizationPipeline struct {
	chunker  driven.DocumentChunker
	chunks   driven.ChunkStore
	jobs     driven.JobStore
	embedder *EmbeddingClient
	index    *VectorIndexClient

	namespace  string
	batchSize  int
	workers    int
	staleAfter time.Duration
	retention  time.Duration
	now        func() time.Time

	mu     sync.Mutex
	active map[string]*activeJob
	byDoc  map[docVersion]*activeJob
}

type docVersion struct {
	documentID string
	version    int
}

// activeJob is a job running in this process.
type activeJob struct {
	id     string
	key    docVersion
	cancel context.CancelFunc

	mu       sync.RWMutex
	snapshot *domain.VectorizationJob
}

func (a *activeJob) publish(job *domain.VectorizationJob) {
	a.mu.Lock()
	a.snapshot = job.Clone()
	a.mu.Unlock()
}

func (a *activeJob) view() *domain.VectorizationJob {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.snapshot.Clone()
}

// PipelineOption configures the vectorization pipeline.
type PipelineOption func(*VectorizationPipeline)

// WithPipelineBatchSize sets the number of chunks embedded per call.
func WithPipelineBatchSize(n int) PipelineOption {
	return func(p *VectorizationPipeline) {
		if n > 0 {
			p.batchSize = n
		}
	}
}

// WithPipelineWorkers sets the number of batches processed concurrently.
func WithPipelineWorkers(n int) PipelineOption {
	return func(p *VectorizationPipeline) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithPipelineNamespace sets the namespace used when a document has none.
func WithPipelineNamespace(ns string) PipelineOption {
	return func(p *VectorizationPipeline) {
		if ns != "" {
			p.namespace = ns
		}
	}
}

// WithStaleAfter sets how long a job may go without a heartbeat before
// recovery treats it as abandoned.
func WithStaleAfter(d time.Duration) PipelineOption {
	return func(p *VectorizationPipeline) {
		if d > 0 {
			p.staleAfter = d
		}
	}
}

// WithJobRetention sets how long terminal jobs are kept.
func WithJobRetention(d time.Duration) PipelineOption {
	return func(p *VectorizationPipeline) {
		if d > 0 {
			p.retention = d
		}
	}
}

// WithPipelineClock overrides the time source.
func WithPipelineClock(now func() time.Time) PipelineOption {
	return func(p *VectorizationPipeline) {
		if now != nil {
			p.now = now
		}
	}
}

// NewVectorizationPipeline creates a pipeline.
func NewVectorizationPipeline(
	chunker driven.DocumentChunker,
	chunks driven.ChunkStore,
	jobs driven.JobStore,
	embedder *EmbeddingClient,
	index *VectorIndexClient,
	opts ...PipelineOption,
) *VectorizationPipeline {
	p := &VectorizationPipeline{
		chunker:    chunker,
		chunks:     chunks,
		jobs:       jobs,
		embedder:   embedder,
		index:      index,
		namespace:  DefaultNamespace,
		batchSize:  DefaultPipelineBatch,
		workers:    DefaultPipelineWorkers,
		staleAfter: DefaultStaleAfter,
		retention:  DefaultJobRetention,
		now:        time.Now,
		active:     make(map[string]*activeJob),
		byDoc:      make(map[docVersion]*activeJob),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Namespace returns the default namespace.
func (p *VectorizationPipeline) Namespace() string {
	return p.namespace
}

// Vectorize runs a job for the document version to completion.
func (p *VectorizationPipeline) Vectorize(ctx context.Context, doc *domain.Document) (*domain.VectorizationJob, error) {
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	logger.Section("Vectorize")

	namespace := doc.Namespace
	if namespace == "" {
		namespace = p.namespace
	}

	now := p.now()
	job := &domain.VectorizationJob{
		ID:              uuid.NewString(),
		DocumentID:      doc.ID,
		DocumentVersion: doc.Version,
		Namespace:       namespace,
		Status:          domain.JobPending,
		ContentHash:     doc.ContentHash(),
		DocumentMeta:    doc.Meta(),
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	runCtx, run, err := p.register(ctx, job)
	if err != nil {
		return nil, err
	}
	defer p.unregister(run)

	// Persistence outlives cancellation so the final state is always written.
	persistCtx := context.WithoutCancel(ctx)
	if err := p.jobs.Create(persistCtx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	run.publish(job)

	telemetry.JobStarted()
	started := p.now()
	defer func() {
		telemetry.JobFinished(string(job.Status), p.now().Sub(started))
	}()

	runCtx, span := telemetry.StartSpan(runCtx, "vectorization.job",
		attribute.String("job.id", job.ID),
		attribute.String("document.id", doc.ID),
		attribute.Int("document.version", doc.Version),
	)

	if err := job.Transition(domain.JobInProgress, p.now()); err != nil {
		telemetry.EndSpan(span, err)
		return job, err
	}
	if err := p.jobs.Save(persistCtx, job); err != nil {
		err = fmt.Errorf("start job: %w", err)
		telemetry.EndSpan(span, err)
		return job, err
	}
	run.publish(job)
	logger.Info("vectorization started", "job_id", job.ID, "document_id", doc.ID, "version", doc.Version)

	chunks, err := p.prepareChunks(runCtx, persistCtx, doc)
	if err != nil {
		err = p.fail(persistCtx, run, job, err)
		telemetry.EndSpan(span, err)
		return job, err
	}

	job.Progress.ChunksTotal = len(chunks)
	job.UpdatedAt = p.now()
	if err := p.jobs.Save(persistCtx, job); err != nil {
		logger.Warn("failed to persist job progress", "job_id", job.ID, "error", err)
	}
	run.publish(job)

	p.process(runCtx, persistCtx, run, job, chunks)

	err = p.finish(persistCtx, run, job)
	telemetry.EndSpan(span, err)
	return job, err
}

// prepareChunks replaces the stored chunks of the document version.
// Any failure is fatal for the job.
func (p *VectorizationPipeline) prepareChunks(
	ctx, persistCtx context.Context, doc *domain.Document,
) ([]domain.Chunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrJobCancelled, err)
	}

	removed, err := p.chunks.DeleteChunks(persistCtx, doc.ID, doc.Version)
	if err != nil {
		return nil, fmt.Errorf("%w: delete chunks: %v", domain.ErrChunkStoreUnavailable, err)
	}
	if removed > 0 {
		logger.Debug("removed existing chunks", "document_id", doc.ID, "version", doc.Version, "count", removed)
	}

	chunks, err := p.chunker.Process(ctx, doc)
	if err != nil {
		return nil, fmt.Errorf("chunk document: %w", err)
	}

	created := p.now()
	for i := range chunks {
		chunks[i].CreatedAt = created
	}
	if len(chunks) > 0 {
		if err := p.chunks.SaveChunks(persistCtx, chunks); err != nil {
			return nil, fmt.Errorf("%w: save chunks: %v", domain.ErrChunkStoreUnavailable, err)
		}
	}
	return chunks, nil
}

// eventKind identifies a progress event.
type eventKind int

const (
	eventEmbedded eventKind = iota
	eventStored
	eventFailed
)

// progressEvent is sent by workers to the collector, the only writer of
// job counters.
type progressEvent struct {
	kind  eventKind
	chunk domain.Chunk
	count int
	err   error
}

// process embeds and stores chunks with a bounded worker pool.
func (p *VectorizationPipeline) process(
	ctx, persistCtx context.Context,
	run *activeJob,
	job *domain.VectorizationJob,
	chunks []domain.Chunk,
) {
	if len(chunks) == 0 {
		return
	}

	events := make(chan progressEvent, p.workers*2)
	done := make(chan struct{})
	go func() {
		defer close(done)
		p.collect(persistCtx, run, job, events)
	}()

	emit := func(ev progressEvent) { events <- ev }
	namespace, meta := job.Namespace, job.DocumentMeta

	var g errgroup.Group
	g.SetLimit(p.workers)
	for start := 0; start < len(chunks); start += p.batchSize {
		end := start + p.batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]
		g.Go(func() error {
			p.processBatch(ctx, persistCtx, namespace, meta, batch, emit)
			return nil
		})
	}
	_ = g.Wait()

	close(events)
	<-done
}

// collect applies worker events to the job, persisting each change.
func (p *VectorizationPipeline) collect(
	ctx context.Context,
	run *activeJob,
	job *domain.VectorizationJob,
	events <-chan progressEvent,
) {
	for ev := range events {
		switch ev.kind {
		case eventEmbedded:
			job.Progress.ChunksEmbedded += ev.count
		case eventStored:
			job.Progress.ChunksStored++
			telemetry.ChunksProcessed("stored", 1)
		case eventFailed:
			job.RecordFailure(ev.chunk, ev.err)
			telemetry.ChunksProcessed("failed", 1)
			logger.Warn("chunk failed",
				"job_id", job.ID, "chunk_id", ev.chunk.ID, "error", ev.err)
		}

		job.UpdatedAt = p.now()
		if err := p.jobs.Save(ctx, job); err != nil {
			logger.Warn("failed to persist job progress", "job_id", job.ID, "error", err)
		}
		run.publish(job)
	}
}

// embeddedChunk pairs a chunk with its vector.
type embeddedChunk struct {
	chunk  domain.Chunk
	values []float32
}

// processBatch embeds one batch and stores its vectors. Every chunk of the
// batch ends in exactly one stored or failed event.
func (p *VectorizationPipeline) processBatch(
	ctx, persistCtx context.Context,
	namespace string,
	meta domain.DocumentMeta,
	batch []domain.Chunk,
	emit func(progressEvent),
) {
	if ctx.Err() != nil {
		for _, c := range batch {
			emit(progressEvent{kind: eventFailed, chunk: c, err: p.chunkError(ctx, ctx.Err())})
		}
		return
	}

	embedded := p.embedBatch(ctx, batch, emit)
	if len(embedded) == 0 {
		return
	}
	emit(progressEvent{kind: eventEmbedded, count: len(embedded)})

	records := make([]domain.VectorRecord, 0, len(embedded))
	owners := make([]domain.Chunk, 0, len(embedded))
	for _, e := range embedded {
		record, err := p.index.BuildRecord(e.chunk, meta, e.values)
		if err != nil {
			emit(progressEvent{kind: eventFailed, chunk: e.chunk, err: err})
			continue
		}
		records = append(records, record)
		owners = append(owners, e.chunk)
	}
	if len(records) == 0 {
		return
	}

	_, err := p.index.Upsert(ctx, namespace, records)
	if err == nil {
		for i := range records {
			p.commit(persistCtx, owners[i], records[i].ID, emit)
		}
		return
	}
	if len(records) == 1 || ctx.Err() != nil {
		for _, c := range owners {
			emit(progressEvent{kind: eventFailed, chunk: c, err: p.chunkError(ctx, err)})
		}
		return
	}

	logger.Warn("batch upsert failed, retrying records individually",
		"records", len(records), "error", err)
	for i := range records {
		if _, err := p.index.Upsert(ctx, namespace, records[i:i+1]); err != nil {
			emit(progressEvent{kind: eventFailed, chunk: owners[i], err: p.chunkError(ctx, err)})
			continue
		}
		p.commit(persistCtx, owners[i], records[i].ID, emit)
	}
}

// embedBatch embeds the batch in one call, falling back to one call per
// chunk when the batch fails.
func (p *VectorizationPipeline) embedBatch(
	ctx context.Context, batch []domain.Chunk, emit func(progressEvent),
) []embeddedChunk {
	texts := make([]string, len(batch))
	for i, c := range batch {
		texts[i] = c.Content
	}

	vectors, err := p.embedder.EmbedPassages(ctx, texts)
	if err == nil {
		out := make([]embeddedChunk, len(batch))
		for i, c := range batch {
			out[i] = embeddedChunk{chunk: c, values: vectors[i]}
		}
		return out
	}

	if len(batch) == 1 || ctx.Err() != nil {
		for _, c := range batch {
			emit(progressEvent{kind: eventFailed, chunk: c, err: p.chunkError(ctx, err)})
		}
		return nil
	}

	logger.Warn("batch embedding failed, retrying chunks individually",
		"chunks", len(batch), "error", err)

	var out []embeddedChunk
	for _, c := range batch {
		v, err := p.embedder.EmbedPassages(ctx, []string{c.Content})
		if err != nil {
			emit(progressEvent{kind: eventFailed, chunk: c, err: p.chunkError(ctx, err)})
			continue
		}
		out = append(out, embeddedChunk{chunk: c, values: v[0]})
	}
	return out
}

// commit links a stored vector to its chunk.
func (p *VectorizationPipeline) commit(ctx context.Context, chunk domain.Chunk, vectorID string, emit func(progressEvent)) {
	if err := p.chunks.SetVectorRef(ctx, chunk.ID, vectorID); err != nil {
		emit(progressEvent{kind: eventFailed, chunk: chunk,
			err: fmt.Errorf("%w: set vector ref: %v", domain.ErrChunkStoreUnavailable, err)})
		return
	}
	emit(progressEvent{kind: eventStored, chunk: chunk})
}

// chunkError reports cancellation in place of the provider error once
// the job context is done.
func (p *VectorizationPipeline) chunkError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("%w before chunk was committed", domain.ErrJobCancelled)
	}
	return err
}

// finish classifies and writes the terminal status.
func (p *VectorizationPipeline) finish(ctx context.Context, run *activeJob, job *domain.VectorizationJob) error {
	status := domain.ClassifyStatus(job.Progress)
	if err := job.Transition(status, p.now()); err != nil {
		return err
	}
	if status == domain.JobFailed && job.Error == "" && job.Progress.ChunksStored == 0 && job.Progress.ChunksTotal > 0 {
		job.Error = "no chunks were stored"
	}
	run.publish(job)

	if err := p.jobs.Save(ctx, job); err != nil {
		return fmt.Errorf("save job: %w", err)
	}
	if status == domain.JobCompleted || status == domain.JobPartial {
		p.dropOlderVersions(ctx, job)
	}

	logger.Info("vectorization finished",
		"job_id", job.ID, "status", job.Status,
		"stored", job.Progress.ChunksStored, "failed", job.Progress.FailedCount,
		"total", job.Progress.ChunksTotal)
	return nil
}

// dropOlderVersions removes the chunks of superseded versions once a
// newer version is searchable. Vector IDs do not carry the version, so
// old vectors beyond the new chunk count stay in the index; retrieval
// skips them because their chunks are gone.
func (p *VectorizationPipeline) dropOlderVersions(ctx context.Context, job *domain.VectorizationJob) {
	n, err := p.chunks.DeleteOlderVersions(ctx, job.DocumentID, job.DocumentVersion)
	if err != nil {
		logger.Warn("failed to remove chunks of older versions",
			"job_id", job.ID, "document_id", job.DocumentID, "error", err)
		return
	}
	if n > 0 {
		logger.Info("removed chunks of older versions",
			"document_id", job.DocumentID, "version", job.DocumentVersion, "count", n)
	}
}

// fail marks the job failed after a fatal error and returns the error.
func (p *VectorizationPipeline) fail(ctx context.Context, run *activeJob, job *domain.VectorizationJob, cause error) error {
	job.Error = cause.Error()
	if err := job.Transition(domain.JobFailed, p.now()); err != nil {
		return errors.Join(cause, err)
	}
	run.publish(job)
	if err := p.jobs.Save(ctx, job); err != nil {
		logger.Error("failed to persist failed job", "job_id", job.ID, "error", err)
	}
	logger.Error("vectorization failed", "job_id", job.ID, "error", cause)
	return cause
}

// register claims the document version for the job and supersedes
// active jobs for older versions of the same document.
func (p *VectorizationPipeline) register(
	ctx context.Context, job *domain.VectorizationJob,
) (context.Context, *activeJob, error) {
	key := docVersion{documentID: job.DocumentID, version: job.DocumentVersion}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.byDoc[key]; ok {
		return nil, nil, fmt.Errorf("%w: document %s version %d",
			domain.ErrJobInProgress, job.DocumentID, job.DocumentVersion)
	}
	for k := range p.byDoc {
		if k.documentID == key.documentID && k.version > key.version {
			return nil, nil, fmt.Errorf("%w: newer version %d of document %s is being vectorized",
				domain.ErrJobInProgress, k.version, key.documentID)
		}
	}
	for k, other := range p.byDoc {
		if k.documentID == key.documentID && k.version < key.version {
			logger.Info("superseding older job",
				"job_id", other.id, "document_id", k.documentID, "version", k.version)
			other.cancel()
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	run := &activeJob{id: job.ID, key: key, cancel: cancel}
	p.active[job.ID] = run
	p.byDoc[key] = run
	return runCtx, run, nil
}

func (p *VectorizationPipeline) unregister(run *activeJob) {
	p.mu.Lock()
	defer p.mu.Unlock()
	run.cancel()
	delete(p.active, run.id)
	if p.byDoc[run.key] == run {
		delete(p.byDoc, run.key)
	}
}

func (p *VectorizationPipeline) lookup(jobID string) (*activeJob, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	run, ok := p.active[jobID]
	return run, ok
}

// Status returns the live snapshot for an active job, else the
// persisted job.
func (p *VectorizationPipeline) Status(ctx context.Context, jobID string) (*driving.JobStatusReport, error) {
	if run, ok := p.lookup(jobID); ok {
		if job := run.view(); job != nil {
			return &driving.JobStatusReport{Job: job, Active: true, ETASeconds: job.ETASeconds(p.now())}, nil
		}
	}

	job, err := p.jobs.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return &driving.JobStatusReport{Job: job, ETASeconds: job.ETASeconds(p.now())}, nil
}

// Cancel stops an active job. A persisted job that is active but not
// running in this process is marked failed.
func (p *VectorizationPipeline) Cancel(ctx context.Context, jobID string) error {
	if run, ok := p.lookup(jobID); ok {
		logger.Info("cancelling job", "job_id", jobID)
		run.cancel()
		return nil
	}

	job, err := p.jobs.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status.IsTerminal() {
		return fmt.Errorf("%w: job %s is %s", domain.ErrJobTerminal, job.ID, job.Status)
	}
	job.Error = domain.ErrJobCancelled.Error()
	if err := job.Transition(domain.JobFailed, p.now()); err != nil {
		return err
	}
	return p.jobs.Save(ctx, job)
}

// ListJobs returns the jobs of a document, newest first.
func (p *VectorizationPipeline) ListJobs(ctx context.Context, documentID string) ([]domain.VectorizationJob, error) {
	return p.jobs.ListByDocument(ctx, documentID)
}

// PruneJobs deletes terminal jobs completed before the retention window.
func (p *VectorizationPipeline) PruneJobs(ctx context.Context) (int, error) {
	n, err := p.jobs.PruneTerminal(ctx, p.now().Add(-p.retention))
	if err != nil {
		return 0, fmt.Errorf("prune jobs: %w", err)
	}
	if n > 0 {
		logger.Info("pruned terminal jobs", "count", n)
	}
	return n, nil
}

// Recover resumes or fails jobs abandoned by a previous process.
// A stale in-progress job whose chunk set was fully persisted is resumed
// for the chunks that have no vector yet; every other stale job is
// marked failed.
func (p *VectorizationPipeline) Recover(ctx context.Context) (*driving.RecoveryReport, error) {
	jobs, err := p.jobs.ListByStatus(ctx, domain.JobPending, domain.JobInProgress)
	if err != nil {
		return nil, fmt.Errorf("list active jobs: %w", err)
	}

	report := &driving.RecoveryReport{}
	cutoff := p.now().Add(-p.staleAfter)
	for i := range jobs {
		job := &jobs[i]
		if _, ok := p.lookup(job.ID); ok || job.UpdatedAt.After(cutoff) {
			continue
		}
		report.Examined++

		chunks, complete, err := p.persistedChunks(ctx, job)
		if err != nil {
			return report, err
		}
		if job.Status == domain.JobInProgress && complete {
			err := p.resume(ctx, job, chunks)
			if err == nil {
				report.Resumed = append(report.Resumed, job.ID)
				continue
			}
			logger.Warn("resume failed", "job_id", job.ID, "error", err)
			if job.Status.IsTerminal() {
				report.Failed = append(report.Failed, job.ID)
				continue
			}
			// Not started, usually because another job for the document is running here.
			if err := p.markAbandoned(ctx, job, fmt.Sprintf("not resumed: %v", err)); err != nil {
				return report, err
			}
			report.Failed = append(report.Failed, job.ID)
			continue
		}

		reason := fmt.Sprintf("abandoned: no heartbeat since %s", job.UpdatedAt.UTC().Format(time.RFC3339))
		if err := p.markAbandoned(ctx, job, reason); err != nil {
			return report, err
		}
		report.Failed = append(report.Failed, job.ID)
	}

	if report.Examined > 0 {
		logger.Info("job recovery finished",
			"examined", report.Examined, "resumed", len(report.Resumed), "failed", len(report.Failed))
	}
	return report, nil
}

// markAbandoned persists a stale job as failed.
func (p *VectorizationPipeline) markAbandoned(ctx context.Context, job *domain.VectorizationJob, reason string) error {
	job.Error = reason
	if err := job.Transition(domain.JobFailed, p.now()); err != nil {
		return err
	}
	if err := p.jobs.Save(ctx, job); err != nil {
		return fmt.Errorf("save job %s: %w", job.ID, err)
	}
	telemetry.JobFinished(string(domain.JobFailed), 0)
	logger.Warn("marked stale job failed", "job_id", job.ID, "document_id", job.DocumentID, "reason", reason)
	return nil
}

// persistedChunks loads the job's chunks and reports whether the whole
// chunk set was saved before the crash.
func (p *VectorizationPipeline) persistedChunks(
	ctx context.Context, job *domain.VectorizationJob,
) ([]domain.Chunk, bool, error) {
	if job.Status != domain.JobInProgress || job.Progress.ChunksTotal == 0 {
		return nil, false, nil
	}
	chunks, err := p.chunks.GetChunks(ctx, job.DocumentID, job.DocumentVersion)
	if err != nil {
		return nil, false, fmt.Errorf("%w: load chunks for job %s: %v", domain.ErrChunkStoreUnavailable, job.ID, err)
	}
	complete := len(chunks) == job.Progress.ChunksTotal && domain.CheckContiguous(chunks) == nil
	return chunks, complete, nil
}

// resume processes the unvectorized chunks of a recovered job, with
// counters rebuilt from the chunk store.
func (p *VectorizationPipeline) resume(ctx context.Context, job *domain.VectorizationJob, chunks []domain.Chunk) error {
	runCtx, run, err := p.register(ctx, job)
	if err != nil {
		return err
	}
	defer p.unregister(run)

	var pending []domain.Chunk
	stored := 0
	for _, c := range chunks {
		if c.IsVectorized() {
			stored++
			continue
		}
		pending = append(pending, c)
	}

	job.Progress = domain.JobProgress{
		ChunksTotal:    len(chunks),
		ChunksEmbedded: stored,
		ChunksStored:   stored,
	}
	job.FailedChunks = nil
	job.UpdatedAt = p.now()

	persistCtx := context.WithoutCancel(ctx)
	if err := p.jobs.Save(persistCtx, job); err != nil {
		return fmt.Errorf("save job: %w", err)
	}
	run.publish(job)
	logger.Info("resuming job", "job_id", job.ID, "pending", len(pending), "stored", stored)

	telemetry.JobStarted()
	started := p.now()
	p.process(runCtx, persistCtx, run, job, pending)
	err = p.finish(persistCtx, run, job)
	telemetry.JobFinished(string(job.Status), p.now().Sub(started))
	return err
}
