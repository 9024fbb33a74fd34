package services

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jltournay/farmer-power-knowledge/internal/core/domain"
	"github.com/jltournay/farmer-power-knowledge/internal/core/ports/driven"
)

// fastRetry keeps retry tests quick.
var fastRetry = RetryPolicy{MaxRetries: 2, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}

// --- embedding provider ---

// fakeProvider returns deterministic vectors. failOn makes any call whose
// texts contain the marker fail with err.
type fakeProvider struct {
	mu       sync.Mutex
	dims     int
	maxBatch int
	calls    [][]string
	types    []domain.InputType
	failOn   string
	err      error
	failures int // fail the first n calls with err
	short    bool
	blockOn  string
	blocked  int
}

func newFakeProvider(dims int) *fakeProvider {
	return &fakeProvider{dims: dims, maxBatch: 100}
}

func (f *fakeProvider) Embed(
	ctx context.Context, texts []string, inputType domain.InputType, _ domain.TruncateMode,
) (*driven.EmbeddingResponse, error) {
	// Calls for blocked texts wait for cancellation.
	if f.blockOn != "" && anyContains(texts, f.blockOn) {
		f.mu.Lock()
		f.blocked++
		f.mu.Unlock()
		<-ctx.Done()
		return nil, ctx.Err()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, append([]string(nil), texts...))
	f.types = append(f.types, inputType)

	if f.failures > 0 {
		f.failures--
		return nil, f.err
	}
	if f.failOn != "" && anyContains(texts, f.failOn) {
		return nil, f.err
	}

	out := make([][]float32, 0, len(texts))
	for _, t := range texts {
		out = append(out, textVector(t, f.dims))
	}
	if f.short && len(out) > 0 {
		out = out[:len(out)-1]
	}
	return &driven.EmbeddingResponse{Embeddings: out, Model: "fake-embed", TokensUsed: len(texts) * 2}, nil
}

func (f *fakeProvider) MaxBatchSize() int { return f.maxBatch }

func (f *fakeProvider) Dimensions() int { return f.dims }

func (f *fakeProvider) ModelName() string { return "fake-embed" }

func (f *fakeProvider) Ping(_ context.Context) error { return nil }

func (f *fakeProvider) Close() error { return nil }

func (f *fakeProvider) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeProvider) lastType() domain.InputType {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.types[len(f.types)-1]
}

func (f *fakeProvider) blockedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.blocked
}

func (f *fakeProvider) embedded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.calls {
		out = append(out, c...)
	}
	return out
}

func anyContains(texts []string, marker string) bool {
	for _, t := range texts {
		if strings.Contains(t, marker) {
			return true
		}
	}
	return false
}

func (f *fakeProvider) batchSizes() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	sizes := make([]int, len(f.calls))
	for i, c := range f.calls {
		sizes[i] = len(c)
	}
	return sizes
}

// textVector derives a small vector from the text bytes.
func textVector(text string, dims int) []float32 {
	v := make([]float32, dims)
	for i := 0; i < len(text); i++ {
		v[i%dims] += float32(text[i]) / 255
	}
	v[0] += 0.001
	return v
}

// --- vector index ---

type fakeIndex struct {
	mu        sync.Mutex
	vectors   map[string]map[string]domain.VectorRecord
	upserts   int
	failOnID  string
	failBatch bool
	err       error
	queryErr  error
	matches   []domain.VectorMatch
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{vectors: make(map[string]map[string]domain.VectorRecord)}
}

func (f *fakeIndex) Upsert(_ context.Context, namespace string, records []domain.VectorRecord) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts++
	if f.failBatch && len(records) > 1 {
		return 0, fmt.Errorf("%w: batch too large", domain.ErrVectorIndexUnavailable)
	}
	for _, r := range records {
		if f.failOnID != "" && r.ID == f.failOnID {
			return 0, f.err
		}
	}
	ns := f.vectors[namespace]
	if ns == nil {
		ns = make(map[string]domain.VectorRecord)
		f.vectors[namespace] = ns
	}
	for _, r := range records {
		ns[r.ID] = r
	}
	return len(records), nil
}

func (f *fakeIndex) Query(_ context.Context, q domain.VectorQuery) ([]domain.VectorMatch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	if f.matches != nil {
		return append([]domain.VectorMatch(nil), f.matches...), nil
	}
	var out []domain.VectorMatch
	for _, r := range f.vectors[q.Namespace] {
		if !q.Filter.Matches(r.Metadata) {
			continue
		}
		out = append(out, domain.VectorMatch{ID: r.ID, Score: cosine(q.Vector, r.Values), Metadata: r.Metadata})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeIndex) Stats(_ context.Context, namespace string) (*domain.IndexStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stats := &domain.IndexStats{NamespaceCounts: map[string]int{}}
	for ns, recs := range f.vectors {
		if namespace != "" && ns != namespace {
			continue
		}
		stats.NamespaceCounts[ns] = len(recs)
		stats.TotalVectorCount += len(recs)
	}
	return stats, nil
}

func (f *fakeIndex) Close() error { return nil }

func (f *fakeIndex) count(namespace string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.vectors[namespace])
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// --- chunk store ---

type fakeChunkStore struct {
	mu        sync.Mutex
	chunks    map[string]domain.Chunk
	saveErr   error
	refErrFor string
}

func newFakeChunkStore() *fakeChunkStore {
	return &fakeChunkStore{chunks: make(map[string]domain.Chunk)}
}

func (f *fakeChunkStore) SaveChunks(_ context.Context, chunks []domain.Chunk) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	for _, c := range chunks {
		f.chunks[c.ID] = c
	}
	return nil
}

func (f *fakeChunkStore) GetChunks(_ context.Context, documentID string, version int) ([]domain.Chunk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Chunk
	for _, c := range f.chunks {
		if c.DocumentID == documentID && c.DocumentVersion == version {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChunkIndex < out[j].ChunkIndex })
	return out, nil
}

func (f *fakeChunkStore) GetChunk(_ context.Context, id string) (*domain.Chunk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.chunks[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &c, nil
}

func (f *fakeChunkStore) DeleteChunks(_ context.Context, documentID string, version int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for id, c := range f.chunks {
		if c.DocumentID == documentID && c.DocumentVersion == version {
			delete(f.chunks, id)
			n++
		}
	}
	return n, nil
}

func (f *fakeChunkStore) DeleteOlderVersions(_ context.Context, documentID string, version int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for id, c := range f.chunks {
		if c.DocumentID == documentID && c.DocumentVersion < version {
			delete(f.chunks, id)
			n++
		}
	}
	return n, nil
}

func (f *fakeChunkStore) SetVectorRef(_ context.Context, chunkID, vectorRef string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if chunkID == f.refErrFor {
		return fmt.Errorf("disk full")
	}
	c, ok := f.chunks[chunkID]
	if !ok {
		return domain.ErrNotFound
	}
	c.VectorRef = vectorRef
	f.chunks[chunkID] = c
	return nil
}

// --- job store ---

type fakeJobStore struct {
	mu    sync.Mutex
	jobs  map[string]*domain.VectorizationJob
	saves int
	// invalid holds every written progress that broke the counter ordering.
	invalid []domain.JobProgress
}

func newFakeJobStore() *fakeJobStore {
	return &fakeJobStore{jobs: make(map[string]*domain.VectorizationJob)}
}

func (f *fakeJobStore) Create(_ context.Context, job *domain.VectorizationJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.jobs[job.ID]; ok {
		return domain.ErrAlreadyExists
	}
	for _, j := range f.jobs {
		if j.DocumentID == job.DocumentID && j.DocumentVersion == job.DocumentVersion && j.Status.IsActive() {
			return domain.ErrJobInProgress
		}
	}
	f.check(job)
	f.jobs[job.ID] = job.Clone()
	return nil
}

func (f *fakeJobStore) Save(_ context.Context, job *domain.VectorizationJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.jobs[job.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if stored.Status.IsTerminal() {
		return domain.ErrJobTerminal
	}
	f.saves++
	f.check(job)
	f.jobs[job.ID] = job.Clone()
	return nil
}

// check must be called with mu held.
func (f *fakeJobStore) check(job *domain.VectorizationJob) {
	if !job.Progress.Valid() {
		f.invalid = append(f.invalid, job.Progress)
	}
}

func (f *fakeJobStore) invalidProgress() []domain.JobProgress {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.JobProgress(nil), f.invalid...)
}

func (f *fakeJobStore) Get(_ context.Context, id string) (*domain.VectorizationJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return j.Clone(), nil
}

func (f *fakeJobStore) ListByStatus(_ context.Context, statuses ...domain.JobStatus) ([]domain.VectorizationJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.VectorizationJob
	for _, j := range f.jobs {
		for _, s := range statuses {
			if j.Status == s {
				out = append(out, *j.Clone())
			}
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].CreatedAt.Before(out[k].CreatedAt) })
	return out, nil
}

func (f *fakeJobStore) ListByDocument(_ context.Context, documentID string) ([]domain.VectorizationJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.VectorizationJob
	for _, j := range f.jobs {
		if j.DocumentID == documentID {
			out = append(out, *j.Clone())
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].CreatedAt.After(out[k].CreatedAt) })
	return out, nil
}

func (f *fakeJobStore) PruneTerminal(_ context.Context, olderThan time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for id, j := range f.jobs {
		if j.Status.IsTerminal() && j.CompletedAt.Before(olderThan) {
			delete(f.jobs, id)
			n++
		}
	}
	return n, nil
}

func (f *fakeJobStore) put(job *domain.VectorizationJob) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs[job.ID] = job.Clone()
}

// --- reranker ---

type fakeReranker struct {
	scores  map[string]float64
	results []domain.RerankResult
	err     error
	delay   time.Duration
	calls   int
}

func (f *fakeReranker) Rerank(ctx context.Context, _, _ string, documents []string) ([]domain.RerankResult, error) {
	f.calls++
	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", domain.ErrRerankerUnavailable, ctx.Err())
		case <-time.After(f.delay):
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	if f.results != nil {
		return f.results, nil
	}
	out := make([]domain.RerankResult, len(documents))
	for i, d := range documents {
		out[i] = domain.RerankResult{Index: i, Score: f.scores[d]}
	}
	return out, nil
}

func (f *fakeReranker) Close() error { return nil }

// --- chunker ---

// lineChunker makes one chunk per non-empty line.
type lineChunker struct {
	err error
}

func (l *lineChunker) Process(ctx context.Context, doc *domain.Document) ([]domain.Chunk, error) {
	if l.err != nil {
		return nil, l.err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var chunks []domain.Chunk
	for _, line := range strings.Split(doc.Content, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		i := len(chunks)
		chunks = append(chunks, domain.Chunk{
			ID:              domain.ChunkID(doc.ID, doc.Version, i),
			DocumentID:      doc.ID,
			DocumentVersion: doc.Version,
			ChunkIndex:      i,
			Content:         line,
			WordCount:       len(strings.Fields(line)),
			CharCount:       len(line),
		})
	}
	return chunks, nil
}

// Ensure fakes implement interfaces.
var (
	_ driven.EmbeddingProvider = (*fakeProvider)(nil)
	_ driven.VectorIndex       = (*fakeIndex)(nil)
	_ driven.ChunkStore        = (*fakeChunkStore)(nil)
	_ driven.JobStore          = (*fakeJobStore)(nil)
	_ driven.Reranker          = (*fakeReranker)(nil)
	_ driven.DocumentChunker   = (*lineChunker)(nil)
)
