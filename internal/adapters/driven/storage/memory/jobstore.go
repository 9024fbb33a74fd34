package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jltournay/farmer-power-knowledge/internal/core/domain"
	"github.com/jltournay/farmer-power-knowledge/internal/core/ports/driven"
)

// Ensure JobStore implements the interface.
var _ driven.JobStore = (*JobStore)(nil)

// JobStore is an in-memory implementation of driven.JobStore.
// Jobs are deep-copied on the way in and out.
type JobStore struct {
	mu   sync.RWMutex
	jobs map[string]*domain.VectorizationJob
}

// NewJobStore creates a new in-memory job store.
func NewJobStore() *JobStore {
	return &JobStore{
		jobs: make(map[string]*domain.VectorizationJob),
	}
}

// Create stores a new job.
func (s *JobStore) Create(_ context.Context, job *domain.VectorizationJob) error {
	if job == nil || job.ID == "" {
		return domain.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; ok {
		return domain.ErrAlreadyExists
	}
	if job.Status.IsActive() {
		for _, j := range s.jobs {
			if j.DocumentID == job.DocumentID && j.DocumentVersion == job.DocumentVersion && j.Status.IsActive() {
				return domain.ErrJobInProgress
			}
		}
	}
	s.jobs[job.ID] = job.Clone()
	return nil
}

// Save updates an existing job.
func (s *JobStore) Save(_ context.Context, job *domain.VectorizationJob) error {
	if job == nil {
		return domain.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.jobs[job.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if stored.Status.IsTerminal() {
		return domain.ErrJobTerminal
	}
	s.jobs[job.ID] = job.Clone()
	return nil
}

// Get retrieves a job by ID.
func (s *JobStore) Get(_ context.Context, id string) (*domain.VectorizationJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return j.Clone(), nil
}

// ListByStatus returns jobs in any of the given statuses, oldest first.
func (s *JobStore) ListByStatus(_ context.Context, statuses ...domain.JobStatus) ([]domain.VectorizationJob, error) {
	want := make(map[domain.JobStatus]bool, len(statuses))
	for _, st := range statuses {
		want[st] = true
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.VectorizationJob
	for _, j := range s.jobs {
		if want[j.Status] {
			out = append(out, *j.Clone())
		}
	}
	sort.Slice(out, func(i, k int) bool {
		if !out[i].CreatedAt.Equal(out[k].CreatedAt) {
			return out[i].CreatedAt.Before(out[k].CreatedAt)
		}
		return out[i].ID < out[k].ID
	})
	return out, nil
}

// ListByDocument returns all jobs for a document, newest first.
func (s *JobStore) ListByDocument(_ context.Context, documentID string) ([]domain.VectorizationJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.VectorizationJob
	for _, j := range s.jobs {
		if j.DocumentID == documentID {
			out = append(out, *j.Clone())
		}
	}
	sort.Slice(out, func(i, k int) bool {
		if !out[i].CreatedAt.Equal(out[k].CreatedAt) {
			return out[i].CreatedAt.After(out[k].CreatedAt)
		}
		return out[i].DocumentVersion > out[k].DocumentVersion
	})
	return out, nil
}

// PruneTerminal deletes terminal jobs completed before olderThan.
func (s *JobStore) PruneTerminal(_ context.Context, olderThan time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, j := range s.jobs {
		if j.Status.IsTerminal() && j.CompletedAt.Before(olderThan) {
			delete(s.jobs, id)
			n++
		}
	}
	return n, nil
}
