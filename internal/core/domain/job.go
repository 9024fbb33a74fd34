package domain

import (
	"fmt"
	"math"
	"time"
)

// JobStatus is the lifecycle state of a vectorization job.
type JobStatus string

// Job states. Transitions are monotonic:
// pending -> in_progress -> {completed | failed | partial}.
const (
	JobPending    JobStatus = "pending"
	JobInProgress JobStatus = "in_progress"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
	JobPartial    JobStatus = "partial"
)

// IsValid returns true if the status is recognised.
func (s JobStatus) IsValid() bool {
	switch s {
	case JobPending, JobInProgress, JobCompleted, JobFailed, JobPartial:
		return true
	default:
		return false
	}
}

// IsTerminal returns true for completed, failed and partial.
func (s JobStatus) IsTerminal() bool {
	return s == JobCompleted || s == JobFailed || s == JobPartial
}

// IsActive returns true for pending and in_progress.
func (s JobStatus) IsActive() bool {
	return s == JobPending || s == JobInProgress
}

// String returns the string representation.
func (s JobStatus) String() string {
	return string(s)
}

// CanTransition reports whether from -> to is allowed.
func CanTransition(from, to JobStatus) bool {
	switch from {
	case JobPending:
		return to == JobInProgress || to == JobFailed
	case JobInProgress:
		return to.IsTerminal()
	default:
		return false
	}
}

// JobProgress tracks chunk counts.
// Invariant: ChunksStored <= ChunksEmbedded <= ChunksTotal.
type JobProgress struct {
	ChunksTotal    int `json:"chunks_total"`
	ChunksEmbedded int `json:"chunks_embedded"`
	ChunksStored   int `json:"chunks_stored"`
	FailedCount    int `json:"failed_count"`
}

// Valid reports whether the counter ordering invariant holds.
func (p JobProgress) Valid() bool {
	return p.ChunksStored >= 0 &&
		p.ChunksStored <= p.ChunksEmbedded &&
		p.ChunksEmbedded <= p.ChunksTotal &&
		p.FailedCount >= 0
}

// Remaining is the number of chunks neither stored nor failed.
func (p JobProgress) Remaining() int {
	r := p.ChunksTotal - p.ChunksStored - p.FailedCount
	if r < 0 {
		return 0
	}
	return r
}

// FailedChunk records one chunk that could not be embedded or stored.
type FailedChunk struct {
	ChunkID      string `json:"chunk_id"`
	ChunkIndex   int    `json:"chunk_index"`
	ErrorMessage string `json:"error_message"`
}

// VectorizationJob is the persisted record of one vectorization run.
type VectorizationJob struct {
	ID              string
	DocumentID      string
	DocumentVersion int
	Namespace       string
	Status          JobStatus
	Progress        JobProgress
	FailedChunks    []FailedChunk
	ContentHash     string

	// DocumentMeta is kept so a resumed job can rebuild vector metadata.
	DocumentMeta DocumentMeta

	// Error holds the cause of a fatal job failure.
	Error string

	CreatedAt   time.Time
	StartedAt   time.Time
	CompletedAt time.Time

	// UpdatedAt is the heartbeat written on every persisted change.
	UpdatedAt time.Time
}

// Transition moves the job to a new status, enforcing monotonicity.
func (j *VectorizationJob) Transition(to JobStatus, now time.Time) error {
	if !CanTransition(j.Status, to) {
		if j.Status.IsTerminal() {
			return fmt.Errorf("%w: job %s is %s", ErrJobTerminal, j.ID, j.Status)
		}
		return fmt.Errorf("%w: cannot move job %s from %s to %s", ErrInvalidInput, j.ID, j.Status, to)
	}
	j.Status = to
	j.UpdatedAt = now
	switch {
	case to == JobInProgress:
		j.StartedAt = now
	case to.IsTerminal():
		j.CompletedAt = now
	}
	return nil
}

// RecordFailure appends a failed chunk and bumps the failure counter.
func (j *VectorizationJob) RecordFailure(chunk Chunk, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	j.FailedChunks = append(j.FailedChunks, FailedChunk{
		ChunkID:      chunk.ID,
		ChunkIndex:   chunk.ChunkIndex,
		ErrorMessage: msg,
	})
	j.Progress.FailedCount++
}

// ETASeconds estimates the remaining processing time from the rate observed
// since StartedAt. It is advisory only. Returns -1 when no estimate exists.
func (j *VectorizationJob) ETASeconds(now time.Time) float64 {
	if j.Status != JobInProgress || j.StartedAt.IsZero() {
		return -1
	}
	done := j.Progress.ChunksStored + j.Progress.FailedCount
	remaining := j.Progress.Remaining()
	if remaining == 0 {
		return 0
	}
	if done == 0 {
		return -1
	}
	elapsed := now.Sub(j.StartedAt).Seconds()
	if elapsed <= 0 {
		return -1
	}
	return math.Round(elapsed/float64(done)*float64(remaining)*10) / 10
}

// Clone returns a deep copy safe to hand to callers.
func (j *VectorizationJob) Clone() *VectorizationJob {
	if j == nil {
		return nil
	}
	c := *j
	c.FailedChunks = append([]FailedChunk(nil), j.FailedChunks...)
	c.DocumentMeta.Tags = append([]string(nil), j.DocumentMeta.Tags...)
	if j.DocumentMeta.UpdatedAt != nil {
		t := *j.DocumentMeta.UpdatedAt
		c.DocumentMeta.UpdatedAt = &t
	}
	return &c
}

// ClassifyStatus computes the terminal status from final counters:
//
//   - completed iff failed_count == 0 and chunks_stored == chunks_total
//   - partial   iff failed_count > 0 and chunks_stored > 0
//   - failed    iff chunks_stored == 0 and failed_count > 0
//
// Counters that match none of the rules (unprocessed chunks without
// failures) are classified as failed; the pipeline never produces them.
func ClassifyStatus(p JobProgress) JobStatus {
	switch {
	case p.FailedCount == 0 && p.ChunksStored == p.ChunksTotal:
		return JobCompleted
	case p.FailedCount > 0 && p.ChunksStored > 0:
		return JobPartial
	default:
		return JobFailed
	}
}
