package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jltournay/farmer-power-knowledge/internal/core/domain"
)

// jobView is the JSON shape of a job.
type jobView struct {
	ID              string               `json:"id"`
	DocumentID      string               `json:"document_id"`
	DocumentVersion int                  `json:"document_version"`
	Namespace       string               `json:"namespace"`
	Status          domain.JobStatus     `json:"status"`
	ChunksTotal     int                  `json:"chunks_total"`
	ChunksEmbedded  int                  `json:"chunks_embedded"`
	ChunksStored    int                  `json:"chunks_stored"`
	FailedCount     int                  `json:"failed_count"`
	FailedChunks    []domain.FailedChunk `json:"failed_chunks,omitempty"`
	Error           string               `json:"error,omitempty"`
	CreatedAt       time.Time            `json:"created_at"`
	StartedAt       *time.Time           `json:"started_at,omitempty"`
	CompletedAt     *time.Time           `json:"completed_at,omitempty"`
	Active          bool                 `json:"active,omitempty"`
	ETASeconds      *float64             `json:"eta_seconds,omitempty"`
}

func newJobView(job *domain.VectorizationJob) jobView {
	return jobView{
		ID:              job.ID,
		DocumentID:      job.DocumentID,
		DocumentVersion: job.DocumentVersion,
		Namespace:       job.Namespace,
		Status:          job.Status,
		ChunksTotal:     job.Progress.ChunksTotal,
		ChunksEmbedded:  job.Progress.ChunksEmbedded,
		ChunksStored:    job.Progress.ChunksStored,
		FailedCount:     job.Progress.FailedCount,
		FailedChunks:    job.FailedChunks,
		Error:           job.Error,
		CreatedAt:       job.CreatedAt,
		StartedAt:       optionalTime(job.StartedAt),
		CompletedAt:     optionalTime(job.CompletedAt),
	}
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return nil
}

// renderJob writes a human readable job summary.
func renderJob(w io.Writer, job *domain.VectorizationJob, eta float64) {
	lines := []string{
		titleStyle.Render("Job " + job.ID),
		field("document", fmt.Sprintf("%s v%d", job.DocumentID, job.DocumentVersion)),
		field("namespace", job.Namespace),
		field("status", statusStyle(job.Status).Render(string(job.Status))),
		field("progress", fmt.Sprintf("%d/%d stored, %d embedded, %d failed",
			job.Progress.ChunksStored, job.Progress.ChunksTotal,
			job.Progress.ChunksEmbedded, job.Progress.FailedCount)),
	}
	if eta >= 0 && job.Status == domain.JobInProgress {
		lines = append(lines, field("eta", fmt.Sprintf("%.1fs", eta)))
	}
	if !job.CompletedAt.IsZero() && !job.StartedAt.IsZero() {
		lines = append(lines, field("took", job.CompletedAt.Sub(job.StartedAt).Round(time.Millisecond).String()))
	}
	if job.Error != "" {
		lines = append(lines, field("error", errorStyle.Render(job.Error)))
	}
	for _, fc := range job.FailedChunks {
		lines = append(lines, mutedStyle.Render(fmt.Sprintf("  chunk %d (%s): %s", fc.ChunkIndex, fc.ChunkID, fc.ErrorMessage)))
	}
	fmt.Fprintln(w, strings.Join(lines, "\n"))
}
