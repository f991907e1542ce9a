package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the lifecycle state of a single generation job.
type JobStatus string

// Possible job status values. The only legal sequences are
// queued→processing→finished, queued→processing→failed, and
// queued→failed (compatibility rejection). Finished and failed are
// terminal: no transition ever leaves them.
const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusFinished   JobStatus = "finished"
	JobStatusFailed     JobStatus = "failed"
)

// IsTerminal reports whether the status admits no further transitions.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusFinished || s == JobStatusFailed
}

// ParseJobStatus validates a persisted status string. Rows written by
// this process always carry a known status; ErrInvalidJobStatus guards
// against hand-edited or corrupt rows read back at recovery time.
func ParseJobStatus(s string) (JobStatus, error) {
	switch status := JobStatus(s); status {
	case JobStatusQueued, JobStatusProcessing, JobStatusFinished, JobStatusFailed:
		return status, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidJobStatus, s)
	}
}

// JobUnit is the atomic unit of generation work: one (model, index)
// pair inside a user submission. It is mutated by exactly one logical
// owner at a time — the orchestrator goroutine that created it, or the
// reconciler goroutine that adopted it after a restart.
type JobUnit struct {
	ID               uuid.UUID `json:"id"`
	ModelID          string    `json:"model_id"`
	ModelDisplayName string    `json:"model_display_name"`
	Index            int       `json:"index"`

	// ProviderTaskID is empty until the provider acknowledges creation.
	ProviderTaskID string `json:"provider_task_id,omitempty"`

	Status          JobStatus `json:"status"`
	Progress        int       `json:"progress"`
	VideoURL        string    `json:"video_url,omitempty"`
	CoverURL        string    `json:"cover_url,omitempty"`
	DurationSeconds float64   `json:"duration_seconds,omitempty"`
	Error           *JobError `json:"error,omitempty"`
	IsGenerating    bool      `json:"is_generating"`
	CreatedAt       time.Time `json:"created_at"`
}

// NewJobUnit creates a queued JobUnit for the given model and index.
func NewJobUnit(modelID, displayName string, index int) *JobUnit {
	return &JobUnit{
		ID:               uuid.New(),
		ModelID:          modelID,
		ModelDisplayName: displayName,
		Index:            index,
		Status:           JobStatusQueued,
		Progress:         0,
		IsGenerating:     true,
		CreatedAt:        time.Now().UTC(),
	}
}

// Clone returns a deep copy of the job unit. Aggregate snapshots are
// built from clones so concurrent readers never observe mid-mutation state.
func (j *JobUnit) Clone() *JobUnit {
	cp := *j
	if j.Error != nil {
		errCp := *j.Error
		cp.Error = &errCp
	}
	return &cp
}

// MarkProcessing transitions the job to processing and records progress.
// Progress is monotonic: a lower value than the current one is ignored.
// Returns ErrTerminalTransition if the job is already terminal.
func (j *JobUnit) MarkProcessing(progress int) error {
	if j.Status.IsTerminal() {
		return ErrTerminalTransition
	}
	j.Status = JobStatusProcessing
	if progress > j.Progress {
		if progress > 100 {
			progress = 100
		}
		j.Progress = progress
	}
	return nil
}

// MarkFinished transitions the job to its terminal finished state.
func (j *JobUnit) MarkFinished(videoURL, coverURL string, durationSeconds float64) error {
	if j.Status.IsTerminal() {
		return ErrTerminalTransition
	}
	j.Status = JobStatusFinished
	j.Progress = 100
	j.VideoURL = videoURL
	j.CoverURL = coverURL
	j.DurationSeconds = durationSeconds
	j.Error = nil
	j.IsGenerating = false
	return nil
}

// MarkFailed transitions the job to its terminal failed state.
func (j *JobUnit) MarkFailed(jobErr *JobError) error {
	if j.Status.IsTerminal() {
		return ErrTerminalTransition
	}
	j.Status = JobStatusFailed
	j.Error = jobErr
	j.IsGenerating = false
	return nil
}
