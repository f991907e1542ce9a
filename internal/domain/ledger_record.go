package domain

import (
	"time"

	"github.com/google/uuid"
)

// LedgerRecord is the durable counterpart of a JobUnit plus enough
// request context to recover it after a restart. One record per job,
// linked to its unit by provider task id once that is known. Records
// are created when a unit is handed to the provider for task creation,
// updated on every status transition, and never deleted by the core.
type LedgerRecord struct {
	ID             uuid.UUID
	JobID          uuid.UUID
	ChatID         uuid.UUID
	MessageID      uuid.UUID
	ProviderTaskID string

	ModelName    string
	ModelVersion string
	Prompt       string
	InputURLs    []string
	Output       OutputConfig

	Status   JobStatus
	Progress int

	// Provider URLs are temporary; the permanent fields are filled when
	// outputs are re-hosted into durable storage.
	VideoURL          string
	CoverURL          string
	PermanentVideoURL string
	PermanentCoverURL string
	DurationSeconds   float64

	ErrorReason  string
	ErrorMessage string

	// Recovery metadata.
	PollCount  int
	ElapsedMS  int64
	FinishedAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewLedgerRecord builds a record for a job unit that is about to be
// handed to the provider.
func NewLedgerRecord(req *GenerationRequest, unit *JobUnit, spec ModelSpec, inputURLs []string) *LedgerRecord {
	now := time.Now().UTC()
	return &LedgerRecord{
		ID:           uuid.New(),
		JobID:        unit.ID,
		ChatID:       req.ChatID,
		MessageID:    req.MessageID,
		ModelName:    spec.ID,
		ModelVersion: spec.Version,
		Prompt:       req.Prompt,
		InputURLs:    inputURLs,
		Output:       req.Output,
		Status:       unit.Status,
		Progress:     unit.Progress,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}
