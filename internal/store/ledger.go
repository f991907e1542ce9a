package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/vidsmith/vidsmith/internal/domain"
)

// LedgerPatch is a partial update applied to a ledger record. Nil
// fields are left untouched.
type LedgerPatch struct {
	ProviderTaskID    *string
	Status            *domain.JobStatus
	Progress          *int
	VideoURL          *string
	CoverURL          *string
	PermanentVideoURL *string
	PermanentCoverURL *string
	DurationSeconds   *float64
	ErrorReason       *string
	ErrorMessage      *string
	PollCount         *int
	ElapsedMS         *int64
	FinishedAt        *time.Time
}

// LedgerStore persists one record per submitted job. Records are keyed
// by provider task id once that is known; each record is only ever
// written by the job that owns it, so cross-job writes never collide.
//
// UpdateByTaskID has upsert-like semantics: a status update arriving
// before the initial insert is acknowledged must not be lost.
type LedgerStore interface {
	// Insert persists a new ledger record. If a stub row already exists
	// for the record's provider task id (an update raced the insert),
	// the insert merges into it instead of failing.
	Insert(ctx context.Context, rec *domain.LedgerRecord) error

	// UpdateByTaskID applies the patch to the record with the given
	// provider task id, creating a stub record when none exists yet.
	UpdateByTaskID(ctx context.Context, taskID string, patch LedgerPatch) error

	// UpdateByJobID applies the patch to the record with the given job
	// id. Used for transitions that happen before a provider task id
	// exists: recording the id itself once creation is acknowledged,
	// creation failures, and task-lost declarations.
	UpdateByJobID(ctx context.Context, jobID uuid.UUID, patch LedgerPatch) error

	// FindByTaskID returns the record for the given provider task id,
	// or ErrLedgerRecordNotFound.
	FindByTaskID(ctx context.Context, taskID string) (*domain.LedgerRecord, error)

	// ListGenerating returns every record for the chat that has not yet
	// reached a terminal status, for recovery scans.
	ListGenerating(ctx context.Context, chatID uuid.UUID) ([]*domain.LedgerRecord, error)

	// WithTx returns a LedgerStore that runs inside the provided
	// transaction. The transaction is created and managed by the caller.
	WithTx(tx *sql.Tx) LedgerStore
}
