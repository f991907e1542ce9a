package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/vidsmith/vidsmith/internal/domain"
	"github.com/vidsmith/vidsmith/internal/platform/logger"
	"github.com/vidsmith/vidsmith/internal/store"
)

// LedgerStore implements store.LedgerStore on PostgreSQL. Rows live in
// the generation_jobs table, keyed by provider task id for updates.
type LedgerStore struct {
	db store.DBTX
}

// NewLedgerStore creates a new LedgerStore.
func NewLedgerStore(db store.DBTX) *LedgerStore {
	return &LedgerStore{db: db}
}

// WithTx returns a LedgerStore bound to the provided transaction.
func (s *LedgerStore) WithTx(tx *sql.Tx) store.LedgerStore {
	return &LedgerStore{db: tx}
}

// Insert persists a new ledger record. If a patch raced ahead of the
// insert and left a stub row for the same provider task id, the insert
// merges the request context into the stub and keeps the stub's newer
// status and progress.
func (s *LedgerStore) Insert(ctx context.Context, rec *domain.LedgerRecord) error {
	log := logger.FromContext(ctx)

	inputURLs, err := json.Marshal(rec.InputURLs)
	if err != nil {
		return fmt.Errorf("failed to marshal input urls: %w", err)
	}
	outputCfg, err := json.Marshal(rec.Output)
	if err != nil {
		return fmt.Errorf("failed to marshal output config: %w", err)
	}

	query := `
		INSERT INTO generation_jobs (
			id, job_id, chat_id, message_id, provider_task_id,
			model_name, model_version, prompt, input_urls, output_config,
			status, progress, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (provider_task_id) DO UPDATE SET
			job_id        = EXCLUDED.job_id,
			chat_id       = EXCLUDED.chat_id,
			message_id    = EXCLUDED.message_id,
			model_name    = EXCLUDED.model_name,
			model_version = EXCLUDED.model_version,
			prompt        = EXCLUDED.prompt,
			input_urls    = EXCLUDED.input_urls,
			output_config = EXCLUDED.output_config,
			created_at    = LEAST(generation_jobs.created_at, EXCLUDED.created_at),
			updated_at    = GREATEST(generation_jobs.updated_at, EXCLUDED.updated_at)
	`

	_, err = s.db.ExecContext(ctx, query,
		rec.ID,
		rec.JobID,
		rec.ChatID,
		rec.MessageID,
		rec.ProviderTaskID,
		rec.ModelName,
		rec.ModelVersion,
		rec.Prompt,
		inputURLs,
		outputCfg,
		rec.Status,
		rec.Progress,
		rec.CreatedAt,
		rec.UpdatedAt,
	)
	if err != nil {
		log.Error("failed to insert ledger record",
			"job_id", rec.JobID,
			"provider_task_id", rec.ProviderTaskID,
			"error", err)
		return fmt.Errorf("failed to insert ledger record: %w", err)
	}

	return nil
}

// UpdateByTaskID applies the patch to the record with the given provider
// task id. When no record exists yet (the update outran the insert), a
// stub row is created so the transition is not lost; the eventual insert
// merges into it.
func (s *LedgerStore) UpdateByTaskID(ctx context.Context, taskID string, patch store.LedgerPatch) error {
	log := logger.FromContext(ctx)
	now := time.Now().UTC()

	query := `
		UPDATE generation_jobs SET
			status              = COALESCE($2, status),
			progress            = GREATEST(progress, COALESCE($3, progress)),
			video_url           = COALESCE($4, video_url),
			cover_url           = COALESCE($5, cover_url),
			permanent_video_url = COALESCE($6, permanent_video_url),
			permanent_cover_url = COALESCE($7, permanent_cover_url),
			duration_seconds    = COALESCE($8, duration_seconds),
			error_reason        = COALESCE($9, error_reason),
			error_message       = COALESCE($10, error_message),
			poll_count          = COALESCE($11, poll_count),
			elapsed_ms          = COALESCE($12, elapsed_ms),
			finished_at         = COALESCE($13, finished_at),
			updated_at          = $14
		WHERE provider_task_id = $1
	`

	result, err := s.db.ExecContext(ctx, query,
		taskID,
		nullStatus(patch.Status),
		nullInt(patch.Progress),
		nullString(patch.VideoURL),
		nullString(patch.CoverURL),
		nullString(patch.PermanentVideoURL),
		nullString(patch.PermanentCoverURL),
		nullFloat(patch.DurationSeconds),
		nullString(patch.ErrorReason),
		nullString(patch.ErrorMessage),
		nullInt(patch.PollCount),
		nullInt64(patch.ElapsedMS),
		nullTime(patch.FinishedAt),
		now,
	)
	if err != nil {
		log.Error("failed to update ledger record",
			"provider_task_id", taskID,
			"error", err)
		return fmt.Errorf("failed to update ledger record: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected > 0 {
		return nil
	}

	// No row yet: create a stub carrying the patch so a racing insert
	// can merge into it later.
	status := domain.JobStatusProcessing
	if patch.Status != nil {
		status = *patch.Status
	}
	progress := 0
	if patch.Progress != nil {
		progress = *patch.Progress
	}

	stubQuery := `
		INSERT INTO generation_jobs (id, job_id, provider_task_id, status, progress, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (provider_task_id) DO NOTHING
	`
	if _, err := s.db.ExecContext(ctx, stubQuery,
		uuid.New(), uuid.New(), taskID, status, progress, now); err != nil {
		log.Error("failed to insert stub ledger record",
			"provider_task_id", taskID,
			"error", err)
		return fmt.Errorf("%w: stub insert for task %s: %v", store.ErrUpdateFailed, taskID, err)
	}

	log.Warn("ledger update arrived before insert, created stub record",
		"provider_task_id", taskID,
		"status", status)
	return nil
}

// UpdateByJobID applies the patch to the record with the given job id.
// The job-id path exists for transitions without a provider task id:
// the record is inserted at hand-off, so no stub creation is needed and
// a missing row is reported instead.
func (s *LedgerStore) UpdateByJobID(ctx context.Context, jobID uuid.UUID, patch store.LedgerPatch) error {
	log := logger.FromContext(ctx)
	now := time.Now().UTC()

	query := `
		UPDATE generation_jobs SET
			provider_task_id    = COALESCE(NULLIF($2, ''), provider_task_id),
			status              = COALESCE($3, status),
			progress            = GREATEST(progress, COALESCE($4, progress)),
			error_reason        = COALESCE($5, error_reason),
			error_message       = COALESCE($6, error_message),
			poll_count          = COALESCE($7, poll_count),
			elapsed_ms          = COALESCE($8, elapsed_ms),
			finished_at         = COALESCE($9, finished_at),
			updated_at          = $10
		WHERE job_id = $1
	`

	result, err := s.db.ExecContext(ctx, query,
		jobID,
		nullString(patch.ProviderTaskID),
		nullStatus(patch.Status),
		nullInt(patch.Progress),
		nullString(patch.ErrorReason),
		nullString(patch.ErrorMessage),
		nullInt(patch.PollCount),
		nullInt64(patch.ElapsedMS),
		nullTime(patch.FinishedAt),
		now,
	)
	if err != nil {
		log.Error("failed to update ledger record by job id",
			"job_id", jobID,
			"error", err)
		return fmt.Errorf("failed to update ledger record by job id: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: job %s", store.ErrLedgerRecordNotFound, jobID)
	}
	return nil
}

// FindByTaskID returns the record for the given provider task id.
func (s *LedgerStore) FindByTaskID(ctx context.Context, taskID string) (*domain.LedgerRecord, error) {
	query := selectColumns + ` WHERE provider_task_id = $1`

	rec, err := s.scanRecord(s.db.QueryRowContext(ctx, query, taskID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, store.ErrLedgerRecordNotFound
		}
		return nil, fmt.Errorf("failed to find ledger record by task id: %w", err)
	}
	return rec, nil
}

// ListGenerating returns every non-terminal record for the chat,
// ordered by creation time, for recovery scans.
func (s *LedgerStore) ListGenerating(ctx context.Context, chatID uuid.UUID) ([]*domain.LedgerRecord, error) {
	log := logger.FromContext(ctx)

	query := selectColumns + `
		WHERE chat_id = $1 AND status NOT IN ($2, $3)
		ORDER BY created_at ASC
	`

	rows, err := s.db.QueryContext(ctx, query, chatID, domain.JobStatusFinished, domain.JobStatusFailed)
	if err != nil {
		log.Error("failed to query generating ledger records",
			"chat_id", chatID,
			"error", err)
		return nil, fmt.Errorf("failed to query generating ledger records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []*domain.LedgerRecord
	for rows.Next() {
		rec, err := s.scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ledger record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ledger records: %w", err)
	}

	return records, nil
}

const selectColumns = `
	SELECT id, job_id, chat_id, message_id, COALESCE(provider_task_id, ''),
	       COALESCE(model_name, ''), COALESCE(model_version, ''), COALESCE(prompt, ''),
	       input_urls, output_config,
	       status, progress,
	       COALESCE(video_url, ''), COALESCE(cover_url, ''),
	       COALESCE(permanent_video_url, ''), COALESCE(permanent_cover_url, ''),
	       COALESCE(duration_seconds, 0), COALESCE(error_reason, ''), COALESCE(error_message, ''),
	       poll_count, elapsed_ms, finished_at, created_at, updated_at
	FROM generation_jobs`

// scanner matches both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func (s *LedgerStore) scanRecord(row scanner) (*domain.LedgerRecord, error) {
	var rec domain.LedgerRecord
	var chatID, messageID sql.NullString
	var status string
	var inputURLs, outputCfg []byte
	var finishedAt sql.NullTime

	err := row.Scan(
		&rec.ID, &rec.JobID, &chatID, &messageID, &rec.ProviderTaskID,
		&rec.ModelName, &rec.ModelVersion, &rec.Prompt,
		&inputURLs, &outputCfg,
		&status, &rec.Progress,
		&rec.VideoURL, &rec.CoverURL,
		&rec.PermanentVideoURL, &rec.PermanentCoverURL,
		&rec.DurationSeconds, &rec.ErrorReason, &rec.ErrorMessage,
		&rec.PollCount, &rec.ElapsedMS, &finishedAt, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.Status, err = domain.ParseJobStatus(status)
	if err != nil {
		return nil, fmt.Errorf("corrupt ledger row %s: %w", rec.ID, err)
	}

	if chatID.Valid {
		if id, err := uuid.Parse(chatID.String); err == nil {
			rec.ChatID = id
		}
	}
	if messageID.Valid {
		if id, err := uuid.Parse(messageID.String); err == nil {
			rec.MessageID = id
		}
	}
	if len(inputURLs) > 0 {
		if err := json.Unmarshal(inputURLs, &rec.InputURLs); err != nil {
			return nil, fmt.Errorf("failed to unmarshal input urls: %w", err)
		}
	}
	if len(outputCfg) > 0 {
		if err := json.Unmarshal(outputCfg, &rec.Output); err != nil {
			return nil, fmt.Errorf("failed to unmarshal output config: %w", err)
		}
	}
	if finishedAt.Valid {
		t := finishedAt.Time
		rec.FinishedAt = &t
	}

	return &rec, nil
}

// Nullable parameter helpers for the COALESCE-based patch update.

func nullStatus(s *domain.JobStatus) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(*s), Valid: true}
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullInt(i *int) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*i), Valid: true}
}

func nullInt64(i *int64) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *i, Valid: true}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
