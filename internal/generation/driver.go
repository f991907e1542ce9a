package generation

import (
	"context"
	"log/slog"
	"time"

	"github.com/vidsmith/vidsmith/internal/domain"
	"github.com/vidsmith/vidsmith/internal/provider"
	"github.com/vidsmith/vidsmith/internal/store"
)

// jobDriver drives one job with a known provider task id to a terminal
// state. It is shared by the orchestrator (live jobs) and the
// reconciler (adopted jobs), so both follow the identical progress,
// persistence and callback contract.
type jobDriver struct {
	provider provider.Client
	ledger   store.LedgerStore
	uploader Uploader
	logger   *slog.Logger
}

// driveToCompletion polls the unit's provider task until it is
// terminal, pushing every tick through the aggregator and persisting
// every transition to the ledger. The unit is always terminal when this
// returns; job-level errors never escape.
func (d *jobDriver) driveToCompletion(ctx context.Context, unit *domain.JobUnit, spec domain.ModelSpec, agg *aggregator, started time.Time) {
	logger := d.logger.With("job_id", unit.ID, "task_id", unit.ProviderTaskID, "model", spec.ID)

	result, err := d.provider.WaitForCompletion(ctx, unit.ProviderTaskID, spec, func(res provider.TaskResult) {
		if res.Status != provider.StatusProcessing {
			// Terminal results are applied once below, after the loop.
			return
		}
		if err := unit.MarkProcessing(res.Progress); err != nil {
			return
		}
		d.persistProgress(ctx, unit, res, started)
		agg.Apply(unit)
	})
	if err != nil {
		// Only context cancellation reaches here; the poll loop turns
		// its own ceilings into terminal results.
		logger.Error("polling aborted", "error", err)
		_ = unit.MarkFailed(domain.NewJobError(domain.FailureExecution, err.Error()))
		d.persistTerminal(ctx, unit, result.PollCount, started)
		agg.Apply(unit)
		return
	}

	switch result.Status {
	case provider.StatusFinished:
		_ = unit.MarkFinished(result.VideoURL, result.CoverURL, result.DurationSeconds)
		d.persistTerminal(ctx, unit, result.PollCount, started)
		d.rehostOutputs(ctx, unit)
		agg.Apply(unit)
		logger.Info("job finished", "polls", result.PollCount)

	case provider.StatusFailed:
		jobErr := result.Err
		if jobErr == nil {
			jobErr = domain.NewJobError(domain.FailureExecution, "provider reported failure without detail")
		}
		_ = unit.MarkFailed(jobErr)
		d.persistTerminal(ctx, unit, result.PollCount, started)
		agg.Apply(unit)
		logger.Warn("job failed", "reason", jobErr.Reason, "polls", result.PollCount)
	}
}

// persistProgress writes one non-terminal tick to the ledger.
func (d *jobDriver) persistProgress(ctx context.Context, unit *domain.JobUnit, res provider.TaskResult, started time.Time) {
	status := unit.Status
	progress := unit.Progress
	pollCount := res.PollCount
	elapsed := time.Since(started).Milliseconds()

	err := d.ledger.UpdateByTaskID(ctx, unit.ProviderTaskID, store.LedgerPatch{
		Status:    &status,
		Progress:  &progress,
		PollCount: &pollCount,
		ElapsedMS: &elapsed,
	})
	if err != nil {
		d.logger.Warn("failed to persist job progress",
			"task_id", unit.ProviderTaskID,
			"error", err)
	}
}

// persistTerminal writes the unit's terminal state to the ledger.
// Persistence failure is logged, never propagated: the in-memory unit
// is already terminal and the reconciler re-derives from the provider.
func (d *jobDriver) persistTerminal(ctx context.Context, unit *domain.JobUnit, pollCount int, started time.Time) {
	status := unit.Status
	progress := unit.Progress
	elapsed := time.Since(started).Milliseconds()
	now := time.Now().UTC()

	patch := store.LedgerPatch{
		Status:     &status,
		Progress:   &progress,
		ElapsedMS:  &elapsed,
		FinishedAt: &now,
	}
	if pollCount > 0 {
		patch.PollCount = &pollCount
	}
	if unit.VideoURL != "" {
		patch.VideoURL = &unit.VideoURL
		patch.CoverURL = &unit.CoverURL
		patch.DurationSeconds = &unit.DurationSeconds
	}
	if unit.Error != nil {
		reason := string(unit.Error.Reason)
		message := unit.Error.Message
		patch.ErrorReason = &reason
		patch.ErrorMessage = &message
	}

	var err error
	if unit.ProviderTaskID != "" {
		err = d.ledger.UpdateByTaskID(ctx, unit.ProviderTaskID, patch)
	} else {
		// Creation failures and task-lost declarations never received a
		// task id; their rows are keyed by job id.
		err = d.ledger.UpdateByJobID(ctx, unit.ID, patch)
	}
	if err != nil {
		d.logger.Warn("failed to persist terminal job state",
			"job_id", unit.ID,
			"task_id", unit.ProviderTaskID,
			"status", status,
			"error", err)
	}
}

// rehostOutputs copies the provider's temporary result URLs into
// durable storage. This runs after the job is already finished: a
// re-host failure is a logged warning, never a job failure.
func (d *jobDriver) rehostOutputs(ctx context.Context, unit *domain.JobUnit) {
	if d.uploader == nil || unit.VideoURL == "" {
		return
	}

	patch := store.LedgerPatch{}

	permanentVideo, err := d.uploader.Upload(ctx, unit.VideoURL, "output")
	if err != nil {
		d.logger.Warn("failed to re-host output video, provider URL remains",
			"task_id", unit.ProviderTaskID,
			"error", err)
		return
	}
	patch.PermanentVideoURL = &permanentVideo

	if unit.CoverURL != "" {
		permanentCover, err := d.uploader.Upload(ctx, unit.CoverURL, "output")
		if err != nil {
			d.logger.Warn("failed to re-host cover image, provider URL remains",
				"task_id", unit.ProviderTaskID,
				"error", err)
		} else {
			patch.PermanentCoverURL = &permanentCover
		}
	}

	if err := d.ledger.UpdateByTaskID(ctx, unit.ProviderTaskID, patch); err != nil {
		d.logger.Warn("failed to persist re-hosted URLs",
			"task_id", unit.ProviderTaskID,
			"error", err)
	}
}
