package generation

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vidsmith/vidsmith/internal/domain"
	"github.com/vidsmith/vidsmith/internal/provider"
	"github.com/vidsmith/vidsmith/internal/store"
)

// OrchestratorConfig holds tuning for the orchestrator.
type OrchestratorConfig struct {
	// MaxConcurrent caps concurrently running jobs per submission.
	// Zero means no cap: every job of a submission runs at once.
	MaxConcurrent int
}

// Orchestrator turns one GenerationRequest into independent jobs, one
// per (model, index) pair, drives each through the provider, and keeps
// the per-message aggregate and the ledger consistent with every
// status tick. Failures are isolated: one model's failure never cancels
// another model's in-flight job.
type Orchestrator struct {
	jobDriver
	catalog domain.ModelCatalog
	config  OrchestratorConfig
	wg      sync.WaitGroup
}

// NewOrchestrator validates dependencies and builds an orchestrator.
func NewOrchestrator(
	providerClient provider.Client,
	ledger store.LedgerStore,
	uploader Uploader,
	catalog domain.ModelCatalog,
	config OrchestratorConfig,
	logger *slog.Logger,
) (*Orchestrator, error) {
	if providerClient == nil {
		return nil, ErrNilProvider
	}
	if ledger == nil {
		return nil, ErrNilLedger
	}
	if uploader == nil {
		return nil, ErrNilUploader
	}
	if len(catalog) == 0 {
		return nil, ErrNilCatalog
	}
	if logger == nil {
		return nil, ErrNilLogger
	}

	return &Orchestrator{
		jobDriver: jobDriver{
			provider: providerClient,
			ledger:   ledger,
			uploader: uploader,
			logger:   logger.With("component", "orchestrator"),
		},
		catalog: catalog,
		config:  config,
	}, nil
}

// Wait blocks until every in-flight submission has settled. Used for
// graceful shutdown.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// HandleSendMessage runs one submission end to end and returns the
// final aggregate once every job is terminal. Callers that must not
// block run it in a goroutine; nothing here prevents a second
// submission while the first is in flight.
//
// Only request-level failures return an error: invalid input, or a
// reference image upload failure (which aborts the whole request before
// any job is created). Job-level failures surface as failed units.
func (o *Orchestrator) HandleSendMessage(ctx context.Context, req *domain.GenerationRequest, cb Callbacks) (*domain.AggregateResult, error) {
	o.wg.Add(1)
	defer o.wg.Done()

	if err := req.Validate(); err != nil {
		cb.emitError(err)
		return nil, err
	}

	logger := o.logger.With("chat_id", req.ChatID, "message_id", req.MessageID)

	// Upload phase: every local reference becomes a durable URL before
	// any job starts. Any failure aborts the entire request.
	firstFrameURLs, lastFrameURL, err := o.uploadInputs(ctx, req)
	if err != nil {
		logger.Error("reference upload failed, aborting request", "error", err)
		cb.emitError(err)
		return nil, err
	}

	// Pre-populate every unit in queued state so the caller has
	// placeholders before the first provider call.
	type modelBatch struct {
		spec    domain.ModelSpec
		specErr error
		units   []*domain.JobUnit
	}
	batches := make([]modelBatch, 0, len(req.Models))
	var allUnits []*domain.JobUnit
	for _, sel := range req.Models {
		batch := modelBatch{}
		batch.spec, batch.specErr = o.catalog.Lookup(sel.ModelID)
		displayName := batch.spec.DisplayName
		if displayName == "" {
			displayName = sel.ModelID
		}
		for i := 0; i < sel.Count; i++ {
			unit := domain.NewJobUnit(sel.ModelID, displayName, i)
			batch.units = append(batch.units, unit)
			allUnits = append(allUnits, unit)
		}
		batches = append(batches, batch)
	}

	initial := domain.NewAggregateResult(allUnits)
	agg := newAggregator(initial, cb, logger)
	cb.emitProgress(initial, nil)

	logger.Info("fanning out generation jobs",
		"models", len(req.Models),
		"total_jobs", len(allUnits))

	g, gctx := errgroup.WithContext(ctx)
	if o.config.MaxConcurrent > 0 {
		g.SetLimit(o.config.MaxConcurrent)
	}

	for _, batch := range batches {
		// Local, synchronous failure paths: unknown model, or a model
		// that cannot serve this input shape. No provider call is made.
		var rejection *domain.JobError
		if batch.specErr != nil {
			rejection = domain.NewJobError(domain.FailureInvalidInput, batch.specErr.Error())
		} else {
			rejection = batch.spec.CheckCompatibility(len(firstFrameURLs), lastFrameURL != "")
		}
		if rejection != nil {
			for _, unit := range batch.units {
				_ = unit.MarkFailed(rejection)
				agg.Apply(unit)
			}
			logger.Warn("model rejected locally",
				"model", batch.units[0].ModelID,
				"reason", rejection.Reason)
			continue
		}

		spec := batch.spec
		for _, unit := range batch.units {
			unit := unit
			g.Go(func() error {
				o.runJob(gctx, req, spec, unit, firstFrameURLs, lastFrameURL, agg)
				return nil
			})
		}
	}

	_ = g.Wait()
	final := agg.Stop()
	cb.emitComplete(final)

	logger.Info("submission settled",
		"total", final.Total,
		"succeeded", final.Succeeded,
		"failed", final.Failed)
	return final, nil
}

// uploadInputs resolves all local image references to durable URLs.
func (o *Orchestrator) uploadInputs(ctx context.Context, req *domain.GenerationRequest) ([]string, string, error) {
	var firstFrameURLs []string
	for _, ref := range req.FirstFrameImages {
		url := ref.URL
		if !ref.Uploaded() {
			var err error
			url, err = o.uploader.Upload(ctx, ref.LocalPath, "first_frame")
			if err != nil {
				return nil, "", fmt.Errorf("%w: %s: %v", ErrUploadFailed, ref.LocalPath, err)
			}
		}
		firstFrameURLs = append(firstFrameURLs, url)
	}

	lastFrameURL := ""
	if ref := req.LastFrameImage; ref != nil {
		lastFrameURL = ref.URL
		if !ref.Uploaded() {
			var err error
			lastFrameURL, err = o.uploader.Upload(ctx, ref.LocalPath, "last_frame")
			if err != nil {
				return nil, "", fmt.Errorf("%w: %s: %v", ErrUploadFailed, ref.LocalPath, err)
			}
		}
	}

	return firstFrameURLs, lastFrameURL, nil
}

// runJob executes one unit: create the provider task, record it in the
// ledger, then poll to completion. Every failure is recovered into a
// terminal failed unit.
func (o *Orchestrator) runJob(
	ctx context.Context,
	req *domain.GenerationRequest,
	spec domain.ModelSpec,
	unit *domain.JobUnit,
	firstFrameURLs []string,
	lastFrameURL string,
	agg *aggregator,
) {
	started := time.Now()

	// The ledger row exists before the provider is asked for anything,
	// so a crash between hand-off and acknowledgement still leaves a
	// durable trace for the recovery scan.
	rec := domain.NewLedgerRecord(req, unit, spec, firstFrameURLs)
	if err := o.ledger.Insert(ctx, rec); err != nil {
		// The job keeps running; the ledger's stub-creating update path
		// lets a later transition recreate the row.
		o.logger.Warn("failed to insert ledger record",
			"job_id", unit.ID,
			"error", err)
	}

	taskID, err := o.provider.CreateTask(ctx, provider.CreateTaskSpec{
		Model:          spec,
		Prompt:         req.Prompt,
		FirstFrameURLs: firstFrameURLs,
		LastFrameURL:   lastFrameURL,
		Output:         req.Output,
		Params:         req.ModelParams[spec.ID],
	})
	if err != nil {
		o.logger.Warn("provider task creation failed",
			"job_id", unit.ID,
			"model", spec.ID,
			"error", err)
		_ = unit.MarkFailed(domain.NewJobError(domain.FailureCreate, err.Error()))
		o.persistTerminal(ctx, unit, 0, started)
		agg.Apply(unit)
		return
	}

	unit.ProviderTaskID = taskID
	_ = unit.MarkProcessing(0)

	status := unit.Status
	progress := unit.Progress
	if err := o.ledger.UpdateByJobID(ctx, unit.ID, store.LedgerPatch{
		ProviderTaskID: &unit.ProviderTaskID,
		Status:         &status,
		Progress:       &progress,
	}); err != nil {
		o.logger.Warn("failed to record provider task id",
			"job_id", unit.ID,
			"task_id", taskID,
			"error", err)
	}
	agg.Apply(unit)

	o.driveToCompletion(ctx, unit, spec, agg, started)
}
