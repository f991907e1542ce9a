package generation

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/google/uuid"
	"github.com/vidsmith/vidsmith/internal/domain"
	"github.com/vidsmith/vidsmith/internal/provider"
	"github.com/vidsmith/vidsmith/internal/store"
)

// DefaultGraceWindow is how long a job without a provider task id is
// presumed to still be mid-creation before the reconciler declares it
// lost.
const DefaultGraceWindow = 60 * time.Second

// ReconcilerConfig holds tuning for the reconciler.
type ReconcilerConfig struct {
	// GraceWindow separates "submission may still be in flight" from
	// "permanently lost" for jobs with no provider task id. The window
	// is measured from the owning message's creation time.
	//
	// The ledger row itself already exists (it is written at hand-off,
	// before task creation), but a row without a task id cannot say
	// whether the create call is still in flight; the window decides.
	GraceWindow time.Duration
}

// Reconciler adopts jobs orphaned by a process restart. It runs once
// per activation of a conversation: every unit still flagged as
// generating is either resumed (it has a provider task id to poll) or,
// past the grace window, force-failed as lost. All mutations flow
// through the same aggregate reducer and ledger contract the
// orchestrator uses, so the rollup and the ledger stay consistent.
type Reconciler struct {
	jobDriver
	catalog domain.ModelCatalog
	config  ReconcilerConfig

	// seen de-duplicates adoption by job id: a job resumed in one pass
	// is never resumed again by a subsequent pass on the same instance.
	mu   sync.Mutex
	seen map[uuid.UUID]struct{}
}

// NewReconciler validates dependencies and builds a reconciler.
func NewReconciler(
	providerClient provider.Client,
	ledger store.LedgerStore,
	uploader Uploader,
	catalog domain.ModelCatalog,
	config ReconcilerConfig,
	logger *slog.Logger,
) (*Reconciler, error) {
	if providerClient == nil {
		return nil, ErrNilProvider
	}
	if ledger == nil {
		return nil, ErrNilLedger
	}
	if len(catalog) == 0 {
		return nil, ErrNilCatalog
	}
	if logger == nil {
		return nil, ErrNilLogger
	}
	if config.GraceWindow <= 0 {
		config.GraceWindow = DefaultGraceWindow
	}

	return &Reconciler{
		jobDriver: jobDriver{
			provider: providerClient,
			ledger:   ledger,
			uploader: uploader,
			logger:   logger.With("component", "reconciler"),
		},
		catalog: catalog,
		config:  config,
		seen:    make(map[uuid.UUID]struct{}),
	}, nil
}

// Reconcile scans the session for units still flagged as generating and
// drives each to a terminal state or leaves it for a later pass. Each
// message's aggregate is replaced with the reconciled snapshot. The
// method blocks until every adopted job settles.
func (r *Reconciler) Reconcile(ctx context.Context, session *domain.Session, cb Callbacks) error {
	if session == nil {
		return fmt.Errorf("session cannot be nil")
	}

	logger := r.logger.With("chat_id", session.ChatID)

	var counterMu sync.Mutex
	resumed, lost, skipped := 0, 0, 0
	count := func(n *int) {
		counterMu.Lock()
		*n++
		counterMu.Unlock()
	}

	// Messages recover in parallel: one message's slow resumed poll loop
	// must never delay another message's recovery.
	messages, mctx := errgroup.WithContext(ctx)
	for _, msg := range session.Messages {
		msg := msg
		if msg.Result == nil {
			continue
		}
		orphans := msg.Result.GeneratingUnits()
		if len(orphans) == 0 {
			continue
		}

		messages.Go(func() error {
			agg := newAggregator(msg.Result, cb, logger)
			jobs, jctx := errgroup.WithContext(mctx)
			msgAge := time.Since(msg.CreatedAt)

			for _, unit := range orphans {
				if !r.adopt(unit.ID) {
					count(&skipped)
					continue
				}

				if unit.ProviderTaskID != "" {
					// Recoverable: resume polling exactly as the live flow
					// does, on a clone this goroutine exclusively owns.
					count(&resumed)
					clone := unit.Clone()
					spec := r.specFor(clone.ModelID)
					jobs.Go(func() error {
						r.driveToCompletion(jctx, clone, spec, agg, time.Now())
						return nil
					})
					continue
				}

				// No task id: creation never acknowledged. Inside the grace
				// window the original submission may still be in flight, so
				// leave it untouched — and unadopted, so a later pass can
				// still decide it.
				if msgAge <= r.config.GraceWindow {
					r.release(unit.ID)
					count(&skipped)
					continue
				}

				// Beyond the window it is unrecoverable: there is no task id
				// to query, ever.
				count(&lost)
				clone := unit.Clone()
				_ = clone.MarkFailed(domain.NewJobError(domain.FailureTaskLost,
					fmt.Sprintf("task lost: no provider task id after %s", msgAge.Round(time.Second))))
				r.persistTerminal(mctx, clone, 0, time.Now())
				agg.Apply(clone)
			}

			_ = jobs.Wait()
			msg.Result = agg.Stop()
			return nil
		})
	}
	_ = messages.Wait()

	logger.Info("reconciliation pass complete",
		"resumed", resumed,
		"lost", lost,
		"skipped", skipped)
	return nil
}

// LoadSession rebuilds the in-memory session for a chat from its
// unsettled ledger records, grouped back into the messages that
// submitted them. The result is the input Reconcile expects.
func (r *Reconciler) LoadSession(ctx context.Context, chatID uuid.UUID) (*domain.Session, error) {
	records, err := r.ledger.ListGenerating(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("failed to load unsettled jobs: %w", err)
	}

	session := &domain.Session{ChatID: chatID}
	byMessage := make(map[uuid.UUID]*domain.Message)
	units := make(map[uuid.UUID][]*domain.JobUnit)

	for _, rec := range records {
		msg, ok := byMessage[rec.MessageID]
		if !ok {
			msg = &domain.Message{ID: rec.MessageID, CreatedAt: rec.CreatedAt}
			byMessage[rec.MessageID] = msg
			session.Messages = append(session.Messages, msg)
		}
		// The oldest record anchors the grace window for the message.
		if rec.CreatedAt.Before(msg.CreatedAt) {
			msg.CreatedAt = rec.CreatedAt
		}
		units[rec.MessageID] = append(units[rec.MessageID], r.unitFromRecord(rec))
	}

	for _, msg := range session.Messages {
		msg.Result = domain.NewAggregateResult(units[msg.ID])
	}
	return session, nil
}

// unitFromRecord rebuilds the in-memory unit a ledger record persisted.
func (r *Reconciler) unitFromRecord(rec *domain.LedgerRecord) *domain.JobUnit {
	spec := r.specFor(rec.ModelName)
	return &domain.JobUnit{
		ID:               rec.JobID,
		ModelID:          rec.ModelName,
		ModelDisplayName: spec.DisplayName,
		ProviderTaskID:   rec.ProviderTaskID,
		Status:           rec.Status,
		Progress:         rec.Progress,
		VideoURL:         rec.VideoURL,
		CoverURL:         rec.CoverURL,
		IsGenerating:     !rec.Status.IsTerminal(),
		CreatedAt:        rec.CreatedAt,
	}
}

// adopt marks a job id as seen, returning false when it was already
// adopted by this or an earlier pass.
func (r *Reconciler) adopt(id uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.seen[id]; ok {
		return false
	}
	r.seen[id] = struct{}{}
	return true
}

// release forgets a job id so a later pass can adopt it.
func (r *Reconciler) release(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.seen, id)
}

// specFor resolves a model id, falling back to a bare standard-class
// spec for ids missing from the catalog (e.g. a model retired between
// restarts); polling still works, only the poll policy class differs.
func (r *Reconciler) specFor(modelID string) domain.ModelSpec {
	if spec, err := r.catalog.Lookup(modelID); err == nil {
		return spec
	}
	return domain.ModelSpec{ID: modelID, DisplayName: modelID, Class: domain.ModelClassStandard}
}
