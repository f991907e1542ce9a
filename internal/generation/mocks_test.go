package generation

import (
	"context"
	"database/sql"
	"sync"

	"github.com/google/uuid"

	"github.com/vidsmith/vidsmith/internal/domain"
	"github.com/vidsmith/vidsmith/internal/provider"
	"github.com/vidsmith/vidsmith/internal/store"
)

// mockProvider implements provider.Client with function fields so each
// test overrides only what it needs. Call counts are tracked under a
// mutex because jobs run concurrently.
type mockProvider struct {
	mu            sync.Mutex
	createCalls   int
	describeCalls int
	waitCalls     int

	createFn   func(ctx context.Context, spec provider.CreateTaskSpec) (string, error)
	describeFn func(ctx context.Context, taskID string) (provider.TaskResult, error)
	waitFn     func(ctx context.Context, taskID string, model domain.ModelSpec, onPoll provider.OnPoll) (provider.TaskResult, error)
}

func (m *mockProvider) CreateTask(ctx context.Context, spec provider.CreateTaskSpec) (string, error) {
	m.mu.Lock()
	m.createCalls++
	m.mu.Unlock()
	if m.createFn != nil {
		return m.createFn(ctx, spec)
	}
	return "task-" + uuid.New().String()[:8], nil
}

func (m *mockProvider) DescribeTask(ctx context.Context, taskID string) (provider.TaskResult, error) {
	m.mu.Lock()
	m.describeCalls++
	m.mu.Unlock()
	if m.describeFn != nil {
		return m.describeFn(ctx, taskID)
	}
	return provider.TaskResult{TaskID: taskID, Status: provider.StatusProcessing}, nil
}

func (m *mockProvider) WaitForCompletion(ctx context.Context, taskID string, model domain.ModelSpec, onPoll provider.OnPoll) (provider.TaskResult, error) {
	m.mu.Lock()
	m.waitCalls++
	m.mu.Unlock()
	if m.waitFn != nil {
		return m.waitFn(ctx, taskID, model, onPoll)
	}
	return provider.TaskResult{TaskID: taskID, Status: provider.StatusFinished, Progress: 100, PollCount: 1}, nil
}

func (m *mockProvider) counts() (creates, waits int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createCalls, m.waitCalls
}

// mockLedger implements store.LedgerStore, recording every write.
type mockLedger struct {
	mu         sync.Mutex
	records    []*domain.LedgerRecord
	patches    map[string][]store.LedgerPatch
	jobPatches map[uuid.UUID][]store.LedgerPatch

	insertFn func(ctx context.Context, rec *domain.LedgerRecord) error
	updateFn func(ctx context.Context, taskID string, patch store.LedgerPatch) error
	listFn   func(ctx context.Context, chatID uuid.UUID) ([]*domain.LedgerRecord, error)
}

func newMockLedger() *mockLedger {
	return &mockLedger{
		patches:    make(map[string][]store.LedgerPatch),
		jobPatches: make(map[uuid.UUID][]store.LedgerPatch),
	}
}

func (m *mockLedger) Insert(ctx context.Context, rec *domain.LedgerRecord) error {
	m.mu.Lock()
	m.records = append(m.records, rec)
	m.mu.Unlock()
	if m.insertFn != nil {
		return m.insertFn(ctx, rec)
	}
	return nil
}

func (m *mockLedger) UpdateByTaskID(ctx context.Context, taskID string, patch store.LedgerPatch) error {
	m.mu.Lock()
	m.patches[taskID] = append(m.patches[taskID], patch)
	m.mu.Unlock()
	if m.updateFn != nil {
		return m.updateFn(ctx, taskID, patch)
	}
	return nil
}

func (m *mockLedger) UpdateByJobID(ctx context.Context, jobID uuid.UUID, patch store.LedgerPatch) error {
	m.mu.Lock()
	m.jobPatches[jobID] = append(m.jobPatches[jobID], patch)
	m.mu.Unlock()
	return nil
}

func (m *mockLedger) FindByTaskID(ctx context.Context, taskID string) (*domain.LedgerRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.records {
		if rec.ProviderTaskID == taskID {
			return rec, nil
		}
	}
	return nil, store.ErrLedgerRecordNotFound
}

func (m *mockLedger) ListGenerating(ctx context.Context, chatID uuid.UUID) ([]*domain.LedgerRecord, error) {
	if m.listFn != nil {
		return m.listFn(ctx, chatID)
	}
	return nil, nil
}

func (m *mockLedger) WithTx(tx *sql.Tx) store.LedgerStore { return m }

func (m *mockLedger) insertCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

func (m *mockLedger) patchesFor(taskID string) []store.LedgerPatch {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]store.LedgerPatch(nil), m.patches[taskID]...)
}

func (m *mockLedger) jobPatchesFor(jobID uuid.UUID) []store.LedgerPatch {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]store.LedgerPatch(nil), m.jobPatches[jobID]...)
}

// mockUploader implements Uploader.
type mockUploader struct {
	mu       sync.Mutex
	calls    []string
	uploadFn func(ctx context.Context, source, hint string) (string, error)
}

func (m *mockUploader) Upload(ctx context.Context, source, hint string) (string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, source)
	m.mu.Unlock()
	if m.uploadFn != nil {
		return m.uploadFn(ctx, source, hint)
	}
	return "https://durable.example.com/" + hint, nil
}

func (m *mockUploader) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// progressRecorder captures every callback invocation. Callbacks are
// serialized on the reducer goroutine, so no locking is needed inside
// them, but tests read after Stop anyway.
type progressRecorder struct {
	mu        sync.Mutex
	snapshots []*domain.AggregateResult
	completes []*domain.AggregateResult
	errs      []error
}

func (p *progressRecorder) callbacks() Callbacks {
	return Callbacks{
		OnProgress: func(agg *domain.AggregateResult, unit *domain.JobUnit, jobIndex, totalForModel int) {
			p.mu.Lock()
			p.snapshots = append(p.snapshots, agg)
			p.mu.Unlock()
		},
		OnComplete: func(agg *domain.AggregateResult) {
			p.mu.Lock()
			p.completes = append(p.completes, agg)
			p.mu.Unlock()
		},
		OnError: func(err error) {
			p.mu.Lock()
			p.errs = append(p.errs, err)
			p.mu.Unlock()
		},
	}
}
