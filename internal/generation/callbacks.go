package generation

import (
	"github.com/vidsmith/vidsmith/internal/domain"
)

// Callbacks is the push-based contract between the core and its caller.
// The caller sees every intermediate progress tick, not just the final
// result; the UI and any external persistence are eventually consistent
// with the latest callback and are never polled separately.
//
// All callbacks are invoked from the aggregate reducer goroutine, so
// invocations for one message are serialized and each aggregate snapshot
// is immutable once emitted.
type Callbacks struct {
	// OnProgress fires after every job unit mutation with the fresh
	// aggregate snapshot. unit is the mutated job, nil exactly once for
	// the initial placeholder emission. jobIndex is the unit's index
	// within its model; totalForModel is that model's requested count.
	OnProgress func(agg *domain.AggregateResult, unit *domain.JobUnit, jobIndex, totalForModel int)

	// OnComplete fires once every unit of the submission is terminal.
	OnComplete func(agg *domain.AggregateResult)

	// OnError fires for request-level failures only; job-level failures
	// surface as failed units through OnProgress.
	OnError func(err error)
}

func (c Callbacks) emitProgress(agg *domain.AggregateResult, unit *domain.JobUnit) {
	if c.OnProgress == nil {
		return
	}
	if unit == nil {
		c.OnProgress(agg, nil, 0, 0)
		return
	}
	c.OnProgress(agg, unit, unit.Index, len(agg.VideosByModel[unit.ModelDisplayName]))
}

func (c Callbacks) emitComplete(agg *domain.AggregateResult) {
	if c.OnComplete != nil {
		c.OnComplete(agg)
	}
}

func (c Callbacks) emitError(err error) {
	if c.OnError != nil {
		c.OnError(err)
	}
}
