package generation

import (
	"log/slog"

	"github.com/vidsmith/vidsmith/internal/domain"
)

// aggregator is the single writer for one message's AggregateResult.
// Concurrent job goroutines never touch the shared mapping directly:
// they submit their mutated unit through a channel, and the reducer
// goroutine applies it by copy-on-write and recomputes the counters
// from the full new state. Interleaved, out-of-order updates from
// different jobs therefore can never lose each other's writes.
type aggregator struct {
	updates chan aggUpdate
	done    chan struct{}
	current *domain.AggregateResult
	cb      Callbacks
	logger  *slog.Logger
}

type aggUpdate struct {
	unit  *domain.JobUnit
	reply chan *domain.AggregateResult
}

// newAggregator builds a reducer seeded with the initial aggregate and
// starts its goroutine. Callers must Stop it after the last Apply.
func newAggregator(initial *domain.AggregateResult, cb Callbacks, logger *slog.Logger) *aggregator {
	a := &aggregator{
		updates: make(chan aggUpdate),
		done:    make(chan struct{}),
		current: initial,
		cb:      cb,
		logger:  logger,
	}
	go a.run()
	return a
}

func (a *aggregator) run() {
	defer close(a.done)
	for u := range a.updates {
		a.current = a.current.WithUnit(u.unit)
		if !a.current.CheckInvariant() {
			// Total is fixed at submission; a broken sum means a unit
			// was applied that does not belong to this aggregate.
			a.logger.Error("aggregate counter invariant violated",
				"total", a.current.Total,
				"succeeded", a.current.Succeeded,
				"failed", a.current.Failed,
				"generating", a.current.Generating)
		}
		a.cb.emitProgress(a.current, u.unit)
		u.reply <- a.current
	}
}

// Apply submits one mutated unit and returns the fresh snapshot that
// includes it.
func (a *aggregator) Apply(unit *domain.JobUnit) *domain.AggregateResult {
	reply := make(chan *domain.AggregateResult, 1)
	a.updates <- aggUpdate{unit: unit, reply: reply}
	return <-reply
}

// Stop shuts the reducer down and returns the final aggregate. Apply
// must not be called after Stop.
func (a *aggregator) Stop() *domain.AggregateResult {
	close(a.updates)
	<-a.done
	return a.current
}
