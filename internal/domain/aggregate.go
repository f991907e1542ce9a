package domain

import (
	"github.com/google/uuid"
)

// AggregateResult is the rollup of every JobUnit belonging to one user
// message. Total is fixed at submission time; the remaining counters are
// recomputed from the full unit set after every mutation, never trusted
// incrementally across a restart.
//
// The container is shared between many concurrent job goroutines, so
// mutation happens by copy-on-write: WithUnit returns a fresh aggregate
// with fresh maps and slices, leaving prior snapshots untouched.
type AggregateResult struct {
	Total      int `json:"total"`
	Succeeded  int `json:"succeeded"`
	Failed     int `json:"failed"`
	Generating int `json:"generating"`

	// VideosByModel maps model display name to its ordered job units.
	VideosByModel map[string][]*JobUnit `json:"videos_by_model"`
}

// NewAggregateResult builds the initial aggregate from pre-populated
// queued units, so callers have placeholders before any job starts.
func NewAggregateResult(units []*JobUnit) *AggregateResult {
	byModel := make(map[string][]*JobUnit)
	for _, u := range units {
		byModel[u.ModelDisplayName] = append(byModel[u.ModelDisplayName], u.Clone())
	}
	agg := &AggregateResult{
		Total:         len(units),
		VideosByModel: byModel,
	}
	agg.recount()
	return agg
}

// WithUnit returns a new aggregate with the given unit replacing the
// one sharing its ID. Counters are recomputed from the full new state.
// A unit whose ID is not present is ignored (the aggregate's membership
// is fixed at submission time).
func (a *AggregateResult) WithUnit(unit *JobUnit) *AggregateResult {
	byModel := make(map[string][]*JobUnit, len(a.VideosByModel))
	for name, units := range a.VideosByModel {
		cp := make([]*JobUnit, len(units))
		for i, u := range units {
			if u.ID == unit.ID {
				cp[i] = unit.Clone()
			} else {
				cp[i] = u
			}
		}
		byModel[name] = cp
	}
	next := &AggregateResult{
		Total:         a.Total,
		VideosByModel: byModel,
	}
	next.recount()
	return next
}

// recount derives the succeeded/failed/generating counters by summing
// unit statuses. Total is never recomputed.
func (a *AggregateResult) recount() {
	succeeded, failed, generating := 0, 0, 0
	for _, units := range a.VideosByModel {
		for _, u := range units {
			switch u.Status {
			case JobStatusFinished:
				succeeded++
			case JobStatusFailed:
				failed++
			default:
				generating++
			}
		}
	}
	a.Succeeded = succeeded
	a.Failed = failed
	a.Generating = generating
}

// Unit returns the job unit with the given ID, or nil.
func (a *AggregateResult) Unit(id uuid.UUID) *JobUnit {
	for _, units := range a.VideosByModel {
		for _, u := range units {
			if u.ID == id {
				return u
			}
		}
	}
	return nil
}

// Units returns every job unit across all models.
func (a *AggregateResult) Units() []*JobUnit {
	var all []*JobUnit
	for _, units := range a.VideosByModel {
		all = append(all, units...)
	}
	return all
}

// GeneratingUnits returns the units still flagged as generating.
func (a *AggregateResult) GeneratingUnits() []*JobUnit {
	var out []*JobUnit
	for _, units := range a.VideosByModel {
		for _, u := range units {
			if u.IsGenerating {
				out = append(out, u)
			}
		}
	}
	return out
}

// Settled reports whether every unit has reached a terminal state.
func (a *AggregateResult) Settled() bool {
	return a.Generating == 0
}

// CheckInvariant verifies succeeded+failed+generating == total.
func (a *AggregateResult) CheckInvariant() bool {
	return a.Succeeded+a.Failed+a.Generating == a.Total
}
