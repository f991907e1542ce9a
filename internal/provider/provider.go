package provider

import (
	"context"
	"time"

	"github.com/vidsmith/vidsmith/internal/domain"
)

// Status is the normalized status vocabulary every provider response is
// mapped onto. The provider's own words never leave the client.
type Status string

const (
	StatusProcessing Status = "processing"
	StatusFinished   Status = "finished"
	StatusFailed     Status = "failed"
)

// IsTerminal reports whether the status ends the poll loop.
func (s Status) IsTerminal() bool {
	return s == StatusFinished || s == StatusFailed
}

// TaskResult is one normalized snapshot of a remote task.
type TaskResult struct {
	TaskID          string
	Status          Status
	Progress        int
	VideoURL        string
	CoverURL        string
	DurationSeconds float64

	// Err carries the failure taxonomy entry for failed results,
	// including timeout results synthesized by the poll loop.
	Err *domain.JobError

	// PollCount is the number of describe calls spent on this task by
	// the poll loop that produced the result.
	PollCount int
}

// CreateTaskSpec carries everything needed for one task creation call.
type CreateTaskSpec struct {
	Model          domain.ModelSpec
	Prompt         string
	FirstFrameURLs []string
	LastFrameURL   string
	Output         domain.OutputConfig
	Params         map[string]any
}

// PollPolicy bounds the poll loop for one model class. Exceeding either
// ceiling yields a terminal failed result with a timeout reason — the
// loop can never run forever.
type PollPolicy struct {
	Interval    time.Duration `mapstructure:"interval"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	MaxElapsed  time.Duration `mapstructure:"max_elapsed"`
}

// OnPoll is invoked on every poll tick, including ticks with no status
// change, so callers can surface progress continuously.
type OnPoll func(result TaskResult)

// Client is the remote provider boundary.
type Client interface {
	// CreateTask creates one remote generation task and returns the
	// provider's task id. It performs no local mutation.
	CreateTask(ctx context.Context, spec CreateTaskSpec) (string, error)

	// DescribeTask fetches and normalizes the task's current state.
	DescribeTask(ctx context.Context, taskID string) (TaskResult, error)

	// WaitForCompletion polls DescribeTask on the model class's interval
	// until a terminal status or the poll ceiling is reached, invoking
	// onPoll every tick. The returned result is always terminal.
	WaitForCompletion(ctx context.Context, taskID string, model domain.ModelSpec, onPoll OnPoll) (TaskResult, error)
}
