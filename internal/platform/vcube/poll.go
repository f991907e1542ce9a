package vcube

import (
	"context"
	"fmt"
	"time"

	"github.com/vidsmith/vidsmith/internal/domain"
	"github.com/vidsmith/vidsmith/internal/provider"
)

// WaitForCompletion polls DescribeTask on a fixed interval until the
// task reaches a terminal status or the model class's poll ceiling is
// hit. onPoll fires on every successful poll, including ticks without a
// status change, so callers see each progress tick. Exceeding the
// ceiling yields a terminal failed result with a timeout reason; the
// loop never runs unbounded.
//
// Transient describe errors do not abort the loop; they consume an
// attempt and polling continues.
func (c *Client) WaitForCompletion(ctx context.Context, taskID string, model domain.ModelSpec, onPoll provider.OnPoll) (provider.TaskResult, error) {
	policy := c.pollPolicy(model.Class)
	start := c.now()

	logger := c.logger.With("task_id", taskID, "model", model.ID)
	logger.InfoContext(ctx, "polling task until completion",
		"interval", policy.Interval,
		"max_attempts", policy.MaxAttempts)

	for attempt := 1; ; attempt++ {
		if attempt > policy.MaxAttempts ||
			(policy.MaxElapsed > 0 && c.now().Sub(start) >= policy.MaxElapsed) {
			polls := attempt - 1
			logger.WarnContext(ctx, "poll ceiling reached without terminal status",
				"polls", polls,
				"elapsed", c.now().Sub(start))
			return provider.TaskResult{
				TaskID:    taskID,
				Status:    provider.StatusFailed,
				PollCount: polls,
				Err: domain.NewJobError(domain.FailureTimeout,
					fmt.Sprintf("no terminal status after %d poll(s) over %s", polls, c.now().Sub(start).Round(time.Second))),
			}, nil
		}

		select {
		case <-ctx.Done():
			return provider.TaskResult{}, fmt.Errorf("polling cancelled for task %s: %w", taskID, ctx.Err())
		case <-time.After(policy.Interval):
		}

		result, err := c.DescribeTask(ctx, taskID)
		if err != nil {
			logger.WarnContext(ctx, "describe task failed, will poll again",
				"attempt", attempt,
				"error", err)
			continue
		}

		result.PollCount = attempt
		if onPoll != nil {
			onPoll(result)
		}

		if result.Status.IsTerminal() {
			logger.InfoContext(ctx, "task reached terminal status",
				"status", result.Status,
				"polls", attempt)
			return result, nil
		}
	}
}

// pollPolicy resolves the policy for a model class, falling back to the
// standard class when the class has no explicit entry.
func (c *Client) pollPolicy(class domain.ModelClass) provider.PollPolicy {
	if policy, ok := c.cfg.PollPolicies[class]; ok {
		return policy
	}
	if policy, ok := c.cfg.PollPolicies[domain.ModelClassStandard]; ok {
		return policy
	}
	return DefaultPollPolicies()[domain.ModelClassStandard]
}
