package executor

import (
	"context"
	"time"

	"github.com/EvolvingAgentsLabs/llmunix-sub003/internal/models"
)

// maxAttempts returns the total number of tool invocations a step may
// make: one initial attempt plus the policy's retries.
func maxAttempts(policy models.ErrorPolicy) int {
	if policy.Action == models.ActionRetry && policy.MaxRetries > 0 {
		return 1 + policy.MaxRetries
	}
	return 1
}

// ultimateAction returns the action applied once a step's failure can no
// longer be retried. For retry policies this is the configured
// on_exhaust fallback, defaulting to fail; for the rest it is the step's
// effective policy action.
func ultimateAction(step *models.Step) string {
	if step.OnError.Action == models.ActionRetry {
		if step.OnError.OnExhaust != "" {
			return step.OnError.OnExhaust
		}
		return models.ActionFail
	}
	return step.PolicyAction()
}

// sleepRetryDelay waits the policy's delay between attempts, returning
// early if the context is cancelled.
func sleepRetryDelay(ctx context.Context, policy models.ErrorPolicy) error {
	if policy.RetryDelay <= 0 {
		return nil
	}
	timer := time.NewTimer(policy.RetryDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
