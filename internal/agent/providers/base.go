package providers

import (
	"context"

	"github.com/nexuscore/agentrt/internal/backoff"
)

// BaseProvider holds shared retry configuration for LLM providers.
type BaseProvider struct {
	name        string
	maxAttempts int
	policy      backoff.BackoffPolicy
}

// NewBaseProvider creates a base provider with sane retry defaults.
func NewBaseProvider(name string, maxAttempts int, policy backoff.BackoffPolicy) BaseProvider {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if policy == (backoff.BackoffPolicy{}) {
		policy = backoff.DefaultPolicy()
	}
	return BaseProvider{name: name, maxAttempts: maxAttempts, policy: policy}
}

// Retry executes op with exponential backoff, retrying only errors
// isRetryable accepts — rate limits and transient network failures, not
// malformed-request errors. It returns immediately on a non-retryable
// error instead of waiting out the remaining attempts.
func (b *BaseProvider) Retry(ctx context.Context, isRetryable func(error) bool, op func() error) error {
	if op == nil {
		return nil
	}
	var lastErr error
	for attempt := 1; attempt <= b.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := op()
		if err == nil {
			return nil
		}
		lastErr = err
		if isRetryable == nil || !isRetryable(err) {
			return err
		}
		if attempt < b.maxAttempts {
			if err := backoff.SleepWithBackoff(ctx, b.policy, attempt); err != nil {
				return err
			}
		}
	}
	return lastErr
}
