// Package retry decides whether a failed attempt is re-queued and how long
// the task waits before it becomes eligible again.
package retry

import (
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/ytget/mediaporter/internal/model"
)

// Defaults
const (
	DefaultMaxRetries     = 2
	DefaultRetryDelay     = time.Second
	DefaultRateLimitDelay = 5 * time.Second
	DefaultMaxDelay       = time.Minute
	backoffMultiplier     = 2.0
)

// Policy holds the per-batch retry budget and pacing
type Policy struct {
	// MaxRetries is the number of retries after the first attempt
	MaxRetries int
	// RetryDelay is the wait before re-queueing after a retryable failure
	RetryDelay time.Duration
	// RateLimitDelay is the first wait after a rate-limit failure; it doubles per attempt
	RateLimitDelay time.Duration
	// MaxDelay caps every wait
	MaxDelay time.Duration
}

// DefaultPolicy returns the policy used when settings leave fields empty
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:     DefaultMaxRetries,
		RetryDelay:     DefaultRetryDelay,
		RateLimitDelay: DefaultRateLimitDelay,
		MaxDelay:       DefaultMaxDelay,
	}
}

// MaxAttempts is the total attempt budget of a task
func (p Policy) MaxAttempts() int {
	if p.MaxRetries < 0 {
		return 1
	}
	return p.MaxRetries + 1
}

// ShouldRetry reports whether the task gets another attempt after err.
// Non-retryable kinds are terminal regardless of the remaining budget.
func (p Policy) ShouldRetry(task *model.Task, err error) bool {
	if err == nil {
		return false
	}
	if !model.KindOf(err).IsRetryable() {
		return false
	}
	return task.Attempt < p.MaxAttempts()
}

// Delay returns how long the task waits before it is re-queued. Rate-limit
// failures back off exponentially; other retryable failures wait RetryDelay.
func (p Policy) Delay(task *model.Task, err error) time.Duration {
	if model.KindOf(err) != model.ErrorRateLimited || p.RateLimitDelay <= 0 {
		return p.capped(p.RetryDelay)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.RateLimitDelay
	b.RandomizationFactor = 0
	b.Multiplier = backoffMultiplier
	b.MaxInterval = p.maxDelay()
	b.MaxElapsedTime = 0
	b.Reset()

	var d time.Duration
	for i := 0; i < max(task.Attempt, 1); i++ {
		d = b.NextBackOff()
	}
	return p.capped(d)
}

func (p Policy) maxDelay() time.Duration {
	if p.MaxDelay <= 0 {
		return DefaultMaxDelay
	}
	return p.MaxDelay
}

func (p Policy) capped(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return min(d, p.maxDelay())
}
