// Package resilience provides the retry and circuit breaker primitives
// shared by every outbound call the gateway makes: JWKS and discovery
// fetches, Cognito API calls, and MCP tool invocations.
//
// A [Retrier] re-runs an operation with exponential backoff while its error
// is retryable. A [Breaker] stops calling a dependency after a run of
// consecutive failures and tries it again after a cool-down. A [Policy]
// composes the two: each attempt passes through the breaker, and an open
// breaker ends the retry loop immediately.
//
//	policy := resilience.NewPolicy(
//	    resilience.NewRetrier(resilience.RetryConfig{Attempts: 3}),
//	    resilience.NewBreaker(resilience.BreakerConfig{Name: "jwks"}),
//	)
//	keys, err := resilience.Call(ctx, policy, fetchJWKS)
package resilience

import (
	"context"
	"time"

	"github.com/juju/clock"
	"github.com/juju/retry"

	sserr "github.com/StricklySoft/agentcore-gateway/pkg/errors"
)

// Retry defaults.
const (
	DefaultAttempts = 3
	DefaultDelay    = 200 * time.Millisecond
	DefaultMaxDelay = 5 * time.Second
)

// RetryConfig configures a [Retrier]. Zero values take the defaults above.
type RetryConfig struct {
	// Attempts is the total number of calls, including the first.
	Attempts int

	// Delay is the wait before the second attempt. Later waits double up
	// to MaxDelay.
	Delay time.Duration

	// MaxDelay caps the wait between attempts.
	MaxDelay time.Duration

	// Retryable decides whether an error is worth another attempt.
	// Defaults to [sserr.IsRetryable].
	Retryable func(error) bool

	// OnRetry is called after each failed attempt that will be retried.
	OnRetry func(err error, attempt int)

	// Clock drives the waits. Defaults to clock.WallClock.
	Clock clock.Clock
}

// Retrier runs operations with bounded exponential backoff.
// A Retrier is immutable and safe for concurrent use.
type Retrier struct {
	cfg RetryConfig
}

// NewRetrier creates a Retrier, filling unset fields with defaults.
func NewRetrier(cfg RetryConfig) *Retrier {
	if cfg.Attempts <= 0 {
		cfg.Attempts = DefaultAttempts
	}
	if cfg.Delay <= 0 {
		cfg.Delay = DefaultDelay
	}
	if cfg.MaxDelay < cfg.Delay {
		cfg.MaxDelay = max(DefaultMaxDelay, cfg.Delay)
	}
	if cfg.Retryable == nil {
		cfg.Retryable = sserr.IsRetryable
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.WallClock
	}
	return &Retrier{cfg: cfg}
}

// Attempts returns the configured attempt budget.
func (r *Retrier) Attempts() int {
	return r.cfg.Attempts
}

// Do calls fn until it succeeds, returns a non-retryable error, the attempt
// budget is spent, or ctx is done. The error returned is always the one
// produced by the last call of fn, so typed errors reach the caller
// unchanged. If ctx is already done, fn is not called and ctx.Err() is
// returned.
func (r *Retrier) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var last error
	err := retry.Call(retry.CallArgs{
		Func: func() error {
			last = fn(ctx)
			return last
		},
		IsFatalError: func(err error) bool {
			return ctx.Err() != nil || !r.cfg.Retryable(err)
		},
		NotifyFunc: func(err error, attempt int) {
			if r.cfg.OnRetry != nil && attempt < r.cfg.Attempts {
				r.cfg.OnRetry(err, attempt)
			}
		},
		Attempts:    r.cfg.Attempts,
		Delay:       r.cfg.Delay,
		MaxDelay:    r.cfg.MaxDelay,
		BackoffFunc: retry.DoubleDelay,
		Clock:       r.cfg.Clock,
		Stop:        ctx.Done(),
	})
	if err == nil {
		return nil
	}
	if last != nil {
		return last
	}
	return err
}
