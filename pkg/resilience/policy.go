package resilience

import "context"

// Policy runs every attempt of a [Retrier] through a [Breaker]. Either may
// be nil, in which case that half of the policy is skipped.
type Policy struct {
	retrier *Retrier
	breaker *Breaker
}

// NewPolicy composes a retrier and a breaker.
func NewPolicy(r *Retrier, b *Breaker) *Policy {
	return &Policy{retrier: r, breaker: b}
}

// Breaker returns the policy's breaker, or nil.
func (p *Policy) Breaker() *Breaker {
	return p.breaker
}

// Once returns a policy that shares p's breaker but never retries. Use it
// for calls that must not be repeated.
func (p *Policy) Once() *Policy {
	return &Policy{breaker: p.breaker}
}

// Run executes fn under the policy. An open breaker yields a
// non-retryable error, which ends the retry loop on the spot.
func (p *Policy) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	attempt := fn
	if p.breaker != nil {
		attempt = func(ctx context.Context) error {
			return p.breaker.Execute(ctx, fn)
		}
	}
	if p.retrier == nil {
		return attempt(ctx)
	}
	return p.retrier.Do(ctx, attempt)
}

// Call is the value-returning form of [Policy.Run]. A nil policy calls fn
// directly.
func Call[T any](ctx context.Context, p *Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	run := func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	}
	if p == nil {
		err := run(ctx)
		return out, err
	}
	err := p.Run(ctx, run)
	return out, err
}
