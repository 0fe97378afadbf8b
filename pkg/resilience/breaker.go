package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/juju/clock"
	"github.com/sony/gobreaker"

	sserr "github.com/StricklySoft/agentcore-gateway/pkg/errors"
)

// Breaker defaults.
const (
	DefaultThreshold = 5
	DefaultCoolDown  = 30 * time.Second
)

// State is the state of a circuit breaker.
type State string

const (
	// StateClosed passes calls through and counts consecutive failures.
	StateClosed State = "CLOSED"
	// StateOpen rejects calls until the cool-down elapses.
	StateOpen State = "OPEN"
	// StateHalfOpen lets one trial call through. Success closes the
	// breaker; failure reopens it.
	StateHalfOpen State = "HALF_OPEN"
)

// BreakerState is a point-in-time snapshot of a breaker, suitable for
// health endpoints.
type BreakerState struct {
	Name            string    `json:"name"`
	State           State     `json:"state"`
	FailureCount    uint32    `json:"failure_count"`
	LastFailureTime time.Time `json:"last_failure_time,omitzero"`
	Threshold       uint32    `json:"threshold"`
}

// BreakerConfig configures a [Breaker]. Zero values take the defaults.
type BreakerConfig struct {
	// Name identifies the breaker in logs, metrics and errors.
	Name string

	// Threshold is the number of consecutive failures that opens the
	// breaker.
	Threshold uint32

	// CoolDown is how long the breaker stays open before letting a trial call
	// through.
	CoolDown time.Duration

	// IsFailure decides whether an error counts against the dependency.
	// The default counts untyped errors and retryable typed errors;
	// typed client errors (rejected credentials, unknown key id) and
	// caller cancellation do not trip the breaker.
	IsFailure func(error) bool

	// OnStateChange is called on every transition. It runs while the
	// breaker holds its lock and must not call back into the breaker.
	OnStateChange func(name string, from, to State)

	// Clock stamps LastFailureTime. Defaults to clock.WallClock.
	Clock clock.Clock
}

// Breaker is a circuit breaker around a single dependency. It is safe for
// concurrent use.
type Breaker struct {
	cb        *gobreaker.CircuitBreaker
	name      string
	threshold uint32
	isFailure func(error) bool
	clock     clock.Clock

	mu          sync.Mutex
	lastFailure time.Time
}

// NewBreaker creates a closed Breaker.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.Threshold == 0 {
		cfg.Threshold = DefaultThreshold
	}
	if cfg.CoolDown <= 0 {
		cfg.CoolDown = DefaultCoolDown
	}
	if cfg.IsFailure == nil {
		cfg.IsFailure = defaultIsFailure
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.WallClock
	}

	b := &Breaker{
		name:      cfg.Name,
		threshold: cfg.Threshold,
		isFailure: cfg.IsFailure,
		clock:     cfg.Clock,
	}

	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 1,
		Timeout:     cfg.CoolDown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.Threshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !cfg.IsFailure(err)
		},
	}
	if cfg.OnStateChange != nil {
		notify := cfg.OnStateChange
		settings.OnStateChange = func(name string, from, to gobreaker.State) {
			notify(name, fromGobreaker(from), fromGobreaker(to))
		}
	}
	b.cb = gobreaker.NewCircuitBreaker(settings)
	return b
}

func defaultIsFailure(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	if _, ok := sserr.AsError(err); !ok {
		return true
	}
	return sserr.IsRetryable(err)
}

// Name returns the breaker name.
func (b *Breaker) Name() string {
	return b.name
}

// State returns the current state. An open breaker whose cool-down has
// elapsed reports HALF_OPEN.
func (b *Breaker) State() State {
	return fromGobreaker(b.cb.State())
}

// Snapshot returns the breaker's current state and counters.
func (b *Breaker) Snapshot() BreakerState {
	state := b.cb.State()
	counts := b.cb.Counts()
	b.mu.Lock()
	last := b.lastFailure
	b.mu.Unlock()

	failures := counts.ConsecutiveFailures
	if state == gobreaker.StateOpen {
		// Counts reset on the transition; report the run that opened it.
		failures = b.threshold
	}
	return BreakerState{
		Name:            b.name,
		State:           fromGobreaker(state),
		FailureCount:    failures,
		LastFailureTime: last,
		Threshold:       b.threshold,
	}
}

// Execute runs fn if the breaker allows it. A rejected call returns a
// [sserr.CodeCircuitOpen] error without invoking fn; otherwise fn's error
// is returned unchanged.
func (b *Breaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	_, err := b.cb.Execute(func() (any, error) {
		err := fn(ctx)
		if err != nil && b.isFailure(err) {
			b.mu.Lock()
			b.lastFailure = b.clock.Now()
			b.mu.Unlock()
		}
		return nil, err
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return sserr.CircuitOpen(b.name)
	}
	return err
}

func fromGobreaker(s gobreaker.State) State {
	switch s {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}
