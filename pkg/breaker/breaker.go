// Package breaker implements a per-dependency circuit breaker. One Breaker
// guards one named downstream dependency; a Registry holds all of them so
// failures in one dependency never trip calls to another (bulkheading).
package breaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State is the current position of the breaker state machine.
type State string

const (
	// StateClosed passes calls through and counts failures.
	StateClosed State = "closed"
	// StateOpen rejects calls without invoking the wrapped function.
	StateOpen State = "open"
	// StateHalfOpen lets probe calls through while counting successes.
	StateHalfOpen State = "half_open"
)

// ErrOpen is returned when the breaker rejects a call without invoking the
// wrapped function. Callers translate it to their own unavailability error;
// it is deliberately distinct from any error the wrapped function returns.
var ErrOpen = errors.New("circuit breaker is open")

// StateChangeHook is invoked after every state transition, outside hot-path
// error handling. Used to export breaker state as a metric.
type StateChangeHook func(name string, from, to State)

// Breaker guards calls to a single named dependency.
type Breaker struct {
	name             string
	failureThreshold int
	recoveryTimeout  time.Duration
	halfOpenQuota    int
	now              func() time.Time
	onStateChange    StateChangeHook

	mu              sync.Mutex
	state           State
	failureCount    int
	successCount    int
	lastFailureTime time.Time
}

// Option configures a Breaker.
type Option func(*Breaker)

// WithFailureThreshold sets the consecutive-failure count that opens the
// breaker.
func WithFailureThreshold(n int) Option {
	return func(b *Breaker) { b.failureThreshold = n }
}

// WithRecoveryTimeout sets how long the breaker stays open before a probe.
func WithRecoveryTimeout(d time.Duration) Option {
	return func(b *Breaker) { b.recoveryTimeout = d }
}

// WithHalfOpenQuota sets the consecutive successes required to close.
func WithHalfOpenQuota(n int) Option {
	return func(b *Breaker) { b.halfOpenQuota = n }
}

// WithClock overrides the time source. Test-only.
func WithClock(now func() time.Time) Option {
	return func(b *Breaker) { b.now = now }
}

// WithStateChangeHook registers a transition observer.
func WithStateChangeHook(hook StateChangeHook) Option {
	return func(b *Breaker) { b.onStateChange = hook }
}

// New creates a Breaker with the given name and defaults of 5 failures to
// open, 60s recovery, and 3 half-open successes to close.
func New(name string, opts ...Option) *Breaker {
	b := &Breaker{
		name:             name,
		failureThreshold: 5,
		recoveryTimeout:  60 * time.Second,
		halfOpenQuota:    3,
		now:              time.Now,
		state:            StateClosed,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name returns the dependency name this breaker guards.
func (b *Breaker) Name() string { return b.name }

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Metrics is a snapshot of breaker counters for observability.
type Metrics struct {
	State           State
	FailureCount    int
	SuccessCount    int
	LastFailureTime time.Time
}

// Snapshot returns the current counters.
func (b *Breaker) Snapshot() Metrics {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Metrics{
		State:           b.state,
		FailureCount:    b.failureCount,
		SuccessCount:    b.successCount,
		LastFailureTime: b.lastFailureTime,
	}
}

// Execute runs fn through the breaker. When the breaker is open and the
// recovery timeout has not elapsed, fn is never invoked and ErrOpen is
// returned. A context error from fn counts as a failure like any other.
func (b *Breaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if err := b.beforeCall(); err != nil {
		return err
	}

	err := fn(ctx)

	b.afterCall(err == nil)
	return err
}

// beforeCall decides whether the call may proceed, applying the
// Open -> HalfOpen transition when the recovery timeout has elapsed.
func (b *Breaker) beforeCall() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen {
		if b.now().Sub(b.lastFailureTime) < b.recoveryTimeout {
			return ErrOpen
		}
		b.transition(StateHalfOpen)
	}
	return nil
}

// afterCall applies the outcome to the state machine.
func (b *Breaker) afterCall(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		if success {
			// Successes wind the counter back down rather than clearing it,
			// so a flapping dependency still trips eventually.
			if b.failureCount > 0 {
				b.failureCount--
			}
			return
		}
		b.failureCount++
		b.lastFailureTime = b.now()
		if b.failureCount >= b.failureThreshold {
			b.transition(StateOpen)
		}

	case StateHalfOpen:
		if success {
			b.successCount++
			if b.successCount >= b.halfOpenQuota {
				b.failureCount = 0
				b.successCount = 0
				b.transition(StateClosed)
			}
			return
		}
		b.successCount = 0
		b.lastFailureTime = b.now()
		b.transition(StateOpen)

	case StateOpen:
		// A call that started half-open may report after another failure
		// re-opened the breaker; its outcome no longer changes the state.
	}
}

// transition must be called with b.mu held.
func (b *Breaker) transition(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	if b.onStateChange != nil {
		// Hook runs under the lock; implementations must be non-blocking.
		b.onStateChange(b.name, from, to)
	}
}
