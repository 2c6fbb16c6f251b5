package breaker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errDownstream = errors.New("downstream failed")

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestBreaker(clock *fakeClock, opts ...Option) *Breaker {
	base := []Option{
		WithFailureThreshold(3),
		WithRecoveryTimeout(30 * time.Second),
		WithHalfOpenQuota(2),
		WithClock(clock.Now),
	}
	return New("test_dep", append(base, opts...)...)
}

func fail(b *Breaker) error {
	return b.Execute(context.Background(), func(context.Context) error { return errDownstream })
}

func succeed(b *Breaker) error {
	return b.Execute(context.Background(), func(context.Context) error { return nil })
}

func TestBreakerOpensAtThreshold(t *testing.T) {
	b := newTestBreaker(newFakeClock())

	for i := 0; i < 2; i++ {
		require.ErrorIs(t, fail(b), errDownstream)
		assert.Equal(t, StateClosed, b.State())
	}
	require.ErrorIs(t, fail(b), errDownstream)
	assert.Equal(t, StateOpen, b.State())
}

func TestOpenBreakerRejectsWithoutCalling(t *testing.T) {
	b := newTestBreaker(newFakeClock())
	for i := 0; i < 3; i++ {
		_ = fail(b)
	}

	called := false
	err := b.Execute(context.Background(), func(context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrOpen)
	assert.False(t, called, "an open breaker must not invoke the wrapped call")
}

func TestRecoveryProbeAndClose(t *testing.T) {
	clock := newFakeClock()
	b := newTestBreaker(clock)
	for i := 0; i < 3; i++ {
		_ = fail(b)
	}
	require.Equal(t, StateOpen, b.State())

	// Still inside the recovery window.
	clock.Advance(29 * time.Second)
	assert.ErrorIs(t, succeed(b), ErrOpen)

	// Past the window a probe goes through.
	clock.Advance(2 * time.Second)
	require.NoError(t, succeed(b))
	assert.Equal(t, StateHalfOpen, b.State())

	// The quota is two consecutive successes.
	require.NoError(t, succeed(b))
	assert.Equal(t, StateClosed, b.State())
	assert.Zero(t, b.Snapshot().FailureCount)
}

func TestHalfOpenFailureReopens(t *testing.T) {
	clock := newFakeClock()
	b := newTestBreaker(clock)
	for i := 0; i < 3; i++ {
		_ = fail(b)
	}
	clock.Advance(31 * time.Second)

	require.ErrorIs(t, fail(b), errDownstream)
	assert.Equal(t, StateOpen, b.State())

	// The failed probe restarts the recovery window.
	assert.ErrorIs(t, succeed(b), ErrOpen)
	clock.Advance(31 * time.Second)
	assert.NoError(t, succeed(b))
}

func TestClosedSuccessWindsFailuresDown(t *testing.T) {
	b := newTestBreaker(newFakeClock())

	_ = fail(b)
	_ = fail(b)
	require.NoError(t, succeed(b))
	assert.Equal(t, 1, b.Snapshot().FailureCount)

	// One decrement is not a reset: two more failures still trip it.
	_ = fail(b)
	_ = fail(b)
	assert.Equal(t, StateOpen, b.State())
}

func TestStateChangeHook(t *testing.T) {
	clock := newFakeClock()
	type change struct{ from, to State }
	var changes []change
	b := newTestBreaker(clock, WithStateChangeHook(func(name string, from, to State) {
		assert.Equal(t, "test_dep", name)
		changes = append(changes, change{from, to})
	}))

	for i := 0; i < 3; i++ {
		_ = fail(b)
	}
	clock.Advance(31 * time.Second)
	_ = succeed(b)
	_ = succeed(b)

	assert.Equal(t, []change{
		{StateClosed, StateOpen},
		{StateOpen, StateHalfOpen},
		{StateHalfOpen, StateClosed},
	}, changes)
}

func TestRegistryIsolatesDependencies(t *testing.T) {
	clock := newFakeClock()
	reg := NewRegistry(WithFailureThreshold(1), WithClock(clock.Now))

	identity := reg.Get("identity_provider")
	wallet := reg.Get("wallet_service")
	require.NotSame(t, identity, wallet)
	assert.Same(t, identity, reg.Get("identity_provider"))

	_ = fail(identity)
	assert.Equal(t, StateOpen, identity.State())
	assert.Equal(t, StateClosed, wallet.State(), "one tripped dependency must not affect another")

	assert.ElementsMatch(t, []string{"identity_provider", "wallet_service"}, reg.Names())
}

func TestExecutePropagatesContext(t *testing.T) {
	b := newTestBreaker(newFakeClock())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := b.Execute(ctx, func(ctx context.Context) error { return ctx.Err() })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, b.Snapshot().FailureCount, "a context error counts as a failure")
}
