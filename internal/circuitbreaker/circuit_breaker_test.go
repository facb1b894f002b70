package circuitbreaker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

var errBoom = errors.New("boom")

func newTestBreaker(cfg Config) (*Breaker, *testClock) {
	clk := &testClock{now: time.Unix(1_700_000_000, 0)}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return newBreaker("test", cfg, clk.Now, logger), clk
}

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	b, _ := newTestBreaker(Config{FailureThreshold: 3, ResetTimeout: time.Second, SuccessThreshold: 2})

	for i := 0; i < 2; i++ {
		b.RecordFailure()
		assert.Equal(t, StateClosed, b.State())
	}
	b.RecordFailure()
	assert.Equal(t, StateOpen, b.State())

	err := b.Allow()
	var openErr *OpenError
	require.ErrorAs(t, err, &openErr)
	assert.Equal(t, "test", openErr.Name)
	assert.Equal(t, time.Second, openErr.RetryIn)
}

func TestBreaker_SuccessResetsConsecutiveFailures(t *testing.T) {
	b, _ := newTestBreaker(Config{FailureThreshold: 3})

	b.RecordFailure()
	b.RecordFailure()
	b.RecordSuccess()
	b.RecordFailure()
	b.RecordFailure()
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_FullCycle(t *testing.T) {
	b, clk := newTestBreaker(Config{FailureThreshold: 2, ResetTimeout: 30 * time.Second, SuccessThreshold: 2})

	b.RecordFailure()
	b.RecordFailure()
	require.Equal(t, StateOpen, b.State())

	clk.Advance(10 * time.Second)
	var openErr *OpenError
	require.ErrorAs(t, b.Allow(), &openErr)
	assert.Equal(t, 20*time.Second, openErr.RetryIn)

	clk.Advance(20 * time.Second)
	assert.Equal(t, StateHalfOpen, b.State())
	assert.NoError(t, b.Allow())

	b.RecordSuccess()
	assert.Equal(t, StateHalfOpen, b.State())
	b.RecordSuccess()
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	b, clk := newTestBreaker(Config{FailureThreshold: 1, ResetTimeout: time.Second, SuccessThreshold: 3})

	b.RecordFailure()
	clk.Advance(time.Second)
	require.Equal(t, StateHalfOpen, b.State())

	b.RecordSuccess()
	b.RecordFailure()
	assert.Equal(t, StateOpen, b.State())
	assert.Error(t, b.Allow())
}

func TestBreaker_Stats(t *testing.T) {
	b, _ := newTestBreaker(Config{FailureThreshold: 10})
	b.RecordSuccess()
	b.RecordFailure()
	b.RecordFailure()

	s := b.Stats()
	assert.Equal(t, int64(3), s.TotalRequests)
	assert.Equal(t, int64(2), s.TotalFailures)
	assert.Equal(t, int64(1), s.TotalSuccesses)
	assert.Equal(t, 2, s.Failures)
	assert.False(t, s.LastFailure.IsZero())
	assert.False(t, s.LastSuccess.IsZero())
}

func TestBreaker_Reset(t *testing.T) {
	b, _ := newTestBreaker(Config{FailureThreshold: 1})
	b.RecordFailure()
	require.Equal(t, StateOpen, b.State())

	b.Reset()
	assert.Equal(t, StateClosed, b.State())
	assert.NoError(t, b.Allow())
}

func TestExecute(t *testing.T) {
	b, _ := newTestBreaker(Config{FailureThreshold: 2})
	ctx := context.Background()

	v, err := Execute(ctx, b, func(context.Context) (int, error) { return 42, nil })
	require.NoError(t, err)
	assert.Equal(t, 42, v)

	for i := 0; i < 2; i++ {
		_, err = Execute(ctx, b, func(context.Context) (int, error) { return 0, errBoom })
		assert.ErrorIs(t, err, errBoom)
	}

	called := false
	_, err = Execute(ctx, b, func(context.Context) (int, error) {
		called = true
		return 1, nil
	})
	var openErr *OpenError
	assert.ErrorAs(t, err, &openErr)
	assert.False(t, called, "open circuit must not call through")
}

func TestExecute_CallerCancellationNotRecorded(t *testing.T) {
	b, _ := newTestBreaker(Config{FailureThreshold: 1})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Execute(ctx, b, func(ctx context.Context) (int, error) { return 0, ctx.Err() })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateClosed, b.State())
	assert.Zero(t, b.Stats().TotalFailures)

	// A timeout set inside fn is the dependency being slow.
	_, err = Execute(context.Background(), b, func(ctx context.Context) (int, error) {
		ctx, cancel := context.WithTimeout(ctx, time.Millisecond)
		defer cancel()
		<-ctx.Done()
		return 0, ctx.Err()
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, StateOpen, b.State())
}

func TestExecuteWithFallback(t *testing.T) {
	b, _ := newTestBreaker(Config{FailureThreshold: 1})
	ctx := context.Background()

	_, err := ExecuteWithFallback(ctx, b, func(context.Context) (string, error) { return "", errBoom }, "fallback")
	assert.ErrorIs(t, err, errBoom, "fallback is only used when the circuit is open")

	v, err := ExecuteWithFallback(ctx, b, func(context.Context) (string, error) { return "live", nil }, "fallback")
	require.NoError(t, err)
	assert.Equal(t, "fallback", v)
}

func TestRegistry_LazyIndependentBreakers(t *testing.T) {
	r := NewRegistry(RegistryOptions{
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		Overrides: map[string]Config{"smtp": {FailureThreshold: 1}},
	})

	a := r.Get("doh:google")
	assert.Same(t, a, r.Get("doh:google"))

	smtp := r.Get("smtp")
	smtp.RecordFailure()
	assert.Equal(t, StateOpen, smtp.State())
	assert.Equal(t, StateClosed, a.State())

	for i := 0; i < 4; i++ {
		a.RecordFailure()
	}
	assert.Equal(t, StateClosed, a.State(), "default threshold is 5")
	a.RecordFailure()
	assert.Equal(t, StateOpen, a.State())

	snap := r.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "doh:google", snap[0].Name)
	assert.Equal(t, "smtp", snap[1].Name)

	assert.True(t, r.Reset("smtp"))
	assert.False(t, r.Reset("unknown"))
	assert.Equal(t, StateClosed, smtp.State())

	r.ResetAll()
	assert.Equal(t, StateClosed, a.State())
}
