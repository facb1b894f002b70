package dedup_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/optimode/emailguard/internal/dedup"
)

func TestGroup_CoalescesConcurrentCalls(t *testing.T) {
	var g dedup.Group[string]
	var calls atomic.Int32
	release := make(chan struct{})

	fn := func(context.Context) (string, error) {
		calls.Add(1)
		<-release
		return "result", nil
	}

	var wg sync.WaitGroup
	results := make([]string, 5)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := g.Do(context.Background(), "user@example.com", fn)
			assert.NoError(t, err)
			results[i] = v
		}()
	}

	require.Eventually(t, func() bool { return g.Waiting() == 5 }, time.Second, time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, r := range results {
		assert.Equal(t, "result", r)
	}
	stats := g.Stats()
	assert.Equal(t, int64(1), stats.Executed)
	assert.Equal(t, int64(5), stats.Shared)
	assert.Zero(t, stats.InFlight)
	assert.Zero(t, g.Waiting())
}

func TestGroup_ForgetsSettledCalls(t *testing.T) {
	var g dedup.Group[int]
	var calls atomic.Int32
	fn := func(context.Context) (int, error) {
		return int(calls.Add(1)), nil
	}

	first, err := g.Do(context.Background(), "k", fn)
	require.NoError(t, err)
	second, err := g.Do(context.Background(), "k", fn)
	require.NoError(t, err)

	assert.Equal(t, 1, first)
	assert.Equal(t, 2, second)
}

func TestGroup_ErrorsAreShared(t *testing.T) {
	var g dedup.Group[int]
	boom := errors.New("boom")

	_, err := g.Do(context.Background(), "k", func(context.Context) (int, error) { return 0, boom })
	assert.ErrorIs(t, err, boom)
}

func TestGroup_WaiterCancellationDoesNotAffectOthers(t *testing.T) {
	var g dedup.Group[string]
	release := make(chan struct{})
	var sawCancel atomic.Bool

	fn := func(ctx context.Context) (string, error) {
		<-release
		if ctx.Err() != nil {
			sawCancel.Store(true)
		}
		return "ok", nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := g.Do(ctx, "k", fn)
		firstErr <- err
	}()
	require.Eventually(t, func() bool { return g.Waiting() == 1 }, time.Second, time.Millisecond)

	secondVal := make(chan string, 1)
	go func() {
		v, _ := g.Do(context.Background(), "k", fn)
		secondVal <- v
	}()
	require.Eventually(t, func() bool { return g.Waiting() == 2 }, time.Second, time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	close(release)
	assert.Equal(t, "ok", <-secondVal)
	assert.False(t, sawCancel.Load())
}

func TestGroup_DistinctKeys(t *testing.T) {
	var g dedup.Group[string]
	var calls atomic.Int32
	fn := func(context.Context) (string, error) {
		calls.Add(1)
		return "x", nil
	}

	_, _ = g.Do(context.Background(), "a", fn)
	_, _ = g.Do(context.Background(), "b", fn)
	assert.Equal(t, int32(2), calls.Load())
}
