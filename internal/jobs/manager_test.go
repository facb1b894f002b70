package jobs_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/optimode/emailguard"
	"github.com/optimode/emailguard/internal/jobs"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
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

func okResult(_ context.Context, email string) (emailguard.Result, error) {
	return emailguard.Result{Email: email, Valid: true, Score: 100, Deliverability: emailguard.Deliverable}, nil
}

func emails(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("user%03d@example.com", i)
	}
	return out
}

func waitTerminal(t *testing.T, m *jobs.Manager, id string) jobs.Job {
	t.Helper()
	var job jobs.Job
	require.Eventually(t, func() bool {
		var err error
		job, err = m.Get(id)
		require.NoError(t, err)
		return job.Status.Terminal()
	}, 5*time.Second, 5*time.Millisecond)
	return job
}

func TestManager_CompletesAllEmails(t *testing.T) {
	m := jobs.NewManager(okResult, jobs.Config{BatchSize: 10})
	defer func() { _ = m.Shutdown(context.Background()) }()

	input := emails(100)
	id, err := m.Create(input)
	require.NoError(t, err)

	last := 0
	require.Eventually(t, func() bool {
		job, err := m.Get(id)
		require.NoError(t, err)
		require.GreaterOrEqual(t, job.Progress, last, "progress never goes backwards")
		last = job.Progress
		return job.Status == jobs.StatusCompleted
	}, 5*time.Second, time.Millisecond)

	job, err := m.Get(id)
	require.NoError(t, err)
	assert.Equal(t, 100, job.Total)
	assert.Equal(t, 100, job.Progress)
	require.Len(t, job.Results, 100)
	for i, r := range job.Results {
		assert.Equal(t, input[i], r.Email)
	}
	assert.Empty(t, job.Errors)
	assert.False(t, job.StartedAt.IsZero())
	assert.False(t, job.CompletedAt.IsZero())

	p, err := m.Progress(id)
	require.NoError(t, err)
	assert.Equal(t, 100, p.Percent)
	assert.Zero(t, p.ETA)
}

func TestManager_PerEmailFailuresDoNotFailJob(t *testing.T) {
	fn := func(ctx context.Context, email string) (emailguard.Result, error) {
		switch {
		case strings.HasPrefix(email, "boom"):
			panic("resolver exploded")
		case strings.HasPrefix(email, "err"):
			return emailguard.Result{}, errors.New("dns timeout")
		}
		return okResult(ctx, email)
	}
	m := jobs.NewManager(fn, jobs.Config{BatchSize: 2})
	defer func() { _ = m.Shutdown(context.Background()) }()

	id, err := m.Create([]string{"a@example.com", "err@example.com", "boom@example.com", "b@example.com"})
	require.NoError(t, err)

	job := waitTerminal(t, m, id)
	assert.Equal(t, jobs.StatusCompleted, job.Status)
	require.Len(t, job.Results, 4)

	failed := job.Results[1]
	assert.Equal(t, "err@example.com", failed.Email)
	assert.False(t, failed.Valid)
	assert.Zero(t, failed.Score)
	assert.Equal(t, emailguard.RiskHigh, failed.Risk)
	assert.Contains(t, failed.Checks.Syntax.Message, "dns timeout")

	assert.False(t, job.Results[2].Valid)
	assert.Len(t, job.Errors, 2)
	assert.True(t, job.Results[3].Valid)
}

func TestManager_MaxDurationKeepsPartialResults(t *testing.T) {
	clock := newFakeClock()
	fn := func(ctx context.Context, email string) (emailguard.Result, error) {
		clock.Advance(time.Minute)
		return okResult(ctx, email)
	}
	m := jobs.NewManager(fn, jobs.Config{BatchSize: 2, MaxDuration: 5 * time.Minute, Now: clock.Now})
	defer func() { _ = m.Shutdown(context.Background()) }()

	id, err := m.Create(emails(20))
	require.NoError(t, err)

	job := waitTerminal(t, m, id)
	assert.Equal(t, jobs.StatusFailed, job.Status)
	assert.Equal(t, 6, job.Progress)
	assert.Len(t, job.Results, 6)
	require.Len(t, job.Errors, 1)
	assert.Contains(t, job.Errors[0], "maximum duration")
}

func TestManager_CancelAndDelete(t *testing.T) {
	started := make(chan struct{}, 1)
	fn := func(ctx context.Context, email string) (emailguard.Result, error) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-ctx.Done()
		return emailguard.Result{}, ctx.Err()
	}
	m := jobs.NewManager(fn, jobs.Config{BatchSize: 1})
	defer func() { _ = m.Shutdown(context.Background()) }()

	id, err := m.Create(emails(3))
	require.NoError(t, err)
	<-started

	assert.ErrorIs(t, m.Delete(id), jobs.ErrJobActive)
	require.NoError(t, m.Cancel(id))

	job, err := m.Get(id)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusCancelled, job.Status)
	assert.Empty(t, job.Results, "in-flight batch is discarded")

	assert.ErrorIs(t, m.Cancel(id), jobs.ErrNotCancellable)
	require.NoError(t, m.Delete(id))
	_, err = m.Get(id)
	assert.ErrorIs(t, err, jobs.ErrNotFound)
}

func TestManager_ProgressETA(t *testing.T) {
	clock := newFakeClock()
	release := make(chan struct{})
	fn := func(ctx context.Context, email string) (emailguard.Result, error) {
		clock.Advance(10 * time.Second)
		if email != "user000@example.com" {
			select {
			case <-release:
			case <-ctx.Done():
				return emailguard.Result{}, ctx.Err()
			}
		}
		return okResult(ctx, email)
	}
	m := jobs.NewManager(fn, jobs.Config{BatchSize: 1, Now: clock.Now})
	defer func() { _ = m.Shutdown(context.Background()) }()

	id, err := m.Create(emails(4))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		p, err := m.Progress(id)
		require.NoError(t, err)
		return p.Progress == 1
	}, 5*time.Second, time.Millisecond)

	// Second email has started and advanced the clock too: 20s for 1 email.
	require.Eventually(t, func() bool {
		return clock.Now().Sub(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)) == 20*time.Second
	}, 5*time.Second, time.Millisecond)

	p, err := m.Progress(id)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusProcessing, p.Status)
	assert.Equal(t, 25, p.Percent)
	assert.Equal(t, 60*time.Second, p.ETA)

	close(release)
	job := waitTerminal(t, m, id)
	assert.Equal(t, jobs.StatusCompleted, job.Status)
}

func TestManager_Sweep(t *testing.T) {
	clock := newFakeClock()
	var finished []jobs.Status
	var mu sync.Mutex
	m := jobs.NewManager(okResult, jobs.Config{
		TTL: time.Hour,
		Now: clock.Now,
		OnFinish: func(j jobs.Job) {
			mu.Lock()
			finished = append(finished, j.Status)
			mu.Unlock()
		},
	})
	defer func() { _ = m.Shutdown(context.Background()) }()

	old, err := m.Create(emails(3))
	require.NoError(t, err)
	waitTerminal(t, m, old)

	clock.Advance(30 * time.Minute)
	fresh, err := m.Create(emails(1))
	require.NoError(t, err)
	waitTerminal(t, m, fresh)

	clock.Advance(31 * time.Minute)
	assert.Equal(t, 1, m.Sweep())

	_, err = m.Get(old)
	assert.ErrorIs(t, err, jobs.ErrNotFound)
	_, err = m.Get(fresh)
	assert.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []jobs.Status{jobs.StatusCompleted, jobs.StatusCompleted}, finished)
}

func TestManager_Shutdown(t *testing.T) {
	fn := func(ctx context.Context, email string) (emailguard.Result, error) {
		<-ctx.Done()
		return emailguard.Result{}, ctx.Err()
	}
	m := jobs.NewManager(fn, jobs.Config{})

	id, err := m.Create(emails(5))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, m.Shutdown(ctx))

	job, err := m.Get(id)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusCancelled, job.Status)
	assert.Contains(t, job.Errors, "cancelled by shutdown")

	_, err = m.Create(emails(1))
	assert.ErrorIs(t, err, jobs.ErrShutdown)
}

func TestManager_Errors(t *testing.T) {
	m := jobs.NewManager(okResult, jobs.Config{})
	defer func() { _ = m.Shutdown(context.Background()) }()

	_, err := m.Create(nil)
	assert.ErrorIs(t, err, jobs.ErrNoEmails)

	_, err = m.Get("missing")
	assert.ErrorIs(t, err, jobs.ErrNotFound)
	_, err = m.Progress("missing")
	assert.ErrorIs(t, err, jobs.ErrNotFound)
	assert.ErrorIs(t, m.Cancel("missing"), jobs.ErrNotFound)
	assert.ErrorIs(t, m.Delete("missing"), jobs.ErrNotFound)
}

func TestManager_Counts(t *testing.T) {
	m := jobs.NewManager(okResult, jobs.Config{})
	defer func() { _ = m.Shutdown(context.Background()) }()

	id, err := m.Create(emails(2))
	require.NoError(t, err)
	waitTerminal(t, m, id)

	assert.Equal(t, map[jobs.Status]int{jobs.StatusCompleted: 1}, m.Counts())
}

func TestManager_CreateFunc(t *testing.T) {
	m := jobs.NewManager(okResult, jobs.Config{})
	defer func() { _ = m.Shutdown(context.Background()) }()

	id, err := m.CreateFunc(emails(2), func(_ context.Context, email string) (emailguard.Result, error) {
		return emailguard.Result{Email: email, Deliverability: emailguard.Risky}, nil
	})
	require.NoError(t, err)

	job := waitTerminal(t, m, id)
	require.Len(t, job.Results, 2)
	assert.Equal(t, emailguard.Risky, job.Results[0].Deliverability)
}
