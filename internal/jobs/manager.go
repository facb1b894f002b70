// Package jobs runs bulk validations in the background and keeps their
// state in process memory until a TTL sweep removes them.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/optimode/emailguard"
	"github.com/optimode/emailguard/types"
)

var (
	ErrNotFound       = errors.New("jobs: job not found")
	ErrNotCancellable = errors.New("jobs: job is not running")
	ErrJobActive      = errors.New("jobs: job is still running")
	ErrNoEmails       = errors.New("jobs: no emails to validate")
	ErrShutdown       = errors.New("jobs: manager is shut down")
)

// Status is the lifecycle state of a job.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// ValidateFunc validates one address.
type ValidateFunc func(ctx context.Context, email string) (emailguard.Result, error)

// Config configures a Manager.
type Config struct {
	// BatchSize is the number of emails validated concurrently. Default: 10
	BatchSize int
	// MaxDuration bounds a job's wall-clock time. Default: 10m
	MaxDuration time.Duration
	// TTL is how long a job is kept after creation. Default: 1h
	TTL time.Duration
	// SweepEvery is the Start interval. Default: 5m
	SweepEvery time.Duration
	// OnFinish observes every job reaching a terminal state. It runs with
	// the job table locked and must not call back into the Manager.
	OnFinish func(Job)
	Logger   *slog.Logger
	// Now is injectable for testing. Default: time.Now
	Now func() time.Time
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = 10
	}
	if c.MaxDuration <= 0 {
		c.MaxDuration = 10 * time.Minute
	}
	if c.TTL <= 0 {
		c.TTL = time.Hour
	}
	if c.SweepEvery <= 0 {
		c.SweepEvery = 5 * time.Minute
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// Job is a snapshot of a bulk validation job.
type Job struct {
	ID             string              `json:"id"`
	Status         Status              `json:"status"`
	Progress       int                 `json:"progress"`
	Total          int                 `json:"total"`
	Results        []emailguard.Result `json:"results"`
	Errors         []string            `json:"errors"`
	CreatedAt      time.Time           `json:"createdAt"`
	StartedAt      time.Time           `json:"startedAt,omitzero"`
	CompletedAt    time.Time           `json:"completedAt,omitzero"`
	ProcessingTime time.Duration       `json:"-"`
}

// Progress is a lightweight view of a job without its results.
type Progress struct {
	ID       string `json:"id"`
	Status   Status `json:"status"`
	Progress int    `json:"progress"`
	Total    int    `json:"total"`
	// Percent is in [0, 100].
	Percent int `json:"percentage"`
	// ETA extrapolates elapsed time per processed email. Zero when unknown
	// or finished.
	ETA time.Duration `json:"-"`
}

type entry struct {
	job      Job
	emails   []string
	validate ValidateFunc
	cancel   context.CancelFunc
}

// Manager owns the job table. It is safe for concurrent use.
type Manager struct {
	cfg      Config
	validate ValidateFunc

	base     context.Context
	stopBase context.CancelFunc
	wg       sync.WaitGroup

	mu     sync.Mutex
	jobs   map[string]*entry
	closed bool
}

// NewManager creates a Manager that validates with fn.
func NewManager(fn ValidateFunc, cfg Config) *Manager {
	base, stop := context.WithCancel(context.Background())
	return &Manager{
		cfg:      cfg.withDefaults(),
		validate: fn,
		base:     base,
		stopBase: stop,
		jobs:     make(map[string]*entry),
	}
}

// Create registers a job and starts processing it in the background.
func (m *Manager) Create(emails []string) (string, error) {
	return m.CreateFunc(emails, m.validate)
}

// CreateFunc is Create with a job-specific ValidateFunc.
func (m *Manager) CreateFunc(emails []string, fn ValidateFunc) (string, error) {
	if len(emails) == 0 {
		return "", ErrNoEmails
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return "", ErrShutdown
	}

	ctx, cancel := context.WithCancel(m.base)
	e := &entry{
		job: Job{
			ID:        uuid.NewString(),
			Status:    StatusPending,
			Total:     len(emails),
			Results:   make([]emailguard.Result, 0, len(emails)),
			Errors:    []string{},
			CreatedAt: m.cfg.Now(),
		},
		emails:   append([]string(nil), emails...),
		validate: fn,
		cancel:   cancel,
	}
	m.jobs[e.job.ID] = e

	m.wg.Add(1)
	go m.run(ctx, e)

	m.cfg.Logger.Info("bulk job created", slog.String("job", e.job.ID), slog.Int("total", e.job.Total))
	return e.job.ID, nil
}

// Get returns a snapshot of the job.
func (m *Manager) Get(id string) (Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.jobs[id]
	if !ok {
		return Job{}, ErrNotFound
	}
	return snapshot(e.job), nil
}

// Progress returns the job's completion percentage and ETA.
func (m *Manager) Progress(id string) (Progress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.jobs[id]
	if !ok {
		return Progress{}, ErrNotFound
	}
	j := e.job
	p := Progress{ID: j.ID, Status: j.Status, Progress: j.Progress, Total: j.Total}
	if j.Total > 0 {
		p.Percent = j.Progress * 100 / j.Total
	}
	if j.Status == StatusProcessing && j.Progress > 0 && !j.StartedAt.IsZero() {
		elapsed := m.cfg.Now().Sub(j.StartedAt)
		p.ETA = elapsed / time.Duration(j.Progress) * time.Duration(j.Total-j.Progress)
	}
	return p, nil
}

// Cancel stops a processing job. Work in flight is abandoned at the next
// batch boundary. Pending and terminal jobs return ErrNotCancellable.
func (m *Manager) Cancel(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.jobs[id]
	if !ok {
		return ErrNotFound
	}
	if e.job.Status != StatusProcessing {
		return fmt.Errorf("%w: status is %s", ErrNotCancellable, e.job.Status)
	}
	m.finishLocked(e, StatusCancelled)
	e.cancel()
	return nil
}

// Delete removes a terminal job.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.jobs[id]
	if !ok {
		return ErrNotFound
	}
	if !e.job.Status.Terminal() {
		return ErrJobActive
	}
	delete(m.jobs, id)
	return nil
}

// Sweep removes every job created more than TTL ago, cancelling any that
// are still running. It returns the number removed.
func (m *Manager) Sweep() int {
	cutoff := m.cfg.Now().Add(-m.cfg.TTL)

	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for id, e := range m.jobs {
		if e.job.CreatedAt.After(cutoff) {
			continue
		}
		if !e.job.Status.Terminal() {
			m.finishLocked(e, StatusCancelled)
		}
		e.cancel()
		delete(m.jobs, id)
		n++
	}
	if n > 0 {
		m.cfg.Logger.Debug("expired bulk jobs removed", slog.Int("count", n))
	}
	return n
}

// Start runs Sweep every SweepEvery until ctx is done.
func (m *Manager) Start(ctx context.Context) {
	t := time.NewTicker(m.cfg.SweepEvery)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				m.Sweep()
			}
		}
	}()
}

// Counts returns the number of jobs per status.
func (m *Manager) Counts() map[Status]int {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[Status]int, 5)
	for _, e := range m.jobs {
		out[e.job.Status]++
	}
	return out
}

// Shutdown cancels running jobs, refuses new ones and waits for the
// background goroutines to exit or ctx to end.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	for _, e := range m.jobs {
		if !e.job.Status.Terminal() {
			e.job.Errors = append(e.job.Errors, "cancelled by shutdown")
			m.finishLocked(e, StatusCancelled)
		}
	}
	m.mu.Unlock()
	m.stopBase()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) run(ctx context.Context, e *entry) {
	defer m.wg.Done()
	defer e.cancel()
	defer func() {
		if r := recover(); r != nil {
			m.mu.Lock()
			if !e.job.Status.Terminal() {
				e.job.Errors = append(e.job.Errors, fmt.Sprintf("internal error: %v", r))
				m.finishLocked(e, StatusFailed)
			}
			m.mu.Unlock()
			m.cfg.Logger.Error("bulk job panicked", slog.String("job", e.job.ID), slog.Any("panic", r))
		}
	}()

	m.mu.Lock()
	if e.job.Status.Terminal() {
		m.mu.Unlock()
		return
	}
	start := m.cfg.Now()
	e.job.Status = StatusProcessing
	e.job.StartedAt = start
	m.mu.Unlock()

	deadline := start.Add(m.cfg.MaxDuration)

	for lo := 0; lo < len(e.emails); lo += m.cfg.BatchSize {
		if ctx.Err() != nil {
			return
		}
		if !m.cfg.Now().Before(deadline) {
			m.mu.Lock()
			if !e.job.Status.Terminal() {
				e.job.Errors = append(e.job.Errors, fmt.Sprintf("job exceeded maximum duration of %s", m.cfg.MaxDuration))
				m.finishLocked(e, StatusFailed)
			}
			m.mu.Unlock()
			return
		}

		hi := min(lo+m.cfg.BatchSize, len(e.emails))
		results, errs := m.batch(ctx, deadline, e.validate, e.emails[lo:hi])

		m.mu.Lock()
		if e.job.Status.Terminal() {
			m.mu.Unlock()
			return
		}
		e.job.Results = append(e.job.Results, results...)
		e.job.Errors = append(e.job.Errors, errs...)
		e.job.Progress = len(e.job.Results)
		m.mu.Unlock()
	}

	m.mu.Lock()
	if !e.job.Status.Terminal() {
		m.finishLocked(e, StatusCompleted)
	}
	m.mu.Unlock()
}

// batch validates emails concurrently. Failures and panics become
// synthetic invalid results so one bad address cannot fail the job.
func (m *Manager) batch(ctx context.Context, deadline time.Time, fn ValidateFunc, emails []string) ([]emailguard.Result, []string) {
	bctx, cancel := context.WithTimeout(ctx, deadline.Sub(m.cfg.Now()))
	defer cancel()

	results := make([]emailguard.Result, len(emails))
	errs := make([]error, len(emails))

	var g errgroup.Group
	for i, email := range emails {
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					errs[i] = fmt.Errorf("panic: %v", r)
				}
			}()
			results[i], errs[i] = fn(bctx, email)
			return nil
		})
	}
	_ = g.Wait()

	var msgs []string
	for i, err := range errs {
		if err == nil {
			continue
		}
		results[i] = failedResult(emails[i], err, m.cfg.Now())
		msgs = append(msgs, fmt.Sprintf("%s: %v", emails[i], err))
	}
	return results, msgs
}

func (m *Manager) finishLocked(e *entry, status Status) {
	now := m.cfg.Now()
	e.job.Status = status
	e.job.CompletedAt = now
	if !e.job.StartedAt.IsZero() {
		e.job.ProcessingTime = now.Sub(e.job.StartedAt)
	}

	m.cfg.Logger.Info("bulk job finished",
		slog.String("job", e.job.ID),
		slog.String("status", string(status)),
		slog.Int("progress", e.job.Progress),
		slog.Int("total", e.job.Total),
	)
	if m.cfg.OnFinish != nil {
		m.cfg.OnFinish(snapshot(e.job))
	}
}

func snapshot(j Job) Job {
	j.Results = append(make([]emailguard.Result, 0, len(j.Results)), j.Results...)
	j.Errors = append(make([]string, 0, len(j.Errors)), j.Errors...)
	return j
}

func failedResult(email string, err error, at time.Time) emailguard.Result {
	return emailguard.Result{
		Email:          email,
		Valid:          false,
		Score:          0,
		Deliverability: emailguard.Unknown,
		Risk:           emailguard.RiskHigh,
		Checks: types.Checks{
			Syntax: types.SyntaxCheck{Message: "validation failed: " + err.Error()},
		},
		Suggestions: []string{},
		ValidatedAt: at,
	}
}
