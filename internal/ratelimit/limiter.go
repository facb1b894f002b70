// Package ratelimit throttles callers with a sliding-window log per
// (bucket, identifier) pair and exposes it as HTTP middleware.
package ratelimit

import (
	"context"
	"math"
	"strings"
	"sync"
	"time"
)

// Bucket names used by the HTTP API.
const (
	BucketSingle = "single"
	BucketBulk   = "bulk"
)

// Rule is the number of admitted calls allowed per window.
type Rule struct {
	Limit  int           `validate:"gt=0"`
	Window time.Duration `validate:"gt=0"`
}

// Config configures a Limiter.
type Config struct {
	// Buckets maps bucket names to rules. Default: single=100/min, bulk=10/min
	Buckets map[string]Rule
	// Default applies to buckets missing from Buckets. Default: 100/min
	Default Rule
	// Trusted identifiers are never limited.
	Trusted []string
	// CleanupEvery is the janitor interval. Default: 1m
	CleanupEvery time.Duration
	// Now is injectable for testing. Default: time.Now
	Now func() time.Time
}

// DefaultBuckets returns the single and bulk defaults.
func DefaultBuckets() map[string]Rule {
	return map[string]Rule{
		BucketSingle: {Limit: 100, Window: time.Minute},
		BucketBulk:   {Limit: 10, Window: time.Minute},
	}
}

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed   bool
	Trusted   bool
	Limit     int
	Remaining int
	// ResetTime is when the oldest admitted call leaves the window.
	ResetTime time.Time
	// RetryAfter is set on denial, rounded up to whole seconds (at least 1s).
	RetryAfter time.Duration
}

// Limiter is safe for concurrent use.
type Limiter struct {
	cfg     Config
	trusted map[string]struct{}

	mu   sync.Mutex
	logs map[string][]time.Time
}

// New creates a Limiter.
func New(cfg Config) *Limiter {
	if cfg.Buckets == nil {
		cfg.Buckets = DefaultBuckets()
	}
	if cfg.Default.Limit <= 0 || cfg.Default.Window <= 0 {
		cfg.Default = Rule{Limit: 100, Window: time.Minute}
	}
	if cfg.CleanupEvery <= 0 {
		cfg.CleanupEvery = time.Minute
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	trusted := make(map[string]struct{}, len(cfg.Trusted))
	for _, id := range cfg.Trusted {
		trusted[id] = struct{}{}
	}
	return &Limiter{
		cfg:     cfg,
		trusted: trusted,
		logs:    make(map[string][]time.Time),
	}
}

func (l *Limiter) rule(bucket string) Rule {
	if r, ok := l.cfg.Buckets[bucket]; ok {
		return r
	}
	return l.cfg.Default
}

// Allow records a call for id in bucket if the window has room.
// Denied calls are not recorded.
func (l *Limiter) Allow(bucket, id string) Decision {
	rule := l.rule(bucket)
	now := l.cfg.Now()

	if _, ok := l.trusted[id]; ok {
		return Decision{Allowed: true, Trusted: true, Limit: rule.Limit, Remaining: rule.Limit, ResetTime: now}
	}

	key := bucket + "|" + id

	l.mu.Lock()
	defer l.mu.Unlock()

	log := prune(l.logs[key], now.Add(-rule.Window))

	if len(log) >= rule.Limit {
		l.logs[key] = log
		reset := log[0].Add(rule.Window)
		return Decision{
			Limit:      rule.Limit,
			ResetTime:  reset,
			RetryAfter: ceilSeconds(reset.Sub(now)),
		}
	}

	log = append(log, now)
	l.logs[key] = log
	return Decision{
		Allowed:   true,
		Limit:     rule.Limit,
		Remaining: rule.Limit - len(log),
		ResetTime: log[0].Add(rule.Window),
	}
}

// Reset forgets every bucket's history for id, including buckets that
// fell back to the Default rule. Bucket names never contain '|'.
func (l *Limiter) Reset(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for key := range l.logs {
		if _, keyID, ok := strings.Cut(key, "|"); ok && keyID == id {
			delete(l.logs, key)
		}
	}
}

// Len returns the number of tracked (bucket, identifier) pairs.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.logs)
}

// Cleanup drops identifiers with no calls inside their window.
func (l *Limiter) Cleanup() {
	now := l.cfg.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	var longest time.Duration
	for _, r := range l.cfg.Buckets {
		longest = max(longest, r.Window)
	}
	longest = max(longest, l.cfg.Default.Window)

	for k, log := range l.logs {
		if len(log) == 0 || now.Sub(log[len(log)-1]) > longest {
			delete(l.logs, k)
		}
	}
}

// StartJanitor periodically runs Cleanup until ctx is done.
func (l *Limiter) StartJanitor(ctx context.Context) {
	t := time.NewTicker(l.cfg.CleanupEvery)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				l.Cleanup()
			}
		}
	}()
}

// prune drops timestamps at or before cutoff. log is ascending.
func prune(log []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(log) && !log[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return log
	}
	return append(log[:0], log[i:]...)
}

func ceilSeconds(d time.Duration) time.Duration {
	s := math.Ceil(d.Seconds())
	if s < 1 {
		s = 1
	}
	return time.Duration(s) * time.Second
}
