package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// StatsEvent is one rate limit decision.
type StatsEvent struct {
	Bucket  string
	Key     string
	Allowed bool
	Method  string
	Path    string
	At      time.Time
}

// StatsStore persists decision counters. Recording is best-effort: the
// middleware logs errors and never fails a request because of them.
type StatsStore interface {
	Record(ctx context.Context, ev StatsEvent) error
}

// Counters are allowed/denied totals.
type Counters struct {
	Allowed int64 `json:"allowed"`
	Denied  int64 `json:"denied"`
}

func (c *Counters) add(allowed bool) {
	if allowed {
		c.Allowed++
	} else {
		c.Denied++
	}
}

// MemoryStats keeps counters in process memory. Useful for tests and
// single-instance deployments; nothing expires.
type MemoryStats struct {
	mu       sync.Mutex
	total    Counters
	byBucket map[string]Counters
	byRoute  map[string]Counters
}

func NewMemoryStats() *MemoryStats {
	return &MemoryStats{
		byBucket: make(map[string]Counters),
		byRoute:  make(map[string]Counters),
	}
}

func (s *MemoryStats) Record(_ context.Context, ev StatsEvent) error {
	route := strings.TrimSpace(ev.Method + " " + ev.Path)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.total.add(ev.Allowed)
	b := s.byBucket[ev.Bucket]
	b.add(ev.Allowed)
	s.byBucket[ev.Bucket] = b
	if route != "" {
		r := s.byRoute[route]
		r.add(ev.Allowed)
		s.byRoute[route] = r
	}
	return nil
}

func (s *MemoryStats) Total() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

func (s *MemoryStats) ByBucket() map[string]Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Counters, len(s.byBucket))
	for k, v := range s.byBucket {
		out[k] = v
	}
	return out
}

func (s *MemoryStats) ByRoute() map[string]Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Counters, len(s.byRoute))
	for k, v := range s.byRoute {
		out[k] = v
	}
	return out
}

// RedisStats stores counters in Redis hashes so several instances share them:
//
//	<prefix>:total                 allowed|denied
//	<prefix>:bucket:<bucket>       allowed|denied
//	<prefix>:minute:<yyyymmddHHMM> allowed|denied (expires after TTL)
//	<prefix>:route                 "<method> <path>:allowed|denied"
type RedisStats struct {
	rdb    redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// RedisStatsOptions configures RedisStats.
type RedisStatsOptions struct {
	// Prefix for every key. Default: "emailguard:ratelimit"
	Prefix string
	// TTL of per-minute buckets. Default: 24h
	TTL time.Duration
}

func NewRedisStats(rdb redis.UniversalClient, opts RedisStatsOptions) *RedisStats {
	if opts.Prefix == "" {
		opts.Prefix = "emailguard:ratelimit"
	}
	if opts.TTL <= 0 {
		opts.TTL = 24 * time.Hour
	}
	return &RedisStats{rdb: rdb, prefix: strings.Trim(opts.Prefix, ":"), ttl: opts.TTL}
}

func (s *RedisStats) Record(ctx context.Context, ev StatsEvent) error {
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	field := "denied"
	if ev.Allowed {
		field = "allowed"
	}

	pipe := s.rdb.Pipeline()
	pipe.HIncrBy(ctx, s.prefix+":total", field, 1)
	if ev.Bucket != "" {
		pipe.HIncrBy(ctx, s.prefix+":bucket:"+ev.Bucket, field, 1)
	}

	minuteKey := fmt.Sprintf("%s:minute:%s", s.prefix, at.UTC().Format("200601021504"))
	pipe.HIncrBy(ctx, minuteKey, field, 1)
	pipe.Expire(ctx, minuteKey, s.ttl)

	if route := strings.TrimSpace(ev.Method + " " + ev.Path); route != "" {
		pipe.HIncrBy(ctx, s.prefix+":route", route+":"+field, 1)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("ratelimit: record stats: %w", err)
	}
	return nil
}

// Total reads the cumulative counters.
func (s *RedisStats) Total(ctx context.Context) (Counters, error) {
	vals, err := s.rdb.HGetAll(ctx, s.prefix+":total").Result()
	if err != nil {
		return Counters{}, fmt.Errorf("ratelimit: read stats: %w", err)
	}
	var c Counters
	_, _ = fmt.Sscan(vals["allowed"], &c.Allowed)
	_, _ = fmt.Sscan(vals["denied"], &c.Denied)
	return c, nil
}
