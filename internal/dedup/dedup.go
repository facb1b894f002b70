// Package dedup coalesces concurrent identical requests so that one
// validation serves every caller waiting on the same key.
package dedup

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// Stats counts how calls were served.
type Stats struct {
	// Executed is the number of times fn actually ran.
	Executed int64 `json:"executed"`
	// Shared is the number of callers whose result was handed to more than
	// one caller, the executing caller included.
	Shared int64 `json:"shared"`
	// InFlight is the number of keys currently executing.
	InFlight int `json:"inFlight"`
}

// Group deduplicates in-flight calls by key. Keys should be normalised by
// the caller. The zero value is ready to use.
type Group[T any] struct {
	sf       singleflight.Group
	executed atomic.Int64
	shared   atomic.Int64
	waiting  atomic.Int64

	mu       sync.Mutex
	inFlight map[string]struct{}
}

// Do runs fn once per key among concurrent callers and hands every caller
// the same result. The entry is forgotten as soon as fn returns, so later
// calls execute again.
//
// fn runs on a context detached from the first caller's cancellation, so
// one caller giving up does not fail the others. Each caller still stops
// waiting when its own ctx is done.
func (g *Group[T]) Do(ctx context.Context, key string, fn func(context.Context) (T, error)) (T, error) {
	ch := g.sf.DoChan(key, func() (any, error) {
		g.executed.Add(1)
		g.track(key, true)
		defer g.track(key, false)
		return fn(context.WithoutCancel(ctx))
	})
	// Counted once joined, so Waiting never reports a caller that could
	// still start its own execution.
	g.waiting.Add(1)
	defer g.waiting.Add(-1)

	select {
	case res := <-ch:
		if res.Shared {
			g.shared.Add(1)
		}
		v, _ := res.Val.(T)
		return v, res.Err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Waiting returns the number of callers currently inside Do.
func (g *Group[T]) Waiting() int {
	return int(g.waiting.Load())
}

// Stats returns counters since the group was created.
func (g *Group[T]) Stats() Stats {
	g.mu.Lock()
	inFlight := len(g.inFlight)
	g.mu.Unlock()
	return Stats{
		Executed: g.executed.Load(),
		Shared:   g.shared.Load(),
		InFlight: inFlight,
	}
}

func (g *Group[T]) track(key string, on bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.inFlight == nil {
		g.inFlight = make(map[string]struct{})
	}
	if on {
		g.inFlight[key] = struct{}{}
	} else {
		delete(g.inFlight, key)
	}
}
