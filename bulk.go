package emailguard

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// ValidateBulk validates emails in sequential batches of parallel
// validations. When opts.Timeout elapses the run stops at the next batch
// boundary and the completed results are returned with TimedOut set.
// Results keep the input order; emails that were not reached are omitted.
// The error is non-nil only when ctx itself is cancelled or the Validator
// is misconfigured.
func (v *Validator) ValidateBulk(ctx context.Context, emails []string, opts BulkOptions) (BulkResult, error) {
	if v.err != nil {
		return BulkResult{}, v.err
	}
	opts = opts.withDefaults()
	start := time.Now()

	tctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	var (
		mu        sync.Mutex
		results   = make([]Result, len(emails))
		done      = make([]bool, len(emails))
		completed int
		timedOut  bool
	)

	for lo := 0; lo < len(emails); lo += opts.BatchSize {
		if tctx.Err() != nil {
			timedOut = true
			break
		}
		hi := min(lo+opts.BatchSize, len(emails))

		var g errgroup.Group
		for i := lo; i < hi; i++ {
			g.Go(func() error {
				res, err := v.Validate(tctx, emails[i], opts.Check)
				if err != nil {
					return nil
				}
				mu.Lock()
				results[i], done[i] = res, true
				completed++
				mu.Unlock()
				return nil
			})
		}
		_ = g.Wait()

		if opts.OnBatch != nil {
			batch := make([]Result, 0, hi-lo)
			for i := lo; i < hi; i++ {
				if done[i] {
					batch = append(batch, results[i])
				}
			}
			opts.OnBatch(batch)
		}
		if opts.OnProgress != nil {
			opts.OnProgress(completed, len(emails))
		}

		if hi < len(emails) && opts.BatchDelay > 0 {
			select {
			case <-tctx.Done():
			case <-time.After(opts.BatchDelay):
			}
		}
	}
	if completed < len(emails) && tctx.Err() != nil {
		timedOut = true
	}

	out := BulkResult{
		Results: make([]Result, 0, completed),
		Metadata: BulkMetadata{
			Total:          len(emails),
			Completed:      completed,
			TimedOut:       timedOut,
			ProcessingTime: time.Since(start),
		},
	}
	for i, ok := range done {
		if ok {
			out.Results = append(out.Results, results[i])
		}
	}

	return out, ctx.Err()
}
