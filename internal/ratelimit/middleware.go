package ratelimit

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

// MiddlewareOptions configures Middleware.
type MiddlewareOptions struct {
	// Bucket selects the rule. Default: BucketSingle
	Bucket string
	// Stats receives every decision. Optional.
	Stats StatsStore
	// TrustXForwardedFor uses the first X-Forwarded-For hop as client IP.
	TrustXForwardedFor bool
	// OnDecision observes every decision, e.g. for metrics. Optional.
	OnDecision func(bucket string, d Decision)
	Logger     *slog.Logger
}

type rejection struct {
	Error      string `json:"error"`
	Code       string `json:"code"`
	RetryAfter int    `json:"retryAfter"`
}

// Middleware enforces the limiter on next. Admitted and denied responses
// carry X-RateLimit-Limit, X-RateLimit-Remaining and X-RateLimit-Reset;
// denials are 429 with Retry-After.
func Middleware(l *Limiter, opts MiddlewareOptions) func(http.Handler) http.Handler {
	if opts.Bucket == "" {
		opts.Bucket = BucketSingle
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := Identify(r, opts.TrustXForwardedFor)
			dec := l.Allow(opts.Bucket, id)

			if opts.OnDecision != nil {
				opts.OnDecision(opts.Bucket, dec)
			}
			if opts.Stats != nil && !dec.Trusted {
				err := opts.Stats.Record(r.Context(), StatsEvent{
					Bucket:  opts.Bucket,
					Key:     id,
					Allowed: dec.Allowed,
					Method:  r.Method,
					Path:    r.URL.Path,
					At:      time.Now(),
				})
				if err != nil {
					opts.Logger.WarnContext(r.Context(), "rate limit stats not recorded", slog.Any("error", err))
				}
			}

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(dec.Limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(dec.Remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(dec.ResetTime.Unix(), 10))

			if !dec.Allowed {
				secs := int(dec.RetryAfter / time.Second)
				h.Set("Retry-After", strconv.Itoa(secs))
				h.Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(rejection{
					Error:      "rate limit exceeded, retry in " + strconv.Itoa(secs) + "s",
					Code:       "RATE_LIMIT_ERROR",
					RetryAfter: secs,
				})
				opts.Logger.InfoContext(r.Context(), "rate limited",
					slog.String("bucket", opts.Bucket),
					slog.String("client", id),
				)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
