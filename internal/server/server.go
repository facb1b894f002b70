// Package server exposes validation over HTTP/JSON.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/optimode/emailguard"
	"github.com/optimode/emailguard/internal/circuitbreaker"
	"github.com/optimode/emailguard/internal/dedup"
	"github.com/optimode/emailguard/internal/jobs"
	"github.com/optimode/emailguard/internal/metrics"
	"github.com/optimode/emailguard/internal/ratelimit"
)

// Validator is the validation engine behind the API. *emailguard.Validator
// implements it.
type Validator interface {
	Validate(ctx context.Context, email string, opts ...emailguard.CheckOptions) (emailguard.Result, error)
	ValidateBulk(ctx context.Context, emails []string, opts emailguard.BulkOptions) (emailguard.BulkResult, error)
	CacheStats() emailguard.CacheStats
}

// Options configures a Server.
type Options struct {
	// Validator is required.
	Validator Validator
	// Limiter throttles both buckets. Default: ratelimit.New with defaults
	Limiter *ratelimit.Limiter
	// RateStats receives rate limit decisions. Optional.
	RateStats          ratelimit.StatsStore
	TrustXForwardedFor bool
	// Jobs configures the background job manager.
	Jobs jobs.Config
	// Breakers is reported by /health. Optional.
	Breakers *circuitbreaker.Registry
	// Metrics enables GET /metrics. Optional.
	Metrics *metrics.Metrics

	Version string
	// MaxBulkEmails bounds a bulk request. Default: 1000
	MaxBulkEmails int
	// StreamThreshold is the size above which NDJSON is offered. Default: 50
	StreamThreshold int
	// JobThreshold is the size above which a background job is created. Default: 100
	JobThreshold int
	// BulkBatchSize is the synchronous bulk batch size. Default: 10
	BulkBatchSize int
	// BulkTimeout bounds synchronous and streamed bulk runs. Default: 60s
	BulkTimeout time.Duration

	Logger *slog.Logger
	// Now is injectable for testing. Default: time.Now
	Now func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Limiter == nil {
		o.Limiter = ratelimit.New(ratelimit.Config{})
	}
	if o.Version == "" {
		o.Version = "dev"
	}
	if o.MaxBulkEmails <= 0 {
		o.MaxBulkEmails = 1000
	}
	if o.StreamThreshold <= 0 {
		o.StreamThreshold = 50
	}
	if o.JobThreshold <= 0 {
		o.JobThreshold = 100
	}
	if o.BulkBatchSize <= 0 {
		o.BulkBatchSize = 10
	}
	if o.BulkTimeout <= 0 {
		o.BulkTimeout = 60 * time.Second
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Jobs.Logger == nil {
		o.Jobs.Logger = o.Logger
	}
	return o
}

// Server wires the validator, deduplication, rate limiting and the job
// manager into one http.Handler.
type Server struct {
	opts     Options
	validate *validator.Validate
	dedup    dedup.Group[emailguard.Result]
	jobs     *jobs.Manager
	handler  http.Handler
	started  time.Time
}

// New creates a Server.
func New(opts Options) (*Server, error) {
	if opts.Validator == nil {
		return nil, errors.New("server: nil validator")
	}
	opts = opts.withDefaults()

	s := &Server{
		opts:     opts,
		validate: newRequestValidator(),
		started:  opts.Now(),
	}

	jobsCfg := opts.Jobs
	if opts.Metrics != nil {
		next := jobsCfg.OnFinish
		jobsCfg.OnFinish = func(j jobs.Job) {
			opts.Metrics.ObserveJob(j)
			if next != nil {
				next(j)
			}
		}
	}
	s.jobs = jobs.NewManager(s.jobValidator(emailguard.CheckOptions{}), jobsCfg)

	if opts.Metrics != nil {
		opts.Metrics.RegisterCache("results", opts.Validator.CacheStats)
		opts.Metrics.RegisterDedup(s.dedup.Stats)
		opts.Metrics.RegisterJobs(s.jobs.Counts)
		if opts.Breakers != nil {
			opts.Metrics.RegisterBreakers(opts.Breakers)
		}
	}

	s.handler = s.routes()
	return s, nil
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.handler }

// Jobs returns the background job manager.
func (s *Server) Jobs() *jobs.Manager { return s.jobs }

// Start launches background maintenance until ctx is done.
func (s *Server) Start(ctx context.Context) {
	s.opts.Limiter.StartJanitor(ctx)
	s.jobs.Start(ctx)
}

// Shutdown cancels running jobs and waits for them.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.jobs.Shutdown(ctx)
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	limit := func(bucket string) func(http.Handler) http.Handler {
		mo := ratelimit.MiddlewareOptions{
			Bucket:             bucket,
			Stats:              s.opts.RateStats,
			TrustXForwardedFor: s.opts.TrustXForwardedFor,
			Logger:             s.opts.Logger,
		}
		if s.opts.Metrics != nil {
			mo.OnDecision = s.opts.Metrics.ObserveRateLimit
		}
		return ratelimit.Middleware(s.opts.Limiter, mo)
	}

	single := limit(ratelimit.BucketSingle)
	bulk := limit(ratelimit.BucketBulk)

	for _, prefix := range []string{"", "/api"} {
		mux.Handle("POST "+prefix+"/validate", single(http.HandlerFunc(s.handleValidate)))
		mux.Handle("POST "+prefix+"/validate-bulk", bulk(http.HandlerFunc(s.handleBulk)))
		mux.HandleFunc("GET "+prefix+"/validate-bulk/jobs/{id}", s.handleJobGet)
		mux.HandleFunc("DELETE "+prefix+"/validate-bulk/jobs/{id}", s.handleJobDelete)
		mux.HandleFunc("GET "+prefix+"/health", s.handleHealth)
	}
	if s.opts.Metrics != nil {
		mux.Handle("GET /metrics", s.opts.Metrics.Handler())
	}

	return recoverer(s.opts.Logger)(requestLogger(s.opts.Logger)(mux))
}

// endpoints is the inventory reported by /health.
var endpoints = []string{
	"POST /validate",
	"POST /validate-bulk",
	"GET /validate-bulk/jobs/{id}",
	"DELETE /validate-bulk/jobs/{id}",
	"GET /health",
}
