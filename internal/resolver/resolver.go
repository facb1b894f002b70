// Package resolver resolves DNS records over several DNS-over-HTTPS JSON
// providers with failover. Answers are cached (positive and negative caches
// with separate TTLs) and concurrent identical queries are coalesced so that
// only one upstream request is made.
package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/miekg/dns"
	"golang.org/x/sync/singleflight"

	"github.com/optimode/emailguard/internal/cache"
	"github.com/optimode/emailguard/internal/circuitbreaker"
)

// ErrUnsupportedType is returned for record types unknown to the DNS type table.
var ErrUnsupportedType = errors.New("resolver: unsupported record type")

// Provider is a DNS-over-HTTPS JSON endpoint.
type Provider struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// DefaultProviders returns the public providers used when none are configured.
func DefaultProviders() []Provider {
	return []Provider{
		{Name: "cloudflare", URL: "https://cloudflare-dns.com/dns-query"},
		{Name: "google", URL: "https://dns.google/resolve"},
		{Name: "quad9", URL: "https://dns.quad9.net:5053/dns-query"},
	}
}

// Config configures a Resolver. Zero fields fall back to defaults.
type Config struct {
	// Providers are tried in order starting from the current index. Default: DefaultProviders()
	Providers []Provider
	// QueryTimeout bounds a single provider request. Default: 5s
	QueryTimeout time.Duration
	// FailureThreshold is the consecutive failure count at which a provider
	// is skipped and traffic rotates away from it. Default: 3
	FailureThreshold int
	// ResetWindow clears a provider's failure counter when its last failure
	// is older than this. Default: 60s
	ResetWindow time.Duration
	// PositiveTTL is how long successful answers are cached. Default: 5m
	PositiveTTL time.Duration
	// NegativeTTL is how long "no records" answers are cached. Default: 1m
	NegativeTTL time.Duration
	// CacheSize is the max entries per cache. Default: 10000
	CacheSize int
	// HTTPClient is used for provider requests. Default: a client without global timeout.
	HTTPClient *http.Client
	// Breakers guards every provider with a breaker named "doh:<provider>".
	// Default: a private registry with default thresholds.
	Breakers *circuitbreaker.Registry
	Logger   *slog.Logger
	// Now is injectable for testing. Default: time.Now
	Now func() time.Time
}

func (c Config) withDefaults() Config {
	if len(c.Providers) == 0 {
		c.Providers = DefaultProviders()
	}
	if c.QueryTimeout <= 0 {
		c.QueryTimeout = 5 * time.Second
	}
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 3
	}
	if c.ResetWindow <= 0 {
		c.ResetWindow = 60 * time.Second
	}
	if c.PositiveTTL <= 0 {
		c.PositiveTTL = 5 * time.Minute
	}
	if c.NegativeTTL <= 0 {
		c.NegativeTTL = time.Minute
	}
	if c.CacheSize <= 0 {
		c.CacheSize = 10000
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{}
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Breakers == nil {
		c.Breakers = circuitbreaker.NewRegistry(circuitbreaker.RegistryOptions{Logger: c.Logger})
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// Result is the outcome of a resolution. Success is false for a definitive
// "no records" answer.
type Result struct {
	Success  bool     `json:"success"`
	Records  []string `json:"records"`
	TTL      int      `json:"ttl,omitempty"`
	Provider string   `json:"provider"`
	Cached   bool     `json:"cached,omitempty"`
}

// ProviderState tracks the health of one provider.
type ProviderState struct {
	Name                string    `json:"name"`
	ConsecutiveFailures int       `json:"consecutiveFailures"`
	LastFailure         time.Time `json:"lastFailure,omitzero"`
}

// ProviderFailure is one provider's reason for failing a query.
type ProviderFailure struct {
	Provider string
	Err      error
}

// ExhaustedError is returned when every provider failed at transport level.
type ExhaustedError struct {
	Domain   string
	Type     string
	Failures []ProviderFailure
}

func (e *ExhaustedError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, fmt.Sprintf("%s: %v", f.Provider, f.Err))
	}
	return fmt.Sprintf("resolver: all providers failed for %s %s: %s", e.Domain, e.Type, strings.Join(parts, "; "))
}

// Unwrap exposes the per-provider errors to errors.Is / errors.As.
func (e *ExhaustedError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		errs = append(errs, f.Err)
	}
	return errs
}

var errProviderUnhealthy = errors.New("skipped: provider unhealthy")

// Resolver is safe for concurrent use. Provider health and the rotating
// current index are shared across all queries.
type Resolver struct {
	cfg      Config
	positive *cache.Cache[string, Result]
	negative *cache.Cache[string, Result]
	group    singleflight.Group

	mu      sync.Mutex
	states  []ProviderState
	current int
}

// New creates a Resolver.
func New(cfg Config) *Resolver {
	cfg = cfg.withDefaults()
	states := make([]ProviderState, len(cfg.Providers))
	for i, p := range cfg.Providers {
		states[i] = ProviderState{Name: p.Name}
	}
	return &Resolver{
		cfg:      cfg,
		positive: cache.New[string, Result](cache.Config{MaxSize: cfg.CacheSize, TTL: cfg.PositiveTTL, Now: cfg.Now}),
		negative: cache.New[string, Result](cache.Config{MaxSize: cfg.CacheSize, TTL: cfg.NegativeTTL, Now: cfg.Now}),
		states:   states,
	}
}

// Query resolves recordType (e.g. "MX", "A", "TXT") for domain.
// A definitive negative answer is returned as Result{Success: false} with a
// nil error. An error means no provider could answer.
func (r *Resolver) Query(ctx context.Context, domain, recordType string) (Result, error) {
	domain = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(domain)), ".")
	rrtype := strings.ToUpper(strings.TrimSpace(recordType))
	code, ok := dns.StringToType[rrtype]
	if !ok {
		return Result{}, fmt.Errorf("%w: %q", ErrUnsupportedType, recordType)
	}
	key := domain + ":" + rrtype

	if res, ok := r.positive.Get(key); ok {
		return cachedCopy(res), nil
	}
	if res, ok := r.negative.Get(key); ok {
		return cachedCopy(res), nil
	}

	// The shared lookup is detached from the first caller so one caller
	// giving up does not fail the others; each provider request is still
	// bounded by QueryTimeout.
	ch := r.group.DoChan(key, func() (any, error) {
		res, err := r.queryProviders(context.WithoutCancel(ctx), domain, rrtype, code)
		if err != nil {
			return Result{}, err
		}
		if res.Success {
			r.positive.Set(key, res)
		} else {
			r.negative.Set(key, res)
		}
		return res, nil
	})

	select {
	case out := <-ch:
		if out.Err != nil {
			return Result{}, out.Err
		}
		res := out.Val.(Result)
		res.Records = append([]string(nil), res.Records...)
		return res, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

func (r *Resolver) queryProviders(ctx context.Context, domain, rrtype string, code uint16) (Result, error) {
	n := len(r.cfg.Providers)
	r.mu.Lock()
	start := r.current
	r.mu.Unlock()

	var failures []ProviderFailure
	for i := 0; i < n; i++ {
		idx := (start + i) % n
		p := r.cfg.Providers[idx]

		if !r.usable(idx, i == n-1) {
			failures = append(failures, ProviderFailure{Provider: p.Name, Err: errProviderUnhealthy})
			continue
		}

		res, err := circuitbreaker.Execute(ctx, r.cfg.Breakers.Get("doh:"+p.Name), func(ctx context.Context) (Result, error) {
			return r.fetch(ctx, p, domain, rrtype, code)
		})
		if err != nil {
			if ctx.Err() != nil {
				return Result{}, ctx.Err()
			}
			var openErr *circuitbreaker.OpenError
			if !errors.As(err, &openErr) {
				r.recordFailure(idx)
			}
			r.cfg.Logger.Warn("dns provider query failed",
				"provider", p.Name,
				"domain", domain,
				"type", rrtype,
				"error", err)
			failures = append(failures, ProviderFailure{Provider: p.Name, Err: err})
			continue
		}

		r.recordSuccess(idx)
		return res, nil
	}

	return Result{}, &ExhaustedError{Domain: domain, Type: rrtype, Failures: failures}
}

// dohResponse is the DNS-over-HTTPS JSON response body.
type dohResponse struct {
	Status int `json:"Status"`
	Answer []struct {
		Name string `json:"name"`
		Type uint16 `json:"type"`
		TTL  int    `json:"TTL"`
		Data string `json:"data"`
	} `json:"Answer"`
}

func (r *Resolver) fetch(ctx context.Context, p Provider, domain, rrtype string, code uint16) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.QueryTimeout)
	defer cancel()

	q := url.Values{}
	q.Set("name", domain)
	q.Set("type", rrtype)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL+"?"+q.Encode(), nil)
	if err != nil {
		return Result{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/dns-json")

	resp, err := r.cfg.HTTPClient.Do(req)
	if err != nil {
		return Result{}, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("http status %d", resp.StatusCode)
	}

	var body dohResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Result{}, fmt.Errorf("decode response: %w", err)
	}

	res := Result{Provider: p.Name}
	if body.Status != dns.RcodeSuccess {
		return res, nil
	}
	for _, a := range body.Answer {
		if a.Type != code {
			continue
		}
		data := a.Data
		if code == dns.TypeTXT {
			data = strings.Trim(data, `"`)
		}
		res.Records = append(res.Records, data)
		if res.TTL == 0 || a.TTL < res.TTL {
			res.TTL = a.TTL
		}
	}
	res.Success = len(res.Records) > 0
	return res, nil
}

// usable resets stale failure counters and reports whether the provider
// should be tried. The last remaining option is always tried.
func (r *Resolver) usable(idx int, last bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := &r.states[idx]
	if st.ConsecutiveFailures > 0 && r.cfg.Now().Sub(st.LastFailure) > r.cfg.ResetWindow {
		st.ConsecutiveFailures = 0
	}
	return last || st.ConsecutiveFailures < r.cfg.FailureThreshold
}

func (r *Resolver) recordFailure(idx int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := &r.states[idx]
	st.ConsecutiveFailures++
	st.LastFailure = r.cfg.Now()
	if st.ConsecutiveFailures == r.cfg.FailureThreshold {
		next := (idx + 1) % len(r.states)
		if r.current == idx {
			r.current = next
		}
		r.cfg.Logger.Warn("dns provider marked unhealthy",
			"provider", st.Name,
			"failures", st.ConsecutiveFailures,
			"next", r.states[r.current].Name)
	}
}

func (r *Resolver) recordSuccess(idx int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states[idx].ConsecutiveFailures = 0
}

// ProviderStates returns a copy of every provider's health counters.
func (r *Resolver) ProviderStates() []ProviderState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ProviderState(nil), r.states...)
}

// CurrentProvider returns the name of the provider queried first.
func (r *Resolver) CurrentProvider() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.states[r.current].Name
}

// ResetProviders clears every provider's failure counter and the rotation.
func (r *Resolver) ResetProviders() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.states {
		r.states[i].ConsecutiveFailures = 0
		r.states[i].LastFailure = time.Time{}
	}
	r.current = 0
}

// CacheStats returns the positive and negative cache statistics.
func (r *Resolver) CacheStats() (positive, negative cache.Stats) {
	return r.positive.Stats(), r.negative.Stats()
}

// ClearCache drops every cached answer.
func (r *Resolver) ClearCache() {
	r.positive.Clear()
	r.negative.Clear()
}

func cachedCopy(res Result) Result {
	res.Cached = true
	res.Records = append([]string(nil), res.Records...)
	return res
}
