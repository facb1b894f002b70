package emailguard

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/optimode/emailguard/check"
	"github.com/optimode/emailguard/internal/cache"
	"github.com/optimode/emailguard/internal/circuitbreaker"
	"github.com/optimode/emailguard/internal/parse"
	"github.com/optimode/emailguard/internal/resolver"
	"github.com/optimode/emailguard/internal/smtppool"
	"github.com/optimode/emailguard/types"
)

// Validator is the main fluent builder struct.
// Instantiate with the New() function and finish configuring it before the
// first Validate call; the pipeline is assembled once, on first use.
// When using SMTP validation, call Close() when done to release pooled connections.
type Validator struct {
	err error // configuration error, returned on Validate()

	dnsOpts        DNSOptions
	resolver       Resolver
	breakers       *circuitbreaker.Registry
	smtpOpts       *SMTPOptions
	prober         Prober
	ipZones        []string
	disposableList []string
	weights        Weights
	cacheOpts      CacheOptions
	timeout        time.Duration
	logger         *slog.Logger
	now            func() time.Time

	once       sync.Once
	pool       *smtppool.Pool
	results    *cache.Cache[string, Result]
	syntax     *check.SyntaxChecker
	domain     *check.DomainChecker
	mx         *check.MXChecker
	disposable *check.DisposableChecker
	role       *check.RoleChecker
	free       *check.FreeProviderChecker
	typo       *check.TypoChecker
	blacklist  *check.BlacklistChecker
	catchAll   *check.CatchAllChecker
	auth       *check.AuthChecker
	reputation *check.ReputationChecker
}

// New creates a new Validator with the DNS-over-HTTPS resolver, default
// weights, a result cache and SMTP probing unavailable.
func New() *Validator {
	return &Validator{
		dnsOpts:   defaultDNSOptions(),
		weights:   DefaultWeights(),
		cacheOpts: defaultCacheOptions(),
		timeout:   10 * time.Second,
		logger:    slog.Default(),
		now:       time.Now,
	}
}

// WithDNS overrides the built-in resolver settings.
func (v *Validator) WithDNS(opts DNSOptions) *Validator {
	def := defaultDNSOptions()
	if opts.QueryTimeout <= 0 {
		opts.QueryTimeout = def.QueryTimeout
	}
	v.dnsOpts = opts
	return v
}

// WithResolver replaces the built-in resolver, e.g. to share one
// *resolver.Resolver between validators or to fake DNS in tests.
func (v *Validator) WithResolver(r Resolver) *Validator {
	if r == nil {
		v.err = ErrNilResolver
		return v
	}
	v.resolver = r
	return v
}

// WithBreakers shares a circuit breaker registry with the resolver and
// SMTP probe.
func (v *Validator) WithBreakers(reg *circuitbreaker.Registry) *Validator {
	v.breakers = reg
	return v
}

// WithSMTP makes the SMTP RCPT TO probe available.
// SMTPOptions.HeloDomain and MailFrom are required.
// Uses a connection pool for efficient bulk validation (connections reused via RSET).
// Call Close() when done to release pooled connections.
func (v *Validator) WithSMTP(opts SMTPOptions) *Validator {
	if opts.HeloDomain == "" || opts.MailFrom == "" {
		v.err = ErrInvalidSMTPOptions
		return v
	}
	// Apply defaults for unset values
	def := defaultSMTPOptions()
	if opts.ConnectTimeout == 0 {
		opts.ConnectTimeout = def.ConnectTimeout
	}
	if opts.CommandTimeout == 0 {
		opts.CommandTimeout = def.CommandTimeout
	}
	if opts.MaxMXHosts == 0 {
		opts.MaxMXHosts = def.MaxMXHosts
	}
	if opts.Port == "" {
		opts.Port = def.Port
	}
	if opts.MaxConnsPerHost == 0 {
		opts.MaxConnsPerHost = def.MaxConnsPerHost
	}
	if opts.RatePerHost == 0 {
		opts.RatePerHost = def.RatePerHost
	}
	if opts.DetectCatchAll == nil {
		detect := true
		opts.DetectCatchAll = &detect
	}
	v.smtpOpts = &opts
	return v
}

// WithProber installs a custom SMTP prober. It takes precedence over WithSMTP.
func (v *Validator) WithProber(p Prober) *Validator {
	v.prober = p
	return v
}

// WithBlacklists replaces the IP based DNSBL zones.
func (v *Validator) WithBlacklists(zones ...string) *Validator {
	v.ipZones = append([]string{}, zones...)
	return v
}

// WithDisposableDomains adds domains to the built-in disposable list.
func (v *Validator) WithDisposableDomains(domains ...string) *Validator {
	v.disposableList = append(v.disposableList, domains...)
	return v
}

// WithWeights overrides the score weights.
func (v *Validator) WithWeights(w Weights) *Validator {
	if !w.valid() {
		v.err = ErrInvalidWeights
		return v
	}
	v.weights = w
	return v
}

// WithCache configures the result cache.
func (v *Validator) WithCache(opts CacheOptions) *Validator {
	def := defaultCacheOptions()
	if opts.MaxSize <= 0 {
		opts.MaxSize = def.MaxSize
	}
	if opts.TTL <= 0 {
		opts.TTL = def.TTL
	}
	v.cacheOpts = opts
	return v
}

// WithTimeout bounds a single validation. Default: 10s
func (v *Validator) WithTimeout(d time.Duration) *Validator {
	if d > 0 {
		v.timeout = d
	}
	return v
}

// WithLogger sets the logger. Default: slog.Default()
func (v *Validator) WithLogger(l *slog.Logger) *Validator {
	if l != nil {
		v.logger = l
	}
	return v
}

// WithClock overrides the clock used for ValidatedAt and the result cache.
func (v *Validator) WithClock(now func() time.Time) *Validator {
	if now != nil {
		v.now = now
	}
	return v
}

// Close releases resources held by the Validator.
// Must be called when using SMTP validation to close pooled connections.
// Safe to call multiple times. No-op if no pooled resources exist.
func (v *Validator) Close() error {
	if v.pool != nil {
		return v.pool.Close()
	}
	return nil
}

// CacheStats reports the result cache. Zero when the cache is disabled.
func (v *Validator) CacheStats() CacheStats {
	v.once.Do(v.assemble)
	if v.results == nil {
		return CacheStats{}
	}
	return v.results.Stats()
}

// SMTPPoolStats reports the SMTP connection pool. ok is false when
// WithSMTP was not configured.
func (v *Validator) SMTPPoolStats() (stats SMTPPoolStats, ok bool) {
	v.once.Do(v.assemble)
	if v.pool == nil {
		return SMTPPoolStats{}, false
	}
	return v.pool.Stats(), true
}

// ClearCache drops every cached result.
func (v *Validator) ClearCache() {
	v.once.Do(v.assemble)
	if v.results != nil {
		v.results.Clear()
	}
}

// assemble builds the checkers from the collected options.
func (v *Validator) assemble() {
	if v.breakers == nil {
		v.breakers = circuitbreaker.NewRegistry(circuitbreaker.RegistryOptions{Logger: v.logger})
	}
	if v.resolver == nil {
		v.resolver = resolver.New(resolver.Config{
			Providers:    v.dnsOpts.Providers,
			QueryTimeout: v.dnsOpts.QueryTimeout,
			Breakers:     v.breakers,
			Logger:       v.logger,
		})
	}
	if v.prober == nil && v.smtpOpts != nil {
		o := v.smtpOpts
		v.pool = smtppool.New(smtppool.Config{
			HeloDomain:      o.HeloDomain,
			MailFrom:        o.MailFrom,
			ConnectTimeout:  o.ConnectTimeout,
			CommandTimeout:  o.CommandTimeout,
			Port:            o.Port,
			MaxConnsPerHost: o.MaxConnsPerHost,
			RatePerHost:     o.RatePerHost,
		})
		v.prober = check.NewSMTPChecker(check.SMTPConfig{
			MaxMXHosts:     o.MaxMXHosts,
			DetectCatchAll: *o.DetectCatchAll,
		}, v.pool, v.breakers)
	}
	if !v.cacheOpts.Disabled {
		v.results = cache.New[string, Result](cache.Config{
			MaxSize: v.cacheOpts.MaxSize,
			TTL:     v.cacheOpts.TTL,
			Now:     v.now,
		})
	}

	v.syntax = check.NewSyntaxChecker()
	v.domain = check.NewDomainChecker(v.resolver)
	v.mx = check.NewMXChecker(check.MXConfig{FallbackToA: v.dnsOpts.FallbackToA}, v.resolver)
	v.disposable = check.NewDisposableChecker(v.disposableList...)
	v.role = check.NewRoleChecker()
	v.free = check.NewFreeProviderChecker()
	v.typo = check.NewTypoChecker(check.TypoConfig{})
	v.blacklist = check.NewBlacklistChecker(check.BlacklistConfig{IPZones: v.ipZones}, v.resolver)
	v.catchAll = check.NewCatchAllChecker()
	v.auth = check.NewAuthChecker(check.AuthConfig{}, v.resolver)
	v.reputation = check.NewReputationChecker()
}

// Validate runs the check pipeline on the given email.
// Syntax failures short-circuit: every later check is marked skipped.
// Results are cached by normalised address. The returned error is either a
// configuration error or the caller's context error.
func (v *Validator) Validate(ctx context.Context, email string, opts ...CheckOptions) (Result, error) {
	if v.err != nil {
		return Result{}, v.err
	}
	v.once.Do(v.assemble)

	var o CheckOptions
	if len(opts) > 0 {
		o = opts[0]
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	key := o.Key(email)
	if v.results != nil && !o.SkipCache {
		if res, ok := v.results.Get(key); ok {
			return res.forCaller(email), nil
		}
	}

	vctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	res := v.run(vctx, email, o)

	if err := ctx.Err(); err != nil {
		return res, err
	}
	// Transient outcomes are not worth remembering.
	if v.results != nil && res.Deliverability != Unknown {
		v.results.Set(key, res.forCaller(email))
	}
	return res, nil
}

func (v *Validator) run(ctx context.Context, email string, o CheckOptions) Result {
	parsed := parse.NewEmail(email)
	res := Result{
		Email:       email,
		Suggestions: []string{},
		ValidatedAt: v.now().UTC(),
	}

	res.Checks.Syntax = v.syntax.Check(ctx, parsed)
	if !res.Checks.Syntax.Valid {
		res.Checks = skippedChecks(res.Checks.Syntax, o)
		res.Deliverability, res.Risk = classify(res.Checks, 0)
		return res
	}

	c := &res.Checks
	c.Domain = v.domain.Check(ctx, parsed)
	if c.Domain.Valid {
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			c.MX = v.mx.Check(gctx, parsed)
			return nil
		})
		g.Go(func() error {
			c.Blacklisted = v.blacklist.Check(gctx, parsed)
			return nil
		})
		if o.Auth {
			g.Go(func() error {
				auth := v.auth.Check(gctx, parsed)
				c.Authentication = &auth
				return nil
			})
		}
		_ = g.Wait()
	} else {
		c.MX = types.MXCheck{Records: []string{}, Message: "skipped: invalid domain", Skipped: true}
		c.Blacklisted = types.BlacklistCheck{Lists: []string{}, Skipped: true}
		if o.Auth {
			c.Authentication = skippedAuth("skipped: invalid domain")
		}
	}
	if c.MX.Valid {
		c.Domain.Exists = true
	}

	c.Disposable = v.disposable.Check(ctx, parsed)
	c.RoleBased = v.role.Check(ctx, parsed)
	c.FreeProvider = v.free.Check(ctx, parsed)
	c.Typo = v.typo.Check(ctx, parsed)
	c.CatchAll = v.catchAll.Check(ctx, parsed)

	if o.SMTP {
		c.SMTP = v.probe(ctx, parsed, c.MX)
		if c.SMTP.CatchAll {
			c.CatchAll = types.CatchAllCheck{IsCatchAll: true, Reason: "SMTP server accepted a random recipient"}
		}
	}

	if o.Reputation {
		rep := v.reputation.Check(*c)
		c.Reputation = &rep
	}

	if c.Typo.Suggestion != nil {
		res.Suggestions = append(res.Suggestions, *c.Typo.Suggestion)
	}

	res.Score = score(res.Checks, v.weights)
	res.Deliverability, res.Risk = classify(res.Checks, res.Score)
	res.Valid = res.Deliverability == Deliverable || res.Deliverability == Risky

	v.logger.DebugContext(ctx, "email validated",
		slog.String("domain", parsed.Domain),
		slog.Int("score", res.Score),
		slog.String("deliverability", string(res.Deliverability)),
	)
	return res
}

func (v *Validator) probe(ctx context.Context, parsed parse.Email, mx types.MXCheck) *types.SMTPCheck {
	switch {
	case v.prober == nil:
		return &types.SMTPCheck{Message: "skipped: SMTP probing not configured"}
	case !mx.Valid:
		return &types.SMTPCheck{Message: "skipped: MX lookup failed"}
	}
	out := v.prober.Probe(ctx, parsed, mx.Records)
	return &out
}

// skippedChecks marks every check after syntax as skipped.
func skippedChecks(syntax types.SyntaxCheck, o CheckOptions) types.Checks {
	const msg = "skipped: invalid syntax"
	c := types.Checks{
		Syntax:       syntax,
		Domain:       types.DomainCheck{Message: msg, Skipped: true},
		MX:           types.MXCheck{Records: []string{}, Message: msg, Skipped: true},
		Disposable:   types.DisposableCheck{Message: msg, Skipped: true},
		RoleBased:    types.RoleBasedCheck{Skipped: true},
		FreeProvider: types.FreeProviderCheck{Skipped: true},
		Typo:         types.TypoCheck{Skipped: true},
		Blacklisted:  types.BlacklistCheck{Lists: []string{}, Message: msg, Skipped: true},
		CatchAll:     types.CatchAllCheck{Skipped: true},
	}
	if o.SMTP {
		c.SMTP = &types.SMTPCheck{Message: msg}
	}
	if o.Auth {
		c.Authentication = skippedAuth(msg)
	}
	if o.Reputation {
		c.Reputation = &types.ReputationCheck{Risk: string(RiskHigh), Reasons: []string{msg}}
	}
	return c
}

func skippedAuth(msg string) *types.AuthenticationCheck {
	return &types.AuthenticationCheck{DKIM: types.DKIMResult{Selectors: []string{}}, Message: msg}
}
