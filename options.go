package emailguard

import (
	"time"

	"golang.org/x/time/rate"

	"github.com/optimode/emailguard/internal/parse"
)

// DNSOptions configures the built-in DNS-over-HTTPS resolver.
type DNSOptions struct {
	// Providers are tried in rotation. Default: Cloudflare, Google, Quad9
	Providers []DNSProvider
	// QueryTimeout bounds a single provider request. Default: 5s
	QueryTimeout time.Duration
	// FallbackToA when true accepts A records when no MX record is found.
	// Default: false (strict MX requirement)
	FallbackToA bool
}

func defaultDNSOptions() DNSOptions {
	return DNSOptions{
		QueryTimeout: 5 * time.Second,
		FallbackToA:  false,
	}
}

// SMTPOptions configures the SMTP probe. Probing only runs for calls that
// request it through CheckOptions.
type SMTPOptions struct {
	// HeloDomain is the domain sent in the EHLO command. Required, e.g. "myapp.com"
	HeloDomain string
	// MailFrom is the address sent in the MAIL FROM command. Required, e.g. "verify@myapp.com"
	MailFrom string
	// ConnectTimeout is the maximum time for TCP connection. Default: 5s
	ConnectTimeout time.Duration
	// CommandTimeout is the maximum response time for SMTP commands. Default: 10s
	CommandTimeout time.Duration
	// MaxMXHosts is how many MX hosts to try sequentially. Default: 2
	MaxMXHosts int
	// Port is the SMTP port. Default: 25
	Port string
	// MaxConnsPerHost is the max pooled SMTP connections per MX host. Default: 3
	MaxConnsPerHost int
	// RatePerHost caps probe transactions per second per MX host. Default: 2
	RatePerHost rate.Limit
	// DetectCatchAll probes a random address alongside the real one. Default: true
	DetectCatchAll *bool
}

func defaultSMTPOptions() SMTPOptions {
	return SMTPOptions{
		ConnectTimeout:  5 * time.Second,
		CommandTimeout:  10 * time.Second,
		MaxMXHosts:      2,
		Port:            "25",
		MaxConnsPerHost: 3,
		RatePerHost:     2,
	}
}

// CacheOptions configures the validation result cache.
type CacheOptions struct {
	// MaxSize is the number of cached results. Default: 10000
	MaxSize int
	// TTL is how long a result is served from cache. Default: 1h
	TTL time.Duration
	// Disabled turns the result cache off.
	Disabled bool
}

func defaultCacheOptions() CacheOptions {
	return CacheOptions{
		MaxSize: 10000,
		TTL:     time.Hour,
	}
}

// CheckOptions are per-call switches for Validate.
type CheckOptions struct {
	// SMTP runs the mailbox probe. Requires WithSMTP or WithProber.
	SMTP bool
	// Auth looks up the domain's SPF, DMARC and DKIM records.
	Auth bool
	// Reputation scores the domain from blacklist, disposable and, when
	// Auth is set, authentication signals.
	Reputation bool
	// SkipCache bypasses the result cache for this call; the fresh result is still stored.
	SkipCache bool
}

// Key returns the cache and deduplication key of email under these
// options. Results computed with different optional checks never share a key.
func (o CheckOptions) Key(email string) string {
	key := parse.Normalize(email)
	if o.SMTP {
		key += "|smtp"
	}
	if o.Auth {
		key += "|auth"
	}
	if o.Reputation {
		key += "|rep"
	}
	return key
}

// BulkOptions configures ValidateBulk.
type BulkOptions struct {
	// BatchSize is how many emails are validated in parallel. Default: 10
	BatchSize int
	// BatchDelay is the pause between batches. Default: 0
	BatchDelay time.Duration
	// Timeout bounds the whole run; remaining emails are dropped and
	// Metadata.TimedOut is set. Default: 60s
	Timeout time.Duration
	// Check applies to every email.
	Check CheckOptions
	// OnBatch receives each batch's completed results in input order,
	// before OnProgress. It runs on the calling goroutine.
	OnBatch func(results []Result)
	// OnProgress is called after each batch with (completed, total).
	OnProgress func(completed, total int)
}

func (o BulkOptions) withDefaults() BulkOptions {
	if o.BatchSize <= 0 {
		o.BatchSize = 10
	}
	if o.BatchDelay < 0 {
		o.BatchDelay = 0
	}
	if o.Timeout <= 0 {
		o.Timeout = 60 * time.Second
	}
	return o
}
