// Package config loads the server configuration from EMAILGUARD_*
// environment variables.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/optimode/emailguard/internal/resolver"
)

type Config struct {
	Addr            string        `validate:"required,hostname_port"`
	Version         string        `validate:"required"`
	LogLevel        slog.Level
	ShutdownTimeout time.Duration `validate:"gt=0"`

	DNSProviders    []resolver.Provider `validate:"min=1"`
	DNSQueryTimeout time.Duration       `validate:"gt=0"`

	ValidationTimeout time.Duration `validate:"gt=0"`
	CacheSize         int           `validate:"gte=0"`
	CacheTTL          time.Duration `validate:"gt=0"`

	SMTPEnabled    bool
	SMTPHeloDomain string `validate:"required_if=SMTPEnabled true,omitempty,fqdn"`
	SMTPMailFrom   string `validate:"required_if=SMTPEnabled true,omitempty,email"`

	RateLimitSingle    int           `validate:"gt=0"`
	RateLimitBulk      int           `validate:"gt=0"`
	RateLimitWindow    time.Duration `validate:"gt=0"`
	TrustedAPIKeys     []string
	TrustXForwardedFor bool

	BulkMaxEmails   int           `validate:"gt=0"`
	StreamThreshold int           `validate:"gt=0,ltefield=BulkMaxEmails"`
	JobThreshold    int           `validate:"gtefield=StreamThreshold,ltefield=BulkMaxEmails"`
	BatchSize       int           `validate:"gt=0"`
	BulkTimeout     time.Duration `validate:"gt=0"`
	JobMaxDuration  time.Duration `validate:"gt=0"`
	JobTTL          time.Duration `validate:"gt=0"`

	// RedisAddr enables shared rate limit statistics when set.
	RedisAddr     string `validate:"omitempty,hostname_port"`
	RedisPassword string
	RedisDB       int `validate:"gte=0"`

	// Warnings lists variables that could not be parsed and fell back to
	// their default. Load runs before logging is configured, so the caller
	// logs them.
	Warnings []string
}

// New reads the process environment.
func New() (*Config, error) {
	return Load(os.Getenv)
}

// Load builds a Config from getenv and validates it.
func Load(getenv func(string) string) (*Config, error) {
	env := func(name string) string { return strings.TrimSpace(getenv("EMAILGUARD_" + name)) }

	cfg := Config{
		Addr:               ":8080",
		Version:            "dev",
		LogLevel:           slog.LevelInfo,
		ShutdownTimeout:    15 * time.Second,
		DNSProviders:       resolver.DefaultProviders(),
		DNSQueryTimeout:    5 * time.Second,
		ValidationTimeout:  10 * time.Second,
		CacheSize:          10000,
		CacheTTL:           time.Hour,
		SMTPEnabled:        env("SMTP_ENABLED") == "true",
		SMTPHeloDomain:     env("SMTP_HELO_DOMAIN"),
		SMTPMailFrom:       env("SMTP_MAIL_FROM"),
		RateLimitSingle:    100,
		RateLimitBulk:      10,
		RateLimitWindow:    time.Minute,
		TrustedAPIKeys:     splitList(env("TRUSTED_API_KEYS")),
		TrustXForwardedFor: env("TRUST_X_FORWARDED_FOR") == "true",
		BulkMaxEmails:      1000,
		StreamThreshold:    50,
		JobThreshold:       100,
		BatchSize:          10,
		BulkTimeout:        60 * time.Second,
		JobMaxDuration:     10 * time.Minute,
		JobTTL:             time.Hour,
		RedisAddr:          env("REDIS_ADDR"),
		RedisPassword:      env("REDIS_PASSWORD"),
	}

	if v := env("ADDR"); v != "" {
		cfg.Addr = v
	} else if port := strings.TrimSpace(getenv("PORT")); port != "" {
		cfg.Addr = ":" + port
	}
	if v := env("VERSION"); v != "" {
		cfg.Version = v
	}
	ignored := func(name, value, what string, def any) {
		cfg.Warnings = append(cfg.Warnings,
			fmt.Sprintf("EMAILGUARD_%s=%q: invalid %s, using default %v", name, value, what, def))
	}

	if v := env("LOG_LEVEL"); v != "" {
		var level slog.Level
		if err := level.UnmarshalText([]byte(v)); err == nil {
			cfg.LogLevel = level
		} else {
			ignored("LOG_LEVEL", v, "log level", cfg.LogLevel)
		}
	}
	if v := env("DNS_PROVIDERS"); v != "" {
		providers, err := parseProviders(v)
		if err != nil {
			return nil, fmt.Errorf("config: EMAILGUARD_DNS_PROVIDERS: %w", err)
		}
		cfg.DNSProviders = providers
	}

	durations := []struct {
		name string
		dst  *time.Duration
	}{
		{"SHUTDOWN_TIMEOUT", &cfg.ShutdownTimeout},
		{"DNS_QUERY_TIMEOUT", &cfg.DNSQueryTimeout},
		{"VALIDATION_TIMEOUT", &cfg.ValidationTimeout},
		{"CACHE_TTL", &cfg.CacheTTL},
		{"RATE_LIMIT_WINDOW", &cfg.RateLimitWindow},
		{"BULK_TIMEOUT", &cfg.BulkTimeout},
		{"JOB_MAX_DURATION", &cfg.JobMaxDuration},
		{"JOB_TTL", &cfg.JobTTL},
	}
	for _, d := range durations {
		v := env(d.name)
		if v == "" {
			continue
		}
		if parsed, err := time.ParseDuration(v); err == nil {
			*d.dst = parsed
		} else {
			ignored(d.name, v, "duration", *d.dst)
		}
	}

	ints := []struct {
		name string
		dst  *int
	}{
		{"CACHE_SIZE", &cfg.CacheSize},
		{"RATE_LIMIT_SINGLE", &cfg.RateLimitSingle},
		{"RATE_LIMIT_BULK", &cfg.RateLimitBulk},
		{"BULK_MAX_EMAILS", &cfg.BulkMaxEmails},
		{"STREAM_THRESHOLD", &cfg.StreamThreshold},
		{"JOB_THRESHOLD", &cfg.JobThreshold},
		{"BATCH_SIZE", &cfg.BatchSize},
		{"REDIS_DB", &cfg.RedisDB},
	}
	for _, n := range ints {
		v := env(n.name)
		if v == "" {
			continue
		}
		if parsed, err := strconv.Atoi(v); err == nil {
			*n.dst = parsed
		} else {
			ignored(n.name, v, "integer", *n.dst)
		}
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &cfg, nil
}

// parseProviders reads "name=url" pairs separated by commas.
func parseProviders(s string) ([]resolver.Provider, error) {
	var out []resolver.Provider
	for _, item := range splitList(s) {
		name, url, ok := strings.Cut(item, "=")
		if !ok || strings.TrimSpace(name) == "" || strings.TrimSpace(url) == "" {
			return nil, fmt.Errorf("invalid provider %q, want name=url", item)
		}
		out = append(out, resolver.Provider{Name: strings.TrimSpace(name), URL: strings.TrimSpace(url)})
	}
	return out, nil
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, x := range strings.Split(s, ",") {
		if x = strings.TrimSpace(x); x != "" {
			out = append(out, x)
		}
	}
	return out
}
