// Command emailguard serves the validation HTTP API.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/optimode/emailguard"
	"github.com/optimode/emailguard/internal/circuitbreaker"
	"github.com/optimode/emailguard/internal/config"
	"github.com/optimode/emailguard/internal/jobs"
	"github.com/optimode/emailguard/internal/metrics"
	"github.com/optimode/emailguard/internal/ratelimit"
	"github.com/optimode/emailguard/internal/server"
)

func main() {
	if err := run(); err != nil {
		slog.Error("emailguard exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	cfg, err := config.New()
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)
	for _, w := range cfg.Warnings {
		logger.Warn("config value ignored", "reason", w)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	breakers := circuitbreaker.NewRegistry(circuitbreaker.RegistryOptions{Logger: logger})

	v := emailguard.New().
		WithDNS(emailguard.DNSOptions{
			Providers:    cfg.DNSProviders,
			QueryTimeout: cfg.DNSQueryTimeout,
		}).
		WithBreakers(breakers).
		WithCache(emailguard.CacheOptions{MaxSize: cfg.CacheSize, TTL: cfg.CacheTTL, Disabled: cfg.CacheSize == 0}).
		WithTimeout(cfg.ValidationTimeout).
		WithLogger(logger)
	if cfg.SMTPEnabled {
		v = v.WithSMTP(emailguard.SMTPOptions{
			HeloDomain: cfg.SMTPHeloDomain,
			MailFrom:   cfg.SMTPMailFrom,
		})
	}
	defer func() { _ = v.Close() }()

	m := metrics.New()
	if _, ok := v.SMTPPoolStats(); ok {
		m.RegisterSMTPPool(func() emailguard.SMTPPoolStats {
			stats, _ := v.SMTPPoolStats()
			return stats
		})
	}

	trusted := make([]string, 0, len(cfg.TrustedAPIKeys))
	for _, key := range cfg.TrustedAPIKeys {
		trusted = append(trusted, ratelimit.KeyIdentity(key))
	}
	limiter := ratelimit.New(ratelimit.Config{
		Buckets: map[string]ratelimit.Rule{
			ratelimit.BucketSingle: {Limit: cfg.RateLimitSingle, Window: cfg.RateLimitWindow},
			ratelimit.BucketBulk:   {Limit: cfg.RateLimitBulk, Window: cfg.RateLimitWindow},
		},
		Trusted: trusted,
	})

	var rateStats ratelimit.StatsStore = ratelimit.NewMemoryStats()
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer func() { _ = rdb.Close() }()

		pingCtx, cancelPing := context.WithTimeout(ctx, 2*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancelPing()
		if err != nil {
			return fmt.Errorf("redis ping %s: %w", cfg.RedisAddr, err)
		}
		rateStats = ratelimit.NewRedisStats(rdb, ratelimit.RedisStatsOptions{})
	}

	s, err := server.New(server.Options{
		Validator:          v,
		Limiter:            limiter,
		RateStats:          rateStats,
		TrustXForwardedFor: cfg.TrustXForwardedFor,
		Jobs: jobs.Config{
			BatchSize:   cfg.BatchSize,
			MaxDuration: cfg.JobMaxDuration,
			TTL:         cfg.JobTTL,
			Logger:      logger,
		},
		Breakers:        breakers,
		Metrics:         m,
		Version:         cfg.Version,
		MaxBulkEmails:   cfg.BulkMaxEmails,
		StreamThreshold: cfg.StreamThreshold,
		JobThreshold:    cfg.JobThreshold,
		BulkBatchSize:   cfg.BatchSize,
		BulkTimeout:     cfg.BulkTimeout,
		Logger:          logger,
	})
	if err != nil {
		return err
	}
	s.Start(ctx)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Streamed bulk responses run up to BulkTimeout.
		WriteTimeout: cfg.BulkTimeout + 15*time.Second,
		IdleTimeout:  90 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("emailguard listening",
			"addr", cfg.Addr,
			"version", cfg.Version,
			"smtp", cfg.SMTPEnabled,
			"redis", cfg.RedisAddr != "",
			"providers", len(cfg.DNSProviders),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down", "timeout", cfg.ShutdownTimeout)
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancelShutdown()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}
	return s.Shutdown(shutdownCtx)
}
