package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/optimode/emailguard"
	"github.com/optimode/emailguard/internal/cache"
	"github.com/optimode/emailguard/internal/circuitbreaker"
	"github.com/optimode/emailguard/internal/jobs"
	"github.com/optimode/emailguard/internal/ratelimit"
)

func TestObserve(t *testing.T) {
	m := New()

	m.ObserveValidation(emailguard.Result{Deliverability: emailguard.Deliverable}, 20*time.Millisecond)
	m.ObserveValidation(emailguard.Result{Deliverability: emailguard.Risky}, time.Millisecond)
	m.ObserveResults([]emailguard.Result{{Deliverability: emailguard.Deliverable}})

	m.ObserveRateLimit(ratelimit.BucketSingle, ratelimit.Decision{Allowed: true})
	m.ObserveRateLimit(ratelimit.BucketSingle, ratelimit.Decision{})
	m.ObserveRateLimit(ratelimit.BucketBulk, ratelimit.Decision{Allowed: true, Trusted: true})

	m.ObserveJob(jobs.Job{Status: jobs.StatusCompleted})

	assert.InDelta(t, 2, testutil.ToFloat64(m.validations.WithLabelValues("deliverable")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.validations.WithLabelValues("risky")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.rateLimit.WithLabelValues("single", "allowed")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.rateLimit.WithLabelValues("single", "denied")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.rateLimit.WithLabelValues("bulk", "trusted")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.jobs.WithLabelValues("completed")), 0)
}

func TestRegisteredComponents(t *testing.T) {
	m := New()

	c := cache.New[string, int](cache.Config{MaxSize: 10, TTL: time.Minute})
	c.Set("a", 1)
	c.Get("a")
	c.Get("b")
	m.RegisterCache("results", c.Stats)

	breakers := circuitbreaker.NewRegistry(circuitbreaker.RegistryOptions{
		Defaults: circuitbreaker.Config{FailureThreshold: 1, ResetTimeout: time.Minute, SuccessThreshold: 1},
	})
	breakers.Get("doh:google").RecordFailure()
	m.RegisterBreakers(breakers)

	m.RegisterJobs(func() map[jobs.Status]int {
		return map[jobs.Status]int{jobs.StatusProcessing: 2}
	})

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := string(body)

	for _, want := range []string{
		`emailguard_cache_entries{cache="results"} 1`,
		`emailguard_cache_hits_total{cache="results"} 1`,
		`emailguard_cache_misses_total{cache="results"} 1`,
		`emailguard_circuit_breaker_state{name="doh:google"} 1`,
		`emailguard_circuit_breaker_failures_total{name="doh:google"} 1`,
		`emailguard_jobs_current{status="processing"} 2`,
		`emailguard_jobs_current{status="completed"} 0`,
		"go_goroutines",
	} {
		assert.True(t, strings.Contains(out, want), "missing %q", want)
	}
}
