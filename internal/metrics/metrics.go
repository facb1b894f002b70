// Package metrics exposes service counters and component state in the
// Prometheus text format.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/optimode/emailguard"
	"github.com/optimode/emailguard/internal/cache"
	"github.com/optimode/emailguard/internal/circuitbreaker"
	"github.com/optimode/emailguard/internal/dedup"
	"github.com/optimode/emailguard/internal/jobs"
	"github.com/optimode/emailguard/internal/ratelimit"
	"github.com/optimode/emailguard/internal/smtppool"
)

const namespace = "emailguard"

// Metrics owns a private registry. The Register* methods panic when called
// twice with the same name.
type Metrics struct {
	reg *prometheus.Registry

	validations *prometheus.CounterVec
	duration    prometheus.Histogram
	rateLimit   *prometheus.CounterVec
	jobs        *prometheus.CounterVec
}

// New creates a Metrics with Go runtime and process collectors registered.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		validations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "validations_total",
			Help:      "Validations by deliverability verdict.",
		}, []string{"deliverability"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "validation_duration_seconds",
			Help:      "Wall-clock time of a single validation.",
			Buckets:   []float64{.001, .005, .025, .1, .25, .5, 1, 2.5, 5, 10},
		}),
		rateLimit: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ratelimit_decisions_total",
			Help:      "Rate limit decisions by bucket and outcome.",
		}, []string{"bucket", "outcome"}),
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_finished_total",
			Help:      "Bulk jobs that reached a terminal state.",
		}, []string{"status"}),
	}
	m.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.validations, m.duration, m.rateLimit, m.jobs,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

func (m *Metrics) ObserveValidation(r emailguard.Result, took time.Duration) {
	m.validations.WithLabelValues(string(r.Deliverability)).Inc()
	m.duration.Observe(took.Seconds())
}

// ObserveResults counts verdicts of a bulk batch. It matches
// emailguard.BulkOptions.OnBatch.
func (m *Metrics) ObserveResults(results []emailguard.Result) {
	for _, r := range results {
		m.validations.WithLabelValues(string(r.Deliverability)).Inc()
	}
}

// ObserveRateLimit matches ratelimit.MiddlewareOptions.OnDecision.
func (m *Metrics) ObserveRateLimit(bucket string, d ratelimit.Decision) {
	outcome := "allowed"
	switch {
	case d.Trusted:
		outcome = "trusted"
	case !d.Allowed:
		outcome = "denied"
	}
	m.rateLimit.WithLabelValues(bucket, outcome).Inc()
}

// ObserveJob matches jobs.Config.OnFinish.
func (m *Metrics) ObserveJob(j jobs.Job) {
	m.jobs.WithLabelValues(string(j.Status)).Inc()
}

// RegisterCache exports size and hit counters of a cache, read at scrape time.
func (m *Metrics) RegisterCache(name string, stats func() cache.Stats) {
	labels := prometheus.Labels{"cache": name}
	m.reg.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace, Name: "cache_entries", Help: "Live cache entries.", ConstLabels: labels,
		}, func() float64 { return float64(stats().Size) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace, Name: "cache_hits_total", Help: "Cache hits.", ConstLabels: labels,
		}, func() float64 { return float64(stats().Hits) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace, Name: "cache_misses_total", Help: "Cache misses.", ConstLabels: labels,
		}, func() float64 { return float64(stats().Misses) }),
	)
}

// RegisterBreakers exports the state of every breaker in reg.
func (m *Metrics) RegisterBreakers(reg *circuitbreaker.Registry) {
	m.reg.MustRegister(&breakerCollector{snapshot: reg.Snapshot})
}

// RegisterSMTPPool exports connection pool occupancy.
func (m *Metrics) RegisterSMTPPool(stats func() smtppool.Stats) {
	m.reg.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "smtp_pool", Name: "idle_connections", Help: "Idle pooled SMTP connections.",
		}, func() float64 { return float64(stats().IdleConns) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "smtp_pool", Name: "dials_total", Help: "SMTP connections opened.",
		}, func() float64 { return float64(stats().Dials) }),
	)
}

// RegisterDedup exports request deduplication counters.
func (m *Metrics) RegisterDedup(stats func() dedup.Stats) {
	m.reg.MustRegister(
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "dedup", Name: "executed_total", Help: "Validations actually run.",
		}, func() float64 { return float64(stats().Executed) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "dedup", Name: "shared_total", Help: "Callers served by an in-flight validation.",
		}, func() float64 { return float64(stats().Shared) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "dedup", Name: "in_flight", Help: "Distinct keys being validated.",
		}, func() float64 { return float64(stats().InFlight) }),
	)
}

// RegisterJobs exports the job table by status.
func (m *Metrics) RegisterJobs(counts func() map[jobs.Status]int) {
	m.reg.MustRegister(&jobsCollector{counts: counts})
}

var breakerStateDesc = prometheus.NewDesc(
	prometheus.BuildFQName(namespace, "circuit_breaker", "state"),
	"Breaker state: 0 closed, 1 open, 2 half-open.",
	[]string{"name"}, nil,
)

var breakerFailuresDesc = prometheus.NewDesc(
	prometheus.BuildFQName(namespace, "circuit_breaker", "failures_total"),
	"Failures recorded by the breaker.",
	[]string{"name"}, nil,
)

type breakerCollector struct {
	snapshot func() []circuitbreaker.Stats
}

func (c *breakerCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- breakerStateDesc
	ch <- breakerFailuresDesc
}

func (c *breakerCollector) Collect(ch chan<- prometheus.Metric) {
	for _, s := range c.snapshot() {
		ch <- prometheus.MustNewConstMetric(breakerStateDesc, prometheus.GaugeValue, float64(s.State), s.Name)
		ch <- prometheus.MustNewConstMetric(breakerFailuresDesc, prometheus.CounterValue, float64(s.TotalFailures), s.Name)
	}
}

var jobsDesc = prometheus.NewDesc(
	prometheus.BuildFQName(namespace, "jobs", "current"),
	"Bulk jobs held in memory by status.",
	[]string{"status"}, nil,
)

type jobsCollector struct {
	counts func() map[jobs.Status]int
}

func (c *jobsCollector) Describe(ch chan<- *prometheus.Desc) { ch <- jobsDesc }

func (c *jobsCollector) Collect(ch chan<- prometheus.Metric) {
	counts := c.counts()
	for _, s := range []jobs.Status{jobs.StatusPending, jobs.StatusProcessing, jobs.StatusCompleted, jobs.StatusFailed, jobs.StatusCancelled} {
		ch <- prometheus.MustNewConstMetric(jobsDesc, prometheus.GaugeValue, float64(counts[s]), string(s))
	}
}
