// Package metrics exposes Prometheus instrumentation for generation and the
// HTTP server.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "mospeada"

// Metrics owns a set of collectors registered on one registry. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	gatherer prometheus.Gatherer

	promptTokens    prometheus.Counter
	generatedTokens prometheus.Counter
	generations     *prometheus.CounterVec
	tokensPerSecond prometheus.Histogram
	poolWait        prometheus.Histogram

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	httpInflight prometheus.Gauge
	rateLimited  prometheus.Counter
}

// New creates the collectors and registers them on a fresh registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.NewRegistry())
}

// NewWithRegistry registers the collectors on reg. It panics if any of them
// is already registered there.
func NewWithRegistry(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		promptTokens: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "generation",
			Name:      "prompt_tokens_total",
			Help:      "Prompt tokens consumed.",
		}),
		generatedTokens: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "generation",
			Name:      "generated_tokens_total",
			Help:      "Tokens produced by sampling.",
		}),
		generations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "generation",
			Name:      "runs_total",
			Help:      "Finished generation runs by stop reason.",
		}, []string{"reason"}),
		tokensPerSecond: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "generation",
			Name:      "tokens_per_second",
			Help:      "Decode throughput per run.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}),
		poolWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "wait_seconds",
			Help:      "Time spent waiting for a free model instance.",
			Buckets:   prometheus.DefBuckets,
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route, method and status.",
		}, []string{"path", "method", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"path", "method", "status"}),
		httpInflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Requests currently being served.",
		}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "rate_limited_total",
			Help:      "Requests rejected with 429.",
		}),
	}
	m.gatherer = reg
	reg.MustRegister(
		m.promptTokens, m.generatedTokens, m.generations, m.tokensPerSecond, m.poolWait,
		m.httpRequests, m.httpDuration, m.httpInflight, m.rateLimited,
	)
	return m
}

// ObserveGeneration records one finished run.
func (m *Metrics) ObserveGeneration(promptTokens, generated int, reason string, tokensPerSecond float64) {
	if m == nil {
		return
	}
	m.promptTokens.Add(float64(promptTokens))
	m.generatedTokens.Add(float64(generated))
	m.generations.WithLabelValues(reason).Inc()
	if generated > 0 && tokensPerSecond > 0 {
		m.tokensPerSecond.Observe(tokensPerSecond)
	}
}

func (m *Metrics) ObservePoolWait(d time.Duration) {
	if m == nil {
		return
	}
	m.poolWait.Observe(d.Seconds())
}

// ObserveHTTP records a served request. path should be the route pattern,
// not the raw URL, to keep label cardinality bounded.
func (m *Metrics) ObserveHTTP(path, method string, status int, d time.Duration) {
	if m == nil {
		return
	}
	code := strconv.Itoa(status)
	m.httpRequests.WithLabelValues(path, method, code).Inc()
	m.httpDuration.WithLabelValues(path, method, code).Observe(d.Seconds())
}

// Inflight adjusts the in-flight gauge by delta.
func (m *Metrics) Inflight(delta float64) {
	if m == nil {
		return
	}
	m.httpInflight.Add(delta)
}

func (m *Metrics) RateLimited() {
	if m == nil {
		return
	}
	m.rateLimited.Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
