// Package metrics exposes the ambient Prometheus counters/histograms for
// scans, signals, provider calls and the TTL cache, surfaced at
// /api/metrics via promhttp.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles every counter/histogram/gauge the engine updates.
type Metrics struct {
	registry *prometheus.Registry

	ScansTotal          *prometheus.CounterVec
	ScanDurationSeconds prometheus.Histogram
	SignalsEmitted      *prometheus.CounterVec
	SignalsRejected     *prometheus.CounterVec
	ProviderCalls       *prometheus.CounterVec
	ProviderLatency     *prometheus.HistogramVec
	CacheOperations     *prometheus.CounterVec
	BacktestJobs        *prometheus.GaugeVec
}

// New builds and registers all metrics against a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		ScansTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arbiter_scans_total",
			Help: "Total number of engine scans run.",
		}, []string{"outcome"}),
		ScanDurationSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "arbiter_scan_duration_seconds",
			Help:    "Duration of a single engine scan.",
			Buckets: prometheus.DefBuckets,
		}),
		SignalsEmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arbiter_signals_emitted_total",
			Help: "Total number of trading signals emitted.",
		}, []string{"event_type", "confidence_level"}),
		SignalsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arbiter_signals_rejected_total",
			Help: "Total number of draft signals rejected, by filter.",
		}, []string{"filter"}),
		ProviderCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arbiter_provider_calls_total",
			Help: "Total provider calls by dependency and outcome.",
		}, []string{"dependency", "outcome"}),
		ProviderLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "arbiter_provider_call_duration_seconds",
			Help:    "Provider call latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"dependency"}),
		CacheOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arbiter_cache_operations_total",
			Help: "TTL cache operations by kind.",
		}, []string{"cache", "operation"}),
		BacktestJobs: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "arbiter_backtest_jobs",
			Help: "Number of backtest jobs by status.",
		}, []string{"status"}),
	}

	reg.MustRegister(
		m.ScansTotal, m.ScanDurationSeconds, m.SignalsEmitted, m.SignalsRejected,
		m.ProviderCalls, m.ProviderLatency, m.CacheOperations, m.BacktestJobs,
	)
	return m
}

// Handler returns the Prometheus exposition HTTP handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveProviderCall records a provider call's outcome and latency.
func (m *Metrics) ObserveProviderCall(dependency string, start time.Time, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.ProviderCalls.WithLabelValues(dependency, outcome).Inc()
	m.ProviderLatency.WithLabelValues(dependency).Observe(time.Since(start).Seconds())
}
