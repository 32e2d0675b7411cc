package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yourorg/swap-quote-aggregator/internal/aggregate"
	"github.com/yourorg/swap-quote-aggregator/internal/circuitbreaker"
)

// Metrics holds the service's Prometheus collectors on a private registry. It also
// serves as the aggregator's per-provider observer.
type Metrics struct {
	registry *prometheus.Registry

	requestCounter   *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	providerOutcomes *prometheus.CounterVec
	providerLatency  *prometheus.HistogramVec
	circuitBreaker   *prometheus.GaugeVec
}

// NewMetrics creates and registers every collector.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requestCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "swapq_requests_total",
				Help: "Total number of quote requests by HTTP status",
			},
			[]string{"status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "swapq_request_duration_seconds",
				Help:    "Quote request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"status"},
		),
		providerOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "swapq_provider_outcomes_total",
				Help: "Provider calls by outcome (ok, error, timeout, skipped, cancelled)",
			},
			[]string{"provider", "outcome"},
		),
		providerLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "swapq_provider_latency_seconds",
				Help:    "Provider call latency in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8},
			},
			[]string{"provider"},
		),
		circuitBreaker: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "swapq_circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
			},
			[]string{"provider"},
		),
	}

	m.registry.MustRegister(
		m.requestCounter,
		m.requestDuration,
		m.providerOutcomes,
		m.providerLatency,
		m.circuitBreaker,
	)
	return m
}

// ObserveProvider implements aggregate.Observer. Skipped calls never ran, so they
// are counted but not timed.
func (m *Metrics) ObserveProvider(provider string, kind aggregate.OutcomeKind, elapsed time.Duration) {
	m.providerOutcomes.WithLabelValues(provider, string(kind)).Inc()
	if kind != aggregate.OutcomeSkipped {
		m.providerLatency.WithLabelValues(provider).Observe(elapsed.Seconds())
	}
}

func (m *Metrics) observeRequest(status int, elapsed time.Duration) {
	code := strconv.Itoa(status)
	m.requestCounter.WithLabelValues(code).Inc()
	m.requestDuration.WithLabelValues(code).Observe(elapsed.Seconds())
}

func (m *Metrics) updateBreakers(snapshots []circuitbreaker.Snapshot) {
	for _, snap := range snapshots {
		m.circuitBreaker.WithLabelValues(snap.Provider).Set(float64(snap.State))
	}
}

// Handler exposes the private registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
