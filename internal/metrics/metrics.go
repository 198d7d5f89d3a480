// Package metrics exposes Prometheus collectors for census-geo requests and
// the upstream calls they make.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sells-group/census-geo/internal/resilience"
)

const namespace = "census_geo"

// Metrics holds the Prometheus counters and histograms for the pipeline and
// its upstream calls. It satisfies both pipeline.Observer and
// fetcher.Observer.
type Metrics struct {
	Runs         *prometheus.CounterVec // labels: outcome={success,<error kind>}
	RunDuration  prometheus.Histogram
	Supplemental *prometheus.CounterVec   // labels: level
	Ambiguous    *prometheus.CounterVec   // labels: level
	Upstream     *prometheus.CounterVec   // labels: host, outcome
	UpstreamTime *prometheus.HistogramVec // labels: host
	BreakerTrips *prometheus.CounterVec   // labels: from, to
}

// New creates the collectors and registers them with reg. A nil reg leaves
// them unregistered.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Pipeline requests by outcome.",
		}, []string{"outcome"}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Duration of a complete pipeline request.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		Supplemental: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "supplemental_requests_total",
			Help:      "Single-geography summary requests issued for unmatched features.",
		}, []string{"level"}),
		Ambiguous: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ambiguous_matches_total",
			Help:      "Features that matched more than one Census record.",
		}, []string{"level"}),
		Upstream: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_requests_total",
			Help:      "Upstream HTTP requests by host and outcome.",
		}, []string{"host", "outcome"}),
		UpstreamTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_duration_seconds",
			Help:      "Upstream HTTP request duration by host.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"host"}),
		BreakerTrips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "circuit_transitions_total",
			Help:      "Circuit breaker state transitions.",
		}, []string{"from", "to"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.Runs,
			m.RunDuration,
			m.Supplemental,
			m.Ambiguous,
			m.Upstream,
			m.UpstreamTime,
			m.BreakerTrips,
		)
	}
	return m
}

// ObserveRun records a finished pipeline request.
func (m *Metrics) ObserveRun(outcome string, elapsed time.Duration) {
	m.Runs.WithLabelValues(outcome).Inc()
	m.RunDuration.Observe(elapsed.Seconds())
}

// ObserveSupplemental records n supplemental requests at level.
func (m *Metrics) ObserveSupplemental(level string, n int) {
	m.Supplemental.WithLabelValues(level).Add(float64(n))
}

// ObserveAmbiguous records a feature that matched several records.
func (m *Metrics) ObserveAmbiguous(level string) {
	m.Ambiguous.WithLabelValues(level).Inc()
}

// ObserveUpstream records one upstream HTTP call.
func (m *Metrics) ObserveUpstream(host, outcome string, elapsed time.Duration) {
	m.Upstream.WithLabelValues(host, outcome).Inc()
	m.UpstreamTime.WithLabelValues(host).Observe(elapsed.Seconds())
}

// ObserveBreaker records a circuit breaker transition. Its signature matches
// resilience.CircuitBreakerConfig.OnStateChange.
func (m *Metrics) ObserveBreaker(from, to resilience.CircuitState) {
	m.BreakerTrips.WithLabelValues(from.String(), to.String()).Inc()
}
