// Package metrics exposes the gateway's Prometheus instruments: active
// connections per destination, circuit-breaker state, health-check
// outcomes, and rate-limit rejections.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the instruments the proxy pipeline, load balancer, and
// health monitor report into.
type Metrics struct {
	ActiveConnections *prometheus.GaugeVec
	CircuitState      *prometheus.GaugeVec
	HealthChecks      *prometheus.CounterVec
	RateLimitRejected prometheus.Counter
}

// New registers and returns the gateway's metrics against the default
// registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry registers against a custom registerer, for tests that
// want an isolated registry.
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)

	return &Metrics{
		ActiveConnections: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ingressgw_active_connections",
				Help: "Active in-flight requests per destination",
			},
			[]string{"destination"},
		),
		CircuitState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ingressgw_circuit_state",
				Help: "Circuit breaker state per destination (0=closed, 1=open, 2=half_open)",
			},
			[]string{"destination"},
		),
		HealthChecks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingressgw_health_checks_total",
				Help: "Per-destination health check outcomes",
			},
			[]string{"destination", "outcome"},
		),
		RateLimitRejected: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "ingressgw_rate_limit_rejected_total",
				Help: "Total requests rejected by the admission limiter",
			},
		),
	}
}

// circuitStateValue maps a health.State to the gauge value documented in
// CircuitState's help text.
func circuitStateValue(state int) float64 {
	return float64(state)
}

// SetCircuitState records the current circuit state for destination.
func (m *Metrics) SetCircuitState(destination string, state int) {
	m.CircuitState.WithLabelValues(destination).Set(circuitStateValue(state))
}

// SetActiveConnections records the current connection gauge for
// destination.
func (m *Metrics) SetActiveConnections(destination string, count int64) {
	m.ActiveConnections.WithLabelValues(destination).Set(float64(count))
}

// RecordHealthCheck increments the outcome counter for a probe result.
func (m *Metrics) RecordHealthCheck(destination string, healthy bool) {
	outcome := "unhealthy"
	if healthy {
		outcome = "healthy"
	}
	m.HealthChecks.WithLabelValues(destination, outcome).Inc()
}

// RecordRateLimitRejected increments the admission-rejection counter.
func (m *Metrics) RecordRateLimitRejected() {
	m.RateLimitRejected.Inc()
}
