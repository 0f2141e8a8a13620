package routing

import "github.com/prometheus/client_golang/prometheus"

var (
	routeRequests    *prometheus.CounterVec
	cacheHits        prometheus.Counter
	externalFailures prometheus.Counter
	breakerState     prometheus.Gauge
)

// newCollectors creates new metric collectors.
func newCollectors() (*prometheus.CounterVec, prometheus.Counter, prometheus.Counter, prometheus.Gauge) {
	req := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "routing_requests_total",
		Help: "Route computations by answering source",
	}, []string{"source", "fallback"})
	hits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "routing_cache_hits_total",
		Help: "Route requests answered from cache",
	})
	fail := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "routing_external_failures_total",
		Help: "Failed or timed out external router calls",
	})
	state := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "routing_circuit_state",
		Help: "Circuit breaker state: 0 closed, 1 half-open, 2 open",
	})
	return req, hits, fail, state
}

func init() {
	routeRequests, cacheHits, externalFailures, breakerState = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers routing metrics on the provided registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(routeRequests, cacheHits, externalFailures, breakerState)
}

// ResetMetrics reinitializes metrics collectors for testing purposes and
// registers them on the provided registry if not nil.
func ResetMetrics(reg prometheus.Registerer) {
	routeRequests, cacheHits, externalFailures, breakerState = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
