package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	dispatchDecisions *prometheus.CounterVec
	ackLatency        prometheus.Histogram
	ackTimeouts       prometheus.Counter
	strategyFallbacks prometheus.Counter
	queueDropped      prometheus.Counter
	notifyFailures    prometheus.Counter
)

// newCollectors creates new metric collectors.
func newCollectors() (*prometheus.CounterVec, prometheus.Histogram, prometheus.Counter, prometheus.Counter, prometheus.Counter, prometheus.Counter) {
	dec := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_decisions_total",
			Help: "Dispatch decisions by strategy and outcome",
		},
		[]string{"strategy", "outcome"},
	)
	lat := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dispatch_ack_latency_seconds",
			Help:    "Latency between dispatch and acknowledgment",
			Buckets: prometheus.DefBuckets,
		},
	)
	to := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dispatch_ack_timeouts_total",
			Help: "Dispatches that were not acknowledged in time",
		},
	)
	fb := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dispatch_strategy_fallbacks_total",
			Help: "Predictor failures answered by the rule score",
		},
	)
	drop := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dispatch_queue_dropped_total",
			Help: "Dispatch requests dropped because the queue was full",
		},
	)
	nf := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dispatch_notify_failures_total",
			Help: "Dispatch notifications that could not be delivered",
		},
	)
	return dec, lat, to, fb, drop, nf
}

func init() {
	dispatchDecisions, ackLatency, ackTimeouts, strategyFallbacks, queueDropped, notifyFailures = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers dispatch metrics on the provided registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(dispatchDecisions, ackLatency, ackTimeouts, strategyFallbacks, queueDropped, notifyFailures)
}

// ResetMetrics reinitializes metrics collectors for testing purposes and
// registers them on the provided registry if not nil.
func ResetMetrics(reg prometheus.Registerer) {
	dispatchDecisions, ackLatency, ackTimeouts, strategyFallbacks, queueDropped, notifyFailures = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
