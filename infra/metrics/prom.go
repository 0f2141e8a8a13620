package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/kilianp07/faultfleet/core/metrics"
)

// PromSink records fleet events in Prometheus metrics.
type PromSink struct {
	dispatches  *prometheus.CounterVec
	scores      *prometheus.HistogramVec
	acks        *prometheus.CounterVec
	ackLatency  *prometheus.HistogramVec
	positions   *prometheus.CounterVec
	routes      *prometheus.CounterVec
	routeLength prometheus.Histogram
	transitions *prometheus.CounterVec
}

// NewPromSink registers fleet metrics on the default Prometheus registerer.
// The Prometheus server should be started separately using ServeMetrics.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PromSink{
		dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fleet_dispatch_events_total",
			Help: "Vehicle selections by strategy, fallback and ack requirement",
		}, []string{"strategy", "fallback", "requires_ack"}),
		scores: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fleet_dispatch_score",
			Help:    "Score of the selected vehicle",
			Buckets: prometheus.LinearBuckets(0, 25, 10),
		}, []string{"strategy"}),
		acks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fleet_dispatch_acks_total",
			Help: "Dispatch confirmations and expiries",
		}, []string{"acknowledged", "implicit"}),
		ackLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fleet_dispatch_ack_latency_seconds",
			Help:    "Time between dispatch and acknowledgment",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		}, []string{"implicit"}),
		positions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fleet_positions_total",
			Help: "Accepted position samples by vehicle status",
		}, []string{"status", "arrival"}),
		routes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fleet_routes_total",
			Help: "Issued routes by source and reason",
		}, []string{"source", "fallback", "reason"}),
		routeLength: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "fleet_route_distance_meters",
			Help:    "Length of issued routes",
			Buckets: prometheus.ExponentialBuckets(100, 2, 10),
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fleet_status_transitions_total",
			Help: "Persisted lifecycle transitions",
		}, []string{"entity", "from", "to"}),
	}

	var err error
	if s.dispatches, err = register(reg, s.dispatches); err != nil {
		return nil, err
	}
	if s.scores, err = register(reg, s.scores); err != nil {
		return nil, err
	}
	if s.acks, err = register(reg, s.acks); err != nil {
		return nil, err
	}
	if s.ackLatency, err = register(reg, s.ackLatency); err != nil {
		return nil, err
	}
	if s.positions, err = register(reg, s.positions); err != nil {
		return nil, err
	}
	if s.routes, err = register(reg, s.routes); err != nil {
		return nil, err
	}
	if s.routeLength, err = register(reg, s.routeLength); err != nil {
		return nil, err
	}
	if s.transitions, err = register(reg, s.transitions); err != nil {
		return nil, err
	}
	return s, nil
}

// register returns the already registered collector when c was registered
// before, so several sinks can share one registry.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// RecordDispatch counts the selection and observes its score.
func (s *PromSink) RecordDispatch(ev coremetrics.DispatchEvent) error {
	s.dispatches.WithLabelValues(ev.Strategy, strconv.FormatBool(ev.Fallback), strconv.FormatBool(ev.RequiresAck)).Inc()
	s.scores.WithLabelValues(ev.Strategy).Observe(ev.Score)
	return nil
}

// RecordDispatchAck counts the outcome and observes the latency of
// confirmed dispatches.
func (s *PromSink) RecordDispatchAck(ev coremetrics.DispatchAckEvent) error {
	implicit := strconv.FormatBool(ev.Implicit)
	s.acks.WithLabelValues(strconv.FormatBool(ev.Acknowledged), implicit).Inc()
	if ev.Acknowledged && ev.Latency > 0 {
		s.ackLatency.WithLabelValues(implicit).Observe(ev.Latency.Seconds())
	}
	return nil
}

func (s *PromSink) RecordPosition(ev coremetrics.PositionEvent) error {
	s.positions.WithLabelValues(string(ev.Status), strconv.FormatBool(ev.Arrival)).Inc()
	return nil
}

func (s *PromSink) RecordRoute(ev coremetrics.RouteEvent) error {
	s.routes.WithLabelValues(ev.Source, strconv.FormatBool(ev.Fallback), ev.Reason).Inc()
	s.routeLength.Observe(ev.DistanceM)
	return nil
}

func (s *PromSink) RecordTransition(ev coremetrics.TransitionEvent) error {
	s.transitions.WithLabelValues(ev.Entity, ev.From, ev.To).Inc()
	return nil
}
