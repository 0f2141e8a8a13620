package metrics

import (
	"errors"

	coremetrics "github.com/kilianp07/faultfleet/core/metrics"
)

// MultiSink fans out fleet events to multiple sinks. Every sink receives
// the event even when an earlier one fails; the errors are joined.
type MultiSink struct {
	Sinks []coremetrics.MetricsSink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...coremetrics.MetricsSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordDispatch forwards the selection to all sinks.
func (m *MultiSink) RecordDispatch(ev coremetrics.DispatchEvent) error {
	var errs []error
	for _, s := range m.Sinks {
		errs = append(errs, s.RecordDispatch(ev))
	}
	return errors.Join(errs...)
}

// RecordDispatchAck forwards ack events.
func (m *MultiSink) RecordDispatchAck(ev coremetrics.DispatchAckEvent) error {
	var errs []error
	for _, s := range m.Sinks {
		if rec, ok := s.(coremetrics.DispatchAckRecorder); ok {
			errs = append(errs, rec.RecordDispatchAck(ev))
		}
	}
	return errors.Join(errs...)
}

// RecordPosition forwards position samples.
func (m *MultiSink) RecordPosition(ev coremetrics.PositionEvent) error {
	var errs []error
	for _, s := range m.Sinks {
		if rec, ok := s.(coremetrics.PositionRecorder); ok {
			errs = append(errs, rec.RecordPosition(ev))
		}
	}
	return errors.Join(errs...)
}

// RecordRoute forwards issued routes.
func (m *MultiSink) RecordRoute(ev coremetrics.RouteEvent) error {
	var errs []error
	for _, s := range m.Sinks {
		if rec, ok := s.(coremetrics.RouteRecorder); ok {
			errs = append(errs, rec.RecordRoute(ev))
		}
	}
	return errors.Join(errs...)
}

// RecordTransition forwards lifecycle transitions.
func (m *MultiSink) RecordTransition(ev coremetrics.TransitionEvent) error {
	var errs []error
	for _, s := range m.Sinks {
		if rec, ok := s.(coremetrics.TransitionRecorder); ok {
			errs = append(errs, rec.RecordTransition(ev))
		}
	}
	return errors.Join(errs...)
}
