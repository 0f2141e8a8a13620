package metrics

import (
	"time"

	"github.com/kilianp07/faultfleet/core/model"
)

// DispatchEvent describes one vehicle selection for a fault.
type DispatchEvent struct {
	FaultID     string
	VehicleID   string
	Category    string
	Severity    model.Severity
	Strategy    string
	Fallback    bool
	Score       float64
	Candidates  int
	RequiresAck bool
	Time        time.Time
}

// MetricsSink records dispatch decisions for observability purposes.
type MetricsSink interface {
	RecordDispatch(ev DispatchEvent) error
}

// DispatchAckEvent captures the confirmation or expiry of a dispatch.
type DispatchAckEvent struct {
	FaultID      string
	VehicleID    string
	Acknowledged bool
	Implicit     bool
	Latency      time.Duration
	Time         time.Time
}

// DispatchAckRecorder records ACK events.
type DispatchAckRecorder interface {
	RecordDispatchAck(ev DispatchAckEvent) error
}

// PositionEvent is one accepted position sample.
type PositionEvent struct {
	VehicleID string
	Position  model.Point
	Speed     float64
	Status    model.VehicleStatus
	Arrival   bool
	Time      time.Time
}

// PositionRecorder records position samples.
type PositionRecorder interface {
	RecordPosition(ev PositionEvent) error
}

// RouteEvent describes a route issued to a vehicle.
type RouteEvent struct {
	RouteID   string
	VehicleID string
	FaultID   string
	Source    string
	Fallback  bool
	DistanceM float64
	DurationS float64
	Reason    string
	Time      time.Time
}

// RouteRecorder records issued routes.
type RouteRecorder interface {
	RecordRoute(ev RouteEvent) error
}

// NopSink implements every recorder with no-op methods.
type NopSink struct{}

func (NopSink) RecordDispatch(DispatchEvent) error       { return nil }
func (NopSink) RecordDispatchAck(DispatchAckEvent) error { return nil }
func (NopSink) RecordPosition(PositionEvent) error       { return nil }
func (NopSink) RecordRoute(RouteEvent) error             { return nil }
func (NopSink) RecordTransition(TransitionEvent) error   { return nil }

// TransitionEvent is one persisted lifecycle change of a fault or vehicle.
type TransitionEvent struct {
	Entity string
	ID     string
	From   string
	To     string
	Reason string
	Time   time.Time
}

// TransitionRecorder records lifecycle transitions.
type TransitionRecorder interface {
	RecordTransition(ev TransitionEvent) error
}
