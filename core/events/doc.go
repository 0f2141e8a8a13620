// Package events defines the lifecycle notifications emitted on the event bus.
//
// Available event types:
//   - VehicleStatusChanged: a vehicle moved between available, onRoute and working
//   - FaultStatusChanged: a fault moved along its lifecycle
//   - RouteReplaced: a vehicle received a new active route
//   - Dispatched: a vehicle was selected for a fault
//   - AckEvent: a dispatch was acknowledged, explicitly or implicitly
//   - DispatchTimedOut: no acknowledgment arrived in time
//   - StrategyEvent: predictor selection and rule fallback information
//
// Notifications are fire-and-forget and emitted at most once per mutation.
package events

// Kind identifies the type of an event for filtering and wire encoding.
type Kind string

const (
	KindVehicleStatus    Kind = "vehicle_status_changed"
	KindFaultStatus      Kind = "fault_status_changed"
	KindRouteReplaced    Kind = "route_replaced"
	KindDispatched       Kind = "dispatched"
	KindAck              Kind = "acknowledged"
	KindDispatchTimedOut Kind = "dispatch_timed_out"
	KindStrategy         Kind = "strategy"
)

// Event is implemented by every notification published on the bus.
type Event interface {
	Kind() Kind
	// EntityID returns the identifier used as partition key downstream.
	EntityID() string
}
