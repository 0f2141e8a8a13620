package model

import "time"

// RouteStatus is the lifecycle state of a route.
type RouteStatus string

const (
	RouteActive     RouteStatus = "active"
	RouteCompleted  RouteStatus = "completed"
	RouteSuperseded RouteStatus = "superseded"
	RouteCancelled  RouteStatus = "cancelled"
)

// Route is the path a vehicle follows towards its fault.
type Route struct {
	ID        string      `json:"id"`
	VehicleID string      `json:"vehicle_id"`
	FaultID   string      `json:"fault_id"`
	Status    RouteStatus `json:"status"`
	Waypoints []Point     `json:"waypoints"`
	DistanceM float64     `json:"distance_m"`
	DurationS float64     `json:"duration_s"`
	// Source names the router that produced the path.
	Source   string `json:"source"`
	Fallback bool   `json:"fallback"`
	// StartedAt is the time origin for position interpolation.
	StartedAt time.Time `json:"started_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
