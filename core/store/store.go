// Package store defines persistence for fleet entities and an in-memory
// implementation. SQL backends live in infra/store.
package store

import (
	"context"
	"time"

	"github.com/kilianp07/faultfleet/core/model"
)

// VehicleFilter narrows ListVehicles. Zero fields match everything.
type VehicleFilter struct {
	Status model.VehicleStatus
}

// FaultFilter narrows ListFaults. Zero fields match everything.
type FaultFilter struct {
	Status     model.FaultStatus
	ResolvedBy string
	Category   string
}

type Vehicles interface {
	GetVehicle(ctx context.Context, id string) (model.Vehicle, error)
	ListVehicles(ctx context.Context, f VehicleFilter) ([]model.Vehicle, error)
	SaveVehicle(ctx context.Context, v model.Vehicle) error
}

type Faults interface {
	GetFault(ctx context.Context, id string) (model.Fault, error)
	ListFaults(ctx context.Context, f FaultFilter) ([]model.Fault, error)
	SaveFault(ctx context.Context, f model.Fault) error
}

type Routes interface {
	// ActiveRoute returns model.ErrNotFound when the vehicle has no active route.
	ActiveRoute(ctx context.Context, vehicleID string) (model.Route, error)
	// ReplaceActiveRoute marks the current active route of r.VehicleID as
	// superseded and stores r as active, in one step. It returns the ID of
	// the superseded route, or "" when there was none.
	ReplaceActiveRoute(ctx context.Context, r model.Route) (string, error)
	// CloseActiveRoute sets the active route of vehicleID to status. It
	// reports whether a route was closed.
	CloseActiveRoute(ctx context.Context, vehicleID string, status model.RouteStatus, at time.Time) (bool, error)
	ListRoutes(ctx context.Context, vehicleID string) ([]model.Route, error)
}

type Positions interface {
	AppendPosition(ctx context.Context, p model.PositionSnapshot) error
	// ListPositions returns the most recent snapshots first, at most limit
	// entries when limit > 0.
	ListPositions(ctx context.Context, vehicleID string, limit int) ([]model.PositionSnapshot, error)
}

type Trips interface {
	OpenTrip(ctx context.Context, t model.Trip) error
	// CloseOpenTrip closes the open trip of vehicleID, if any.
	CloseOpenTrip(ctx context.Context, vehicleID string, end model.Point, at time.Time) (bool, error)
	ListTrips(ctx context.Context, vehicleID string) ([]model.Trip, error)
}

type Alerts interface {
	CreateAlert(ctx context.Context, a model.Alert) error
	// SolveAlert marks the unsolved alerts of the (fault, vehicle) pair solved.
	SolveAlert(ctx context.Context, faultID, vehicleID string, at time.Time) (bool, error)
	ListAlerts(ctx context.Context, faultID string) ([]model.Alert, error)
}

// Store aggregates every entity repository.
type Store interface {
	Vehicles
	Faults
	Routes
	Positions
	Trips
	Alerts
	Close() error
}
