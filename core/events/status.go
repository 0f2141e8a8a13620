package events

import (
	"time"

	"github.com/kilianp07/faultfleet/core/model"
)

// VehicleStatusChanged is published whenever a vehicle status is persisted.
type VehicleStatusChanged struct {
	VehicleID string              `json:"vehicle_id"`
	From      model.VehicleStatus `json:"from"`
	To        model.VehicleStatus `json:"to"`
	FaultID   string              `json:"fault_id,omitempty"`
	Reason    string              `json:"reason"`
	At        time.Time           `json:"at"`
}

func (VehicleStatusChanged) Kind() Kind         { return KindVehicleStatus }
func (e VehicleStatusChanged) EntityID() string { return e.VehicleID }

// FaultStatusChanged is published whenever a fault status is persisted.
type FaultStatusChanged struct {
	FaultID   string            `json:"fault_id"`
	From      model.FaultStatus `json:"from"`
	To        model.FaultStatus `json:"to"`
	VehicleID string            `json:"vehicle_id,omitempty"`
	Reason    string            `json:"reason"`
	At        time.Time         `json:"at"`
}

func (FaultStatusChanged) Kind() Kind         { return KindFaultStatus }
func (e FaultStatusChanged) EntityID() string { return e.FaultID }

// RouteReplaced is published when a vehicle gets a new active route.
type RouteReplaced struct {
	VehicleID       string    `json:"vehicle_id"`
	FaultID         string    `json:"fault_id"`
	PreviousRouteID string    `json:"previous_route_id,omitempty"`
	RouteID         string    `json:"route_id"`
	Source          string    `json:"source"`
	Fallback        bool      `json:"fallback"`
	Reason          string    `json:"reason"`
	At              time.Time `json:"at"`
}

func (RouteReplaced) Kind() Kind         { return KindRouteReplaced }
func (e RouteReplaced) EntityID() string { return e.VehicleID }
