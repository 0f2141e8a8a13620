package model

import (
	"fmt"
	"strings"
	"time"
)

// VehicleStatus is the lifecycle state of a service vehicle.
type VehicleStatus string

const (
	VehicleAvailable VehicleStatus = "available"
	VehicleOnRoute   VehicleStatus = "onRoute"
	VehicleWorking   VehicleStatus = "working"
)

// ParseVehicleStatus accepts the canonical names plus "dispatched", which
// external systems use as a synonym of onRoute.
func ParseVehicleStatus(s string) (VehicleStatus, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "available":
		return VehicleAvailable, nil
	case "onroute", "on_route", "dispatched":
		return VehicleOnRoute, nil
	case "working":
		return VehicleWorking, nil
	default:
		return "", fmt.Errorf("unknown vehicle status %q", s)
	}
}

// Vehicle represents a mobile service unit.
type Vehicle struct {
	ID     string        `json:"id"`
	Name   string        `json:"name,omitempty"`
	Status VehicleStatus `json:"status"`

	// Position is the last known location. It may be stale, and the zero
	// value means no fix was ever received.
	Position   Point     `json:"position"`
	PositionAt time.Time `json:"position_at,omitempty"`

	// HasHardware reports whether the vehicle carries a device able to
	// acknowledge dispatch orders.
	HasHardware bool `json:"has_hardware"`

	// PerformanceRatio is the historical success ratio in [0,1].
	PerformanceRatio float64 `json:"performance_ratio"`
	// FatigueCount is the number of faults handled in the current period.
	FatigueCount int `json:"fatigue_count"`

	AssignedFaultID string `json:"assigned_fault_id,omitempty"`
}

// HasPosition reports whether the vehicle ever reported a location.
func (v Vehicle) HasPosition() bool { return !v.Position.IsZero() }

// Validate checks the static attributes of a vehicle record.
func (v Vehicle) Validate() error {
	if v.ID == "" {
		return fmt.Errorf("vehicle id is required")
	}
	if v.PerformanceRatio < 0 || v.PerformanceRatio > 1 {
		return fmt.Errorf("performance ratio %v out of range [0,1]", v.PerformanceRatio)
	}
	if v.FatigueCount < 0 {
		return fmt.Errorf("fatigue count must not be negative")
	}
	return nil
}
