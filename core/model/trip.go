package model

import "time"

// Trip is the travel record of a vehicle serving a fault.
type Trip struct {
	ID        string     `json:"id"`
	VehicleID string     `json:"vehicle_id"`
	FaultID   string     `json:"fault_id"`
	Start     Point      `json:"start"`
	StartedAt time.Time  `json:"started_at"`
	End       *Point     `json:"end,omitempty"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

// Open reports whether the trip has not been closed yet.
func (t Trip) Open() bool { return t.EndedAt == nil }

// Alert is the audit record created for each dispatch.
type Alert struct {
	ID        string     `json:"id"`
	FaultID   string     `json:"fault_id"`
	VehicleID string     `json:"vehicle_id"`
	Message   string     `json:"message"`
	CreatedAt time.Time  `json:"created_at"`
	Solved    bool       `json:"solved"`
	SolvedAt  *time.Time `json:"solved_at,omitempty"`
}
