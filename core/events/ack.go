package events

import "time"

// Dispatched is published when a vehicle is selected for a fault.
type Dispatched struct {
	FaultID     string    `json:"fault_id"`
	VehicleID   string    `json:"vehicle_id"`
	Strategy    string    `json:"strategy"`
	Score       float64   `json:"score"`
	RequiresAck bool      `json:"requires_ack"`
	At          time.Time `json:"at"`
}

func (Dispatched) Kind() Kind         { return KindDispatched }
func (e Dispatched) EntityID() string { return e.FaultID }

// AckEvent is published when a pending dispatch is confirmed.
type AckEvent struct {
	FaultID   string `json:"fault_id"`
	VehicleID string `json:"vehicle_id"`
	// Implicit is set for vehicles without acknowledgment hardware and for
	// arrivals that precede the explicit confirmation.
	Implicit bool          `json:"implicit"`
	Latency  time.Duration `json:"latency"`
	At       time.Time     `json:"at"`
}

func (AckEvent) Kind() Kind         { return KindAck }
func (e AckEvent) EntityID() string { return e.FaultID }

// DispatchTimedOut re-enters the dispatch queue after an acknowledgment
// timeout.
type DispatchTimedOut struct {
	FaultID   string    `json:"fault_id"`
	VehicleID string    `json:"vehicle_id"`
	At        time.Time `json:"at"`
}

func (DispatchTimedOut) Kind() Kind         { return KindDispatchTimedOut }
func (e DispatchTimedOut) EntityID() string { return e.FaultID }
