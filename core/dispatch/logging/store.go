package logging

import (
	"context"
	"time"
)

// Outcomes of a dispatch decision.
const (
	OutcomeDispatched = "dispatched"
	OutcomeNoVehicle  = "no_vehicle"
	OutcomeError      = "error"
)

// LogRecord captures one dispatch decision for a fault.
type LogRecord struct {
	Timestamp time.Time `json:"timestamp"`
	FaultID   string    `json:"fault_id"`
	Category  string    `json:"category"`
	Severity  string    `json:"severity"`
	Trigger   string    `json:"trigger"`
	Strategy  string    `json:"strategy"`
	// Fallback is set when the predictor could not be used.
	Fallback        bool        `json:"fallback"`
	Reason          string      `json:"reason,omitempty"`
	Candidates      []Candidate `json:"candidates"`
	Excluded        []string    `json:"excluded,omitempty"`
	VehicleSelected string      `json:"vehicle_selected,omitempty"`
	Outcome         string      `json:"outcome"`
	Error           string      `json:"error,omitempty"`
}

// Candidate is one ranked vehicle.
type Candidate struct {
	VehicleID string  `json:"vehicle_id"`
	Score     float64 `json:"score"`
	DistanceM float64 `json:"distance_m"`
}

// Mentions reports whether the record ranked or selected vehicleID.
func (r LogRecord) Mentions(vehicleID string) bool {
	if r.VehicleSelected == vehicleID {
		return true
	}
	for _, c := range r.Candidates {
		if c.VehicleID == vehicleID {
			return true
		}
	}
	return false
}

// LogQuery defines filters for retrieving records.
type LogQuery struct {
	Start     time.Time
	End       time.Time
	VehicleID string
	FaultID   string
	Outcome   string
}

// Match reports whether r satisfies q.
func (q LogQuery) Match(r LogRecord) bool {
	if !q.Start.IsZero() && r.Timestamp.Before(q.Start) {
		return false
	}
	if !q.End.IsZero() && r.Timestamp.After(q.End) {
		return false
	}
	if q.FaultID != "" && r.FaultID != q.FaultID {
		return false
	}
	if q.Outcome != "" && r.Outcome != q.Outcome {
		return false
	}
	if q.VehicleID != "" && !r.Mentions(q.VehicleID) {
		return false
	}
	return true
}

// LogStore persists LogRecords and supports querying.
type LogStore interface {
	Append(ctx context.Context, rec LogRecord) error
	Query(ctx context.Context, q LogQuery) ([]LogRecord, error)
	Close() error
}
