package model

import (
	"fmt"
	"strings"
	"time"
)

// Severity grades how critical a fault is.
type Severity string

const (
	SeverityLow    Severity = "Low"
	SeverityMedium Severity = "Medium"
	SeverityHigh   Severity = "High"
)

// ParseSeverity parses a case-insensitive severity name.
func ParseSeverity(s string) (Severity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return SeverityLow, nil
	case "medium":
		return SeverityMedium, nil
	case "high":
		return SeverityHigh, nil
	default:
		return "", fmt.Errorf("unknown severity %q", s)
	}
}

// Level maps the severity to 1 (Low), 2 (Medium) or 3 (High). Unknown
// values are treated as Low.
func (s Severity) Level() int {
	switch s {
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	default:
		return 1
	}
}

// FaultStatus is the lifecycle state of a fault.
type FaultStatus string

const (
	FaultWaiting             FaultStatus = "waiting"
	FaultPendingConfirmation FaultStatus = "pending_confirmation"
	FaultAssigned            FaultStatus = "assigned"
	FaultResolved            FaultStatus = "resolved"
)

// Active reports whether a vehicle is bound to the fault.
func (s FaultStatus) Active() bool {
	return s == FaultPendingConfirmation || s == FaultAssigned
}

// Fault is a reported incident requiring a vehicle on site.
type Fault struct {
	ID       string   `json:"id"`
	Category string   `json:"category"`
	Severity Severity `json:"severity"`
	Location Point    `json:"location"`
	Detail   string   `json:"detail,omitempty"`

	Status            FaultStatus `json:"status"`
	AssignedVehicleID string      `json:"assigned_vehicle_id,omitempty"`
	// ResolvedBy keeps the vehicle that closed the fault once the
	// assignment has been released.
	ResolvedBy string `json:"resolved_by,omitempty"`

	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

// HasLocation reports whether the fault has usable coordinates.
func (f Fault) HasLocation() bool { return !f.Location.IsZero() }

// Validate checks the intake attributes of a fault.
func (f Fault) Validate() error {
	if f.Category == "" {
		return fmt.Errorf("category is required")
	}
	if _, err := ParseSeverity(string(f.Severity)); err != nil {
		return err
	}
	if err := f.Location.Validate(); err != nil {
		return fmt.Errorf("location: %w", err)
	}
	return nil
}
