package dispatch

import "errors"

var (
	// ErrNoEligibleVehicle leaves the fault waiting for the next trigger.
	ErrNoEligibleVehicle = errors.New("no eligible vehicle")
	// ErrFaultNotWaiting is returned when dispatch is requested for a fault
	// that already has a vehicle or is resolved.
	ErrFaultNotWaiting = errors.New("fault is not waiting")
	// ErrNoActiveAttempt is returned for acknowledgments that match no
	// pending dispatch.
	ErrNoActiveAttempt = errors.New("no active dispatch attempt")
)
