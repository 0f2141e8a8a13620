package lifecycle

import (
	"time"

	"github.com/kilianp07/faultfleet/core/model"
)

// The helpers below update status and assignment together. On error the
// entity is left untouched.

// AssignFault moves a waiting fault to pending_confirmation for vehicleID.
func AssignFault(f *model.Fault, vehicleID string) error {
	st, err := NextFault(f.Status, EventDispatch)
	if err != nil {
		return err
	}
	f.Status = st
	f.AssignedVehicleID = vehicleID
	return nil
}

// AcknowledgeFault confirms a pending fault.
func AcknowledgeFault(f *model.Fault) error {
	st, err := NextFault(f.Status, EventAcknowledge)
	if err != nil {
		return err
	}
	f.Status = st
	return nil
}

// ResetFault returns a pending fault to waiting after an ack timeout.
func ResetFault(f *model.Fault) error {
	st, err := NextFault(f.Status, EventAckTimeout)
	if err != nil {
		return err
	}
	f.Status = st
	f.AssignedVehicleID = ""
	return nil
}

// ResolveFault closes an assigned fault and records who resolved it.
func ResolveFault(f *model.Fault, at time.Time) error {
	st, err := NextFault(f.Status, EventResolve)
	if err != nil {
		return err
	}
	f.Status = st
	f.ResolvedBy = f.AssignedVehicleID
	f.AssignedVehicleID = ""
	f.ResolvedAt = &at
	f.UpdatedAt = at
	return nil
}

// DispatchVehicle sends an available vehicle to faultID.
func DispatchVehicle(v *model.Vehicle, faultID string) error {
	st, err := NextVehicle(v.Status, EventDispatch)
	if err != nil {
		return err
	}
	v.Status = st
	v.AssignedFaultID = faultID
	return nil
}

// ArriveVehicle marks an on-route vehicle as working on site.
func ArriveVehicle(v *model.Vehicle) error {
	st, err := NextVehicle(v.Status, EventArrive)
	if err != nil {
		return err
	}
	v.Status = st
	return nil
}

// CorrectVehicle reverts a working vehicle that is not on site to onRoute.
func CorrectVehicle(v *model.Vehicle) error {
	st, err := NextVehicle(v.Status, EventCorrect)
	if err != nil {
		return err
	}
	v.Status = st
	return nil
}

// ReleaseVehicle frees a working vehicle after resolution.
func ReleaseVehicle(v *model.Vehicle) error {
	st, err := NextVehicle(v.Status, EventResolve)
	if err != nil {
		return err
	}
	v.Status = st
	v.AssignedFaultID = ""
	return nil
}

// TimeoutVehicle frees an on-route vehicle that never acknowledged.
func TimeoutVehicle(v *model.Vehicle) error {
	st, err := NextVehicle(v.Status, EventAckTimeout)
	if err != nil {
		return err
	}
	v.Status = st
	v.AssignedFaultID = ""
	return nil
}
