package store

import (
	"context"
	"fmt"

	"github.com/kilianp07/faultfleet/core/model"
	"github.com/kilianp07/faultfleet/internal/keylock"
)

// LockVehicle acquires the lock of the vehicle's assigned fault, if any,
// then the vehicle lock, and returns the vehicle as read under both. The
// returned func releases the locks.
func LockVehicle(ctx context.Context, vs Vehicles, locks *keylock.Locker, vehicleID string) (model.Vehicle, func(), error) {
	for i := 0; i < 3; i++ {
		v, err := vs.GetVehicle(ctx, vehicleID)
		if err != nil {
			return model.Vehicle{}, nil, err
		}
		faultID := v.AssignedFaultID
		unlockF := func() {}
		if faultID != "" {
			unlockF = locks.Lock(keylock.FaultKey(faultID))
		}
		unlockV := locks.Lock(keylock.VehicleKey(vehicleID))
		unlock := func() {
			unlockV()
			unlockF()
		}
		v, err = vs.GetVehicle(ctx, vehicleID)
		if err != nil {
			unlock()
			return model.Vehicle{}, nil, err
		}
		if v.AssignedFaultID == faultID {
			return v, unlock, nil
		}
		unlock()
	}
	return model.Vehicle{}, nil, fmt.Errorf("vehicle %s: assignment changed while locking", vehicleID)
}
