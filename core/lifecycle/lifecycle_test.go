package lifecycle

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/faultfleet/core/model"
)

func TestFaultTransitions(t *testing.T) {
	legal := []struct {
		from model.FaultStatus
		ev   Event
		to   model.FaultStatus
	}{
		{model.FaultWaiting, EventDispatch, model.FaultPendingConfirmation},
		{model.FaultPendingConfirmation, EventAcknowledge, model.FaultAssigned},
		{model.FaultPendingConfirmation, EventAckTimeout, model.FaultWaiting},
		{model.FaultAssigned, EventResolve, model.FaultResolved},
	}
	for _, c := range legal {
		got, err := NextFault(c.from, c.ev)
		require.NoError(t, err)
		assert.Equal(t, c.to, got)
	}
	illegal := []struct {
		from model.FaultStatus
		ev   Event
	}{
		{model.FaultWaiting, EventResolve},
		{model.FaultAssigned, EventAckTimeout},
		{model.FaultResolved, EventDispatch},
		{model.FaultPendingConfirmation, EventResolve},
	}
	for _, c := range illegal {
		_, err := NextFault(c.from, c.ev)
		if !errors.Is(err, ErrIllegalTransition) {
			t.Fatalf("%s from %s: expected illegal transition, got %v", c.ev, c.from, err)
		}
	}
}

func TestVehicleTransitions(t *testing.T) {
	got, err := NextVehicle(model.VehicleWorking, EventCorrect)
	require.NoError(t, err)
	assert.Equal(t, model.VehicleOnRoute, got)

	_, err = NextVehicle(model.VehicleWorking, EventDispatch)
	assert.ErrorIs(t, err, ErrIllegalTransition)
	_, err = NextVehicle(model.VehicleAvailable, EventArrive)
	assert.ErrorIs(t, err, ErrIllegalTransition)

	assert.True(t, CanVehicle(model.VehicleOnRoute, EventAckTimeout))
	assert.False(t, CanVehicle(model.VehicleWorking, EventAckTimeout))
}

func TestApplyKeepsAssignmentInSync(t *testing.T) {
	f := model.Fault{ID: "f1", Status: model.FaultWaiting}
	v := model.Vehicle{ID: "v1", Status: model.VehicleAvailable}

	require.NoError(t, AssignFault(&f, v.ID))
	require.NoError(t, DispatchVehicle(&v, f.ID))
	assert.Equal(t, "v1", f.AssignedVehicleID)
	assert.Equal(t, "f1", v.AssignedFaultID)

	require.NoError(t, ResetFault(&f))
	require.NoError(t, TimeoutVehicle(&v))
	assert.Empty(t, f.AssignedVehicleID)
	assert.Empty(t, v.AssignedFaultID)

	require.NoError(t, AssignFault(&f, v.ID))
	require.NoError(t, DispatchVehicle(&v, f.ID))
	require.NoError(t, AcknowledgeFault(&f))
	require.NoError(t, ArriveVehicle(&v))
	now := time.Now()
	require.NoError(t, ResolveFault(&f, now))
	require.NoError(t, ReleaseVehicle(&v))
	assert.Equal(t, model.FaultResolved, f.Status)
	assert.Empty(t, f.AssignedVehicleID)
	assert.Equal(t, "v1", f.ResolvedBy)
	assert.Equal(t, model.VehicleAvailable, v.Status)
	assert.Empty(t, v.AssignedFaultID)
}

func TestApplyLeavesEntityOnError(t *testing.T) {
	v := model.Vehicle{ID: "v1", Status: model.VehicleWorking, AssignedFaultID: "f1"}
	err := DispatchVehicle(&v, "f2")
	assert.ErrorIs(t, err, ErrIllegalTransition)
	assert.Equal(t, model.VehicleWorking, v.Status)
	assert.Equal(t, "f1", v.AssignedFaultID)
}
