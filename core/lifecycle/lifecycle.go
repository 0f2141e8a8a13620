// Package lifecycle holds the legal fault and vehicle transitions. Every
// component mutating a status goes through these helpers so that illegal
// requests are rejected instead of coerced.
package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"github.com/looplab/fsm"

	"github.com/kilianp07/faultfleet/core/model"
)

// ErrIllegalTransition is returned when a requested transition is not part
// of the state machine.
var ErrIllegalTransition = errors.New("illegal transition")

// Event names a lifecycle edge.
type Event string

const (
	EventDispatch    Event = "dispatch"
	EventAcknowledge Event = "acknowledge"
	EventAckTimeout  Event = "ack_timeout"
	EventArrive      Event = "arrive"
	EventCorrect     Event = "self_correct"
	EventResolve     Event = "resolve"
)

var faultEvents = fsm.Events{
	{Name: string(EventDispatch), Src: []string{string(model.FaultWaiting)}, Dst: string(model.FaultPendingConfirmation)},
	{Name: string(EventAcknowledge), Src: []string{string(model.FaultPendingConfirmation)}, Dst: string(model.FaultAssigned)},
	{Name: string(EventAckTimeout), Src: []string{string(model.FaultPendingConfirmation)}, Dst: string(model.FaultWaiting)},
	{Name: string(EventResolve), Src: []string{string(model.FaultAssigned)}, Dst: string(model.FaultResolved)},
}

var vehicleEvents = fsm.Events{
	{Name: string(EventDispatch), Src: []string{string(model.VehicleAvailable)}, Dst: string(model.VehicleOnRoute)},
	{Name: string(EventArrive), Src: []string{string(model.VehicleOnRoute)}, Dst: string(model.VehicleWorking)},
	{Name: string(EventResolve), Src: []string{string(model.VehicleWorking)}, Dst: string(model.VehicleAvailable)},
	{Name: string(EventCorrect), Src: []string{string(model.VehicleWorking)}, Dst: string(model.VehicleOnRoute)},
	{Name: string(EventAckTimeout), Src: []string{string(model.VehicleOnRoute)}, Dst: string(model.VehicleAvailable)},
}

func next(events fsm.Events, from string, ev Event) (string, error) {
	m := fsm.NewFSM(from, events, fsm.Callbacks{})
	if err := m.Event(context.Background(), string(ev)); err != nil {
		return "", fmt.Errorf("%w: %s from %q", ErrIllegalTransition, ev, from)
	}
	return m.Current(), nil
}

// NextFault returns the fault status reached by ev from the given status.
func NextFault(from model.FaultStatus, ev Event) (model.FaultStatus, error) {
	s, err := next(faultEvents, string(from), ev)
	return model.FaultStatus(s), err
}

// NextVehicle returns the vehicle status reached by ev from the given status.
func NextVehicle(from model.VehicleStatus, ev Event) (model.VehicleStatus, error) {
	s, err := next(vehicleEvents, string(from), ev)
	return model.VehicleStatus(s), err
}

// CanVehicle reports whether ev is legal for a vehicle in status from.
func CanVehicle(from model.VehicleStatus, ev Event) bool {
	return fsm.NewFSM(string(from), vehicleEvents, fsm.Callbacks{}).Can(string(ev))
}
