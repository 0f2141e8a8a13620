// Package fleet implements the intake of faults and vehicles and the
// guarded vehicle-status write path.
package fleet

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/faultfleet/core/dispatch"
	"github.com/kilianp07/faultfleet/core/events"
	"github.com/kilianp07/faultfleet/core/lifecycle"
	"github.com/kilianp07/faultfleet/core/logger"
	"github.com/kilianp07/faultfleet/core/model"
	"github.com/kilianp07/faultfleet/core/store"
	"github.com/kilianp07/faultfleet/internal/eventbus"
	"github.com/kilianp07/faultfleet/internal/keylock"
)

// ErrInvalidInput is returned for malformed fault, vehicle or status input.
var ErrInvalidInput = errors.New("invalid input")

// Dispatcher receives dispatch requests.
type Dispatcher interface {
	Submit(req dispatch.Request) bool
	Sweep(ctx context.Context)
}

// Arrivals marks out-of-band arrivals.
type Arrivals interface {
	MarkArrived(ctx context.Context, vehicleID string) (model.Vehicle, error)
}

// Resolver closes faults on manual request.
type Resolver interface {
	ResolveNow(ctx context.Context, vehicleID, faultID string) error
}

// FaultInput is a new fault as reported by the intake surface.
type FaultInput struct {
	Category string      `json:"category"`
	Severity string      `json:"severity"`
	Location model.Point `json:"location"`
	Detail   string      `json:"detail,omitempty"`
}

// Service coordinates writes that start outside the dispatch loop.
type Service struct {
	store      store.Store
	locks      *keylock.Locker
	dispatcher Dispatcher
	arrivals   Arrivals
	resolver   Resolver
	bus        eventbus.Publisher
	log        logger.Logger
	now        func() time.Time
}

// Deps are the collaborators of a Service. Bus and Logger are optional.
type Deps struct {
	Store      store.Store
	Locks      *keylock.Locker
	Dispatcher Dispatcher
	Arrivals   Arrivals
	Resolver   Resolver
	Bus        eventbus.Publisher
	Logger     logger.Logger
}

// NewService creates a Service.
func NewService(d Deps) (*Service, error) {
	if d.Store == nil || d.Locks == nil || d.Dispatcher == nil || d.Arrivals == nil || d.Resolver == nil {
		return nil, fmt.Errorf("fleet: nil dependency provided to NewService")
	}
	s := &Service{
		store:      d.Store,
		locks:      d.Locks,
		dispatcher: d.Dispatcher,
		arrivals:   d.Arrivals,
		resolver:   d.Resolver,
		bus:        d.Bus,
		log:        d.Logger,
		now:        time.Now,
	}
	if s.bus == nil {
		s.bus = eventbus.Nop{}
	}
	if s.log == nil {
		s.log = logger.Nop{}
	}
	return s, nil
}

// CreateFault stores a waiting fault and requests its dispatch.
func (s *Service) CreateFault(ctx context.Context, in FaultInput) (model.Fault, error) {
	sev, err := model.ParseSeverity(in.Severity)
	if err != nil {
		return model.Fault{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	now := s.now()
	f := model.Fault{
		ID:        uuid.NewString(),
		Category:  strings.TrimSpace(in.Category),
		Severity:  sev,
		Location:  in.Location,
		Detail:    in.Detail,
		Status:    model.FaultWaiting,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := f.Validate(); err != nil {
		return model.Fault{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if err := s.store.SaveFault(ctx, f); err != nil {
		return model.Fault{}, fmt.Errorf("save fault: %w", err)
	}
	s.bus.Publish(events.FaultStatusChanged{FaultID: f.ID, To: f.Status, Reason: "created", At: now})
	if !s.dispatcher.Submit(dispatch.Request{FaultID: f.ID, Trigger: dispatch.TriggerFaultCreated}) {
		s.log.Warnf("fault %s left for the next sweep", f.ID)
	}
	s.log.Infof("fault %s created (%s, %s)", f.ID, f.Category, f.Severity)
	return f, nil
}

// RegisterVehicle creates or updates the static attributes of a vehicle.
// New vehicles start available; the lifecycle fields and fatigue of known
// vehicles are kept as stored.
func (s *Service) RegisterVehicle(ctx context.Context, in model.Vehicle) (model.Vehicle, error) {
	if err := in.Validate(); err != nil {
		return model.Vehicle{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if !in.Position.IsZero() {
		if err := in.Position.Validate(); err != nil {
			return model.Vehicle{}, fmt.Errorf("%w: position: %v", ErrInvalidInput, err)
		}
	}
	unlock := s.locks.Lock(keylock.VehicleKey(in.ID))
	v, err := s.store.GetVehicle(ctx, in.ID)
	created := false
	switch {
	case errors.Is(err, model.ErrNotFound):
		v = model.Vehicle{ID: in.ID, Status: model.VehicleAvailable, FatigueCount: in.FatigueCount}
		created = true
	case err != nil:
		unlock()
		return model.Vehicle{}, err
	}
	v.Name = in.Name
	v.HasHardware = in.HasHardware
	v.PerformanceRatio = in.PerformanceRatio
	if !in.Position.IsZero() {
		v.Position = in.Position
		v.PositionAt = s.now()
	}
	err = s.store.SaveVehicle(ctx, v)
	unlock()
	if err != nil {
		return model.Vehicle{}, fmt.Errorf("save vehicle %s: %w", v.ID, err)
	}
	if created {
		s.bus.Publish(events.VehicleStatusChanged{VehicleID: v.ID, To: v.Status, Reason: "registered", At: s.now()})
	}
	if v.Status == model.VehicleAvailable {
		s.dispatcher.Sweep(ctx)
	}
	return v, nil
}

// SetVehicleStatus applies an externally requested status. Only two
// changes are accepted: onRoute to working, treated as an arrival, and
// working to available, treated as a manual closure of the fault. Asking
// for the current status is a no-op; anything else fails with
// lifecycle.ErrIllegalTransition.
func (s *Service) SetVehicleStatus(ctx context.Context, vehicleID, status string) (model.Vehicle, error) {
	to, err := model.ParseVehicleStatus(status)
	if err != nil {
		return model.Vehicle{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	v, err := s.store.GetVehicle(ctx, vehicleID)
	if err != nil {
		return model.Vehicle{}, err
	}
	switch {
	case v.Status == to:
		return v, nil
	case v.Status == model.VehicleOnRoute && to == model.VehicleWorking:
		return s.arrivals.MarkArrived(ctx, vehicleID)
	case v.Status == model.VehicleWorking && to == model.VehicleAvailable:
		return s.close(ctx, vehicleID)
	}
	return v, fmt.Errorf("%w: vehicle %s from %s to %s", lifecycle.ErrIllegalTransition, vehicleID, v.Status, to)
}

func (s *Service) close(ctx context.Context, vehicleID string) (model.Vehicle, error) {
	v, unlock, err := store.LockVehicle(ctx, s.store, s.locks, vehicleID)
	if err != nil {
		return model.Vehicle{}, err
	}
	if v.Status != model.VehicleWorking {
		unlock()
		return v, fmt.Errorf("%w: vehicle %s is %s", lifecycle.ErrIllegalTransition, vehicleID, v.Status)
	}
	err = s.resolver.ResolveNow(ctx, vehicleID, v.AssignedFaultID)
	if err == nil {
		v, err = s.store.GetVehicle(ctx, vehicleID)
	}
	unlock()
	if err != nil {
		return model.Vehicle{}, err
	}
	s.dispatcher.Sweep(ctx)
	return v, nil
}
