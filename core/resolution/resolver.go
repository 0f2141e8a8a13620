// Package resolution closes faults automatically after a vehicle has spent
// a fixed time on site.
package resolution

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kilianp07/faultfleet/core/dispatch"
	"github.com/kilianp07/faultfleet/core/events"
	"github.com/kilianp07/faultfleet/core/lifecycle"
	"github.com/kilianp07/faultfleet/core/logger"
	"github.com/kilianp07/faultfleet/core/model"
	"github.com/kilianp07/faultfleet/core/scheduler"
	"github.com/kilianp07/faultfleet/core/store"
	"github.com/kilianp07/faultfleet/internal/eventbus"
	"github.com/kilianp07/faultfleet/internal/keylock"
)

const keyPrefix = "resolve/"

// Trigger values reported in events and metrics.
const (
	TriggerTimer  = "auto_resolve"
	TriggerManual = "manual_close"
)

// AttemptReleaser forgets the dispatch bookkeeping of a fault.
type AttemptReleaser interface {
	ReleaseAttempt(faultID string) (dispatch.Attempt, bool)
}

// Resolver owns at most one pending timer per vehicle.
type Resolver struct {
	store    store.Store
	sched    *scheduler.Scheduler
	locks    *keylock.Locker
	bus      eventbus.Publisher
	releaser AttemptReleaser
	log      logger.Logger
	delay    time.Duration
	now      func() time.Time
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithBus publishes lifecycle notifications on b.
func WithBus(b eventbus.Publisher) Option { return func(r *Resolver) { r.bus = b } }

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option { return func(r *Resolver) { r.log = l } }

// WithReleaser clears the dispatch state of resolved faults.
func WithReleaser(rel AttemptReleaser) Option { return func(r *Resolver) { r.releaser = rel } }

// New creates a Resolver.
func New(cfg Config, st store.Store, sched *scheduler.Scheduler, locks *keylock.Locker, opts ...Option) *Resolver {
	r := &Resolver{
		store: st,
		sched: sched,
		locks: locks,
		bus:   eventbus.Nop{},
		log:   logger.Nop{},
		delay: cfg.Delay(),
		now:   time.Now,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Start schedules the resolution of faultID by vehicleID, superseding any
// timer the vehicle already owns.
func (r *Resolver) Start(vehicleID, faultID string) {
	r.sched.Schedule(keyPrefix+vehicleID, r.delay, func(h scheduler.Handle) {
		r.fire(h, faultID)
	})
	r.log.Debugf("auto-resolution of fault %s by %s in %s", faultID, vehicleID, r.delay)
}

// Cancel drops the pending timer of vehicleID. A timer that already fired
// but has not run yet becomes a no-op.
func (r *Resolver) Cancel(vehicleID string) bool {
	if r.sched.Cancel(keyPrefix + vehicleID) {
		timersCancelled.Inc()
		return true
	}
	return false
}

// Pending reports whether vehicleID owns a timer.
func (r *Resolver) Pending(vehicleID string) bool {
	return r.sched.Pending(keyPrefix + vehicleID)
}

func (r *Resolver) fire(h scheduler.Handle, faultID string) {
	vehicleID := strings.TrimPrefix(h.Key, keyPrefix)
	unlockF := r.locks.Lock(keylock.FaultKey(faultID))
	defer unlockF()
	unlockV := r.locks.Lock(keylock.VehicleKey(vehicleID))
	defer unlockV()
	if !r.sched.Claim(h) {
		return
	}
	if err := r.resolve(context.Background(), vehicleID, faultID, TriggerTimer); err != nil {
		r.log.Errorf("auto-resolve fault %s: %v", faultID, err)
	}
}

// ResolveNow cancels the timer of vehicleID and resolves faultID at once.
// Callers must hold the fault and vehicle locks.
func (r *Resolver) ResolveNow(ctx context.Context, vehicleID, faultID string) error {
	r.sched.Cancel(keyPrefix + vehicleID)
	return r.resolve(ctx, vehicleID, faultID, TriggerManual)
}

// resolve closes the fault and frees the vehicle. Each write is attempted
// even if an earlier one failed.
func (r *Resolver) resolve(ctx context.Context, vehicleID, faultID, trigger string) error {
	f, err := r.store.GetFault(ctx, faultID)
	if err != nil {
		return fmt.Errorf("load fault %s: %w", faultID, err)
	}
	if f.Status == model.FaultResolved {
		r.log.Debugf("fault %s already resolved, ignoring %s", faultID, trigger)
		return nil
	}
	now := r.now()
	if r.releaser != nil {
		r.releaser.ReleaseAttempt(faultID)
	}

	from := f.Status
	if f.Status == model.FaultPendingConfirmation {
		if err := lifecycle.AcknowledgeFault(&f); err != nil {
			return err
		}
	}
	if err := lifecycle.ResolveFault(&f, now); err != nil {
		return err
	}
	if f.ResolvedBy == "" {
		f.ResolvedBy = vehicleID
	}
	if err := r.store.SaveFault(ctx, f); err != nil {
		r.failed("save resolved fault %s: %v", faultID, err)
	} else {
		r.bus.Publish(events.FaultStatusChanged{FaultID: faultID, From: from, To: f.Status, VehicleID: vehicleID, Reason: trigger, At: now})
	}

	v, err := r.store.GetVehicle(ctx, vehicleID)
	if err != nil {
		r.failed("load vehicle %s: %v", vehicleID, err)
	} else {
		if _, err := r.store.CloseOpenTrip(ctx, vehicleID, v.Position, now); err != nil {
			r.failed("close trip of %s: %v", vehicleID, err)
		}
		r.releaseVehicle(ctx, v, faultID, trigger, now)
	}
	if _, err := r.store.CloseActiveRoute(ctx, vehicleID, model.RouteCancelled, now); err != nil {
		r.failed("cancel route of %s: %v", vehicleID, err)
	}
	if _, err := r.store.SolveAlert(ctx, faultID, vehicleID, now); err != nil {
		r.failed("solve alert of fault %s: %v", faultID, err)
	}
	resolutions.WithLabelValues(trigger).Inc()
	r.log.Infof("fault %s resolved by %s (%s)", faultID, vehicleID, trigger)
	return nil
}

func (r *Resolver) releaseVehicle(ctx context.Context, v model.Vehicle, faultID, trigger string, now time.Time) {
	if v.AssignedFaultID != faultID || v.Status != model.VehicleWorking {
		r.log.Warnf("vehicle %s is %s for fault %q, not releasing", v.ID, v.Status, v.AssignedFaultID)
		return
	}
	from := v.Status
	if err := lifecycle.ReleaseVehicle(&v); err != nil {
		r.failed("release vehicle %s: %v", v.ID, err)
		return
	}
	v.FatigueCount++
	if err := r.store.SaveVehicle(ctx, v); err != nil {
		r.failed("save released vehicle %s: %v", v.ID, err)
		return
	}
	r.bus.Publish(events.VehicleStatusChanged{VehicleID: v.ID, From: from, To: v.Status, FaultID: faultID, Reason: trigger, At: now})
}

func (r *Resolver) failed(format string, args ...any) {
	writeFailures.Inc()
	r.log.Errorf(format, args...)
}
