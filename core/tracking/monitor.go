// Package tracking turns the position stream into arrivals, status
// self-corrections and route recalculations.
package tracking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/faultfleet/core/dispatch"
	"github.com/kilianp07/faultfleet/core/events"
	"github.com/kilianp07/faultfleet/core/geo"
	"github.com/kilianp07/faultfleet/core/lifecycle"
	"github.com/kilianp07/faultfleet/core/logger"
	"github.com/kilianp07/faultfleet/core/metrics"
	"github.com/kilianp07/faultfleet/core/model"
	"github.com/kilianp07/faultfleet/core/routing"
	"github.com/kilianp07/faultfleet/core/store"
	"github.com/kilianp07/faultfleet/internal/eventbus"
	"github.com/kilianp07/faultfleet/internal/keylock"
)

// Route-replacement reasons.
const (
	ReasonDeviation      = "deviation"
	ReasonSelfCorrection = "self_correction"
)

// Router computes paths and distances with graceful degradation.
type Router interface {
	Route(ctx context.Context, from, to model.Point) (routing.Result, error)
	Distance(ctx context.Context, from, to model.Point) (float64, error)
}

// Timers controls the per-vehicle auto-resolution timer.
type Timers interface {
	Start(vehicleID, faultID string)
	Cancel(vehicleID string) bool
}

// Acknowledger settles pending dispatch attempts. Both methods are called
// with the fault lock held.
type Acknowledger interface {
	ReleaseAttempt(faultID string) (dispatch.Attempt, bool)
	RecordAck(faultID, vehicleID string, dispatchedAt time.Time, implicit bool)
}

// Recorder receives accepted positions and issued routes.
type Recorder interface {
	metrics.PositionRecorder
	metrics.RouteRecorder
}

// Outcome summarizes what a sample changed.
type Outcome struct {
	VehicleID string              `json:"vehicle_id"`
	Status    model.VehicleStatus `json:"status"`
	FaultID   string              `json:"fault_id,omitempty"`
	// DistanceM is the distance to the active fault, zero when none is tracked.
	DistanceM    float64 `json:"distance_m,omitempty"`
	Arrived      bool    `json:"arrived"`
	Corrected    bool    `json:"corrected"`
	Recalculated bool    `json:"recalculated"`
}

// Monitor is safe for concurrent use. Samples of different vehicles are
// processed in parallel; a vehicle and its fault are locked per sample.
type Monitor struct {
	cfg    Config
	store  store.Store
	router Router
	timers Timers
	locks  *keylock.Locker
	acker  Acknowledger
	bus    eventbus.Publisher
	rec    Recorder
	log    logger.Logger
	now    func() time.Time
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithBus publishes lifecycle notifications on b.
func WithBus(b eventbus.Publisher) Option { return func(m *Monitor) { m.bus = b } }

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option { return func(m *Monitor) { m.log = l } }

// WithAcknowledger lets arrivals confirm pending dispatches.
func WithAcknowledger(a Acknowledger) Option { return func(m *Monitor) { m.acker = a } }

// WithRecorder forwards positions and routes to r.
func WithRecorder(r Recorder) Option { return func(m *Monitor) { m.rec = r } }

// New creates a Monitor.
func New(cfg Config, st store.Store, router Router, timers Timers, locks *keylock.Locker, opts ...Option) *Monitor {
	cfg.SetDefaults()
	m := &Monitor{
		cfg:    cfg,
		store:  st,
		router: router,
		timers: timers,
		locks:  locks,
		bus:    eventbus.Nop{},
		rec:    metrics.NopSink{},
		log:    logger.Nop{},
		now:    time.Now,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// ExpectedPosition interpolates where a vehicle following r at speedMS
// should be at the given time.
func ExpectedPosition(r model.Route, at time.Time, speedMS float64) model.Point {
	elapsed := at.Sub(r.StartedAt).Seconds()
	return geo.Interpolate(r.Waypoints, elapsed*speedMS)
}

// activeFault returns the fault a travelling or working vehicle serves.
func (m *Monitor) activeFault(ctx context.Context, v model.Vehicle) (model.Fault, bool) {
	if v.AssignedFaultID == "" || (v.Status != model.VehicleOnRoute && v.Status != model.VehicleWorking) {
		return model.Fault{}, false
	}
	f, err := m.store.GetFault(ctx, v.AssignedFaultID)
	if err != nil {
		m.log.Warnf("vehicle %s: load fault %s: %v", v.ID, v.AssignedFaultID, err)
		return model.Fault{}, false
	}
	if !f.Status.Active() || !f.HasLocation() {
		return model.Fault{}, false
	}
	return f, true
}

func (m *Monitor) distance(ctx context.Context, from, to model.Point) float64 {
	d, err := m.router.Distance(ctx, from, to)
	if err != nil {
		return geo.Distance(from, to)
	}
	return d
}

// HandleSample applies one position report. Invalid samples are rejected
// with model.ErrInvalidSample before any state is read.
func (m *Monitor) HandleSample(ctx context.Context, s model.PositionSample) (Outcome, error) {
	if err := s.Validate(); err != nil {
		samples.WithLabelValues("rejected").Inc()
		return Outcome{}, err
	}
	v, unlock, err := store.LockVehicle(ctx, m.store, m.locks, s.VehicleID)
	if err != nil {
		samples.WithLabelValues("error").Inc()
		return Outcome{}, err
	}
	defer unlock()

	now := m.now()
	at := s.Timestamp
	if at.IsZero() {
		at = now
	}
	pos := s.Point()
	out := Outcome{VehicleID: v.ID, FaultID: v.AssignedFaultID}
	from := v.Status
	v.Position, v.PositionAt = pos, at

	f, tracked := m.activeFault(ctx, v)
	if tracked {
		out.DistanceM = m.distance(ctx, pos, f.Location)
		onSite := out.DistanceM <= m.cfg.ArrivalThresholdM
		switch {
		case onSite && v.Status == model.VehicleOnRoute:
			if err := m.confirm(ctx, &f, v.ID, now); err != nil {
				return out, err
			}
			if err := lifecycle.ArriveVehicle(&v); err != nil {
				return out, err
			}
			out.Arrived = true
		case !onSite && v.Status == model.VehicleWorking:
			if err := lifecycle.CorrectVehicle(&v); err != nil {
				return out, err
			}
			out.Corrected = true
		}
	}
	if err := m.store.SaveVehicle(ctx, v); err != nil {
		samples.WithLabelValues("error").Inc()
		return out, fmt.Errorf("save vehicle %s: %w", v.ID, err)
	}
	out.Status = v.Status

	speed := s.Speed
	if out.Arrived {
		speed = 0
	}
	m.recordPosition(ctx, v, speed, out.Arrived, at)

	switch {
	case out.Arrived:
		m.bus.Publish(events.VehicleStatusChanged{VehicleID: v.ID, From: from, To: v.Status, FaultID: f.ID, Reason: "arrival", At: now})
		m.onArrival(ctx, v, f, now)
	case out.Corrected:
		corrections.Inc()
		m.timers.Cancel(v.ID)
		m.log.Warnf("vehicle %s marked working %.0fm away from fault %s, reverting to onRoute", v.ID, out.DistanceM, f.ID)
		m.bus.Publish(events.VehicleStatusChanged{VehicleID: v.ID, From: from, To: v.Status, FaultID: f.ID, Reason: ReasonSelfCorrection, At: now})
		m.reissue(ctx, v, f, pos, now, ReasonSelfCorrection)
	case tracked && v.Status == model.VehicleOnRoute:
		out.Recalculated = m.checkDeviation(ctx, v, f, pos, out.DistanceM, now)
	}
	samples.WithLabelValues("accepted").Inc()
	return out, nil
}

// MarkArrived moves an onRoute vehicle to working at its last known
// position, as if a sample had been received on site. It is a no-op for a
// vehicle that is already working.
func (m *Monitor) MarkArrived(ctx context.Context, vehicleID string) (model.Vehicle, error) {
	v, unlock, err := store.LockVehicle(ctx, m.store, m.locks, vehicleID)
	if err != nil {
		return model.Vehicle{}, err
	}
	defer unlock()
	if v.Status == model.VehicleWorking {
		return v, nil
	}
	f, ok := m.activeFault(ctx, v)
	if !ok {
		return v, fmt.Errorf("%w: vehicle %s has no active fault", lifecycle.ErrIllegalTransition, v.ID)
	}
	from := v.Status
	if !lifecycle.CanVehicle(from, lifecycle.EventArrive) {
		return v, fmt.Errorf("%w: arrive from %q", lifecycle.ErrIllegalTransition, from)
	}
	now := m.now()
	if err := m.confirm(ctx, &f, v.ID, now); err != nil {
		return v, err
	}
	if err := lifecycle.ArriveVehicle(&v); err != nil {
		return v, err
	}
	if err := m.store.SaveVehicle(ctx, v); err != nil {
		return v, fmt.Errorf("save vehicle %s: %w", v.ID, err)
	}
	if v.HasPosition() {
		m.recordPosition(ctx, v, 0, true, now)
	}
	m.bus.Publish(events.VehicleStatusChanged{VehicleID: v.ID, From: from, To: v.Status, FaultID: f.ID, Reason: "status_update", At: now})
	m.onArrival(ctx, v, f, now)
	return v, nil
}

// confirm acknowledges a fault still awaiting confirmation: reaching the
// site implies the order was accepted.
func (m *Monitor) confirm(ctx context.Context, f *model.Fault, vehicleID string, now time.Time) error {
	if f.Status != model.FaultPendingConfirmation {
		return nil
	}
	from := f.Status
	if err := lifecycle.AcknowledgeFault(f); err != nil {
		return err
	}
	f.UpdatedAt = now
	if err := m.store.SaveFault(ctx, *f); err != nil {
		return fmt.Errorf("save fault %s: %w", f.ID, err)
	}
	var dispatchedAt time.Time
	if m.acker != nil {
		if a, ok := m.acker.ReleaseAttempt(f.ID); ok {
			dispatchedAt = a.At
		}
	}
	m.bus.Publish(events.FaultStatusChanged{FaultID: f.ID, From: from, To: f.Status, VehicleID: vehicleID, Reason: "arrival", At: now})
	if m.acker != nil {
		m.acker.RecordAck(f.ID, vehicleID, dispatchedAt, true)
	}
	return nil
}

func (m *Monitor) onArrival(ctx context.Context, v model.Vehicle, f model.Fault, now time.Time) {
	arrivals.Inc()
	if _, err := m.store.CloseActiveRoute(ctx, v.ID, model.RouteCompleted, now); err != nil {
		m.log.Errorf("complete route of %s: %v", v.ID, err)
	}
	m.timers.Start(v.ID, f.ID)
	m.log.Infof("vehicle %s arrived at fault %s", v.ID, f.ID)
}

func (m *Monitor) recordPosition(ctx context.Context, v model.Vehicle, speed float64, arrival bool, at time.Time) {
	snap := model.PositionSnapshot{
		VehicleID:  v.ID,
		Position:   v.Position,
		Speed:      speed,
		Status:     v.Status,
		Arrival:    arrival,
		RecordedAt: at,
	}
	if err := m.store.AppendPosition(ctx, snap); err != nil {
		m.log.Errorf("store position of %s: %v", v.ID, err)
	}
	if err := m.rec.RecordPosition(metrics.PositionEvent{
		VehicleID: v.ID, Position: v.Position, Speed: speed, Status: v.Status, Arrival: arrival, Time: at,
	}); err != nil {
		m.log.Errorf("position metrics error: %v", err)
	}
}

// checkDeviation re-issues the route when the vehicle is far from where
// its route says it should be, far from the destination, and the route is
// old enough.
func (m *Monitor) checkDeviation(ctx context.Context, v model.Vehicle, f model.Fault, pos model.Point, toDest float64, now time.Time) bool {
	r, err := m.store.ActiveRoute(ctx, v.ID)
	if err != nil {
		if !errors.Is(err, model.ErrNotFound) {
			m.log.Errorf("load route of %s: %v", v.ID, err)
		}
		return false
	}
	dev := geo.Distance(pos, ExpectedPosition(r, now, m.cfg.speedMS()))
	routeDeviationM.Observe(dev)
	if dev <= m.cfg.DeviationThresholdM || toDest <= m.cfg.DestinationGuardM || now.Sub(r.StartedAt) <= m.cfg.minRouteAge() {
		return false
	}
	m.log.Debugw("route deviation", map[string]any{"vehicle": v.ID, "deviation_m": dev, "to_destination_m": toDest})
	if !m.reissue(ctx, v, f, pos, now, ReasonDeviation) {
		return false
	}
	recalculations.Inc()
	return true
}

// reissue replaces the active route of v with a fresh one from pos whose
// interpolation clock starts now.
func (m *Monitor) reissue(ctx context.Context, v model.Vehicle, f model.Fault, pos model.Point, now time.Time, reason string) bool {
	res, err := m.router.Route(ctx, pos, f.Location)
	if err != nil {
		m.log.Errorf("route %s to fault %s: %v", v.ID, f.ID, err)
		return false
	}
	r := model.Route{
		ID:        uuid.NewString(),
		VehicleID: v.ID,
		FaultID:   f.ID,
		Waypoints: res.Path,
		DistanceM: res.DistanceM,
		DurationS: res.DurationS,
		Source:    res.Source,
		Fallback:  res.Fallback,
		StartedAt: now,
	}
	prev, err := m.store.ReplaceActiveRoute(ctx, r)
	if err != nil {
		m.log.Errorf("store route of %s: %v", v.ID, err)
		return false
	}
	m.bus.Publish(events.RouteReplaced{VehicleID: v.ID, FaultID: f.ID, PreviousRouteID: prev, RouteID: r.ID,
		Source: r.Source, Fallback: r.Fallback, Reason: reason, At: now})
	if err := m.rec.RecordRoute(metrics.RouteEvent{RouteID: r.ID, VehicleID: v.ID, FaultID: f.ID, Source: r.Source,
		Fallback: r.Fallback, DistanceM: r.DistanceM, DurationS: r.DurationS, Reason: reason, Time: now}); err != nil {
		m.log.Errorf("route metrics error: %v", err)
	}
	return true
}
