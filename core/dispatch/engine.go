// Package dispatch selects vehicles for waiting faults and owns the
// acknowledgment timeout and re-dispatch cycle.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/faultfleet/core/dispatch/logging"
	"github.com/kilianp07/faultfleet/core/events"
	"github.com/kilianp07/faultfleet/core/geo"
	"github.com/kilianp07/faultfleet/core/lifecycle"
	"github.com/kilianp07/faultfleet/core/logger"
	"github.com/kilianp07/faultfleet/core/metrics"
	"github.com/kilianp07/faultfleet/core/model"
	"github.com/kilianp07/faultfleet/core/routing"
	"github.com/kilianp07/faultfleet/core/scheduler"
	"github.com/kilianp07/faultfleet/core/store"
	"github.com/kilianp07/faultfleet/internal/eventbus"
	"github.com/kilianp07/faultfleet/internal/keylock"
)

const ackKeyPrefix = "ack/"

// Router computes the path between two points.
type Router interface {
	Route(ctx context.Context, from, to model.Point) (routing.Result, error)
}

// Order is the notification sent to a selected vehicle.
type Order struct {
	FaultID     string         `json:"fault_id"`
	VehicleID   string         `json:"vehicle_id"`
	Category    string         `json:"category"`
	Severity    model.Severity `json:"severity"`
	Location    model.Point    `json:"location"`
	Detail      string         `json:"detail,omitempty"`
	Route       []model.Point  `json:"route,omitempty"`
	RequiresAck bool           `json:"requires_ack"`
	AckDeadline *time.Time     `json:"ack_deadline,omitempty"`
	At          time.Time      `json:"at"`
}

// Notifier delivers dispatch orders to the external notification channel.
type Notifier interface {
	NotifyDispatch(ctx context.Context, o Order) error
}

type nopNotifier struct{}

func (nopNotifier) NotifyDispatch(context.Context, Order) error { return nil }

// Attempt is a dispatch awaiting acknowledgment.
type Attempt struct {
	FaultID   string
	VehicleID string
	At        time.Time
	handle    scheduler.Handle
}

// Result describes a successful dispatch.
type Result struct {
	FaultID     string  `json:"fault_id"`
	VehicleID   string  `json:"vehicle_id"`
	Strategy    string  `json:"strategy"`
	Fallback    bool    `json:"fallback"`
	Score       float64 `json:"score"`
	Candidates  int     `json:"candidates"`
	RequiresAck bool    `json:"requires_ack"`
}

// Deps are the collaborators of an Engine. Store, Router, Scheduler and
// Locks are required.
type Deps struct {
	Store     store.Store
	Router    Router
	Strategy  Strategy
	Scheduler *scheduler.Scheduler
	Locks     *keylock.Locker
	Bus       eventbus.Publisher
	Notifier  Notifier
	Metrics   metrics.MetricsSink
	LogStore  logging.LogStore
	Logger    logger.Logger
}

// Engine is safe for concurrent use. Operations on one fault are
// serialized through the fault lock.
type Engine struct {
	cfg      Config
	store    store.Store
	router   Router
	strategy Strategy
	sched    *scheduler.Scheduler
	locks    *keylock.Locker
	bus      eventbus.Publisher
	notifier Notifier
	metrics  metrics.MetricsSink
	logs     logging.LogStore
	log      logger.Logger
	now      func() time.Time

	ackTimeout time.Duration

	mu       sync.Mutex
	attempts map[string]Attempt
	excl     *exclusions
	queue    chan Request
}

// NewEngine creates an Engine.
func NewEngine(cfg Config, d Deps) (*Engine, error) {
	if d.Store == nil || d.Router == nil || d.Scheduler == nil || d.Locks == nil {
		return nil, fmt.Errorf("dispatch: nil dependency provided to NewEngine")
	}
	cfg.SetDefaults()
	e := &Engine{
		cfg:      cfg,
		store:    d.Store,
		router:   d.Router,
		strategy: d.Strategy,
		sched:    d.Scheduler,
		locks:    d.Locks,
		bus:      d.Bus,
		notifier: d.Notifier,
		metrics:  d.Metrics,
		logs:     d.LogStore,
		log:      d.Logger,
		now:      time.Now,
		attempts: make(map[string]Attempt),
		queue:    make(chan Request, cfg.QueueSize),

		ackTimeout: cfg.ackTimeout(),
	}
	if e.strategy == nil {
		e.strategy = RuleStrategy{}
	}
	if e.bus == nil {
		e.bus = eventbus.Nop{}
	}
	if e.notifier == nil {
		e.notifier = nopNotifier{}
	}
	if e.metrics == nil {
		e.metrics = metrics.NopSink{}
	}
	if e.log == nil {
		e.log = logger.Nop{}
	}
	e.excl = newExclusions(cfg.exclusionTTL(), func() time.Time { return e.now() })
	return e, nil
}

// Dispatch selects a vehicle for the waiting fault faultID. It returns
// ErrNoEligibleVehicle when nobody can take it; the fault then stays waiting.
func (e *Engine) Dispatch(ctx context.Context, faultID string, trigger Trigger) (Result, error) {
	unlock := e.locks.Lock(keylock.FaultKey(faultID))
	defer unlock()

	f, err := e.store.GetFault(ctx, faultID)
	if err != nil {
		return Result{}, err
	}
	if f.Status != model.FaultWaiting {
		return Result{}, fmt.Errorf("fault %s is %s: %w", f.ID, f.Status, ErrFaultNotWaiting)
	}
	rec := logging.LogRecord{
		Timestamp: e.now(),
		FaultID:   f.ID,
		Category:  f.Category,
		Severity:  string(f.Severity),
		Trigger:   string(trigger),
		Strategy:  e.strategy.Name(),
		Excluded:  e.excl.List(f.ID),
	}
	cands, err := e.candidates(ctx, f)
	if err != nil {
		rec.Outcome, rec.Error = logging.OutcomeError, err.Error()
		e.appendLog(ctx, rec)
		return Result{}, err
	}
	if len(cands) == 0 {
		dispatchDecisions.WithLabelValues(e.strategy.Name(), logging.OutcomeNoVehicle).Inc()
		rec.Outcome = logging.OutcomeNoVehicle
		e.appendLog(ctx, rec)
		e.log.Infof("no eligible vehicle for fault %s", f.ID)
		return Result{}, ErrNoEligibleVehicle
	}

	rk := e.strategy.Rank(ctx, f, cands)
	rec.Strategy, rec.Fallback, rec.Reason = rk.Strategy, rk.Fallback, rk.Reason
	for _, i := range rk.Order {
		rec.Candidates = append(rec.Candidates, logging.Candidate{
			VehicleID: cands[i].Vehicle.ID, Score: rk.Scores[i], DistanceM: cands[i].DistanceM,
		})
	}
	for _, i := range rk.Order {
		res, ok, err := e.assign(ctx, f, cands[i], rk.Scores[i], rk)
		if err != nil {
			rec.Outcome, rec.Error = logging.OutcomeError, err.Error()
			e.appendLog(ctx, rec)
			return Result{}, err
		}
		if ok {
			res.Candidates = len(cands)
			dispatchDecisions.WithLabelValues(rk.Strategy, logging.OutcomeDispatched).Inc()
			rec.Outcome, rec.VehicleSelected = logging.OutcomeDispatched, res.VehicleID
			e.appendLog(ctx, rec)
			e.recordDispatch(f, res, rk)
			return res, nil
		}
	}
	dispatchDecisions.WithLabelValues(rk.Strategy, logging.OutcomeNoVehicle).Inc()
	rec.Outcome = logging.OutcomeNoVehicle
	e.appendLog(ctx, rec)
	return Result{}, ErrNoEligibleVehicle
}

// candidates lists available, non-excluded vehicles with their distance and
// experience for f.
func (e *Engine) candidates(ctx context.Context, f model.Fault) ([]Candidate, error) {
	vs, err := e.store.ListVehicles(ctx, store.VehicleFilter{Status: model.VehicleAvailable})
	if err != nil {
		return nil, fmt.Errorf("list vehicles: %w", err)
	}
	var out []Candidate
	for _, v := range vs {
		if e.excl.Has(f.ID, v.ID) {
			continue
		}
		if !v.HasHardware && !e.cfg.Prototype {
			continue
		}
		c := Candidate{Vehicle: v, DistanceM: unknownDistanceM}
		if v.HasPosition() {
			res, err := e.router.Route(ctx, v.Position, f.Location)
			if err != nil {
				c.DistanceM = geo.Distance(v.Position, f.Location)
			} else {
				c.DistanceM = res.DistanceM
				c.Route = &res
			}
		}
		history, err := e.store.ListFaults(ctx, store.FaultFilter{Status: model.FaultResolved, ResolvedBy: v.ID})
		if err != nil {
			e.log.Warnf("history of vehicle %s: %v", v.ID, err)
		}
		for _, h := range history {
			if geo.Distance(h.Location, f.Location) <= experienceRadiusM {
				c.LocationExperience = true
			}
			if h.Category == f.Category {
				c.TypeExperience = true
				c.SameTypeResolved++
			}
		}
		out = append(out, c)
	}
	return out, nil
}

// assign binds c to f under the vehicle lock. It reports false when the
// vehicle is no longer available.
func (e *Engine) assign(ctx context.Context, f model.Fault, c Candidate, score float64, rk Ranking) (Result, bool, error) {
	unlock := e.locks.Lock(keylock.VehicleKey(c.Vehicle.ID))
	defer unlock()

	v, err := e.store.GetVehicle(ctx, c.Vehicle.ID)
	if err != nil {
		e.log.Warnf("reload vehicle %s: %v", c.Vehicle.ID, err)
		return Result{}, false, nil
	}
	if v.Status != model.VehicleAvailable || e.excl.Has(f.ID, v.ID) {
		return Result{}, false, nil
	}
	now := e.now()
	prevFault := f
	prevVehicle := v
	if err := lifecycle.AssignFault(&f, v.ID); err != nil {
		return Result{}, false, err
	}
	if err := lifecycle.DispatchVehicle(&v, f.ID); err != nil {
		return Result{}, false, nil
	}
	f.UpdatedAt = now
	if err := e.store.SaveFault(ctx, f); err != nil {
		return Result{}, false, fmt.Errorf("save fault %s: %w", f.ID, err)
	}
	if err := e.store.SaveVehicle(ctx, v); err != nil {
		if rerr := e.store.SaveFault(ctx, prevFault); rerr != nil {
			e.log.Errorf("revert fault %s: %v", f.ID, rerr)
		}
		return Result{}, false, fmt.Errorf("save vehicle %s: %w", v.ID, err)
	}

	res := Result{
		FaultID:     f.ID,
		VehicleID:   v.ID,
		Strategy:    rk.Strategy,
		Fallback:    rk.Fallback,
		Score:       score,
		RequiresAck: v.HasHardware,
	}
	order := Order{
		FaultID:     f.ID,
		VehicleID:   v.ID,
		Category:    f.Category,
		Severity:    f.Severity,
		Location:    f.Location,
		Detail:      f.Detail,
		RequiresAck: res.RequiresAck,
		At:          now,
	}
	if res.RequiresAck {
		deadline := now.Add(e.ackTimeout)
		order.AckDeadline = &deadline
		h := e.sched.Schedule(ackKeyPrefix+f.ID, e.ackTimeout, e.expire)
		e.mu.Lock()
		e.attempts[f.ID] = Attempt{FaultID: f.ID, VehicleID: v.ID, At: now, handle: h}
		e.mu.Unlock()
	}

	if c.Route != nil {
		order.Route = c.Route.Path
		route := model.Route{
			ID:        uuid.NewString(),
			VehicleID: v.ID,
			FaultID:   f.ID,
			Waypoints: c.Route.Path,
			DistanceM: c.Route.DistanceM,
			DurationS: c.Route.DurationS,
			Source:    c.Route.Source,
			Fallback:  c.Route.Fallback,
			StartedAt: now,
		}
		prev, err := e.store.ReplaceActiveRoute(ctx, route)
		if err != nil {
			e.log.Errorf("store route for vehicle %s: %v", v.ID, err)
		} else {
			e.bus.Publish(events.RouteReplaced{VehicleID: v.ID, FaultID: f.ID, PreviousRouteID: prev, RouteID: route.ID,
				Source: route.Source, Fallback: route.Fallback, Reason: "dispatch", At: now})
			if rr, ok := e.metrics.(metrics.RouteRecorder); ok {
				if err := rr.RecordRoute(metrics.RouteEvent{RouteID: route.ID, VehicleID: v.ID, FaultID: f.ID, Source: route.Source,
					Fallback: route.Fallback, DistanceM: route.DistanceM, DurationS: route.DurationS, Reason: "dispatch", Time: now}); err != nil {
					e.log.Errorf("route metrics error: %v", err)
				}
			}
		}
	}
	if err := e.store.CreateAlert(ctx, model.Alert{
		ID: uuid.NewString(), FaultID: f.ID, VehicleID: v.ID, CreatedAt: now,
		Message: fmt.Sprintf("%s fault %s (%s) assigned to %s", f.Severity, f.ID, f.Category, v.ID),
	}); err != nil {
		e.log.Errorf("create alert for fault %s: %v", f.ID, err)
	}
	if err := e.store.OpenTrip(ctx, model.Trip{
		ID: uuid.NewString(), VehicleID: v.ID, FaultID: f.ID, Start: v.Position, StartedAt: now,
	}); err != nil {
		e.log.Errorf("open trip for vehicle %s: %v", v.ID, err)
	}
	if err := e.notifier.NotifyDispatch(ctx, order); err != nil {
		notifyFailures.Inc()
		e.log.Errorf("notify vehicle %s: %v", v.ID, err)
	}
	e.bus.Publish(events.FaultStatusChanged{FaultID: f.ID, From: prevFault.Status, To: f.Status, VehicleID: v.ID, Reason: "dispatch", At: now})
	e.bus.Publish(events.VehicleStatusChanged{VehicleID: v.ID, From: prevVehicle.Status, To: v.Status, FaultID: f.ID, Reason: "dispatch", At: now})
	e.bus.Publish(events.Dispatched{FaultID: f.ID, VehicleID: v.ID, Strategy: rk.Strategy, Score: score, RequiresAck: res.RequiresAck, At: now})
	e.log.Infof("dispatched vehicle %s to fault %s (strategy=%s score=%.1f ack=%t)", v.ID, f.ID, rk.Strategy, score, res.RequiresAck)
	return res, true, nil
}

func (e *Engine) recordDispatch(f model.Fault, res Result, rk Ranking) {
	if err := e.metrics.RecordDispatch(metrics.DispatchEvent{
		FaultID:     f.ID,
		VehicleID:   res.VehicleID,
		Category:    f.Category,
		Severity:    f.Severity,
		Strategy:    rk.Strategy,
		Fallback:    rk.Fallback,
		Score:       res.Score,
		Candidates:  res.Candidates,
		RequiresAck: res.RequiresAck,
		Time:        e.now(),
	}); err != nil {
		e.log.Errorf("metrics error: %v", err)
	}
}

func (e *Engine) appendLog(ctx context.Context, rec logging.LogRecord) {
	if e.logs == nil {
		return
	}
	if err := e.logs.Append(ctx, rec); err != nil {
		e.log.Errorf("dispatch log append: %v", err)
	}
}

// expire runs when an acknowledgment timer fires. A timer cancelled or
// superseded while waiting for the fault lock is ignored.
func (e *Engine) expire(h scheduler.Handle) {
	faultID := strings.TrimPrefix(h.Key, ackKeyPrefix)
	ctx := context.Background()
	unlock := e.locks.Lock(keylock.FaultKey(faultID))
	defer unlock()
	if !e.sched.Claim(h) {
		return
	}
	e.mu.Lock()
	a, ok := e.attempts[faultID]
	if !ok || a.handle != h {
		e.mu.Unlock()
		return
	}
	delete(e.attempts, faultID)
	e.mu.Unlock()

	now := e.now()
	e.excl.Add(faultID, a.VehicleID)
	ackTimeouts.Inc()
	e.log.Warnf("vehicle %s did not acknowledge fault %s, excluding it", a.VehicleID, faultID)

	f, err := e.store.GetFault(ctx, faultID)
	if err != nil {
		e.log.Errorf("timeout reload fault %s: %v", faultID, err)
	} else if f.Status == model.FaultPendingConfirmation && f.AssignedVehicleID == a.VehicleID {
		from := f.Status
		if err := lifecycle.ResetFault(&f); err == nil {
			f.UpdatedAt = now
			if err := e.store.SaveFault(ctx, f); err != nil {
				e.log.Errorf("timeout reset fault %s: %v", faultID, err)
			} else {
				e.bus.Publish(events.FaultStatusChanged{FaultID: faultID, From: from, To: f.Status, VehicleID: a.VehicleID, Reason: "ack_timeout", At: now})
			}
		}
	}
	e.releaseTimedOutVehicle(ctx, a, now)

	if rec, ok := e.metrics.(metrics.DispatchAckRecorder); ok {
		if err := rec.RecordDispatchAck(metrics.DispatchAckEvent{FaultID: faultID, VehicleID: a.VehicleID, Latency: now.Sub(a.At), Time: now}); err != nil {
			e.log.Errorf("ack metrics error: %v", err)
		}
	}
	e.bus.Publish(events.DispatchTimedOut{FaultID: faultID, VehicleID: a.VehicleID, At: now})
	e.Submit(Request{FaultID: faultID, VehicleID: a.VehicleID, Trigger: TriggerTimedOut})
}

func (e *Engine) releaseTimedOutVehicle(ctx context.Context, a Attempt, now time.Time) {
	unlock := e.locks.Lock(keylock.VehicleKey(a.VehicleID))
	defer unlock()
	v, err := e.store.GetVehicle(ctx, a.VehicleID)
	if err != nil {
		e.log.Errorf("timeout reload vehicle %s: %v", a.VehicleID, err)
		return
	}
	if v.Status != model.VehicleOnRoute || v.AssignedFaultID != a.FaultID {
		return
	}
	from := v.Status
	if err := lifecycle.TimeoutVehicle(&v); err != nil {
		return
	}
	if err := e.store.SaveVehicle(ctx, v); err != nil {
		e.log.Errorf("timeout release vehicle %s: %v", v.ID, err)
		return
	}
	e.bus.Publish(events.VehicleStatusChanged{VehicleID: v.ID, From: from, To: v.Status, FaultID: a.FaultID, Reason: "ack_timeout", At: now})
	if _, err := e.store.CloseActiveRoute(ctx, v.ID, model.RouteCancelled, now); err != nil {
		e.log.Errorf("timeout cancel route of %s: %v", v.ID, err)
	}
	if _, err := e.store.CloseOpenTrip(ctx, v.ID, v.Position, now); err != nil {
		e.log.Errorf("timeout close trip of %s: %v", v.ID, err)
	}
}

// Acknowledge confirms the pending dispatch of faultID. An empty vehicleID
// matches whichever vehicle is awaited.
func (e *Engine) Acknowledge(ctx context.Context, faultID, vehicleID string) error {
	unlock := e.locks.Lock(keylock.FaultKey(faultID))
	defer unlock()

	e.mu.Lock()
	a, ok := e.attempts[faultID]
	e.mu.Unlock()
	if !ok || (vehicleID != "" && a.VehicleID != vehicleID) {
		return fmt.Errorf("fault %s vehicle %s: %w", faultID, vehicleID, ErrNoActiveAttempt)
	}
	f, err := e.store.GetFault(ctx, faultID)
	if err != nil {
		return err
	}
	from := f.Status
	if err := lifecycle.AcknowledgeFault(&f); err != nil {
		return err
	}
	now := e.now()
	f.UpdatedAt = now
	if err := e.store.SaveFault(ctx, f); err != nil {
		return fmt.Errorf("save fault %s: %w", faultID, err)
	}
	e.ReleaseAttempt(faultID)
	e.bus.Publish(events.FaultStatusChanged{FaultID: faultID, From: from, To: f.Status, VehicleID: a.VehicleID, Reason: "acknowledged", At: now})
	e.RecordAck(a.FaultID, a.VehicleID, a.At, false)
	return nil
}

// ReleaseAttempt cancels the acknowledgment timer of faultID and forgets
// the attempt and the fault's exclusions. Callers must hold the fault lock.
func (e *Engine) ReleaseAttempt(faultID string) (Attempt, bool) {
	e.mu.Lock()
	a, ok := e.attempts[faultID]
	delete(e.attempts, faultID)
	e.mu.Unlock()
	if ok {
		e.sched.CancelHandle(a.handle)
	}
	e.excl.Clear(faultID)
	return a, ok
}

// RecordAck publishes the acknowledgment of a dispatch made at dispatchedAt.
func (e *Engine) RecordAck(faultID, vehicleID string, dispatchedAt time.Time, implicit bool) {
	now := e.now()
	var latency time.Duration
	if !dispatchedAt.IsZero() {
		latency = now.Sub(dispatchedAt)
		ackLatency.Observe(latency.Seconds())
	}
	e.bus.Publish(events.AckEvent{FaultID: faultID, VehicleID: vehicleID, Implicit: implicit, Latency: latency, At: now})
	if rec, ok := e.metrics.(metrics.DispatchAckRecorder); ok {
		if err := rec.RecordDispatchAck(metrics.DispatchAckEvent{FaultID: faultID, VehicleID: vehicleID, Acknowledged: true,
			Implicit: implicit, Latency: latency, Time: now}); err != nil {
			e.log.Errorf("ack metrics error: %v", err)
		}
	}
}

// PendingAttempt returns the attempt awaiting acknowledgment for faultID.
func (e *Engine) PendingAttempt(faultID string) (Attempt, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	a, ok := e.attempts[faultID]
	return a, ok
}

// Excluded returns the vehicles currently excluded from faultID.
func (e *Engine) Excluded(faultID string) []string { return e.excl.List(faultID) }

// confirmImplicit acknowledges a dispatch to a vehicle without hardware.
func (e *Engine) confirmImplicit(ctx context.Context, res Result) error {
	unlock := e.locks.Lock(keylock.FaultKey(res.FaultID))
	defer unlock()
	f, err := e.store.GetFault(ctx, res.FaultID)
	if err != nil {
		return err
	}
	if f.Status != model.FaultPendingConfirmation || f.AssignedVehicleID != res.VehicleID {
		return nil
	}
	from := f.Status
	if err := lifecycle.AcknowledgeFault(&f); err != nil {
		return err
	}
	now := e.now()
	f.UpdatedAt = now
	if err := e.store.SaveFault(ctx, f); err != nil {
		return err
	}
	e.bus.Publish(events.FaultStatusChanged{FaultID: f.ID, From: from, To: f.Status, VehicleID: res.VehicleID, Reason: "implicit_ack", At: now})
	e.RecordAck(f.ID, res.VehicleID, time.Time{}, true)
	return nil
}

// Process runs one dispatch request the way the queue consumer does:
// dispatch, then implicitly confirm vehicles that cannot acknowledge.
func (e *Engine) Process(ctx context.Context, req Request) (Result, error) {
	res, err := e.Dispatch(ctx, req.FaultID, req.Trigger)
	if err != nil {
		return res, err
	}
	if !res.RequiresAck {
		if err := e.confirmImplicit(ctx, res); err != nil {
			e.log.Errorf("implicit ack of fault %s: %v", res.FaultID, err)
		}
	}
	return res, nil
}

// IsRetryable reports whether a failed dispatch may succeed on a later trigger.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrNoEligibleVehicle)
}
