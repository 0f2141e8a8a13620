package tracking

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/faultfleet/core/dispatch"
	"github.com/kilianp07/faultfleet/core/events"
	"github.com/kilianp07/faultfleet/core/geo"
	"github.com/kilianp07/faultfleet/core/lifecycle"
	"github.com/kilianp07/faultfleet/core/model"
	"github.com/kilianp07/faultfleet/core/routing"
	"github.com/kilianp07/faultfleet/core/store"
	"github.com/kilianp07/faultfleet/internal/keylock"
)

type fakeTimers struct {
	mu      sync.Mutex
	starts  []string
	cancels []string
}

func (f *fakeTimers) Start(vehicleID, faultID string) {
	f.mu.Lock()
	f.starts = append(f.starts, vehicleID+"/"+faultID)
	f.mu.Unlock()
}

func (f *fakeTimers) Cancel(vehicleID string) bool {
	f.mu.Lock()
	f.cancels = append(f.cancels, vehicleID)
	f.mu.Unlock()
	return true
}

type fakeAcker struct {
	released []string
	acks     []bool
}

func (f *fakeAcker) ReleaseAttempt(faultID string) (dispatch.Attempt, bool) {
	f.released = append(f.released, faultID)
	return dispatch.Attempt{FaultID: faultID, At: time.Now().Add(-10 * time.Second)}, true
}

func (f *fakeAcker) RecordAck(_, _ string, _ time.Time, implicit bool) {
	f.acks = append(f.acks, implicit)
}

type recordingBus struct {
	mu  sync.Mutex
	evs []events.Event
}

func (b *recordingBus) Publish(e events.Event) {
	b.mu.Lock()
	b.evs = append(b.evs, e)
	b.mu.Unlock()
}

func (b *recordingBus) count(k events.Kind) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, e := range b.evs {
		if e.Kind() == k {
			n++
		}
	}
	return n
}

var site = model.Point{Lat: 24.8607, Lng: 67.0011}

type fixture struct {
	mon    *Monitor
	store  *store.MemoryStore
	timers *fakeTimers
	acker  *fakeAcker
	bus    *recordingBus
	now    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	fx := &fixture{
		store:  store.NewMemoryStore(),
		timers: &fakeTimers{},
		acker:  &fakeAcker{},
		bus:    &recordingBus{},
		now:    time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC),
	}
	fx.mon = New(Config{}, fx.store, routing.NewService(nil, routing.Config{}), fx.timers, keylock.New(),
		WithBus(fx.bus), WithAcknowledger(fx.acker))
	fx.mon.now = func() time.Time { return fx.now }
	return fx
}

// seed stores vehicle V bound to fault F at site.
func (fx *fixture) seed(t *testing.T, vs model.VehicleStatus, fs model.FaultStatus, pos model.Point) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, fx.store.SaveFault(ctx, model.Fault{
		ID: "F", Category: "power", Severity: model.SeverityHigh, Location: site, Status: fs, AssignedVehicleID: "V",
	}))
	require.NoError(t, fx.store.SaveVehicle(ctx, model.Vehicle{
		ID: "V", Status: vs, Position: pos, HasHardware: true, PerformanceRatio: 0.5, AssignedFaultID: "F",
	}))
}

func (fx *fixture) vehicle(t *testing.T) model.Vehicle {
	t.Helper()
	v, err := fx.store.GetVehicle(context.Background(), "V")
	require.NoError(t, err)
	return v
}

func sample(p model.Point) model.PositionSample {
	return model.PositionSample{VehicleID: "V", Lat: p.Lat, Lng: p.Lng, Speed: 12}
}

func TestConfigDefaults(t *testing.T) {
	var c Config
	c.SetDefaults()
	assert.Equal(t, 50.0, c.ArrivalThresholdM)
	assert.Equal(t, 200.0, c.DeviationThresholdM)
	assert.Equal(t, 500.0, c.DestinationGuardM)
	assert.Equal(t, 30*time.Second, c.minRouteAge())
	assert.InDelta(t, 8.333, c.speedMS(), 1e-3)
	assert.NoError(t, c.Validate())
	assert.Error(t, Config{ArrivalThresholdM: -1}.Validate())
}

func TestExpectedPosition(t *testing.T) {
	start := time.Unix(0, 0)
	r := model.Route{
		Waypoints: []model.Point{{Lat: 0, Lng: 0}, {Lat: 0, Lng: 0.01}, {Lat: 0.01, Lng: 0.01}},
		StartedAt: start,
	}
	leg := geo.Distance(r.Waypoints[0], r.Waypoints[1])

	p := ExpectedPosition(r, start.Add(10*time.Second), leg/20)
	assert.InDelta(t, 0.005, p.Lng, 1e-9)
	assert.InDelta(t, 0, p.Lat, 1e-9)

	p = ExpectedPosition(r, start.Add(30*time.Second), leg/20)
	assert.InDelta(t, 0.01, p.Lng, 1e-9)
	assert.InDelta(t, 0.005, p.Lat, 1e-4)

	assert.Equal(t, r.Waypoints[2], ExpectedPosition(r, start.Add(time.Hour), leg/20))
}

func TestHandleSample_ArrivalAtFault(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	fx.seed(t, model.VehicleOnRoute, model.FaultAssigned, near(0.01))
	_, err := fx.store.ReplaceActiveRoute(ctx, model.Route{VehicleID: "V", FaultID: "F", Waypoints: []model.Point{near(0.01), site}, StartedAt: fx.now})
	require.NoError(t, err)

	out, err := fx.mon.HandleSample(ctx, sample(site))
	require.NoError(t, err)
	assert.True(t, out.Arrived)
	assert.Equal(t, model.VehicleWorking, out.Status)
	assert.InDelta(t, 0, out.DistanceM, 1e-9)

	v := fx.vehicle(t)
	assert.Equal(t, model.VehicleWorking, v.Status)
	assert.Equal(t, site, v.Position)
	assert.Equal(t, []string{"V/F"}, fx.timers.starts)

	routes, err := fx.store.ListRoutes(ctx, "V")
	require.NoError(t, err)
	require.Len(t, routes, 1)
	assert.Equal(t, model.RouteCompleted, routes[0].Status)

	snaps, err := fx.store.ListPositions(ctx, "V", 1)
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.True(t, snaps[0].Arrival)
	assert.Zero(t, snaps[0].Speed)
	assert.Equal(t, site, snaps[0].Position)
	assert.Equal(t, 1, fx.bus.count(events.KindVehicleStatus))
	assert.Empty(t, fx.acker.released)
}

func TestHandleSample_ArrivalIsIdempotent(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	fx.seed(t, model.VehicleOnRoute, model.FaultAssigned, near(0.01))

	_, err := fx.mon.HandleSample(ctx, sample(site))
	require.NoError(t, err)
	out, err := fx.mon.HandleSample(ctx, sample(site))
	require.NoError(t, err)

	assert.False(t, out.Arrived)
	assert.Equal(t, model.VehicleWorking, out.Status)
	assert.Len(t, fx.timers.starts, 1)
	assert.Empty(t, fx.timers.cancels)
	assert.Equal(t, 1, fx.bus.count(events.KindVehicleStatus))

	snaps, err := fx.store.ListPositions(ctx, "V", 0)
	require.NoError(t, err)
	assert.Len(t, snaps, 2)
}

func TestHandleSample_ArrivalConfirmsPendingFault(t *testing.T) {
	fx := newFixture(t)
	fx.seed(t, model.VehicleOnRoute, model.FaultPendingConfirmation, near(0.01))

	out, err := fx.mon.HandleSample(context.Background(), sample(near(0.0002)))
	require.NoError(t, err)
	assert.True(t, out.Arrived)

	f, err := fx.store.GetFault(context.Background(), "F")
	require.NoError(t, err)
	assert.Equal(t, model.FaultAssigned, f.Status)
	assert.Equal(t, "V", f.AssignedVehicleID)
	assert.Equal(t, []string{"F"}, fx.acker.released)
	assert.Equal(t, []bool{true}, fx.acker.acks)
	assert.Equal(t, 1, fx.bus.count(events.KindFaultStatus))
}

func TestHandleSample_SelfCorrection(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	fx.seed(t, model.VehicleWorking, model.FaultAssigned, site)

	out, err := fx.mon.HandleSample(ctx, sample(near(0.003)))
	require.NoError(t, err)
	assert.True(t, out.Corrected)
	assert.Greater(t, out.DistanceM, 50.0)
	assert.Equal(t, model.VehicleOnRoute, fx.vehicle(t).Status)
	assert.Equal(t, []string{"V"}, fx.timers.cancels)
	assert.Empty(t, fx.timers.starts)

	r, err := fx.store.ActiveRoute(ctx, "V")
	require.NoError(t, err)
	assert.Equal(t, fx.now, r.StartedAt)
	assert.Equal(t, site, r.Waypoints[len(r.Waypoints)-1])
	assert.Equal(t, 1, fx.bus.count(events.KindRouteReplaced))
}

// deviationRoute stores a route from 2 km south of the site, issued age ago,
// and returns the point 250 m east of where the vehicle should be.
func deviationRoute(t *testing.T, fx *fixture, age time.Duration) (model.Route, model.Point) {
	t.Helper()
	r := model.Route{
		ID:        "old",
		VehicleID: "V",
		FaultID:   "F",
		Waypoints: []model.Point{near(-0.018), site},
		StartedAt: fx.now.Add(-age),
	}
	_, err := fx.store.ReplaceActiveRoute(context.Background(), r)
	require.NoError(t, err)
	exp := ExpectedPosition(r, fx.now, fx.mon.cfg.speedMS())
	off := model.Point{Lat: exp.Lat, Lng: exp.Lng + 0.0025}
	require.InDelta(t, 250, geo.Distance(exp, off), 10)
	return r, off
}

func TestHandleSample_DeviationRecalculatesRoute(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	fx.seed(t, model.VehicleOnRoute, model.FaultAssigned, near(-0.018))
	_, off := deviationRoute(t, fx, 40*time.Second)

	out, err := fx.mon.HandleSample(ctx, sample(off))
	require.NoError(t, err)
	assert.True(t, out.Recalculated)
	assert.Greater(t, out.DistanceM, 500.0)

	routes, err := fx.store.ListRoutes(ctx, "V")
	require.NoError(t, err)
	require.Len(t, routes, 2)
	assert.Equal(t, "old", routes[0].ID)
	assert.Equal(t, model.RouteSuperseded, routes[0].Status)
	assert.Equal(t, model.RouteActive, routes[1].Status)
	assert.Equal(t, fx.now, routes[1].StartedAt)
	assert.Equal(t, off, routes[1].Waypoints[0])
	assert.Equal(t, model.VehicleOnRoute, fx.vehicle(t).Status)
}

func TestHandleSample_DeviationGuards(t *testing.T) {
	t.Run("fresh route", func(t *testing.T) {
		fx := newFixture(t)
		fx.seed(t, model.VehicleOnRoute, model.FaultAssigned, near(-0.018))
		_, off := deviationRoute(t, fx, 20*time.Second)
		out, err := fx.mon.HandleSample(context.Background(), sample(off))
		require.NoError(t, err)
		assert.False(t, out.Recalculated)
	})
	t.Run("near destination", func(t *testing.T) {
		fx := newFixture(t)
		fx.seed(t, model.VehicleOnRoute, model.FaultAssigned, near(-0.018))
		deviationRoute(t, fx, 40*time.Second)
		out, err := fx.mon.HandleSample(context.Background(), sample(near(-0.003)))
		require.NoError(t, err)
		assert.Less(t, out.DistanceM, 500.0)
		assert.False(t, out.Recalculated)
	})
	t.Run("on track", func(t *testing.T) {
		fx := newFixture(t)
		fx.seed(t, model.VehicleOnRoute, model.FaultAssigned, near(-0.018))
		r, _ := deviationRoute(t, fx, 40*time.Second)
		exp := ExpectedPosition(r, fx.now, fx.mon.cfg.speedMS())
		out, err := fx.mon.HandleSample(context.Background(), sample(model.Point{Lat: exp.Lat, Lng: exp.Lng + 0.0005}))
		require.NoError(t, err)
		assert.False(t, out.Recalculated)
	})
}

func TestHandleSample_UntrackedVehicle(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	require.NoError(t, fx.store.SaveVehicle(ctx, model.Vehicle{ID: "V", Status: model.VehicleAvailable}))

	out, err := fx.mon.HandleSample(ctx, sample(site))
	require.NoError(t, err)
	assert.False(t, out.Arrived)
	assert.Equal(t, model.VehicleAvailable, out.Status)
	assert.Equal(t, site, fx.vehicle(t).Position)
	assert.Empty(t, fx.timers.starts)
}

func TestHandleSample_Rejects(t *testing.T) {
	fx := newFixture(t)
	_, err := fx.mon.HandleSample(context.Background(), model.PositionSample{VehicleID: "V", Lat: 95, Lng: 0})
	assert.ErrorIs(t, err, model.ErrInvalidSample)
	_, err = fx.mon.HandleSample(context.Background(), model.PositionSample{Lat: 1, Lng: 1})
	assert.ErrorIs(t, err, model.ErrInvalidSample)
	_, err = fx.mon.HandleSample(context.Background(), sample(site))
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestMarkArrived(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	fx.seed(t, model.VehicleOnRoute, model.FaultAssigned, near(0.01))

	v, err := fx.mon.MarkArrived(ctx, "V")
	require.NoError(t, err)
	assert.Equal(t, model.VehicleWorking, v.Status)
	assert.Equal(t, []string{"V/F"}, fx.timers.starts)

	_, err = fx.mon.MarkArrived(ctx, "V")
	require.NoError(t, err)
	assert.Len(t, fx.timers.starts, 1)

	require.NoError(t, fx.store.SaveVehicle(ctx, model.Vehicle{ID: "W", Status: model.VehicleAvailable}))
	_, err = fx.mon.MarkArrived(ctx, "W")
	assert.ErrorIs(t, err, lifecycle.ErrIllegalTransition)
}

func TestConcurrentSamplesDifferentVehicles(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	ids := []string{"a", "b", "c", "d"}
	for _, id := range ids {
		require.NoError(t, fx.store.SaveVehicle(ctx, model.Vehicle{ID: id, Status: model.VehicleAvailable}))
	}
	var wg sync.WaitGroup
	for _, id := range ids {
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func(id string, i int) {
				defer wg.Done()
				_, err := fx.mon.HandleSample(ctx, model.PositionSample{VehicleID: id, Lat: 1 + float64(i)/1000, Lng: 1})
				assert.NoError(t, err)
			}(id, i)
		}
	}
	wg.Wait()
	for _, id := range ids {
		snaps, err := fx.store.ListPositions(ctx, id, 0)
		require.NoError(t, err)
		assert.Len(t, snaps, 10)
	}
}

func near(dLat float64) model.Point {
	return model.Point{Lat: site.Lat + dLat, Lng: site.Lng}
}
