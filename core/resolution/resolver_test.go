package resolution

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/faultfleet/core/dispatch"
	"github.com/kilianp07/faultfleet/core/events"
	"github.com/kilianp07/faultfleet/core/model"
	"github.com/kilianp07/faultfleet/core/scheduler"
	"github.com/kilianp07/faultfleet/core/store"
	"github.com/kilianp07/faultfleet/internal/keylock"
)

type recordingBus struct {
	mu  sync.Mutex
	evs []events.Event
}

func (b *recordingBus) Publish(e events.Event) {
	b.mu.Lock()
	b.evs = append(b.evs, e)
	b.mu.Unlock()
}

func (b *recordingBus) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.evs)
}

type fakeReleaser struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeReleaser) ReleaseAttempt(faultID string) (dispatch.Attempt, bool) {
	f.mu.Lock()
	f.calls = append(f.calls, faultID)
	f.mu.Unlock()
	return dispatch.Attempt{}, false
}

type brokenTripStore struct {
	*store.MemoryStore
}

func (brokenTripStore) CloseOpenTrip(context.Context, string, model.Point, time.Time) (bool, error) {
	return false, errors.New("disk full")
}

var site = model.Point{Lat: 24.8607, Lng: 67.0011}

type fixture struct {
	res   *Resolver
	store store.Store
	mem   *store.MemoryStore
	sched *scheduler.Scheduler
	locks *keylock.Locker
	bus   *recordingBus
	rel   *fakeReleaser
}

func newFixture(t *testing.T, wrap func(*store.MemoryStore) store.Store) *fixture {
	t.Helper()
	mem := store.NewMemoryStore()
	var st store.Store = mem
	if wrap != nil {
		st = wrap(mem)
	}
	fx := &fixture{store: st, mem: mem, sched: scheduler.New(), locks: keylock.New(), bus: &recordingBus{}, rel: &fakeReleaser{}}
	fx.res = New(Config{}, st, fx.sched, fx.locks, WithBus(fx.bus), WithReleaser(fx.rel))
	fx.res.delay = 20 * time.Millisecond
	t.Cleanup(fx.sched.Stop)
	return fx
}

// seedOnSite stores vehicle V working on fault F with the records a
// dispatch and an arrival leave behind.
func (fx *fixture) seedOnSite(t *testing.T, status model.FaultStatus) {
	t.Helper()
	ctx := context.Background()
	now := time.Now()
	require.NoError(t, fx.mem.SaveFault(ctx, model.Fault{
		ID: "F", Category: "power", Severity: model.SeverityHigh, Location: site,
		Status: status, AssignedVehicleID: "V", CreatedAt: now,
	}))
	require.NoError(t, fx.mem.SaveVehicle(ctx, model.Vehicle{
		ID: "V", Status: model.VehicleWorking, Position: site, HasHardware: true,
		PerformanceRatio: 0.7, FatigueCount: 2, AssignedFaultID: "F",
	}))
	require.NoError(t, fx.mem.OpenTrip(ctx, model.Trip{VehicleID: "V", FaultID: "F", Start: site, StartedAt: now}))
	require.NoError(t, fx.mem.CreateAlert(ctx, model.Alert{ID: "al", FaultID: "F", VehicleID: "V", CreatedAt: now}))
	_, err := fx.mem.ReplaceActiveRoute(ctx, model.Route{VehicleID: "V", FaultID: "F", Waypoints: []model.Point{site, site}, StartedAt: now})
	require.NoError(t, err)
}

func (fx *fixture) faultStatus(t *testing.T) model.FaultStatus {
	t.Helper()
	f, err := fx.mem.GetFault(context.Background(), "F")
	require.NoError(t, err)
	return f.Status
}

func TestConfigDefaults(t *testing.T) {
	var c Config
	c.SetDefaults()
	assert.Equal(t, 300, c.DelaySeconds)
	assert.Equal(t, 5*time.Minute, c.Delay())
	assert.NoError(t, c.Validate())
	assert.Error(t, Config{DelaySeconds: -1}.Validate())
}

func TestTimerResolvesFault(t *testing.T) {
	fx := newFixture(t, nil)
	fx.seedOnSite(t, model.FaultAssigned)
	ctx := context.Background()

	fx.res.Start("V", "F")
	assert.True(t, fx.res.Pending("V"))
	require.Eventually(t, func() bool { return fx.faultStatus(t) == model.FaultResolved }, 2*time.Second, 5*time.Millisecond)

	f, err := fx.mem.GetFault(ctx, "F")
	require.NoError(t, err)
	assert.Equal(t, "V", f.ResolvedBy)
	assert.Empty(t, f.AssignedVehicleID)
	require.NotNil(t, f.ResolvedAt)

	require.Eventually(t, func() bool {
		alerts, _ := fx.mem.ListAlerts(ctx, "F")
		return len(alerts) == 1 && alerts[0].Solved
	}, time.Second, 5*time.Millisecond)
	v, err := fx.mem.GetVehicle(ctx, "V")
	require.NoError(t, err)
	assert.Equal(t, model.VehicleAvailable, v.Status)
	assert.Empty(t, v.AssignedFaultID)
	assert.Equal(t, 3, v.FatigueCount)

	trips, err := fx.mem.ListTrips(ctx, "V")
	require.NoError(t, err)
	require.Len(t, trips, 1)
	assert.False(t, trips[0].Open())
	_, err = fx.mem.ActiveRoute(ctx, "V")
	assert.ErrorIs(t, err, model.ErrNotFound)
	assert.Equal(t, []string{"F"}, fx.rel.calls)
	assert.Equal(t, 2, fx.bus.len())
	assert.False(t, fx.res.Pending("V"))
}

func TestTimerNoopWhenAlreadyResolved(t *testing.T) {
	fx := newFixture(t, nil)
	ctx := context.Background()
	fx.seedOnSite(t, model.FaultAssigned)
	f, err := fx.mem.GetFault(ctx, "F")
	require.NoError(t, err)
	f.Status, f.AssignedVehicleID, f.ResolvedBy = model.FaultResolved, "", "V"
	require.NoError(t, fx.mem.SaveFault(ctx, f))

	fx.res.Start("V", "F")
	require.Eventually(t, func() bool { return fx.sched.Len() == 0 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	assert.Zero(t, fx.bus.len())
	v, err := fx.mem.GetVehicle(ctx, "V")
	require.NoError(t, err)
	assert.Equal(t, model.VehicleWorking, v.Status)
	assert.Equal(t, 2, v.FatigueCount)
}

func TestStartSupersedesPreviousTimer(t *testing.T) {
	fx := newFixture(t, nil)
	fx.res.delay = time.Hour
	fx.res.Start("V", "F")
	fx.res.Start("V", "G")
	assert.Equal(t, 1, fx.sched.Len())
	assert.True(t, fx.res.Cancel("V"))
	assert.False(t, fx.res.Cancel("V"))
	assert.Zero(t, fx.sched.Len())
}

func TestCancelPreventsResolution(t *testing.T) {
	fx := newFixture(t, nil)
	fx.seedOnSite(t, model.FaultAssigned)
	fx.res.Start("V", "F")
	require.True(t, fx.res.Cancel("V"))
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, model.FaultAssigned, fx.faultStatus(t))
}

func TestCancelAfterFireBeforeRun(t *testing.T) {
	fx := newFixture(t, nil)
	fx.seedOnSite(t, model.FaultAssigned)

	unlock := fx.locks.Lock(keylock.FaultKey("F"))
	fx.res.Start("V", "F")
	require.Eventually(t, func() bool { return !fx.res.Pending("V") }, time.Second, 2*time.Millisecond)
	fx.res.Cancel("V")
	unlock()

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, model.FaultAssigned, fx.faultStatus(t))
}

func TestResolutionWritesAreIndependent(t *testing.T) {
	fx := newFixture(t, func(m *store.MemoryStore) store.Store { return brokenTripStore{m} })
	fx.seedOnSite(t, model.FaultAssigned)
	ctx := context.Background()

	require.NoError(t, fx.res.ResolveNow(ctx, "V", "F"))
	assert.Equal(t, model.FaultResolved, fx.faultStatus(t))
	v, err := fx.mem.GetVehicle(ctx, "V")
	require.NoError(t, err)
	assert.Equal(t, model.VehicleAvailable, v.Status)
	alerts, err := fx.mem.ListAlerts(ctx, "F")
	require.NoError(t, err)
	assert.True(t, alerts[0].Solved)
	trips, err := fx.mem.ListTrips(ctx, "V")
	require.NoError(t, err)
	assert.True(t, trips[0].Open())
}

func TestResolveNowConfirmsPendingFault(t *testing.T) {
	fx := newFixture(t, nil)
	fx.seedOnSite(t, model.FaultPendingConfirmation)
	fx.res.delay = time.Hour
	fx.res.Start("V", "F")

	require.NoError(t, fx.res.ResolveNow(context.Background(), "V", "F"))
	assert.Equal(t, model.FaultResolved, fx.faultStatus(t))
	assert.False(t, fx.res.Pending("V"))
	assert.Equal(t, []string{"F"}, fx.rel.calls)
}

func TestResolveRejectsWaitingFault(t *testing.T) {
	fx := newFixture(t, nil)
	ctx := context.Background()
	require.NoError(t, fx.mem.SaveFault(ctx, model.Fault{ID: "F", Category: "power", Severity: model.SeverityLow, Location: site, Status: model.FaultWaiting}))
	assert.Error(t, fx.res.ResolveNow(ctx, "V", "F"))
	assert.Equal(t, model.FaultWaiting, fx.faultStatus(t))
}
