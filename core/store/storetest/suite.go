// Package storetest holds the behaviour every store.Store backend must share.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/faultfleet/core/model"
	"github.com/kilianp07/faultfleet/core/store"
)

// Run exercises s. Each subtest gets a fresh store from newStore.
func Run(t *testing.T, newStore func(t *testing.T) store.Store) {
	t.Run("vehicles", func(t *testing.T) { testVehicles(t, newStore(t)) })
	t.Run("faults", func(t *testing.T) { testFaults(t, newStore(t)) })
	t.Run("routes", func(t *testing.T) { testRoutes(t, newStore(t)) })
	t.Run("positions", func(t *testing.T) { testPositions(t, newStore(t)) })
	t.Run("trips", func(t *testing.T) { testTrips(t, newStore(t)) })
	t.Run("alerts", func(t *testing.T) { testAlerts(t, newStore(t)) })
}

var t0 = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func testVehicles(t *testing.T, s store.Store) {
	ctx := context.Background()
	_, err := s.GetVehicle(ctx, "nope")
	assert.ErrorIs(t, err, model.ErrNotFound)

	v := model.Vehicle{
		ID: "v2", Name: "Unit 2", Status: model.VehicleAvailable,
		Position: model.Point{Lat: 24.86, Lng: 67.0}, PositionAt: t0,
		HasHardware: true, PerformanceRatio: 0.8, FatigueCount: 2,
	}
	require.NoError(t, s.SaveVehicle(ctx, v))
	require.NoError(t, s.SaveVehicle(ctx, model.Vehicle{ID: "v1", Status: model.VehicleOnRoute, AssignedFaultID: "f1"}))

	got, err := s.GetVehicle(ctx, "v2")
	require.NoError(t, err)
	assert.Equal(t, v.Position, got.Position)
	assert.True(t, got.PositionAt.Equal(t0))
	assert.True(t, got.HasHardware)
	assert.Equal(t, 0.8, got.PerformanceRatio)

	v.FatigueCount = 3
	require.NoError(t, s.SaveVehicle(ctx, v))
	got, _ = s.GetVehicle(ctx, "v2")
	assert.Equal(t, 3, got.FatigueCount)

	all, err := s.ListVehicles(ctx, store.VehicleFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "v1", all[0].ID)
	avail, err := s.ListVehicles(ctx, store.VehicleFilter{Status: model.VehicleAvailable})
	require.NoError(t, err)
	require.Len(t, avail, 1)
	assert.Equal(t, "v2", avail[0].ID)
}

func testFaults(t *testing.T, s store.Store) {
	ctx := context.Background()
	_, err := s.GetFault(ctx, "nope")
	assert.ErrorIs(t, err, model.ErrNotFound)

	resolved := t0.Add(time.Hour)
	f1 := model.Fault{ID: "f1", Category: "power", Severity: model.SeverityHigh, Location: model.Point{Lat: 1, Lng: 2},
		Status: model.FaultResolved, ResolvedBy: "v1", CreatedAt: t0, UpdatedAt: resolved, ResolvedAt: &resolved}
	f2 := model.Fault{ID: "f2", Category: "water", Severity: model.SeverityLow, Location: model.Point{Lat: 3, Lng: 4},
		Status: model.FaultWaiting, CreatedAt: t0.Add(time.Minute), UpdatedAt: t0.Add(time.Minute)}
	require.NoError(t, s.SaveFault(ctx, f1))
	require.NoError(t, s.SaveFault(ctx, f2))

	got, err := s.GetFault(ctx, "f1")
	require.NoError(t, err)
	require.NotNil(t, got.ResolvedAt)
	assert.True(t, got.ResolvedAt.Equal(resolved))
	assert.Equal(t, model.SeverityHigh, got.Severity)

	byVehicle, err := s.ListFaults(ctx, store.FaultFilter{ResolvedBy: "v1"})
	require.NoError(t, err)
	require.Len(t, byVehicle, 1)
	waiting, err := s.ListFaults(ctx, store.FaultFilter{Status: model.FaultWaiting})
	require.NoError(t, err)
	require.Len(t, waiting, 1)
	assert.Equal(t, "f2", waiting[0].ID)
	all, _ := s.ListFaults(ctx, store.FaultFilter{})
	require.Len(t, all, 2)
	assert.Equal(t, "f1", all[0].ID)
}

func testRoutes(t *testing.T, s store.Store) {
	ctx := context.Background()
	_, err := s.ActiveRoute(ctx, "v1")
	assert.ErrorIs(t, err, model.ErrNotFound)

	r1 := model.Route{ID: "r1", VehicleID: "v1", FaultID: "f1", Waypoints: []model.Point{{Lat: 1, Lng: 1}, {Lat: 2, Lng: 2}},
		DistanceM: 100, DurationS: 10, Source: "osrm", StartedAt: t0}
	prev, err := s.ReplaceActiveRoute(ctx, r1)
	require.NoError(t, err)
	assert.Empty(t, prev)

	r2 := r1
	r2.ID = "r2"
	r2.StartedAt = t0.Add(time.Minute)
	r2.Fallback = true
	prev, err = s.ReplaceActiveRoute(ctx, r2)
	require.NoError(t, err)
	assert.Equal(t, "r1", prev)

	act, err := s.ActiveRoute(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, "r2", act.ID)
	assert.True(t, act.Fallback)
	assert.True(t, act.StartedAt.Equal(r2.StartedAt))
	assert.Len(t, act.Waypoints, 2)

	all, err := s.ListRoutes(ctx, "v1")
	require.NoError(t, err)
	require.Len(t, all, 2)
	active := 0
	for _, r := range all {
		if r.Status == model.RouteActive {
			active++
		}
		if r.ID == "r1" {
			assert.Equal(t, model.RouteSuperseded, r.Status)
		}
	}
	assert.Equal(t, 1, active)

	ok, err := s.CloseActiveRoute(ctx, "v1", model.RouteCompleted, t0.Add(2*time.Minute))
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.CloseActiveRoute(ctx, "v1", model.RouteCancelled, t0)
	require.NoError(t, err)
	assert.False(t, ok)
	_, err = s.ActiveRoute(ctx, "v1")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func testPositions(t *testing.T, s store.Store) {
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, s.AppendPosition(ctx, model.PositionSnapshot{
			VehicleID: "v1", Position: model.Point{Lat: float64(i), Lng: 1}, Speed: 10,
			Status: model.VehicleOnRoute, RecordedAt: t0.Add(time.Duration(i) * time.Second),
		}))
	}
	require.NoError(t, s.AppendPosition(ctx, model.PositionSnapshot{VehicleID: "v2", RecordedAt: t0}))
	got, err := s.ListPositions(ctx, "v1", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 2.0, got[0].Position.Lat)
	assert.Equal(t, 1.0, got[1].Position.Lat)
}

func testTrips(t *testing.T, s store.Store) {
	ctx := context.Background()
	ok, err := s.CloseOpenTrip(ctx, "v1", model.Point{}, t0)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.OpenTrip(ctx, model.Trip{ID: "t1", VehicleID: "v1", FaultID: "f1", Start: model.Point{Lat: 1, Lng: 1}, StartedAt: t0}))
	end := model.Point{Lat: 2, Lng: 2}
	ok, err = s.CloseOpenTrip(ctx, "v1", end, t0.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, ok)

	trips, err := s.ListTrips(ctx, "v1")
	require.NoError(t, err)
	require.Len(t, trips, 1)
	assert.False(t, trips[0].Open())
	require.NotNil(t, trips[0].End)
	assert.Equal(t, end, *trips[0].End)
}

func testAlerts(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.CreateAlert(ctx, model.Alert{ID: "a1", FaultID: "f1", VehicleID: "v1", Message: "dispatched", CreatedAt: t0}))
	require.NoError(t, s.CreateAlert(ctx, model.Alert{ID: "a2", FaultID: "f1", VehicleID: "v2", Message: "dispatched", CreatedAt: t0}))
	ok, err := s.SolveAlert(ctx, "f1", "v1", t0.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.SolveAlert(ctx, "f1", "v1", t0.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, ok)

	alerts, err := s.ListAlerts(ctx, "f1")
	require.NoError(t, err)
	require.Len(t, alerts, 2)
	for _, a := range alerts {
		assert.Equal(t, a.VehicleID == "v1", a.Solved, a.ID)
	}
}
