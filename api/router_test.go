package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/faultfleet/core/dispatch"
	"github.com/kilianp07/faultfleet/core/fleet"
	"github.com/kilianp07/faultfleet/core/model"
	"github.com/kilianp07/faultfleet/core/resolution"
	"github.com/kilianp07/faultfleet/core/routing"
	"github.com/kilianp07/faultfleet/core/scheduler"
	"github.com/kilianp07/faultfleet/core/store"
	"github.com/kilianp07/faultfleet/core/tracking"
	"github.com/kilianp07/faultfleet/internal/eventbus"
	"github.com/kilianp07/faultfleet/internal/keylock"
)

var site = model.Point{Lat: 24.8607, Lng: 67.0011}

func newTestServer(t *testing.T, checks map[string]HealthCheck) *httptest.Server {
	t.Helper()
	st := store.NewMemoryStore()
	locks := keylock.New()
	sched := scheduler.New()
	t.Cleanup(sched.Stop)
	bus := eventbus.New()
	t.Cleanup(bus.Close)
	router := routing.NewService(nil, routing.Config{})

	engine, err := dispatch.NewEngine(dispatch.Config{}, dispatch.Deps{
		Store: st, Router: router, Scheduler: sched, Locks: locks, Bus: bus,
	})
	require.NoError(t, err)
	res := resolution.New(resolution.Config{DelaySeconds: 3600}, st, sched, locks,
		resolution.WithBus(bus), resolution.WithReleaser(engine))
	mon := tracking.New(tracking.Config{}, st, router, res, locks,
		tracking.WithBus(bus), tracking.WithAcknowledger(engine))
	svc, err := fleet.NewService(fleet.Deps{Store: st, Locks: locks, Dispatcher: engine, Arrivals: mon, Resolver: res, Bus: bus})
	require.NoError(t, err)

	srv := httptest.NewServer(NewRouter(Deps{
		Store:      st,
		Fleet:      svc,
		Dispatcher: engine,
		Samples:    mon,
		Bus:        bus,
		Checks:     checks,
	}))
	t.Cleanup(srv.Close)
	return srv
}

func call(t *testing.T, srv *httptest.Server, method, path string, body any, out any) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, srv.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 && resp.StatusCode != http.StatusNoContent {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestFaultLifecycleOverHTTP(t *testing.T) {
	srv := newTestServer(t, nil)

	var v model.Vehicle
	require.Equal(t, http.StatusOK, call(t, srv, http.MethodPost, "/api/vehicles", map[string]any{
		"id": "V1", "has_hardware": true, "performance_ratio": 0.9,
		"position": map[string]float64{"lat": site.Lat + 0.01, "lng": site.Lng},
	}, &v))
	assert.Equal(t, model.VehicleAvailable, v.Status)

	var f model.Fault
	require.Equal(t, http.StatusCreated, call(t, srv, http.MethodPost, "/api/faults", fleet.FaultInput{
		Category: "power", Severity: "high", Location: site,
	}, &f))
	assert.Equal(t, model.FaultWaiting, f.Status)

	var res dispatch.Result
	require.Equal(t, http.StatusOK, call(t, srv, http.MethodPost, "/api/faults/"+f.ID+"/dispatch", nil, &res))
	assert.Equal(t, "V1", res.VehicleID)
	assert.True(t, res.RequiresAck)
	assert.Equal(t, http.StatusConflict, call(t, srv, http.MethodPost, "/api/faults/"+f.ID+"/dispatch", nil, nil))

	assert.Equal(t, http.StatusBadRequest, call(t, srv, http.MethodPost, "/api/faults/"+f.ID+"/ack", map[string]string{}, nil))
	assert.Equal(t, http.StatusConflict, call(t, srv, http.MethodPost, "/api/faults/"+f.ID+"/ack", map[string]string{"vehicle_id": "V2"}, nil))
	require.Equal(t, http.StatusNoContent, call(t, srv, http.MethodPost, "/api/faults/"+f.ID+"/ack", map[string]string{"vehicle_id": "V1"}, nil))

	var route model.Route
	require.Equal(t, http.StatusOK, call(t, srv, http.MethodGet, "/api/vehicles/V1/route", nil, &route))
	assert.Equal(t, f.ID, route.FaultID)
	assert.NotEmpty(t, route.Waypoints)

	var out tracking.Outcome
	require.Equal(t, http.StatusOK, call(t, srv, http.MethodPost, "/api/vehicles/V1/positions", map[string]float64{
		"lat": site.Lat, "lng": site.Lng,
	}, &out))
	assert.True(t, out.Arrived)
	assert.Equal(t, model.VehicleWorking, out.Status)

	require.Equal(t, http.StatusOK, call(t, srv, http.MethodPut, "/api/vehicles/V1/status", map[string]string{"status": "available"}, &v))
	assert.Equal(t, model.VehicleAvailable, v.Status)
	assert.Equal(t, 1, v.FatigueCount)

	require.Equal(t, http.StatusOK, call(t, srv, http.MethodGet, "/api/faults/"+f.ID, nil, &f))
	assert.Equal(t, model.FaultResolved, f.Status)
	assert.Equal(t, "V1", f.ResolvedBy)

	var trips []model.Trip
	require.Equal(t, http.StatusOK, call(t, srv, http.MethodGet, "/api/vehicles/V1/trips", nil, &trips))
	require.Len(t, trips, 1)
	assert.NotNil(t, trips[0].EndedAt)
}

func TestErrorMapping(t *testing.T) {
	srv := newTestServer(t, nil)
	assert.Equal(t, http.StatusNotFound, call(t, srv, http.MethodGet, "/api/faults/missing", nil, nil))
	assert.Equal(t, http.StatusNotFound, call(t, srv, http.MethodGet, "/api/vehicles/missing/route", nil, nil))
	assert.Equal(t, http.StatusBadRequest, call(t, srv, http.MethodPost, "/api/faults", fleet.FaultInput{Category: "power", Severity: "apocalyptic", Location: site}, nil))

	require.Equal(t, http.StatusOK, call(t, srv, http.MethodPost, "/api/vehicles", map[string]any{"id": "V1"}, nil))
	assert.Equal(t, http.StatusBadRequest, call(t, srv, http.MethodPut, "/api/vehicles/V1/status", map[string]string{"status": "flying"}, nil))
	assert.Equal(t, http.StatusConflict, call(t, srv, http.MethodPut, "/api/vehicles/V1/status", map[string]string{"status": "working"}, nil))
	assert.Equal(t, http.StatusBadRequest, call(t, srv, http.MethodPost, "/api/vehicles/V1/positions", map[string]float64{"lat": 123, "lng": 0}, nil))
	assert.Equal(t, http.StatusBadRequest, call(t, srv, http.MethodPost, "/api/vehicles/V1/positions", map[string]any{"vehicle_id": "V2", "lat": 1, "lng": 1}, nil))

	var vs []model.Vehicle
	require.Equal(t, http.StatusOK, call(t, srv, http.MethodGet, "/api/vehicles?status=onRoute", nil, &vs))
	assert.Empty(t, vs)
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, map[string]HealthCheck{
		"store":     func(context.Context) error { return nil },
		"predictor": func(context.Context) error { return errors.New("model not loaded") },
	})
	resp, err := http.Get(srv.URL + "/api/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	var h health
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&h))
	assert.Equal(t, "degraded", h.Status)
	assert.Equal(t, "ok", h.Checks["store"])
	assert.Equal(t, "model not loaded", h.Checks["predictor"])
}
