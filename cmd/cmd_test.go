package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/faultfleet/core/model"
	"github.com/kilianp07/faultfleet/core/routing"
	"github.com/kilianp07/faultfleet/simulator"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() { rootCmd.SetArgs(nil) })
	err := rootCmd.Execute()
	return out.String(), err
}

func TestParsePoint(t *testing.T) {
	p, err := parsePoint("24.86, 67.001")
	require.NoError(t, err)
	assert.Equal(t, model.Point{Lat: 24.86, Lng: 67.001}, p)

	for _, bad := range []string{"24.86", "north,67", "24.86,east", "91,0"} {
		_, err := parsePoint(bad)
		assert.Error(t, err, bad)
	}
}

func TestRouteCommandUsesFallback(t *testing.T) {
	var res routing.Result
	out, err := execute(t, "route", "-c", "", "--from", "24.86,67.00", "--to", "24.87,67.00")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.True(t, res.Fallback)
	assert.InDelta(t, 1112, res.DistanceM, 5)
}

func TestDispatchCommand(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		switch r.URL.Path {
		case "/api/faults/F1/dispatch":
			_, _ = w.Write([]byte(`{"fault_id":"F1","vehicle_id":"V1"}`))
		default:
			w.WriteHeader(http.StatusConflict)
			_, _ = w.Write([]byte(`{"error":"fault not waiting"}`))
		}
	}))
	defer srv.Close()

	out, err := execute(t, "dispatch", "--fault", "F1", "--api", srv.URL+"/")
	require.NoError(t, err)
	assert.Contains(t, out, `"vehicle_id":"V1"`)

	_, err = execute(t, "dispatch", "--fault", "F2", "--api", srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 409")
}

func TestPredictorHealthCommand(t *testing.T) {
	loaded := true
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/health", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "ok", "model_loaded": loaded})
	}))
	defer srv.Close()

	out, err := execute(t, "predictor-health", "--url", srv.URL)
	require.NoError(t, err)
	assert.Contains(t, out, `"model_loaded":true`)

	loaded = false
	_, err = execute(t, "predictor-health", "--url", srv.URL)
	assert.EqualError(t, err, "predictor model not loaded")
}

func TestRegisterSimulatedVehicle(t *testing.T) {
	var got model.Vehicle
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/vehicles", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		if got.ID == "veh0002" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(got)
	}))
	defer srv.Close()

	v := simulator.NewSimulatedVehicle("veh0001", model.Point{Lat: 24.86, Lng: 67.0}, nil)
	v.HasHardware = true
	require.NoError(t, register(context.Background(), srv.URL, v))
	assert.Equal(t, "veh0001", got.ID)
	assert.True(t, got.HasHardware)

	err := register(context.Background(), srv.URL, simulator.NewSimulatedVehicle("veh0002", model.Point{}, nil))
	assert.ErrorContains(t, err, "status 400")
}
