package vehicles

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/faultfleet/core/model"
	"github.com/kilianp07/faultfleet/core/store"
	"github.com/kilianp07/faultfleet/core/tracking"
)

type fakeFleet struct{ statuses []string }

func (f *fakeFleet) RegisterVehicle(_ context.Context, in model.Vehicle) (model.Vehicle, error) {
	in.Status = model.VehicleAvailable
	return in, nil
}

func (f *fakeFleet) SetVehicleStatus(_ context.Context, id, status string) (model.Vehicle, error) {
	f.statuses = append(f.statuses, id+":"+status)
	return model.Vehicle{ID: id, Status: model.VehicleStatus(status)}, nil
}

type fakeSamples struct{ got []model.PositionSample }

func (f *fakeSamples) HandleSample(_ context.Context, s model.PositionSample) (tracking.Outcome, error) {
	f.got = append(f.got, s)
	return tracking.Outcome{VehicleID: s.VehicleID, Status: model.VehicleAvailable}, nil
}

func serve(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(method, target, strings.NewReader(body)))
	return rr
}

func TestListEmpty(t *testing.T) {
	h := NewHandler(&fakeFleet{}, &fakeSamples{}, store.NewMemoryStore()).Routes()
	rr := serve(h, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "[]\n", rr.Body.String())
}

func TestReportTakesVehicleFromPath(t *testing.T) {
	samples := &fakeSamples{}
	h := NewHandler(&fakeFleet{}, samples, store.NewMemoryStore()).Routes()
	rr := serve(h, http.MethodPost, "/V1/positions", `{"lat":24.86,"lng":67.0,"speed":4.5}`)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Len(t, samples.got, 1)
	assert.Equal(t, "V1", samples.got[0].VehicleID)
	assert.Equal(t, 4.5, samples.got[0].Speed)

	rr = serve(h, http.MethodPost, "/V1/positions", `{"lat":24.86,"lng":67.0,"heading":90}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestPositionsHistory(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()
	now := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, st.AppendPosition(ctx, model.PositionSnapshot{VehicleID: "V1", Position: model.Point{Lat: float64(i), Lng: 1}, RecordedAt: now.Add(time.Duration(i) * time.Second)}))
	}
	h := NewHandler(&fakeFleet{}, &fakeSamples{}, st).Routes()

	rr := serve(h, http.MethodGet, "/V1/positions?limit=2", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var ps []model.PositionSnapshot
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &ps))
	assert.Len(t, ps, 2)

	assert.Equal(t, http.StatusBadRequest, serve(h, http.MethodGet, "/V1/positions?limit=-1", "").Code)
}

func TestStatusRequiresBody(t *testing.T) {
	f := &fakeFleet{}
	h := NewHandler(f, &fakeSamples{}, store.NewMemoryStore()).Routes()
	assert.Equal(t, http.StatusBadRequest, serve(h, http.MethodPut, "/V1/status", `{}`).Code)
	rr := serve(h, http.MethodPut, "/V1/status", `{"status":"working"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []string{"V1:working"}, f.statuses)
}
