package respond

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kilianp07/faultfleet/core/dispatch"
	"github.com/kilianp07/faultfleet/core/fleet"
	"github.com/kilianp07/faultfleet/core/lifecycle"
	"github.com/kilianp07/faultfleet/core/model"
)

func TestStatus(t *testing.T) {
	cases := map[error]int{
		fmt.Errorf("fault x: %w", model.ErrNotFound):       http.StatusNotFound,
		lifecycle.ErrIllegalTransition:                     http.StatusConflict,
		dispatch.ErrFaultNotWaiting:                        http.StatusConflict,
		dispatch.ErrNoActiveAttempt:                        http.StatusConflict,
		dispatch.ErrNoEligibleVehicle:                      http.StatusConflict,
		fmt.Errorf("%w: lat", model.ErrInvalidSample):      http.StatusBadRequest,
		fmt.Errorf("%w: severity", fleet.ErrInvalidInput): http.StatusBadRequest,
		errors.New("disk full"):                            http.StatusInternalServerError,
	}
	for err, want := range cases {
		assert.Equal(t, want, Status(err), err.Error())
	}
}

func TestError(t *testing.T) {
	rr := httptest.NewRecorder()
	Error(rr, model.ErrNotFound)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.JSONEq(t, `{"error":"not found"}`, rr.Body.String())
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
}
