// Package respond writes JSON responses and maps domain errors to HTTP
// status codes.
package respond

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/kilianp07/faultfleet/core/dispatch"
	"github.com/kilianp07/faultfleet/core/fleet"
	"github.com/kilianp07/faultfleet/core/lifecycle"
	"github.com/kilianp07/faultfleet/core/model"
)

type errorBody struct {
	Error string `json:"error"`
}

// JSON writes v with the given status.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Status returns the HTTP status for err.
func Status(err error) int {
	switch {
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, lifecycle.ErrIllegalTransition),
		errors.Is(err, dispatch.ErrFaultNotWaiting),
		errors.Is(err, dispatch.ErrNoActiveAttempt),
		errors.Is(err, dispatch.ErrNoEligibleVehicle):
		return http.StatusConflict
	case errors.Is(err, model.ErrInvalidSample),
		errors.Is(err, fleet.ErrInvalidInput):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// Error writes err as {"error": "..."} with the mapped status.
func Error(w http.ResponseWriter, err error) {
	JSON(w, Status(err), errorBody{Error: err.Error()})
}

// BadRequest writes a 400 with msg.
func BadRequest(w http.ResponseWriter, msg string) {
	JSON(w, http.StatusBadRequest, errorBody{Error: msg})
}

// Decode reads a JSON body into v, rejecting unknown fields.
func Decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
