// Package faults exposes fault intake, lookup, manual dispatch and
// acknowledgment over HTTP.
package faults

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kilianp07/faultfleet/api/respond"
	"github.com/kilianp07/faultfleet/core/dispatch"
	"github.com/kilianp07/faultfleet/core/fleet"
	"github.com/kilianp07/faultfleet/core/model"
	"github.com/kilianp07/faultfleet/core/store"
)

// Creator stores new faults.
type Creator interface {
	CreateFault(ctx context.Context, in fleet.FaultInput) (model.Fault, error)
}

// Dispatcher runs dispatch synchronously and accepts acknowledgments.
type Dispatcher interface {
	Dispatch(ctx context.Context, faultID string, trigger dispatch.Trigger) (dispatch.Result, error)
	Acknowledge(ctx context.Context, faultID, vehicleID string) error
}

// Handler serves the /api/faults routes.
type Handler struct {
	creator    Creator
	faults     store.Faults
	dispatcher Dispatcher
}

// NewHandler creates a Handler.
func NewHandler(c Creator, faults store.Faults, d Dispatcher) *Handler {
	return &Handler{creator: c, faults: faults, dispatcher: d}
}

// Routes returns the sub-router mounted on /api/faults.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/{id}", h.get)
	r.Post("/{id}/dispatch", h.dispatch)
	r.Post("/{id}/ack", h.ack)
	return r
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var in fleet.FaultInput
	if err := respond.Decode(w, r, &in); err != nil {
		respond.BadRequest(w, "invalid fault payload: "+err.Error())
		return
	}
	f, err := h.creator.CreateFault(r.Context(), in)
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.JSON(w, http.StatusCreated, f)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := store.FaultFilter{
		Status:     model.FaultStatus(q.Get("status")),
		Category:   q.Get("category"),
		ResolvedBy: q.Get("resolved_by"),
	}
	faults, err := h.faults.ListFaults(r.Context(), f)
	if err != nil {
		respond.Error(w, err)
		return
	}
	if faults == nil {
		faults = []model.Fault{}
	}
	respond.JSON(w, http.StatusOK, faults)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	f, err := h.faults.GetFault(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, f)
}

func (h *Handler) dispatch(w http.ResponseWriter, r *http.Request) {
	res, err := h.dispatcher.Dispatch(r.Context(), chi.URLParam(r, "id"), dispatch.TriggerManual)
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, res)
}

type ackRequest struct {
	VehicleID string `json:"vehicle_id"`
}

func (h *Handler) ack(w http.ResponseWriter, r *http.Request) {
	var in ackRequest
	if err := respond.Decode(w, r, &in); err != nil || in.VehicleID == "" {
		respond.BadRequest(w, "vehicle_id is required")
		return
	}
	if err := h.dispatcher.Acknowledge(r.Context(), chi.URLParam(r, "id"), in.VehicleID); err != nil {
		respond.Error(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
