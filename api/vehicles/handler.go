// Package vehicles exposes the vehicle roster, routes, position intake and
// the guarded status write path over HTTP.
package vehicles

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/kilianp07/faultfleet/api/respond"
	"github.com/kilianp07/faultfleet/core/model"
	"github.com/kilianp07/faultfleet/core/store"
	"github.com/kilianp07/faultfleet/core/tracking"
)

// Fleet registers vehicles and applies external status changes.
type Fleet interface {
	RegisterVehicle(ctx context.Context, in model.Vehicle) (model.Vehicle, error)
	SetVehicleStatus(ctx context.Context, vehicleID, status string) (model.Vehicle, error)
}

// SampleHandler consumes position samples.
type SampleHandler interface {
	HandleSample(ctx context.Context, s model.PositionSample) (tracking.Outcome, error)
}

// Reader is the read side of the store used by the handler.
type Reader interface {
	store.Vehicles
	store.Routes
	store.Positions
	store.Trips
}

// Handler serves the /api/vehicles routes.
type Handler struct {
	fleet   Fleet
	samples SampleHandler
	store   Reader
}

// NewHandler creates a Handler.
func NewHandler(f Fleet, samples SampleHandler, st Reader) *Handler {
	return &Handler{fleet: f, samples: samples, store: st}
}

// Routes returns the sub-router mounted on /api/vehicles.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.list)
	r.Post("/", h.register)
	r.Get("/{id}", h.get)
	r.Get("/{id}/route", h.route)
	r.Get("/{id}/positions", h.positions)
	r.Post("/{id}/positions", h.report)
	r.Get("/{id}/trips", h.trips)
	r.Put("/{id}/status", h.status)
	return r
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	f := store.VehicleFilter{Status: model.VehicleStatus(r.URL.Query().Get("status"))}
	vs, err := h.store.ListVehicles(r.Context(), f)
	if err != nil {
		respond.Error(w, err)
		return
	}
	if vs == nil {
		vs = []model.Vehicle{}
	}
	respond.JSON(w, http.StatusOK, vs)
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var in model.Vehicle
	if err := respond.Decode(w, r, &in); err != nil {
		respond.BadRequest(w, "invalid vehicle payload: "+err.Error())
		return
	}
	v, err := h.fleet.RegisterVehicle(r.Context(), in)
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, v)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	v, err := h.store.GetVehicle(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, v)
}

func (h *Handler) route(w http.ResponseWriter, r *http.Request) {
	rt, err := h.store.ActiveRoute(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, rt)
}

func (h *Handler) positions(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			respond.BadRequest(w, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	ps, err := h.store.ListPositions(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		respond.Error(w, err)
		return
	}
	if ps == nil {
		ps = []model.PositionSnapshot{}
	}
	respond.JSON(w, http.StatusOK, ps)
}

func (h *Handler) report(w http.ResponseWriter, r *http.Request) {
	var s model.PositionSample
	if err := respond.Decode(w, r, &s); err != nil {
		respond.BadRequest(w, "invalid position payload: "+err.Error())
		return
	}
	id := chi.URLParam(r, "id")
	if s.VehicleID == "" {
		s.VehicleID = id
	}
	if s.VehicleID != id {
		respond.BadRequest(w, "vehicle_id does not match the path")
		return
	}
	out, err := h.samples.HandleSample(r.Context(), s)
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, out)
}

func (h *Handler) trips(w http.ResponseWriter, r *http.Request) {
	ts, err := h.store.ListTrips(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respond.Error(w, err)
		return
	}
	if ts == nil {
		ts = []model.Trip{}
	}
	respond.JSON(w, http.StatusOK, ts)
}

type statusRequest struct {
	Status string `json:"status"`
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	var in statusRequest
	if err := respond.Decode(w, r, &in); err != nil || in.Status == "" {
		respond.BadRequest(w, "status is required")
		return
	}
	v, err := h.fleet.SetVehicleStatus(r.Context(), chi.URLParam(r, "id"), in.Status)
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, v)
}
