package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/faultfleet/core/model"
)

// MemoryStore keeps every entity in process memory.
type MemoryStore struct {
	mu        sync.RWMutex
	vehicles  map[string]model.Vehicle
	faults    map[string]model.Fault
	routes    []model.Route
	positions []model.PositionSnapshot
	trips     []model.Trip
	alerts    []model.Alert
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		vehicles: map[string]model.Vehicle{},
		faults:   map[string]model.Fault{},
	}
}

func (s *MemoryStore) GetVehicle(_ context.Context, id string) (model.Vehicle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.vehicles[id]
	if !ok {
		return model.Vehicle{}, fmt.Errorf("vehicle %s: %w", id, model.ErrNotFound)
	}
	return v, nil
}

func (s *MemoryStore) ListVehicles(_ context.Context, f VehicleFilter) ([]model.Vehicle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := make([]model.Vehicle, 0, len(s.vehicles))
	for _, v := range s.vehicles {
		if f.Status != "" && v.Status != f.Status {
			continue
		}
		res = append(res, v)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}

func (s *MemoryStore) SaveVehicle(_ context.Context, v model.Vehicle) error {
	if v.ID == "" {
		return fmt.Errorf("vehicle id is required")
	}
	s.mu.Lock()
	s.vehicles[v.ID] = v
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) GetFault(_ context.Context, id string) (model.Fault, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.faults[id]
	if !ok {
		return model.Fault{}, fmt.Errorf("fault %s: %w", id, model.ErrNotFound)
	}
	return f, nil
}

func (s *MemoryStore) ListFaults(_ context.Context, f FaultFilter) ([]model.Fault, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := make([]model.Fault, 0, len(s.faults))
	for _, ft := range s.faults {
		if f.Status != "" && ft.Status != f.Status {
			continue
		}
		if f.ResolvedBy != "" && ft.ResolvedBy != f.ResolvedBy {
			continue
		}
		if f.Category != "" && ft.Category != f.Category {
			continue
		}
		res = append(res, ft)
	}
	sort.Slice(res, func(i, j int) bool {
		if !res[i].CreatedAt.Equal(res[j].CreatedAt) {
			return res[i].CreatedAt.Before(res[j].CreatedAt)
		}
		return res[i].ID < res[j].ID
	})
	return res, nil
}

func (s *MemoryStore) SaveFault(_ context.Context, f model.Fault) error {
	if f.ID == "" {
		return fmt.Errorf("fault id is required")
	}
	s.mu.Lock()
	s.faults[f.ID] = f
	s.mu.Unlock()
	return nil
}

func cloneRoute(r model.Route) model.Route {
	r.Waypoints = append([]model.Point(nil), r.Waypoints...)
	return r
}

func (s *MemoryStore) ActiveRoute(_ context.Context, vehicleID string) (model.Route, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.routes) - 1; i >= 0; i-- {
		r := s.routes[i]
		if r.VehicleID == vehicleID && r.Status == model.RouteActive {
			return cloneRoute(r), nil
		}
	}
	return model.Route{}, fmt.Errorf("active route for %s: %w", vehicleID, model.ErrNotFound)
}

func (s *MemoryStore) ReplaceActiveRoute(_ context.Context, r model.Route) (string, error) {
	if r.VehicleID == "" {
		return "", fmt.Errorf("route vehicle id is required")
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	r.Status = model.RouteActive
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = r.StartedAt
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := ""
	for i := range s.routes {
		if s.routes[i].VehicleID == r.VehicleID && s.routes[i].Status == model.RouteActive {
			s.routes[i].Status = model.RouteSuperseded
			s.routes[i].UpdatedAt = r.StartedAt
			prev = s.routes[i].ID
		}
	}
	s.routes = append(s.routes, cloneRoute(r))
	return prev, nil
}

func (s *MemoryStore) CloseActiveRoute(_ context.Context, vehicleID string, status model.RouteStatus, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	closed := false
	for i := range s.routes {
		if s.routes[i].VehicleID == vehicleID && s.routes[i].Status == model.RouteActive {
			s.routes[i].Status = status
			s.routes[i].UpdatedAt = at
			closed = true
		}
	}
	return closed, nil
}

func (s *MemoryStore) ListRoutes(_ context.Context, vehicleID string) ([]model.Route, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var res []model.Route
	for _, r := range s.routes {
		if vehicleID == "" || r.VehicleID == vehicleID {
			res = append(res, cloneRoute(r))
		}
	}
	return res, nil
}

func (s *MemoryStore) AppendPosition(_ context.Context, p model.PositionSnapshot) error {
	s.mu.Lock()
	s.positions = append(s.positions, p)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) ListPositions(_ context.Context, vehicleID string, limit int) ([]model.PositionSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var res []model.PositionSnapshot
	for i := len(s.positions) - 1; i >= 0; i-- {
		if s.positions[i].VehicleID != vehicleID {
			continue
		}
		res = append(res, s.positions[i])
		if limit > 0 && len(res) == limit {
			break
		}
	}
	return res, nil
}

func (s *MemoryStore) OpenTrip(_ context.Context, t model.Trip) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	s.mu.Lock()
	s.trips = append(s.trips, t)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) CloseOpenTrip(_ context.Context, vehicleID string, end model.Point, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.trips) - 1; i >= 0; i-- {
		t := &s.trips[i]
		if t.VehicleID == vehicleID && t.Open() {
			e, ts := end, at
			t.End = &e
			t.EndedAt = &ts
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) ListTrips(_ context.Context, vehicleID string) ([]model.Trip, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var res []model.Trip
	for _, t := range s.trips {
		if vehicleID == "" || t.VehicleID == vehicleID {
			res = append(res, t)
		}
	}
	return res, nil
}

func (s *MemoryStore) CreateAlert(_ context.Context, a model.Alert) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	s.mu.Lock()
	s.alerts = append(s.alerts, a)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) SolveAlert(_ context.Context, faultID, vehicleID string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	solved := false
	for i := range s.alerts {
		a := &s.alerts[i]
		if a.FaultID == faultID && a.VehicleID == vehicleID && !a.Solved {
			ts := at
			a.Solved = true
			a.SolvedAt = &ts
			solved = true
		}
	}
	return solved, nil
}

func (s *MemoryStore) ListAlerts(_ context.Context, faultID string) ([]model.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var res []model.Alert
	for _, a := range s.alerts {
		if faultID == "" || a.FaultID == faultID {
			res = append(res, a)
		}
	}
	return res, nil
}

func (s *MemoryStore) Close() error { return nil }
