// Package routing computes travel distance and path between two coordinates.
// It wraps an unreliable external router behind a circuit breaker and a
// cache, and degrades to a straight-line estimate when the router cannot
// answer.
package routing

import (
	"context"

	"github.com/kilianp07/faultfleet/core/model"
)

// Result is the answer for one (start, end) pair.
type Result struct {
	DistanceM float64       `json:"distance_m"`
	DurationS float64       `json:"duration_s"`
	Path      []model.Point `json:"path"`
	Source    string        `json:"source"`
	Fallback  bool          `json:"fallback"`
}

func (r Result) clone() Result {
	if r.Path != nil {
		p := make([]model.Point, len(r.Path))
		copy(p, r.Path)
		r.Path = p
	}
	return r
}

// Router is an external routing engine.
type Router interface {
	Name() string
	Route(ctx context.Context, from, to model.Point) (Result, error)
}
