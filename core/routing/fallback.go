package routing

import (
	"github.com/kilianp07/faultfleet/core/geo"
	"github.com/kilianp07/faultfleet/core/model"
)

// SourceHaversine tags results produced without an external router.
const SourceHaversine = "haversine"

// StraightLine estimates a route as the great-circle segment between the
// inputs travelled at speedMS.
func StraightLine(from, to model.Point, speedMS float64) Result {
	d := geo.Distance(from, to)
	dur := 0.0
	if speedMS > 0 {
		dur = d / speedMS
	}
	return Result{
		DistanceM: d,
		DurationS: dur,
		Path:      []model.Point{from, to},
		Source:    SourceHaversine,
		Fallback:  true,
	}
}
