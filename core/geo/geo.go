// Package geo provides great-circle distances and interpolation along
// waypoint paths on a spherical Earth.
package geo

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/kilianp07/faultfleet/core/model"
)

// EarthRadiusM is the mean Earth radius used by Distance.
const EarthRadiusM = 6371000.0

// Distance returns the Haversine distance between a and b in meters.
func Distance(a, b model.Point) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * EarthRadiusM * math.Asin(math.Min(1, math.Sqrt(h)))
}

// segments returns the length of each consecutive segment of path.
func segments(path []model.Point) []float64 {
	if len(path) < 2 {
		return nil
	}
	out := make([]float64, len(path)-1)
	for i := 1; i < len(path); i++ {
		out[i-1] = Distance(path[i-1], path[i])
	}
	return out
}

// PathLength returns the total length of path in meters.
func PathLength(path []model.Point) float64 {
	segs := segments(path)
	if len(segs) == 0 {
		return 0
	}
	return floats.Sum(segs)
}

// Interpolate returns the point reached after travelling traveled meters
// along path. It returns the first waypoint for non-positive distances and
// the last one once the path is exhausted.
func Interpolate(path []model.Point, traveled float64) model.Point {
	switch len(path) {
	case 0:
		return model.Point{}
	case 1:
		return path[0]
	}
	if traveled <= 0 || math.IsNaN(traveled) {
		return path[0]
	}
	segs := segments(path)
	cum := floats.CumSum(make([]float64, len(segs)), segs)
	for i, end := range cum {
		if traveled > end {
			continue
		}
		if segs[i] == 0 {
			return path[i+1]
		}
		frac := (traveled - (end - segs[i])) / segs[i]
		a, b := path[i], path[i+1]
		return model.Point{
			Lat: a.Lat + (b.Lat-a.Lat)*frac,
			Lng: a.Lng + (b.Lng-a.Lng)*frac,
		}
	}
	return path[len(path)-1]
}

// KMHToMS converts a speed in km/h to m/s.
func KMHToMS(kmh float64) float64 { return kmh * 1000 / 3600 }
