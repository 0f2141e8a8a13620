package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kilianp07/faultfleet/core/model"
)

func TestDistanceZero(t *testing.T) {
	p := model.Point{Lat: 24.8607, Lng: 67.0011}
	assert.Equal(t, 0.0, Distance(p, p))
}

func TestDistanceKnownPair(t *testing.T) {
	// One degree of latitude on a 6371 km sphere.
	d := Distance(model.Point{Lat: 0, Lng: 0}, model.Point{Lat: 1, Lng: 0})
	assert.InDelta(t, 111194.9, d, 0.5)
}

func TestPathLength(t *testing.T) {
	path := []model.Point{{Lat: 0, Lng: 0}, {Lat: 0.001, Lng: 0}, {Lat: 0.002, Lng: 0}}
	assert.InDelta(t, 2*Distance(path[0], path[1]), PathLength(path), 1e-6)
	assert.Equal(t, 0.0, PathLength(path[:1]))
}

func TestInterpolate(t *testing.T) {
	path := []model.Point{{Lat: 0, Lng: 0}, {Lat: 0.01, Lng: 0}, {Lat: 0.01, Lng: 0.01}}
	seg := Distance(path[0], path[1])

	assert.Equal(t, path[0], Interpolate(path, 0))
	assert.Equal(t, path[0], Interpolate(path, -5))

	mid := Interpolate(path, seg/2)
	assert.InDelta(t, 0.005, mid.Lat, 1e-9)
	assert.InDelta(t, 0.0, mid.Lng, 1e-9)

	second := Interpolate(path, seg+Distance(path[1], path[2])/4)
	assert.InDelta(t, 0.01, second.Lat, 1e-9)
	assert.InDelta(t, 0.0025, second.Lng, 1e-6)

	assert.Equal(t, path[2], Interpolate(path, 1e9))
}

func TestInterpolateDegenerate(t *testing.T) {
	assert.Equal(t, model.Point{}, Interpolate(nil, 10))
	p := model.Point{Lat: 1, Lng: 2}
	assert.Equal(t, p, Interpolate([]model.Point{p}, 10))
	assert.Equal(t, p, Interpolate([]model.Point{p, p}, 10))
}
