package routing

import (
	"context"
	"fmt"

	"googlemaps.github.io/maps"

	"github.com/kilianp07/faultfleet/core/model"
	corerouting "github.com/kilianp07/faultfleet/core/routing"
)

// GoogleRouter uses the Google Directions API.
type GoogleRouter struct {
	client *maps.Client
}

// NewGoogleRouter creates a Directions client. Extra options such as
// maps.WithBaseURL are appended after the API key.
func NewGoogleRouter(apiKey string, opts ...maps.ClientOption) (*GoogleRouter, error) {
	c, err := maps.NewClient(append([]maps.ClientOption{maps.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, err
	}
	return &GoogleRouter{client: c}, nil
}

func (g *GoogleRouter) Name() string { return "google" }

// Route requests driving directions and sums the legs of the first route.
func (g *GoogleRouter) Route(ctx context.Context, from, to model.Point) (corerouting.Result, error) {
	routes, _, err := g.client.Directions(ctx, &maps.DirectionsRequest{
		Origin:      fmt.Sprintf("%f,%f", from.Lat, from.Lng),
		Destination: fmt.Sprintf("%f,%f", to.Lat, to.Lng),
		Mode:        maps.TravelModeDriving,
	})
	if err != nil {
		return corerouting.Result{}, err
	}
	if len(routes) == 0 {
		return corerouting.Result{}, fmt.Errorf("google: no route")
	}
	rt := routes[0]
	ll, err := rt.OverviewPolyline.Decode()
	if err != nil {
		return corerouting.Result{}, fmt.Errorf("google: polyline: %w", err)
	}
	res := corerouting.Result{Source: g.Name(), Path: make([]model.Point, 0, len(ll))}
	for _, p := range ll {
		res.Path = append(res.Path, model.Point{Lat: p.Lat, Lng: p.Lng})
	}
	for _, leg := range rt.Legs {
		if leg == nil {
			continue
		}
		res.DistanceM += float64(leg.Meters)
		res.DurationS += leg.Duration.Seconds()
	}
	return res, nil
}
