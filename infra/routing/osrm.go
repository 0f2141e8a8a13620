// Package routing provides external routing engine adapters.
package routing

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kilianp07/faultfleet/core/model"
	corerouting "github.com/kilianp07/faultfleet/core/routing"
)

// OSRMRouter queries an OSRM route service over HTTP.
type OSRMRouter struct {
	baseURL string
	client  *http.Client
}

// NewOSRMRouter creates a router for the OSRM instance at baseURL.
func NewOSRMRouter(baseURL string) *OSRMRouter {
	return &OSRMRouter{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (r *OSRMRouter) Name() string { return "osrm" }

type osrmResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Routes  []struct {
		Distance float64 `json:"distance"`
		Duration float64 `json:"duration"`
		Geometry struct {
			Coordinates [][]float64 `json:"coordinates"`
		} `json:"geometry"`
	} `json:"routes"`
}

// Route calls /route/v1/driving with GeoJSON geometry.
func (r *OSRMRouter) Route(ctx context.Context, from, to model.Point) (corerouting.Result, error) {
	url := fmt.Sprintf("%s/route/v1/driving/%f,%f;%f,%f?overview=full&geometries=geojson",
		r.baseURL, from.Lng, from.Lat, to.Lng, to.Lat)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return corerouting.Result{}, err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return corerouting.Result{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return corerouting.Result{}, fmt.Errorf("osrm: status %d", resp.StatusCode)
	}
	var body osrmResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return corerouting.Result{}, fmt.Errorf("osrm: decode: %w", err)
	}
	if body.Code != "Ok" || len(body.Routes) == 0 {
		return corerouting.Result{}, fmt.Errorf("osrm: %s %s", body.Code, body.Message)
	}
	rt := body.Routes[0]
	path := make([]model.Point, 0, len(rt.Geometry.Coordinates))
	for _, c := range rt.Geometry.Coordinates {
		if len(c) < 2 {
			continue
		}
		path = append(path, model.Point{Lat: c[1], Lng: c[0]})
	}
	return corerouting.Result{
		DistanceM: rt.Distance,
		DurationS: rt.Duration,
		Path:      path,
		Source:    r.Name(),
	}, nil
}
