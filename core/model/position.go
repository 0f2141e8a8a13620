package model

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidSample is returned for position samples rejected at ingestion.
var ErrInvalidSample = errors.New("invalid position sample")

var validate = validator.New()

// PositionSample is one report of the position stream.
type PositionSample struct {
	VehicleID string    `json:"vehicle_id" validate:"required"`
	Lat       float64   `json:"lat" validate:"latitude"`
	Lng       float64   `json:"lng" validate:"longitude"`
	Speed     float64   `json:"speed" validate:"gte=0"`
	Timestamp time.Time `json:"ts"`
}

// Validate rejects samples with missing identity, out-of-range coordinates
// or a negative or non-finite speed.
func (s PositionSample) Validate() error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSample, err)
	}
	for _, f := range [...]float64{s.Lat, s.Lng, s.Speed} {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("%w: non-finite value", ErrInvalidSample)
		}
	}
	return nil
}

// Point returns the sample coordinates.
func (s PositionSample) Point() Point { return Point{Lat: s.Lat, Lng: s.Lng} }

// PositionSnapshot is a persisted position history entry.
type PositionSnapshot struct {
	VehicleID  string        `json:"vehicle_id"`
	Position   Point         `json:"position"`
	Speed      float64       `json:"speed"`
	Status     VehicleStatus `json:"status"`
	Arrival    bool          `json:"arrival"`
	RecordedAt time.Time     `json:"recorded_at"`
}
