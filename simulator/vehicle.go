package simulator

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/kilianp07/faultfleet/core/dispatch"
	"github.com/kilianp07/faultfleet/core/geo"
	"github.com/kilianp07/faultfleet/core/logger"
	"github.com/kilianp07/faultfleet/core/model"
	"github.com/kilianp07/faultfleet/infra/mqtt"
)

// Transport publishes and subscribes on the broker. *mqtt.Client
// implements it.
type Transport interface {
	mqtt.Publisher
	mqtt.Subscriber
}

// SimulatedVehicle follows the route of its last dispatch order.
type SimulatedVehicle struct {
	ID               string
	HasHardware      bool
	PerformanceRatio float64
	Strategy         AckStrategy

	mu       sync.Mutex
	pos      model.Point
	path     []model.Point
	traveled float64
	faultID  string
}

// NewSimulatedVehicle creates a parked vehicle at pos.
func NewSimulatedVehicle(id string, pos model.Point, strat AckStrategy) *SimulatedVehicle {
	return &SimulatedVehicle{ID: id, pos: pos, Strategy: strat}
}

// Registration is the vehicle as submitted to the fleet API.
func (v *SimulatedVehicle) Registration() model.Vehicle {
	v.mu.Lock()
	defer v.mu.Unlock()
	return model.Vehicle{
		ID:               v.ID,
		Position:         v.pos,
		HasHardware:      v.HasHardware,
		PerformanceRatio: v.PerformanceRatio,
	}
}

// Position returns the current location.
func (v *SimulatedVehicle) Position() model.Point {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.pos
}

// FaultID returns the fault being driven to, empty when idle.
func (v *SimulatedVehicle) FaultID() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.faultID
}

// Accept starts driving towards the order. A route of fewer than two
// points is replaced by the straight line to the fault.
func (v *SimulatedVehicle) Accept(o dispatch.Order) bool {
	if o.VehicleID != v.ID {
		return false
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	path := o.Route
	if len(path) < 2 {
		path = []model.Point{v.pos, o.Location}
	}
	v.path = append([]model.Point(nil), path...)
	v.traveled = 0
	v.faultID = o.FaultID
	return true
}

// Step advances the vehicle by dt at speedMS and returns the sample to
// report. The vehicle stops on the last waypoint.
func (v *SimulatedVehicle) Step(dt time.Duration, speedMS float64, now time.Time) model.PositionSample {
	v.mu.Lock()
	defer v.mu.Unlock()
	speed := 0.0
	if len(v.path) > 0 {
		v.traveled += speedMS * dt.Seconds()
		v.pos = geo.Interpolate(v.path, v.traveled)
		speed = speedMS
		if v.traveled >= geo.PathLength(v.path) {
			v.path = nil
			v.faultID = ""
			speed = 0
		}
	}
	return model.PositionSample{VehicleID: v.ID, Lat: v.pos.Lat, Lng: v.pos.Lng, Speed: speed, Timestamp: now}
}

// Run subscribes to the dispatch topic and publishes a position every
// interval until ctx is done.
func (v *SimulatedVehicle) Run(ctx context.Context, t Transport, cfg Config, log logger.Logger) error {
	if log == nil {
		log = logger.Nop{}
	}
	err := t.Subscribe(mqtt.DispatchTopic(cfg.TopicPrefix, v.ID), mqtt.QoSDispatch, func(_ string, payload []byte) {
		var o dispatch.Order
		if err := json.Unmarshal(payload, &o); err != nil {
			log.Warnf("%s: decode order: %v", v.ID, err)
			return
		}
		if !v.Accept(o) {
			return
		}
		log.Infof("%s: dispatched to fault %s", v.ID, o.FaultID)
		if o.RequiresAck && v.HasHardware && v.Strategy != nil {
			go v.Strategy.Ack(ctx, t, cfg.TopicPrefix, v.ID, o.FaultID)
		}
	})
	if err != nil {
		return err
	}

	speed := geo.KMHToMS(cfg.SpeedKMH)
	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			s := v.Step(cfg.Interval, speed, now)
			payload, err := json.Marshal(s)
			if err != nil {
				log.Errorf("%s: encode position: %v", v.ID, err)
				continue
			}
			if err := t.Publish(mqtt.VehiclePositionTopic(cfg.TopicPrefix, v.ID), mqtt.QoSPosition, payload); err != nil {
				log.Warnf("%s: publish position: %v", v.ID, err)
			}
		}
	}
}
