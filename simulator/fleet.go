package simulator

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"

	"github.com/kilianp07/faultfleet/core/logger"
	"github.com/kilianp07/faultfleet/core/model"
)

const metersPerDegree = 111320.0

// GenerateFleet creates cfg.Count vehicles with IDs veh0001..vehNNNN
// scattered within cfg.SpreadM of cfg.Center. A share of cfg.HardwarePct
// carries acknowledgment hardware.
func GenerateFleet(cfg Config, strat AckStrategy) []*SimulatedVehicle {
	if cfg.Count <= 0 {
		return nil
	}
	rng := rand.New(rand.NewSource(cfg.Seed))
	vs := make([]*SimulatedVehicle, cfg.Count)
	for i := range vs {
		r := cfg.SpreadM * math.Sqrt(rng.Float64())
		theta := 2 * math.Pi * rng.Float64()
		dLat := r * math.Cos(theta) / metersPerDegree
		dLng := r * math.Sin(theta) / (metersPerDegree * math.Cos(cfg.Center.Lat*math.Pi/180))
		v := NewSimulatedVehicle(fmt.Sprintf("veh%04d", i+1), model.Point{
			Lat: cfg.Center.Lat + dLat,
			Lng: cfg.Center.Lng + dLng,
		}, strat)
		v.HasHardware = rng.Float64() < cfg.HardwarePct
		v.PerformanceRatio = math.Round(rng.Float64()*100) / 100
		vs[i] = v
	}
	return vs
}

// RunFleet runs every vehicle until ctx is done.
func RunFleet(ctx context.Context, vs []*SimulatedVehicle, t Transport, cfg Config, log logger.Logger) {
	if log == nil {
		log = logger.Nop{}
	}
	var wg sync.WaitGroup
	for _, v := range vs {
		wg.Add(1)
		go func(v *SimulatedVehicle) {
			defer wg.Done()
			if err := v.Run(ctx, t, cfg, log); err != nil {
				log.Errorf("%s: %v", v.ID, err)
			}
		}(v)
	}
	wg.Wait()
}
