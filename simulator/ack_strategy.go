package simulator

import (
	"context"
	"encoding/json"
	"math/rand"
	"sync"
	"time"

	"github.com/kilianp07/faultfleet/core/logger"
	"github.com/kilianp07/faultfleet/infra/mqtt"
)

// AckStrategy defines how a vehicle acknowledges dispatch orders.
type AckStrategy interface {
	Ack(ctx context.Context, pub mqtt.Publisher, prefix, vehicleID, faultID string)
}

// AutoAck sends an ACK after an optional fixed delay.
type AutoAck struct {
	Delay time.Duration
	Log   logger.Logger
}

// Ack implements AckStrategy.
func (a AutoAck) Ack(ctx context.Context, pub mqtt.Publisher, prefix, vehicleID, faultID string) {
	if !wait(ctx, a.Delay) {
		return
	}
	publishAck(pub, a.Log, prefix, vehicleID, faultID)
}

// RandomAck drops acknowledgments with the configured probability and
// waits for the specified delay before sending.
type RandomAck struct {
	Delay    time.Duration
	DropRate float64
	Log      logger.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandomAck creates a RandomAck seeded with seed.
func NewRandomAck(delay time.Duration, dropRate float64, seed int64, log logger.Logger) *RandomAck {
	return &RandomAck{Delay: delay, DropRate: dropRate, Log: log, rng: rand.New(rand.NewSource(seed))}
}

// Ack implements AckStrategy.
func (r *RandomAck) Ack(ctx context.Context, pub mqtt.Publisher, prefix, vehicleID, faultID string) {
	r.mu.Lock()
	drop := r.DropRate > 0 && r.rng.Float64() < r.DropRate
	r.mu.Unlock()
	if drop {
		if r.Log != nil {
			r.Log.Debugf("%s: dropping ack for fault %s", vehicleID, faultID)
		}
		return
	}
	if !wait(ctx, r.Delay) {
		return
	}
	publishAck(pub, r.Log, prefix, vehicleID, faultID)
}

func wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func publishAck(pub mqtt.Publisher, log logger.Logger, prefix, vehicleID, faultID string) {
	if log == nil {
		log = logger.Nop{}
	}
	payload, err := json.Marshal(struct {
		FaultID   string `json:"fault_id"`
		VehicleID string `json:"vehicle_id"`
	}{FaultID: faultID, VehicleID: vehicleID})
	if err != nil {
		log.Errorf("marshal ack: %v", err)
		return
	}
	if err := pub.Publish(mqtt.VehicleAckTopic(prefix, vehicleID), mqtt.QoSAck, payload); err != nil {
		log.Errorf("publish ack for %s: %v", vehicleID, err)
	}
}
