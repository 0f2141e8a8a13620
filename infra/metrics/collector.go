package metrics

import (
	"context"

	"github.com/kilianp07/faultfleet/core/events"
	coremetrics "github.com/kilianp07/faultfleet/core/metrics"
	"github.com/kilianp07/faultfleet/infra/logger"
	"github.com/kilianp07/faultfleet/internal/eventbus"
)

// StartEventCollector subscribes to the status events of the bus and
// records them as transitions. It stops when the context is canceled.
func StartEventCollector(ctx context.Context, bus eventbus.EventBus, rec coremetrics.TransitionRecorder) {
	if bus == nil || rec == nil {
		return
	}
	log := logger.New("event-collector")
	sub := bus.Subscribe(events.KindVehicleStatus, events.KindFaultStatus)
	go func() {
		defer bus.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				tr, ok := toTransition(ev)
				if !ok {
					continue
				}
				if err := rec.RecordTransition(tr); err != nil {
					log.Warnf("record %s transition of %s: %v", tr.Entity, tr.ID, err)
				}
			}
		}
	}()
}

func toTransition(ev events.Event) (coremetrics.TransitionEvent, bool) {
	switch e := ev.(type) {
	case events.VehicleStatusChanged:
		return coremetrics.TransitionEvent{Entity: "vehicle", ID: e.VehicleID, From: string(e.From), To: string(e.To), Reason: e.Reason, Time: e.At}, true
	case events.FaultStatusChanged:
		return coremetrics.TransitionEvent{Entity: "fault", ID: e.FaultID, From: string(e.From), To: string(e.To), Reason: e.Reason, Time: e.At}, true
	}
	return coremetrics.TransitionEvent{}, false
}
