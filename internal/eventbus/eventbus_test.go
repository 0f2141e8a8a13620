package eventbus

import (
	"testing"

	"github.com/kilianp07/faultfleet/core/events"
	"github.com/kilianp07/faultfleet/core/model"
)

func TestBusPublishSubscribe(t *testing.T) {
	bus := New()
	ch := bus.Subscribe()
	bus.Publish(events.VehicleStatusChanged{VehicleID: "v1", To: model.VehicleWorking})
	v := <-ch
	ev, ok := v.(events.VehicleStatusChanged)
	if !ok || ev.VehicleID != "v1" {
		t.Fatalf("unexpected event %#v", v)
	}
	bus.Unsubscribe(ch)
}

func TestBusKindFilter(t *testing.T) {
	bus := New()
	routes := bus.Subscribe(events.KindRouteReplaced)
	bus.Publish(events.FaultStatusChanged{FaultID: "f1"})
	bus.Publish(events.RouteReplaced{VehicleID: "v1", RouteID: "r2"})
	got := <-routes
	if got.Kind() != events.KindRouteReplaced {
		t.Fatalf("expected route event got %s", got.Kind())
	}
	select {
	case extra := <-routes:
		t.Fatalf("unexpected extra event %#v", extra)
	default:
	}
}

func TestBusDropsWhenFull(t *testing.T) {
	bus := New(WithBuffer(1))
	_ = bus.Subscribe()
	bus.Publish(events.FaultStatusChanged{FaultID: "f1"})
	bus.Publish(events.FaultStatusChanged{FaultID: "f2"})
	if bus.Dropped() != 1 {
		t.Fatalf("expected 1 dropped event, got %d", bus.Dropped())
	}
}

func TestBusClose(t *testing.T) {
	bus := New()
	ch1 := bus.Subscribe()
	ch2 := bus.Subscribe()
	bus.Close()
	if _, ok := <-ch1; ok {
		t.Fatalf("expected ch1 closed")
	}
	if _, ok := <-ch2; ok {
		t.Fatalf("expected ch2 closed")
	}
	bus.Publish(events.FaultStatusChanged{FaultID: "f1"})
}

func TestBusUnsubscribeAfterClose(t *testing.T) {
	bus := New()
	ch := bus.Subscribe()
	bus.Close()
	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("panic on Unsubscribe after Close: %v", r)
		}
	}()
	bus.Unsubscribe(ch)
}
