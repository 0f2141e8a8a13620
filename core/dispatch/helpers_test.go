package dispatch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kilianp07/faultfleet/core/dispatch/logging"
	"github.com/kilianp07/faultfleet/core/events"
	"github.com/kilianp07/faultfleet/core/metrics"
	"github.com/kilianp07/faultfleet/core/model"
	"github.com/kilianp07/faultfleet/core/routing"
	"github.com/kilianp07/faultfleet/core/scheduler"
	"github.com/kilianp07/faultfleet/core/store"
	"github.com/kilianp07/faultfleet/internal/keylock"
)

type recordingBus struct {
	mu  sync.Mutex
	evs []events.Event
}

func (b *recordingBus) Publish(e events.Event) {
	b.mu.Lock()
	b.evs = append(b.evs, e)
	b.mu.Unlock()
}

func (b *recordingBus) count(k events.Kind) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, e := range b.evs {
		if e.Kind() == k {
			n++
		}
	}
	return n
}

type recordingNotifier struct {
	mu     sync.Mutex
	orders []Order
	err    error
}

func (n *recordingNotifier) NotifyDispatch(_ context.Context, o Order) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.orders = append(n.orders, o)
	return n.err
}

func (n *recordingNotifier) all() []Order {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Order(nil), n.orders...)
}

type recordingSink struct {
	metrics.NopSink
	mu   sync.Mutex
	disp []metrics.DispatchEvent
	acks []metrics.DispatchAckEvent
}

func (s *recordingSink) RecordDispatch(ev metrics.DispatchEvent) error {
	s.mu.Lock()
	s.disp = append(s.disp, ev)
	s.mu.Unlock()
	return nil
}

func (s *recordingSink) RecordDispatchAck(ev metrics.DispatchAckEvent) error {
	s.mu.Lock()
	s.acks = append(s.acks, ev)
	s.mu.Unlock()
	return nil
}

type memLogStore struct {
	mu   sync.Mutex
	recs []logging.LogRecord
}

func (m *memLogStore) Append(_ context.Context, r logging.LogRecord) error {
	m.mu.Lock()
	m.recs = append(m.recs, r)
	m.mu.Unlock()
	return nil
}

func (m *memLogStore) Query(_ context.Context, q logging.LogQuery) ([]logging.LogRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var res []logging.LogRecord
	for _, r := range m.recs {
		if q.Match(r) {
			res = append(res, r)
		}
	}
	return res, nil
}

func (m *memLogStore) Close() error { return nil }

type fixture struct {
	engine   *Engine
	store    *store.MemoryStore
	sched    *scheduler.Scheduler
	bus      *recordingBus
	notifier *recordingNotifier
	sink     *recordingSink
	logs     *memLogStore
}

var faultSite = model.Point{Lat: 24.8607, Lng: 67.0011}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	fx := &fixture{
		store:    store.NewMemoryStore(),
		sched:    scheduler.New(),
		bus:      &recordingBus{},
		notifier: &recordingNotifier{},
		sink:     &recordingSink{},
		logs:     &memLogStore{},
	}
	e, err := NewEngine(cfg, Deps{
		Store:     fx.store,
		Router:    routing.NewService(nil, routing.Config{}),
		Scheduler: fx.sched,
		Locks:     keylock.New(),
		Bus:       fx.bus,
		Notifier:  fx.notifier,
		Metrics:   fx.sink,
		LogStore:  fx.logs,
	})
	require.NoError(t, err)
	fx.engine = e
	t.Cleanup(fx.sched.Stop)
	return fx
}

func (fx *fixture) addVehicle(t *testing.T, id string, ratio float64, hw bool, pos model.Point) {
	t.Helper()
	require.NoError(t, fx.store.SaveVehicle(context.Background(), model.Vehicle{
		ID: id, Status: model.VehicleAvailable, Position: pos, HasHardware: hw, PerformanceRatio: ratio,
	}))
}

func (fx *fixture) addFault(t *testing.T, id string, sev model.Severity) {
	t.Helper()
	now := time.Now()
	require.NoError(t, fx.store.SaveFault(context.Background(), model.Fault{
		ID: id, Category: "power", Severity: sev, Location: faultSite, Status: model.FaultWaiting, CreatedAt: now, UpdatedAt: now,
	}))
}

func (fx *fixture) fault(t *testing.T, id string) model.Fault {
	t.Helper()
	f, err := fx.store.GetFault(context.Background(), id)
	require.NoError(t, err)
	return f
}

func (fx *fixture) vehicle(t *testing.T, id string) model.Vehicle {
	t.Helper()
	v, err := fx.store.GetVehicle(context.Background(), id)
	require.NoError(t, err)
	return v
}

func near(dLat float64) model.Point {
	return model.Point{Lat: faultSite.Lat + dLat, Lng: faultSite.Lng}
}
