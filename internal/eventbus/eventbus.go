package eventbus

import (
	"sync"
	"sync/atomic"

	"github.com/kilianp07/faultfleet/core/events"
)

// Publisher is the narrow interface handed to components that only emit.
type Publisher interface {
	Publish(events.Event)
}

// EventBus implements a simple publish/subscribe event bus.
type EventBus interface {
	Publisher
	// Subscribe registers a subscriber for the given kinds, or for every
	// kind when none is given.
	Subscribe(kinds ...events.Kind) <-chan events.Event
	Unsubscribe(<-chan events.Event)
	Close()
}

type subscriber struct {
	ch    chan events.Event
	kinds map[events.Kind]struct{}
}

func (s *subscriber) wants(k events.Kind) bool {
	if len(s.kinds) == 0 {
		return true
	}
	_, ok := s.kinds[k]
	return ok
}

// Bus is the default EventBus implementation using fan-out channels.
type Bus struct {
	mu      sync.RWMutex
	subs    []*subscriber
	closed  bool
	buffer  int
	dropped atomic.Uint64
}

// Option configures a Bus.
type Option func(*Bus)

// WithBuffer sets the channel capacity of each subscriber.
func WithBuffer(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.buffer = n
		}
	}
}

// New creates a new Bus.
func New(opts ...Option) *Bus {
	b := &Bus{buffer: 8}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Publish sends the event to all interested subscribers. Delivery is
// non-blocking: a full subscriber misses the event and the drop is counted.
func (b *Bus) Publish(e events.Event) {
	if e == nil {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	k := e.Kind()
	for _, s := range b.subs {
		if !s.wants(k) {
			continue
		}
		select {
		case s.ch <- e:
		default:
			b.dropped.Add(1)
		}
	}
}

// Subscribe registers a new subscriber and returns its channel.
func (b *Bus) Subscribe(kinds ...events.Kind) <-chan events.Event {
	s := &subscriber{ch: make(chan events.Event, b.buffer)}
	if len(kinds) > 0 {
		s.kinds = make(map[events.Kind]struct{}, len(kinds))
		for _, k := range kinds {
			s.kinds[k] = struct{}{}
		}
	}
	b.mu.Lock()
	if b.closed {
		close(s.ch)
	} else {
		b.subs = append(b.subs, s)
	}
	b.mu.Unlock()
	return s.ch
}

// Unsubscribe removes the subscriber and closes its channel.
func (b *Bus) Unsubscribe(sub <-chan events.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s.ch == sub {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			if !b.closed {
				close(s.ch)
			}
			return
		}
	}
}

// Dropped returns the number of deliveries skipped because a subscriber
// was full.
func (b *Bus) Dropped() uint64 { return b.dropped.Load() }

// Close closes all subscriber channels and clears the list.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	for _, s := range b.subs {
		close(s.ch)
	}
	b.subs = nil
	b.mu.Unlock()
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(events.Event) {}
