package scheduler

import (
	"sync"
	"time"
)

// Handle identifies one scheduled task.
type Handle struct {
	Key string
	gen uint64
}

// Valid reports whether the handle refers to a scheduled task.
func (h Handle) Valid() bool { return h.gen != 0 }

// Task is run on its own goroutine when the delay elapses.
type Task func(h Handle)

type entry struct {
	gen   uint64
	t     *time.Timer
	fired bool
}

// Scheduler is safe for concurrent use.
type Scheduler struct {
	mu      sync.Mutex
	entries map[string]*entry
	seq     uint64
	stopped bool
}

// New creates a running Scheduler.
func New() *Scheduler {
	return &Scheduler{entries: make(map[string]*entry)}
}

// Schedule runs task after delay, cancelling any task pending for key.
// It returns an invalid handle once the scheduler is stopped.
func (s *Scheduler) Schedule(key string, delay time.Duration, task Task) Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return Handle{Key: key}
	}
	if prev, ok := s.entries[key]; ok {
		prev.t.Stop()
	}
	s.seq++
	h := Handle{Key: key, gen: s.seq}
	e := &entry{gen: h.gen}
	e.t = time.AfterFunc(delay, func() { s.fire(h, task) })
	s.entries[key] = e
	return h
}

func (s *Scheduler) fire(h Handle, task Task) {
	s.mu.Lock()
	e, ok := s.entries[h.Key]
	run := ok && e.gen == h.gen && !e.fired
	if run {
		e.fired = true
	}
	s.mu.Unlock()
	if run {
		task(h)
	}
}

// Claim consumes a fired handle. It returns false when the task was
// cancelled or superseded after it fired.
func (s *Scheduler) Claim(h Handle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[h.Key]
	if !ok || e.gen != h.gen {
		return false
	}
	delete(s.entries, h.Key)
	return true
}

// Cancel removes whatever task is registered for key, fired or not.
func (s *Scheduler) Cancel(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		return false
	}
	e.t.Stop()
	delete(s.entries, key)
	return true
}

// CancelHandle removes the task only if h is still the registered one.
func (s *Scheduler) CancelHandle(h Handle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[h.Key]
	if !ok || e.gen != h.gen {
		return false
	}
	e.t.Stop()
	delete(s.entries, h.Key)
	return true
}

// Pending reports whether a task for key is waiting to fire.
func (s *Scheduler) Pending(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	return ok && !e.fired
}

// Len returns the number of tasks waiting to fire.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.entries {
		if !e.fired {
			n++
		}
	}
	return n
}

// Stop cancels every task and rejects further scheduling.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, e := range s.entries {
		e.t.Stop()
		delete(s.entries, k)
	}
	s.stopped = true
}
