// Package keylock provides per-entity mutual exclusion.
//
// Callers that need both a fault and a vehicle must lock the fault first.
// Holding a vehicle lock while acquiring a fault lock is forbidden.
package keylock

import "sync"

// Locker hands out one mutex per key. Entries are reference counted and
// dropped once no goroutine holds or waits for them.
type Locker struct {
	mu    sync.Mutex
	locks map[string]*entry
}

type entry struct {
	mu   sync.Mutex
	refs int
}

// New creates an empty Locker.
func New() *Locker { return &Locker{locks: make(map[string]*entry)} }

// Lock blocks until key is held and returns the function releasing it.
func (l *Locker) Lock(key string) (unlock func()) {
	l.mu.Lock()
	e, ok := l.locks[key]
	if !ok {
		e = &entry{}
		l.locks[key] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()
	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Unlock()
			l.mu.Lock()
			e.refs--
			if e.refs == 0 {
				delete(l.locks, key)
			}
			l.mu.Unlock()
		})
	}
}

// Len returns the number of keys currently held or awaited.
func (l *Locker) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

// FaultKey namespaces a fault identifier.
func FaultKey(id string) string { return "fault/" + id }

// VehicleKey namespaces a vehicle identifier.
func VehicleKey(id string) string { return "vehicle/" + id }
