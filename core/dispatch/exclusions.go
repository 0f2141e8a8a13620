package dispatch

import (
	"sort"
	"sync"
	"time"
)

// exclusions remembers, per fault, the vehicles that let a dispatch time
// out. Entries expire after ttl so a fault never stays blocked forever.
type exclusions struct {
	mu  sync.Mutex
	ttl time.Duration
	now func() time.Time
	m   map[string]map[string]time.Time
}

func newExclusions(ttl time.Duration, now func() time.Time) *exclusions {
	return &exclusions{ttl: ttl, now: now, m: make(map[string]map[string]time.Time)}
}

func (x *exclusions) Add(faultID, vehicleID string) {
	x.mu.Lock()
	defer x.mu.Unlock()
	set, ok := x.m[faultID]
	if !ok {
		set = make(map[string]time.Time)
		x.m[faultID] = set
	}
	set[vehicleID] = x.now().Add(x.ttl)
}

func (x *exclusions) Has(faultID, vehicleID string) bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	exp, ok := x.m[faultID][vehicleID]
	if !ok {
		return false
	}
	if !x.now().Before(exp) {
		delete(x.m[faultID], vehicleID)
		return false
	}
	return true
}

// List returns the live exclusions of faultID, sorted.
func (x *exclusions) List(faultID string) []string {
	x.mu.Lock()
	defer x.mu.Unlock()
	now := x.now()
	var ids []string
	for id, exp := range x.m[faultID] {
		if now.Before(exp) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

func (x *exclusions) Clear(faultID string) {
	x.mu.Lock()
	delete(x.m, faultID)
	x.mu.Unlock()
}

// Prune drops expired entries and returns how many were removed.
func (x *exclusions) Prune() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	now := x.now()
	n := 0
	for fid, set := range x.m {
		for vid, exp := range set {
			if !now.Before(exp) {
				delete(set, vid)
				n++
			}
		}
		if len(set) == 0 {
			delete(x.m, fid)
		}
	}
	return n
}
