package routing

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/kilianp07/faultfleet/core/model"
)

// Cache stores results keyed by the exact coordinate pair.
type Cache interface {
	Get(ctx context.Context, key string) (Result, bool, error)
	Set(ctx context.Context, key string, r Result, ttl time.Duration) error
}

// CacheKey formats the exact (start, end) pair.
func CacheKey(from, to model.Point) string {
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	return f(from.Lat) + "," + f(from.Lng) + ";" + f(to.Lat) + "," + f(to.Lng)
}

type cached struct {
	res     Result
	expires time.Time
}

// sweepEvery bounds how often Set scans for expired entries.
const sweepEvery = time.Minute

// MemoryCache is an in-process Cache. Expired entries are dropped when read
// and by a sweep that Set runs at most once per sweepEvery, so keys that are
// never read again do not accumulate.
type MemoryCache struct {
	mu        sync.Mutex
	entries   map[string]cached
	now       func() time.Time
	lastSweep time.Time
}

// NewMemoryCache creates an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]cached), now: time.Now}
}

func (c *MemoryCache) Get(_ context.Context, key string) (Result, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return Result{}, false, nil
	}
	if !c.now().Before(e.expires) {
		delete(c.entries, key)
		return Result{}, false, nil
	}
	return e.res.clone(), true, nil
}

func (c *MemoryCache) Set(_ context.Context, key string, r Result, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	if now.Sub(c.lastSweep) >= sweepEvery {
		c.sweep(now)
	}
	c.entries[key] = cached{res: r.clone(), expires: now.Add(ttl)}
	return nil
}

func (c *MemoryCache) sweep(now time.Time) {
	for k, e := range c.entries {
		if !now.Before(e.expires) {
			delete(c.entries, k)
		}
	}
	c.lastSweep = now
}

// Len returns the number of entries, including expired ones not yet swept.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
