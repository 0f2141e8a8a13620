// Package plugins maps configuration names to component constructors.
package plugins

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kilianp07/faultfleet/config"
	"github.com/kilianp07/faultfleet/core/dispatch"
	dispatchlog "github.com/kilianp07/faultfleet/core/dispatch/logging"
	"github.com/kilianp07/faultfleet/core/logger"
	coremetrics "github.com/kilianp07/faultfleet/core/metrics"
	"github.com/kilianp07/faultfleet/core/routing"
	"github.com/kilianp07/faultfleet/internal/eventbus"
)

// RouterFactory builds the external router. A nil Router answers every
// request with the straight-line fallback.
type RouterFactory func(cfg routing.Config) (routing.Router, error)

// CacheFactory builds a route cache. Caches holding a connection also
// implement io.Closer and Ping(ctx) error.
type CacheFactory func(cfg routing.CacheConfig) (routing.Cache, error)

// StrategyFactory builds the ranking strategy of the dispatch engine.
type StrategyFactory func(cfg *config.Config, bus eventbus.Publisher, log logger.Logger) (dispatch.Strategy, error)

// MetricsFactory builds a metrics exporter.
type MetricsFactory func(cfg coremetrics.Config) (coremetrics.MetricsSink, error)

// LogStoreFactory builds a dispatch log store.
type LogStoreFactory func(cfg config.LoggingConfig) (dispatchlog.LogStore, error)

var (
	Routers          = map[string]RouterFactory{}
	Caches           = map[string]CacheFactory{}
	Strategies       = map[string]StrategyFactory{}
	MetricsExporters = map[string]MetricsFactory{}
	LogStores        = map[string]LogStoreFactory{}
)

func RegisterRouter(name string, f RouterFactory)     { Routers[name] = f }
func RegisterCache(name string, f CacheFactory)       { Caches[name] = f }
func RegisterStrategy(name string, f StrategyFactory) { Strategies[name] = f }
func RegisterMetrics(name string, f MetricsFactory)   { MetricsExporters[name] = f }
func RegisterLogStore(name string, f LogStoreFactory) { LogStores[name] = f }

// Lookup returns the factory registered under name.
func Lookup[F any](registry map[string]F, kind, name string) (F, error) {
	f, ok := registry[name]
	if !ok {
		var zero F
		return zero, fmt.Errorf("unknown %s %q (available: %s)", kind, name, strings.Join(Names(registry), ", "))
	}
	return f, nil
}

// Names lists the registered names in order.
func Names[F any](registry map[string]F) []string {
	out := make([]string, 0, len(registry))
	for n := range registry {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
