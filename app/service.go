// Package app wires the fleet components from the configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kilianp07/faultfleet/api"
	"github.com/kilianp07/faultfleet/app/plugins"
	"github.com/kilianp07/faultfleet/config"
	"github.com/kilianp07/faultfleet/core/dispatch"
	dispatchlog "github.com/kilianp07/faultfleet/core/dispatch/logging"
	"github.com/kilianp07/faultfleet/core/fleet"
	coremetrics "github.com/kilianp07/faultfleet/core/metrics"
	"github.com/kilianp07/faultfleet/core/resolution"
	"github.com/kilianp07/faultfleet/core/routing"
	"github.com/kilianp07/faultfleet/core/scheduler"
	corestore "github.com/kilianp07/faultfleet/core/store"
	"github.com/kilianp07/faultfleet/core/tracking"
	"github.com/kilianp07/faultfleet/infra/logger"
	inframetrics "github.com/kilianp07/faultfleet/infra/metrics"
	"github.com/kilianp07/faultfleet/infra/mqtt"
	"github.com/kilianp07/faultfleet/infra/notify"
	"github.com/kilianp07/faultfleet/infra/predictor"
	"github.com/kilianp07/faultfleet/infra/store"
	"github.com/kilianp07/faultfleet/internal/eventbus"
	"github.com/kilianp07/faultfleet/internal/keylock"
)

// sink is the union of the recorders fed by the engine, the monitor and
// the event collector. NopSink and *MultiSink implement it.
type sink interface {
	coremetrics.MetricsSink
	coremetrics.DispatchAckRecorder
	coremetrics.PositionRecorder
	coremetrics.RouteRecorder
	coremetrics.TransitionRecorder
}

type pinger interface {
	Ping(ctx context.Context) error
}

// Service owns every long-lived component of the fleet process.
type Service struct {
	cfg *config.Config
	log logger.Logger

	store     corestore.Store
	bus       *eventbus.Bus
	sched     *scheduler.Scheduler
	routes    *routing.Service
	cache     routing.Cache
	logs      dispatchlog.LogStore
	exporters []coremetrics.MetricsSink
	sink      sink

	Engine   *dispatch.Engine
	Resolver *resolution.Resolver
	Monitor  *tracking.Monitor
	Fleet    *fleet.Service

	mqtt  *mqtt.Client
	kafka *notify.KafkaNotifier

	handler http.Handler
}

// New creates a Service from the configuration. Brokers are connected
// here; loops start in Run.
func New(cfg *config.Config) (_ *Service, err error) {
	s := &Service{cfg: cfg, log: logger.New("service")}
	defer func() {
		if err != nil {
			if cerr := s.Close(); cerr != nil {
				s.log.Errorf("cleanup after failed start: %v", cerr)
			}
		}
	}()

	if s.store, err = store.Open(cfg.Store); err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	s.bus = eventbus.New(eventbus.WithBuffer(64))
	s.sched = scheduler.New()
	locks := keylock.New()

	if err = s.buildMetrics(); err != nil {
		return nil, err
	}
	if err = s.buildRouting(); err != nil {
		return nil, err
	}

	logFactory, err := plugins.Lookup(plugins.LogStores, "log store", cfg.Logging.Backend)
	if err != nil {
		return nil, err
	}
	if s.logs, err = logFactory(cfg.Logging); err != nil {
		return nil, fmt.Errorf("dispatch log store: %w", err)
	}

	stratFactory, err := plugins.Lookup(plugins.Strategies, "strategy", cfg.Dispatch.Strategy)
	if err != nil {
		return nil, err
	}
	strategy, err := stratFactory(cfg, s.bus, logger.New("strategy"))
	if err != nil {
		return nil, fmt.Errorf("strategy: %w", err)
	}

	var notifiers notify.Multi
	if cfg.MQTT.Enabled {
		if s.mqtt, err = mqtt.NewClient(cfg.MQTT, logger.New("mqtt")); err != nil {
			return nil, fmt.Errorf("mqtt client: %w", err)
		}
		notifiers = append(notifiers, mqtt.NewNotifier(s.mqtt, s.mqtt.Prefix()))
	}
	if cfg.Notify.Kafka.Enabled {
		s.kafka = notify.NewKafkaNotifier(cfg.Notify.Kafka, logger.New("kafka"))
		notifiers = append(notifiers, s.kafka)
	}
	var notifier dispatch.Notifier
	if len(notifiers) > 0 {
		notifier = notifiers
	}

	s.Engine, err = dispatch.NewEngine(cfg.Dispatch, dispatch.Deps{
		Store:     s.store,
		Router:    s.routes,
		Strategy:  strategy,
		Scheduler: s.sched,
		Locks:     locks,
		Bus:       s.bus,
		Notifier:  notifier,
		Metrics:   s.sink,
		LogStore:  s.logs,
		Logger:    logger.New("dispatch"),
	})
	if err != nil {
		return nil, err
	}
	s.Resolver = resolution.New(cfg.Resolution, s.store, s.sched, locks,
		resolution.WithBus(s.bus),
		resolution.WithLogger(logger.New("resolution")),
		resolution.WithReleaser(s.Engine),
	)
	s.Monitor = tracking.New(cfg.Tracking, s.store, s.routes, s.Resolver, locks,
		tracking.WithBus(s.bus),
		tracking.WithLogger(logger.New("tracking")),
		tracking.WithAcknowledger(s.Engine),
		tracking.WithRecorder(s.sink),
	)
	s.Fleet, err = fleet.NewService(fleet.Deps{
		Store:      s.store,
		Locks:      locks,
		Dispatcher: s.Engine,
		Arrivals:   s.Monitor,
		Resolver:   s.Resolver,
		Bus:        s.bus,
		Logger:     logger.New("fleet"),
	})
	if err != nil {
		return nil, err
	}

	if s.mqtt != nil {
		l := mqtt.NewListener(s.Engine, s.Monitor, logger.New("mqtt-listener"))
		if err = l.Start(s.mqtt, s.mqtt.Prefix()); err != nil {
			return nil, fmt.Errorf("mqtt subscribe: %w", err)
		}
	}

	s.handler = api.NewRouter(api.Deps{
		Store:      s.store,
		Fleet:      s.Fleet,
		Dispatcher: s.Engine,
		Samples:    s.Monitor,
		Logs:       s.logs,
		LogsToken:  cfg.HTTP.LogsToken,
		Bus:        s.bus,
		Checks:     s.healthChecks(),
		Logger:     logger.New("api"),
	})
	return s, nil
}

func (s *Service) buildMetrics() error {
	var names []string
	if s.cfg.Metrics.PrometheusEnabled {
		names = append(names, "prometheus")
	}
	if s.cfg.Metrics.InfluxEnabled {
		names = append(names, "influx")
	}
	for _, name := range names {
		f, err := plugins.Lookup(plugins.MetricsExporters, "metrics exporter", name)
		if err != nil {
			return err
		}
		e, err := f(s.cfg.Metrics)
		if err != nil {
			return fmt.Errorf("%s sink: %w", name, err)
		}
		s.exporters = append(s.exporters, e)
	}
	if len(s.exporters) == 0 {
		s.sink = coremetrics.NopSink{}
		return nil
	}
	s.sink = inframetrics.NewMultiSink(s.exporters...)
	return nil
}

func (s *Service) buildRouting() error {
	rf, err := plugins.Lookup(plugins.Routers, "routing provider", s.cfg.Routing.Provider)
	if err != nil {
		return err
	}
	router, err := rf(s.cfg.Routing)
	if err != nil {
		return fmt.Errorf("router: %w", err)
	}
	cf, err := plugins.Lookup(plugins.Caches, "route cache", s.cfg.Routing.Cache.Backend)
	if err != nil {
		return err
	}
	if s.cache, err = cf(s.cfg.Routing.Cache); err != nil {
		return fmt.Errorf("route cache: %w", err)
	}
	s.routes = routing.NewService(router, s.cfg.Routing,
		routing.WithCache(s.cache),
		routing.WithLogger(logger.New("routing")),
	)
	return nil
}

func (s *Service) healthChecks() map[string]api.HealthCheck {
	checks := map[string]api.HealthCheck{}
	if p, ok := s.store.(pinger); ok {
		checks["store"] = p.Ping
	}
	if p, ok := s.cache.(pinger); ok {
		checks["route_cache"] = p.Ping
	}
	if s.cfg.Dispatch.Strategy == dispatch.StrategyPredictor {
		client := predictor.New(s.cfg.Predictor)
		checks["predictor"] = func(ctx context.Context) error {
			h, err := client.Health(ctx)
			if err != nil {
				return err
			}
			if !h.ModelLoaded {
				return errors.New("model not loaded")
			}
			return nil
		}
	}
	return checks
}

// Handler returns the HTTP API.
func (s *Service) Handler() http.Handler { return s.handler }

// Run starts the dispatch workers, the HTTP listener and the exporters,
// and blocks until ctx is canceled or one of them fails.
func (s *Service) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	inframetrics.StartEventCollector(ctx, s.bus, s.sink)
	if s.kafka != nil {
		g.Go(func() error {
			s.kafka.Forward(ctx, s.bus)
			return nil
		})
	}
	if s.cfg.Metrics.PrometheusEnabled {
		g.Go(func() error { return inframetrics.ServeMetrics(ctx, listenAddr(s.cfg.Metrics.PrometheusPort), nil) })
	}

	s.Engine.Sweep(ctx)
	g.Go(func() error { return s.Engine.Run(ctx) })
	g.Go(func() error { return s.serve(ctx) })

	s.log.Infof("fleet service running on %s", s.cfg.HTTP.Addr)
	return g.Wait()
}

func (s *Service) serve(ctx context.Context) error {
	srv := &http.Server{Addr: s.cfg.HTTP.Addr, Handler: s.handler, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Errorf("http shutdown: %v", err)
		}
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

func listenAddr(port string) string {
	if strings.Contains(port, ":") {
		return port
	}
	return ":" + port
}

// Close stops the timers and releases connections. It is safe to call on
// a partially built Service.
func (s *Service) Close() error {
	var errs []error
	if s.sched != nil {
		s.sched.Stop()
	}
	if s.mqtt != nil {
		s.mqtt.Disconnect()
	}
	if s.kafka != nil {
		errs = append(errs, s.kafka.Close())
	}
	if s.logs != nil {
		errs = append(errs, s.logs.Close())
	}
	if c, ok := s.cache.(io.Closer); ok {
		errs = append(errs, c.Close())
	}
	for _, e := range s.exporters {
		if c, ok := e.(interface{ Close() }); ok {
			c.Close()
		}
	}
	if s.bus != nil {
		s.bus.Close()
	}
	if s.store != nil {
		errs = append(errs, s.store.Close())
	}
	return errors.Join(errs...)
}
