package routing

import (
	"context"
	"errors"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/kilianp07/faultfleet/core/geo"
	"github.com/kilianp07/faultfleet/core/logger"
	"github.com/kilianp07/faultfleet/core/model"
)

// Service answers route requests. It never fails for valid coordinates:
// when the external router is unavailable the straight-line estimate is
// returned with Fallback set.
type Service struct {
	router  Router
	cache   Cache
	breaker *Breaker
	cfg     Config
	group   singleflight.Group
	log     logger.Logger
}

// Option customizes a Service.
type Option func(*Service)

// WithCache overrides the default in-memory cache.
func WithCache(c Cache) Option {
	return func(s *Service) {
		if c != nil {
			s.cache = c
		}
	}
}

// WithLogger sets the service logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// WithBreaker replaces the breaker built from the configuration.
func WithBreaker(b *Breaker) Option {
	return func(s *Service) {
		if b != nil {
			s.breaker = b
		}
	}
}

// NewService creates a Service. router may be nil, in which case every
// request is answered by the fallback.
func NewService(router Router, cfg Config, opts ...Option) *Service {
	s := &Service{
		router:  router,
		cache:   NewMemoryCache(),
		breaker: NewBreaker(cfg.Threshold(), cfg.Recovery()),
		cfg:     cfg,
		log:     logger.Nop{},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Breaker exposes the circuit breaker for health reporting.
func (s *Service) Breaker() *Breaker { return s.breaker }

// Route returns distance, duration and path between from and to.
func (s *Service) Route(ctx context.Context, from, to model.Point) (Result, error) {
	if err := from.Validate(); err != nil {
		return Result{}, err
	}
	if err := to.Validate(); err != nil {
		return Result{}, err
	}
	key := CacheKey(from, to)
	if res, ok, err := s.cache.Get(ctx, key); err != nil {
		s.log.Warnf("route cache get %s: %v", key, err)
	} else if ok {
		cacheHits.Inc()
		return res, nil
	}
	v, _, _ := s.group.Do(key, func() (any, error) {
		if res, ok, _ := s.cache.Get(ctx, key); ok {
			return res, nil
		}
		res := s.compute(ctx, from, to)
		ttl := s.cfg.RoutedTTL()
		if res.Fallback {
			ttl = s.cfg.FallbackTTL()
		}
		if err := s.cache.Set(ctx, key, res, ttl); err != nil {
			s.log.Warnf("route cache set %s: %v", key, err)
		}
		return res, nil
	})
	res := v.(Result)
	routeRequests.WithLabelValues(res.Source, strconv.FormatBool(res.Fallback)).Inc()
	return res.clone(), nil
}

// Distance returns only the route distance in meters.
func (s *Service) Distance(ctx context.Context, from, to model.Point) (float64, error) {
	res, err := s.Route(ctx, from, to)
	if err != nil {
		return 0, err
	}
	return res.DistanceM, nil
}

func (s *Service) compute(ctx context.Context, from, to model.Point) Result {
	fallback := StraightLine(from, to, geo.KMHToMS(s.cfg.FallbackSpeed()))
	if s.router == nil || !s.breaker.Allow() {
		return fallback
	}
	cctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout())
	defer cancel()
	res, err := s.router.Route(cctx, from, to)
	if err == nil {
		switch len(res.Path) {
		case 0:
			err = errors.New("router returned empty path")
		case 1:
			// Origin and destination snapped to the same point.
			res.Path = []model.Point{res.Path[0], res.Path[0]}
		}
	}
	if err != nil {
		externalFailures.Inc()
		s.breaker.Failure()
		s.log.Warnf("router %s failed, using fallback: %v", s.router.Name(), err)
		return fallback
	}
	s.breaker.Success()
	if res.Source == "" {
		res.Source = s.router.Name()
	}
	res.Fallback = false
	return res
}

// Health summarizes the routing dependency.
type Health struct {
	Provider string          `json:"provider"`
	Breaker  BreakerSnapshot `json:"breaker"`
	At       time.Time       `json:"at"`
}

// Health returns the provider name and breaker snapshot.
func (s *Service) Health() Health {
	name := SourceHaversine
	if s.router != nil {
		name = s.router.Name()
	}
	return Health{Provider: name, Breaker: s.breaker.Snapshot(), At: time.Now()}
}
