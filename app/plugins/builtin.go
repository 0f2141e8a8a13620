package plugins

import (
	"errors"

	"github.com/kilianp07/faultfleet/config"
	"github.com/kilianp07/faultfleet/core/dispatch"
	dispatchlog "github.com/kilianp07/faultfleet/core/dispatch/logging"
	"github.com/kilianp07/faultfleet/core/logger"
	coremetrics "github.com/kilianp07/faultfleet/core/metrics"
	"github.com/kilianp07/faultfleet/core/routing"
	"github.com/kilianp07/faultfleet/infra/cache"
	inframetrics "github.com/kilianp07/faultfleet/infra/metrics"
	"github.com/kilianp07/faultfleet/infra/predictor"
	inrouting "github.com/kilianp07/faultfleet/infra/routing"
	"github.com/kilianp07/faultfleet/internal/eventbus"
)

func init() {
	RegisterRouter("none", func(routing.Config) (routing.Router, error) {
		return nil, nil
	})
	RegisterRouter("osrm", func(cfg routing.Config) (routing.Router, error) {
		if cfg.OSRMURL == "" {
			return nil, errors.New("osrm_url is required")
		}
		return inrouting.NewOSRMRouter(cfg.OSRMURL), nil
	})
	RegisterRouter("google", func(cfg routing.Config) (routing.Router, error) {
		g, err := inrouting.NewGoogleRouter(cfg.GoogleAPIKey)
		if err != nil {
			return nil, err
		}
		return g, nil
	})

	RegisterCache("memory", func(routing.CacheConfig) (routing.Cache, error) {
		return routing.NewMemoryCache(), nil
	})
	RegisterCache("redis", func(cfg routing.CacheConfig) (routing.Cache, error) {
		if cfg.RedisAddr == "" {
			return nil, errors.New("redis_addr is required")
		}
		return cache.NewRedisCache(cache.NewRedisClient(cfg), cfg.KeyPrefix), nil
	})

	RegisterStrategy(dispatch.StrategyRule, func(*config.Config, eventbus.Publisher, logger.Logger) (dispatch.Strategy, error) {
		return dispatch.RuleStrategy{}, nil
	})
	RegisterStrategy(dispatch.StrategyPredictor, func(cfg *config.Config, bus eventbus.Publisher, log logger.Logger) (dispatch.Strategy, error) {
		if cfg.Predictor.URL == "" {
			return nil, errors.New("predictor url is required")
		}
		return dispatch.NewPredictorStrategy(predictor.New(cfg.Predictor), bus, log), nil
	})

	RegisterMetrics("prometheus", func(coremetrics.Config) (coremetrics.MetricsSink, error) {
		return inframetrics.NewPromSink()
	})
	RegisterMetrics("influx", func(mc coremetrics.Config) (coremetrics.MetricsSink, error) {
		return inframetrics.NewInfluxSinkWithFallback(mc), nil
	})

	RegisterLogStore("jsonl", func(lc config.LoggingConfig) (dispatchlog.LogStore, error) {
		return dispatchlog.NewRotatingJSONLStore(lc.Path, lc.MaxSizeMB, lc.MaxBackups, lc.MaxAgeDays)
	})
	RegisterLogStore("sqlite", func(lc config.LoggingConfig) (dispatchlog.LogStore, error) {
		return dispatchlog.NewSQLiteStore(lc.Path)
	})
}
