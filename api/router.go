// Package api assembles the HTTP surface of the fleet service.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	dispatchapi "github.com/kilianp07/faultfleet/api/dispatch"
	eventsapi "github.com/kilianp07/faultfleet/api/events"
	"github.com/kilianp07/faultfleet/api/faults"
	"github.com/kilianp07/faultfleet/api/respond"
	"github.com/kilianp07/faultfleet/api/vehicles"
	"github.com/kilianp07/faultfleet/core/dispatch/logging"
	"github.com/kilianp07/faultfleet/core/logger"
	"github.com/kilianp07/faultfleet/core/store"
	"github.com/kilianp07/faultfleet/internal/eventbus"
)

// Store is the part of the persistence layer read by the handlers.
type Store interface {
	store.Faults
	vehicles.Reader
}

// Fleet creates faults, registers vehicles and applies status changes.
type Fleet interface {
	faults.Creator
	vehicles.Fleet
}

// HealthCheck reports the state of one dependency.
type HealthCheck func(ctx context.Context) error

// Deps are the collaborators of the router. Logs, Bus and Checks are
// optional.
type Deps struct {
	Store      Store
	Fleet      Fleet
	Dispatcher faults.Dispatcher
	Samples    vehicles.SampleHandler
	Logs       logging.LogStore
	LogsToken  string
	Bus        eventbus.EventBus
	Checks     map[string]HealthCheck
	Logger     logger.Logger
}

type health struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// NewRouter builds the chi router serving /api.
func NewRouter(d Deps) http.Handler {
	if d.Logger == nil {
		d.Logger = logger.Nop{}
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(d.Logger))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", healthHandler(d.Checks))
		r.Mount("/faults", faults.NewHandler(d.Fleet, d.Store, d.Dispatcher).Routes())
		r.Mount("/vehicles", vehicles.NewHandler(d.Fleet, d.Samples, d.Store).Routes())
		if d.Logs != nil {
			r.Method(http.MethodGet, "/dispatch/logs", dispatchapi.NewLogHandler(d.Logs, d.LogsToken))
		}
		if d.Bus != nil {
			r.Method(http.MethodGet, "/events", eventsapi.NewHandler(d.Bus, d.Logger))
		}
	})
	return r
}

func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		out := health{Status: "ok"}
		code := http.StatusOK
		for name, check := range checks {
			if out.Checks == nil {
				out.Checks = make(map[string]string, len(checks))
			}
			if err := check(ctx); err != nil {
				out.Checks[name] = err.Error()
				out.Status = "degraded"
				code = http.StatusServiceUnavailable
				continue
			}
			out.Checks[name] = "ok"
		}
		respond.JSON(w, code, out)
	}
}

func requestLogger(log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Debugw("http request", map[string]any{
				"method":     r.Method,
				"path":       r.URL.Path,
				"status":     ww.Status(),
				"duration":   time.Since(start).String(),
				"request_id": middleware.GetReqID(r.Context()),
			})
		})
	}
}
