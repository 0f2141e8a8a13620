// Package events streams bus notifications to dashboards as Server-Sent
// Events.
package events

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	coreevents "github.com/kilianp07/faultfleet/core/events"
	"github.com/kilianp07/faultfleet/core/logger"
	"github.com/kilianp07/faultfleet/internal/eventbus"
)

// Handler serves GET /api/events. The optional kinds query parameter is a
// comma separated list of event kinds to receive.
type Handler struct {
	bus       eventbus.EventBus
	log       logger.Logger
	keepalive time.Duration
}

// NewHandler creates a Handler. log may be nil.
func NewHandler(bus eventbus.EventBus, log logger.Logger) *Handler {
	if log == nil {
		log = logger.Nop{}
	}
	return &Handler{bus: bus, log: log, keepalive: 30 * time.Second}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	var kinds []coreevents.Kind
	if s := r.URL.Query().Get("kinds"); s != "" {
		for _, k := range strings.Split(s, ",") {
			kinds = append(kinds, coreevents.Kind(strings.TrimSpace(k)))
		}
	}

	sub := h.bus.Subscribe(kinds...)
	defer h.bus.Unsubscribe(sub)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	ticker := time.NewTicker(h.keepalive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case ev, ok := <-sub:
			if !ok {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				h.log.Warnf("sse: encode %s: %v", ev.Kind(), err)
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Kind(), data); err != nil {
				h.log.Debugf("sse: write error: %v", err)
				return
			}
			flusher.Flush()
		}
	}
}
