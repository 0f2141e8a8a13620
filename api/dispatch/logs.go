// Package dispatch serves the dispatch decision log.
package dispatch

import (
	"crypto/subtle"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kilianp07/faultfleet/api/respond"
	"github.com/kilianp07/faultfleet/core/dispatch/logging"
)

// NewLogHandler serves GET /api/dispatch/logs. When token is set the
// request needs "Authorization: Bearer <token>".
//
// Query parameters: fault_id, vehicle_id, outcome, start and end
// (RFC3339), and limit, which keeps the newest records.
func NewLogHandler(store logging.LogStore, token string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if token != "" && !bearerMatches(r, token) {
			w.Header().Set("WWW-Authenticate", "Bearer")
			respond.JSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		q, limit, msg := parseLogQuery(r)
		if msg != "" {
			respond.BadRequest(w, msg)
			return
		}
		records, err := store.Query(r.Context(), q)
		if err != nil {
			respond.Error(w, err)
			return
		}
		if limit > 0 && len(records) > limit {
			records = records[len(records)-limit:]
		}
		if records == nil {
			records = []logging.LogRecord{}
		}
		respond.JSON(w, http.StatusOK, records)
	})
}

func bearerMatches(r *http.Request, token string) bool {
	got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	return ok && subtle.ConstantTimeCompare([]byte(got), []byte(token)) == 1
}

func parseLogQuery(r *http.Request) (logging.LogQuery, int, string) {
	v := r.URL.Query()
	q := logging.LogQuery{
		FaultID:   v.Get("fault_id"),
		VehicleID: v.Get("vehicle_id"),
		Outcome:   v.Get("outcome"),
	}
	for key, dst := range map[string]*time.Time{"start": &q.Start, "end": &q.End} {
		s := v.Get(key)
		if s == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return q, 0, key + " must be RFC3339"
		}
		*dst = t
	}
	if !q.Start.IsZero() && !q.End.IsZero() && q.End.Before(q.Start) {
		return q, 0, "end is before start"
	}
	limit := 0
	if s := v.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			return q, 0, "limit must be a positive integer"
		}
		limit = n
	}
	return q, limit, ""
}
