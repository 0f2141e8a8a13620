package resolution

import "github.com/prometheus/client_golang/prometheus"

var (
	resolutions     *prometheus.CounterVec
	timersCancelled prometheus.Counter
	writeFailures   prometheus.Counter
)

func newCollectors() (*prometheus.CounterVec, prometheus.Counter, prometheus.Counter) {
	res := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resolution_faults_resolved_total",
			Help: "Faults resolved, by trigger",
		},
		[]string{"trigger"},
	)
	cancelled := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "resolution_timers_cancelled_total",
			Help: "Auto-resolution timers cancelled before firing",
		},
	)
	wf := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "resolution_write_failures_total",
			Help: "Best-effort resolution writes that failed",
		},
	)
	return res, cancelled, wf
}

func init() {
	resolutions, timersCancelled, writeFailures = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers resolution metrics on reg, or on the
// default registerer when reg is nil.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(resolutions, timersCancelled, writeFailures)
}

// ResetMetrics reinitializes the collectors for tests.
func ResetMetrics(reg prometheus.Registerer) {
	resolutions, timersCancelled, writeFailures = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
