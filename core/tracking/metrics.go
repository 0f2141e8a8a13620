package tracking

import "github.com/prometheus/client_golang/prometheus"

var (
	samples         *prometheus.CounterVec
	arrivals        prometheus.Counter
	corrections     prometheus.Counter
	recalculations  prometheus.Counter
	routeDeviationM prometheus.Histogram
)

func newCollectors() (*prometheus.CounterVec, prometheus.Counter, prometheus.Counter, prometheus.Counter, prometheus.Histogram) {
	s := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracking_samples_total",
			Help: "Position samples processed, by result",
		},
		[]string{"result"},
	)
	a := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tracking_arrivals_total",
			Help: "Vehicles detected on site",
		},
	)
	c := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tracking_self_corrections_total",
			Help: "Working vehicles reverted to onRoute because they were away from the fault",
		},
	)
	r := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tracking_route_recalculations_total",
			Help: "Routes re-issued after a deviation",
		},
	)
	d := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tracking_route_deviation_meters",
			Help:    "Distance between samples and their expected route position",
			Buckets: []float64{10, 25, 50, 100, 200, 500, 1000, 5000},
		},
	)
	return s, a, c, r, d
}

func init() {
	samples, arrivals, corrections, recalculations, routeDeviationM = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers tracking metrics on reg, or on the default
// registerer when reg is nil.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(samples, arrivals, corrections, recalculations, routeDeviationM)
}

// ResetMetrics reinitializes the collectors for tests.
func ResetMetrics(reg prometheus.Registerer) {
	samples, arrivals, corrections, recalculations, routeDeviationM = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
