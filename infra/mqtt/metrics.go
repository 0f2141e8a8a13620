package mqtt

import "github.com/prometheus/client_golang/prometheus"

var (
	publishes *prometheus.CounterVec
	received  *prometheus.CounterVec
)

func newCollectors() (*prometheus.CounterVec, *prometheus.CounterVec) {
	pub := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mqtt_publish_total",
			Help: "MQTT publications by result",
		},
		[]string{"result"},
	)
	rcv := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mqtt_messages_received_total",
			Help: "Inbound MQTT messages by kind and result",
		},
		[]string{"kind", "result"},
	)
	return pub, rcv
}

func init() {
	publishes, received = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers MQTT metrics on reg, or on the default
// registerer when reg is nil.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(publishes, received)
}

// ResetMetrics reinitializes the collectors for tests.
func ResetMetrics(reg prometheus.Registerer) {
	publishes, received = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
