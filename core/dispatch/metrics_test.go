package dispatch

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatchCollectorsOnFreshRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	ResetMetrics(reg)
	t.Cleanup(func() { ResetMetrics(nil) })

	dispatchDecisions.WithLabelValues(StrategyPredictor, "no_vehicle").Add(2)
	dispatchDecisions.WithLabelValues(StrategyRule, "dispatched").Inc()
	ackTimeouts.Inc()
	ackLatency.Observe(0.25)

	assert.Equal(t, 2.0, testutil.ToFloat64(dispatchDecisions.WithLabelValues(StrategyPredictor, "no_vehicle")))
	assert.Equal(t, 1.0, testutil.ToFloat64(ackTimeouts))
	assert.Equal(t, 0.0, testutil.ToFloat64(queueDropped))

	n, err := testutil.GatherAndCount(reg,
		"dispatch_decisions_total",
		"dispatch_ack_latency_seconds",
		"dispatch_ack_timeouts_total",
		"dispatch_strategy_fallbacks_total",
		"dispatch_queue_dropped_total",
		"dispatch_notify_failures_total",
	)
	require.NoError(t, err)
	// two decision series, one histogram and four plain counters
	assert.Equal(t, 7, n)
}

func TestResetMetricsStartsFromZero(t *testing.T) {
	ResetMetrics(nil)
	t.Cleanup(func() { ResetMetrics(nil) })
	notifyFailures.Inc()
	ResetMetrics(nil)
	assert.Equal(t, 0.0, testutil.ToFloat64(notifyFailures))
}
