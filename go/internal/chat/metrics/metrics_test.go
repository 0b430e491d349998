package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewPrometheusCollector(reg)

	m.RecordMessageApplied("live")
	m.RecordMessageApplied("live")
	m.RecordReconciled(true)
	m.RecordSendFailed()
	m.RecordConnectionState("CONNECTED")
	m.RecordReconnectAttempt(3)
	m.RecordStaleDrop("presence")
	m.RecordHistoryFetch("older", 50, true, 20*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.messages.WithLabelValues("live")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.reconciled.WithLabelValues("true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sendFailures))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.connectionState.WithLabelValues("CONNECTED")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.connectionState.WithLabelValues("RECONNECTING")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.lastAttempt))
	assert.Equal(t, 50.0, testutil.ToFloat64(m.historyMessages.WithLabelValues("older")))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestNoOpCollectorSatisfiesInterface(t *testing.T) {
	var c Collector = NoOpCollector{}
	c.RecordHistoryFetch("older", 0, false, time.Second)
}
