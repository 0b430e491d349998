package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector defines the interface for collecting chat engine metrics
type Collector interface {
	RecordMessageApplied(source string)
	RecordReconciled(matched bool)
	RecordSendFailed()
	RecordConnectionState(state string)
	RecordReconnectAttempt(attempt int)
	RecordStaleDrop(kind string)
	RecordHistoryFetch(kind string, count int, success bool, duration time.Duration)
}

// NoOpCollector is a no-op implementation for when metrics aren't needed
type NoOpCollector struct{}

func (NoOpCollector) RecordMessageApplied(source string) {}
func (NoOpCollector) RecordReconciled(matched bool) {}
func (NoOpCollector) RecordSendFailed() {}
func (NoOpCollector) RecordConnectionState(state string) {}
func (NoOpCollector) RecordReconnectAttempt(attempt int) {}
func (NoOpCollector) RecordStaleDrop(kind string) {}
func (NoOpCollector) RecordHistoryFetch(kind string, count int, success bool, duration time.Duration) {}

var connectionStates = []string{"DISCONNECTED", "CONNECTING", "CONNECTED", "RECONNECTING"}

// PrometheusCollector implements Collector using Prometheus
type PrometheusCollector struct {
	messages        *prometheus.CounterVec
	reconciled      *prometheus.CounterVec
	sendFailures    prometheus.Counter
	connectionState *prometheus.GaugeVec
	reconnects      prometheus.Counter
	lastAttempt     prometheus.Gauge
	staleDrops      *prometheus.CounterVec
	historyFetches  *prometheus.CounterVec
	historyDuration *prometheus.HistogramVec
	historyMessages *prometheus.CounterVec
}

// NewPrometheusCollector creates the chat metrics and registers them with reg.
func NewPrometheusCollector(reg prometheus.Registerer) *PrometheusCollector {
	m := &PrometheusCollector{
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "leaguechat_messages_applied_total",
			Help: "Messages written into a room log, by source.",
		}, []string{"source"}),
		reconciled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "leaguechat_messages_reconciled_total",
			Help: "Server echoes of local sends, by whether a pending entry matched.",
		}, []string{"matched"}),
		sendFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "leaguechat_send_failures_total",
			Help: "Pending messages that were marked failed.",
		}),
		connectionState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "leaguechat_connection_state",
			Help: "1 for the current connection state, 0 otherwise.",
		}, []string{"state"}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "leaguechat_reconnect_attempts_total",
			Help: "Reconnect attempts after a transport error.",
		}),
		lastAttempt: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "leaguechat_reconnect_attempt",
			Help: "Number of the current reconnect attempt.",
		}),
		staleDrops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "leaguechat_stale_frames_dropped_total",
			Help: "Presence and typing frames dropped as stale, by kind.",
		}, []string{"kind"}),
		historyFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "leaguechat_history_fetches_total",
			Help: "History requests, by kind and status.",
		}, []string{"kind", "status"}),
		historyDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "leaguechat_history_fetch_duration_seconds",
			Help:    "History request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind"}),
		historyMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "leaguechat_history_messages_total",
			Help: "Messages received from history requests.",
		}, []string{"kind"}),
	}

	reg.MustRegister(
		m.messages,
		m.reconciled,
		m.sendFailures,
		m.connectionState,
		m.reconnects,
		m.lastAttempt,
		m.staleDrops,
		m.historyFetches,
		m.historyDuration,
		m.historyMessages,
	)
	return m
}

func (m *PrometheusCollector) RecordMessageApplied(source string) {
	m.messages.WithLabelValues(source).Inc()
}

func (m *PrometheusCollector) RecordReconciled(matched bool) {
	m.reconciled.WithLabelValues(strconv.FormatBool(matched)).Inc()
}

func (m *PrometheusCollector) RecordSendFailed() {
	m.sendFailures.Inc()
}

func (m *PrometheusCollector) RecordConnectionState(state string) {
	for _, s := range connectionStates {
		v := 0.0
		if s == state {
			v = 1
		}
		m.connectionState.WithLabelValues(s).Set(v)
	}
}

func (m *PrometheusCollector) RecordReconnectAttempt(attempt int) {
	m.reconnects.Inc()
	m.lastAttempt.Set(float64(attempt))
}

func (m *PrometheusCollector) RecordStaleDrop(kind string) {
	m.staleDrops.WithLabelValues(kind).Inc()
}

func (m *PrometheusCollector) RecordHistoryFetch(kind string, count int, success bool, duration time.Duration) {
	status := "success"
	if !success {
		status = "failure"
	}
	m.historyFetches.WithLabelValues(kind, status).Inc()
	m.historyDuration.WithLabelValues(kind).Observe(duration.Seconds())
	m.historyMessages.WithLabelValues(kind).Add(float64(count))
}
