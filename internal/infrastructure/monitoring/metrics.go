package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics. A nil *Metrics is valid and
// records nothing, so components can run unmetered in tests.
type Metrics struct {
	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Session metrics
	SessionState prometheus.Gauge
	Reconnects   prometheus.Counter
	SendsTotal   *prometheus.CounterVec

	// Relay metrics
	RelayDeliveries *prometheus.CounterVec
	AutoReplies     prometheus.Counter

	// System metrics
	Uptime    prometheus.Gauge
	startTime time.Time
}

// NewMetrics creates a new metrics collector registered on the default
// registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		startTime: time.Now(),

		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gateway_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		SessionState: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "gateway_session_state",
				Help: "Current session state (0=init 1=awaiting_scan 2=connected 3=closed 4=logged_out)",
			},
		),
		Reconnects: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "gateway_session_reconnects_total",
				Help: "Total number of reconnect attempts after a non-terminal disconnect",
			},
		),
		SendsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_sends_total",
				Help: "Total number of outbound send attempts by outcome",
			},
			[]string{"outcome"},
		),

		RelayDeliveries: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_relay_deliveries_total",
				Help: "Total number of webhook delivery attempts by event and outcome",
			},
			[]string{"event", "outcome"},
		),
		AutoReplies: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "gateway_auto_replies_total",
				Help: "Total number of auto-reply sends",
			},
		),

		Uptime: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "gateway_uptime_seconds",
				Help: "Process uptime in seconds",
			},
		),
	}

	go m.trackUptime()
	return m
}

// RecordHTTPRequest records one handled HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// SetSessionState records the current session state.
func (m *Metrics) SetSessionState(state int) {
	if m == nil {
		return
	}
	m.SessionState.Set(float64(state))
}

// RecordReconnect counts one reconnect attempt.
func (m *Metrics) RecordReconnect() {
	if m == nil {
		return
	}
	m.Reconnects.Inc()
}

// RecordSend counts one outbound send attempt.
func (m *Metrics) RecordSend(outcome string) {
	if m == nil {
		return
	}
	m.SendsTotal.WithLabelValues(outcome).Inc()
}

// RecordRelayDelivery counts one webhook delivery attempt.
func (m *Metrics) RecordRelayDelivery(event, outcome string) {
	if m == nil {
		return
	}
	m.RelayDeliveries.WithLabelValues(event, outcome).Inc()
}

// RecordAutoReply counts one auto-reply send.
func (m *Metrics) RecordAutoReply() {
	if m == nil {
		return
	}
	m.AutoReplies.Inc()
}

func (m *Metrics) trackUptime() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for range ticker.C {
		m.Uptime.Set(time.Since(m.startTime).Seconds())
	}
}
