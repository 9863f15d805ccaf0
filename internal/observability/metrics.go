package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	ActiveSessions  prometheus.Gauge
	SessionEvents   *prometheus.CounterVec
	WSMessages      *prometheus.CounterVec
	ProviderCalls   *prometheus.CounterVec
	ProviderLatency *prometheus.HistogramVec
	ReportOutcomes  *prometheus.CounterVec

	latency *latencyWindow
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of live discussion sessions.",
		}),
		SessionEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_events_total",
			Help:      "Session events by type.",
		}, []string{"event"}),
		WSMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "WebSocket messages by direction and type.",
		}, []string{"direction", "type"}),
		ProviderCalls: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_calls_total",
			Help:      "Language model calls by purpose and outcome.",
		}, []string{"purpose", "outcome"}),
		ProviderLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_latency_ms",
			Help:      "Language model call latency in milliseconds.",
			Buckets:   []float64{250, 500, 1000, 2000, 4000, 8000, 15000, 30000, 60000},
		}, []string{"purpose"}),
		ReportOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "report_outcomes_total",
			Help:      "Assessment report generation and persistence outcomes.",
		}, []string{"stage", "outcome"}),
		latency: newLatencyWindow(256),
	}
}

// ObserveProviderCall records one language model call.
func (m *Metrics) ObserveProviderCall(purpose, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	ms := float64(d.Milliseconds())
	m.ProviderCalls.WithLabelValues(purpose, outcome).Inc()
	m.ProviderLatency.WithLabelValues(purpose).Observe(ms)
	if outcome == "ok" {
		m.latency.Observe(purpose, ms)
	} else {
		m.latency.ObserveIndicator(purpose + "_" + outcome)
	}
}

func (m *Metrics) ObserveReport(stage, outcome string) {
	if m == nil {
		return
	}
	m.ReportOutcomes.WithLabelValues(stage, outcome).Inc()
}

// SnapshotLatency returns rolling per-purpose provider latency percentiles.
func (m *Metrics) SnapshotLatency() LatencySnapshot {
	if m == nil {
		return (*latencyWindow)(nil).Snapshot()
	}
	return m.latency.Snapshot()
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
