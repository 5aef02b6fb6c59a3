package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the bot.
type Metrics struct {
	ActiveUsers       prometheus.Gauge
	Messages          *prometheus.CounterVec
	Commands          *prometheus.CounterVec
	QuotaDecisions    *prometheus.CounterVec
	EntitlementChecks *prometheus.CounterVec
	ProviderErrors    *prometheus.CounterVec
	PersistFailures   *prometheus.CounterVec
	CompletionLatency prometheus.Histogram

	stages *stageWindow
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		ActiveUsers: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_users",
			Help:      "Number of users with a live session.",
		}),
		Messages: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Inbound messages by source and outcome.",
		}, []string{"source", "outcome"}),
		Commands: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Commands by name and outcome.",
		}, []string{"command", "outcome"}),
		QuotaDecisions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quota_decisions_total",
			Help:      "Voice quota decisions.",
		}, []string{"decision"}),
		EntitlementChecks: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entitlement_checks_total",
			Help:      "Membership checks by result.",
		}, []string{"result"}),
		ProviderErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_errors_total",
			Help:      "Provider errors by provider and code.",
		}, []string{"provider", "code"}),
		PersistFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persist_failures_total",
			Help:      "Best-effort durable writes that failed.",
		}, []string{"op"}),
		CompletionLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "completion_latency_ms",
			Help:      "Latency of completion requests in milliseconds.",
			Buckets:   []float64{250, 500, 1000, 2000, 4000, 8000, 15000, 30000},
		}),
		stages: newStageWindow(256),
	}
}

// ObserveStage records one latency sample for the rolling window and, for
// completions, the histogram.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	ms := float64(d.Milliseconds())
	if stage == StageCompletion {
		m.CompletionLatency.Observe(ms)
	}
	m.stages.Observe(stage, ms)
}

// Indicate counts a named pipeline event in the rolling snapshot.
func (m *Metrics) Indicate(name string) {
	if m == nil {
		return
	}
	m.stages.ObserveIndicator(name)
}

func (m *Metrics) SnapshotStages() StageSnapshot {
	if m == nil {
		return StageSnapshot{GeneratedAt: time.Now().UTC()}
	}
	return m.stages.Snapshot()
}

func (m *Metrics) PersistFailed(op string) {
	if m == nil {
		return
	}
	m.PersistFailures.WithLabelValues(op).Inc()
}

func (m *Metrics) EntitlementResult(result string) {
	if m == nil {
		return
	}
	m.EntitlementChecks.WithLabelValues(result).Inc()
}

func (m *Metrics) QuotaDecision(decision string) {
	if m == nil {
		return
	}
	m.QuotaDecisions.WithLabelValues(decision).Inc()
}

func (m *Metrics) Command(name, outcome string) {
	if m == nil {
		return
	}
	m.Commands.WithLabelValues(name, outcome).Inc()
}

func (m *Metrics) Message(source, outcome string) {
	if m == nil {
		return
	}
	m.Messages.WithLabelValues(source, outcome).Inc()
}

func (m *Metrics) ProviderError(provider, code string) {
	if m == nil {
		return
	}
	m.ProviderErrors.WithLabelValues(provider, code).Inc()
}

func (m *Metrics) SetActiveUsers(n int) {
	if m == nil {
		return
	}
	m.ActiveUsers.Set(float64(n))
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
