// Package metrics holds the Prometheus collectors shared by the engine,
// memory and priority components. A nil *Metrics is valid and records
// nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/becomeliminal/nim-assistant/core"
)

// Metrics groups every collector.
type Metrics struct {
	ChatRequests   *prometheus.CounterVec
	ChatDuration   prometheus.Histogram
	ToolCalls      *prometheus.CounterVec
	MemoryWrites   *prometheus.CounterVec
	MemorySearches *prometheus.CounterVec
	PriorityWrites *prometheus.CounterVec
	Alerts         *prometheus.GaugeVec
}

// New registers the collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ChatRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nim",
			Name:      "chat_requests_total",
			Help:      "Chat turns by outcome",
		}, []string{"outcome"}),
		ChatDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "nim",
			Name:      "chat_duration_seconds",
			Help:      "Wall time of one chat turn",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 20, 40},
		}),
		ToolCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nim",
			Name:      "tool_calls_total",
			Help:      "Tool executions by tool and outcome",
		}, []string{"tool", "outcome"}),
		MemoryWrites: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nim",
			Name:      "memory_writes_total",
			Help:      "Memory writes by store and outcome",
		}, []string{"store", "outcome"}),
		MemorySearches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nim",
			Name:      "memory_searches_total",
			Help:      "Memory searches by outcome",
		}, []string{"outcome"}),
		PriorityWrites: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nim",
			Name:      "priority_writes_total",
			Help:      "Per-task priority score writes by outcome",
		}, []string{"outcome"}),
		Alerts: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "nim",
			Name:      "alerts",
			Help:      "Alerts found by the last check",
		}, []string{"kind", "severity"}),
	}
}

// Outcome labels.
const (
	OK       = "ok"
	Error    = "error"
	Skipped  = "skipped"
	Degraded = "degraded"
)

// ObserveChat records one chat turn.
func (m *Metrics) ObserveChat(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.ChatRequests.WithLabelValues(outcome).Inc()
	m.ChatDuration.Observe(elapsed.Seconds())
}

// ToolCall records one tool execution.
func (m *Metrics) ToolCall(tool, outcome string) {
	if m == nil {
		return
	}
	m.ToolCalls.WithLabelValues(tool, outcome).Inc()
}

// MemoryWrite records a write to the durable store or the index.
func (m *Metrics) MemoryWrite(store, outcome string) {
	if m == nil {
		return
	}
	m.MemoryWrites.WithLabelValues(store, outcome).Inc()
}

// MemorySearch records one search.
func (m *Metrics) MemorySearch(outcome string) {
	if m == nil {
		return
	}
	m.MemorySearches.WithLabelValues(outcome).Inc()
}

// PriorityWrite records one score write.
func (m *Metrics) PriorityWrite(outcome string) {
	if m == nil {
		return
	}
	m.PriorityWrites.WithLabelValues(outcome).Inc()
}

// SetAlerts replaces the alert gauges with the counts in alerts.
func (m *Metrics) SetAlerts(alerts []core.Alert) {
	if m == nil {
		return
	}
	m.Alerts.Reset()
	for _, kind := range []core.AlertKind{core.AlertOverdue, core.AlertStuck} {
		for _, sev := range []core.Severity{core.SeverityCritical, core.SeverityHigh, core.SeverityMedium} {
			m.Alerts.WithLabelValues(string(kind), string(sev)).Set(0)
		}
	}
	for _, a := range alerts {
		m.Alerts.WithLabelValues(string(a.Kind), string(a.Severity)).Inc()
	}
}
