package metrics_test

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/becomeliminal/nim-assistant/core"
	"github.com/becomeliminal/nim-assistant/metrics"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *metrics.Metrics
	m.ObserveChat(metrics.OK, time.Second)
	m.ToolCall("get_task", metrics.OK)
	m.MemoryWrite("durable", metrics.OK)
	m.MemorySearch(metrics.OK)
	m.PriorityWrite(metrics.Error)
	m.SetAlerts(nil)
}

func TestCounters(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())

	m.MemoryWrite("durable", metrics.OK)
	m.MemoryWrite("durable", metrics.OK)
	m.MemoryWrite("index", metrics.Error)
	if got := testutil.ToFloat64(m.MemoryWrites.WithLabelValues("durable", metrics.OK)); got != 2 {
		t.Errorf("durable ok: got %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.MemoryWrites.WithLabelValues("index", metrics.Error)); got != 1 {
		t.Errorf("index error: got %v, want 1", got)
	}

	m.ObserveChat(metrics.Degraded, 300*time.Millisecond)
	if got := testutil.ToFloat64(m.ChatRequests.WithLabelValues(metrics.Degraded)); got != 1 {
		t.Errorf("chat degraded: got %v, want 1", got)
	}
}

func TestSetAlertsResets(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	m.SetAlerts([]core.Alert{
		{Kind: core.AlertOverdue, Severity: core.SeverityCritical},
		{Kind: core.AlertOverdue, Severity: core.SeverityCritical},
		{Kind: core.AlertStuck, Severity: core.SeverityMedium},
	})
	if got := testutil.ToFloat64(m.Alerts.WithLabelValues("overdue", "critical")); got != 2 {
		t.Errorf("overdue critical: got %v, want 2", got)
	}

	m.SetAlerts(nil)
	if got := testutil.ToFloat64(m.Alerts.WithLabelValues("overdue", "critical")); got != 0 {
		t.Errorf("expected reset to 0, got %v", got)
	}
}
