package core

import "time"

// AlertKind is the condition an alert reports.
type AlertKind string

const (
	AlertOverdue AlertKind = "overdue"
	AlertStuck   AlertKind = "stuck"
)

// Severity tiers, highest first.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
)

// Rank orders severities so that critical sorts first.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 0
	case SeverityHigh:
		return 1
	default:
		return 2
	}
}

// Alert is computed at check time from task state and is never stored.
type Alert struct {
	TaskID   string        `json:"task_id"`
	Title    string        `json:"title"`
	Kind     AlertKind     `json:"kind"`
	Severity Severity      `json:"severity"`
	Elapsed  time.Duration `json:"elapsed_ns"`
	DueAt    *time.Time    `json:"due_at,omitempty"`
}
