package priority

import (
	"fmt"
	"time"

	"github.com/becomeliminal/nim-assistant/core"
)

// Thresholds classify alerts. A task overdue by at least OverdueCritical
// is critical, by at least OverdueHigh is high, otherwise medium. The
// default OverdueHigh of zero makes every overdue task at least high. A task
// without activity for StallAfter is stuck, and StallHigh and
// StallCritical raise its severity.
type Thresholds struct {
	OverdueHigh     time.Duration `yaml:"overdue_high"`
	OverdueCritical time.Duration `yaml:"overdue_critical"`
	StallAfter      time.Duration `yaml:"stall_after"`
	StallHigh       time.Duration `yaml:"stall_high"`
	StallCritical   time.Duration `yaml:"stall_critical"`
}

// DefaultThresholds holds the default severity thresholds.
var DefaultThresholds = Thresholds{
	OverdueHigh:     0,
	OverdueCritical: 72 * time.Hour,
	StallAfter:      72 * time.Hour,
	StallHigh:       7 * 24 * time.Hour,
	StallCritical:   14 * 24 * time.Hour,
}

// Validate checks the thresholds are positive and ordered.
func (t Thresholds) Validate() error {
	if t.OverdueHigh < 0 || t.OverdueCritical <= 0 || t.OverdueHigh > t.OverdueCritical {
		return fmt.Errorf("overdue thresholds must satisfy 0 <= high <= critical, got %s and %s", t.OverdueHigh, t.OverdueCritical)
	}
	if t.StallAfter <= 0 || t.StallHigh < t.StallAfter || t.StallCritical < t.StallHigh {
		return fmt.Errorf("stall thresholds must satisfy 0 < after <= high <= critical, got %s, %s, %s", t.StallAfter, t.StallHigh, t.StallCritical)
	}
	return nil
}

// OverdueSeverity classifies how far past due a task is.
func (t Thresholds) OverdueSeverity(overdue time.Duration) core.Severity {
	switch {
	case overdue >= t.OverdueCritical:
		return core.SeverityCritical
	case overdue >= t.OverdueHigh:
		return core.SeverityHigh
	default:
		return core.SeverityMedium
	}
}

// StallSeverity classifies how long a task has been stalled.
func (t Thresholds) StallSeverity(stalled time.Duration) core.Severity {
	switch {
	case stalled >= t.StallCritical:
		return core.SeverityCritical
	case stalled >= t.StallHigh:
		return core.SeverityHigh
	default:
		return core.SeverityMedium
	}
}

// Config holds Engine configuration.
type Config struct {
	// Fanout bounds concurrent per-task writes in bulk operations.
	Fanout int

	Thresholds Thresholds
	Weights    Weights

	// DeadlineHour is the UTC hour suggested deadlines fall on.
	DeadlineHour int
}

// DefaultConfig holds the defaults.
var DefaultConfig = &Config{
	Fanout:       8,
	Thresholds:   DefaultThresholds,
	Weights:      DefaultWeights,
	DeadlineHour: 17,
}
