package priority

import (
	"strings"
	"time"

	"github.com/becomeliminal/nim-assistant/core"
)

const day = 24 * time.Hour

var horizonHints = []struct {
	phrases []string
	horizon time.Duration
	reason  string
}{
	{[]string{"urgent", "asap", "immediately", "today"}, day, "marked urgent"},
	{[]string{"tomorrow"}, day, "mentions tomorrow"},
	{[]string{"this week"}, 3 * day, "mentions this week"},
	{[]string{"next week"}, 7 * day, "mentions next week"},
	{[]string{"this month", "end of month"}, 14 * day, "mentions this month"},
}

// SuggestDeadline proposes a due date for t from its text, status and
// age. The result always lands on hour UTC at least an hour after now.
func SuggestDeadline(t *core.Task, now time.Time, hour int) (time.Time, string) {
	horizon, reason := statusHorizon(t.Status)

	text := strings.ToLower(t.Title + " " + t.Description)
	for _, h := range horizonHints {
		if containsAny(text, h.phrases) {
			horizon, reason = h.horizon, h.reason
			break
		}
	}

	if !t.CreatedAt.IsZero() && now.Sub(t.CreatedAt) > 30*day && horizon > day {
		horizon /= 2
		reason += ", pending over a month"
	}

	if hour < 0 || hour > 23 {
		hour = 17
	}
	target := now.Add(horizon).UTC()
	due := time.Date(target.Year(), target.Month(), target.Day(), hour, 0, 0, 0, time.UTC)
	if due.Before(now.Add(time.Hour)) {
		due = due.Add(day)
	}
	return due, reason
}

func statusHorizon(s core.TaskStatus) (time.Duration, string) {
	switch s {
	case core.StatusInProgress:
		return 3 * day, "in progress"
	case core.StatusBlocked:
		return 14 * day, "blocked"
	default:
		return 7 * day, "open"
	}
}

func containsAny(s string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}
