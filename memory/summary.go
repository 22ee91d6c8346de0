package memory

import (
	"fmt"
	"regexp"
	"strings"
)

// SummaryPolicy decides when a conversation-summary memory is written
// after a turn.
type SummaryPolicy string

const (
	SummaryNever     SummaryPolicy = "never"
	SummaryHeuristic SummaryPolicy = "heuristic"
	SummaryAlways    SummaryPolicy = "always"
)

// ParseSummaryPolicy accepts the policy names, defaulting to heuristic.
func ParseSummaryPolicy(s string) (SummaryPolicy, error) {
	switch SummaryPolicy(strings.ToLower(s)) {
	case "", SummaryHeuristic:
		return SummaryHeuristic, nil
	case SummaryNever:
		return SummaryNever, nil
	case SummaryAlways:
		return SummaryAlways, nil
	}
	return "", fmt.Errorf("unknown summary policy %q", s)
}

// Exchange is one user message with the reply it produced.
type Exchange struct {
	User      string
	Assistant string

	// Wrote is set when a write tool succeeded during the turn.
	Wrote bool
}

var (
	factCues = []string{
		"prefer", "always", "never", "likes", "doesn't like", "hates", "favorite", "favourite",
		"my ", "i am", "i'm", "lives", "works at", "works for", "birthday", "anniversary",
		"deadline", "due", "remind", "remember", "meeting", "moved", "email", "phone",
	}
	datePattern    = regexp.MustCompile(`\b(\d{1,2}[/.-]\d{1,2}([/.-]\d{2,4})?|\d{4}-\d{2}-\d{2}|monday|tuesday|wednesday|thursday|friday|saturday|sunday|tomorrow|next week)\b`)
	contactPattern = regexp.MustCompile(`[\w.+-]+@[\w-]+\.[\w.]+|\+?\d[\d\s-]{7,}\d`)
)

// ShouldSummarize applies policy to an exchange.
func ShouldSummarize(policy SummaryPolicy, ex Exchange) bool {
	switch policy {
	case SummaryNever:
		return false
	case SummaryAlways:
		return len(strings.TrimSpace(ex.User)) > 0 && len(strings.TrimSpace(ex.Assistant)) > 0
	}
	if ex.Wrote {
		return true
	}
	return StatesDurableFact(ex.User)
}

// StatesDurableFact reports whether text looks like it carries a fact
// worth keeping: a preference, a personal detail, a date, or contact
// details. Questions without such content are ignored.
func StatesDurableFact(text string) bool {
	t := strings.ToLower(strings.TrimSpace(text))
	if len(t) < 12 {
		return false
	}
	if contactPattern.MatchString(t) || datePattern.MatchString(t) {
		return true
	}
	if strings.HasSuffix(t, "?") {
		return false
	}
	for _, cue := range factCues {
		if strings.Contains(t, cue) {
			return true
		}
	}
	return false
}

// Summarize renders an exchange as conversation memory content.
func Summarize(ex Exchange) string {
	user := truncate(strings.TrimSpace(ex.User), 400)
	reply := truncate(strings.TrimSpace(ex.Assistant), 400)
	return fmt.Sprintf("User said: %s\nAssistant replied: %s", user, reply)
}

// SummaryImportance scores a conversation memory in [0, 1].
func SummaryImportance(ex Exchange) float64 {
	importance := 0.3
	if ex.Wrote {
		importance += 0.3
	}
	if StatesDurableFact(ex.User) {
		importance += 0.2
	}
	if len(strings.Fields(ex.User)) > 15 {
		importance += 0.1
	}
	if importance > 1 {
		importance = 1
	}
	return importance
}
