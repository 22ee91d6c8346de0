package memory_test

import (
	"strings"
	"testing"

	"github.com/becomeliminal/nim-assistant/memory"
)

func TestShouldSummarize(t *testing.T) {
	fact := memory.Exchange{User: "Miller prefers email over phone calls", Assistant: "Noted."}
	question := memory.Exchange{User: "what should I do next?", Assistant: "Send the proposal."}
	wrote := memory.Exchange{User: "ok do it", Assistant: "Done.", Wrote: true}

	cases := []struct {
		policy memory.SummaryPolicy
		ex     memory.Exchange
		want   bool
	}{
		{memory.SummaryHeuristic, fact, true},
		{memory.SummaryHeuristic, question, false},
		{memory.SummaryHeuristic, wrote, true},
		{memory.SummaryNever, fact, false},
		{memory.SummaryAlways, question, true},
		{memory.SummaryAlways, memory.Exchange{User: "hi"}, false},
	}
	for i, tc := range cases {
		if got := memory.ShouldSummarize(tc.policy, tc.ex); got != tc.want {
			t.Errorf("case %d (%s, %q): got %v, want %v", i, tc.policy, tc.ex.User, got, tc.want)
		}
	}
}

func TestStatesDurableFact(t *testing.T) {
	facts := []string{
		"Miller's email is miller@example.com",
		"The board meeting moved to 2026-07-01",
		"I'm allergic to shellfish",
		"Call me on +44 7700 900123",
	}
	for _, f := range facts {
		if !memory.StatesDurableFact(f) {
			t.Errorf("expected fact: %q", f)
		}
	}
	nonFacts := []string{"thanks", "what should I do next?", "and after that?", "ok sounds good"}
	for _, f := range nonFacts {
		if memory.StatesDurableFact(f) {
			t.Errorf("expected non-fact: %q", f)
		}
	}
}

func TestSummarizeAndImportance(t *testing.T) {
	ex := memory.Exchange{User: "Miller prefers email", Assistant: "I'll remember that.", Wrote: true}
	s := memory.Summarize(ex)
	if !strings.HasPrefix(s, "User said: Miller prefers email") || !strings.Contains(s, "Assistant replied: I'll remember that.") {
		t.Errorf("unexpected summary %q", s)
	}
	if w := memory.SummaryImportance(ex); w <= 0.5 || w > 1 {
		t.Errorf("unexpected importance %v", w)
	}
}

func TestParseSummaryPolicy(t *testing.T) {
	if p, _ := memory.ParseSummaryPolicy(""); p != memory.SummaryHeuristic {
		t.Errorf("expected heuristic default, got %s", p)
	}
	if p, _ := memory.ParseSummaryPolicy("ALWAYS"); p != memory.SummaryAlways {
		t.Errorf("expected always, got %s", p)
	}
	if _, err := memory.ParseSummaryPolicy("sometimes"); err == nil {
		t.Error("expected error for unknown policy")
	}
}
