package core_test

import (
	"testing"
	"time"

	"github.com/becomeliminal/nim-assistant/core"
)

func TestParseTaskStatus(t *testing.T) {
	cases := map[string]core.TaskStatus{
		"open":        core.StatusOpen,
		"in_progress": core.StatusInProgress,
		"in-progress": core.StatusInProgress,
		"blocked":     core.StatusBlocked,
		"done":        core.StatusDone,
	}
	for in, want := range cases {
		got, err := core.ParseTaskStatus(in)
		if err != nil {
			t.Errorf("%s: unexpected error %v", in, err)
		}
		if got != want {
			t.Errorf("%s: got %s, want %s", in, got, want)
		}
	}
	if _, err := core.ParseTaskStatus("archived"); !core.IsValidation(err) {
		t.Errorf("expected ValidationError, got %v", err)
	}
}

func TestTaskIsOverdue(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	cases := []struct {
		name string
		task core.Task
		want bool
	}{
		{"open past due", core.Task{Status: core.StatusOpen, DueAt: &past}, true},
		{"in progress past due", core.Task{Status: core.StatusInProgress, DueAt: &past}, true},
		{"blocked past due", core.Task{Status: core.StatusBlocked, DueAt: &past}, false},
		{"done past due", core.Task{Status: core.StatusDone, DueAt: &past}, false},
		{"open future", core.Task{Status: core.StatusOpen, DueAt: &future}, false},
		{"due exactly now", core.Task{Status: core.StatusOpen, DueAt: &now}, false},
		{"no due date", core.Task{Status: core.StatusOpen}, false},
	}
	for _, tc := range cases {
		if got := tc.task.IsOverdue(now); got != tc.want {
			t.Errorf("%s: got %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestValidateMemoryInput(t *testing.T) {
	if err := core.ValidateMemoryInput("abcd", core.MemoryFact); !core.IsValidation(err) {
		t.Errorf("four characters should be rejected, got %v", err)
	}
	if err := core.ValidateMemoryInput("   abcd   ", core.MemoryFact); !core.IsValidation(err) {
		t.Errorf("padding should not count toward length, got %v", err)
	}
	if err := core.ValidateMemoryInput("héllo", core.MemoryFact); err != nil {
		t.Errorf("five runes should be accepted, got %v", err)
	}
	if err := core.ValidateMemoryInput("valid content", "gossip"); !core.IsValidation(err) {
		t.Errorf("unknown type should be rejected, got %v", err)
	}
	for _, typ := range core.MemoryTypes {
		if err := core.ValidateMemoryInput("valid content", typ); err != nil {
			t.Errorf("%s: unexpected error %v", typ, err)
		}
	}
}

func TestNewTaskValidate(t *testing.T) {
	n := core.NewTask{Title: "Call Miller"}
	if err := n.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n.Status != core.StatusOpen {
		t.Errorf("expected default status open, got %s", n.Status)
	}
	if err := (&core.NewTask{}).Validate(); !core.IsValidation(err) {
		t.Errorf("missing title should fail, got %v", err)
	}
}

func TestParseDue(t *testing.T) {
	got, err := core.ParseDue("2026-06-01")
	if err != nil {
		t.Fatal(err)
	}
	if want := time.Date(2026, 6, 1, 17, 0, 0, 0, time.UTC); !got.Equal(want) {
		t.Errorf("date only: got %v, want %v", got, want)
	}

	got, err = core.ParseDue("2026-06-01T09:30:00+02:00")
	if err != nil {
		t.Fatal(err)
	}
	if want := time.Date(2026, 6, 1, 7, 30, 0, 0, time.UTC); !got.Equal(want) || got.Location() != time.UTC {
		t.Errorf("rfc3339: got %v, want %v", got, want)
	}

	if _, err := core.ParseDue("next tuesday"); !core.IsValidation(err) {
		t.Errorf("expected ValidationError, got %v", err)
	}
}
