package core

import (
	"fmt"
	"time"
)

// TaskStatus is the lifecycle state of a task.
type TaskStatus string

const (
	StatusOpen       TaskStatus = "open"
	StatusInProgress TaskStatus = "in_progress"
	StatusBlocked    TaskStatus = "blocked"
	StatusDone       TaskStatus = "done"
)

// Valid reports whether s is one of the recognized statuses.
func (s TaskStatus) Valid() bool {
	switch s {
	case StatusOpen, StatusInProgress, StatusBlocked, StatusDone:
		return true
	}
	return false
}

// Active reports whether the task still counts as live work for
// overdue and stall detection.
func (s TaskStatus) Active() bool {
	return s == StatusOpen || s == StatusInProgress
}

// ParseTaskStatus accepts the canonical values plus the hyphenated
// "in-progress" spelling.
func ParseTaskStatus(s string) (TaskStatus, error) {
	if s == "in-progress" {
		return StatusInProgress, nil
	}
	st := TaskStatus(s)
	if !st.Valid() {
		return "", &ValidationError{Field: "status", Constraint: fmt.Sprintf("unknown status %q", s)}
	}
	return st, nil
}

// Task is a unit of work tracked by the assistant.
//
// PriorityScore is derived by the priority engine and never set by
// callers. UpdatedAt changes on every write including recomputation;
// ActivityAt changes only when the task content or status changes.
type Task struct {
	ID              string            `json:"id"`
	Title           string            `json:"title"`
	Description     string            `json:"description,omitempty"`
	Status          TaskStatus        `json:"status"`
	DueAt           *time.Time        `json:"due_at,omitempty"`
	PriorityScore   float64           `json:"priority_score"`
	Overdue         bool              `json:"overdue"`
	Recommendations map[string]string `json:"recommendations,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"last_updated"`
	ActivityAt      time.Time         `json:"activity_at"`
}

// IsOverdue reports whether the task is active and its due date is
// strictly before now.
func (t *Task) IsOverdue(now time.Time) bool {
	return t.Status.Active() && t.DueAt != nil && t.DueAt.Before(now)
}

// TaskUpdate carries the user-editable fields of a task. Nil fields are
// left unchanged.
type TaskUpdate struct {
	Title       *string     `json:"title,omitempty"`
	Description *string     `json:"description,omitempty"`
	Status      *TaskStatus `json:"status,omitempty"`
	DueAt       *time.Time  `json:"due_at,omitempty"`
	ClearDue    bool        `json:"clear_due,omitempty"`
}

// Empty reports whether the update changes nothing.
func (u TaskUpdate) Empty() bool {
	return u.Title == nil && u.Description == nil && u.Status == nil && u.DueAt == nil && !u.ClearDue
}

// Validate checks the update before it reaches the store.
func (u TaskUpdate) Validate() error {
	if u.Title != nil && *u.Title == "" {
		return &ValidationError{Field: "title", Constraint: "must not be empty"}
	}
	if u.Status != nil && !u.Status.Valid() {
		return &ValidationError{Field: "status", Constraint: fmt.Sprintf("unknown status %q", *u.Status)}
	}
	if u.DueAt != nil && u.ClearDue {
		return &ValidationError{Field: "due_at", Constraint: "cannot set and clear due date together"}
	}
	return nil
}

// NewTask is the input for creating a task.
type NewTask struct {
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Status      TaskStatus `json:"status,omitempty"`
	DueAt       *time.Time `json:"due_at,omitempty"`
}

// Validate checks required fields and defaults the status to open.
func (n *NewTask) Validate() error {
	if n.Title == "" {
		return &ValidationError{Field: "title", Constraint: "required"}
	}
	if n.Status == "" {
		n.Status = StatusOpen
	}
	if !n.Status.Valid() {
		return &ValidationError{Field: "status", Constraint: fmt.Sprintf("unknown status %q", n.Status)}
	}
	return nil
}

// ParseDue accepts an RFC 3339 timestamp or a plain YYYY-MM-DD date. A
// plain date means 17:00 UTC on that day.
func ParseDue(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, &ValidationError{Field: "due_at", Constraint: fmt.Sprintf("expected RFC 3339 or YYYY-MM-DD, got %q", s)}
	}
	return d.Add(17 * time.Hour), nil
}
