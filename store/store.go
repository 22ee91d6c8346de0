// Package store defines the relational store used as the source of truth
// for tasks, memories and conversation threads.
package store

import (
	"context"
	"time"

	"github.com/becomeliminal/nim-assistant/core"
)

// TaskFilter narrows ListTasks. Zero value lists every task.
type TaskFilter struct {
	Statuses   []core.TaskStatus
	WithoutDue bool
}

// TaskStore persists tasks. Every mutation touches a single record.
type TaskStore interface {
	CreateTask(ctx context.Context, in core.NewTask) (*core.Task, error)
	GetTask(ctx context.Context, id string) (*core.Task, error)
	ListTasks(ctx context.Context, filter TaskFilter) ([]*core.Task, error)
	UpdateTask(ctx context.Context, id string, update core.TaskUpdate) (*core.Task, error)

	// SetPriority writes a derived score and last_updated.
	SetPriority(ctx context.Context, id string, score float64, at time.Time) error

	// SetOverdue sets the overdue flag and reports whether it changed.
	SetOverdue(ctx context.Context, id string, overdue bool, at time.Time) (bool, error)

	// SuggestDue writes a due date only when the task has none. It
	// reports whether the write happened.
	SuggestDue(ctx context.Context, id string, due, at time.Time) (bool, error)

	// SetRecommendation stores one entry of the recommendations blob.
	SetRecommendation(ctx context.Context, id, key, value string, at time.Time) error
}

// MemoryStore persists the canonical memory records.
type MemoryStore interface {
	// InsertMemory stores mem and returns its durable identifier.
	InsertMemory(ctx context.Context, mem *core.Memory) (string, error)
	GetMemory(ctx context.Context, id string) (*core.Memory, error)
	SetMemoryIndexID(ctx context.Context, id, indexID string) error

	// ListUnindexedMemories returns memories whose index write never
	// succeeded, oldest first.
	ListUnindexedMemories(ctx context.Context, limit int) ([]*core.Memory, error)

	// MaxImportanceByEntity returns the highest importance among memories
	// linked to each entity. Entities with no weighted memory are absent.
	MaxImportanceByEntity(ctx context.Context, entityIDs []string) (map[string]float64, error)
}

// ThreadStore persists conversation threads.
type ThreadStore interface {
	// GetThread returns a NotFoundError for unknown identifiers.
	GetThread(ctx context.Context, id string) (*core.Thread, error)

	// AppendTurns appends turns in order and replaces the scratch state,
	// creating the thread on first use.
	AppendTurns(ctx context.Context, id string, turns []core.Turn, scratch core.Scratch) (*core.Thread, error)
}

// Store is the full relational store.
type Store interface {
	TaskStore
	MemoryStore
	ThreadStore
	Ping(ctx context.Context) error
	Close() error
}
