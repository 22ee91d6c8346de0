package core

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// MinMemoryContentLength is the shortest content accepted by remember.
const MinMemoryContentLength = 5

// MemoryType classifies a memory.
type MemoryType string

const (
	MemoryConversation MemoryType = "conversation"
	MemoryFact         MemoryType = "fact"
	MemoryPreference   MemoryType = "preference"
	MemoryTask         MemoryType = "task"
	MemoryGeneral      MemoryType = "general"
)

// MemoryTypes lists every recognized memory type.
var MemoryTypes = []MemoryType{MemoryConversation, MemoryFact, MemoryPreference, MemoryTask, MemoryGeneral}

// Valid reports whether t is one of the recognized types.
func (t MemoryType) Valid() bool {
	for _, v := range MemoryTypes {
		if t == v {
			return true
		}
	}
	return false
}

// Memory is a durable fact with an optional vector index entry.
type Memory struct {
	ID         string     `json:"id"`
	Content    string     `json:"content"`
	Type       MemoryType `json:"type"`
	Importance *float64   `json:"importance,omitempty"`
	EntityID   string     `json:"entity_id,omitempty"`
	Source     string     `json:"source,omitempty"`
	IndexID    string     `json:"index_id,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// ValidateMemoryInput checks content and type at the boundary. Content
// length is counted in characters, not bytes.
func ValidateMemoryInput(content string, typ MemoryType) error {
	if utf8.RuneCountInString(strings.TrimSpace(content)) < MinMemoryContentLength {
		return &ValidationError{
			Field:      "content",
			Constraint: fmt.Sprintf("must be at least %d characters", MinMemoryContentLength),
		}
	}
	if !typ.Valid() {
		return &ValidationError{
			Field:      "type",
			Constraint: fmt.Sprintf("unknown memory type %q", typ),
		}
	}
	return nil
}

// ValidateImportance checks an optional importance weight.
func ValidateImportance(importance *float64) error {
	if importance == nil {
		return nil
	}
	if *importance < 0 || *importance > 1 {
		return &ValidationError{Field: "importance", Constraint: "must be between 0 and 1"}
	}
	return nil
}
