package core

import "time"

// Role identifies who produced a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one utterance in a thread.
type Turn struct {
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Scratch is state carried between turns of a thread.
type Scratch struct {
	LastMemories    []string          `json:"last_memories,omitempty"`
	LastToolResults []ToolExecution   `json:"last_tool_results,omitempty"`
	Values          map[string]string `json:"values,omitempty"`
}

// Thread is one ongoing dialogue identified by a caller-supplied key.
type Thread struct {
	ID        string    `json:"id"`
	Turns     []Turn    `json:"turns"`
	Scratch   Scratch   `json:"scratch"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Recent returns the last n turns in order.
func (t *Thread) Recent(n int) []Turn {
	if n <= 0 || len(t.Turns) == 0 {
		return nil
	}
	if n >= len(t.Turns) {
		return t.Turns
	}
	return t.Turns[len(t.Turns)-n:]
}
