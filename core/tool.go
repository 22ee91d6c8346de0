package core

import (
	"context"
	"encoding/json"
)

// Tool is a capability the agent can invoke mid-conversation.
type Tool interface {
	Name() string
	Description() string
	Schema() map[string]interface{}

	// Writes reports whether the tool mutates state. Write tools
	// require a thought in their input.
	Writes() bool

	Execute(ctx context.Context, params *ToolParams) (*ToolResult, error)
}

// ToolParams is passed to Tool.Execute.
type ToolParams struct {
	ThreadID  string
	RequestID string
	Input     json.RawMessage
}

// ToolResult is the outcome of a tool execution. A failed result is
// reported back to the model rather than aborting the turn.
type ToolResult struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// ToolExecution records one tool call made during a turn.
type ToolExecution struct {
	Tool       string      `json:"tool"`
	Input      interface{} `json:"input,omitempty"`
	Result     interface{} `json:"result,omitempty"`
	Error      string      `json:"error,omitempty"`
	DurationMs int64       `json:"duration_ms"`
}
