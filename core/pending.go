package core

import (
	"encoding/json"
	"fmt"
	"time"
)

// PendingAction is a write tool call held until the user approves or
// declines it.
type PendingAction struct {
	ID        string          `json:"id"`
	ThreadID  string          `json:"thread_id"`
	Tool      string          `json:"tool"`
	Input     json.RawMessage `json:"input"`
	Thought   string          `json:"thought"`
	Summary   string          `json:"summary"`
	CreatedAt time.Time       `json:"created_at"`
	ExpiresAt time.Time       `json:"expires_at"`
}

// Expired reports whether the action can no longer be confirmed.
func (p *PendingAction) Expired(now time.Time) bool {
	return !p.ExpiresAt.IsZero() && !now.Before(p.ExpiresAt)
}

// SummarizeCall renders a tool call for a confirmation prompt. The
// thought field is left out since it is shown separately.
func SummarizeCall(tool string, input json.RawMessage) string {
	var fields map[string]interface{}
	if err := json.Unmarshal(input, &fields); err != nil || len(fields) == 0 {
		return tool
	}
	delete(fields, "thought")
	if len(fields) == 0 {
		return tool
	}
	args, err := json.Marshal(fields)
	if err != nil {
		return tool
	}
	return fmt.Sprintf("%s %s", tool, args)
}
