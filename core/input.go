package core

// BaseInput provides common fields for all tool inputs.
// Tools embed this struct to accept a thought alongside their arguments.
type BaseInput struct {
	// Thought is the agent's reasoning for the call. Required for
	// tools that write.
	Thought string `json:"thought,omitempty"`
}
