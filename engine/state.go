package engine

import "fmt"

// State is a step of the conversation state machine. A turn moves
// Idle → Retrieving → Generating, loops through ToolDispatch back to
// Generating while the model calls tools, and ends in Responding → Idle.
// A write held for confirmation goes ToolDispatch → Responding, and the
// confirmed turn resumes Idle → ToolDispatch.
type State int

const (
	StateIdle State = iota
	StateRetrieving
	StateGenerating
	StateToolDispatch
	StateResponding
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRetrieving:
		return "retrieving"
	case StateGenerating:
		return "generating"
	case StateToolDispatch:
		return "tool_dispatch"
	case StateResponding:
		return "responding"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

var transitions = map[State][]State{
	StateIdle:         {StateRetrieving, StateToolDispatch},
	StateRetrieving:   {StateGenerating},
	StateGenerating:   {StateToolDispatch, StateResponding},
	StateToolDispatch: {StateGenerating, StateResponding},
	StateResponding:   {StateIdle},
}

// CanTransition reports whether the machine may move from s to next.
func (s State) CanTransition(next State) bool {
	for _, to := range transitions[s] {
		if to == next {
			return true
		}
	}
	return false
}
