package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/becomeliminal/nim-assistant/core"
	"github.com/becomeliminal/nim-assistant/llm"
	"github.com/becomeliminal/nim-assistant/memory"
)

const (
	declinedText = "The user declined this action. Do not retry it unless they ask again."
	deferredText = "Not run: an earlier action in this round is waiting for the user's confirmation. Call it again after the confirmation if it is still needed."
)

// parkedTurn is the state of a turn stopped before a write, kept until
// the user confirms or declines it.
type parkedTurn struct {
	action core.PendingAction
	call   llm.ToolCall

	system  string
	history []llm.Message
	before  []llm.ToolResult
	after   []llm.ToolResult

	texts        []string
	observations []string
	toolsUsed    []core.ToolExecution
	memories     []memory.Result
	iterations   int
	usage        llm.Usage
	wrote        bool
}

// parkedTurns holds at most one parked turn per thread.
type parkedTurns struct {
	mu    sync.Mutex
	turns map[string]*parkedTurn
}

func newParkedTurns() *parkedTurns {
	return &parkedTurns{turns: make(map[string]*parkedTurn)}
}

func (p *parkedTurns) put(threadID string, pt *parkedTurn) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.turns[threadID] = pt
}

func (p *parkedTurns) take(threadID string) *parkedTurn {
	p.mu.Lock()
	defer p.mu.Unlock()
	pt := p.turns[threadID]
	delete(p.turns, threadID)
	return pt
}

func (p *parkedTurns) get(threadID string) *parkedTurn {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.turns[threadID]
}

// Pending returns the action waiting for confirmation on a thread.
func (e *Engine) Pending(threadID string) (*core.PendingAction, bool) {
	pt := e.parked.get(threadID)
	if pt == nil || pt.action.Expired(e.now()) {
		return nil, false
	}
	action := pt.action
	return &action, true
}

// needsConfirmation reports whether a call is a write that must wait
// for the user. Calls that would fail anyway are left to execute.
func (t *turn) needsConfirmation(call llm.ToolCall) bool {
	if !t.e.cfg.ConfirmWrites {
		return false
	}
	tool, ok := t.e.registry.Get(call.Name)
	if !ok || !tool.Writes() {
		return false
	}
	thought, err := callThought(call)
	return err == nil && thought != ""
}

// park stores the turn so Confirm can resume it at call. Calls after it
// in the same round are answered as deferred.
func (t *turn) park(call llm.ToolCall, before []llm.ToolResult, rest []llm.ToolCall) {
	e := t.e
	now := e.now()
	thought, _ := callThought(call)

	after := make([]llm.ToolResult, 0, len(rest))
	for _, c := range rest {
		after = append(after, llm.ToolResult{CallID: c.ID, Content: deferredText, IsError: true})
	}

	action := core.PendingAction{
		ID:        uuid.New().String(),
		ThreadID:  t.in.ThreadID,
		Tool:      call.Name,
		Input:     call.Input,
		Thought:   thought,
		Summary:   core.SummarizeCall(call.Name, call.Input),
		CreatedAt: now,
		ExpiresAt: now.Add(e.cfg.ConfirmationTTL),
	}
	e.parked.put(t.in.ThreadID, &parkedTurn{
		action:       action,
		call:         call,
		system:       t.system,
		history:      t.history,
		before:       before,
		after:        after,
		texts:        t.texts,
		observations: t.observations,
		toolsUsed:    t.out.ToolsUsed,
		memories:     t.out.Memories,
		iterations:   t.out.Iterations,
		usage:        t.out.TokensUsed,
		wrote:        t.wrote,
	})

	t.out.Type = OutputConfirmationNeeded
	t.out.PendingAction = &action
	t.out.Text = confirmationPrompt(t.texts, &action)
	t.log.Info("write held for confirmation", "action_id", action.ID, "tool", call.Name)
}

func confirmationPrompt(texts []string, action *core.PendingAction) string {
	var b strings.Builder
	for _, text := range texts {
		b.WriteString(text)
		b.WriteString("\n\n")
	}
	fmt.Fprintf(&b, "I'd like to run %s.", action.Summary)
	if action.Thought != "" {
		fmt.Fprintf(&b, "\nReason: %s", action.Thought)
	}
	b.WriteString("\nPlease confirm or decline.")
	return b.String()
}

// ConfirmInput answers a pending action.
type ConfirmInput struct {
	ThreadID string
	ActionID string
	Approve  bool

	StreamCallback func(chunk string, done bool)
}

// Confirm resumes the turn parked on a thread. An approved action runs
// and the model continues with its result; a declined one is reported
// to the model as declined. Unknown or expired actions are a
// NotFoundError.
func (e *Engine) Confirm(ctx context.Context, in *ConfirmInput) (*Output, error) {
	if in == nil || strings.TrimSpace(in.ThreadID) == "" {
		return nil, &core.ValidationError{Field: "thread_id", Constraint: "required"}
	}
	if strings.TrimSpace(in.ActionID) == "" {
		return nil, &core.ValidationError{Field: "action_id", Constraint: "required"}
	}

	start := e.now()
	release, err := e.locks.acquire(ctx, in.ThreadID)
	if err != nil {
		return nil, fmt.Errorf("wait for thread %s: %w", in.ThreadID, err)
	}
	defer release()

	pt := e.parked.get(in.ThreadID)
	if pt == nil || pt.action.ID != in.ActionID {
		return nil, &core.NotFoundError{Kind: "pending_action", ID: in.ActionID}
	}
	e.parked.take(in.ThreadID)
	if pt.action.Expired(start) {
		e.logger.Info("pending action expired", "thread_id", in.ThreadID, "action_id", in.ActionID)
		return nil, &core.NotFoundError{Kind: "pending_action", ID: in.ActionID}
	}

	verb := "declined"
	if in.Approve {
		verb = "approved"
	}
	requestID := uuid.New().String()
	log := e.logger.With("thread_id", in.ThreadID, "request_id", requestID, "action_id", in.ActionID)
	log.Info("pending action answered", "tool", pt.action.Tool, "approved", in.Approve)

	t := &turn{
		e:            e,
		in:           &Input{ThreadID: in.ThreadID, Message: fmt.Sprintf("(%s: %s)", verb, pt.action.Summary), StreamCallback: in.StreamCallback},
		log:          log,
		requestID:    requestID,
		started:      start,
		state:        StateIdle,
		system:       pt.system,
		history:      pt.history,
		texts:        pt.texts,
		observations: pt.observations,
		wrote:        pt.wrote,
		out: &Output{
			Type:       OutputComplete,
			ThreadID:   in.ThreadID,
			RequestID:  requestID,
			ToolsUsed:  pt.toolsUsed,
			Memories:   pt.memories,
			Iterations: pt.iterations,
			TokensUsed: pt.usage,
		},
	}
	t.transition(StateToolDispatch)
	var result llm.ToolResult
	if in.Approve {
		result = t.execute(ctx, pt.call)
	} else {
		result = llm.ToolResult{CallID: pt.call.ID, Content: declinedText}
		t.observations = append(t.observations, fmt.Sprintf("%s: declined by the user", pt.call.Name))
	}
	results := make([]llm.ToolResult, 0, len(pt.before)+1+len(pt.after))
	results = append(results, pt.before...)
	results = append(results, result)
	results = append(results, pt.after...)
	t.history = append(t.history, llm.Message{Role: llm.RoleUser, ToolResults: results})
	t.transition(StateGenerating)

	out := t.loop(ctx)
	if in.StreamCallback != nil {
		in.StreamCallback("", true)
	}
	e.metrics.ObserveChat(out.Type.String(), e.now().Sub(start))
	return out, nil
}
