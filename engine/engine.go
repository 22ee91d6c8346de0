// Package engine runs the assistant's conversation loop: retrieve
// memories, generate, dispatch tool calls, respond.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/becomeliminal/nim-assistant/core"
	"github.com/becomeliminal/nim-assistant/llm"
	"github.com/becomeliminal/nim-assistant/memory"
	"github.com/becomeliminal/nim-assistant/metrics"
	"github.com/becomeliminal/nim-assistant/store"
)

// Engine is the agent runner. Turns for the same thread run one at a
// time; different threads run in parallel.
type Engine struct {
	client     llm.Client
	registry   *ToolRegistry
	threads    store.ThreadStore
	cfg        *Config
	memory     *memory.Manager // Optional: grounding and summaries
	guardrails Guardrails      // Optional: rate limiting
	audit      AuditLogger     // Optional: tool audit trail
	logger     *slog.Logger
	metrics    *metrics.Metrics
	now        func() time.Time
	observer   func(threadID string, from, to State)

	locks      *threadLocks
	parked     *parkedTurns
	background sync.WaitGroup
}

// Option configures the engine.
type Option func(*Engine)

// WithMemory grounds turns in retrieved memories and enables summaries.
func WithMemory(m *memory.Manager) Option {
	return func(e *Engine) { e.memory = m }
}

// WithGuardrails sets the guardrails implementation for rate limiting.
func WithGuardrails(g Guardrails) Option {
	return func(e *Engine) { e.guardrails = g }
}

// WithAudit sets the audit logger implementation.
func WithAudit(a AuditLogger) Option {
	return func(e *Engine) { e.audit = a }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithMetrics records chat and tool metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithClock overrides the clock used for turn timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithStateObserver is called on every state transition.
func WithStateObserver(fn func(threadID string, from, to State)) Option {
	return func(e *Engine) { e.observer = fn }
}

// NewEngine creates an engine. cfg may be nil for the defaults.
func NewEngine(client llm.Client, registry *ToolRegistry, threads store.ThreadStore, cfg *Config, opts ...Option) *Engine {
	if cfg == nil {
		cfg = DefaultConfig
	}
	if registry == nil {
		registry = NewToolRegistry()
	}
	e := &Engine{
		client:   client,
		registry: registry,
		threads:  threads,
		cfg:      cfg.withDefaults(),
		logger:   slog.Default(),
		now:      time.Now,
		locks:    newThreadLocks(),
		parked:   newParkedTurns(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("component", "engine")
	return e
}

// Registry returns the engine's tool registry.
func (e *Engine) Registry() *ToolRegistry {
	return e.registry
}

// Config returns the effective configuration.
func (e *Engine) Config() *Config {
	return e.cfg
}

// Wait blocks until background summary writes have finished.
func (e *Engine) Wait() {
	e.background.Wait()
}

// Input is one inbound message.
type Input struct {
	ThreadID string
	Message  string

	// StreamCallback receives model text as it is generated when the
	// client supports streaming. It is called once with done set when
	// the turn ends.
	StreamCallback func(chunk string, done bool)
}

// OutputType indicates how a turn ended.
type OutputType int

const (
	// OutputComplete indicates the model produced a final answer.
	OutputComplete OutputType = iota

	// OutputPartial indicates the tool loop hit its bound.
	OutputPartial

	// OutputDegraded indicates generation failed and the text is an apology.
	OutputDegraded

	// OutputRejected indicates guardrails refused the message.
	OutputRejected

	// OutputConfirmationNeeded indicates a write waits for Confirm.
	OutputConfirmationNeeded
)

func (t OutputType) String() string {
	switch t {
	case OutputComplete:
		return "complete"
	case OutputPartial:
		return "partial"
	case OutputDegraded:
		return "degraded"
	case OutputRejected:
		return "rejected"
	case OutputConfirmationNeeded:
		return "confirmation_needed"
	default:
		return "unknown"
	}
}

// Output is the result of one turn.
type Output struct {
	Type      OutputType
	ThreadID  string
	RequestID string
	Text      string
	Timestamp time.Time

	// ToolsUsed records every tool invoked during the turn.
	ToolsUsed []core.ToolExecution

	// Memories are the memories the turn was grounded on.
	Memories []memory.Result

	// Warnings are user-facing notes about degraded steps.
	Warnings []string

	// PendingAction is set when Type is OutputConfirmationNeeded.
	PendingAction *core.PendingAction

	Iterations int
	TokensUsed llm.Usage

	// Err is the non-fatal cause behind a partial or degraded turn:
	// core.ErrLoopBoundExceeded or a DependencyError.
	Err error
}

const (
	apologyText = "Sorry, I couldn't reach the assistant service just now. Please try again in a moment."
	rejectText  = "You're sending messages faster than I can keep up. Please wait a moment and try again."

	missingThoughtText = `Error: Missing or empty "thought" field. Tools that change tasks or memories require explicit reasoning.
Please explain:
1. What you've verified (e.g., "Task t1 exists and is open")
2. Why you're taking this action (e.g., "User said they finished it")
3. What you expect to happen (e.g., "The task is marked done")`
)

// Run processes one message for a thread. Only a ValidationError or a
// cancelled wait for the thread is returned as an error; every other
// failure degrades the returned Output.
func (e *Engine) Run(ctx context.Context, in *Input) (*Output, error) {
	if in == nil || strings.TrimSpace(in.ThreadID) == "" {
		return nil, &core.ValidationError{Field: "thread_id", Constraint: "required"}
	}
	if strings.TrimSpace(in.Message) == "" {
		return nil, &core.ValidationError{Field: "message", Constraint: "must not be empty"}
	}

	start := e.now()
	requestID := uuid.New().String()
	log := e.logger.With("thread_id", in.ThreadID, "request_id", requestID)

	if e.guardrails != nil {
		result, err := e.guardrails.Check(ctx, in.ThreadID)
		if err != nil {
			log.Warn("guardrails check failed", "error", err)
		} else if !result.Allowed {
			log.Info("message rejected by guardrails", "reason", result.Warning)
			e.metrics.ObserveChat(OutputRejected.String(), e.now().Sub(start))
			return &Output{
				Type:      OutputRejected,
				ThreadID:  in.ThreadID,
				RequestID: requestID,
				Text:      rejectText,
				Timestamp: e.now(),
				Warnings:  []string{result.Warning},
			}, nil
		}
	}

	release, err := e.locks.acquire(ctx, in.ThreadID)
	if err != nil {
		return nil, fmt.Errorf("wait for thread %s: %w", in.ThreadID, err)
	}
	defer release()

	if dropped := e.parked.take(in.ThreadID); dropped != nil {
		log.Info("pending action superseded by a new message", "action_id", dropped.action.ID, "tool", dropped.action.Tool)
	}

	t := &turn{
		e:         e,
		in:        in,
		log:       log,
		requestID: requestID,
		started:   start,
		state:     StateIdle,
		out: &Output{
			Type:      OutputComplete,
			ThreadID:  in.ThreadID,
			RequestID: requestID,
		},
	}
	out := t.run(ctx)
	if in.StreamCallback != nil {
		in.StreamCallback("", true)
	}

	if e.guardrails != nil && out.Type == OutputComplete {
		e.guardrails.RecordSuccess(ctx, in.ThreadID)
	}
	e.metrics.ObserveChat(out.Type.String(), e.now().Sub(start))
	return out, nil
}

// turn is the state of one Run.
type turn struct {
	e         *Engine
	in        *Input
	log       *slog.Logger
	requestID string
	started   time.Time

	state   State
	thread  *core.Thread
	system  string
	history []llm.Message
	pending []llm.ToolCall

	observations []string
	texts        []string
	wrote        bool

	out *Output
}

func (t *turn) run(ctx context.Context) *Output {
	t.transition(StateRetrieving)
	return t.loop(ctx)
}

// loop drives the machine from the current state until the turn ends.
func (t *turn) loop(ctx context.Context) *Output {
	for {
		switch t.state {
		case StateRetrieving:
			t.retrieve(ctx)
			t.transition(StateGenerating)
		case StateGenerating:
			t.transition(t.generate(ctx))
		case StateToolDispatch:
			if t.dispatch(ctx) {
				t.transition(StateResponding)
			} else {
				t.transition(StateGenerating)
			}
		case StateResponding:
			t.respond(ctx)
			t.transition(StateIdle)
			return t.out
		default:
			panic(fmt.Sprintf("engine: unexpected state %s", t.state))
		}
	}
}

func (t *turn) transition(to State) {
	if !t.state.CanTransition(to) {
		panic(fmt.Sprintf("engine: illegal transition %s -> %s", t.state, to))
	}
	from := t.state
	t.state = to
	t.log.Debug("state transition", "from", from.String(), "to", to.String())
	if t.e.observer != nil {
		t.e.observer(t.in.ThreadID, from, to)
	}
}

// retrieve loads the thread and grounds the turn in relevant memories.
// Failures degrade to an empty thread or an empty memory set.
func (t *turn) retrieve(ctx context.Context) {
	e := t.e
	thread, err := e.threads.GetThread(ctx, t.in.ThreadID)
	switch {
	case err == nil:
	case core.IsNotFound(err):
		thread = &core.Thread{ID: t.in.ThreadID}
	default:
		t.log.Warn("thread load failed, continuing without history", "error", err)
		t.out.Warnings = append(t.out.Warnings, "conversation history unavailable")
		thread = &core.Thread{ID: t.in.ThreadID}
	}
	t.thread = thread

	var memories []memory.Result
	if e.memory != nil {
		rctx, cancel := context.WithTimeout(ctx, e.cfg.RetrievalTimeout)
		query := retrievalQuery(t.in.Message, thread.Recent(e.cfg.RetrievalTurns))
		memories, err = e.memory.Retrieve(rctx, query)
		cancel()
		if err != nil {
			t.log.Warn("memory retrieval failed, continuing without memories", "error", err)
			memories = nil
		}
	}
	t.out.Memories = memories

	t.system = buildSystemPrompt(e.cfg.SystemPrompt, e.now(), memories, thread.Scratch, e.cfg.MemoryPromptChars)
	t.history = appendMessage(historyMessages(thread.Recent(e.cfg.HistoryTurns)), llm.RoleUser, t.in.Message)
}

// generate calls the model and picks the next state.
func (t *turn) generate(ctx context.Context) State {
	e := t.e
	gctx, cancel := context.WithTimeout(ctx, e.cfg.GenerationTimeout)
	resp, err := e.createMessage(gctx, &llm.Request{
		System:    t.system,
		Messages:  t.history,
		Tools:     e.registry.Specs(),
		Model:     e.cfg.Model,
		MaxTokens: e.cfg.MaxTokens,
	}, t.in.StreamCallback)
	cancel()
	if err != nil {
		dep := core.NewDependencyError(core.DepGeneration, "generate", err)
		t.log.Warn("generation failed", "iteration", t.out.Iterations, "error", err)
		t.out.Type = OutputDegraded
		t.out.Err = dep
		t.out.Text = apologyText
		t.out.Warnings = append(t.out.Warnings, "generation service unavailable")
		return StateResponding
	}

	t.out.TokensUsed.InputTokens += resp.Usage.InputTokens
	t.out.TokensUsed.OutputTokens += resp.Usage.OutputTokens

	if len(resp.ToolCalls) == 0 {
		t.out.Text = strings.TrimSpace(resp.Text)
		return StateResponding
	}

	if text := strings.TrimSpace(resp.Text); text != "" {
		t.texts = append(t.texts, text)
	}
	if t.out.Iterations >= e.cfg.MaxToolIterations {
		t.log.Warn("tool iteration limit reached", "limit", e.cfg.MaxToolIterations)
		t.out.Type = OutputPartial
		t.out.Err = core.ErrLoopBoundExceeded
		t.out.Text = partialAnswer(t.texts, t.observations)
		t.out.Warnings = append(t.out.Warnings,
			fmt.Sprintf("stopped after %d tool rounds; the answer may be incomplete", e.cfg.MaxToolIterations))
		return StateResponding
	}

	t.pending = resp.ToolCalls
	t.history = append(t.history, llm.Message{
		Role:      llm.RoleAssistant,
		Text:      resp.Text,
		ToolCalls: resp.ToolCalls,
	})
	return StateToolDispatch
}

// createMessage generates through the streaming path when the turn
// has a callback and the client can stream.
func (e *Engine) createMessage(ctx context.Context, req *llm.Request, callback func(string, bool)) (*llm.Response, error) {
	if s, ok := e.client.(llm.Streamer); ok && callback != nil {
		return s.GenerateStream(ctx, req, func(chunk string) { callback(chunk, false) })
	}
	return e.client.Generate(ctx, req)
}

// dispatch runs the pending tool calls in order and appends their
// results for the next generation. It reports true when a write was
// parked for confirmation, which ends the turn.
func (t *turn) dispatch(ctx context.Context) bool {
	t.out.Iterations++
	results := make([]llm.ToolResult, 0, len(t.pending))
	for i, call := range t.pending {
		if t.needsConfirmation(call) {
			t.park(call, results, t.pending[i+1:])
			t.pending = nil
			return true
		}
		results = append(results, t.execute(ctx, call))
	}
	t.pending = nil
	t.history = append(t.history, llm.Message{Role: llm.RoleUser, ToolResults: results})
	return false
}

// callThought extracts the trimmed thought field of a tool call.
func callThought(call llm.ToolCall) (string, error) {
	var base core.BaseInput
	if len(call.Input) > 0 {
		if err := json.Unmarshal(call.Input, &base); err != nil {
			return "", err
		}
	}
	return strings.TrimSpace(base.Thought), nil
}

func (t *turn) execute(ctx context.Context, call llm.ToolCall) llm.ToolResult {
	e := t.e

	thought, err := callThought(call)
	if err != nil {
		return llm.ToolResult{CallID: call.ID, Content: fmt.Sprintf("invalid tool input JSON: %s", err), IsError: true}
	}

	tool, ok := e.registry.Get(call.Name)
	if !ok {
		e.metrics.ToolCall(call.Name, metrics.Error)
		return llm.ToolResult{CallID: call.ID, Content: fmt.Sprintf("unknown tool: %s", call.Name), IsError: true}
	}

	if tool.Writes() && thought == "" {
		e.metrics.ToolCall(call.Name, metrics.Skipped)
		return llm.ToolResult{CallID: call.ID, Content: missingThoughtText, IsError: true}
	}

	tctx, cancel := context.WithTimeout(ctx, e.cfg.ToolTimeout)
	startTime := e.now()
	result, err := tool.Execute(tctx, &core.ToolParams{
		ThreadID:  t.in.ThreadID,
		RequestID: t.requestID,
		Input:     call.Input,
	})
	cancel()
	durationMs := e.now().Sub(startTime).Milliseconds()

	var input interface{}
	_ = json.Unmarshal(call.Input, &input)
	execution := core.ToolExecution{Tool: call.Name, Input: input, DurationMs: durationMs}

	success := err == nil && result != nil && result.Success
	observation := formatObservation(tool, result, err)
	t.observations = append(t.observations, fmt.Sprintf("%s: %s", call.Name, observation))

	var errMsg string
	switch {
	case err != nil:
		errMsg = err.Error()
	case result == nil:
		errMsg = "no result returned"
	case !result.Success:
		errMsg = result.Error
	}

	entry := &AuditEntry{
		ID:         uuid.New().String(),
		ThreadID:   t.in.ThreadID,
		RequestID:  t.requestID,
		ToolName:   call.Name,
		Thought:    thought,
		ToolInput:  call.Input,
		DurationMs: durationMs,
		IsWriteOp:  tool.Writes(),
		Timestamp:  startTime.Unix(),
	}

	if success {
		execution.Result = result.Data
		entry.ToolOutput, _ = json.Marshal(result.Data)
		if tool.Writes() {
			t.wrote = true
		}
		e.metrics.ToolCall(call.Name, metrics.OK)
	} else {
		execution.Error = errMsg
		errorType := categorizeError(errMsg)
		entry.Error = &errMsg
		entry.ErrorType = errorType
		e.metrics.ToolCall(call.Name, metrics.Error)
		t.log.Info("tool failed", "tool", call.Name, "error_type", errorType,
			"prevention", generatePrevention(call.Name, errorType), "error", errMsg)
	}
	if e.audit != nil {
		e.audit.Log(ctx, entry)
	}
	t.out.ToolsUsed = append(t.out.ToolsUsed, execution)

	content, isErr := toolResultContent(result, err)
	return llm.ToolResult{CallID: call.ID, Content: content, IsError: isErr}
}

// respond persists the exchange and schedules the summary memory.
func (t *turn) respond(ctx context.Context) {
	e := t.e
	now := e.now()
	t.out.Timestamp = now
	if t.out.Text == "" {
		t.out.Text = partialAnswer(t.texts, t.observations)
	}

	scratch := core.Scratch{
		LastToolResults: t.out.ToolsUsed,
		Values:          map[string]string{"last_request_id": t.requestID},
	}
	for _, m := range t.out.Memories {
		scratch.LastMemories = append(scratch.LastMemories, m.Content)
	}

	turns := []core.Turn{
		{Role: core.RoleUser, Text: t.in.Message, Timestamp: t.started},
		{Role: core.RoleAssistant, Text: t.out.Text, Timestamp: now},
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.PersistTimeout)
	defer cancel()
	if _, err := e.threads.AppendTurns(pctx, t.in.ThreadID, turns, scratch); err != nil {
		t.log.Warn("persist turns failed", "error", err)
		t.out.Warnings = append(t.out.Warnings, "this exchange could not be saved")
	}

	if t.out.Type != OutputDegraded && t.out.Type != OutputConfirmationNeeded {
		e.summarize(t.in.ThreadID, memory.Exchange{User: t.in.Message, Assistant: t.out.Text, Wrote: t.wrote})
	}
	t.log.Info("turn complete", "outcome", t.out.Type.String(), "iterations", t.out.Iterations,
		"tools", len(t.out.ToolsUsed), "memories", len(t.out.Memories),
		"elapsed_ms", now.Sub(t.started).Milliseconds())
}

// summarize writes a conversation memory in the background. It never
// delays the reply.
func (e *Engine) summarize(threadID string, ex memory.Exchange) {
	if e.memory == nil || !memory.ShouldSummarize(e.cfg.SummaryPolicy, ex) {
		return
	}
	e.background.Add(1)
	go func() {
		defer e.background.Done()
		ctx, cancel := context.WithTimeout(context.Background(), e.cfg.SummaryTimeout)
		defer cancel()

		importance := memory.SummaryImportance(ex)
		res, err := e.memory.Remember(ctx, memory.Summarize(ex), memory.RememberOptions{
			Type:       core.MemoryConversation,
			Importance: &importance,
			Source:     "thread:" + threadID,
		})
		if err != nil {
			e.logger.Warn("summary memory failed", "thread_id", threadID, "error", err)
			return
		}
		e.logger.Debug("summary memory written", "thread_id", threadID,
			"durable_id", res.DurableID, "searchable", res.Searchable())
	}()
}

// historyMessages converts stored turns to model messages. The replay
// starts at a user turn and merges consecutive turns of one role.
func historyMessages(turns []core.Turn) []llm.Message {
	var msgs []llm.Message
	for _, tn := range turns {
		role := llm.RoleUser
		if tn.Role == core.RoleAssistant {
			role = llm.RoleAssistant
		}
		if len(msgs) == 0 && role == llm.RoleAssistant {
			continue
		}
		msgs = appendMessage(msgs, role, tn.Text)
	}
	return msgs
}

func appendMessage(msgs []llm.Message, role llm.Role, text string) []llm.Message {
	if n := len(msgs); n > 0 && msgs[n-1].Role == role && len(msgs[n-1].ToolCalls) == 0 && len(msgs[n-1].ToolResults) == 0 {
		msgs[n-1].Text += "\n\n" + text
		return msgs
	}
	return append(msgs, llm.Message{Role: role, Text: text})
}

func partialAnswer(texts, observations []string) string {
	var b strings.Builder
	b.WriteString("I didn't get to a complete answer, but here is what I found so far.")
	for _, text := range texts {
		b.WriteString("\n\n")
		b.WriteString(text)
	}
	if len(observations) > 0 {
		b.WriteString("\n")
		for _, o := range observations {
			b.WriteString("\n- ")
			b.WriteString(o)
		}
	}
	return b.String()
}

// IsLoopBound reports whether out ended on the tool iteration limit.
func (out *Output) IsLoopBound() bool {
	return errors.Is(out.Err, core.ErrLoopBoundExceeded)
}
