// Package assistant is the request/response surface of the assistant:
// chat, drafts, priorities, memories and alerts.
package assistant

import (
	"context"
	"log/slog"
	"time"

	"github.com/becomeliminal/nim-assistant/core"
	"github.com/becomeliminal/nim-assistant/engine"
	"github.com/becomeliminal/nim-assistant/memory"
	"github.com/becomeliminal/nim-assistant/priority"
	"github.com/becomeliminal/nim-assistant/store"
)

// Deps are the services behind the assistant.
type Deps struct {
	Engine   *engine.Engine
	Memory   *memory.Manager
	Priority *priority.Engine
	Tasks    store.TaskStore
}

// Service implements every assistant operation.
type Service struct {
	engine   *engine.Engine
	memory   *memory.Manager
	priority *priority.Engine
	tasks    store.TaskStore
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithClock overrides the clock.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New creates a Service.
func New(deps Deps, opts ...Option) *Service {
	s := &Service{
		engine:   deps.Engine,
		memory:   deps.Memory,
		priority: deps.Priority,
		tasks:    deps.Tasks,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "assistant")
	return s
}

// ChatRequest is one inbound message.
type ChatRequest struct {
	Message  string `json:"message"`
	ThreadID string `json:"thread_id"`

	// Stream, when set, receives reply text as it is generated.
	Stream func(chunk string, done bool) `json:"-"`
}

// ChatResponse is the reply to a ChatRequest.
type ChatResponse struct {
	Response  string               `json:"response"`
	ThreadID  string               `json:"thread_id"`
	Timestamp time.Time            `json:"timestamp"`
	RequestID string               `json:"request_id"`
	Outcome   string               `json:"outcome"`
	Warnings  []string             `json:"warnings,omitempty"`
	ToolsUsed []core.ToolExecution `json:"tools_used,omitempty"`

	// PendingAction is a write waiting for Confirm.
	PendingAction *core.PendingAction `json:"pending_action,omitempty"`
}

// Chat runs one conversation turn. Failures past validation come back
// as a best-effort reply with warnings.
func (s *Service) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	out, err := s.engine.Run(ctx, &engine.Input{ThreadID: req.ThreadID, Message: req.Message, StreamCallback: req.Stream})
	if err != nil {
		return nil, err
	}
	return chatResponse(out), nil
}

// ConfirmRequest approves or declines a pending action.
type ConfirmRequest struct {
	ThreadID string `json:"thread_id"`
	ActionID string `json:"action_id"`
	Approve  bool   `json:"approve"`

	Stream func(chunk string, done bool) `json:"-"`
}

// Confirm answers the action a chat turn left pending and returns the
// continued reply.
func (s *Service) Confirm(ctx context.Context, req ConfirmRequest) (*ChatResponse, error) {
	out, err := s.engine.Confirm(ctx, &engine.ConfirmInput{
		ThreadID:       req.ThreadID,
		ActionID:       req.ActionID,
		Approve:        req.Approve,
		StreamCallback: req.Stream,
	})
	if err != nil {
		return nil, err
	}
	return chatResponse(out), nil
}

// Pending returns the action waiting for confirmation on a thread.
func (s *Service) Pending(threadID string) (*core.PendingAction, bool) {
	return s.engine.Pending(threadID)
}

func chatResponse(out *engine.Output) *ChatResponse {
	return &ChatResponse{
		Response:      out.Text,
		ThreadID:      out.ThreadID,
		Timestamp:     out.Timestamp,
		RequestID:     out.RequestID,
		Outcome:       out.Type.String(),
		Warnings:      out.Warnings,
		ToolsUsed:     out.ToolsUsed,
		PendingAction: out.PendingAction,
	}
}

// Wait blocks until background work started by chat has finished.
func (s *Service) Wait() {
	s.engine.Wait()
}
