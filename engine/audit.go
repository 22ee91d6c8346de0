package engine

import (
	"context"
	"encoding/json"
	"log/slog"
)

// AuditEntry records one tool execution.
type AuditEntry struct {
	ID         string          `json:"id"`
	ThreadID   string          `json:"thread_id"`
	RequestID  string          `json:"request_id"`
	ToolName   string          `json:"tool_name"`
	Thought    string          `json:"thought,omitempty"`
	ToolInput  json.RawMessage `json:"tool_input"`
	ToolOutput json.RawMessage `json:"tool_output,omitempty"`
	Error      *string         `json:"error,omitempty"`
	ErrorType  string          `json:"error_type,omitempty"`
	DurationMs int64           `json:"duration_ms"`
	IsWriteOp  bool            `json:"is_write_op"`
	Timestamp  int64           `json:"timestamp"`
}

// AuditLogger receives tool audit entries.
type AuditLogger interface {
	Log(ctx context.Context, entry *AuditEntry)
}

// SlogAudit writes audit entries to a structured logger.
type SlogAudit struct {
	logger *slog.Logger
}

// NewSlogAudit creates an audit logger on top of l.
func NewSlogAudit(l *slog.Logger) *SlogAudit {
	if l == nil {
		l = slog.Default()
	}
	return &SlogAudit{logger: l.With("component", "audit")}
}

func (a *SlogAudit) Log(ctx context.Context, e *AuditEntry) {
	attrs := []any{
		"audit_id", e.ID,
		"thread_id", e.ThreadID,
		"request_id", e.RequestID,
		"tool", e.ToolName,
		"write", e.IsWriteOp,
		"duration_ms", e.DurationMs,
	}
	if e.Error != nil {
		attrs = append(attrs, "error", *e.Error, "error_type", e.ErrorType)
		a.logger.WarnContext(ctx, "tool audit", attrs...)
		return
	}
	a.logger.InfoContext(ctx, "tool audit", attrs...)
}
