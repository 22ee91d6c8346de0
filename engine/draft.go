package engine

import (
	"context"
	"errors"
	"strings"

	"github.com/becomeliminal/nim-assistant/core"
	"github.com/becomeliminal/nim-assistant/llm"
)

// Draft defaults.
const (
	DefaultMessageType = "follow-up"
	DefaultLanguage    = "English"
)

// GenerateMessageDraft drafts a message about task in the requested
// style and language. It uses no thread state and no tools.
func (e *Engine) GenerateMessageDraft(ctx context.Context, task *core.Task, messageType, language string) (string, error) {
	if task == nil {
		return "", &core.ValidationError{Field: "task", Constraint: "required"}
	}
	messageType = strings.TrimSpace(messageType)
	if messageType == "" {
		messageType = DefaultMessageType
	}
	language = strings.TrimSpace(language)
	if language == "" {
		language = DefaultLanguage
	}

	gctx, cancel := context.WithTimeout(ctx, e.cfg.GenerationTimeout)
	defer cancel()
	resp, err := e.client.Generate(gctx, &llm.Request{
		System:    draftSystemPrompt,
		Messages:  []llm.Message{{Role: llm.RoleUser, Text: draftPrompt(task, messageType, language)}},
		Model:     e.cfg.Model,
		MaxTokens: e.cfg.MaxTokens,
	})
	if err != nil {
		e.logger.Warn("draft generation failed", "task_id", task.ID, "error", err)
		return "", core.NewDependencyError(core.DepGeneration, "draft message", err)
	}
	draft := strings.TrimSpace(resp.Text)
	if draft == "" {
		return "", core.NewDependencyError(core.DepGeneration, "draft message", errors.New("empty draft"))
	}
	e.logger.Debug("draft generated", "task_id", task.ID, "message_type", messageType, "language", language)
	return draft, nil
}
