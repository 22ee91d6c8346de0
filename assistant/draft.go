package assistant

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"

	"github.com/becomeliminal/nim-assistant/core"
	"github.com/becomeliminal/nim-assistant/engine"
)

// DraftRequest asks for a message about a task.
type DraftRequest struct {
	TaskID      string `json:"task_id"`
	MessageType string `json:"message_type"`
	Language    string `json:"language"`

	// Refresh regenerates even when a cached draft exists.
	Refresh bool `json:"refresh,omitempty"`

	// HTML also renders the draft from Markdown.
	HTML bool `json:"html,omitempty"`
}

// DraftResponse carries the drafted text.
type DraftResponse struct {
	Draft  string `json:"draft"`
	HTML   string `json:"html,omitempty"`
	Cached bool   `json:"cached"`
}

// DraftKey is the recommendations key a draft is cached under.
func DraftKey(messageType, language string) string {
	return fmt.Sprintf("draft:%s:%s", strings.ToLower(messageType), strings.ToLower(language))
}

// ComposeDraft drafts a message for a task and caches it on the task's
// recommendations. An unknown task is a NotFoundError.
func (s *Service) ComposeDraft(ctx context.Context, req DraftRequest) (*DraftResponse, error) {
	if strings.TrimSpace(req.TaskID) == "" {
		return nil, &core.ValidationError{Field: "task_id", Constraint: "required"}
	}
	task, err := s.tasks.GetTask(ctx, req.TaskID)
	if err != nil {
		return nil, err
	}

	messageType := strings.TrimSpace(req.MessageType)
	if messageType == "" {
		messageType = engine.DefaultMessageType
	}
	language := strings.TrimSpace(req.Language)
	if language == "" {
		language = engine.DefaultLanguage
	}
	key := DraftKey(messageType, language)

	resp := &DraftResponse{}
	if cached, ok := task.Recommendations[key]; ok && cached != "" && !req.Refresh {
		resp.Draft = cached
		resp.Cached = true
	} else {
		draft, err := s.engine.GenerateMessageDraft(ctx, task, messageType, language)
		if err != nil {
			return nil, err
		}
		resp.Draft = draft
		if err := s.tasks.SetRecommendation(ctx, task.ID, key, draft, s.now().UTC()); err != nil {
			s.logger.Warn("cache draft failed", "task_id", task.ID, "key", key, "error", err)
		}
	}

	if req.HTML {
		html, err := renderMarkdown(resp.Draft)
		if err != nil {
			s.logger.Warn("render draft failed", "task_id", task.ID, "error", err)
		} else {
			resp.HTML = html
		}
	}
	return resp, nil
}

func renderMarkdown(md string) (string, error) {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(md), &buf); err != nil {
		return "", fmt.Errorf("convert markdown: %w", err)
	}
	return buf.String(), nil
}
