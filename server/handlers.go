package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/becomeliminal/nim-assistant/assistant"
	"github.com/becomeliminal/nim-assistant/core"
	"github.com/becomeliminal/nim-assistant/store"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Message string `json:"message"`
	Kind    string `json:"kind"`
	Field   string `json:"field,omitempty"`
}

// statusFor maps the error taxonomy to HTTP status codes.
func statusFor(err error) (int, string) {
	var ve *core.ValidationError
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest, "validation"
	case core.IsNotFound(err):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	case core.IsDependency(err):
		return http.StatusServiceUnavailable, "dependency"
	case errors.Is(err, context.Canceled):
		return 499, "canceled"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, kind := statusFor(err)
	detail := errorDetail{Message: err.Error(), Kind: kind}
	var ve *core.ValidationError
	if errors.As(err, &ve) {
		detail.Field = ve.Field
	}
	if status >= 500 {
		s.logger.Error("request failed", "path", r.URL.Path, "error", err)
	}
	s.writeJSON(w, status, errorBody{Error: detail})
}

// decodeBody reads a JSON body into v. An empty body leaves v unchanged.
func decodeBody(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return &core.ValidationError{Field: "body", Constraint: "invalid JSON: " + err.Error()}
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.ping(r.Context()); err != nil {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "error": err.Error()})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req assistant.ChatRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.ThreadID == "" {
		req.ThreadID = newThreadID()
	}
	resp, err := s.svc.Chat(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	var req assistant.ConfirmRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	resp, err := s.svc.Confirm(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleComposeDraft(w http.ResponseWriter, r *http.Request) {
	var req assistant.DraftRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	resp, err := s.svc.ComposeDraft(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRecalculate(w http.ResponseWriter, r *http.Request) {
	resp, err := s.svc.RecalculatePriorities(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleNextAction(w http.ResponseWriter, r *http.Request) {
	resp, err := s.svc.GetNextAction(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSuggestDeadlines(w http.ResponseWriter, r *http.Request) {
	resp, err := s.svc.SuggestDeadlines(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	resp, err := s.svc.CheckAlerts(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRemember(w http.ResponseWriter, r *http.Request) {
	var req assistant.RememberRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	resp, err := s.svc.RememberMemory(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleSearchMemory(w http.ResponseWriter, r *http.Request) {
	var req assistant.SearchRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	resp, err := s.svc.SearchMemory(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.writeError(w, r, &core.ValidationError{Field: "limit", Constraint: "must be a positive integer"})
			return
		}
		limit = n
	}
	resp, err := s.svc.Reconcile(r.Context(), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

type createTaskRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Status      string `json:"status"`
	DueAt       string `json:"due_at"`
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	in := core.NewTask{Title: strings.TrimSpace(req.Title), Description: req.Description, Status: core.TaskStatus(req.Status)}
	if req.DueAt != "" {
		due, err := core.ParseDue(req.DueAt)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		in.DueAt = &due
	}
	task, err := s.svc.CreateTask(r.Context(), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, task)
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	var filter store.TaskFilter
	q := r.URL.Query()
	if raw := q.Get("status"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			st, err := core.ParseTaskStatus(strings.TrimSpace(part))
			if err != nil {
				s.writeError(w, r, err)
				return
			}
			filter.Statuses = append(filter.Statuses, st)
		}
	}
	filter.WithoutDue = q.Get("without_due") == "true"

	tasks, err := s.svc.ListTasks(r.Context(), filter)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks, "count": len(tasks)})
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	task, err := s.svc.GetTask(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, task)
}

type updateTaskRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Status      *string `json:"status"`
	DueAt       *string `json:"due_at"`
	ClearDue    bool    `json:"clear_due"`
}

func (s *Server) handleUpdateTask(w http.ResponseWriter, r *http.Request) {
	var req updateTaskRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	update := core.TaskUpdate{Title: req.Title, Description: req.Description, ClearDue: req.ClearDue}
	if req.Status != nil {
		st, err := core.ParseTaskStatus(*req.Status)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		update.Status = &st
	}
	if req.DueAt != nil {
		due, err := core.ParseDue(*req.DueAt)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		update.DueAt = &due
	}
	task, err := s.svc.UpdateTask(r.Context(), r.PathValue("id"), update)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, task)
}
