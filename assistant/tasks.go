package assistant

import (
	"context"

	"github.com/becomeliminal/nim-assistant/core"
	"github.com/becomeliminal/nim-assistant/priority"
	"github.com/becomeliminal/nim-assistant/store"
)

// RecalculateResponse is the outcome of a bulk recompute.
type RecalculateResponse struct {
	UpdatedCount int                `json:"updated_count"`
	Tasks        []*core.Task       `json:"tasks"`
	Failures     []core.ItemFailure `json:"failures,omitempty"`
}

// RecalculatePriorities recomputes every task's score. Per-task failures
// are reported in the response.
func (s *Service) RecalculatePriorities(ctx context.Context) (*RecalculateResponse, error) {
	res, err := s.priority.RecomputeAll(ctx)
	if err != nil {
		return nil, err
	}
	if batch := res.Err(); batch != nil {
		s.logger.Warn("recompute finished with failures", "error", batch)
	}
	return &RecalculateResponse{UpdatedCount: res.Updated, Tasks: res.Tasks, Failures: res.Failures}, nil
}

// NextActionResponse holds the recommendation, nil when nothing is left.
type NextActionResponse struct {
	Recommendation *core.Task `json:"recommendation"`
}

// GetNextAction recommends the one task to do next.
func (s *Service) GetNextAction(ctx context.Context) (*NextActionResponse, error) {
	t, err := s.priority.NextAction(ctx)
	if err != nil {
		return nil, err
	}
	return &NextActionResponse{Recommendation: t}, nil
}

// SuggestDeadlinesResponse reports the deadline suggestions written.
type SuggestDeadlinesResponse struct {
	Success     bool                  `json:"success"`
	Updated     int                   `json:"updated_count"`
	Suggestions []priority.Suggestion `json:"suggestions"`
	Failures    []core.ItemFailure    `json:"failures,omitempty"`
}

// SuggestDeadlines proposes due dates for tasks without one. Success is
// false only when every attempted suggestion failed.
func (s *Service) SuggestDeadlines(ctx context.Context) (*SuggestDeadlinesResponse, error) {
	res, err := s.priority.SuggestDeadlines(ctx)
	if err != nil {
		return nil, err
	}
	return &SuggestDeadlinesResponse{
		Success:     res.Updated > 0 || len(res.Failures) == 0,
		Updated:     res.Updated,
		Suggestions: res.Suggestions,
		Failures:    res.Failures,
	}, nil
}

// AlertsResponse lists overdue and stuck tasks.
type AlertsResponse struct {
	OverdueCount int          `json:"overdue_count"`
	StuckCount   int          `json:"stuck_count"`
	OverdueTasks []core.Alert `json:"overdue_tasks"`
	StuckTasks   []core.Alert `json:"stuck_tasks"`
}

// CheckAlerts runs overdue and stuck detection.
func (s *Service) CheckAlerts(ctx context.Context) (*AlertsResponse, error) {
	report, err := s.priority.CheckAll(ctx)
	if err != nil {
		return nil, err
	}
	return &AlertsResponse{
		OverdueCount: report.OverdueCount,
		StuckCount:   report.StuckCount,
		OverdueTasks: report.Overdue,
		StuckTasks:   report.Stuck,
	}, nil
}

// CreateTask stores a new task and scores it.
func (s *Service) CreateTask(ctx context.Context, in core.NewTask) (*core.Task, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	t, err := s.tasks.CreateTask(ctx, in)
	if err != nil {
		return nil, err
	}
	return s.rescore(ctx, t), nil
}

// GetTask returns one task.
func (s *Service) GetTask(ctx context.Context, id string) (*core.Task, error) {
	return s.tasks.GetTask(ctx, id)
}

// ListTasks lists tasks matching filter.
func (s *Service) ListTasks(ctx context.Context, filter store.TaskFilter) ([]*core.Task, error) {
	tasks, err := s.tasks.ListTasks(ctx, filter)
	if err != nil {
		return nil, err
	}
	if tasks == nil {
		tasks = []*core.Task{}
	}
	return tasks, nil
}

// UpdateTask applies an update and rescores the task.
func (s *Service) UpdateTask(ctx context.Context, id string, update core.TaskUpdate) (*core.Task, error) {
	if update.Empty() {
		return nil, &core.ValidationError{Field: "update", Constraint: "nothing to update"}
	}
	if err := update.Validate(); err != nil {
		return nil, err
	}
	t, err := s.tasks.UpdateTask(ctx, id, update)
	if err != nil {
		return nil, err
	}
	return s.rescore(ctx, t), nil
}

func (s *Service) rescore(ctx context.Context, t *core.Task) *core.Task {
	res, err := s.priority.Recompute(ctx, []*core.Task{t})
	if err != nil || len(res.Tasks) != 1 {
		s.logger.Warn("rescore failed", "task_id", t.ID, "error", err)
		return t
	}
	return res.Tasks[0]
}
