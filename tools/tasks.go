package tools

import (
	"context"
	"sort"
	"strings"

	"github.com/becomeliminal/nim-assistant/core"
	"github.com/becomeliminal/nim-assistant/store"
)

func createGetTaskTool(deps *Deps) core.Tool {
	return New("get_task").
		Description("Look up a single task by id, including its status, due date, priority score and cached recommendations.").
		Schema(BuildSchemaWithThought(Schema{
			"task_id": StringProperty("The task id"),
		}, false, "task_id")).
		Handler(func(ctx context.Context, params *core.ToolParams) (*core.ToolResult, error) {
			var in struct {
				core.BaseInput
				TaskID string `json:"task_id"`
			}
			if err := decode(params, &in); err != nil {
				return fail(err)
			}
			if in.TaskID == "" {
				return fail(&core.ValidationError{Field: "task_id", Constraint: "required"})
			}
			t, err := deps.Tasks.GetTask(ctx, in.TaskID)
			if err != nil {
				return fail(err)
			}
			return ok(t)
		})
}

func createListTasksTool(deps *Deps) core.Tool {
	return New("list_tasks").
		Description("List tasks, highest priority first. Optionally filter by status or to tasks without a due date.").
		Schema(BuildSchemaWithThought(Schema{
			"status":      TaskStatusProperty("Optional: only tasks with this status"),
			"without_due": BooleanProperty("Optional: only tasks that have no due date"),
			"limit":       IntegerProperty("Maximum tasks to return (default: 20)"),
		}, false)).
		Handler(func(ctx context.Context, params *core.ToolParams) (*core.ToolResult, error) {
			var in struct {
				core.BaseInput
				Status     string `json:"status"`
				WithoutDue bool   `json:"without_due"`
				Limit      int    `json:"limit"`
			}
			if err := decode(params, &in); err != nil {
				return fail(err)
			}
			filter := store.TaskFilter{WithoutDue: in.WithoutDue}
			if in.Status != "" {
				st, err := core.ParseTaskStatus(in.Status)
				if err != nil {
					return fail(err)
				}
				filter.Statuses = []core.TaskStatus{st}
			}
			tasks, err := deps.Tasks.ListTasks(ctx, filter)
			if err != nil {
				return fail(err)
			}
			sort.SliceStable(tasks, func(i, j int) bool {
				return tasks[i].PriorityScore > tasks[j].PriorityScore
			})
			if in.Limit <= 0 {
				in.Limit = 20
			}
			if len(tasks) > in.Limit {
				tasks = tasks[:in.Limit]
			}
			return ok(map[string]interface{}{
				"tasks": tasks,
				"count": len(tasks),
			})
		})
}

func createCreateTaskTool(deps *Deps) core.Tool {
	return New("create_task").
		Description("Create a new task. Use this when the user asks you to track something they need to do.").
		Schema(BuildSchemaWithThought(Schema{
			"title":       StringProperty("Short task title"),
			"description": StringProperty("Optional: longer description"),
			"due_at":      DateProperty("Optional: due date"),
		}, true, "title")).
		Writes().
		Handler(func(ctx context.Context, params *core.ToolParams) (*core.ToolResult, error) {
			var in struct {
				core.BaseInput
				Title       string `json:"title"`
				Description string `json:"description"`
				DueAt       string `json:"due_at"`
			}
			if err := decode(params, &in); err != nil {
				return fail(err)
			}
			nt := core.NewTask{Title: strings.TrimSpace(in.Title), Description: in.Description}
			if in.DueAt != "" {
				due, err := core.ParseDue(in.DueAt)
				if err != nil {
					return fail(err)
				}
				nt.DueAt = &due
			}
			t, err := deps.Tasks.CreateTask(ctx, nt)
			if err != nil {
				return fail(err)
			}
			return ok(rescore(ctx, deps, t))
		})
}

func createUpdateTaskTool(deps *Deps) core.Tool {
	return New("update_task").
		Description("Update a task's title, description, status or due date. The priority score is recomputed automatically and cannot be set.").
		Schema(BuildSchemaWithThought(Schema{
			"task_id":     StringProperty("The task id"),
			"title":       StringProperty("Optional: new title"),
			"description": StringProperty("Optional: new description"),
			"status":      TaskStatusProperty("Optional: new status"),
			"due_at":      DateProperty("Optional: new due date"),
			"clear_due":   BooleanProperty("Optional: remove the due date"),
		}, true, "task_id")).
		Writes().
		Handler(func(ctx context.Context, params *core.ToolParams) (*core.ToolResult, error) {
			var in struct {
				core.BaseInput
				TaskID      string  `json:"task_id"`
				Title       *string `json:"title"`
				Description *string `json:"description"`
				Status      *string `json:"status"`
				DueAt       *string `json:"due_at"`
				ClearDue    bool    `json:"clear_due"`
			}
			if err := decode(params, &in); err != nil {
				return fail(err)
			}
			if in.TaskID == "" {
				return fail(&core.ValidationError{Field: "task_id", Constraint: "required"})
			}
			update := core.TaskUpdate{Title: in.Title, Description: in.Description, ClearDue: in.ClearDue}
			if in.Status != nil {
				st, err := core.ParseTaskStatus(*in.Status)
				if err != nil {
					return fail(err)
				}
				update.Status = &st
			}
			if in.DueAt != nil && *in.DueAt != "" {
				due, err := core.ParseDue(*in.DueAt)
				if err != nil {
					return fail(err)
				}
				update.DueAt = &due
			}
			if update.Empty() {
				return fail(&core.ValidationError{Field: "input", Constraint: "nothing to update"})
			}
			if err := update.Validate(); err != nil {
				return fail(err)
			}
			t, err := deps.Tasks.UpdateTask(ctx, in.TaskID, update)
			if err != nil {
				return fail(err)
			}
			return ok(rescore(ctx, deps, t))
		})
}

// rescore refreshes the score of a task that just changed. A failed
// write keeps the stored score.
func rescore(ctx context.Context, deps *Deps, t *core.Task) *core.Task {
	if deps.Priority == nil {
		return t
	}
	res, err := deps.Priority.Recompute(ctx, []*core.Task{t})
	if err != nil || len(res.Tasks) != 1 {
		return t
	}
	return res.Tasks[0]
}
