package tools

import (
	"context"

	"github.com/becomeliminal/nim-assistant/core"
)

func createRecalculatePrioritiesTool(deps *Deps) core.Tool {
	return New("recalculate_priorities").
		Description("Recompute the priority score of every task from due dates, status and linked memories.").
		Schema(BuildSchemaWithThought(Schema{}, true)).
		Writes().
		Handler(func(ctx context.Context, params *core.ToolParams) (*core.ToolResult, error) {
			res, err := deps.Priority.RecomputeAll(ctx)
			if err != nil {
				return fail(err)
			}
			return ok(map[string]interface{}{
				"updated_count": res.Updated,
				"tasks":         res.Tasks,
				"failures":      res.Failures,
			})
		})
}

func createNextActionTool(deps *Deps) core.Tool {
	return New("next_action").
		Description("Get the single task the user should work on next. Returns no recommendation when every task is done.").
		Schema(BuildSchemaWithThought(Schema{}, false)).
		Handler(func(ctx context.Context, params *core.ToolParams) (*core.ToolResult, error) {
			t, err := deps.Priority.NextAction(ctx)
			if err != nil {
				return fail(err)
			}
			if t == nil {
				return ok(map[string]interface{}{"recommendation": nil, "message": "no open tasks"})
			}
			return ok(map[string]interface{}{"recommendation": t})
		})
}

func createCheckAlertsTool(deps *Deps) core.Tool {
	return New("check_alerts").
		Description("Check for overdue and stuck tasks. Each finding carries a severity of critical, high or medium.").
		Schema(BuildSchemaWithThought(Schema{}, false)).
		Handler(func(ctx context.Context, params *core.ToolParams) (*core.ToolResult, error) {
			report, err := deps.Priority.CheckAll(ctx)
			if err != nil {
				return fail(err)
			}
			return ok(report)
		})
}

func createSuggestDeadlinesTool(deps *Deps) core.Tool {
	return New("suggest_deadlines").
		Description("Propose and set due dates for tasks that have none, based on their status, age and wording.").
		Schema(BuildSchemaWithThought(Schema{}, true)).
		Writes().
		Handler(func(ctx context.Context, params *core.ToolParams) (*core.ToolResult, error) {
			res, err := deps.Priority.SuggestDeadlines(ctx)
			if err != nil {
				return fail(err)
			}
			return ok(res)
		})
}
