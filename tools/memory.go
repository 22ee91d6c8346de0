package tools

import (
	"context"

	"github.com/becomeliminal/nim-assistant/core"
	"github.com/becomeliminal/nim-assistant/memory"
)

func createRememberTool(deps *Deps) core.Tool {
	return New("remember").
		Description("Save a durable fact, preference or note so it can be recalled in later conversations. " +
			"Link it to a task with entity_id when it is about one.").
		Schema(BuildSchemaWithThought(Schema{
			"content":    StringProperty("What to remember, at least 5 characters"),
			"type":       MemoryTypeProperty("Optional: kind of memory (default: general)"),
			"importance": RangeProperty("Optional: importance between 0 and 1", 0, 1),
			"entity_id":  StringProperty("Optional: id of the task this memory is about"),
			"source":     StringProperty("Optional: where this came from"),
		}, true, "content")).
		Writes().
		Handler(func(ctx context.Context, params *core.ToolParams) (*core.ToolResult, error) {
			var in struct {
				core.BaseInput
				Content    string   `json:"content"`
				Type       string   `json:"type"`
				Importance *float64 `json:"importance"`
				EntityID   string   `json:"entity_id"`
				Source     string   `json:"source"`
			}
			if err := decode(params, &in); err != nil {
				return fail(err)
			}
			if in.Source == "" {
				in.Source = "conversation:" + params.ThreadID
			}
			res, err := deps.Memory.Remember(ctx, in.Content, memory.RememberOptions{
				Type:       core.MemoryType(in.Type),
				Importance: in.Importance,
				EntityID:   in.EntityID,
				Source:     in.Source,
			})
			if err != nil {
				return fail(err)
			}
			data := map[string]interface{}{
				"durable_id": res.DurableID,
				"index_id":   res.IndexID,
				"searchable": res.Searchable(),
			}
			if res.IndexErr != nil {
				data["warning"] = "saved but not yet searchable"
			}
			return ok(data)
		})
}

func createSearchMemoryTool(deps *Deps) core.Tool {
	return New("search_memory").
		Description("Search saved memories by meaning. Results are ordered by similarity.").
		Schema(BuildSchemaWithThought(Schema{
			"query":          StringProperty("What to look for"),
			"limit":          IntegerProperty("Maximum results (default: 10)"),
			"min_similarity": RangeProperty("Optional: minimum similarity between 0 and 1 (default: 0.7)", 0, 1),
			"type":           MemoryTypeProperty("Optional: only memories of this type"),
			"entity_id":      StringProperty("Optional: only memories linked to this task"),
		}, false, "query")).
		Handler(func(ctx context.Context, params *core.ToolParams) (*core.ToolResult, error) {
			var in struct {
				core.BaseInput
				Query         string   `json:"query"`
				Limit         int      `json:"limit"`
				MinSimilarity *float64 `json:"min_similarity"`
				Type          string   `json:"type"`
				EntityID      string   `json:"entity_id"`
			}
			if err := decode(params, &in); err != nil {
				return fail(err)
			}
			filter := map[string]string{}
			if in.Type != "" {
				filter[memory.FilterType] = in.Type
			}
			if in.EntityID != "" {
				filter[memory.FilterEntityID] = in.EntityID
			}
			results, err := deps.Memory.Search(ctx, in.Query, memory.SearchOptions{
				Limit:         in.Limit,
				MinSimilarity: in.MinSimilarity,
				Filter:        filter,
			})
			if err != nil {
				return fail(err)
			}
			return ok(map[string]interface{}{
				"results": results,
				"count":   len(results),
			})
		})
}
