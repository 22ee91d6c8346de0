package engine

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/becomeliminal/nim-assistant/core"
)

// formatObservation renders a tool outcome for logs and partial answers.
func formatObservation(tool core.Tool, result *core.ToolResult, err error) string {
	type observationFormatter interface {
		FormatObservation(result *core.ToolResult, err error) string
	}
	if f, ok := tool.(observationFormatter); ok {
		return f.FormatObservation(result, err)
	}

	if err != nil {
		return fmt.Sprintf("Error: %s", err.Error())
	}
	if result == nil {
		return "No result returned"
	}
	if !result.Success {
		return fmt.Sprintf("Failed: %s", result.Error)
	}

	switch v := result.Data.(type) {
	case map[string]interface{}:
		if msg, ok := v["message"].(string); ok {
			return msg
		}
		bytes, _ := json.Marshal(v)
		return string(bytes)
	case string:
		return v
	default:
		bytes, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("Success: %v", v)
		}
		return string(bytes)
	}
}

// toolResultContent is the text fed back to the model for one call.
func toolResultContent(result *core.ToolResult, err error) (string, bool) {
	if err != nil {
		return err.Error(), true
	}
	if result == nil {
		return "no result returned", true
	}
	if !result.Success {
		return result.Error, true
	}
	bytes, mErr := json.Marshal(result.Data)
	if mErr != nil {
		return fmt.Sprintf("unencodable result: %v", mErr), true
	}
	return string(bytes), false
}

// categorizeError maps error messages to error types.
func categorizeError(errMsg string) string {
	if errMsg == "" {
		return "unknown"
	}

	errLower := strings.ToLower(errMsg)

	switch {
	case strings.Contains(errLower, "not found"), strings.Contains(errLower, "does not exist"):
		return "not_found"
	case strings.Contains(errLower, "invalid"), strings.Contains(errLower, "must"),
		strings.Contains(errLower, "required"), strings.Contains(errLower, "unknown"):
		return "invalid_input"
	case strings.Contains(errLower, "timeout"), strings.Contains(errLower, "deadline"):
		return "timeout"
	case strings.Contains(errLower, "rate limit"), strings.Contains(errLower, "too many"):
		return "rate_limit"
	case strings.Contains(errLower, "unavailable"), strings.Contains(errLower, "connection"),
		strings.Contains(errLower, "failed"):
		return "dependency"
	default:
		return "unknown"
	}
}

// generatePrevention suggests how the model can avoid a repeat failure.
func generatePrevention(action, errorType string) string {
	preventionMap := map[string]string{
		"update_task:not_found":       "Look the task up with list_tasks before updating it",
		"get_task:not_found":          "Use list_tasks to find the correct task id",
		"update_task:invalid_input":   "Use one of the listed statuses and an RFC 3339 or YYYY-MM-DD due date",
		"remember:invalid_input":      "Remember content of at least 5 characters with a listed type",
		"search_memory:invalid_input": "Search with a non-empty query",
	}

	if prevention, ok := preventionMap[action+":"+errorType]; ok {
		return prevention
	}

	switch errorType {
	case "not_found":
		return "Verify the entity exists before referencing it"
	case "invalid_input":
		return "Validate input parameters before submission"
	case "rate_limit":
		return "Wait before retrying"
	case "timeout", "dependency":
		return "Retry later or continue without this tool"
	default:
		return "Review error message and adjust approach accordingly"
	}
}
