package tools

import (
	"github.com/becomeliminal/nim-assistant/core"
	"github.com/becomeliminal/nim-assistant/memory"
	"github.com/becomeliminal/nim-assistant/priority"
	"github.com/becomeliminal/nim-assistant/store"
)

// Deps holds the services the assistant tools call into.
type Deps struct {
	Tasks    store.TaskStore
	Memory   *memory.Manager
	Priority *priority.Engine
}

// CreateTools returns every assistant tool.
func CreateTools(deps *Deps) []core.Tool {
	return []core.Tool{
		createGetTaskTool(deps),
		createListTasksTool(deps),
		createCreateTaskTool(deps),
		createUpdateTaskTool(deps),
		createRecalculatePrioritiesTool(deps),
		createNextActionTool(deps),
		createCheckAlertsTool(deps),
		createSuggestDeadlinesTool(deps),
		createRememberTool(deps),
		createSearchMemoryTool(deps),
	}
}
