package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/becomeliminal/nim-assistant/core"
	"github.com/becomeliminal/nim-assistant/memory"
)

// DefaultSystemPrompt is the default system prompt for the assistant.
const DefaultSystemPrompt = `You are a personal task and relationship assistant.

GUIDELINES:
- Be concise and practical
- Ground answers in the user's tasks and saved memories
- Use tools to look up or change tasks rather than guessing
- Save durable facts and preferences with the remember tool
- Priority scores are computed for you; never invent them

REASONING PATTERN:
When using tools, include a "thought" field explaining your reasoning:
1. What you've verified (e.g., "Task t1 is open and due tomorrow")
2. Why you're taking this action (e.g., "User said they started it")
3. What you expect to happen (e.g., "Status becomes in_progress and the score rises")

For tools that change tasks or memories, the thought field is REQUIRED.

Good thought examples:
- "User finished the Miller contract. Marking task t4 done so it drops out of next actions."
- "User said Miller prefers email. Saving it as a preference linked to task t4."

Bad thought examples:
- "Updating task" (too vague, doesn't explain reasoning)
- "User asked" (doesn't verify or explain decision)

AVAILABLE ACTIONS:
- Look up, list, create and update tasks
- Recalculate priorities and recommend the next action
- Check overdue and stuck tasks
- Remember and search facts, preferences and notes`

// buildSystemPrompt appends the turn's grounding context to base.
func buildSystemPrompt(base string, now time.Time, memories []memory.Result, scratch core.Scratch, memoryChars int) string {
	var b strings.Builder
	b.WriteString(base)
	fmt.Fprintf(&b, "\n\nCurrent time: %s", now.UTC().Format(time.RFC3339))

	if block := memory.FormatResults(memories, memoryChars); block != "" {
		b.WriteString("\n\n")
		b.WriteString(block)
	}

	if len(scratch.LastToolResults) > 0 {
		b.WriteString("\n\n=== PREVIOUS TURN TOOL RESULTS ===")
		for _, ex := range scratch.LastToolResults {
			status := "ok"
			if ex.Error != "" {
				status = "failed: " + ex.Error
			}
			fmt.Fprintf(&b, "\n- %s (%s)", ex.Tool, status)
		}
	}
	return b.String()
}

// retrievalQuery combines the message with the most recent turns so
// that follow-ups like "and after that?" still find context.
func retrievalQuery(message string, recent []core.Turn) string {
	parts := make([]string, 0, len(recent)+1)
	for _, t := range recent {
		parts = append(parts, t.Text)
	}
	parts = append(parts, message)
	return strings.Join(parts, "\n")
}

const draftSystemPrompt = `You write short messages on behalf of the user about their tasks.
Write only the message itself, with no preamble or explanation.
Match the requested message type and write in the requested language.`

func draftPrompt(task *core.Task, messageType, language string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Message type: %s\n", messageType)
	fmt.Fprintf(&b, "Language: %s\n\n", language)
	fmt.Fprintf(&b, "Task: %s\n", task.Title)
	if task.Description != "" {
		fmt.Fprintf(&b, "Details: %s\n", task.Description)
	}
	fmt.Fprintf(&b, "Status: %s\n", task.Status)
	if task.DueAt != nil {
		fmt.Fprintf(&b, "Due: %s\n", task.DueAt.UTC().Format("Monday, 2 January 2006 15:04 MST"))
	}
	return b.String()
}
