package memory

import (
	"context"
	"fmt"
	"strings"
)

// Retrieve searches with the prompt-grounding limits. It returns the raw
// results for the caller to format or record.
func (m *Manager) Retrieve(ctx context.Context, query string) ([]Result, error) {
	minSim := m.config.PromptMinSimilarity
	return m.Search(ctx, query, SearchOptions{
		Limit:         m.config.PromptLimit,
		MinSimilarity: &minSim,
	})
}

// FormatResults renders results as a block for the system prompt,
// sharing maxChars across the entries.
func FormatResults(results []Result, maxChars int) string {
	if len(results) == 0 {
		return ""
	}
	if maxChars <= 0 {
		maxChars = 2000
	}

	perMemory := maxChars / len(results)
	if perMemory < 100 {
		perMemory = 100
	}

	var parts []string
	parts = append(parts, "=== RELEVANT MEMORIES ===")
	for i, r := range results {
		line := fmt.Sprintf("%d. [%s] %s", i+1, r.Type, truncate(r.Content, perMemory))
		if r.EntityID != "" {
			line += fmt.Sprintf(" (about %s)", r.EntityID)
		}
		parts = append(parts, line)
	}
	return strings.Join(parts, "\n")
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
