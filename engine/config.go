package engine

import (
	"time"

	"github.com/becomeliminal/nim-assistant/llm"
	"github.com/becomeliminal/nim-assistant/memory"
)

// Config holds Engine configuration.
type Config struct {
	Model        string
	MaxTokens    int64
	SystemPrompt string

	// MaxToolIterations bounds the ToolDispatch loop per turn.
	MaxToolIterations int

	// HistoryTurns is how many stored turns are replayed to the model.
	HistoryTurns int

	// RetrievalTurns is how many recent turns join the message in the
	// memory query.
	RetrievalTurns int

	RetrievalTimeout  time.Duration
	GenerationTimeout time.Duration
	ToolTimeout       time.Duration
	PersistTimeout    time.Duration
	SummaryTimeout    time.Duration

	SummaryPolicy memory.SummaryPolicy

	// MemoryPromptChars caps the memory block in the system prompt.
	MemoryPromptChars int

	// ConfirmWrites holds write tool calls until the user approves them
	// with Engine.Confirm. ConfirmationTTL bounds how long one waits.
	ConfirmWrites   bool
	ConfirmationTTL time.Duration
}

// DefaultConfig holds the defaults.
var DefaultConfig = &Config{
	Model:             llm.DefaultModel,
	MaxTokens:         llm.DefaultMaxTokens,
	SystemPrompt:      DefaultSystemPrompt,
	MaxToolIterations: 5,
	HistoryTurns:      20,
	RetrievalTurns:    2,
	RetrievalTimeout:  3 * time.Second,
	GenerationTimeout: 60 * time.Second,
	ToolTimeout:       15 * time.Second,
	PersistTimeout:    5 * time.Second,
	SummaryTimeout:    15 * time.Second,
	SummaryPolicy:     memory.SummaryHeuristic,
	MemoryPromptChars: 2000,
	ConfirmationTTL:   10 * time.Minute,
}

// withDefaults fills zero fields from DefaultConfig.
func (c Config) withDefaults() *Config {
	d := DefaultConfig
	if c.Model == "" {
		c.Model = d.Model
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = d.MaxTokens
	}
	if c.SystemPrompt == "" {
		c.SystemPrompt = d.SystemPrompt
	}
	if c.MaxToolIterations <= 0 {
		c.MaxToolIterations = d.MaxToolIterations
	}
	if c.HistoryTurns <= 0 {
		c.HistoryTurns = d.HistoryTurns
	}
	if c.RetrievalTurns < 0 {
		c.RetrievalTurns = 0
	}
	if c.RetrievalTimeout <= 0 {
		c.RetrievalTimeout = d.RetrievalTimeout
	}
	if c.GenerationTimeout <= 0 {
		c.GenerationTimeout = d.GenerationTimeout
	}
	if c.ToolTimeout <= 0 {
		c.ToolTimeout = d.ToolTimeout
	}
	if c.PersistTimeout <= 0 {
		c.PersistTimeout = d.PersistTimeout
	}
	if c.SummaryTimeout <= 0 {
		c.SummaryTimeout = d.SummaryTimeout
	}
	if c.SummaryPolicy == "" {
		c.SummaryPolicy = d.SummaryPolicy
	}
	if c.MemoryPromptChars <= 0 {
		c.MemoryPromptChars = d.MemoryPromptChars
	}
	if c.ConfirmationTTL <= 0 {
		c.ConfirmationTTL = d.ConfirmationTTL
	}
	return &c
}
