// Package config loads nim-assistant configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/becomeliminal/nim-assistant/engine"
	"github.com/becomeliminal/nim-assistant/llm"
	"github.com/becomeliminal/nim-assistant/memory"
	"github.com/becomeliminal/nim-assistant/priority"
)

// DefaultSearchPaths returns the config file search order:
// ./config.yaml, ~/.config/nim-assistant/config.yaml,
// /etc/nim-assistant/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "nim-assistant", "config.yaml"))
	}
	return append(paths, "/etc/nim-assistant/config.yaml")
}

// FindConfig locates a config file. An explicit path must exist. With no
// explicit path it returns the first existing search path, or "" when
// none exists.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}
	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", nil
}

// Config holds all configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Anthropic  AnthropicConfig  `yaml:"anthropic"`
	Embeddings EmbeddingsConfig `yaml:"embeddings"`
	Storage    StorageConfig    `yaml:"storage"`
	Memory     MemoryConfig     `yaml:"memory"`
	Agent      AgentConfig      `yaml:"agent"`
	Priority   PriorityConfig   `yaml:"priority"`
	Jobs       JobsConfig       `yaml:"jobs"`
	Redis      RedisConfig      `yaml:"redis"`
	Log        LogConfig        `yaml:"log"`
}

// ServerConfig defines the HTTP and gRPC listeners.
type ServerConfig struct {
	Addr string `yaml:"addr"`

	// GRPCAddr serves the gRPC health service. Empty disables it.
	GRPCAddr string `yaml:"grpc_addr"`

	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// AnthropicConfig defines the generation service.
type AnthropicConfig struct {
	// APIKey falls back to ANTHROPIC_API_KEY.
	APIKey    string `yaml:"api_key"`
	Model     string `yaml:"model"`
	MaxTokens int64  `yaml:"max_tokens"`
}

// EmbeddingsConfig selects and configures the embedder.
type EmbeddingsConfig struct {
	Provider   string        `yaml:"provider"` // mock, ollama, onnx
	BaseURL    string        `yaml:"base_url"`
	Model      string        `yaml:"model"`
	Dimensions int           `yaml:"dimensions"`
	Timeout    time.Duration `yaml:"timeout"`

	// CacheSize is the number of cached vectors. Zero disables the cache.
	CacheSize int64 `yaml:"cache_size"`

	// ONNX model files, used by the onnx provider.
	ModelPath     string `yaml:"model_path"`
	TokenizerPath string `yaml:"tokenizer_path"`
	LibraryPath   string `yaml:"library_path"`
}

// StorageConfig locates the relational store and the vector index.
type StorageConfig struct {
	SQLitePath string `yaml:"sqlite_path"`

	// IndexPath is the vector index directory. Empty keeps the index in
	// memory, which suits throwaway runs only.
	IndexPath string `yaml:"index_path"`

	ThreadCacheTTL time.Duration `yaml:"thread_cache_ttl"`
}

// MemoryConfig tunes memory search.
type MemoryConfig struct {
	DefaultLimit         int           `yaml:"default_limit"`
	MaxLimit             int           `yaml:"max_limit"`
	DefaultMinSimilarity float64       `yaml:"default_min_similarity"`
	PromptLimit          int           `yaml:"prompt_limit"`
	PromptMinSimilarity  float64       `yaml:"prompt_min_similarity"`
	EmbedTimeout         time.Duration `yaml:"embed_timeout"`
	DurableTimeout       time.Duration `yaml:"durable_timeout"`
	IndexTimeout         time.Duration `yaml:"index_timeout"`
}

// AgentConfig tunes the conversation engine.
type AgentConfig struct {
	MaxToolIterations int           `yaml:"max_tool_iterations"`
	HistoryTurns      int           `yaml:"history_turns"`
	RetrievalTimeout  time.Duration `yaml:"retrieval_timeout"`
	GenerationTimeout time.Duration `yaml:"generation_timeout"`
	ToolTimeout       time.Duration `yaml:"tool_timeout"`
	SummaryPolicy     string        `yaml:"summary_policy"`

	// MessagesPerMinute limits each thread. Zero disables the limit.
	MessagesPerMinute int `yaml:"messages_per_minute"`
	MessageBurst      int `yaml:"message_burst"`

	// SystemPromptFile replaces the built-in system prompt.
	SystemPromptFile string `yaml:"system_prompt_file"`

	// ConfirmWrites holds task and memory writes until the user approves
	// them.
	ConfirmWrites   bool          `yaml:"confirm_writes"`
	ConfirmationTTL time.Duration `yaml:"confirmation_ttl"`
}

// PriorityConfig tunes scoring and alerts.
type PriorityConfig struct {
	Fanout       int                 `yaml:"fanout"`
	DeadlineHour int                 `yaml:"deadline_hour"`
	Thresholds   priority.Thresholds `yaml:"thresholds"`
}

// JobsConfig schedules background work with standard cron expressions.
// An empty expression disables that job.
type JobsConfig struct {
	AlertCron     string `yaml:"alert_cron"`
	RecomputeCron string `yaml:"recompute_cron"`
	ReconcileCron string `yaml:"reconcile_cron"`
}

// RedisConfig defines alert publishing. An empty Addr logs alerts
// instead.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Channel  string `yaml:"channel"`
}

// LogConfig defines logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text or json
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: 10 * time.Second,
		},
		Anthropic: AnthropicConfig{
			Model:     llm.DefaultModel,
			MaxTokens: llm.DefaultMaxTokens,
		},
		Embeddings: EmbeddingsConfig{
			Provider:   "ollama",
			BaseURL:    "http://localhost:11434",
			Model:      "nomic-embed-text",
			Dimensions: 768,
			Timeout:    30 * time.Second,
			CacheSize:  10000,
		},
		Storage: StorageConfig{
			SQLitePath:     "nim-assistant.db",
			IndexPath:      "nim-assistant-index",
			ThreadCacheTTL: 5 * time.Minute,
		},
		Memory: MemoryConfig{
			DefaultLimit:         memory.DefaultConfig.DefaultLimit,
			MaxLimit:             memory.DefaultConfig.MaxLimit,
			DefaultMinSimilarity: memory.DefaultConfig.DefaultMinSimilarity,
			PromptLimit:          memory.DefaultConfig.PromptLimit,
			PromptMinSimilarity:  memory.DefaultConfig.PromptMinSimilarity,
			EmbedTimeout:         memory.DefaultConfig.EmbedTimeout,
			DurableTimeout:       memory.DefaultConfig.DurableTimeout,
			IndexTimeout:         memory.DefaultConfig.IndexTimeout,
		},
		Agent: AgentConfig{
			MaxToolIterations: engine.DefaultConfig.MaxToolIterations,
			HistoryTurns:      engine.DefaultConfig.HistoryTurns,
			RetrievalTimeout:  engine.DefaultConfig.RetrievalTimeout,
			GenerationTimeout: engine.DefaultConfig.GenerationTimeout,
			ToolTimeout:       engine.DefaultConfig.ToolTimeout,
			SummaryPolicy:     string(engine.DefaultConfig.SummaryPolicy),
			MessagesPerMinute: 20,
			MessageBurst:      5,
			ConfirmationTTL:   engine.DefaultConfig.ConfirmationTTL,
		},
		Priority: PriorityConfig{
			Fanout:       priority.DefaultConfig.Fanout,
			DeadlineHour: priority.DefaultConfig.DeadlineHour,
			Thresholds:   priority.DefaultThresholds,
		},
		Jobs: JobsConfig{
			AlertCron:     "*/15 * * * *",
			RecomputeCron: "0 * * * *",
			ReconcileCron: "*/10 * * * *",
		},
		Redis: RedisConfig{
			Channel: "nim:alerts",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads the optional .env file next to path and in the working
// directory, then the YAML file at path with environment variables
// expanded. Fields absent from the file keep their defaults. An empty
// path yields the defaults.
func Load(path string) (*Config, error) {
	if err := loadEnv(path); err != nil {
		return nil, err
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if cfg.Anthropic.APIKey == "" {
		cfg.Anthropic.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	return cfg, nil
}

// loadEnv loads .env files without overriding variables already set.
func loadEnv(path string) error {
	candidates := []string{".env"}
	if path != "" {
		if dir := filepath.Dir(path); dir != "." {
			candidates = append(candidates, filepath.Join(dir, ".env"))
		}
	}
	for _, f := range candidates {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// Validate checks ranges, enumerations and cron expressions.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...interface{}) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if c.Server.Addr == "" {
		add("server.addr is required")
	}
	if c.Anthropic.MaxTokens <= 0 {
		add("anthropic.max_tokens must be positive")
	}

	switch c.Embeddings.Provider {
	case "mock", "ollama":
	case "onnx":
		if c.Embeddings.ModelPath == "" || c.Embeddings.TokenizerPath == "" {
			add("embeddings.model_path and embeddings.tokenizer_path are required for onnx")
		}
	default:
		add("embeddings.provider must be mock, ollama or onnx, got %q", c.Embeddings.Provider)
	}
	if c.Embeddings.Dimensions <= 0 {
		add("embeddings.dimensions must be positive")
	}
	if c.Embeddings.CacheSize < 0 {
		add("embeddings.cache_size must not be negative")
	}

	if c.Storage.SQLitePath == "" {
		add("storage.sqlite_path is required")
	}

	if c.Memory.DefaultLimit <= 0 || c.Memory.MaxLimit < c.Memory.DefaultLimit {
		add("memory limits must satisfy 0 < default_limit <= max_limit")
	}
	for name, v := range map[string]float64{
		"default_min_similarity": c.Memory.DefaultMinSimilarity,
		"prompt_min_similarity":  c.Memory.PromptMinSimilarity,
	} {
		if v < 0 || v > 1 {
			add("memory.%s must be within [0, 1], got %v", name, v)
		}
	}

	if c.Agent.MaxToolIterations <= 0 {
		add("agent.max_tool_iterations must be positive")
	}
	if c.Agent.ConfirmationTTL < 0 {
		add("agent.confirmation_ttl must not be negative")
	}
	if c.Agent.MessagesPerMinute < 0 || c.Agent.MessageBurst < 0 {
		add("agent rate limits must not be negative")
	}
	if _, err := memory.ParseSummaryPolicy(c.Agent.SummaryPolicy); err != nil {
		add("agent.summary_policy: %v", err)
	}

	if c.Priority.Fanout <= 0 {
		add("priority.fanout must be positive")
	}
	if c.Priority.DeadlineHour < 0 || c.Priority.DeadlineHour > 23 {
		add("priority.deadline_hour must be within 0..23")
	}
	if err := c.Priority.Thresholds.Validate(); err != nil {
		add("priority.thresholds: %v", err)
	}

	for name, expr := range map[string]string{
		"alert_cron":     c.Jobs.AlertCron,
		"recompute_cron": c.Jobs.RecomputeCron,
		"reconcile_cron": c.Jobs.ReconcileCron,
	} {
		if expr == "" {
			continue
		}
		if _, err := cron.ParseStandard(expr); err != nil {
			add("jobs.%s: %v", name, err)
		}
	}

	if c.Redis.Addr != "" && c.Redis.Channel == "" {
		add("redis.channel is required when redis.addr is set")
	}

	if _, err := ParseLogLevel(c.Log.Level); err != nil {
		add("log.level: %v", err)
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		add("log.format must be text or json, got %q", c.Log.Format)
	}

	return errors.Join(errs...)
}

// EngineConfig derives the conversation engine configuration. The system
// prompt is read from SystemPromptFile when one is set.
func (c *Config) EngineConfig() (*engine.Config, error) {
	policy, err := memory.ParseSummaryPolicy(c.Agent.SummaryPolicy)
	if err != nil {
		return nil, err
	}
	cfg := *engine.DefaultConfig
	cfg.Model = c.Anthropic.Model
	cfg.MaxTokens = c.Anthropic.MaxTokens
	cfg.MaxToolIterations = c.Agent.MaxToolIterations
	cfg.HistoryTurns = c.Agent.HistoryTurns
	cfg.RetrievalTimeout = c.Agent.RetrievalTimeout
	cfg.GenerationTimeout = c.Agent.GenerationTimeout
	cfg.ToolTimeout = c.Agent.ToolTimeout
	cfg.SummaryPolicy = policy
	cfg.ConfirmWrites = c.Agent.ConfirmWrites
	cfg.ConfirmationTTL = c.Agent.ConfirmationTTL
	if c.Agent.SystemPromptFile != "" {
		data, err := os.ReadFile(c.Agent.SystemPromptFile)
		if err != nil {
			return nil, fmt.Errorf("read system prompt: %w", err)
		}
		cfg.SystemPrompt = string(data)
	}
	return &cfg, nil
}

// MemoryConfig derives the memory manager configuration.
func (c *Config) MemoryConfig() *memory.Config {
	return &memory.Config{
		DefaultLimit:         c.Memory.DefaultLimit,
		MaxLimit:             c.Memory.MaxLimit,
		DefaultMinSimilarity: c.Memory.DefaultMinSimilarity,
		PromptLimit:          c.Memory.PromptLimit,
		PromptMinSimilarity:  c.Memory.PromptMinSimilarity,
		EmbedTimeout:         c.Memory.EmbedTimeout,
		DurableTimeout:       c.Memory.DurableTimeout,
		IndexTimeout:         c.Memory.IndexTimeout,
	}
}

// PriorityConfig derives the priority engine configuration.
func (c *Config) PriorityConfig() *priority.Config {
	return &priority.Config{
		Fanout:       c.Priority.Fanout,
		Thresholds:   c.Priority.Thresholds,
		Weights:      priority.DefaultWeights,
		DeadlineHour: c.Priority.DeadlineHour,
	}
}
