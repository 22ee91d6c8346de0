package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/becomeliminal/nim-assistant/core"
	"github.com/becomeliminal/nim-assistant/metrics"
	"github.com/becomeliminal/nim-assistant/store"
)

// Manager is the hybrid memory engine.
type Manager struct {
	durable  store.MemoryStore
	index    Index
	embedder Embedder
	config   *Config
	logger   *slog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = l
	}
}

// WithMetrics records write and search outcomes.
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) {
		m.metrics = mt
	}
}

// WithClock overrides the creation timestamp source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager creates a Manager. A nil config uses DefaultConfig.
func NewManager(durable store.MemoryStore, index Index, embedder Embedder, config *Config, opts ...Option) *Manager {
	if config == nil {
		config = DefaultConfig
	}
	m := &Manager{
		durable:  durable,
		index:    index,
		embedder: embedder,
		config:   config,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With("component", "memory")
	return m
}

// Config returns the manager configuration.
func (m *Manager) Config() *Config {
	return m.config
}

// RememberOptions are the optional attributes of a new memory.
type RememberOptions struct {
	// Type defaults to general.
	Type       core.MemoryType
	Importance *float64
	EntityID   string
	Source     string
}

// RememberResult reports the outcome of each store write. Either
// identifier is empty when that write failed or was skipped.
type RememberResult struct {
	DurableID  string
	IndexID    string
	DurableErr error
	IndexErr   error
}

// Saved reports whether the memory exists in the durable store.
func (r *RememberResult) Saved() bool { return r.DurableID != "" }

// Searchable reports whether the memory was indexed.
func (r *RememberResult) Searchable() bool { return r.IndexID != "" }

// Remember validates and stores a memory. The embedding is computed
// alongside the durable write; the index write happens only after the
// durable write succeeds because its metadata references the durable id.
//
// A ValidationError is returned before any side effect. A durable failure
// is returned as a DependencyError. Embedding and index failures are
// reported in the result only.
func (m *Manager) Remember(ctx context.Context, content string, opts RememberOptions) (*RememberResult, error) {
	if opts.Type == "" {
		opts.Type = core.MemoryGeneral
	}
	if err := core.ValidateMemoryInput(content, opts.Type); err != nil {
		return nil, err
	}
	if err := core.ValidateImportance(opts.Importance); err != nil {
		return nil, err
	}
	content = strings.TrimSpace(content)

	type embedded struct {
		vec []float32
		err error
	}
	embedCtx, cancelEmbed := context.WithCancel(ctx)
	defer cancelEmbed()
	embedCh := make(chan embedded, 1)
	go func() {
		vec, err := m.embed(embedCtx, content)
		embedCh <- embedded{vec, err}
	}()

	mem := &core.Memory{
		Content:    content,
		Type:       opts.Type,
		Importance: opts.Importance,
		EntityID:   opts.EntityID,
		Source:     opts.Source,
		CreatedAt:  m.now().UTC(),
	}
	result := &RememberResult{}

	dctx, cancel := withTimeout(ctx, m.config.DurableTimeout)
	durableID, err := m.durable.InsertMemory(dctx, mem)
	cancel()
	if err != nil {
		result.DurableErr = core.NewDependencyError(core.DepStore, "insert memory", err)
		m.metrics.MemoryWrite("durable", metrics.Error)
		m.metrics.MemoryWrite("index", metrics.Skipped)
		m.logger.Error("durable write failed", "error", err)
		return result, fmt.Errorf("remember: %w", result.DurableErr)
	}
	result.DurableID = durableID
	mem.ID = durableID
	m.metrics.MemoryWrite("durable", metrics.OK)

	emb := <-embedCh
	if emb.err != nil {
		result.IndexErr = emb.err
		m.metrics.MemoryWrite("index", metrics.Skipped)
		m.logger.Warn("embedding failed, memory saved but not indexed", "durable_id", durableID, "error", emb.err)
		return result, nil
	}

	indexID, err := m.indexMemory(ctx, mem, emb.vec)
	if err != nil {
		result.IndexErr = err
		m.metrics.MemoryWrite("index", metrics.Error)
		m.logger.Warn("index write failed, memory saved but not indexed", "durable_id", durableID, "error", err)
		return result, nil
	}
	result.IndexID = indexID
	m.metrics.MemoryWrite("index", metrics.OK)

	m.logger.Debug("memory stored", "durable_id", durableID, "index_id", indexID, "type", mem.Type)
	return result, nil
}

// indexMemory writes the index entry and records the index id on the
// durable record. The entry is keyed by the durable id so re-indexing
// replaces rather than duplicates.
func (m *Manager) indexMemory(ctx context.Context, mem *core.Memory, vec []float32) (string, error) {
	ictx, cancel := withTimeout(ctx, m.config.IndexTimeout)
	defer cancel()
	indexID, err := m.index.Add(ictx, Entry{
		ID:        mem.ID,
		Content:   mem.Content,
		Embedding: vec,
		Metadata: Metadata{
			Type:       mem.Type,
			Importance: mem.Importance,
			EntityID:   mem.EntityID,
			Source:     mem.Source,
			DurableID:  mem.ID,
			CreatedAt:  mem.CreatedAt,
		},
	})
	if err != nil {
		return "", core.NewDependencyError(core.DepIndex, "add", err)
	}

	dctx, cancelDurable := withTimeout(ctx, m.config.DurableTimeout)
	defer cancelDurable()
	if err := m.durable.SetMemoryIndexID(dctx, mem.ID, indexID); err != nil {
		// The entry is searchable; a later reconcile rewrites it under the
		// same id.
		m.logger.Warn("record index id failed", "durable_id", mem.ID, "error", err)
	}
	return indexID, nil
}

// SearchOptions controls Search. Zero values select the defaults.
type SearchOptions struct {
	Limit         int
	MinSimilarity *float64
	Filter        map[string]string
}

// Result is one ranked memory.
type Result struct {
	Content    string          `json:"content"`
	Type       core.MemoryType `json:"type"`
	Similarity float64         `json:"similarity"`
	DurableID  string          `json:"durable_id"`
	IndexID    string          `json:"index_id"`
	EntityID   string          `json:"entity_id,omitempty"`
	Source     string          `json:"source,omitempty"`
	Importance *float64        `json:"importance,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Search returns indexed memories similar to query, ordered by
// descending similarity and then by most recent creation. It never reads
// the durable store.
func (m *Manager) Search(ctx context.Context, query string, opts SearchOptions) ([]Result, error) {
	if strings.TrimSpace(query) == "" {
		return nil, &core.ValidationError{Field: "query", Constraint: "must not be empty"}
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = m.config.DefaultLimit
	}
	if limit > m.config.MaxLimit {
		limit = m.config.MaxLimit
	}
	minSim := m.config.DefaultMinSimilarity
	if opts.MinSimilarity != nil {
		minSim = *opts.MinSimilarity
		if minSim < -1 || minSim > 1 {
			return nil, &core.ValidationError{Field: "min_similarity", Constraint: "must be between -1 and 1"}
		}
	}
	for k := range opts.Filter {
		if !filterKeys[k] {
			return nil, &core.ValidationError{Field: "filter", Constraint: fmt.Sprintf("unknown field %q", k)}
		}
	}

	vec, err := m.embed(ctx, query)
	if err != nil {
		m.metrics.MemorySearch(metrics.Error)
		return nil, fmt.Errorf("search: %w", err)
	}

	ictx, cancel := withTimeout(ctx, m.config.IndexTimeout)
	defer cancel()
	hits, err := m.index.Query(ictx, vec, Query{
		// Over-fetch so ties at the cut are ordered by recency.
		Limit:         limit * 2,
		MinSimilarity: minSim,
		Filter:        opts.Filter,
	})
	if err != nil {
		m.metrics.MemorySearch(metrics.Error)
		return nil, fmt.Errorf("search: %w", core.NewDependencyError(core.DepIndex, "query", err))
	}

	results := make([]Result, 0, len(hits))
	for _, h := range hits {
		if h.Similarity < minSim || !h.Metadata.Matches(opts.Filter) {
			continue
		}
		results = append(results, Result{
			Content:    h.Content,
			Type:       h.Metadata.Type,
			Similarity: h.Similarity,
			DurableID:  h.Metadata.DurableID,
			IndexID:    h.ID,
			EntityID:   h.Metadata.EntityID,
			Source:     h.Metadata.Source,
			Importance: h.Metadata.Importance,
			CreatedAt:  h.Metadata.CreatedAt,
		})
	}
	SortResults(results)
	if len(results) > limit {
		results = results[:limit]
	}

	m.metrics.MemorySearch(metrics.OK)
	m.logger.Debug("search complete", "query", truncateLog(query, 50), "results", len(results), "min_similarity", minSim)
	return results, nil
}

// SortResults orders results by descending similarity, then descending
// creation time, then index id.
func SortResults(results []Result) {
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Similarity != b.Similarity {
			return a.Similarity > b.Similarity
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.IndexID < b.IndexID
	})
}

// ReconcileResult reports a reconciliation pass.
type ReconcileResult struct {
	Indexed  int                `json:"indexed"`
	Failures []core.ItemFailure `json:"failures,omitempty"`
}

// Reconcile indexes up to limit durable memories whose index write never
// succeeded. Item failures are collected.
func (m *Manager) Reconcile(ctx context.Context, limit int) (*ReconcileResult, error) {
	pending, err := m.durable.ListUnindexedMemories(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("reconcile: %w", err)
	}
	result := &ReconcileResult{}
	for _, mem := range pending {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		vec, err := m.embed(ctx, mem.Content)
		if err == nil {
			_, err = m.indexMemory(ctx, mem, vec)
		}
		if err != nil {
			m.metrics.MemoryWrite("index", metrics.Error)
			result.Failures = append(result.Failures, core.ItemFailure{ID: mem.ID, Reason: err.Error()})
			continue
		}
		m.metrics.MemoryWrite("index", metrics.OK)
		result.Indexed++
	}
	if len(pending) > 0 {
		m.logger.Info("reconcile complete", "pending", len(pending), "indexed", result.Indexed, "failed", len(result.Failures))
	}
	return result, nil
}

func (m *Manager) embed(ctx context.Context, text string) ([]float32, error) {
	ectx, cancel := withTimeout(ctx, m.config.EmbedTimeout)
	defer cancel()
	vec, err := m.embedder.Embed(ectx, text)
	if err != nil {
		return nil, core.NewDependencyError(core.DepEmbedding, "embed", err)
	}
	return vec, nil
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// truncateLog truncates text for logging to maxLen runes.
func truncateLog(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	return string([]rune(s)[:maxLen]) + "..."
}

// Config holds Manager configuration.
type Config struct {
	// DefaultLimit is the search limit when none is given.
	DefaultLimit int

	// MaxLimit caps any requested limit.
	MaxLimit int

	// DefaultMinSimilarity applies when the caller gives none.
	DefaultMinSimilarity float64

	// PromptLimit and PromptMinSimilarity control retrieval for
	// prompt grounding. Small local models score related text lower than
	// hosted ones, so prompts use a looser floor than explicit searches.
	PromptLimit         int
	PromptMinSimilarity float64

	EmbedTimeout   time.Duration
	DurableTimeout time.Duration
	IndexTimeout   time.Duration
}

// DefaultConfig holds the defaults.
var DefaultConfig = &Config{
	DefaultLimit:         10,
	MaxLimit:             100,
	DefaultMinSimilarity: 0.7,
	PromptLimit:          5,
	PromptMinSimilarity:  0.5,
	EmbedTimeout:         10 * time.Second,
	DurableTimeout:       5 * time.Second,
	IndexTimeout:         5 * time.Second,
}
