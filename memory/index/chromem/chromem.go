// Package chromem implements memory.Index on chromem-go, an embedded
// pure Go vector database.
package chromem

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	chromem "github.com/philippgille/chromem-go"

	"github.com/becomeliminal/nim-assistant/core"
	"github.com/becomeliminal/nim-assistant/memory"
)

var _ memory.Index = (*Index)(nil)

const collectionName = "memories"

// Index stores memory vectors in one chromem collection. Documents are
// keyed by the durable memory id.
type Index struct {
	db     *chromem.DB
	col    *chromem.Collection
	logger *slog.Logger
}

// Option configures an Index.
type Option func(*Index)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(i *Index) {
		i.logger = l
	}
}

// New creates an in-memory index.
func New(opts ...Option) (*Index, error) {
	return open(chromem.NewDB(), opts)
}

// NewPersistent creates an index persisted under dir.
func NewPersistent(dir string, opts ...Option) (*Index, error) {
	db, err := chromem.NewPersistentDB(dir, false)
	if err != nil {
		return nil, fmt.Errorf("open persistent db: %w", err)
	}
	return open(db, opts)
}

func open(db *chromem.DB, opts []Option) (*Index, error) {
	col, err := db.GetOrCreateCollection(
		collectionName,
		nil, // No collection metadata
		nil, // No embedding func (we provide embeddings)
	)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}
	idx := &Index{db: db, col: col, logger: slog.Default()}
	for _, opt := range opts {
		opt(idx)
	}
	idx.logger = idx.logger.With("component", "index")
	return idx, nil
}

// Add implements memory.Index.
func (i *Index) Add(ctx context.Context, entry memory.Entry) (string, error) {
	if entry.ID == "" {
		return "", fmt.Errorf("entry id is required")
	}
	doc := chromem.Document{
		ID:        entry.ID,
		Content:   entry.Content,
		Embedding: normalize(entry.Embedding),
		Metadata:  encodeMetadata(entry.Metadata),
	}
	if err := i.col.AddDocument(ctx, doc); err != nil {
		return "", fmt.Errorf("add document: %w", err)
	}
	return entry.ID, nil
}

// Query implements memory.Index.
func (i *Index) Query(ctx context.Context, embedding []float32, q memory.Query) ([]memory.Hit, error) {
	count := i.col.Count()
	if count == 0 || q.Limit <= 0 {
		return nil, nil
	}

	// chromem-go requires nResults <= collection size.
	// Retry with smaller limits if necessary.
	n := q.Limit
	if n > count {
		n = count
	}
	query := normalize(embedding)
	var results []chromem.Result
	for ; n >= 1; n /= 2 {
		var err error
		results, err = i.col.QueryEmbedding(ctx, query, n, q.Filter, nil)
		if err == nil {
			break
		}
		if !isInsufficientDocsError(err) || n == 1 {
			return nil, fmt.Errorf("chromem query: %w", err)
		}
	}

	hits := make([]memory.Hit, 0, len(results))
	for _, r := range results {
		sim := float64(r.Similarity)
		if sim < q.MinSimilarity {
			continue
		}
		hits = append(hits, memory.Hit{
			ID:         r.ID,
			Content:    r.Content,
			Similarity: sim,
			Metadata:   decodeMetadata(r.Metadata),
		})
	}
	i.logger.Debug("query", "candidates", len(results), "hits", len(hits))
	return hits, nil
}

// Count implements memory.Index.
func (i *Index) Count() int {
	return i.col.Count()
}

func encodeMetadata(md memory.Metadata) map[string]string {
	out := map[string]string{
		memory.FilterType:      string(md.Type),
		memory.FilterEntityID:  md.EntityID,
		memory.FilterSource:    md.Source,
		memory.FilterDurableID: md.DurableID,
		"created_at":           md.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if md.Importance != nil {
		out["importance"] = strconv.FormatFloat(*md.Importance, 'f', -1, 64)
	}
	return out
}

func decodeMetadata(m map[string]string) memory.Metadata {
	md := memory.Metadata{
		Type:      core.MemoryType(m[memory.FilterType]),
		EntityID:  m[memory.FilterEntityID],
		Source:    m[memory.FilterSource],
		DurableID: m[memory.FilterDurableID],
	}
	md.CreatedAt, _ = time.Parse(time.RFC3339Nano, m["created_at"])
	if v, ok := m["importance"]; ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			md.Importance = &f
		}
	}
	return md
}

// isInsufficientDocsError checks if error is due to insufficient documents.
func isInsufficientDocsError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "nResults must be") || strings.Contains(msg, "number of documents")
}

// normalize converts embedding to unit vector.
func normalize(vec []float32) []float32 {
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}
	norm = math.Sqrt(norm)
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = float32(float64(v) / norm)
	}
	return out
}
