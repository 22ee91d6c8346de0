package memory

import (
	"context"
	"time"

	"github.com/becomeliminal/nim-assistant/core"
)

// Embedder converts text to vector embeddings.
// Implementations: mock (testing), ollama (HTTP), onnx (local model).
type Embedder interface {
	// Embed converts a single text to embedding vector.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns embedding vector size.
	Dimensions() int
}

// Index is the vector index backend.
type Index interface {
	// Add upserts an entry and returns its index identifier.
	Add(ctx context.Context, entry Entry) (string, error)

	// Query returns up to q.Limit hits with similarity at or above
	// q.MinSimilarity whose metadata matches every filter field, highest
	// similarity first.
	Query(ctx context.Context, embedding []float32, q Query) ([]Hit, error)

	// Count returns the number of indexed entries.
	Count() int
}

// Metadata is the denormalized payload stored beside each vector.
type Metadata struct {
	Type       core.MemoryType
	Importance *float64
	EntityID   string
	Source     string
	DurableID  string
	CreatedAt  time.Time
}

// Entry is one vector with its content and metadata.
type Entry struct {
	ID        string
	Content   string
	Embedding []float32
	Metadata  Metadata
}

// Query parameters for Index.Query.
type Query struct {
	Limit         int
	MinSimilarity float64
	Filter        map[string]string
}

// Hit is one index match.
type Hit struct {
	ID         string
	Content    string
	Similarity float64
	Metadata   Metadata
}

// Filter keys accepted by Search.
const (
	FilterType      = "type"
	FilterEntityID  = "entity_id"
	FilterSource    = "source"
	FilterDurableID = "durable_id"
)

var filterKeys = map[string]bool{
	FilterType:      true,
	FilterEntityID:  true,
	FilterSource:    true,
	FilterDurableID: true,
}

// Matches reports whether md satisfies every field of filter.
func (md Metadata) Matches(filter map[string]string) bool {
	for k, v := range filter {
		var got string
		switch k {
		case FilterType:
			got = string(md.Type)
		case FilterEntityID:
			got = md.EntityID
		case FilterSource:
			got = md.Source
		case FilterDurableID:
			got = md.DurableID
		default:
			return false
		}
		if got != v {
			return false
		}
	}
	return true
}
