package assistant

import (
	"context"

	"github.com/becomeliminal/nim-assistant/core"
	"github.com/becomeliminal/nim-assistant/memory"
)

// RememberRequest is a new memory.
type RememberRequest struct {
	Content    string   `json:"content"`
	Type       string   `json:"type,omitempty"`
	Importance *float64 `json:"importance,omitempty"`
	EntityID   string   `json:"entity_id,omitempty"`
	Source     string   `json:"source,omitempty"`
}

// RememberResponse reports which store writes succeeded.
type RememberResponse struct {
	DurableID  string `json:"durable_id,omitempty"`
	IndexID    string `json:"index_id,omitempty"`
	Saved      bool   `json:"saved"`
	Searchable bool   `json:"searchable"`
	Warning    string `json:"warning,omitempty"`
}

// RememberMemory stores a memory. A failed durable write is returned as
// a DependencyError; a failed index write is reported as a warning.
func (s *Service) RememberMemory(ctx context.Context, req RememberRequest) (*RememberResponse, error) {
	res, err := s.memory.Remember(ctx, req.Content, memory.RememberOptions{
		Type:       core.MemoryType(req.Type),
		Importance: req.Importance,
		EntityID:   req.EntityID,
		Source:     req.Source,
	})
	if err != nil {
		return nil, err
	}
	resp := &RememberResponse{
		DurableID:  res.DurableID,
		IndexID:    res.IndexID,
		Saved:      res.Saved(),
		Searchable: res.Searchable(),
	}
	if res.IndexErr != nil {
		resp.Warning = "saved but not searchable until reconciled: " + res.IndexErr.Error()
	}
	return resp, nil
}

// SearchRequest is a semantic memory query.
type SearchRequest struct {
	Query         string            `json:"query"`
	Limit         int               `json:"limit,omitempty"`
	MinSimilarity *float64          `json:"min_similarity,omitempty"`
	Filter        map[string]string `json:"filter,omitempty"`
}

// SearchResponse lists matching memories.
type SearchResponse struct {
	Results []memory.Result `json:"results"`
	Count   int             `json:"count"`
}

// SearchMemory runs a semantic search over indexed memories.
func (s *Service) SearchMemory(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	results, err := s.memory.Search(ctx, req.Query, memory.SearchOptions{
		Limit:         req.Limit,
		MinSimilarity: req.MinSimilarity,
		Filter:        req.Filter,
	})
	if err != nil {
		return nil, err
	}
	if results == nil {
		results = []memory.Result{}
	}
	return &SearchResponse{Results: results, Count: len(results)}, nil
}

// Reconcile indexes durable memories whose index write failed.
func (s *Service) Reconcile(ctx context.Context, limit int) (*memory.ReconcileResult, error) {
	return s.memory.Reconcile(ctx, limit)
}
