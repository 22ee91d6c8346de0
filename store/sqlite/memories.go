package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/becomeliminal/nim-assistant/core"
)

// InsertMemory implements store.MemoryStore. An empty mem.ID is
// assigned; CreatedAt defaults to now.
func (s *Store) InsertMemory(ctx context.Context, mem *core.Memory) (string, error) {
	id := mem.ID
	if id == "" {
		id = s.newID()
	}
	created := mem.CreatedAt
	if created.IsZero() {
		created = s.now()
	}
	var importance sql.NullFloat64
	if mem.Importance != nil {
		importance = sql.NullFloat64{Float64: *mem.Importance, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO memories (id, content, type, importance, entity_id, source, index_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, mem.Content, string(mem.Type), importance, mem.EntityID, mem.Source, mem.IndexID,
		formatTime(created),
	)
	if err != nil {
		return "", storeErr("insert memory", err)
	}
	return id, nil
}

// GetMemory implements store.MemoryStore.
func (s *Store) GetMemory(ctx context.Context, id string) (*core.Memory, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, content, type, importance, entity_id, source, index_id, created_at
		FROM memories WHERE id = ?`, id)
	m, err := scanMemory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &core.NotFoundError{Kind: "memory", ID: id}
	}
	if err != nil {
		return nil, storeErr("get memory", err)
	}
	return m, nil
}

// SetMemoryIndexID implements store.MemoryStore.
func (s *Store) SetMemoryIndexID(ctx context.Context, id, indexID string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE memories SET index_id = ? WHERE id = ?`, indexID, id)
	if err != nil {
		return storeErr("set memory index id", err)
	}
	return requireRow(res, "memory", id)
}

// ListUnindexedMemories implements store.MemoryStore.
func (s *Store) ListUnindexedMemories(ctx context.Context, limit int) ([]*core.Memory, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, content, type, importance, entity_id, source, index_id, created_at
		FROM memories WHERE index_id = '' ORDER BY created_at, id LIMIT ?`, limit)
	if err != nil {
		return nil, storeErr("list unindexed memories", err)
	}
	defer rows.Close()

	var out []*core.Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, storeErr("scan memory", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list unindexed memories", err)
	}
	return out, nil
}

// MaxImportanceByEntity implements store.MemoryStore.
func (s *Store) MaxImportanceByEntity(ctx context.Context, entityIDs []string) (map[string]float64, error) {
	out := make(map[string]float64)
	if len(entityIDs) == 0 {
		return out, nil
	}
	placeholders := make([]string, len(entityIDs))
	args := make([]interface{}, len(entityIDs))
	for i, id := range entityIDs {
		placeholders[i] = "?"
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT entity_id, MAX(importance) FROM memories
		WHERE importance IS NOT NULL AND entity_id IN (`+strings.Join(placeholders, ",")+`)
		GROUP BY entity_id`, args...)
	if err != nil {
		return nil, storeErr("max importance", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var importance float64
		if err := rows.Scan(&id, &importance); err != nil {
			return nil, storeErr("scan importance", err)
		}
		out[id] = importance
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("max importance", err)
	}
	return out, nil
}

func scanMemory(row scanner) (*core.Memory, error) {
	var (
		m          core.Memory
		typ        string
		importance sql.NullFloat64
		createdAt  string
	)
	if err := row.Scan(&m.ID, &m.Content, &typ, &importance, &m.EntityID, &m.Source, &m.IndexID, &createdAt); err != nil {
		return nil, err
	}
	m.Type = core.MemoryType(typ)
	if importance.Valid {
		v := importance.Float64
		m.Importance = &v
	}
	m.CreatedAt = parseTime(createdAt)
	return &m, nil
}
