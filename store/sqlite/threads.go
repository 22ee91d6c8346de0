package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/becomeliminal/nim-assistant/core"
)

// GetThread implements store.ThreadStore.
func (s *Store) GetThread(ctx context.Context, id string) (*core.Thread, error) {
	var scratch, createdAt, updatedAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT scratch, created_at, updated_at FROM threads WHERE id = ?`, id,
	).Scan(&scratch, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &core.NotFoundError{Kind: "thread", ID: id}
	}
	if err != nil {
		return nil, storeErr("get thread", err)
	}

	th := &core.Thread{
		ID:        id,
		CreatedAt: parseTime(createdAt),
		UpdatedAt: parseTime(updatedAt),
	}
	if err := json.Unmarshal([]byte(scratch), &th.Scratch); err != nil {
		return nil, fmt.Errorf("decode scratch: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT role, text, created_at FROM turns WHERE thread_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, storeErr("list turns", err)
	}
	defer rows.Close()
	for rows.Next() {
		var role, text, ts string
		if err := rows.Scan(&role, &text, &ts); err != nil {
			return nil, storeErr("scan turn", err)
		}
		th.Turns = append(th.Turns, core.Turn{Role: core.Role(role), Text: text, Timestamp: parseTime(ts)})
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list turns", err)
	}
	return th, nil
}

// AppendTurns implements store.ThreadStore. The thread row and its new
// turns are written in one transaction so turn sequence numbers stay
// dense.
func (s *Store) AppendTurns(ctx context.Context, id string, turns []core.Turn, scratch core.Scratch) (*core.Thread, error) {
	blob, err := json.Marshal(scratch)
	if err != nil {
		return nil, fmt.Errorf("encode scratch: %w", err)
	}
	now := formatTime(s.now())

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storeErr("begin", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO threads (id, scratch, created_at, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET scratch = excluded.scratch, updated_at = excluded.updated_at`,
		id, string(blob), now, now)
	if err != nil {
		return nil, storeErr("upsert thread", err)
	}

	var next int
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) FROM turns WHERE thread_id = ?`, id,
	).Scan(&next); err != nil {
		return nil, storeErr("next turn seq", err)
	}
	for _, turn := range turns {
		next++
		ts := turn.Timestamp
		if ts.IsZero() {
			ts = s.now()
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO turns (thread_id, seq, role, text, created_at) VALUES (?, ?, ?, ?, ?)`,
			id, next, string(turn.Role), turn.Text, formatTime(ts)); err != nil {
			return nil, storeErr("insert turn", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, storeErr("commit", err)
	}
	return s.GetThread(ctx, id)
}
