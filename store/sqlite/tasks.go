package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/becomeliminal/nim-assistant/core"
	"github.com/becomeliminal/nim-assistant/store"
)

const taskColumns = `id, title, description, status, due_at, priority_score, overdue,
	recommendations, created_at, updated_at, activity_at`

// CreateTask inserts a new task.
func (s *Store) CreateTask(ctx context.Context, in core.NewTask) (*core.Task, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	t := &core.Task{
		ID:          s.newID(),
		Title:       in.Title,
		Description: in.Description,
		Status:      in.Status,
		DueAt:       utcPtr(in.DueAt),
		CreatedAt:   now,
		UpdatedAt:   now,
		ActivityAt:  now,
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks (id, title, description, status, due_at, priority_score, overdue,
			recommendations, created_at, updated_at, activity_at)
		VALUES (?, ?, ?, ?, ?, 0, 0, '{}', ?, ?, ?)`,
		t.ID, t.Title, t.Description, string(t.Status), nullTime(t.DueAt),
		formatTime(now), formatTime(now), formatTime(now),
	)
	if err != nil {
		return nil, storeErr("insert task", err)
	}
	return t, nil
}

// GetTask returns one task.
func (s *Store) GetTask(ctx context.Context, id string) (*core.Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &core.NotFoundError{Kind: "task", ID: id}
	}
	if err != nil {
		return nil, storeErr("get task", err)
	}
	return t, nil
}

// ListTasks returns tasks matching filter ordered by creation.
func (s *Store) ListTasks(ctx context.Context, filter store.TaskFilter) ([]*core.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks`
	var where []string
	var args []interface{}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			placeholders[i] = "?"
			args = append(args, string(st))
		}
		where = append(where, "status IN ("+strings.Join(placeholders, ",")+")")
	}
	if filter.WithoutDue {
		where = append(where, "due_at IS NULL")
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at, id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeErr("list tasks", err)
	}
	defer rows.Close()

	var tasks []*core.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, storeErr("scan task", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list tasks", err)
	}
	return tasks, nil
}

// UpdateTask applies the user-editable fields. It never touches the
// priority score.
func (s *Store) UpdateTask(ctx context.Context, id string, update core.TaskUpdate) (*core.Task, error) {
	if err := update.Validate(); err != nil {
		return nil, err
	}
	t, err := s.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	if update.Empty() {
		return t, nil
	}

	if update.Title != nil {
		t.Title = *update.Title
	}
	if update.Description != nil {
		t.Description = *update.Description
	}
	if update.Status != nil {
		t.Status = *update.Status
	}
	dueChanged := false
	if update.DueAt != nil {
		t.DueAt = utcPtr(update.DueAt)
		dueChanged = true
	}
	if update.ClearDue {
		t.DueAt = nil
		dueChanged = true
	}
	now := s.now().UTC()
	t.UpdatedAt = now
	t.ActivityAt = now
	// A new due date or a terminal status invalidates the overdue flag;
	// the next overdue check sets it again if it still applies.
	if dueChanged || !t.Status.Active() {
		t.Overdue = false
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE tasks SET title = ?, description = ?, status = ?, due_at = ?, overdue = ?,
			updated_at = ?, activity_at = ?
		WHERE id = ?`,
		t.Title, t.Description, string(t.Status), nullTime(t.DueAt), boolInt(t.Overdue),
		formatTime(now), formatTime(now), id,
	)
	if err != nil {
		return nil, storeErr("update task", err)
	}
	return t, nil
}

// SetPriority implements store.TaskStore.
func (s *Store) SetPriority(ctx context.Context, id string, score float64, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET priority_score = ?, updated_at = ? WHERE id = ?`,
		score, formatTime(at), id)
	if err != nil {
		return storeErr("set priority", err)
	}
	return requireRow(res, "task", id)
}

// SetOverdue implements store.TaskStore. The conditional update makes
// repeated calls with the same flag a no-op.
func (s *Store) SetOverdue(ctx context.Context, id string, overdue bool, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET overdue = ?, updated_at = ? WHERE id = ? AND overdue != ?`,
		boolInt(overdue), formatTime(at), id, boolInt(overdue))
	if err != nil {
		return false, storeErr("set overdue", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, storeErr("set overdue", err)
	}
	return n > 0, nil
}

// SuggestDue implements store.TaskStore.
func (s *Store) SuggestDue(ctx context.Context, id string, due, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET due_at = ?, updated_at = ? WHERE id = ? AND due_at IS NULL`,
		formatTime(due), formatTime(at), id)
	if err != nil {
		return false, storeErr("suggest due", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, storeErr("suggest due", err)
	}
	return n > 0, nil
}

// SetRecommendation implements store.TaskStore. The key is merged into
// the stored object in one statement so concurrent writers of different
// keys do not overwrite each other.
func (s *Store) SetRecommendation(ctx context.Context, id, key, value string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET recommendations = json_set(COALESCE(NULLIF(recommendations, ''), '{}'), '$.' || json_quote(?), ?),
			updated_at = ? WHERE id = ?`,
		key, value, formatTime(at), id)
	if err != nil {
		return storeErr("set recommendation", err)
	}
	return requireRow(res, "task", id)
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanTask(row scanner) (*core.Task, error) {
	var (
		t                                core.Task
		status, recs                     string
		due                              sql.NullString
		overdue                          int
		createdAt, updatedAt, activityAt string
	)
	err := row.Scan(&t.ID, &t.Title, &t.Description, &status, &due, &t.PriorityScore, &overdue,
		&recs, &createdAt, &updatedAt, &activityAt)
	if err != nil {
		return nil, err
	}
	t.Status = core.TaskStatus(status)
	t.DueAt = parseNullTime(due)
	t.Overdue = overdue != 0
	t.CreatedAt = parseTime(createdAt)
	t.UpdatedAt = parseTime(updatedAt)
	t.ActivityAt = parseTime(activityAt)
	if recs != "" && recs != "{}" {
		if err := json.Unmarshal([]byte(recs), &t.Recommendations); err != nil {
			return nil, fmt.Errorf("decode recommendations: %w", err)
		}
	}
	return &t, nil
}

func requireRow(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return storeErr("rows affected", err)
	}
	if n == 0 {
		return &core.NotFoundError{Kind: kind, ID: id}
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
