package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Task is a node in the task tree
type Task struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	ParentID  *string   `json:"parent_id"`
	Order     int       `json:"order"`
	Completed bool      `json:"completed"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TaskUpdate lists the fields to change. Nil fields are left untouched. A
// ParentID pointing at "" moves the task to the root.
type TaskUpdate struct {
	Name      *string `json:"name,omitempty"`
	ParentID  *string `json:"parent_id,omitempty"`
	Order     *int    `json:"order,omitempty"`
	Completed *bool   `json:"completed,omitempty"`
}

const taskColumns = `id, name, parent_id, sort_order, completed, created_at, updated_at`

// ListTasks returns every task, siblings in their sort order
func (s *Store) ListTasks(ctx context.Context) ([]Task, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks ORDER BY sort_order ASC, created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	tasks := make([]Task, 0)
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// GetTask returns one task
func (s *Store) GetTask(ctx context.Context, id string) (Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Task{}, fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Task{}, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

// CreateTask adds a task after its last sibling. parentID "" creates a root
// task.
func (s *Store) CreateTask(ctx context.Context, name, parentID string) (Task, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Task{}, fmt.Errorf("task name is empty: %w", ErrInvalid)
	}
	if parentID != "" {
		if _, err := s.GetTask(ctx, parentID); err != nil {
			return Task{}, fmt.Errorf("parent: %w", err)
		}
	}

	var maxOrder int
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sort_order), -1) FROM tasks WHERE parent_id IS ?`,
		nullString(parentID),
	).Scan(&maxOrder)
	if err != nil {
		return Task{}, fmt.Errorf("find sibling order: %w", err)
	}

	now := time.Now().UTC()
	t := Task{
		ID:        uuid.New().String(),
		Name:      name,
		Order:     maxOrder + 1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if parentID != "" {
		t.ParentID = &parentID
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tasks (`+taskColumns+`)
		VALUES (?, ?, ?, ?, 0, ?, ?)
	`, t.ID, t.Name, nullString(parentID), t.Order, formatTime(now), formatTime(now))
	if err != nil {
		return Task{}, fmt.Errorf("create task: %w", err)
	}
	return t, nil
}

// UpdateTask applies u to the task and returns the result
func (s *Store) UpdateTask(ctx context.Context, id string, u TaskUpdate) (Task, error) {
	sets := []string{"updated_at = ?"}
	args := []interface{}{formatTime(time.Now().UTC())}

	if u.Name != nil {
		name := strings.TrimSpace(*u.Name)
		if name == "" {
			return Task{}, fmt.Errorf("task name is empty: %w", ErrInvalid)
		}
		sets = append(sets, "name = ?")
		args = append(args, name)
	}
	if u.ParentID != nil {
		if *u.ParentID == id {
			return Task{}, fmt.Errorf("task cannot be its own parent: %w", ErrInvalid)
		}
		if *u.ParentID != "" {
			if _, err := s.GetTask(ctx, *u.ParentID); err != nil {
				return Task{}, fmt.Errorf("parent: %w", err)
			}
			cycle, err := s.hasAncestor(ctx, *u.ParentID, id)
			if err != nil {
				return Task{}, err
			}
			if cycle {
				return Task{}, fmt.Errorf("task cannot move under its own subtask: %w", ErrInvalid)
			}
		}
		sets = append(sets, "parent_id = ?")
		args = append(args, nullString(*u.ParentID))
	}
	if u.Order != nil {
		sets = append(sets, "sort_order = ?")
		args = append(args, *u.Order)
	}
	if u.Completed != nil {
		sets = append(sets, "completed = ?")
		args = append(args, *u.Completed)
	}
	args = append(args, id)

	res, err := s.db.ExecContext(ctx, `UPDATE tasks SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return Task{}, fmt.Errorf("update task: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return Task{}, fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	return s.GetTask(ctx, id)
}

// hasAncestor reports whether ancestor is id itself or above it in the tree
func (s *Store) hasAncestor(ctx context.Context, id, ancestor string) (bool, error) {
	var found bool
	err := s.db.QueryRowContext(ctx, `
		WITH RECURSIVE chain(id, parent_id) AS (
			SELECT id, parent_id FROM tasks WHERE id = ?
			UNION
			SELECT t.id, t.parent_id FROM tasks t JOIN chain c ON t.id = c.parent_id
		)
		SELECT EXISTS(SELECT 1 FROM chain WHERE id = ?)
	`, id, ancestor).Scan(&found)
	if err != nil {
		return false, fmt.Errorf("walk task ancestors: %w", err)
	}
	return found, nil
}

// DeleteTask removes a task with its subtasks and windows
func (s *Store) DeleteTask(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	return nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanTask(row scanner) (Task, error) {
	var (
		t                Task
		parent           sql.NullString
		created, updated string
	)
	if err := row.Scan(&t.ID, &t.Name, &parent, &t.Order, &t.Completed, &created, &updated); err != nil {
		return Task{}, err
	}
	if parent.Valid {
		p := parent.String
		t.ParentID = &p
	}
	t.CreatedAt = parseTime(created)
	t.UpdatedAt = parseTime(updated)
	return t, nil
}

func formatTime(t time.Time) string {
	return t.Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
