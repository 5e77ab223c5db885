package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// WindowType says how a task window is restored
type WindowType string

const (
	// WindowTypeApp is a native application window
	WindowTypeApp WindowType = "app"
	// WindowTypeChromeTab is a browser tab reached through the relay
	WindowTypeChromeTab WindowType = "chrome-tab"
)

// TaskWindow is a window or tab attached to a task. App windows use AppName
// and WindowTitle; tabs use TabURL and TabTitle. Titles and URLs are
// substring patterns.
type TaskWindow struct {
	ID          string     `json:"id"`
	TaskID      string     `json:"task_id"`
	Type        WindowType `json:"type"`
	AppName     string     `json:"app_name,omitempty"`
	WindowTitle string     `json:"window_title,omitempty"`
	TabURL      string     `json:"tab_url,omitempty"`
	TabTitle    string     `json:"tab_title,omitempty"`
}

// Validate checks that w carries what its type needs
func (w TaskWindow) Validate() error {
	switch w.Type {
	case WindowTypeApp:
		if w.AppName == "" {
			return fmt.Errorf("app window needs an app name: %w", ErrInvalid)
		}
	case WindowTypeChromeTab:
		if w.TabURL == "" && w.TabTitle == "" {
			return fmt.Errorf("tab window needs a url or title: %w", ErrInvalid)
		}
	default:
		return fmt.Errorf("unknown window type %q: %w", w.Type, ErrInvalid)
	}
	return nil
}

const windowColumns = `id, task_id, type, app_name, window_title, tab_url, tab_title`

// GetTaskWindows returns the windows attached to a task in insertion order
func (s *Store) GetTaskWindows(ctx context.Context, taskID string) ([]TaskWindow, error) {
	return s.queryWindows(ctx, `SELECT `+windowColumns+` FROM task_windows WHERE task_id = ? ORDER BY rowid`, taskID)
}

// ListTaskWindows returns every task window
func (s *Store) ListTaskWindows(ctx context.Context) ([]TaskWindow, error) {
	return s.queryWindows(ctx, `SELECT `+windowColumns+` FROM task_windows ORDER BY rowid`)
}

// AddTaskWindow attaches w to its task and returns it with a fresh ID
func (s *Store) AddTaskWindow(ctx context.Context, w TaskWindow) (TaskWindow, error) {
	if err := w.Validate(); err != nil {
		return TaskWindow{}, err
	}
	if _, err := s.GetTask(ctx, w.TaskID); err != nil {
		return TaskWindow{}, err
	}

	w.ID = uuid.New().String()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO task_windows (`+windowColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, w.ID, w.TaskID, string(w.Type),
		nullString(w.AppName), nullString(w.WindowTitle),
		nullString(w.TabURL), nullString(w.TabTitle))
	if err != nil {
		return TaskWindow{}, fmt.Errorf("add task window: %w", err)
	}
	return w, nil
}

// RemoveTaskWindow detaches a window
func (s *Store) RemoveTaskWindow(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM task_windows WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("remove task window: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("task window %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *Store) queryWindows(ctx context.Context, query string, args ...interface{}) ([]TaskWindow, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query task windows: %w", err)
	}
	defer rows.Close()

	windows := make([]TaskWindow, 0)
	for rows.Next() {
		var (
			w                            TaskWindow
			wtype                        string
			app, title, tabURL, tabTitle sql.NullString
		)
		if err := rows.Scan(&w.ID, &w.TaskID, &wtype, &app, &title, &tabURL, &tabTitle); err != nil {
			return nil, fmt.Errorf("scan task window: %w", err)
		}
		w.Type = WindowType(wtype)
		w.AppName = app.String
		w.WindowTitle = title.String
		w.TabURL = tabURL.String
		w.TabTitle = tabTitle.String
		windows = append(windows, w)
	}
	return windows, rows.Err()
}
