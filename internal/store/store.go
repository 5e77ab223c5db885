// Package store persists tasks and the windows attached to them in SQLite.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bryanchriswhite/TaskSwitcher/internal/logger"
	_ "github.com/mattn/go-sqlite3"
)

var (
	// ErrNotFound is returned when a task or task window does not exist
	ErrNotFound = errors.New("not found")
	// ErrInvalid is returned for input that fails validation
	ErrInvalid = errors.New("invalid input")
)

const schema = `
CREATE TABLE IF NOT EXISTS tasks (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	parent_id TEXT,
	sort_order INTEGER NOT NULL DEFAULT 0,
	completed INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	FOREIGN KEY (parent_id) REFERENCES tasks(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS task_windows (
	id TEXT PRIMARY KEY,
	task_id TEXT NOT NULL,
	type TEXT NOT NULL CHECK(type IN ('app', 'chrome-tab')),
	app_name TEXT,
	window_title TEXT,
	tab_url TEXT,
	tab_title TEXT,
	FOREIGN KEY (task_id) REFERENCES tasks(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_tasks_parent_id ON tasks(parent_id);
CREATE INDEX IF NOT EXISTS idx_task_windows_task_id ON task_windows(task_id);
`

// Store is the task database
type Store struct {
	db *sql.DB
}

// Open creates or opens the database at path and brings its schema up to
// date.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=ON")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	logger.WithComponent("store").Debug().Str("path", path).Msg("Task database opened")
	return &Store{db: db}, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// runMigrations upgrades databases created before the completed flag existed.
func runMigrations(db *sql.DB) error {
	hasCompleted, err := columnExists(db, "tasks", "completed")
	if err != nil {
		return fmt.Errorf("check completed column: %w", err)
	}
	if !hasCompleted {
		if _, err := db.Exec(`ALTER TABLE tasks ADD COLUMN completed INTEGER NOT NULL DEFAULT 0`); err != nil {
			return fmt.Errorf("add completed column: %w", err)
		}
		logger.WithComponent("store").Info().Msg("Migration: added completed column to tasks")
	}
	return nil
}

func columnExists(db *sql.DB, table, column string) (bool, error) {
	rows, err := db.Query(
		fmt.Sprintf("SELECT name FROM pragma_table_info('%s') WHERE name = ?", table),
		column,
	)
	if err != nil {
		return false, err
	}
	found := rows.Next()
	rows.Close()
	if err := rows.Err(); err != nil {
		return false, err
	}
	return found, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
