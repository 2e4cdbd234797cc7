// Package sqlite provides the SQLite planner backend.
//
// SQLite is the default backend: a lightweight file-based database suited
// to a single local installation.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/recallkit/recallkit-go/pkg/planner"
)

// Client implements planner.Store using SQLite as the backend.
type Client struct {
	db *sql.DB
}

// Config contains configuration for creating a SQLite planner backend.
type Config struct {
	// DBPath is the path to the SQLite database file.
	DBPath string
}

// NewClient creates a new SQLite planner backend, creating the database
// file and its parent directory if needed.
func NewClient(cfg *Config) (*Client, error) {
	if cfg.DBPath == "" {
		return nil, planner.ErrInvalidConfig
	}

	dbDir := filepath.Dir(cfg.DBPath)
	if dbDir != "" && dbDir != "." {
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			return nil, fmt.Errorf("NewSQLiteClient: failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", cfg.DBPath+"?_foreign_keys=1&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("NewSQLiteClient: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("NewSQLiteClient: %w", err)
	}

	client := &Client{db: db}
	if err := client.initTables(context.Background()); err != nil {
		return nil, err
	}
	return client, nil
}

func (c *Client) initTables(ctx context.Context) error {
	reminderTable := `
		CREATE TABLE IF NOT EXISTS reminders (
			id INTEGER PRIMARY KEY,
			task TEXT NOT NULL,
			due_at DATETIME NOT NULL,
			done INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`
	if _, err := c.db.ExecContext(ctx, reminderTable); err != nil {
		return fmt.Errorf("initTables: %w", err)
	}

	eventTable := `
		CREATE TABLE IF NOT EXISTS events (
			id INTEGER PRIMARY KEY,
			title TEXT NOT NULL,
			location TEXT,
			starts_at DATETIME NOT NULL,
			confirmed INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`
	if _, err := c.db.ExecContext(ctx, eventTable); err != nil {
		return fmt.Errorf("initTables: %w", err)
	}

	return nil
}

// InsertReminder persists a new reminder.
func (c *Client) InsertReminder(ctx context.Context, r *planner.Reminder) error {
	query := `INSERT INTO reminders (id, task, due_at, done, created_at) VALUES (?, ?, ?, ?, ?)`
	if _, err := c.db.ExecContext(ctx, query, r.ID, r.Task, r.DueAt, r.Done, r.CreatedAt); err != nil {
		return fmt.Errorf("InsertReminder: %w", err)
	}
	return nil
}

// ListReminders returns all reminders, soonest due first.
func (c *Client) ListReminders(ctx context.Context) ([]*planner.Reminder, error) {
	query := `SELECT id, task, due_at, done, created_at FROM reminders ORDER BY due_at ASC`
	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ListReminders: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var reminders []*planner.Reminder
	for rows.Next() {
		var r planner.Reminder
		if err := rows.Scan(&r.ID, &r.Task, &r.DueAt, &r.Done, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("ListReminders: %w", err)
		}
		reminders = append(reminders, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListReminders: %w", err)
	}
	return reminders, nil
}

// CompleteReminder marks a reminder as done.
func (c *Client) CompleteReminder(ctx context.Context, id int64) error {
	result, err := c.db.ExecContext(ctx, `UPDATE reminders SET done = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("CompleteReminder: %w", err)
	}
	return checkAffected(result, "CompleteReminder")
}

// InsertEvent persists a new event.
func (c *Client) InsertEvent(ctx context.Context, e *planner.Event) error {
	query := `INSERT INTO events (id, title, location, starts_at, confirmed, created_at) VALUES (?, ?, ?, ?, ?, ?)`
	if _, err := c.db.ExecContext(ctx, query, e.ID, e.Title, e.Location, e.StartsAt, e.Confirmed, e.CreatedAt); err != nil {
		return fmt.Errorf("InsertEvent: %w", err)
	}
	return nil
}

// ConfirmEvent marks a draft event as confirmed.
func (c *Client) ConfirmEvent(ctx context.Context, id int64) error {
	result, err := c.db.ExecContext(ctx, `UPDATE events SET confirmed = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("ConfirmEvent: %w", err)
	}
	return checkAffected(result, "ConfirmEvent")
}

// ListEvents returns all events, earliest start first.
func (c *Client) ListEvents(ctx context.Context) ([]*planner.Event, error) {
	query := `SELECT id, title, location, starts_at, confirmed, created_at FROM events ORDER BY starts_at ASC`
	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ListEvents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []*planner.Event
	for rows.Next() {
		var e planner.Event
		var location sql.NullString
		if err := rows.Scan(&e.ID, &e.Title, &location, &e.StartsAt, &e.Confirmed, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("ListEvents: %w", err)
		}
		e.Location = location.String
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListEvents: %w", err)
	}
	return events, nil
}

// Close closes the database connection.
func (c *Client) Close() error {
	return c.db.Close()
}

func checkAffected(result sql.Result, op string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if affected == 0 {
		return fmt.Errorf("%s: %w", op, planner.ErrNotFound)
	}
	return nil
}
