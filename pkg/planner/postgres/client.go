// Package postgres provides the PostgreSQL planner backend.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/recallkit/recallkit-go/pkg/planner"
)

// Client implements planner.Store using PostgreSQL as the backend.
type Client struct {
	db *sql.DB
}

// Config contains configuration for creating a PostgreSQL planner backend.
type Config struct {
	// Host is the database host.
	Host string

	// Port is the database port.
	Port int

	// User is the database user.
	User string

	// Password is the database password.
	Password string

	// DBName is the database name.
	DBName string

	// SSLMode is the libpq sslmode setting (default: "disable").
	SSLMode string
}

// NewClient creates a new PostgreSQL planner backend and initializes its
// tables.
func NewClient(cfg *Config) (*Client, error) {
	if cfg.Host == "" || cfg.DBName == "" {
		return nil, planner.ErrInvalidConfig
	}

	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, sslMode)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("NewPostgresClient: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("NewPostgresClient: %w", err)
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
			id BIGINT PRIMARY KEY,
			task TEXT NOT NULL,
			due_at TIMESTAMPTZ NOT NULL,
			done BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ DEFAULT NOW()
		)
	`
	if _, err := c.db.ExecContext(ctx, reminderTable); err != nil {
		return fmt.Errorf("initTables: %w", err)
	}

	eventTable := `
		CREATE TABLE IF NOT EXISTS events (
			id BIGINT PRIMARY KEY,
			title TEXT NOT NULL,
			location TEXT,
			starts_at TIMESTAMPTZ NOT NULL,
			confirmed BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ DEFAULT NOW()
		)
	`
	if _, err := c.db.ExecContext(ctx, eventTable); err != nil {
		return fmt.Errorf("initTables: %w", err)
	}

	return nil
}

// InsertReminder persists a new reminder.
func (c *Client) InsertReminder(ctx context.Context, r *planner.Reminder) error {
	query := `INSERT INTO reminders (id, task, due_at, done, created_at) VALUES ($1, $2, $3, $4, $5)`
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
	result, err := c.db.ExecContext(ctx, `UPDATE reminders SET done = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("CompleteReminder: %w", err)
	}
	return checkAffected(result, "CompleteReminder")
}

// InsertEvent persists a new event.
func (c *Client) InsertEvent(ctx context.Context, e *planner.Event) error {
	query := `INSERT INTO events (id, title, location, starts_at, confirmed, created_at) VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := c.db.ExecContext(ctx, query, e.ID, e.Title, e.Location, e.StartsAt, e.Confirmed, e.CreatedAt); err != nil {
		return fmt.Errorf("InsertEvent: %w", err)
	}
	return nil
}

// ConfirmEvent marks a draft event as confirmed.
func (c *Client) ConfirmEvent(ctx context.Context, id int64) error {
	result, err := c.db.ExecContext(ctx, `UPDATE events SET confirmed = TRUE WHERE id = $1`, id)
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
