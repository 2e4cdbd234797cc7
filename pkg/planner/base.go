// Package planner provides the local reminder and calendar-event store the
// pipeline hands off to.
//
// It defines the Store interface that all backends must satisfy, along with
// the reminder and event types. Backends exist for SQLite, PostgreSQL, and
// MySQL. Reminders are committed immediately; calendar events are written
// as unconfirmed drafts and confirmed separately, so the calendar flow can
// surface a draft for user approval before persistence counts.
package planner

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound indicates that a requested reminder or event was not found.
var ErrNotFound = errors.New("planner record not found")

// ErrInvalidConfig indicates that the backend configuration is invalid.
var ErrInvalidConfig = errors.New("invalid planner configuration")

// Reminder is a scheduled task reminder.
type Reminder struct {
	// ID is the unique identifier of the reminder.
	ID int64 `json:"id"`

	// Task is the task description.
	Task string `json:"task"`

	// DueAt is when the reminder fires.
	DueAt time.Time `json:"due_at"`

	// Done marks a completed reminder.
	Done bool `json:"done"`

	// CreatedAt is when the reminder was created.
	CreatedAt time.Time `json:"created_at"`
}

// Event is a calendar event. Events created by the pipeline start as
// unconfirmed drafts.
type Event struct {
	// ID is the unique identifier of the event.
	ID int64 `json:"id"`

	// Title is the event title.
	Title string `json:"title"`

	// Location is the event location (may be empty).
	Location string `json:"location,omitempty"`

	// StartsAt is the event start time, in local time.
	StartsAt time.Time `json:"starts_at"`

	// Confirmed is false while the event is a draft awaiting user approval.
	Confirmed bool `json:"confirmed"`

	// CreatedAt is when the event was created.
	CreatedAt time.Time `json:"created_at"`
}

// EventDraft is the pipeline's proposal for a calendar event.
type EventDraft struct {
	// Title is the event title.
	Title string

	// Location is the event location (may be empty).
	Location string

	// StartsAt is the event start time, in local time.
	StartsAt time.Time
}

// Store defines the interface for planner storage backends.
type Store interface {
	// InsertReminder persists a new reminder.
	InsertReminder(ctx context.Context, r *Reminder) error

	// ListReminders returns all reminders, soonest due first.
	ListReminders(ctx context.Context) ([]*Reminder, error)

	// CompleteReminder marks a reminder as done.
	CompleteReminder(ctx context.Context, id int64) error

	// InsertEvent persists a new event (draft or confirmed).
	InsertEvent(ctx context.Context, e *Event) error

	// ConfirmEvent marks a draft event as confirmed.
	ConfirmEvent(ctx context.Context, id int64) error

	// ListEvents returns all events, earliest start first.
	ListEvents(ctx context.Context) ([]*Event, error)

	// Close closes the backend connection.
	Close() error
}
