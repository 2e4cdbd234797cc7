package planner

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Service is the reminder/calendar collaborator handed to the pipeline.
//
// It generates record ids and delegates persistence to a configured Store
// backend. The pipeline only sees the narrow Schedule/Propose surface; the
// listing and confirmation operations exist for the presentation layer.
type Service struct {
	store Store
	node  *snowflake.Node
	now   func() time.Time
}

// NewService creates a planner service over the given store.
func NewService(store Store) (*Service, error) {
	node, err := snowflake.NewNode(1)
	if err != nil {
		return nil, fmt.Errorf("NewService: %w", err)
	}
	return &Service{
		store: store,
		node:  node,
		now:   time.Now,
	}, nil
}

// Schedule creates and persists a reminder for task at due.
func (s *Service) Schedule(ctx context.Context, task string, due time.Time) (*Reminder, error) {
	reminder := &Reminder{
		ID:        s.node.Generate().Int64(),
		Task:      task,
		DueAt:     due,
		CreatedAt: s.now(),
	}
	if err := s.store.InsertReminder(ctx, reminder); err != nil {
		return nil, err
	}
	return reminder, nil
}

// Propose persists a calendar draft awaiting user confirmation.
func (s *Service) Propose(ctx context.Context, draft EventDraft) (*Event, error) {
	event := &Event{
		ID:        s.node.Generate().Int64(),
		Title:     draft.Title,
		Location:  draft.Location,
		StartsAt:  draft.StartsAt,
		Confirmed: false,
		CreatedAt: s.now(),
	}
	if err := s.store.InsertEvent(ctx, event); err != nil {
		return nil, err
	}
	return event, nil
}

// Confirm marks a draft event as confirmed.
func (s *Service) Confirm(ctx context.Context, id int64) error {
	return s.store.ConfirmEvent(ctx, id)
}

// Complete marks a reminder as done.
func (s *Service) Complete(ctx context.Context, id int64) error {
	return s.store.CompleteReminder(ctx, id)
}

// Reminders returns all reminders, soonest due first.
func (s *Service) Reminders(ctx context.Context) ([]*Reminder, error) {
	return s.store.ListReminders(ctx)
}

// Events returns all events, earliest start first.
func (s *Service) Events(ctx context.Context) ([]*Event, error) {
	return s.store.ListEvents(ctx)
}

// Close closes the underlying store.
func (s *Service) Close() error {
	return s.store.Close()
}
