package planner_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recallkit/recallkit-go/pkg/planner"
)

// fakeStore records inserted rows in memory.
type fakeStore struct {
	reminders []*planner.Reminder
	events    []*planner.Event
	insertErr error
	closed    bool
}

func (f *fakeStore) InsertReminder(ctx context.Context, r *planner.Reminder) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.reminders = append(f.reminders, r)
	return nil
}

func (f *fakeStore) ListReminders(ctx context.Context) ([]*planner.Reminder, error) {
	return f.reminders, nil
}

func (f *fakeStore) CompleteReminder(ctx context.Context, id int64) error {
	for _, r := range f.reminders {
		if r.ID == id {
			r.Done = true
			return nil
		}
	}
	return planner.ErrNotFound
}

func (f *fakeStore) InsertEvent(ctx context.Context, e *planner.Event) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.events = append(f.events, e)
	return nil
}

func (f *fakeStore) ConfirmEvent(ctx context.Context, id int64) error {
	for _, e := range f.events {
		if e.ID == id {
			e.Confirmed = true
			return nil
		}
	}
	return planner.ErrNotFound
}

func (f *fakeStore) ListEvents(ctx context.Context) ([]*planner.Event, error) {
	return f.events, nil
}

func (f *fakeStore) Close() error {
	f.closed = true
	return nil
}

func TestSchedule(t *testing.T) {
	store := &fakeStore{}
	service, err := planner.NewService(store)
	require.NoError(t, err)

	due := time.Date(2026, 9, 1, 9, 0, 0, 0, time.Local)
	reminder, err := service.Schedule(context.Background(), "call mom", due)

	require.NoError(t, err)
	assert.NotZero(t, reminder.ID)
	assert.Equal(t, "call mom", reminder.Task)
	assert.Equal(t, due, reminder.DueAt)
	assert.False(t, reminder.Done, "a scheduled reminder starts pending")
	require.Len(t, store.reminders, 1)
	assert.Same(t, reminder, store.reminders[0])
}

func TestScheduleGeneratesUniqueIDs(t *testing.T) {
	store := &fakeStore{}
	service, err := planner.NewService(store)
	require.NoError(t, err)

	seen := make(map[int64]bool)
	for i := 0; i < 50; i++ {
		r, err := service.Schedule(context.Background(), "task", time.Now())
		require.NoError(t, err)
		assert.False(t, seen[r.ID], "ids must be unique")
		seen[r.ID] = true
	}
}

func TestProposeCreatesDraft(t *testing.T) {
	store := &fakeStore{}
	service, err := planner.NewService(store)
	require.NoError(t, err)

	starts := time.Date(2026, 9, 3, 14, 30, 0, 0, time.Local)
	event, err := service.Propose(context.Background(), planner.EventDraft{
		Title:    "Dentist",
		Location: "Main St 12",
		StartsAt: starts,
	})

	require.NoError(t, err)
	assert.False(t, event.Confirmed, "a proposed event must be an unconfirmed draft")
	assert.Equal(t, "Dentist", event.Title)
	assert.Equal(t, "Main St 12", event.Location)
	assert.Equal(t, starts, event.StartsAt)
}

func TestConfirm(t *testing.T) {
	store := &fakeStore{}
	service, err := planner.NewService(store)
	require.NoError(t, err)

	event, err := service.Propose(context.Background(), planner.EventDraft{Title: "Dentist", StartsAt: time.Now()})
	require.NoError(t, err)

	require.NoError(t, service.Confirm(context.Background(), event.ID))
	assert.True(t, store.events[0].Confirmed)

	err = service.Confirm(context.Background(), 99999)
	assert.ErrorIs(t, err, planner.ErrNotFound)
}

func TestComplete(t *testing.T) {
	store := &fakeStore{}
	service, err := planner.NewService(store)
	require.NoError(t, err)

	reminder, err := service.Schedule(context.Background(), "call mom", time.Now())
	require.NoError(t, err)

	require.NoError(t, service.Complete(context.Background(), reminder.ID))
	assert.True(t, store.reminders[0].Done)
}

func TestScheduleStoreFailure(t *testing.T) {
	store := &fakeStore{insertErr: assert.AnError}
	service, err := planner.NewService(store)
	require.NoError(t, err)

	_, err = service.Schedule(context.Background(), "task", time.Now())
	assert.ErrorIs(t, err, assert.AnError)
}

func TestCloseClosesStore(t *testing.T) {
	store := &fakeStore{}
	service, err := planner.NewService(store)
	require.NoError(t, err)

	require.NoError(t, service.Close())
	assert.True(t, store.closed)
}
