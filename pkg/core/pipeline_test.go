package core_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recallkit/recallkit-go/pkg/core"
	"github.com/recallkit/recallkit-go/pkg/intent"
	"github.com/recallkit/recallkit-go/pkg/planner"
	"github.com/recallkit/recallkit-go/pkg/vectorstore"
)

type fakeTranscriber struct {
	text string
	err  error
	hang bool
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, audio io.Reader, filename, language string) (string, error) {
	if f.hang {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if f.err != nil {
		return "", f.err
	}
	return f.text, nil
}

type fakeClassifier struct {
	result     intent.Intent
	err        error
	transcript string
}

func (f *fakeClassifier) Classify(ctx context.Context, transcript, language string) (intent.Intent, error) {
	f.transcript = transcript
	if f.err != nil {
		return intent.Intent{Type: intent.TypeUnknown}, f.err
	}
	return f.result, nil
}

type fakeEmbedder struct {
	vector []float64
	err    error
	text   string
	hang   bool
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	f.text = text
	if f.hang {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.vector, nil
}

func (f *fakeEmbedder) Dimensions() int { return len(f.vector) }
func (f *fakeEmbedder) Close() error    { return nil }

type fakeVectorStore struct {
	matches []vectorstore.Match
	records []vectorstore.Record

	queryErr  error
	upsertErr error

	queriedVector []float64
	queriedTopK   int
	upserted      []vectorstore.Record
}

func (f *fakeVectorStore) Query(ctx context.Context, vector []float64, topK int, includeValues bool) ([]vectorstore.Match, error) {
	f.queriedVector = vector
	f.queriedTopK = topK
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return f.matches, nil
}

func (f *fakeVectorStore) Upsert(ctx context.Context, rec vectorstore.Record) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.upserted = append(f.upserted, rec)
	return nil
}

func (f *fakeVectorStore) DeleteOne(ctx context.Context, id string) error { return nil }
func (f *fakeVectorStore) DeleteAll(ctx context.Context) error            { return nil }

func (f *fakeVectorStore) Refresh(ctx context.Context) ([]vectorstore.Record, error) {
	return f.records, nil
}

type fakeSynthesizer struct {
	reply    string
	err      error
	question string
	matches  []vectorstore.Match
}

func (f *fakeSynthesizer) Answer(ctx context.Context, question string, matches []vectorstore.Match) (string, error) {
	f.question = question
	f.matches = matches
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

type fakeScheduler struct {
	err  error
	task string
	due  time.Time
}

func (f *fakeScheduler) Schedule(ctx context.Context, task string, due time.Time) (*planner.Reminder, error) {
	f.task = task
	f.due = due
	if f.err != nil {
		return nil, f.err
	}
	return &planner.Reminder{ID: 1, Task: task, DueAt: due}, nil
}

type fakeCalendar struct {
	err   error
	draft planner.EventDraft
	calls int
}

func (f *fakeCalendar) Propose(ctx context.Context, draft planner.EventDraft) (*planner.Event, error) {
	f.calls++
	f.draft = draft
	if f.err != nil {
		return nil, f.err
	}
	return &planner.Event{
		ID:        2,
		Title:     draft.Title,
		Location:  draft.Location,
		StartsAt:  draft.StartsAt,
		Confirmed: false,
	}, nil
}

type harness struct {
	pipeline    *core.Pipeline
	transcriber *fakeTranscriber
	classifier  *fakeClassifier
	embedder    *fakeEmbedder
	store       *fakeVectorStore
	synthesizer *fakeSynthesizer
	scheduler   *fakeScheduler
	calendar    *fakeCalendar
	clock       time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWithTimeout(t, 0)
}

func newHarnessWithTimeout(t *testing.T, embedTimeout time.Duration) *harness {
	t.Helper()
	h := &harness{
		transcriber: &fakeTranscriber{text: "transcribed"},
		classifier:  &fakeClassifier{},
		embedder:    &fakeEmbedder{vector: []float64{0.1, 0.2, 0.3}},
		store:       &fakeVectorStore{},
		synthesizer: &fakeSynthesizer{reply: "the answer"},
		scheduler:   &fakeScheduler{},
		calendar:    &fakeCalendar{},
		clock:       time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC),
	}

	pipeline, err := core.NewPipelineWithComponents(core.Components{
		Transcriber:  h.transcriber,
		Classifier:   h.classifier,
		Embedder:     h.embedder,
		Store:        h.store,
		Synthesizer:  h.synthesizer,
		Reminders:    h.scheduler,
		Calendar:     h.calendar,
		Clock:        func() time.Time { return h.clock },
		Location:     time.UTC,
		EmbedTimeout: embedTimeout,
	})
	require.NoError(t, err)
	h.pipeline = pipeline
	return h
}

func TestNewPipelineWithComponentsValidation(t *testing.T) {
	_, err := core.NewPipelineWithComponents(core.Components{})
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrInvalidConfig)
}

func TestQuestionFlow(t *testing.T) {
	h := newHarness(t)
	h.classifier.result = intent.Intent{Type: intent.TypeQuestion, Query: "what is my wifi password"}
	h.store.matches = []vectorstore.Match{
		{ID: "a", Score: 0.9, Metadata: map[string]string{"description": "wifi password is potato123"}},
	}

	result, err := h.pipeline.HandleText(context.Background(), "wifi password?", "en")

	require.NoError(t, err)
	assert.Equal(t, core.StateSucceeded, result.State)
	assert.Equal(t, core.OutcomeAnswered, result.Outcome)
	assert.Equal(t, "the answer", result.Answer)

	assert.Equal(t, "what is my wifi password", h.embedder.text, "the classified query is embedded, not the raw transcript")
	assert.Equal(t, []float64{0.1, 0.2, 0.3}, h.store.queriedVector)
	assert.Equal(t, core.DefaultTopK, h.store.queriedTopK)
	assert.Equal(t, "what is my wifi password", h.synthesizer.question)
	assert.Len(t, h.synthesizer.matches, 1)
}

func TestQuestionFlowNoMatchesStillAnswers(t *testing.T) {
	h := newHarness(t)
	h.classifier.result = intent.Intent{Type: intent.TypeQuestion, Query: "capital of France"}
	h.store.matches = nil

	result, err := h.pipeline.HandleText(context.Background(), "capital of France?", "en")

	require.NoError(t, err)
	assert.Equal(t, core.OutcomeAnswered, result.Outcome)
	assert.Empty(t, h.synthesizer.matches, "an empty context is passed through, not treated as failure")
}

func TestSaveInfoFlow(t *testing.T) {
	h := newHarness(t)
	h.classifier.result = intent.Intent{Type: intent.TypeSaveInfo, Memory: "wifi password is potato123"}

	events := h.pipeline.Bus().Subscribe()

	result, err := h.pipeline.HandleText(context.Background(), "the wifi password is potato123", "en")

	require.NoError(t, err)
	assert.Equal(t, core.StateSucceeded, result.State)
	assert.Equal(t, core.OutcomeSaved, result.Outcome)

	require.Len(t, h.store.upserted, 1)
	rec := h.store.upserted[0]
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, []float64{0.1, 0.2, 0.3}, rec.Values)
	assert.Equal(t, "wifi password is potato123", rec.Metadata["description"])
	assert.Equal(t, "2026-08-31T12:00:00Z", rec.Metadata["timestamp"])
	require.NotNil(t, result.Saved)
	assert.Equal(t, rec.ID, result.Saved.ID)

	select {
	case event := <-events:
		assert.Equal(t, core.EventMemorySaved, event.Kind)
	default:
		t.Fatal("expected a memory_saved event on the bus")
	}
}

func TestReminderFlow(t *testing.T) {
	h := newHarness(t)
	h.classifier.result = intent.Intent{
		Type:     intent.TypeReminder,
		Task:     "call mom",
		Datetime: "2026-09-01T09:00:00",
	}

	result, err := h.pipeline.HandleText(context.Background(), "remind me to call mom tomorrow at 9", "en")

	require.NoError(t, err)
	assert.Equal(t, core.StateSucceeded, result.State)
	assert.Equal(t, core.OutcomeReminderSet, result.Outcome)
	require.NotNil(t, result.Reminder)
	assert.Equal(t, "call mom", h.scheduler.task)
	assert.Equal(t, time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC), h.scheduler.due)
}

func TestReminderFlowUnparseableDatetimeDropsSilently(t *testing.T) {
	h := newHarness(t)
	h.classifier.result = intent.Intent{
		Type:     intent.TypeReminder,
		Task:     "call mom",
		Datetime: "sometime soon",
	}

	result, err := h.pipeline.HandleText(context.Background(), "remind me to call mom", "en")

	require.NoError(t, err, "an unparseable datetime is a silent drop, not a failure")
	assert.Equal(t, core.OutcomeNone, result.Outcome)
	assert.Empty(t, h.scheduler.task, "the collaborator must not be called")
}

func TestCalendarFlow(t *testing.T) {
	h := newHarness(t)
	h.classifier.result = intent.Intent{
		Type:     intent.TypeCalendar,
		Title:    "Dentist",
		Location: "Main St 12",
		Datetime: "2026-09-03T14:30:00",
	}

	events := h.pipeline.Bus().Subscribe()

	result, err := h.pipeline.HandleText(context.Background(), "dentist thursday at 14:30", "en")

	require.NoError(t, err)
	assert.Equal(t, core.OutcomeEventDrafted, result.Outcome)
	require.NotNil(t, result.Draft)
	assert.False(t, result.Draft.Confirmed, "calendar flow must produce an unconfirmed draft")
	assert.Equal(t, "Dentist", h.calendar.draft.Title)
	assert.Equal(t, "Main St 12", h.calendar.draft.Location)
	assert.Equal(t, time.Date(2026, 9, 3, 14, 30, 0, 0, time.UTC), h.calendar.draft.StartsAt)

	select {
	case event := <-events:
		assert.Equal(t, core.EventCalendarDraftReady, event.Kind)
	default:
		t.Fatal("expected a calendar_draft_ready event on the bus")
	}
}

func TestCalendarFlowUnparseableDatetimeDropsSilently(t *testing.T) {
	h := newHarness(t)
	h.classifier.result = intent.Intent{
		Type:     intent.TypeCalendar,
		Title:    "Dentist",
		Datetime: "next week maybe",
	}

	result, err := h.pipeline.HandleText(context.Background(), "dentist next week", "en")

	require.NoError(t, err)
	assert.Equal(t, core.OutcomeNone, result.Outcome)
	assert.Zero(t, h.calendar.calls)
}

func TestUnknownIntentHasNoSideEffects(t *testing.T) {
	h := newHarness(t)
	h.classifier.result = intent.Intent{Type: intent.TypeUnknown}

	result, err := h.pipeline.HandleText(context.Background(), "blah blah", "en")

	require.NoError(t, err, "a classification miss is not an error")
	assert.Equal(t, core.StateAwaitingClassification, result.State)
	assert.Equal(t, core.OutcomeNone, result.Outcome)
	assert.Empty(t, h.store.upserted)
	assert.Empty(t, h.embedder.text)
	assert.Empty(t, h.scheduler.task)
	assert.Zero(t, h.calendar.calls)
}

func TestHandleAudioFeedsTranscript(t *testing.T) {
	h := newHarness(t)
	h.transcriber.text = "what is my wifi password"
	h.classifier.result = intent.Intent{Type: intent.TypeQuestion, Query: "what is my wifi password"}

	result, err := h.pipeline.HandleAudio(context.Background(), strings.NewReader("audio"), "a.m4a", "en")

	require.NoError(t, err)
	assert.Equal(t, core.OutcomeAnswered, result.Outcome)
	assert.Equal(t, "what is my wifi password", h.classifier.transcript)
}

func TestTranscriptionFailure(t *testing.T) {
	h := newHarness(t)
	h.transcriber.err = errors.New("bad audio")

	result, err := h.pipeline.HandleAudio(context.Background(), strings.NewReader("x"), "a.m4a", "en")

	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrTranscriptionFailed)
	assert.Equal(t, core.StateFailed, result.State)
	assert.Equal(t, core.StepTranscribe, result.FailedStep)
}

func TestClassificationFailure(t *testing.T) {
	h := newHarness(t)
	h.classifier.err = errors.New("provider down")

	result, err := h.pipeline.HandleText(context.Background(), "anything", "en")

	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrClassificationFailed)
	assert.Equal(t, core.StepClassify, result.FailedStep)
}

func TestEmbeddingFailureNamesStep(t *testing.T) {
	h := newHarness(t)
	h.classifier.result = intent.Intent{Type: intent.TypeQuestion, Query: "q"}
	h.embedder.err = errors.New("quota")

	result, err := h.pipeline.HandleText(context.Background(), "q?", "en")

	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrEmbeddingFailed)

	var flowErr *core.FlowError
	require.ErrorAs(t, err, &flowErr)
	assert.Equal(t, core.StepEmbed, flowErr.Step)
	assert.Equal(t, core.StepEmbed, result.FailedStep)
	assert.Equal(t, core.StateFailed, result.State)
}

func TestEmbedTimeoutBoundsHangingEmbedder(t *testing.T) {
	h := newHarnessWithTimeout(t, 30*time.Millisecond)
	h.classifier.result = intent.Intent{Type: intent.TypeQuestion, Query: "q"}
	h.embedder.hang = true

	start := time.Now()
	result, err := h.pipeline.HandleText(context.Background(), "q?", "en")
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrEmbeddingFailed)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, core.StepEmbed, result.FailedStep)
	assert.Less(t, elapsed, time.Second, "a hanging embedder must be cut off by the timeout")
}

func TestEmbedTimeoutBoundsHangingTranscriber(t *testing.T) {
	h := newHarnessWithTimeout(t, 30*time.Millisecond)
	h.transcriber.hang = true

	start := time.Now()
	result, err := h.pipeline.HandleAudio(context.Background(), strings.NewReader("x"), "a.m4a", "en")
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrTranscriptionFailed)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, core.StepTranscribe, result.FailedStep)
	assert.Less(t, elapsed, time.Second, "a hanging transcriber must be cut off by the timeout")
}

func TestUpsertFailureNamesStep(t *testing.T) {
	h := newHarness(t)
	h.classifier.result = intent.Intent{Type: intent.TypeSaveInfo, Memory: "m"}
	h.store.upsertErr = errors.New("store down")

	result, err := h.pipeline.HandleText(context.Background(), "remember m", "en")

	require.Error(t, err)
	var flowErr *core.FlowError
	require.ErrorAs(t, err, &flowErr)
	assert.Equal(t, core.StepUpsert, flowErr.Step)
	assert.Equal(t, core.StepUpsert, result.FailedStep)
}

func TestSchedulerFailureIsCollaboratorError(t *testing.T) {
	h := newHarness(t)
	h.classifier.result = intent.Intent{
		Type:     intent.TypeReminder,
		Task:     "t",
		Datetime: "2026-09-01T09:00:00",
	}
	h.scheduler.err = errors.New("disk full")

	result, err := h.pipeline.HandleText(context.Background(), "remind me", "en")

	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrCollaborator)
	assert.Equal(t, core.StepSchedule, result.FailedStep)
}

func TestRefreshMemories(t *testing.T) {
	h := newHarness(t)
	h.store.records = []vectorstore.Record{
		{ID: "a", Metadata: map[string]string{"description": "newest"}},
		{ID: "b", Metadata: map[string]string{"description": "older"}},
	}

	events := h.pipeline.Bus().Subscribe()

	records, err := h.pipeline.RefreshMemories(context.Background())

	require.NoError(t, err)
	assert.Len(t, records, 2)

	select {
	case event := <-events:
		assert.Equal(t, core.EventMemoriesRefreshed, event.Kind)
	default:
		t.Fatal("expected a memories_refreshed event on the bus")
	}
}

func TestAsyncPipeline(t *testing.T) {
	h := newHarness(t)
	h.classifier.result = intent.Intent{Type: intent.TypeQuestion, Query: "q"}

	async, err := core.NewAsyncPipelineWithComponents(core.Components{
		Classifier:  h.classifier,
		Embedder:    h.embedder,
		Store:       h.store,
		Synthesizer: h.synthesizer,
	})
	require.NoError(t, err)
	defer async.Close()

	first := async.HandleTextAsync(context.Background(), "q?", "en")
	second := async.HandleTextAsync(context.Background(), "q?", "en")

	for _, ch := range []<-chan *core.AsyncResult{first, second} {
		res := <-ch
		require.NoError(t, res.Error)
		assert.Equal(t, core.OutcomeAnswered, res.Result.Outcome)
	}
	async.Wait()
}
