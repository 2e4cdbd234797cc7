package core

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/recallkit/recallkit-go/pkg/embedder"
	"github.com/recallkit/recallkit-go/pkg/intent"
	"github.com/recallkit/recallkit-go/pkg/ledger"
	"github.com/recallkit/recallkit-go/pkg/planner"
	"github.com/recallkit/recallkit-go/pkg/vectorstore"
)

// Pipeline step names, reported on failure so the caller can retry exactly
// the failed step.
const (
	StepTranscribe   = "transcribe"
	StepClassify     = "classify"
	StepEmbed        = "embed"
	StepQuery        = "query"
	StepSynthesize   = "synthesize"
	StepUpsert       = "upsert"
	StepSchedule     = "schedule_reminder"
	StepProposeEvent = "propose_event"
	StepRefresh      = "refresh"
)

// DefaultEmbedTimeout bounds the wall-clock latency of transcription and
// embedding calls, independent of the retry count.
const DefaultEmbedTimeout = 10 * time.Second

// DefaultTopK is the number of matches requested from the vector store for
// a question flow. The synthesizer filters further before the model sees
// them.
const DefaultTopK = 5

// Transcriber converts an audio recording into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio io.Reader, filename, language string) (string, error)
}

// Classifier maps a transcript to an intent.
type Classifier interface {
	Classify(ctx context.Context, transcript, language string) (intent.Intent, error)
}

// Synthesizer produces a natural-language answer from retrieved matches.
type Synthesizer interface {
	Answer(ctx context.Context, question string, matches []vectorstore.Match) (string, error)
}

// VectorStore is the subset of the vector store client the pipeline uses.
type VectorStore interface {
	Query(ctx context.Context, vector []float64, topK int, includeValues bool) ([]vectorstore.Match, error)
	Upsert(ctx context.Context, rec vectorstore.Record) error
	DeleteOne(ctx context.Context, id string) error
	DeleteAll(ctx context.Context) error
	Refresh(ctx context.Context) ([]vectorstore.Record, error)
}

// ReminderScheduler is the reminder collaborator.
type ReminderScheduler interface {
	Schedule(ctx context.Context, task string, due time.Time) (*planner.Reminder, error)
}

// CalendarEditor is the calendar collaborator. Propose hands over a draft
// for user confirmation; the pipeline never commits events itself.
type CalendarEditor interface {
	Propose(ctx context.Context, draft planner.EventDraft) (*planner.Event, error)
}

// FlowState is a state of the intent-routing state machine.
type FlowState string

const (
	StateIdle                   FlowState = "idle"
	StateAwaitingClassification FlowState = "awaiting_classification"
	StateQuestionFlow           FlowState = "question_flow"
	StateReminderFlow           FlowState = "reminder_flow"
	StateCalendarFlow           FlowState = "calendar_flow"
	StateSaveInfoFlow           FlowState = "save_info_flow"
	StateSucceeded              FlowState = "succeeded"
	StateFailed                 FlowState = "failed"
)

// Outcome describes what a finished flow produced.
type Outcome string

const (
	// OutcomeAnswered carries a natural-language answer.
	OutcomeAnswered Outcome = "answered"

	// OutcomeSaved carries the persisted memory record.
	OutcomeSaved Outcome = "saved"

	// OutcomeReminderSet carries the created reminder.
	OutcomeReminderSet Outcome = "reminder_set"

	// OutcomeEventDrafted carries a calendar draft awaiting confirmation.
	OutcomeEventDrafted Outcome = "event_drafted"

	// OutcomeNone means no side effect happened: an unknown intent, or a
	// reminder/calendar datetime that failed to parse (silent drop).
	OutcomeNone Outcome = "none"
)

// Result is the outcome of one pipeline invocation.
type Result struct {
	// State is the terminal state of the flow (succeeded or failed).
	State FlowState

	// Outcome describes what the flow produced.
	Outcome Outcome

	// Intent is the classification that drove the flow.
	Intent intent.Intent

	// Answer is the synthesized reply (OutcomeAnswered).
	Answer string

	// Saved is the persisted memory record (OutcomeSaved).
	Saved *vectorstore.Record

	// Reminder is the created reminder (OutcomeReminderSet).
	Reminder *planner.Reminder

	// Draft is the unconfirmed calendar event (OutcomeEventDrafted).
	Draft *planner.Event

	// FailedStep names the step that failed (StateFailed only).
	FailedStep string
}

// Components bundles the collaborators a Pipeline is built from.
//
// Transcriber, Reminders, Calendar, Bus, Logger, Clock, and Location are
// optional; the rest are required.
type Components struct {
	Transcriber Transcriber
	Classifier  Classifier
	Embedder    embedder.Provider
	Store       VectorStore
	Synthesizer Synthesizer
	Reminders   ReminderScheduler
	Calendar    CalendarEditor
	Bus         *Bus
	Logger      *logrus.Logger

	// Clock grounds "now" for metadata timestamps (default: time.Now).
	Clock func() time.Time

	// Location is the local timezone calendar datetimes are converted to
	// (default: time.Local).
	Location *time.Location

	// EmbedTimeout bounds transcription/embedding wall-clock latency
	// (default: DefaultEmbedTimeout).
	EmbedTimeout time.Duration

	// TopK is the match count requested per question (default: DefaultTopK).
	TopK int
}

// Pipeline routes classified intents to the question, save-info, reminder,
// and calendar flows.
//
// A Pipeline holds no mutable state beyond its immutable collaborators, so
// its methods are safe for concurrent invocation. Within one flow the steps
// run strictly in order (embed, then query/upsert, then synthesize);
// independent flows triggered concurrently are not serialized against each
// other.
type Pipeline struct {
	transcriber  Transcriber
	classifier   Classifier
	embedder     embedder.Provider
	store        VectorStore
	synthesizer  Synthesizer
	reminders    ReminderScheduler
	calendar     CalendarEditor
	bus          *Bus
	log          *logrus.Logger
	now          func() time.Time
	loc          *time.Location
	embedTimeout time.Duration
	topK         int

	usage   *ledger.Ledger
	closers []func() error
}

// NewPipelineWithComponents assembles a pipeline from pre-built
// collaborators.
func NewPipelineWithComponents(c Components) (*Pipeline, error) {
	if c.Classifier == nil || c.Embedder == nil || c.Store == nil || c.Synthesizer == nil {
		return nil, NewFlowError("NewPipeline", ErrInvalidConfig)
	}

	log := c.Logger
	if log == nil {
		log = logrus.New()
		log.SetFormatter(&logrus.JSONFormatter{})
	}

	now := c.Clock
	if now == nil {
		now = time.Now
	}

	loc := c.Location
	if loc == nil {
		loc = time.Local
	}

	embedTimeout := c.EmbedTimeout
	if embedTimeout <= 0 {
		embedTimeout = DefaultEmbedTimeout
	}

	topK := c.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}

	bus := c.Bus
	if bus == nil {
		bus = NewBus()
	}

	return &Pipeline{
		transcriber:  c.Transcriber,
		classifier:   c.Classifier,
		embedder:     c.Embedder,
		store:        c.Store,
		synthesizer:  c.Synthesizer,
		reminders:    c.Reminders,
		calendar:     c.Calendar,
		bus:          bus,
		log:          log,
		now:          now,
		loc:          loc,
		embedTimeout: embedTimeout,
		topK:         topK,
	}, nil
}

// Bus returns the pipeline's event bus.
func (p *Pipeline) Bus() *Bus {
	return p.bus
}

// Ledger returns the shared usage ledger, or nil when the pipeline was
// assembled from components without one.
func (p *Pipeline) Ledger() *ledger.Ledger {
	return p.usage
}

// Close releases every resource the pipeline owns. Pipelines assembled
// with NewPipelineWithComponents own nothing and Close is a no-op.
func (p *Pipeline) Close() error {
	var firstErr error
	for _, closeFn := range p.closers {
		if err := closeFn(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	p.closers = nil
	return firstErr
}

// HandleAudio transcribes a recording and routes the transcript.
//
// The transcription call runs under the pipeline's fixed wall-clock
// timeout, independent of its retry count.
func (p *Pipeline) HandleAudio(ctx context.Context, audio io.Reader, filename, language string) (*Result, error) {
	if p.transcriber == nil {
		return failed(StepTranscribe), NewFlowError(StepTranscribe, ErrInvalidConfig)
	}

	tctx, cancel := context.WithTimeout(ctx, p.embedTimeout)
	transcript, err := p.transcriber.Transcribe(tctx, audio, filename, language)
	cancel()
	if err != nil {
		p.log.WithFields(logrus.Fields{"step": StepTranscribe}).WithError(err).Error("transcription failed")
		return failed(StepTranscribe), NewFlowError(StepTranscribe, fmt.Errorf("%w: %w", ErrTranscriptionFailed, err))
	}

	return p.HandleText(ctx, transcript, language)
}

// HandleText classifies a transcript and routes it to its flow.
func (p *Pipeline) HandleText(ctx context.Context, transcript, language string) (*Result, error) {
	classified, err := p.classifier.Classify(ctx, transcript, language)
	if err != nil {
		p.log.WithFields(logrus.Fields{"step": StepClassify}).WithError(err).Error("classification failed")
		return failed(StepClassify), NewFlowError(StepClassify, fmt.Errorf("%w: %w", ErrClassificationFailed, err))
	}

	return p.Dispatch(ctx, classified)
}

// Dispatch routes a classified intent to its flow.
//
// An unknown intent is terminal: the pipeline stays idle, performs no side
// effects, and returns OutcomeNone without an error. A miss is not a fault.
func (p *Pipeline) Dispatch(ctx context.Context, classified intent.Intent) (*Result, error) {
	log := p.log.WithFields(logrus.Fields{"intent": string(classified.Type)})

	switch classified.Type {
	case intent.TypeQuestion:
		return p.questionFlow(ctx, classified, log)
	case intent.TypeSaveInfo:
		return p.saveInfoFlow(ctx, classified, log)
	case intent.TypeReminder:
		return p.reminderFlow(ctx, classified, log)
	case intent.TypeCalendar:
		return p.calendarFlow(ctx, classified, log)
	default:
		log.Debug("classification miss, no flow dispatched")
		return &Result{State: StateAwaitingClassification, Outcome: OutcomeNone, Intent: classified}, nil
	}
}

// questionFlow answers a question from saved memories:
// embed -> query -> synthesize.
func (p *Pipeline) questionFlow(ctx context.Context, classified intent.Intent, log *logrus.Entry) (*Result, error) {
	vector, err := p.embed(ctx, classified.Query)
	if err != nil {
		log.WithError(err).Error("embedding failed")
		return failedWith(classified, StepEmbed), NewFlowError(StepEmbed, fmt.Errorf("%w: %w", ErrEmbeddingFailed, err))
	}

	matches, err := p.store.Query(ctx, vector, p.topK, false)
	if err != nil {
		log.WithError(err).Error("vector query failed")
		return failedWith(classified, StepQuery), NewFlowError(StepQuery, err)
	}

	answer, err := p.synthesizer.Answer(ctx, classified.Query, matches)
	if err != nil {
		log.WithError(err).Error("answer synthesis failed")
		return failedWith(classified, StepSynthesize), NewFlowError(StepSynthesize, fmt.Errorf("%w: %w", ErrSynthesisFailed, err))
	}

	return &Result{
		State:   StateSucceeded,
		Outcome: OutcomeAnswered,
		Intent:  classified,
		Answer:  answer,
	}, nil
}

// saveInfoFlow persists a new memory: embed -> upsert.
func (p *Pipeline) saveInfoFlow(ctx context.Context, classified intent.Intent, log *logrus.Entry) (*Result, error) {
	vector, err := p.embed(ctx, classified.Memory)
	if err != nil {
		log.WithError(err).Error("embedding failed")
		return failedWith(classified, StepEmbed), NewFlowError(StepEmbed, fmt.Errorf("%w: %w", ErrEmbeddingFailed, err))
	}

	rec := vectorstore.Record{
		ID:     uuid.NewString(),
		Values: vector,
		Metadata: map[string]string{
			"description": classified.Memory,
			"timestamp":   p.now().Format(time.RFC3339),
		},
	}

	if err := p.store.Upsert(ctx, rec); err != nil {
		log.WithError(err).Error("memory upsert failed")
		return failedWith(classified, StepUpsert), NewFlowError(StepUpsert, err)
	}

	p.bus.Publish(Event{Kind: EventMemorySaved, Payload: rec})
	log.WithFields(logrus.Fields{"id": rec.ID}).Info("memory saved")

	return &Result{
		State:   StateSucceeded,
		Outcome: OutcomeSaved,
		Intent:  classified,
		Saved:   &rec,
	}, nil
}

// reminderFlow hands a task off to the reminder collaborator.
//
// A datetime that fails to parse aborts the flow silently: no collaborator
// call, no error. The silent drop mirrors the product behavior; whether it
// should surface instead is an open product question.
func (p *Pipeline) reminderFlow(ctx context.Context, classified intent.Intent, log *logrus.Entry) (*Result, error) {
	due, ok := parseWhen(classified.Datetime, p.loc)
	if !ok {
		log.WithFields(logrus.Fields{"datetime": classified.Datetime}).Debug("unparseable reminder datetime, dropping")
		return &Result{State: StateReminderFlow, Outcome: OutcomeNone, Intent: classified}, nil
	}

	if p.reminders == nil {
		return failedWith(classified, StepSchedule), NewFlowError(StepSchedule, ErrInvalidConfig)
	}

	reminder, err := p.reminders.Schedule(ctx, classified.Task, due)
	if err != nil {
		log.WithError(err).Error("reminder save failed")
		return failedWith(classified, StepSchedule), NewFlowError(StepSchedule, fmt.Errorf("%w: %w", ErrCollaborator, err))
	}

	return &Result{
		State:    StateSucceeded,
		Outcome:  OutcomeReminderSet,
		Intent:   classified,
		Reminder: reminder,
	}, nil
}

// calendarFlow hands a draft event to the calendar collaborator.
//
// The parsed datetime is converted to local time, and the resulting event
// is a draft awaiting user confirmation: this is the one flow that does
// not commit a side effect itself.
func (p *Pipeline) calendarFlow(ctx context.Context, classified intent.Intent, log *logrus.Entry) (*Result, error) {
	startsAt, ok := parseWhen(classified.Datetime, p.loc)
	if !ok {
		log.WithFields(logrus.Fields{"datetime": classified.Datetime}).Debug("unparseable event datetime, dropping")
		return &Result{State: StateCalendarFlow, Outcome: OutcomeNone, Intent: classified}, nil
	}

	if p.calendar == nil {
		return failedWith(classified, StepProposeEvent), NewFlowError(StepProposeEvent, ErrInvalidConfig)
	}

	draft, err := p.calendar.Propose(ctx, planner.EventDraft{
		Title:    classified.Title,
		Location: classified.Location,
		StartsAt: startsAt.In(p.loc),
	})
	if err != nil {
		log.WithError(err).Error("calendar draft failed")
		return failedWith(classified, StepProposeEvent), NewFlowError(StepProposeEvent, fmt.Errorf("%w: %w", ErrCollaborator, err))
	}

	p.bus.Publish(Event{Kind: EventCalendarDraftReady, Payload: draft})

	return &Result{
		State:   StateSucceeded,
		Outcome: OutcomeEventDrafted,
		Intent:  classified,
		Draft:   draft,
	}, nil
}

// RefreshMemories reloads every stored memory via the two-step list/fetch
// read and publishes the refreshed set on the bus.
func (p *Pipeline) RefreshMemories(ctx context.Context) ([]vectorstore.Record, error) {
	records, err := p.store.Refresh(ctx)
	if err != nil {
		p.log.WithError(err).Error("memory refresh failed")
		return nil, NewFlowError(StepRefresh, err)
	}

	p.bus.Publish(Event{Kind: EventMemoriesRefreshed, Payload: records})
	return records, nil
}

// embed runs the embedder under the pipeline's fixed wall-clock timeout.
func (p *Pipeline) embed(ctx context.Context, text string) ([]float64, error) {
	ectx, cancel := context.WithTimeout(ctx, p.embedTimeout)
	defer cancel()
	return p.embedder.Embed(ectx, text)
}

func failed(step string) *Result {
	return &Result{State: StateFailed, Outcome: OutcomeNone, FailedStep: step}
}

func failedWith(classified intent.Intent, step string) *Result {
	r := failed(step)
	r.Intent = classified
	return r
}

// parseWhen parses a classifier-produced ISO-8601 datetime. Layouts without
// an explicit offset are interpreted in loc.
func parseWhen(value string, loc *time.Location) (time.Time, bool) {
	if value == "" {
		return time.Time{}, false
	}

	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}
	for _, layout := range []string{"2006-01-02T15:04:05", "2006-01-02T15:04", "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
