// Package intent classifies a user utterance into one of four structured
// request types using a generative-language provider.
//
// The classifier sends the transcript with a structured-extraction prompt
// and parses the reply as a strict JSON schema, but decodes it leniently:
// a field that fails to decode is treated as absent rather than failing the
// whole parse, and a missing or unrecognized "type" resolves to Unknown.
// An Unknown classification is a miss, not a fault; the router aborts the
// flow without side effects and without raising an error.
package intent

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/recallkit/recallkit-go/pkg/llm"
	"github.com/recallkit/recallkit-go/pkg/retry"
)

// Type identifies which flow an utterance should trigger.
type Type string

const (
	// TypeQuestion asks about previously saved memories.
	TypeQuestion Type = "question"

	// TypeReminder asks to schedule a reminder for a task.
	TypeReminder Type = "reminder"

	// TypeCalendar asks to create a calendar event.
	TypeCalendar Type = "calendar"

	// TypeSaveInfo asks to remember a piece of information.
	TypeSaveInfo Type = "saveInfo"

	// TypeUnknown means the utterance matched no intent. Terminal: the
	// router must not proceed.
	TypeUnknown Type = "unknown"
)

// Intent is the classification result. Exactly one variant's fields are
// populated, selected by Type.
type Intent struct {
	// Type selects the variant.
	Type Type

	// Query is the question text (TypeQuestion).
	Query string

	// Task is the reminder task description (TypeReminder).
	Task string

	// Title is the calendar event title (TypeCalendar).
	Title string

	// Location is the calendar event location (TypeCalendar, optional).
	Location string

	// Datetime is the ISO-8601 target time (TypeReminder, TypeCalendar).
	Datetime string

	// Memory is the information to save (TypeSaveInfo).
	Memory string
}

// Classifier maps free-form transcripts to Intents.
type Classifier struct {
	llm   llm.Provider
	retry retry.Policy
	now   func() time.Time
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithClock injects the wall-clock source used to ground relative time
// expressions in the prompt. Defaults to time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Classifier) {
		c.now = now
	}
}

// WithRetry overrides the retry policy (default: 2 attempts).
func WithRetry(policy retry.Policy) Option {
	return func(c *Classifier) {
		c.retry = policy
	}
}

// NewClassifier creates a classifier backed by the given provider.
func NewClassifier(provider llm.Provider, opts ...Option) *Classifier {
	c := &Classifier{
		llm:   provider,
		retry: retry.Policy{MaxAttempts: 2},
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify determines the intent of a transcript.
//
// language is a hint for the reply language ("en", "de", ...). The current
// wall-clock time is injected into the prompt so relative expressions like
// "tomorrow" resolve deterministically. The call runs at low temperature
// and is retried under the classifier's policy; only provider failures
// return an error, while an unparseable reply resolves to TypeUnknown.
func (c *Classifier) Classify(ctx context.Context, transcript, language string) (Intent, error) {
	messages := []llm.Message{
		{Role: "system", Content: c.systemPrompt(language)},
		{Role: "user", Content: transcript},
	}

	response, err := retry.Do(ctx, c.retry, func(ctx context.Context) (string, error) {
		return c.llm.GenerateWithMessages(ctx, messages, llm.WithTemperature(0.1))
	})
	if err != nil {
		return Intent{Type: TypeUnknown}, err
	}

	return ParseIntent(response), nil
}

// ParseIntent decodes a classifier reply into an Intent.
//
// Markdown code fences are stripped first. Decoding is lenient: any field
// of the wrong JSON type is treated as absent, and a missing or
// unrecognized "type" yields TypeUnknown. ParseIntent never returns an
// error; a reply that is not JSON at all is a classification miss.
func ParseIntent(response string) Intent {
	response = stripCodeFences(response)

	var payload map[string]interface{}
	if err := json.Unmarshal([]byte(response), &payload); err != nil {
		return Intent{Type: TypeUnknown}
	}

	field := func(key string) string {
		v, _ := payload[key].(string)
		return strings.TrimSpace(v)
	}

	switch Type(field("type")) {
	case TypeQuestion:
		return Intent{Type: TypeQuestion, Query: field("query")}
	case TypeReminder:
		return Intent{Type: TypeReminder, Task: field("task"), Datetime: field("datetime")}
	case TypeCalendar:
		return Intent{
			Type:     TypeCalendar,
			Title:    field("title"),
			Datetime: field("datetime"),
			Location: field("location"),
		}
	case TypeSaveInfo:
		return Intent{Type: TypeSaveInfo, Memory: field("memory")}
	default:
		return Intent{Type: TypeUnknown}
	}
}

// stripCodeFences removes markdown code fence wrapping (```json ... ```)
// from a reply.
func stripCodeFences(response string) string {
	response = strings.ReplaceAll(response, "```json", "")
	response = strings.ReplaceAll(response, "```", "")
	return strings.TrimSpace(response)
}
