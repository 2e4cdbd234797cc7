// Package answer synthesizes a natural-language reply to a question from
// top-ranked vector matches.
//
// The synthesizer enforces the pipeline's context contract: never pass the
// model more than two matches, never pass a match below the minimum score
// threshold, and always inject a current timestamp so relative time
// expressions resolve deterministically. When no match survives the filter
// the model still answers from general knowledge rather than failing.
package answer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/recallkit/recallkit-go/pkg/llm"
	"github.com/recallkit/recallkit-go/pkg/retry"
	"github.com/recallkit/recallkit-go/pkg/vectorstore"
)

const (
	// DefaultMinScore is the minimum similarity score a match needs to be
	// included as context.
	DefaultMinScore = 0.3

	// DefaultMaxMatches caps how many matches are passed to the model.
	DefaultMaxMatches = 2
)

// Synthesizer produces natural-language answers from retrieved matches.
type Synthesizer struct {
	llm        llm.Provider
	retry      retry.Policy
	now        func() time.Time
	minScore   float64
	maxMatches int
}

// Option configures a Synthesizer.
type Option func(*Synthesizer)

// WithClock injects the wall-clock source used for prompt grounding.
// Defaults to time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Synthesizer) {
		s.now = now
	}
}

// WithRetry overrides the retry policy (default: 2 attempts).
func WithRetry(policy retry.Policy) Option {
	return func(s *Synthesizer) {
		s.retry = policy
	}
}

// NewSynthesizer creates a synthesizer backed by the given provider.
func NewSynthesizer(provider llm.Provider, opts ...Option) *Synthesizer {
	s := &Synthesizer{
		llm:        provider,
		retry:      retry.Policy{MaxAttempts: 2},
		now:        time.Now,
		minScore:   DefaultMinScore,
		maxMatches: DefaultMaxMatches,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Answer produces a reply to question conditioned on the retrieved matches.
//
// Matches below the score threshold are dropped and at most two survive,
// by score descending. With an empty context the model is instructed to
// answer from general knowledge.
func (s *Synthesizer) Answer(ctx context.Context, question string, matches []vectorstore.Match) (string, error) {
	selected := s.selectContext(matches)

	messages := []llm.Message{
		{Role: "system", Content: s.systemPrompt()},
		{Role: "user", Content: buildUserPrompt(question, selected)},
	}

	return retry.Do(ctx, s.retry, func(ctx context.Context) (string, error) {
		return s.llm.GenerateWithMessages(ctx, messages, llm.WithTemperature(0.3))
	})
}

// selectContext filters matches to those at or above the score threshold,
// capped at maxMatches by score descending. The provider already returns
// matches ranked by score, but the cap re-checks order to be independent of
// provider behavior.
func (s *Synthesizer) selectContext(matches []vectorstore.Match) []vectorstore.Match {
	eligible := make([]vectorstore.Match, 0, len(matches))
	for _, m := range matches {
		if m.Score >= s.minScore {
			eligible = append(eligible, m)
		}
	}

	for i := 1; i < len(eligible); i++ {
		for j := i; j > 0 && eligible[j].Score > eligible[j-1].Score; j-- {
			eligible[j], eligible[j-1] = eligible[j-1], eligible[j]
		}
	}

	if len(eligible) > s.maxMatches {
		eligible = eligible[:s.maxMatches]
	}
	return eligible
}

func (s *Synthesizer) systemPrompt() string {
	return fmt.Sprintf(`You are a personal memory assistant answering a question for its owner.

Rules:
- Use the retrieved memories below ONLY when they are clearly relevant to the question. If none are relevant, or none were retrieved, answer from general knowledge instead.
- Never blend unrelated retrieved memories into one answer.
- Resolve relative time expressions against the current time: %s.
- Reply in the same language as the question.
- Be concise and direct.`, s.now().Format("2006-01-02T15:04:05 (Monday)"))
}

// buildUserPrompt renders the retrieved context and the question.
func buildUserPrompt(question string, matches []vectorstore.Match) string {
	var b strings.Builder

	if len(matches) == 0 {
		b.WriteString("Retrieved memories: none.\n\n")
	} else {
		b.WriteString("Retrieved memories:\n")
		for i, m := range matches {
			description := m.Metadata["description"]
			timestamp := m.Metadata["timestamp"]
			if timestamp != "" {
				fmt.Fprintf(&b, "%d. [%s] %s\n", i+1, timestamp, description)
			} else {
				fmt.Fprintf(&b, "%d. %s\n", i+1, description)
			}
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "Question: %s", question)
	return b.String()
}
