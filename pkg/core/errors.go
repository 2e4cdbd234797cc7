// Package core provides the pipeline orchestrator that routes classified
// intents to their flows.
package core

import (
	"errors"
	"fmt"

	"github.com/recallkit/recallkit-go/pkg/transport"
)

// Predefined errors for the pipeline failure taxonomy.
var (
	// ErrAPIKeyNotFound indicates a provider API key is missing from
	// configuration. Fatal precondition, never retried.
	ErrAPIKeyNotFound = errors.New("api key not found")

	// ErrInvalidConfig indicates that the provided configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrTranscriptionFailed indicates speech-to-text failed after retry
	// exhaustion.
	ErrTranscriptionFailed = errors.New("transcription failed")

	// ErrEmbeddingFailed indicates embedding generation failed after retry
	// exhaustion.
	ErrEmbeddingFailed = errors.New("embedding generation failed")

	// ErrClassificationFailed indicates the intent classification call
	// failed after retry exhaustion. Distinct from a classification miss,
	// which is not an error.
	ErrClassificationFailed = errors.New("intent classification failed")

	// ErrSynthesisFailed indicates answer synthesis failed after retry
	// exhaustion.
	ErrSynthesisFailed = errors.New("answer synthesis failed")

	// ErrCollaborator indicates the reminder/calendar store failed. Kept
	// distinct from network faults so the caller can message it as a save
	// failure rather than a connectivity problem.
	ErrCollaborator = errors.New("collaborator store failed")
)

// FlowError wraps a flow failure with the step that caused it.
//
// Step names the exact pipeline step that failed ("embed", "query", ...) so
// the caller can offer a retry action that re-invokes that step, not the
// whole flow.
type FlowError struct {
	// Step is the pipeline step that failed.
	Step string

	// Err is the underlying error.
	Err error
}

// Error returns a formatted error message ("recallkit: <Step>: <Err>").
func (e *FlowError) Error() string {
	return fmt.Sprintf("recallkit: %s: %v", e.Step, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *FlowError) Unwrap() error {
	return e.Err
}

// NewFlowError creates a FlowError, or returns nil if err is nil.
func NewFlowError(step string, err error) error {
	if err == nil {
		return nil
	}
	return &FlowError{Step: step, Err: err}
}

// Describe renders an error as a short title and message pair for the
// presentation layer.
func Describe(err error) (title, message string) {
	var flowErr *FlowError
	cause := err
	if errors.As(err, &flowErr) {
		cause = flowErr.Err
	}

	switch {
	case errors.Is(err, ErrAPIKeyNotFound), errors.Is(err, ErrInvalidConfig):
		title = "Setup needed"
	case errors.Is(err, ErrTranscriptionFailed):
		title = "Couldn't hear that"
	case errors.Is(err, ErrEmbeddingFailed), errors.Is(err, ErrClassificationFailed), errors.Is(err, ErrSynthesisFailed):
		title = "Request failed"
	case errors.Is(err, ErrCollaborator):
		title = "Couldn't save"
	case errors.Is(err, transport.ErrTransport), errors.Is(err, transport.ErrDecoding):
		title = "Connection problem"
	default:
		title = "Something went wrong"
	}
	return title, cause.Error()
}
