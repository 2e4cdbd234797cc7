package vectorstore

import "fmt"

// ErrorKind identifies which vector-store operation failed, so the caller
// can present a contextual message and a retry action for that operation.
type ErrorKind string

const (
	// ErrKindUpsert indicates an upsert failed after retry exhaustion.
	ErrKindUpsert ErrorKind = "upsert_failed"

	// ErrKindDelete indicates a delete failed after retry exhaustion.
	ErrKindDelete ErrorKind = "delete_failed"

	// ErrKindQuery indicates a similarity query failed after retry exhaustion.
	ErrKindQuery ErrorKind = "query_failed"

	// ErrKindRefresh indicates a list/fetch refresh failed after retry
	// exhaustion.
	ErrKindRefresh ErrorKind = "refresh_failed"
)

// StoreError wraps a vector-store failure with the operation that caused it.
type StoreError struct {
	// Kind identifies the failed operation.
	Kind ErrorKind

	// Err is the underlying error from the final attempt.
	Err error
}

// Error returns a formatted error message.
func (e *StoreError) Error() string {
	return fmt.Sprintf("vectorstore: %s: %v", e.Kind, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *StoreError) Unwrap() error {
	return e.Err
}

// newStoreError wraps err with the given kind, or returns nil if err is nil.
func newStoreError(kind ErrorKind, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Kind: kind, Err: err}
}
