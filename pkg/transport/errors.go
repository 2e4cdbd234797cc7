// Package transport defines the shared failure classes for outbound HTTP
// calls.
//
// Every hand-rolled HTTP client in the pipeline wraps its failures with one
// of these sentinels so callers can tell a network or status-code fault
// apart from a malformed response body. Both classes are retried
// identically; the distinction exists for messaging, not for retry policy.
package transport

import "errors"

// ErrTransport indicates a network failure or a non-2xx status code.
var ErrTransport = errors.New("transport failure")

// ErrDecoding indicates a response body that could not be decoded. Retried
// like a transport fault, since a transient server hiccup can also produce
// a malformed body.
var ErrDecoding = errors.New("response decoding failed")
