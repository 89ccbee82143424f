// Package errkind classifies pipeline failures into the taxonomy the
// orchestrator, retry engine, and run report all key off of. Is and KindOf
// locate the *Error anywhere in a wrapped chain (via errors.As) and compare
// its Kind.
package errkind

import "errors"

// Kind identifies a class of failure from the error taxonomy.
type Kind string

// Recognized failure kinds.
const (
	ConfigInvalid      Kind = "config_invalid"
	IOUnavailable      Kind = "io_unavailable"
	NetworkTransient   Kind = "network_transient"
	NetworkExhausted   Kind = "network_exhausted"
	RateLimited        Kind = "rate_limited"
	RateLimitedPersist Kind = "rate_limited_persistent"
	CircuitOpen        Kind = "circuit_open"
	ParseIncomplete    Kind = "parse_incomplete"
	SchemaViolation    Kind = "schema_violation"
	Duplicate          Kind = "duplicate"
	Cancelled          Kind = "cancelled"
	CorruptBlob        Kind = "corrupt_blob"
	Timeout            Kind = "timeout"
	ClientError        Kind = "client_error"
	ServerError        Kind = "server_error"
	Fatal              Kind = "fatal"
)

// Error wraps an underlying cause with a classification kind, following the
// project's convention of explicit result tagging instead of exception-style
// type switches.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Op + ": " + string(e.Kind)
	}
	return e.Op + ": " + string(e.Kind) + ": " + e.Err.Error()
}

// Unwrap exposes the underlying cause for errors.Is/As.
func (e *Error) Unwrap() error { return e.Err }

// New builds a classified Error.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Is reports whether err carries the given classification.
func Is(err error, kind Kind) bool {
	var ke *Error
	if errors.As(err, &ke) {
		return ke.Kind == kind
	}
	return false
}

// KindOf extracts the classification from err, returning ("", false) if err
// was never tagged.
func KindOf(err error) (Kind, bool) {
	var ke *Error
	if errors.As(err, &ke) {
		return ke.Kind, true
	}
	return "", false
}
