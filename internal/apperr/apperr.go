// Package apperr defines the classified error type every internal API
// returns (spec.md §7, §9's "error-driven control flow reshaped into
// explicit result values" redesign flag): a fixed taxonomy of Kinds, each
// with a Recoverable flag, converted to the response's
// error.kind/error.recoverable shape only at the outermost
// internal/mcpserver handler.
package apperr

import "fmt"

// Kind is one of the closed set of error classes from spec.md §7.
type Kind string

const (
	KindRetrievalUnavailable Kind = "retrieval_unavailable"
	KindNoRelevantSchema     Kind = "no_relevant_schema"
	KindGenerationFailed     Kind = "generation_failed"
	KindValidationFailFast   Kind = "validation_fail_fast"
	KindSyntaxError          Kind = "syntax_error"
	KindUnknownTable         Kind = "unknown_table"
	KindUnknownColumn        Kind = "unknown_column"
	KindTypeMismatch         Kind = "type_mismatch"
	KindPermissionDenied     Kind = "permission_denied"
	KindConnectionError     Kind = "connection_error"
	KindResourceExhausted    Kind = "resource_exhausted"
	KindServerInternal       Kind = "server_internal"
	KindDeadlineExceeded     Kind = "deadline_exceeded"
	KindExecutionError       Kind = "execution_error"
)

// recoverable records the fixed recoverable flag per Kind, from the
// spec.md §7 error taxonomy table. Only the four repair-loop-eligible
// kinds (syntax_error, unknown_table, unknown_column, type_mismatch) and
// generation_failed (external retry) are recoverable.
var recoverable = map[Kind]bool{
	KindRetrievalUnavailable: false,
	KindNoRelevantSchema:     false,
	KindGenerationFailed:     true,
	KindValidationFailFast:   false,
	KindSyntaxError:          true,
	KindUnknownTable:         true,
	KindUnknownColumn:        true,
	KindTypeMismatch:         true,
	KindPermissionDenied:     false,
	KindConnectionError:      false,
	KindResourceExhausted:    false,
	KindServerInternal:       false,
	KindDeadlineExceeded:     false,
	KindExecutionError:       false,
}

// Recoverable reports whether a Kind drives the repair loop rather than
// surfacing immediately.
func (k Kind) Recoverable() bool { return recoverable[k] }

// Error is the classified error value that flows between internal
// packages. It wraps an optional underlying cause without losing the
// taxonomy Kind along the way.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

// New creates a classified error with no underlying cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap classifies an underlying error under kind, preserving it for
// unwrapping and logging.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Recoverable reports whether this error's Kind drives the repair loop.
func (e *Error) Recoverable() bool { return e.Kind.Recoverable() }

// As extracts the first *Error in err's chain, the idiom callers use to
// inspect Kind without a type switch at every call site.
func As(err error) (*Error, bool) {
	var target *Error
	if err == nil {
		return nil, false
	}
	if e, ok := err.(*Error); ok {
		return e, true
	}
	type unwrapper interface{ Unwrap() error }
	for u, ok := err.(unwrapper); ok; u, ok = err.(unwrapper) {
		err = u.Unwrap()
		if e, ok := err.(*Error); ok {
			return e, true
		}
	}
	return target, false
}

// KindOf classifies any error for reporting purposes, defaulting to
// server_internal when err is not already an *Error.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindServerInternal
}
