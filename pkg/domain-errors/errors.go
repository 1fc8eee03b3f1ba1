// Package derrors defines the code-carrying error type used across the engine.
//
// Every user-visible failure maps to a stable code so transports and UIs can
// present actionable messages ("already decided" vs "not yet eligible") without
// string-matching error text. Services create these; stores return sentinel
// errors (pkg/platform/sentinel) which services translate.
package derrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is a stable, machine-readable error category.
type Code string

const (
	// CodeValidation covers malformed or missing input. Validation failures
	// never touch stored state.
	CodeValidation Code = "validation"

	// CodeInvalidTransition means the requested edge is not legal from the
	// entity's current state.
	CodeInvalidTransition Code = "invalid_transition"

	// CodeAlreadyFinalized means the entity is already in a terminal state.
	CodeAlreadyFinalized Code = "already_finalized"

	// CodeNotFound means the entity id is unknown.
	CodeNotFound Code = "not_found"

	// CodeStorage means the primary persistence write failed; the operation
	// was aborted with no state change.
	CodeStorage Code = "storage"

	// CodeAuditGap means the business transition committed but the audit
	// write failed. Warning-class: the transition stands, the gap must be
	// reconciled.
	CodeAuditGap Code = "audit_gap"

	// CodeUnauthorized means the actor lacks the required capability.
	CodeUnauthorized Code = "unauthorized"

	// CodeUnavailable means an external collaborator (identity registry,
	// cache) could not be reached. Retryable by the caller.
	CodeUnavailable Code = "unavailable"

	// CodeInternal is the fallback for unexpected failures.
	CodeInternal Code = "internal"
)

// Error pairs a stable code with a human-readable message and an optional
// wrapped cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a coded error with no underlying cause.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Newf creates a coded error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error. A nil err yields nil.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, Err: err}
}

// HasCode reports whether err (or anything it wraps) carries the given code.
func HasCode(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// CodeOf extracts the code from err, falling back to CodeInternal.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// ToHTTPStatus maps a code onto the HTTP status the transport should emit.
// CodeAuditGap intentionally maps to 200: the business transition succeeded
// and the response body carries the warning.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeValidation:
		return http.StatusBadRequest
	case CodeInvalidTransition, CodeAlreadyFinalized:
		return http.StatusConflict
	case CodeNotFound:
		return http.StatusNotFound
	case CodeUnauthorized:
		return http.StatusForbidden
	case CodeUnavailable:
		return http.StatusServiceUnavailable
	case CodeAuditGap:
		return http.StatusOK
	case CodeStorage, CodeInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
