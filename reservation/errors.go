/*
errors.go - Error taxonomy for reservation admission

PURPOSE:
  Every rejected operation fails with a typed error that carries a readable
  message and maps to an HTTP status, so clients can tell "already booked"
  from "too late" from "invalid selection".

ERROR KINDS:
  NotFound      user, menu, variation or reservation missing        404
  BusinessRule  past date, inactive menu/user, cutoff, mismatch     400
  Conflict      second ACTIVE reservation for the same user/date    409
  Operational   collaborator failure, batch-level failure           500

USAGE:
  Stores wrap unique violations with ErrConflict:

    return fmt.Errorf("insert reservation: %w", reservation.ErrConflict)

  Callers branch with errors.Is or the helpers below:

    if reservation.IsConflict(err) { ... }

SEE ALSO:
  - admission.go: Raises these errors
  - api/handlers.go: Maps them to HTTP responses
*/
package reservation

import (
	"errors"
	"fmt"
	"net/http"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNotFound is returned when a referenced record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrBusinessRule is returned when a precondition of the reservation
	// lifecycle is violated.
	ErrBusinessRule = errors.New("business rule violation")

	// ErrConflict is returned when a user already holds an ACTIVE reservation
	// for the date. Stores return it for unique index violations.
	ErrConflict = errors.New("conflict")

	// ErrOperational is returned when a collaborator fails.
	ErrOperational = errors.New("operational failure")
)

// =============================================================================
// STRUCTURED ERROR
// =============================================================================

// Kind classifies an Error.
type Kind int

const (
	KindNotFound Kind = iota + 1
	KindBusinessRule
	KindConflict
	KindOperational
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindBusinessRule:
		return "business_rule"
	case KindConflict:
		return "conflict"
	default:
		return "operational"
	}
}

// StatusCode is the HTTP status surfaced for this kind.
func (k Kind) StatusCode() int {
	switch k {
	case KindNotFound:
		return http.StatusNotFound
	case KindBusinessRule:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (k Kind) sentinel() error {
	switch k {
	case KindNotFound:
		return ErrNotFound
	case KindBusinessRule:
		return ErrBusinessRule
	case KindConflict:
		return ErrConflict
	default:
		return ErrOperational
	}
}

// Error is a domain error with a kind and a client-facing message.
type Error struct {
	Kind    Kind
	Message string
	Err     error // underlying cause, optional
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap exposes both the kind sentinel and the cause to errors.Is/As.
func (e *Error) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind.sentinel(), e.Err}
	}
	return []error{e.Kind.sentinel()}
}

// StatusCode returns the HTTP status for the error kind.
func (e *Error) StatusCode() int { return e.Kind.StatusCode() }

func NotFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func BusinessRule(format string, args ...any) *Error {
	return &Error{Kind: KindBusinessRule, Message: fmt.Sprintf(format, args...)}
}

func Conflict(format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

// Operational wraps a collaborator failure.
func Operational(err error, format string, args ...any) *Error {
	return &Error{Kind: KindOperational, Message: fmt.Sprintf(format, args...), Err: err}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

func IsNotFound(err error) bool     { return errors.Is(err, ErrNotFound) }
func IsBusinessRule(err error) bool { return errors.Is(err, ErrBusinessRule) }
func IsConflict(err error) bool     { return errors.Is(err, ErrConflict) }
func IsOperational(err error) bool  { return errors.Is(err, ErrOperational) }

// IsClientError returns true if the error is due to the request rather than
// the system.
func IsClientError(err error) bool {
	return IsNotFound(err) || IsBusinessRule(err) || IsConflict(err)
}

// StatusCode maps any error to an HTTP status. Unclassified errors are 500.
func StatusCode(err error) int {
	var de *Error
	if errors.As(err, &de) {
		return de.StatusCode()
	}
	switch {
	case IsNotFound(err):
		return http.StatusNotFound
	case IsConflict(err):
		return http.StatusConflict
	case IsBusinessRule(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
