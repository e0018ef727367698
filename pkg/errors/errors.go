package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Status  int         `json:"status"`
	Details interface{} `json:"details,omitempty"`
	Err     error       `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is reports whether target carries the same code, so clones and wraps of a
// predefined error still match it with errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Predefined errors for common scenarios.
var (
	ErrNotFound     = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrForbidden    = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrUnauthorized = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrValidation   = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal     = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")

	// Input errors.
	ErrMalformedDate          = New("MALFORMED_DATE", http.StatusBadRequest, "malformed date")
	ErrMalformedTime          = New("MALFORMED_TIME", http.StatusBadRequest, "malformed time")
	ErrInvalidRecurrenceRange = New("INVALID_RECURRENCE_RANGE", http.StatusBadRequest, "recurrence end date precedes start date")
	ErrRecurrenceTooLong      = New("RECURRENCE_TOO_LONG", http.StatusBadRequest, "recurrence produces too many occurrences")

	// Business rule errors.
	ErrConflict               = New("CONFLICT", http.StatusConflict, "schedule conflicts with existing bookings")
	ErrAlreadyStarted         = New("ALREADY_STARTED", http.StatusConflict, "event has already started")
	ErrPastEndDateEdit        = New("PAST_END_DATE_EDIT", http.StatusConflict, "event is past its end date")
	ErrAmountEditWindowClosed = New("AMOUNT_EDIT_WINDOW_CLOSED", http.StatusConflict, "amount can no longer be edited")
	ErrAlreadyPaid            = New("ALREADY_PAID", http.StatusConflict, "already paid")
	ErrInvalidTransition      = New("INVALID_TRANSITION", http.StatusConflict, "invalid status transition")

	ErrCacheMiss = New("CACHE_MISS", http.StatusNotFound, "cache miss")
)

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}

// WithDetails returns a copy of the error carrying structured details.
func WithDetails(err *Error, message string, details interface{}) *Error {
	clone := Clone(err, message)
	if clone != nil {
		clone.Details = details
	}
	return clone
}
