package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Error codes for categorizing errors
const (
	ErrConfig   = "CONFIG"
	ErrProvider = "PROVIDER"
	ErrEnrich   = "ENRICH"
	ErrTick     = "TICK"
	ErrSend     = "SEND"
)

// Error is a structured error carrying a code, a message, an optional
// suggestion for the operator and the underlying cause.
type Error struct {
	Code       string
	Message    string
	Suggestion string
	Cause      error
}

// New creates a new structured error with the given code, message, and suggestion.
func New(code, message, suggestion string) *Error {
	return &Error{
		Code:       code,
		Message:    message,
		Suggestion: suggestion,
	}
}

// WrapWithCode wraps an existing error with a specific code, message, and suggestion.
func WrapWithCode(err error, code, message, suggestion string) *Error {
	return &Error{
		Code:       code,
		Message:    message,
		Suggestion: suggestion,
		Cause:      err,
	}
}

// Error renders a single line so it reads well inside log fields.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)

	if e.Cause != nil {
		b.WriteString(fmt.Sprintf(": %s", e.Cause.Error()))
	}

	if e.Suggestion != "" {
		b.WriteString(fmt.Sprintf(" (%s)", e.Suggestion))
	}

	return b.String()
}

// Unwrap returns the underlying cause for use with errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// IsCode checks if an error is a structured Error with the given code.
func IsCode(err error, code string) bool {
	if err == nil {
		return false
	}
	var sErr *Error
	if errors.As(err, &sErr) {
		return sErr.Code == code
	}
	return false
}

// Is and As re-export the standard helpers so callers importing this
// package under the name errors keep access to them.
var (
	Is = errors.Is
	As = errors.As
)
