package workflowerrors

import (
	"fmt"
	"reflect"

	goerrors "github.com/go-errors/errors"
)

// Error is the serializable representation of an error raised by a workflow
// or activity. It crosses the backend boundary as part of history event
// attributes.
type Error struct {
	Type       string `json:"type,omitempty"`
	Message    string `json:"message,omitempty"`
	Stacktrace string `json:"stacktrace,omitempty"`

	// Permanent errors are not retried
	Permanent bool `json:"permanent,omitempty"`
}

var _ error = (*Error)(nil)

func (e *Error) Error() string {
	return e.Message
}

// FromError wraps the given error so it can be persisted with a history event.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}

	if e, ok := err.(*Error); ok {
		return e
	}

	return &Error{
		Type:    errType(err),
		Message: err.Error(),
	}
}

// NewPermanentError wraps the given error and marks it as not retryable.
func NewPermanentError(err error) *Error {
	e := FromError(err)
	e.Permanent = true
	return e
}

// NewPanicError captures a recovered panic value including its stack.
func NewPanicError(v any) *Error {
	err := goerrors.Wrap(v, 2)

	return &Error{
		Type:       "PanicError",
		Message:    fmt.Sprintf("panic: %v", v),
		Stacktrace: err.ErrorStack(),
		Permanent:  true,
	}
}

// ToError converts a persisted error back into an error value. Returns nil
// for a nil input.
func ToError(e *Error) error {
	if e == nil {
		return nil
	}

	return e
}

// CanRetry reports whether the given error may be retried.
func CanRetry(err error) bool {
	if e, ok := err.(*Error); ok {
		return !e.Permanent
	}

	return true
}

func errType(err error) string {
	t := reflect.TypeOf(err)
	if t == nil {
		return ""
	}

	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	return t.Name()
}
