package apperr

import (
	stderrors "errors"
	"fmt"

	"github.com/pkg/errors"
)

type Kind string

const (
	Validation   Kind = "VALIDATION_ERROR"
	Conflict     Kind = "CONFLICT_ERROR"
	NotFound     Kind = "NOT_FOUND"
	StoreFailure Kind = "STORE_ERROR"
	ProbeFailure Kind = "PROBE_ERROR"
)

// Error is the error type that crosses package boundaries. Message is safe to
// show to a caller; Err carries the underlying cause for logs only.
type Error struct {
	Kind    Kind           `json:"type"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	Err     error          `json:"-"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func NewValidation(msg string, details map[string]any) *Error {
	return &Error{Kind: Validation, Message: msg, Details: details}
}

func NewConflict(msg string, details map[string]any) *Error {
	return &Error{Kind: Conflict, Message: msg, Details: details}
}

func NewNotFound(msg string, details map[string]any) *Error {
	return &Error{Kind: NotFound, Message: msg, Details: details}
}

// NewStoreFailure wraps a backing-store error. The cause keeps a stack trace
// so zap prints it under errorVerbose.
func NewStoreFailure(op string, err error) *Error {
	return &Error{
		Kind:    StoreFailure,
		Message: "store operation failed",
		Details: map[string]any{"op": op},
		Err:     errors.WithStack(err),
	}
}

func NewProbeFailure(url string, err error) *Error {
	return &Error{
		Kind:    ProbeFailure,
		Message: "probe failed",
		Details: map[string]any{"url": url},
		Err:     err,
	}
}

// KindOf returns the kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func Is(err error, k Kind) bool {
	return err != nil && KindOf(err) == k
}
