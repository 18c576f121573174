package sync

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies a failed sync
type Kind string

const (
	// KindRetrieval means the catalog could not be fetched
	KindRetrieval Kind = "retrieval"

	// KindParse means the catalog was fetched but is not a readable feed
	KindParse Kind = "parse"

	// KindProcess means the store could not commit the reconciled changes
	KindProcess Kind = "process"

	// KindUnclassified covers unexpected failures, panics included
	KindUnclassified Kind = "unclassified"

	// KindCanceled means the job was cancelled before it started
	KindCanceled Kind = "canceled"
)

// Sentinels matched by errors.Is against an *Error of the same kind
var (
	ErrRetrieval    = errors.New("catalog retrieval failed")
	ErrParse        = errors.New("catalog parse failed")
	ErrProcess      = errors.New("catalog processing failed")
	ErrUnclassified = errors.New("unexpected sync failure")
	ErrCanceled     = errors.New("sync canceled")
)

// Error is a failed sync with its kind
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

// NewError creates an Error of kind wrapping err
func NewError(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func (e *Error) Error() string {
	if e.Err != nil && e.Message == "" {
		return e.Err.Error()
	}
	return e.Message
}

// Unwrap exposes both the kind sentinel and the cause
func (e *Error) Unwrap() []error {
	errs := []error{e.Kind.sentinel()}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

func (k Kind) sentinel() error {
	switch k {
	case KindRetrieval:
		return ErrRetrieval
	case KindParse:
		return ErrParse
	case KindProcess:
		return ErrProcess
	case KindCanceled:
		return ErrCanceled
	default:
		return ErrUnclassified
	}
}

// AsError converts any error into an *Error. Errors that already carry a
// kind keep it; context cancellation maps to KindCanceled and everything
// else is unclassified.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var syncErr *Error
	if errors.As(err, &syncErr) {
		return syncErr
	}
	if errors.Is(err, context.Canceled) {
		return NewError(KindCanceled, "Sync canceled", err)
	}
	return NewError(KindUnclassified, fmt.Sprintf("Unexpected failure: %v", err), err)
}
