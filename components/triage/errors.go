package triage

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies failures surfaced to callers.
type ErrorKind string

const (
	KindInvalidCredential ErrorKind = "invalid_credential"
	KindNetwork           ErrorKind = "network"
	KindPopupClosed       ErrorKind = "popup_closed"
	KindValidation        ErrorKind = "validation"
	KindPartialFailure    ErrorKind = "partial_failure"
	KindSubmissionFailed  ErrorKind = "submission_failed"
	KindNotAuthenticated  ErrorKind = "not_authenticated"
)

// Sentinel errors for errors.Is matching against a kind.
var (
	ErrInvalidCredential = &Error{Kind: KindInvalidCredential}
	ErrNetwork           = &Error{Kind: KindNetwork}
	ErrPopupClosed       = &Error{Kind: KindPopupClosed}
	ErrValidation        = &Error{Kind: KindValidation}
	ErrPartialFailure    = &Error{Kind: KindPartialFailure}
	ErrSubmissionFailed  = &Error{Kind: KindSubmissionFailed}
	ErrNotAuthenticated  = &Error{Kind: KindNotAuthenticated}
)

// Error is a classified failure raised by a triage operation.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

// NewError builds a classified error for op.
func NewError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	msg := "triage"
	if e.Op != "" {
		msg += ": " + e.Op
	}
	msg += ": " + string(e.Kind)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches bare sentinel errors by kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Op != "" || t.Err != nil {
		return e == t
	}
	return e.Kind == t.Kind
}

// KindOf extracts the kind of the outermost classified error in err's chain.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}

// classify tags an unclassified collaborator error as fallback. Errors that
// already carry a kind keep it.
func classify(op string, err error, fallback ErrorKind) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		if e.Op != "" {
			return err
		}
		if err == error(e) {
			return &Error{Kind: e.Kind, Op: op, Err: e.Err}
		}
		return &Error{Kind: e.Kind, Op: op, Err: err}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindNetwork, Op: op, Err: err}
	}
	return &Error{Kind: fallback, Op: op, Err: err}
}

func validationError(op, format string, args ...any) error {
	return &Error{Kind: KindValidation, Op: op, Err: fmt.Errorf(format, args...)}
}
