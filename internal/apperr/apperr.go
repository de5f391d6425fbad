// Package apperr defines the application error type shared by every tally
// package
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error by the part of the system that produced it.
type Kind string

const (
	KindUnknown        Kind = ""
	KindCollection     Kind = "collection"
	KindClassification Kind = "classification"
	KindRegistration   Kind = "registration"
	KindConfiguration  Kind = "configuration"
)

// Error is a user-facing error with an optional underlying cause.
type Error struct {
	Cause   error
	Kind    Kind
	Message string
	// tmpl is the unformatted message of the sentinel this error came from
	tmpl string
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return e.Message
	}

	return e.Message + ": " + e.Cause.Error()
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is the same sentinel, ignoring formatting
// arguments and causes.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}

	return t.Kind == e.Kind && t.template() == e.template()
}

func (e *Error) template() string {
	if e.tmpl != "" {
		return e.tmpl
	}

	return e.Message
}

// Fmt returns a copy of the error with its message formatted with args.
// The copy still matches the original sentinel through errors.Is.
func (e *Error) Fmt(args ...any) *Error {
	return &Error{
		Kind:    e.Kind,
		Message: fmt.Sprintf(e.template(), args...),
		Cause:   e.Cause,
		tmpl:    e.template(),
	}
}

// Wrap returns a copy of the error with err attached as its cause.
func (e *Error) Wrap(err error) *Error {
	return &Error{
		Kind:    e.Kind,
		Message: e.Message,
		Cause:   err,
		tmpl:    e.template(),
	}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}

	return KindUnknown
}
