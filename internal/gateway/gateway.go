// Package gateway registers time entries with the remote time tracker
package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ayoisaiah/tally/internal/apperr"
)

// Entry is a time entry to create or extend.
type Entry struct {
	Start       time.Time
	End         time.Time
	Description string
	Project     string
	Tags        []string
}

// Gateway creates and extends remote time entries.
type Gateway interface {
	// Register creates an entry and returns its remote id
	Register(ctx context.Context, e Entry) (string, error)
	// Extend moves the end of an existing entry to e.End. e.Start must be
	// the start of the remote entry.
	Extend(ctx context.Context, entryID string, e Entry) error
}

// ErrorKind classifies a registration failure.
type ErrorKind string

const (
	KindNetwork        ErrorKind = "network"
	KindAuth           ErrorKind = "auth"
	KindInvalidProject ErrorKind = "invalid_project"
)

var errRegistration = &apperr.Error{
	Kind:    apperr.KindRegistration,
	Message: "registration failed",
}

// RegistrationError is returned for every failed gateway call.
type RegistrationError struct {
	Err    error
	Kind   ErrorKind
	Status int
}

func newError(kind ErrorKind, status int, cause error) *RegistrationError {
	return &RegistrationError{
		Kind:   kind,
		Status: status,
		Err:    errRegistration.Wrap(cause),
	}
}

func (e *RegistrationError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s error (status %d): %v", e.Kind, e.Status, e.Err)
	}

	return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
}

func (e *RegistrationError) Unwrap() error {
	return e.Err
}

// KindOf returns the registration error kind of err, or "" if err is not a
// RegistrationError.
func KindOf(err error) ErrorKind {
	var re *RegistrationError
	if errors.As(err, &re) {
		return re.Kind
	}

	return ""
}
