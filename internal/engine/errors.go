package engine

import "github.com/ayoisaiah/tally/internal/apperr"

var (
	errQuery = &apperr.Error{
		Kind:    apperr.KindCollection,
		Message: "unable to read samples for %s",
	}

	errStore = &apperr.Error{
		Kind:    apperr.KindCollection,
		Message: "unable to update the store",
	}

	// ErrCycleRunning is returned when an analysis cycle is requested while
	// another one is still running.
	ErrCycleRunning = &apperr.Error{
		Message: "an analysis cycle is already running",
	}

	// ErrPendingNotFound is returned when confirming or dismissing a
	// segment that is not awaiting confirmation.
	ErrPendingNotFound = &apperr.Error{
		Message: "no pending segment with key %q",
	}

	errEmptyLabel = &apperr.Error{
		Message: "a label is required to confirm a segment",
	}

	errRecordLost = &apperr.Error{
		Kind:    apperr.KindRegistration,
		Message: "entry %s was created but its record could not be saved",
	}
)
