package store

import "github.com/ayoisaiah/tally/internal/apperr"

var (
	errTallyRunning = &apperr.Error{
		Message: "is tally already running? Only one instance can open the database at a time",
	}

	errWriteSample = &apperr.Error{
		Kind:    apperr.KindCollection,
		Message: "failed to store sample taken at %s",
	}

	errWriteEvents = &apperr.Error{
		Kind:    apperr.KindCollection,
		Message: "failed to store calendar events for %s",
	}

	errCorruptValue = &apperr.Error{
		Message: "corrupt value in bucket %s at key %q",
	}

	errUnknownSchema = &apperr.Error{
		Message: "database schema version %d is newer than this build supports (%d)",
	}
)

// ErrTallyRunning is returned by NewClient when another process holds the
// database lock.
var ErrTallyRunning = errTallyRunning
