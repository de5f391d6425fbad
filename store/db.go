package store

import (
	"time"

	"github.com/ayoisaiah/tally/internal/models"
	"github.com/ayoisaiah/tally/internal/timeutil"
)

// DB is the database storage interface.
type DB interface {
	// AppendSample stores a single observation. Samples with identical
	// timestamps are all kept.
	AppendSample(sample *models.Sample) error
	// AppendEvents replaces the calendar events overlapping window with
	// events
	AppendEvents(window timeutil.Window, events []*models.CalendarEvent) error
	// Query returns the samples within [start, end] and the events that
	// overlap it, both ordered by time
	Query(
		start, end time.Time,
	) ([]*models.Sample, []*models.CalendarEvent, error)
	// Prune deletes samples and events older than before, but never data
	// needed by the next analysis cycle
	Prune(before time.Time) (int, error)

	// Record returns the registration record for a segment key, or nil
	Record(key string) (*models.RegistrationRecord, error)
	// PutRecord stores rec unless a record with the same key exists, in
	// which case the existing record is returned and created is false
	PutRecord(
		rec *models.RegistrationRecord,
	) (existing *models.RegistrationRecord, created bool, err error)
	// RecordEndingNear returns the record whose end is closest to t within
	// tolerance, or nil
	RecordEndingNear(
		t time.Time,
		tolerance time.Duration,
	) (*models.RegistrationRecord, error)
	// Records returns the records that end within [start, end]
	Records(start, end time.Time) ([]*models.RegistrationRecord, error)

	PutPending(p *models.PendingSegment) error
	Pending(key string) (*models.PendingSegment, error)
	ListPending() ([]*models.PendingSegment, error)
	DeletePending(key string) error

	// Watermark returns the end of the last analysed cycle
	Watermark() (time.Time, error)
	SetWatermark(t time.Time) error

	// Close ends the database connection
	Close() error
}
