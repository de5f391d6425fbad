// Package store persists samples, calendar events, registration records and
// pending segments in a BoltDB database
package store

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"io/fs"
	"time"

	bolt "go.etcd.io/bbolt"
	berrors "go.etcd.io/bbolt/errors"

	"github.com/ayoisaiah/tally/internal/models"
	"github.com/ayoisaiah/tally/internal/timeutil"
)

const (
	sampleBucket    = "samples"
	eventBucket     = "events"
	eventIDBucket   = "events_by_id"
	recordBucket    = "records"
	recordEndBucket = "records_by_end"
	pendingBucket   = "pending"
	metaBucket      = "meta"
)

var (
	keyWatermark = []byte("watermark")
	keySchema    = []byte("schema_version")

	// every time key starts with a fixed-width timestamp of this length
	tsKeyLen = len(timeutil.ToKey(time.Time{}))
)

// Client is a BoltDB database client.
type Client struct {
	*bolt.DB
	lookback time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithLookback sets how much data before the watermark must survive pruning.
func WithLookback(d time.Duration) Option {
	return func(c *Client) {
		c.lookback = d
	}
}

func sampleKey(t time.Time, seq uint64) []byte {
	k := timeutil.ToKey(t)

	return binary.BigEndian.AppendUint64(k, seq)
}

func eventKey(ev *models.CalendarEvent) []byte {
	k := timeutil.ToKey(ev.Start)
	k = append(k, '/')

	return append(k, eventIndexKey(ev)...)
}

func eventIndexKey(ev *models.CalendarEvent) []byte {
	return []byte(ev.CalendarID + "\x00" + ev.ID)
}

func recordEndKey(rec *models.RegistrationRecord) []byte {
	k := timeutil.ToKey(rec.End)

	return append(k, rec.Key...)
}

// tsPrefix returns the timestamp portion of a time key.
func tsPrefix(k []byte) []byte {
	if len(k) < tsKeyLen {
		return k
	}

	return k[:tsKeyLen]
}

func decode[T any](bucket string, k, v []byte) (*T, error) {
	var out T

	if err := json.Unmarshal(v, &out); err != nil {
		return nil, errCorruptValue.Fmt(bucket, k).Wrap(err)
	}

	return &out, nil
}

func (c *Client) AppendSample(sample *models.Sample) error {
	value, err := json.Marshal(sample)
	if err == nil {
		err = c.Update(func(tx *bolt.Tx) error {
			b := tx.Bucket([]byte(sampleBucket))

			seq, err := b.NextSequence()
			if err != nil {
				return err
			}

			return b.Put(sampleKey(sample.Time, seq), value)
		})
	}

	if err != nil {
		return errWriteSample.Fmt(sample.Time.Format(time.RFC3339)).Wrap(err)
	}

	return nil
}

func (c *Client) AppendEvents(
	window timeutil.Window,
	events []*models.CalendarEvent,
) error {
	err := c.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(eventBucket))
		idx := tx.Bucket([]byte(eventIDBucket))

		var stale [][]byte

		maxK := timeutil.ToKey(window.End)
		cur := b.Cursor()

		for k, v := cur.First(); k != nil && bytes.Compare(tsPrefix(k), maxK) < 0; k, v = cur.Next() {
			ev, err := decode[models.CalendarEvent](eventBucket, k, v)
			if err != nil {
				return err
			}

			if ev.End.After(window.Start) {
				stale = append(stale, bytes.Clone(k))

				if err := idx.Delete(eventIndexKey(ev)); err != nil {
					return err
				}
			}
		}

		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
		}

		for _, ev := range events {
			ik := eventIndexKey(ev)

			// the same event may have moved since it was last stored
			if old := idx.Get(ik); old != nil {
				if err := b.Delete(bytes.Clone(old)); err != nil {
					return err
				}
			}

			value, err := json.Marshal(ev)
			if err != nil {
				return err
			}

			k := eventKey(ev)

			if err := b.Put(k, value); err != nil {
				return err
			}

			if err := idx.Put(ik, k); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return errWriteEvents.Fmt(window).Wrap(err)
	}

	return nil
}

func (c *Client) Query(
	start, end time.Time,
) ([]*models.Sample, []*models.CalendarEvent, error) {
	var (
		samples []*models.Sample
		events  []*models.CalendarEvent
	)

	minK := timeutil.ToKey(start)
	maxK := timeutil.ToKey(end)

	err := c.View(func(tx *bolt.Tx) error {
		cur := tx.Bucket([]byte(sampleBucket)).Cursor()

		for k, v := cur.Seek(minK); k != nil && bytes.Compare(tsPrefix(k), maxK) <= 0; k, v = cur.Next() {
			s, err := decode[models.Sample](sampleBucket, k, v)
			if err != nil {
				return err
			}

			samples = append(samples, s)
		}

		cur = tx.Bucket([]byte(eventBucket)).Cursor()

		for k, v := cur.First(); k != nil && bytes.Compare(tsPrefix(k), maxK) <= 0; k, v = cur.Next() {
			ev, err := decode[models.CalendarEvent](eventBucket, k, v)
			if err != nil {
				return err
			}

			if ev.End.After(start) {
				events = append(events, ev)
			}
		}

		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	return samples, events, nil
}

func (c *Client) Prune(before time.Time) (int, error) {
	wm, err := c.Watermark()
	if err != nil {
		return 0, err
	}

	// nothing has been analysed yet
	if wm.IsZero() {
		return 0, nil
	}

	cutoff := before
	if guard := wm.Add(-c.lookback); guard.Before(cutoff) {
		cutoff = guard
	}

	var deleted int

	err = c.Update(func(tx *bolt.Tx) error {
		maxK := timeutil.ToKey(cutoff)

		b := tx.Bucket([]byte(sampleBucket))
		cur := b.Cursor()

		var stale [][]byte

		for k, _ := cur.First(); k != nil && bytes.Compare(tsPrefix(k), maxK) < 0; k, _ = cur.Next() {
			stale = append(stale, bytes.Clone(k))
		}

		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
		}

		deleted += len(stale)
		stale = stale[:0]

		b = tx.Bucket([]byte(eventBucket))
		idx := tx.Bucket([]byte(eventIDBucket))
		cur = b.Cursor()

		for k, v := cur.First(); k != nil && bytes.Compare(tsPrefix(k), maxK) < 0; k, v = cur.Next() {
			ev, err := decode[models.CalendarEvent](eventBucket, k, v)
			if err != nil {
				return err
			}

			if ev.End.After(cutoff) {
				continue
			}

			stale = append(stale, bytes.Clone(k))

			if err := idx.Delete(eventIndexKey(ev)); err != nil {
				return err
			}
		}

		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
		}

		deleted += len(stale)

		return nil
	})

	return deleted, err
}

func (c *Client) Record(key string) (*models.RegistrationRecord, error) {
	var rec *models.RegistrationRecord

	err := c.View(func(tx *bolt.Tx) error {
		v := tx.Bucket([]byte(recordBucket)).Get([]byte(key))
		if v == nil {
			return nil
		}

		var err error

		rec, err = decode[models.RegistrationRecord](recordBucket, []byte(key), v)

		return err
	})

	return rec, err
}

func (c *Client) PutRecord(
	rec *models.RegistrationRecord,
) (*models.RegistrationRecord, bool, error) {
	var existing *models.RegistrationRecord

	err := c.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(recordBucket))
		k := []byte(rec.Key)

		if v := b.Get(k); v != nil {
			var err error

			existing, err = decode[models.RegistrationRecord](recordBucket, k, v)

			return err
		}

		value, err := json.Marshal(rec)
		if err != nil {
			return err
		}

		if err := b.Put(k, value); err != nil {
			return err
		}

		return tx.Bucket([]byte(recordEndBucket)).Put(recordEndKey(rec), k)
	})
	if err != nil {
		return nil, false, err
	}

	if existing != nil {
		return existing, false, nil
	}

	return rec, true, nil
}

func (c *Client) RecordEndingNear(
	t time.Time,
	tolerance time.Duration,
) (*models.RegistrationRecord, error) {
	var (
		best     *models.RegistrationRecord
		bestDiff time.Duration
	)

	minK := timeutil.ToKey(t.Add(-tolerance))
	maxK := timeutil.ToKey(t.Add(tolerance))

	err := c.View(func(tx *bolt.Tx) error {
		records := tx.Bucket([]byte(recordBucket))
		cur := tx.Bucket([]byte(recordEndBucket)).Cursor()

		for k, v := cur.Seek(minK); k != nil && bytes.Compare(tsPrefix(k), maxK) <= 0; k, v = cur.Next() {
			raw := records.Get(v)
			if raw == nil {
				continue
			}

			rec, err := decode[models.RegistrationRecord](recordBucket, v, raw)
			if err != nil {
				return err
			}

			diff := rec.End.Sub(t).Abs()

			// on ties the later key wins, which is the latest extension
			if best == nil || diff <= bestDiff {
				best, bestDiff = rec, diff
			}
		}

		return nil
	})

	return best, err
}

func (c *Client) Records(
	start, end time.Time,
) ([]*models.RegistrationRecord, error) {
	var out []*models.RegistrationRecord

	minK := timeutil.ToKey(start)
	maxK := timeutil.ToKey(end)

	err := c.View(func(tx *bolt.Tx) error {
		records := tx.Bucket([]byte(recordBucket))
		cur := tx.Bucket([]byte(recordEndBucket)).Cursor()

		for k, v := cur.Seek(minK); k != nil && bytes.Compare(tsPrefix(k), maxK) <= 0; k, v = cur.Next() {
			raw := records.Get(v)
			if raw == nil {
				continue
			}

			rec, err := decode[models.RegistrationRecord](recordBucket, v, raw)
			if err != nil {
				return err
			}

			out = append(out, rec)
		}

		return nil
	})

	return out, err
}

func (c *Client) PutPending(p *models.PendingSegment) error {
	value, err := json.Marshal(p)
	if err != nil {
		return err
	}

	return c.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(pendingBucket)).Put([]byte(p.Key), value)
	})
}

func (c *Client) Pending(key string) (*models.PendingSegment, error) {
	var p *models.PendingSegment

	err := c.View(func(tx *bolt.Tx) error {
		v := tx.Bucket([]byte(pendingBucket)).Get([]byte(key))
		if v == nil {
			return nil
		}

		var err error

		p, err = decode[models.PendingSegment](pendingBucket, []byte(key), v)

		return err
	})

	return p, err
}

func (c *Client) ListPending() ([]*models.PendingSegment, error) {
	var out []*models.PendingSegment

	err := c.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(pendingBucket)).ForEach(func(k, v []byte) error {
			p, err := decode[models.PendingSegment](pendingBucket, k, v)
			if err != nil {
				return err
			}

			out = append(out, p)

			return nil
		})
	})

	return out, err
}

func (c *Client) DeletePending(key string) error {
	return c.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(pendingBucket)).Delete([]byte(key))
	})
}

func (c *Client) Watermark() (time.Time, error) {
	var wm time.Time

	err := c.View(func(tx *bolt.Tx) error {
		v := tx.Bucket([]byte(metaBucket)).Get(keyWatermark)
		if v == nil {
			return nil
		}

		var err error

		wm, err = timeutil.FromKey(v)

		return err
	})

	return wm, err
}

// SetWatermark moves the watermark forward. Earlier times are ignored.
func (c *Client) SetWatermark(t time.Time) error {
	return c.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(metaBucket))

		if v := b.Get(keyWatermark); v != nil {
			current, err := timeutil.FromKey(v)
			if err == nil && !t.After(current) {
				return nil
			}
		}

		return b.Put(keyWatermark, timeutil.ToKey(t))
	})
}

// openDB creates or opens a database and locks it.
func openDB(pathToDB string) (*bolt.DB, error) {
	var fileMode fs.FileMode = 0o600

	db, err := bolt.Open(
		pathToDB,
		fileMode,
		&bolt.Options{Timeout: 1 * time.Second},
	)
	if err != nil {
		if errors.Is(err, berrors.ErrTimeout) {
			return nil, errTallyRunning
		}

		return nil, err
	}

	return db, nil
}

// NewClient returns a wrapper to a BoltDB connection. The schema is migrated
// to the current version before the client is returned.
func NewClient(dbPath string, opts ...Option) (*Client, error) {
	db, err := openDB(dbPath)
	if err != nil {
		return nil, err
	}

	c := &Client{DB: db}

	for _, opt := range opts {
		opt(c)
	}

	if err := db.Update(c.migrate); err != nil {
		_ = db.Close()
		return nil, err
	}

	return c, nil
}
