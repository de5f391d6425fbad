package models

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"
)

// Sample is a single observation of the foreground window. Idle samples mark
// periods without user input so they can be told apart from missing data.
type Sample struct {
	Time        time.Time `json:"time"`
	Title       string    `json:"title"`
	ProcessHint string    `json:"process_hint,omitempty"`
	Idle        bool      `json:"idle,omitempty"`
}

// CalendarEvent is an event fetched from a remote calendar. It is a hint for
// classification, never an authority.
type CalendarEvent struct {
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	ID          string    `json:"id"`
	CalendarID  string    `json:"calendar_id,omitempty"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
}

// Overlaps reports whether the event intersects [start, end).
func (e *CalendarEvent) Overlaps(start, end time.Time) bool {
	return e.Start.Before(end) && e.End.After(start)
}

// SegmentKind distinguishes classifiable activity from inactivity and from
// spans with no collected data.
type SegmentKind string

const (
	KindActive SegmentKind = "active"
	KindIdle   SegmentKind = "idle"
	KindGap    SegmentKind = "gap"
)

// Segment is a contiguous span of time treated as one activity. It borrows
// the samples it was built from.
type Segment struct {
	Start    time.Time        `json:"start"`
	End      time.Time        `json:"end"`
	Kind     SegmentKind      `json:"kind"`
	Title    string           `json:"title"`
	TitleKey string           `json:"title_key"`
	Titles   []string         `json:"titles"`
	Samples  []*Sample        `json:"-"`
	Events   []*CalendarEvent `json:"events,omitempty"`
}

// Duration returns the length of the segment.
func (s *Segment) Duration() time.Duration {
	return s.End.Sub(s.Start)
}

// Classifiable reports whether the segment should be sent to a classifier.
func (s *Segment) Classifiable() bool {
	return s.Kind == KindActive
}

// Key returns the stable identity of the segment: its time range plus a hash
// of its content. The same samples over the same range always produce the
// same key.
func (s *Segment) Key() string {
	h := sha256.New()

	h.Write([]byte(s.Kind))

	for _, sample := range s.Samples {
		h.Write([]byte{0})
		h.Write([]byte(strconv.FormatInt(sample.Time.UnixNano(), 10)))
		h.Write([]byte{0})
		h.Write([]byte(sample.Title))

		if sample.Idle {
			h.Write([]byte{1})
		}
	}

	sum := hex.EncodeToString(h.Sum(nil))

	return s.Start.UTC().Format(time.RFC3339) + "/" +
		s.End.UTC().Format(time.RFC3339) + "#" + sum[:16]
}

// Source identifies which classifier produced a candidate.
type Source string

const (
	SourceOnline  Source = "online"
	SourceOffline Source = "offline"
	SourceUser    Source = "user"
)

// Candidate is a classifier's guess for a segment.
type Candidate struct {
	Label      string  `json:"label"`
	Project    string  `json:"project,omitempty"`
	Source     Source  `json:"source"`
	Confidence float64 `json:"confidence"`
}

// OutcomeKind is the terminal state of a segment within a cycle.
type OutcomeKind string

const (
	AutoRegistered      OutcomeKind = "auto_registered"
	PendingConfirmation OutcomeKind = "pending_confirmation"
	Skipped             OutcomeKind = "skipped"
)

// SkipReason explains a Skipped outcome.
type SkipReason string

const (
	ReasonIdle               SkipReason = "idle"
	ReasonNoData             SkipReason = "no_data"
	ReasonExcludedProject    SkipReason = "excluded_project"
	ReasonRegistrationFailed SkipReason = "registration_failed"
	ReasonPrivate            SkipReason = "private"
	ReasonExpired            SkipReason = "expired"
	ReasonDismissed          SkipReason = "dismissed"
)

// Outcome is the result of processing one segment.
type Outcome struct {
	Kind       OutcomeKind `json:"kind"`
	Key        string      `json:"key"`
	Start      time.Time   `json:"start"`
	End        time.Time   `json:"end"`
	Title      string      `json:"title,omitempty"`
	EntryID    string      `json:"entry_id,omitempty"`
	Label      string      `json:"label,omitempty"`
	Project    string      `json:"project,omitempty"`
	Reason     SkipReason  `json:"reason,omitempty"`
	Detail     string      `json:"detail,omitempty"`
	Candidates []Candidate `json:"candidates,omitempty"`
	// Existing is set when an AutoRegistered outcome was answered from a
	// stored RegistrationRecord without a remote call.
	Existing bool `json:"existing,omitempty"`
}

// RegistrationRecord is durable proof that a segment has been registered
// with the time tracker.
type RegistrationRecord struct {
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	CreatedAt time.Time `json:"created_at"`
	Key       string    `json:"key"`
	EntryID   string    `json:"entry_id"`
	Label     string    `json:"label"`
	Project   string    `json:"project,omitempty"`
	TitleKey  string    `json:"title_key"`
	Source    Source    `json:"source"`
	// EntryStart is the start of the remote entry, which is earlier than
	// Start when the entry was extended across segments.
	EntryStart time.Time `json:"entry_start"`
	// Continued is true when the segment extended an earlier entry instead of
	// creating a new one.
	Continued bool `json:"continued,omitempty"`
}

// PendingSegment is a segment waiting for the user to pick a label.
type PendingSegment struct {
	Start      time.Time        `json:"start"`
	End        time.Time        `json:"end"`
	CreatedAt  time.Time        `json:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at"`
	Key        string           `json:"key"`
	Title      string           `json:"title"`
	TitleKey   string           `json:"title_key"`
	Titles     []string         `json:"titles"`
	Events     []*CalendarEvent `json:"events,omitempty"`
	Candidates []Candidate      `json:"candidates"`
}

// Segment rebuilds the sample-less view of the pending segment used for
// re-scoring.
func (p *PendingSegment) Segment() *Segment {
	return &Segment{
		Start:    p.Start,
		End:      p.End,
		Kind:     KindActive,
		Title:    p.Title,
		TitleKey: p.TitleKey,
		Titles:   p.Titles,
		Events:   p.Events,
	}
}
