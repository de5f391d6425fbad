// Package timeutil provides utility functions and types for working with
// time-related operations.
package timeutil

import (
	"fmt"
	"strings"
	"time"

	dps "github.com/markusmobius/go-dateparser"
)

// keyLayout is fixed width so that the byte order of keys matches time order.
const keyLayout = "2006-01-02T15:04:05.000000000Z"

type Period string

const (
	PeriodAllTime   Period = "all-time"
	PeriodToday     Period = "today"
	PeriodYesterday Period = "yesterday"
	Period7Days     Period = "7days"
	Period14Days    Period = "14days"
	Period30Days    Period = "30days"
)

var Range = map[Period]int{
	PeriodAllTime:   0,
	PeriodToday:     0,
	PeriodYesterday: -1,
	Period7Days:     -6,
	Period14Days:    -13,
	Period30Days:    -29,
}

var PeriodCollection = []Period{
	PeriodAllTime,
	PeriodToday,
	PeriodYesterday,
	Period7Days,
	Period14Days,
	Period30Days,
}

// Window is a half-open time range [Start, End).
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (w Window) String() string {
	return w.Start.Format(time.RFC3339) + " → " + w.End.Format(time.RFC3339)
}

// Duration returns the length of the window.
func (w Window) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// Align returns the start of the cycle that contains t.
func Align(t time.Time, cycle time.Duration) time.Time {
	return t.Truncate(cycle)
}

// Windows splits [from, to) into consecutive cycle windows aligned to the
// cycle length. Only complete windows are returned.
func Windows(from, to time.Time, cycle time.Duration) []Window {
	if cycle <= 0 {
		return nil
	}

	var windows []Window

	start := Align(from, cycle)
	if start.Before(from) {
		start = start.Add(cycle)
	}

	for end := start.Add(cycle); !end.After(to); end = end.Add(cycle) {
		windows = append(windows, Window{Start: start, End: end})
		start = end
	}

	return windows
}

// RoundToStart resets the given time to the start of the day.
func RoundToStart(t time.Time) time.Time {
	return time.Date(
		t.Year(),
		t.Month(),
		t.Day(),
		0,
		0,
		0,
		0,
		t.Location(),
	)
}

// RoundToEnd resets the given time to the end of the day.
func RoundToEnd(t time.Time) time.Time {
	return time.Date(
		t.Year(),
		t.Month(),
		t.Day(),
		23,
		59,
		59,
		0,
		t.Location(),
	)
}

// PeriodRange returns the start and end time of a reporting period relative
// to now.
func PeriodRange(period Period, now time.Time) (start, end time.Time) {
	start = RoundToStart(now)
	end = now

	//nolint:exhaustive // other cases covered by default
	switch period {
	case PeriodToday:
		return
	case PeriodYesterday:
		start = RoundToStart(now.AddDate(0, 0, Range[period]))
		end = RoundToEnd(start)

		return
	case PeriodAllTime:
		start = time.Time{}
		return
	default:
		start = RoundToStart(now.AddDate(0, 0, Range[period]))
	}

	return
}

// FromStr parses an absolute or relative date string such as "2 hours ago"
// or "yesterday 9am".
func FromStr(s string) (time.Time, error) {
	s = strings.TrimSpace(s)

	cfg := &dps.Configuration{
		CurrentTime: time.Now(),
	}

	dt, err := dps.Parse(cfg, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("unable to parse %q: %w", s, err)
	}

	return dt.Time, nil
}

// ToKey converts a time value to a database key for Bolt.
func ToKey(t time.Time) []byte {
	return []byte(t.UTC().Format(keyLayout))
}

// FromKey converts a database key back to a time value.
func FromKey(b []byte) (time.Time, error) {
	return time.Parse(keyLayout, string(b))
}

// HumanDuration renders d as "1h05m" or "12m".
func HumanDuration(d time.Duration) string {
	d = d.Round(time.Minute)

	h := d / time.Hour
	m := (d % time.Hour) / time.Minute

	if h == 0 {
		return fmt.Sprintf("%dm", m)
	}

	return fmt.Sprintf("%dh%02dm", h, m)
}
