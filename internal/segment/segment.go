// Package segment groups the raw samples of one analysis cycle into
// contiguous activity segments
package segment

import (
	"time"

	"github.com/ayoisaiah/tally/internal/models"
	"github.com/ayoisaiah/tally/internal/timeutil"
)

// Options controls how samples are grouped.
type Options struct {
	// Poll is the sampling interval. A sample covers at most twice this
	// long, after which the time is treated as missing data.
	Poll time.Duration
	// Debounce is the shortest title change that starts a new segment.
	Debounce time.Duration
	// IdleThreshold is the shortest idle run kept as its own segment.
	IdleThreshold time.Duration
	// Bridge is the longest silence between two samples of the same
	// activity that still counts as that activity rather than missing data.
	// Zero disables bridging.
	Bridge time.Duration
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		Poll:          time.Minute,
		Debounce:      time.Minute,
		IdleThreshold: 5 * time.Minute,
		Bridge:        10 * time.Minute,
	}
}

type run struct {
	start     time.Time
	end       time.Time
	kind      models.SegmentKind
	key       string
	samples   []*models.Sample
	titles    []string
	durations map[string]time.Duration
}

func (r *run) duration() time.Duration {
	return r.end.Sub(r.start)
}

func (r *run) addTitle(title string, d time.Duration) {
	if title == "" {
		return
	}

	if _, ok := r.durations[title]; !ok {
		r.titles = append(r.titles, title)
	}

	r.durations[title] += d
}

// sameActivity reports whether two adjacent runs describe one activity.
func (r *run) sameActivity(o *run) bool {
	if r.kind != o.kind {
		return false
	}

	return r.kind != models.KindActive || r.key == o.key
}

// absorb merges o, which must be adjacent to r, into r. The kind and key of
// r are kept.
func (r *run) absorb(o *run) {
	if o.start.Before(r.start) {
		r.start = o.start
		r.samples = append(append([]*models.Sample{}, o.samples...), r.samples...)

		titles := r.titles
		durations := r.durations

		r.titles = nil
		r.durations = make(map[string]time.Duration)

		for _, t := range o.titles {
			r.addTitle(t, o.durations[t])
		}

		for _, t := range titles {
			r.addTitle(t, durations[t])
		}

		return
	}

	r.end = o.end
	r.samples = append(r.samples, o.samples...)

	for _, t := range o.titles {
		r.addTitle(t, o.durations[t])
	}
}

func (r *run) short(opts Options) bool {
	if r.kind == models.KindIdle {
		return r.duration() < opts.IdleThreshold
	}

	return r.duration() < opts.Debounce
}

// Segment splits window into ordered, non-overlapping segments that cover it
// completely. samples must be ordered by time and may start before the
// window; events are attached to the segments they overlap.
func Segment(
	window timeutil.Window,
	samples []*models.Sample,
	events []*models.CalendarEvent,
	opts Options,
) []*models.Segment {
	if !window.End.After(window.Start) {
		return nil
	}

	if opts.Poll <= 0 {
		opts.Poll = DefaultOptions().Poll
	}

	runs := buildRuns(window, samples, opts)
	runs = collapse(runs, opts)

	segments := make([]*models.Segment, 0, len(runs))

	for _, r := range runs {
		segments = append(segments, toSegment(r, events))
	}

	return segments
}

// buildRuns turns each sample into the span it covers, fills uncovered time
// with gaps and merges neighbours with the same activity.
func buildRuns(
	window timeutil.Window,
	samples []*models.Sample,
	opts Options,
) []*run {
	var runs []*run

	push := func(r *run) {
		if n := len(runs); n > 0 && runs[n-1].sameActivity(r) {
			runs[n-1].absorb(r)
			return
		}

		runs = append(runs, r)
	}

	gap := func(start, end time.Time) {
		push(&run{
			start:     start,
			end:       end,
			kind:      models.KindGap,
			durations: make(map[string]time.Duration),
		})
	}

	cursor := window.Start

	for i, s := range samples {
		if !s.Time.Before(window.End) {
			break
		}

		end := s.Time.Add(2 * opts.Poll)
		if i+1 < len(samples) {
			next := samples[i+1]
			if next.Time.Before(end) || bridged(s, next, opts.Bridge) {
				end = next.Time
			}
		}

		start := s.Time
		if start.Before(window.Start) {
			start = window.Start
		}

		if end.After(window.End) {
			end = window.End
		}

		if !end.After(start) {
			continue
		}

		if start.After(cursor) {
			gap(cursor, start)
		}

		r := &run{
			start:     start,
			end:       end,
			kind:      models.KindActive,
			key:       Normalize(s.Title),
			samples:   []*models.Sample{s},
			durations: make(map[string]time.Duration),
		}

		if s.Idle {
			r.kind = models.KindIdle
			r.key = ""
		} else {
			r.addTitle(s.Title, end.Sub(start))
		}

		push(r)

		cursor = end
	}

	if cursor.Before(window.End) {
		gap(cursor, window.End)
	}

	return runs
}

// bridged reports whether the silence between s and next is short enough to
// be attributed to the activity both samples report.
func bridged(s, next *models.Sample, limit time.Duration) bool {
	if limit <= 0 || s.Idle != next.Idle {
		return false
	}

	if d := next.Time.Sub(s.Time); d <= 0 || d > limit {
		return false
	}

	return s.Idle || Normalize(s.Title) == Normalize(next.Title)
}

// collapse absorbs runs that are too short to stand alone into a neighbour,
// preferring the preceding run, until every remaining run is long enough.
func collapse(runs []*run, opts Options) []*run {
	for len(runs) > 1 {
		i := -1

		for j, r := range runs {
			if r.short(opts) {
				i = j
				break
			}
		}

		if i < 0 {
			break
		}

		target := i - 1
		if target < 0 {
			target = 1
		}

		runs[target].absorb(runs[i])
		runs = append(runs[:i], runs[i+1:]...)

		runs = remerge(runs)
	}

	return runs
}

func remerge(runs []*run) []*run {
	out := runs[:1]

	for _, r := range runs[1:] {
		last := out[len(out)-1]
		if last.sameActivity(r) {
			last.absorb(r)
			continue
		}

		out = append(out, r)
	}

	return out
}

func toSegment(r *run, events []*models.CalendarEvent) *models.Segment {
	seg := &models.Segment{
		Start:   r.start,
		End:     r.end,
		Kind:    r.kind,
		Samples: r.samples,
	}

	if r.kind != models.KindGap {
		seg.Titles = r.titles
	}

	if r.kind == models.KindActive {
		var best time.Duration

		for _, t := range r.titles {
			if d := r.durations[t]; d > best {
				seg.Title, best = t, d
			}
		}

		seg.TitleKey = Normalize(seg.Title)
	}

	for _, ev := range events {
		if ev.Overlaps(seg.Start, seg.End) {
			seg.Events = append(seg.Events, ev)
		}
	}

	return seg
}
