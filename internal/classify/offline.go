package classify

import (
	"context"
	"log/slog"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/ayoisaiah/tally/internal/models"
)

const (
	// fuzzy title matches need at least this Jaccard similarity
	fuzzyThreshold = 0.5
	// evidence needed before history dominates: E/(E+priorWeight)
	priorWeight = 2.0
	fuzzyFactor = 0.5

	calendarBonus        = 0.1
	eventConfidence      = 0.3
	eventCoverConfidence = 0.45
	titleConfidence      = 0.1

	untitled = "Untitled activity"
)

// Offline is a deterministic classifier built from title heuristics and the
// history of earlier registrations.
type Offline struct {
	horizon  time.Time
	history  History
	halfLife time.Duration
}

// NewOffline returns an offline classifier. Registrations lose half their
// weight every halfLife, measured from the end of the segment.
func NewOffline(history History, halfLife time.Duration) *Offline {
	if halfLife <= 0 {
		halfLife = 30 * 24 * time.Hour
	}

	return &Offline{
		history:  history,
		halfLife: halfLife,
	}
}

// Until returns a copy of o that also learns from registrations ending after
// the segment, up to horizon. Without a horizon only registrations that end
// by the end of the segment count.
func (o *Offline) Until(horizon time.Time) *Offline {
	c := *o
	c.horizon = horizon

	return &c
}

type pair struct {
	label   string
	project string
}

type evidence struct {
	total  float64
	byPair map[pair]float64
	order  []pair
}

func (e *evidence) add(p pair, w float64) {
	if e.byPair == nil {
		e.byPair = make(map[pair]float64)
	}

	if _, ok := e.byPair[p]; !ok {
		e.order = append(e.order, p)
	}

	e.byPair[p] += w
	e.total += w
}

func (e *evidence) candidates(factor float64) []models.Candidate {
	out := make([]models.Candidate, 0, len(e.order))

	if e.total == 0 {
		return out
	}

	strength := e.total / (e.total + priorWeight)

	for _, p := range e.order {
		share := e.byPair[p] / e.total

		out = append(out, models.Candidate{
			Label:      p.label,
			Project:    p.project,
			Source:     models.SourceOffline,
			Confidence: share * strength * factor,
		})
	}

	return out
}

// Classify never fails: without history or keyword matches the dominant
// title is returned with a low confidence.
func (o *Offline) Classify(
	ctx context.Context,
	seg *models.Segment,
) ([]models.Candidate, error) {
	var candidates []models.Candidate

	records := o.records(ctx, seg)

	exact, fuzzy := o.weigh(seg, records)

	candidates = append(candidates, exact.candidates(1)...)
	candidates = append(candidates, fuzzy.candidates(fuzzyFactor)...)

	for _, label := range keywordLabels(seg.Titles) {
		candidates = append(candidates, models.Candidate{
			Label:      label,
			Source:     models.SourceOffline,
			Confidence: keywordConfidence,
		})
	}

	candidates = applyCalendar(seg, candidates)

	if len(candidates) == 0 {
		label := strings.TrimSpace(seg.Title)
		if label == "" {
			label = untitled
		}

		candidates = append(candidates, models.Candidate{
			Label:      label,
			Source:     models.SourceOffline,
			Confidence: titleConfidence,
		})
	}

	for i := range candidates {
		candidates[i].Confidence = clamp(candidates[i].Confidence)
	}

	candidates = dedupe(candidates)
	Sort(candidates)

	return candidates, nil
}

func (o *Offline) records(
	ctx context.Context,
	seg *models.Segment,
) []*models.RegistrationRecord {
	if o.history == nil {
		return nil
	}

	until := seg.End
	if o.horizon.After(until) {
		until = o.horizon
	}

	records, err := o.history.Records(time.Time{}, until)
	if err != nil {
		slog.WarnContext(
			ctx,
			"classifying without history",
			slog.Any("error", err),
		)

		return nil
	}

	// summation order must not depend on storage order
	slices.SortFunc(records, func(a, b *models.RegistrationRecord) int {
		if c := a.End.Compare(b.End); c != 0 {
			return c
		}

		return strings.Compare(a.Key, b.Key)
	})

	return records
}

func (o *Offline) weigh(
	seg *models.Segment,
	records []*models.RegistrationRecord,
) (exact, fuzzy evidence) {
	if seg.TitleKey == "" {
		return
	}

	segWords := tokens(seg.TitleKey)

	for _, rec := range records {
		if rec.Label == "" {
			continue
		}

		age := seg.End.Sub(rec.End)
		if age < 0 {
			age = 0
		}

		w := math.Pow(0.5, float64(age)/float64(o.halfLife))
		p := pair{label: rec.Label, project: rec.Project}

		if rec.TitleKey == seg.TitleKey {
			exact.add(p, w)
			continue
		}

		if sim := jaccard(segWords, tokens(rec.TitleKey)); sim >= fuzzyThreshold {
			fuzzy.add(p, w)
		}
	}

	return
}

// applyCalendar raises candidates that agree with an overlapping calendar
// event and adds the event titles themselves as candidates.
func applyCalendar(
	seg *models.Segment,
	candidates []models.Candidate,
) []models.Candidate {
	if len(seg.Events) == 0 {
		return candidates
	}

	eventWords := make(map[string]struct{})

	for _, ev := range seg.Events {
		for w := range tokens(ev.Title + " " + ev.Description) {
			eventWords[w] = struct{}{}
		}
	}

	for i, c := range candidates {
		for w := range tokens(c.Label + " " + c.Project) {
			if _, ok := eventWords[w]; ok {
				candidates[i].Confidence += calendarBonus
				break
			}
		}
	}

	for _, ev := range seg.Events {
		title := strings.TrimSpace(ev.Title)
		if title == "" {
			continue
		}

		conf := eventConfidence
		if covered(seg, ev)*2 >= seg.Duration() {
			conf = eventCoverConfidence
		}

		candidates = append(candidates, models.Candidate{
			Label:      title,
			Source:     models.SourceOffline,
			Confidence: conf,
		})
	}

	return candidates
}

// covered returns how much of the segment the event overlaps.
func covered(seg *models.Segment, ev *models.CalendarEvent) time.Duration {
	start := seg.Start
	if ev.Start.After(start) {
		start = ev.Start
	}

	end := seg.End
	if ev.End.Before(end) {
		end = ev.End
	}

	if !end.After(start) {
		return 0
	}

	return end.Sub(start)
}
