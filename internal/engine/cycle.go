package engine

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ayoisaiah/tally/internal/classify"
	"github.com/ayoisaiah/tally/internal/config"
	"github.com/ayoisaiah/tally/internal/metrics"
	"github.com/ayoisaiah/tally/internal/models"
	"github.com/ayoisaiah/tally/internal/segment"
	"github.com/ayoisaiah/tally/internal/timeutil"
)

// CycleReport summarises one analysis cycle.
type CycleReport struct {
	Started  time.Time        `json:"started"`
	Window   timeutil.Window  `json:"window"`
	ID       string           `json:"id"`
	Outcomes []models.Outcome `json:"outcomes"`
	Duration time.Duration    `json:"duration"`
}

// Count returns the number of outcomes of the given kind.
func (r *CycleReport) Count(kind models.OutcomeKind) int {
	var n int

	for i := range r.Outcomes {
		if r.Outcomes[i].Kind == kind {
			n++
		}
	}

	return n
}

// RunCycle analyses window: pending segments are reconsidered, the window is
// segmented and every segment is processed. The watermark only moves once
// every segment reached an outcome.
func (e *Engine) RunCycle(
	ctx context.Context,
	window timeutil.Window,
) (*CycleReport, error) {
	report := &CycleReport{
		ID:      uuid.NewString(),
		Window:  window,
		Started: e.now(),
	}

	cfg, err := e.Config(ctx)
	if err != nil {
		return nil, err
	}

	opts := segmentOptions(cfg)

	// a bridged sample may cover the start of the window
	lookback := max(cfg.General.Lookback, opts.Bridge)

	samples, events, err := e.db.Query(window.Start.Add(-lookback), window.End)
	if err != nil {
		return nil, errQuery.Fmt(window).Wrap(err)
	}

	classifier := e.selectFn(ctx, cfg)

	pending, err := e.reconsider(ctx, cfg)
	if err != nil {
		return nil, err
	}

	report.Outcomes = append(report.Outcomes, pending...)

	reconsidered := make(map[string]bool, len(pending))
	for i := range pending {
		reconsidered[pending[i].Key] = true
	}

	segments := segment.Segment(window, samples, events, opts)

	for _, seg := range segments {
		o, err := e.Process(ctx, seg, classifier, cfg)
		if err != nil {
			return nil, err
		}

		// a re-run window meets its own pending segments again
		if reconsidered[o.Key] {
			continue
		}

		report.Outcomes = append(report.Outcomes, o)
	}

	if err := e.db.SetWatermark(window.End); err != nil {
		return nil, errStore.Wrap(err)
	}

	report.Duration = e.now().Sub(report.Started)

	recordOutcomes(report.Outcomes)
	metrics.Get().RecordCycle(report.Duration, window.End)
	e.updatePendingGauge()

	slog.InfoContext(
		ctx,
		"analysis cycle complete",
		slog.String("cycle", report.ID),
		slog.String("window", window.String()),
		slog.Int("segments", len(segments)),
		slog.Int("registered", report.Count(models.AutoRegistered)),
		slog.Int("pending", report.Count(models.PendingConfirmation)),
		slog.Int("skipped", report.Count(models.Skipped)),
	)

	return report, nil
}

// Due returns the complete cycle windows after the watermark that end at or
// before now, at most general.max_catch_up of them (the most recent ones).
// Without a watermark only the last complete window is due.
func (e *Engine) Due(ctx context.Context, now time.Time) ([]timeutil.Window, error) {
	cfg, err := e.Config(ctx)
	if err != nil {
		return nil, err
	}

	cycle := cfg.General.CycleLength

	mark, err := e.db.Watermark()
	if err != nil {
		return nil, errStore.Wrap(err)
	}

	from := mark
	if from.IsZero() {
		from = timeutil.Align(now, cycle).Add(-cycle)
	}

	windows := timeutil.Windows(from, now, cycle)

	limit := cfg.General.MaxCatchUp
	if limit > 0 && len(windows) > limit {
		slog.WarnContext(
			ctx,
			"too many missed cycles, skipping the oldest",
			slog.Int("missed", len(windows)),
			slog.Int("max_catch_up", limit),
		)

		windows = windows[len(windows)-limit:]
	}

	return windows, nil
}

func (e *Engine) updatePendingGauge() {
	list, err := e.db.ListPending()
	if err != nil {
		return
	}

	metrics.Get().PendingSegments.Set(float64(len(list)))
}

// reconsider expires pending segments older than the pending TTL and
// re-scores the others offline against the current history. Segments that
// now clear the threshold are registered.
func (e *Engine) reconsider(
	ctx context.Context,
	cfg *config.Config,
) ([]models.Outcome, error) {
	list, err := e.db.ListPending()
	if err != nil {
		return nil, errStore.Wrap(err)
	}

	if len(list) == 0 {
		return nil, nil
	}

	s := settingsFrom(cfg)
	now := e.now()
	offline := classify.NewOffline(e.db, cfg.Classifier.HalfLife).Until(now)
	ttl := cfg.General.PendingTTL

	var outcomes []models.Outcome

	for _, p := range list {
		seg := p.Segment()

		if ttl > 0 && now.Sub(p.CreatedAt) > ttl {
			if err := e.db.DeletePending(p.Key); err != nil {
				return nil, errStore.Wrap(err)
			}

			slog.InfoContext(
				ctx,
				"pending segment expired",
				slog.String("segment", p.Key),
				slog.Duration("age", now.Sub(p.CreatedAt)),
			)

			o := skipped(seg, p.Key, models.ReasonExpired)
			o.Candidates = p.Candidates
			outcomes = append(outcomes, o)

			continue
		}

		candidates, err := offline.Classify(ctx, seg)
		if err != nil {
			return nil, err
		}

		d := Decide(candidates, s.policy)

		switch d.Action {
		case ActionRegister:
			o, err := e.register(ctx, p.Key, seg, d.Top, s)
			if err != nil {
				return nil, err
			}

			o.Candidates = candidates
			outcomes = append(outcomes, o)

			continue
		case ActionExclude:
			if err := e.db.DeletePending(p.Key); err != nil {
				return nil, errStore.Wrap(err)
			}

			o := skipped(seg, p.Key, models.ReasonExcludedProject)
			o.Label, o.Project = d.Top.Label, d.Top.Project
			o.Candidates = candidates
			outcomes = append(outcomes, o)

			continue
		case ActionPending:
		}

		p.Candidates = candidates
		p.UpdatedAt = now

		if err := e.db.PutPending(p); err != nil {
			return nil, errStore.Wrap(err)
		}

		o := newOutcome(seg, p.Key, models.PendingConfirmation)
		o.Candidates = candidates
		outcomes = append(outcomes, o)
	}

	return outcomes, nil
}

// Confirm registers a pending segment with a label chosen by the user. The
// label does not have to be one of the candidates.
func (e *Engine) Confirm(
	ctx context.Context,
	key, label, project string,
) (models.Outcome, error) {
	if label == "" {
		return models.Outcome{}, errEmptyLabel
	}

	cfg, err := e.Config(ctx)
	if err != nil {
		return models.Outcome{}, err
	}

	p, err := e.db.Pending(key)
	if err != nil {
		return models.Outcome{}, errStore.Wrap(err)
	}

	if p == nil {
		return models.Outcome{}, ErrPendingNotFound.Fmt(key)
	}

	top := models.Candidate{
		Label:      label,
		Project:    project,
		Source:     models.SourceUser,
		Confidence: 1,
	}

	o, err := e.register(ctx, key, p.Segment(), top, settingsFrom(cfg))
	if err != nil {
		return o, err
	}

	recordOutcomes([]models.Outcome{o})
	e.updatePendingGauge()

	return o, nil
}

// Dismiss drops a pending segment without registering it.
func (e *Engine) Dismiss(ctx context.Context, key string) (models.Outcome, error) {
	p, err := e.db.Pending(key)
	if err != nil {
		return models.Outcome{}, errStore.Wrap(err)
	}

	if p == nil {
		return models.Outcome{}, ErrPendingNotFound.Fmt(key)
	}

	if err := e.db.DeletePending(key); err != nil {
		return models.Outcome{}, errStore.Wrap(err)
	}

	slog.InfoContext(ctx, "pending segment dismissed", slog.String("segment", key))

	o := skipped(p.Segment(), key, models.ReasonDismissed)
	o.Candidates = p.Candidates

	recordOutcomes([]models.Outcome{o})
	e.updatePendingGauge()

	return o, nil
}

// Pending lists the segments waiting for confirmation.
func (e *Engine) Pending() ([]*models.PendingSegment, error) {
	list, err := e.db.ListPending()
	if err != nil {
		return nil, errStore.Wrap(err)
	}

	return list, nil
}

// Records returns the registrations that end within [start, end].
func (e *Engine) Records(start, end time.Time) ([]*models.RegistrationRecord, error) {
	records, err := e.db.Records(start, end)
	if err != nil {
		return nil, errStore.Wrap(err)
	}

	return records, nil
}

// Analyzer runs analysis cycles one at a time.
type Analyzer struct {
	engine  *Engine
	running atomic.Bool
}

// NewAnalyzer wraps e.
func NewAnalyzer(e *Engine) *Analyzer {
	return &Analyzer{engine: e}
}

// Run analyses window unless a cycle is already running, in which case it
// returns ErrCycleRunning immediately.
func (a *Analyzer) Run(
	ctx context.Context,
	window timeutil.Window,
) (*CycleReport, error) {
	if !a.running.CompareAndSwap(false, true) {
		metrics.Get().CyclesSkipped.Inc()
		return nil, ErrCycleRunning
	}
	defer a.running.Store(false)

	return a.engine.RunCycle(ctx, window)
}

// CatchUp analyses every due window in order and stops at the first
// failure.
func (a *Analyzer) CatchUp(
	ctx context.Context,
	now time.Time,
) ([]*CycleReport, error) {
	if !a.running.CompareAndSwap(false, true) {
		metrics.Get().CyclesSkipped.Inc()
		return nil, ErrCycleRunning
	}
	defer a.running.Store(false)

	windows, err := a.engine.Due(ctx, now)
	if err != nil {
		return nil, err
	}

	reports := make([]*CycleReport, 0, len(windows))

	for _, w := range windows {
		if err := ctx.Err(); err != nil {
			return reports, err
		}

		r, err := a.engine.RunCycle(ctx, w)
		if err != nil {
			return reports, err
		}

		reports = append(reports, r)
	}

	return reports, nil
}
