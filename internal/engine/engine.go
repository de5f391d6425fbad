// Package engine turns analysis windows into registered time entries or
// segments that wait for the user
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/ayoisaiah/tally/internal/classify"
	"github.com/ayoisaiah/tally/internal/config"
	"github.com/ayoisaiah/tally/internal/gateway"
	"github.com/ayoisaiah/tally/internal/metrics"
	"github.com/ayoisaiah/tally/internal/models"
	"github.com/ayoisaiah/tally/internal/segment"
	"github.com/ayoisaiah/tally/store"
)

const registrationTag = "tally"

// SelectFunc picks the classifier used for one analysis cycle.
type SelectFunc func(ctx context.Context, cfg *config.Config) classify.Classifier

// Engine drives segments from classification to an outcome.
type Engine struct {
	db       store.DB
	gateway  gateway.Gateway
	load     func() (*config.Config, error)
	selectFn SelectFunc
	now      func() time.Time
	cfg      *config.Config
	online   *classify.Online
	onlineOp classify.OnlineOptions
	locks    keyedMutex
	mu       sync.Mutex
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithSelector replaces the default classifier selection.
func WithSelector(fn SelectFunc) Option {
	return func(e *Engine) {
		e.selectFn = fn
	}
}

// New returns an Engine. load is called at the start of every cycle; when it
// fails the last good configuration is used.
func New(
	db store.DB,
	gw gateway.Gateway,
	load func() (*config.Config, error),
	opts ...Option,
) *Engine {
	e := &Engine{
		db:      db,
		gateway: gw,
		load:    load,
		now:     time.Now,
	}

	e.selectFn = e.defaultSelect

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Config returns the configuration for the next cycle.
func (e *Engine) Config(ctx context.Context) (*config.Config, error) {
	cfg, err := e.load()

	e.mu.Lock()
	defer e.mu.Unlock()

	if err != nil {
		if e.cfg == nil {
			return nil, err
		}

		slog.WarnContext(
			ctx,
			"unable to reload config, keeping previous settings",
			slog.Any("error", err),
		)

		return e.cfg, nil
	}

	e.cfg = cfg

	return cfg, nil
}

func (e *Engine) defaultSelect(
	ctx context.Context,
	cfg *config.Config,
) classify.Classifier {
	offline := classify.NewOffline(e.db, cfg.Classifier.HalfLife)

	sel := &classify.Selector{
		Offline: offline,
		Online:  e.onlineClassifier(ctx, cfg),
		Timeout: cfg.Classifier.Timeout,
	}

	return sel.Select(ctx)
}

// onlineClassifier reuses the online client while its settings are
// unchanged so that its rate limit holds across cycles.
func (e *Engine) onlineClassifier(
	ctx context.Context,
	cfg *config.Config,
) *classify.Online {
	if !cfg.OnlineConfigured() {
		return nil
	}

	opts := classify.OnlineOptions{
		Endpoint:  cfg.Classifier.Endpoint,
		APIKey:    cfg.Classifier.APIKey,
		Model:     cfg.Classifier.Model,
		Timeout:   cfg.Classifier.Timeout,
		RateLimit: cfg.Classifier.RateLimit,
		Burst:     cfg.Classifier.Burst,
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.online != nil && e.onlineOp == opts {
		return e.online
	}

	online, err := classify.NewOnline(opts, e.db)
	if err != nil {
		slog.WarnContext(ctx, "online classifier disabled", slog.Any("error", err))
		return nil
	}

	e.online, e.onlineOp = online, opts

	return online
}

// settings is the part of the configuration a single segment needs.
type settings struct {
	policy          Policy
	privatePatterns []string
	continuityGap   time.Duration
	timeout         time.Duration
}

func settingsFrom(cfg *config.Config) settings {
	return settings{
		policy: Policy{
			Threshold:        cfg.Decision.Threshold,
			ExcludedProjects: cfg.Decision.ExcludedProjects,
		},
		privatePatterns: cfg.Decision.PrivatePatterns,
		continuityGap:   cfg.Decision.ContinuityGap,
		timeout:         cfg.Toggl.Timeout,
	}
}

func segmentOptions(cfg *config.Config) segment.Options {
	opts := segment.DefaultOptions()

	if cfg.Sampler.Interval > 0 {
		opts.Poll = cfg.Sampler.Interval
	}

	if cfg.Segment.Debounce > 0 {
		opts.Debounce = cfg.Segment.Debounce
	}

	if cfg.Segment.IdleThreshold > 0 {
		opts.IdleThreshold = cfg.Segment.IdleThreshold
	}

	if cfg.Segment.Bridge > 0 {
		opts.Bridge = cfg.Segment.Bridge
	}

	return opts
}

func private(titles []string, patterns []string) bool {
	for _, title := range titles {
		title = strings.ToLower(title)

		for _, p := range patterns {
			p = strings.ToLower(strings.TrimSpace(p))
			if p != "" && strings.Contains(title, p) {
				return true
			}
		}
	}

	return false
}

func newOutcome(seg *models.Segment, key string, kind models.OutcomeKind) models.Outcome {
	return models.Outcome{
		Kind:  kind,
		Key:   key,
		Start: seg.Start,
		End:   seg.End,
		Title: seg.Title,
	}
}

func skipped(
	seg *models.Segment,
	key string,
	reason models.SkipReason,
) models.Outcome {
	o := newOutcome(seg, key, models.Skipped)
	o.Reason = reason

	return o
}

// Process moves one segment to its terminal outcome. An error is returned
// only when the store fails.
func (e *Engine) Process(
	ctx context.Context,
	seg *models.Segment,
	classifier classify.Classifier,
	cfg *config.Config,
) (models.Outcome, error) {
	key := seg.Key()
	s := settingsFrom(cfg)

	switch seg.Kind {
	case models.KindIdle:
		return skipped(seg, key, models.ReasonIdle), nil
	case models.KindGap:
		return skipped(seg, key, models.ReasonNoData), nil
	case models.KindActive:
	}

	rec, err := e.db.Record(key)
	if err != nil {
		return models.Outcome{}, errStore.Wrap(err)
	}

	if rec != nil {
		return existing(seg, key, rec), nil
	}

	p, err := e.db.Pending(key)
	if err != nil {
		return models.Outcome{}, errStore.Wrap(err)
	}

	if p != nil {
		o := newOutcome(seg, key, models.PendingConfirmation)
		o.Candidates = p.Candidates

		return o, nil
	}

	if private(seg.Titles, s.privatePatterns) {
		return skipped(seg, key, models.ReasonPrivate), nil
	}

	candidates, err := classifier.Classify(ctx, seg)
	if err != nil {
		return models.Outcome{}, err
	}

	d := Decide(candidates, s.policy)

	slog.DebugContext(
		ctx,
		"segment classified",
		slog.String("segment", key),
		slog.String("title", seg.Title),
		slog.String("action", d.Action.String()),
		slog.Any("top", d.Top),
	)

	switch d.Action {
	case ActionExclude:
		o := skipped(seg, key, models.ReasonExcludedProject)
		o.Label, o.Project = d.Top.Label, d.Top.Project
		o.Candidates = candidates

		return o, nil
	case ActionRegister:
		o, err := e.register(ctx, key, seg, d.Top, s)
		o.Candidates = candidates

		return o, err
	case ActionPending:
	}

	now := e.now()

	err = e.db.PutPending(&models.PendingSegment{
		Key:        key,
		Start:      seg.Start,
		End:        seg.End,
		Title:      seg.Title,
		TitleKey:   seg.TitleKey,
		Titles:     seg.Titles,
		Events:     seg.Events,
		Candidates: candidates,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
	if err != nil {
		return models.Outcome{}, errStore.Wrap(err)
	}

	o := newOutcome(seg, key, models.PendingConfirmation)
	o.Candidates = candidates

	return o, nil
}

func existing(
	seg *models.Segment,
	key string,
	rec *models.RegistrationRecord,
) models.Outcome {
	o := newOutcome(seg, key, models.AutoRegistered)
	o.EntryID = rec.EntryID
	o.Label = rec.Label
	o.Project = rec.Project
	o.Existing = true

	return o
}

// register creates or extends a remote entry for the segment. The record is
// checked and written while holding the segment's lock, and only after the
// time tracker accepted the entry.
func (e *Engine) register(
	ctx context.Context,
	key string,
	seg *models.Segment,
	top models.Candidate,
	s settings,
) (models.Outcome, error) {
	unlock := e.locks.Lock(key)
	defer unlock()

	rec, err := e.db.Record(key)
	if err != nil {
		return models.Outcome{}, errStore.Wrap(err)
	}

	if rec != nil {
		return existing(seg, key, rec), nil
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	if top.Project == "" {
		top.Project = e.inferProject(ctx, seg, top, s)
	}

	rec = &models.RegistrationRecord{
		Key:        key,
		Start:      seg.Start,
		End:        seg.End,
		EntryStart: seg.Start,
		Label:      top.Label,
		Project:    top.Project,
		TitleKey:   seg.TitleKey,
		Source:     top.Source,
	}

	entry := gateway.Entry{
		Description: top.Label,
		Project:     top.Project,
		Start:       seg.Start,
		End:         seg.End,
		Tags:        []string{registrationTag},
	}

	prev, err := e.continueEntry(ctx, seg, top, entry, s)
	if err != nil {
		return models.Outcome{}, err
	}

	if prev != nil {
		rec.EntryID = prev.EntryID
		rec.EntryStart = entryStart(prev)
		rec.Continued = true
	} else {
		rec.EntryID, err = e.gateway.Register(ctx, entry)
		if err != nil {
			slog.WarnContext(
				ctx,
				"registration failed",
				slog.String("segment", key),
				slog.Any("error", err),
			)

			o := skipped(seg, key, models.ReasonRegistrationFailed)
			o.Label, o.Project = top.Label, top.Project
			o.Detail = failureDetail(err)

			return o, nil
		}
	}

	rec.CreatedAt = e.now()

	stored, created, err := e.db.PutRecord(rec)
	if err != nil {
		return models.Outcome{}, errRecordLost.Fmt(rec.EntryID).Wrap(err)
	}

	if !created {
		return existing(seg, key, stored), nil
	}

	if err := e.db.DeletePending(key); err != nil {
		slog.WarnContext(
			ctx,
			"unable to clear pending segment",
			slog.String("segment", key),
			slog.Any("error", err),
		)
	}

	slog.InfoContext(
		ctx,
		"segment registered",
		slog.String("segment", key),
		slog.String("entry_id", rec.EntryID),
		slog.String("label", rec.Label),
		slog.String("project", rec.Project),
		slog.Bool("continued", rec.Continued),
	)

	o := newOutcome(seg, key, models.AutoRegistered)
	o.EntryID, o.Label, o.Project = rec.EntryID, rec.Label, rec.Project

	return o, nil
}

// inferProject guesses a project for a candidate that has none from the
// projects the gateway knows. Excluded projects are never guessed.
func (e *Engine) inferProject(
	ctx context.Context,
	seg *models.Segment,
	top models.Candidate,
	s settings,
) string {
	lister, ok := e.gateway.(gateway.ProjectLister)
	if !ok {
		return ""
	}

	projects, err := lister.Projects(ctx)
	if err != nil {
		slog.WarnContext(ctx, "unable to list projects", slog.Any("error", err))
		return ""
	}

	projects = slices.DeleteFunc(slices.Clone(projects), s.policy.Excluded)

	hint := gateway.ProjectHint{
		Label:       top.Label,
		WindowTitle: seg.Title,
	}

	titles := make([]string, 0, len(seg.Events))
	for _, ev := range seg.Events {
		titles = append(titles, ev.Title)
	}

	hint.CalendarTitle = strings.Join(titles, "\n")

	match, ok := gateway.InferProject(projects, hint)
	if !ok {
		return ""
	}

	slog.DebugContext(
		ctx,
		"project inferred",
		slog.String("label", top.Label),
		slog.String("project", match.Name),
		slog.Float64("score", match.Score),
	)

	return match.Name
}

// continueEntry extends the entry registered for the activity that ended
// right before seg when the label and project are the same, and returns the
// record of that entry. It returns nil when nothing was extended, in which
// case a new entry is created.
func (e *Engine) continueEntry(
	ctx context.Context,
	seg *models.Segment,
	top models.Candidate,
	entry gateway.Entry,
	s settings,
) (*models.RegistrationRecord, error) {
	if s.continuityGap <= 0 {
		return nil, nil
	}

	prev, err := e.db.RecordEndingNear(seg.Start, s.continuityGap)
	if err != nil {
		return nil, errStore.Wrap(err)
	}

	if prev == nil || prev.End.After(seg.Start) || prev.EntryID == "" {
		return nil, nil
	}

	if prev.Label != top.Label || !strings.EqualFold(prev.Project, top.Project) {
		return nil, nil
	}

	entry.Start = entryStart(prev)

	if err := e.gateway.Extend(ctx, prev.EntryID, entry); err != nil {
		slog.WarnContext(
			ctx,
			"unable to extend previous entry, creating a new one",
			slog.String("entry_id", prev.EntryID),
			slog.Any("error", err),
		)

		return nil, nil
	}

	return prev, nil
}

func entryStart(rec *models.RegistrationRecord) time.Time {
	if rec.EntryStart.IsZero() {
		return rec.Start
	}

	return rec.EntryStart
}

func failureDetail(err error) string {
	var re *gateway.RegistrationError
	if errors.As(err, &re) {
		return fmt.Sprintf("%s: %v", re.Kind, re.Err)
	}

	return err.Error()
}

func recordOutcomes(outcomes []models.Outcome) {
	m := metrics.Get()

	for i := range outcomes {
		m.RecordOutcome(string(outcomes[i].Kind), string(outcomes[i].Reason))
	}
}
