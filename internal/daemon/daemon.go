// Package daemon runs sampling, calendar sync, analysis and the control
// server side by side until it is stopped
package daemon

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ayoisaiah/tally/internal/config"
	"github.com/ayoisaiah/tally/internal/engine"
	"github.com/ayoisaiah/tally/internal/notify"
	"github.com/ayoisaiah/tally/internal/timeutil"
)

// settle gives the sampler time to store the last sample of a window before
// the window is analysed.
const settle = 5 * time.Second

// Runner is a long-running task that returns when ctx is done.
type Runner interface {
	Run(ctx context.Context) error
}

// Analyzer runs every analysis cycle that is due.
type Analyzer interface {
	CatchUp(ctx context.Context, now time.Time) ([]*engine.CycleReport, error)
}

// Pruner removes old samples.
type Pruner interface {
	Prune(before time.Time) (int, error)
}

// Daemon wires the periodic tasks together. Sampling never waits for
// analysis.
type Daemon struct {
	Analyzer Analyzer
	Pruner   Pruner
	Notifier notify.Notifier
	Config   func(ctx context.Context) (*config.Config, error)
	Now      func() time.Time
	Runners  []Runner
}

func (d *Daemon) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}

	return time.Now()
}

// Run blocks until ctx is done or a task fails.
func (d *Daemon) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	for _, r := range d.Runners {
		g.Go(func() error {
			return r.Run(ctx)
		})
	}

	g.Go(func() error {
		return d.analyze(ctx)
	})

	slog.InfoContext(ctx, "tally daemon started", slog.String("version", config.Version))

	err := g.Wait()

	slog.Info("tally daemon stopped", slog.Any("error", err))

	return err
}

// NextBoundary returns the first cycle boundary after t.
func NextBoundary(t time.Time, cycle time.Duration) time.Time {
	return timeutil.Align(t, cycle).Add(cycle)
}

func (d *Daemon) analyze(ctx context.Context) error {
	d.Tick(ctx)

	for {
		cfg, err := d.Config(ctx)
		if err != nil {
			return err
		}

		wait := NextBoundary(d.now(), cfg.General.CycleLength).Add(settle).Sub(d.now())

		timer := time.NewTimer(wait)

		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}

		d.Tick(ctx)
	}
}

// Tick analyses the due windows, notifies the user and prunes old data.
// Failures are logged; the next tick retries.
func (d *Daemon) Tick(ctx context.Context) {
	now := d.now()

	reports, err := d.Analyzer.CatchUp(ctx, now)

	for _, r := range reports {
		if d.Notifier != nil {
			notify.Report(d.Notifier, r)
		}
	}

	switch {
	case errors.Is(err, engine.ErrCycleRunning):
		slog.WarnContext(ctx, "previous analysis cycle still running, skipping tick")
	case err != nil && ctx.Err() == nil:
		slog.ErrorContext(ctx, "analysis cycle failed", slog.Any("error", err))
	}

	d.prune(ctx, now)
}

func (d *Daemon) prune(ctx context.Context, now time.Time) {
	if d.Pruner == nil {
		return
	}

	cfg, err := d.Config(ctx)
	if err != nil || cfg.General.Retention <= 0 {
		return
	}

	n, err := d.Pruner.Prune(now.Add(-cfg.General.Retention))
	if err != nil {
		slog.WarnContext(ctx, "unable to prune old samples", slog.Any("error", err))
		return
	}

	if n > 0 {
		slog.InfoContext(ctx, "pruned old samples", slog.Int("count", n))
	}
}
