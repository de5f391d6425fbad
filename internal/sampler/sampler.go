// Package sampler records the focused window at a fixed interval
package sampler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ayoisaiah/tally/internal/metrics"
	"github.com/ayoisaiah/tally/internal/models"
)

const (
	defaultInterval = time.Minute
	// samples kept in memory while the store is failing, about a week at the
	// default interval
	defaultMaxBuffer = 10_000
	probeTimeout     = 10 * time.Second
)

// Sink stores samples.
type Sink interface {
	AppendSample(sample *models.Sample) error
}

// Options configures a Sampler.
type Options struct {
	Now           func() time.Time
	Interval      time.Duration
	IdleThreshold time.Duration
	MaxBuffer     int
}

// Sampler polls a Probe and writes samples to a Sink. Samples that cannot be
// written are buffered and retried in order on the next tick.
type Sampler struct {
	probe  Probe
	sink   Sink
	now    func() time.Time
	buffer []*models.Sample
	opts   Options
	mu     sync.Mutex
}

// New returns a Sampler.
func New(probe Probe, sink Sink, opts Options) *Sampler {
	if opts.Interval <= 0 {
		opts.Interval = defaultInterval
	}

	if opts.MaxBuffer <= 0 {
		opts.MaxBuffer = defaultMaxBuffer
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Sampler{
		probe: probe,
		sink:  sink,
		now:   now,
		opts:  opts,
	}
}

// Observe probes the desktop once. A sample is idle when the user has not
// touched the input devices for at least the idle threshold.
func (s *Sampler) Observe(ctx context.Context) (*models.Sample, error) {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	sample := &models.Sample{Time: s.now()}

	if s.opts.IdleThreshold > 0 {
		idle, err := s.probe.IdleTime(ctx)
		if err != nil {
			slog.DebugContext(ctx, "idle probe failed", slog.Any("error", err))
		} else if idle >= s.opts.IdleThreshold {
			sample.Idle = true
			return sample, nil
		}
	}

	title, hint, err := s.probe.ActiveWindow(ctx)
	if err != nil {
		return nil, err
	}

	sample.Title = title
	sample.ProcessHint = hint

	return sample, nil
}

// Sample observes the desktop and stores the result together with any
// buffered samples. A failed probe produces no sample and the time shows up
// as missing data.
func (s *Sampler) Sample(ctx context.Context) error {
	m := metrics.Get()

	sample, err := s.Observe(ctx)
	if err != nil {
		m.SampleErrorsTotal.Inc()
		slog.WarnContext(ctx, "unable to sample active window", slog.Any("error", err))

		return s.Flush(ctx)
	}

	s.mu.Lock()
	s.buffer = append(s.buffer, sample)

	if over := len(s.buffer) - s.opts.MaxBuffer; over > 0 {
		slog.ErrorContext(
			ctx,
			"sample buffer full, dropping oldest samples",
			slog.Int("dropped", over),
		)

		s.buffer = s.buffer[over:]
	}
	s.mu.Unlock()

	return s.Flush(ctx)
}

// Flush writes buffered samples in order and stops at the first failure.
func (s *Sampler) Flush(ctx context.Context) error {
	m := metrics.Get()

	s.mu.Lock()
	defer s.mu.Unlock()

	defer func() {
		m.BufferedSamples.Set(float64(len(s.buffer)))
	}()

	for len(s.buffer) > 0 {
		sample := s.buffer[0]

		if err := s.sink.AppendSample(sample); err != nil {
			m.SampleErrorsTotal.Inc()
			slog.WarnContext(
				ctx,
				"unable to store sample, keeping it in memory",
				slog.Int("buffered", len(s.buffer)),
				slog.Any("error", err),
			)

			return err
		}

		m.RecordSample(sample.Idle)

		s.buffer[0] = nil
		s.buffer = s.buffer[1:]
	}

	return nil
}

// Buffered returns the number of samples waiting to be stored.
func (s *Sampler) Buffered() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.buffer)
}

// Run samples immediately and then at every interval until ctx is done.
func (s *Sampler) Run(ctx context.Context) error {
	slog.InfoContext(
		ctx,
		"sampler started",
		slog.Duration("interval", s.opts.Interval),
	)

	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	for {
		_ = s.Sample(ctx)

		select {
		case <-ctx.Done():
			_ = s.Flush(context.WithoutCancel(ctx))

			if n := s.Buffered(); n > 0 {
				slog.Warn("sampler stopped with unsaved samples", slog.Int("buffered", n))
			}

			return nil
		case <-ticker.C:
		}
	}
}
