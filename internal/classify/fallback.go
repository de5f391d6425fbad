package classify

import (
	"context"
	"log/slog"
	"time"

	"github.com/ayoisaiah/tally/internal/metrics"
	"github.com/ayoisaiah/tally/internal/models"
)

// Fallback tries the primary classifier and answers with the secondary one
// whenever the primary fails, times out or returns nothing. Errors of the
// primary are logged and never returned.
type Fallback struct {
	primary   Classifier
	secondary Classifier
	timeout   time.Duration
}

// NewFallback wraps primary with secondary. Each primary call is bounded by
// timeout.
func NewFallback(primary, secondary Classifier, timeout time.Duration) *Fallback {
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Fallback{
		primary:   primary,
		secondary: secondary,
		timeout:   timeout,
	}
}

func (f *Fallback) Classify(
	ctx context.Context,
	seg *models.Segment,
) ([]models.Candidate, error) {
	m := metrics.Get()

	pctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	candidates, err := f.primary.Classify(pctx, seg)
	if err == nil && len(candidates) > 0 {
		m.ClassificationsTotal.WithLabelValues(string(candidates[0].Source)).Inc()
		return candidates, nil
	}

	m.FallbacksTotal.Inc()

	slog.WarnContext(
		ctx,
		"online classification failed, using offline classifier",
		slog.String("segment", seg.Key()),
		slog.Any("error", err),
	)

	candidates, err = f.secondary.Classify(ctx, seg)
	if err != nil {
		return nil, err
	}

	m.ClassificationsTotal.WithLabelValues(string(models.SourceOffline)).Inc()

	return candidates, nil
}
