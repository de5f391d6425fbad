package app

import (
	"context"
	"flag"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/ayoisaiah/tally/internal/config"
	"github.com/ayoisaiah/tally/internal/engine"
	"github.com/ayoisaiah/tally/internal/models"
	"github.com/ayoisaiah/tally/internal/timeutil"
	"github.com/ayoisaiah/tally/store"
)

func newContext(t *testing.T, args ...string) *cli.Context {
	t.Helper()

	set := flag.NewFlagSet("test", flag.ContinueOnError)

	for _, f := range []cli.Flag{startFlag, endFlag, periodFlag} {
		require.NoError(t, f.Apply(set))
	}

	require.NoError(t, set.Parse(args))

	return cli.NewContext(cli.NewApp(), set, nil)
}

func TestTimeRange(t *testing.T) {
	now := time.Date(2024, 5, 8, 14, 30, 0, 0, time.Local)

	t.Run("defaults to today", func(t *testing.T) {
		start, end, err := timeRange(newContext(t), &config.Config{}, now)
		require.NoError(t, err)

		assert.Equal(t, timeutil.RoundToStart(now), start)
		assert.Equal(t, now, end)
	})

	t.Run("period", func(t *testing.T) {
		start, end, err := timeRange(newContext(t, "--period", "yesterday"), &config.Config{}, now)
		require.NoError(t, err)

		wantStart, wantEnd := timeutil.PeriodRange(timeutil.PeriodYesterday, now)
		assert.Equal(t, wantStart, start)
		assert.Equal(t, wantEnd, end)
	})

	t.Run("explicit range wins", func(t *testing.T) {
		cfg := &config.Config{}
		cfg.CLI.StartTime = now.Add(-3 * time.Hour)
		cfg.CLI.EndTime = now.Add(-time.Hour)

		start, end, err := timeRange(newContext(t, "--period", "30days"), cfg, now)
		require.NoError(t, err)

		assert.Equal(t, cfg.CLI.StartTime, start)
		assert.Equal(t, cfg.CLI.EndTime, end)
	})

	t.Run("unknown period", func(t *testing.T) {
		_, _, err := timeRange(newContext(t, "--period", "fortnight"), &config.Config{}, now)
		assert.ErrorIs(t, err, errUnknownPeriod)
	})
}

func TestFirstNonEmptyString(t *testing.T) {
	assert.Equal(t, "vim", firstNonEmptyString("", "vim", "nano"))
	assert.Empty(t, firstNonEmptyString("", ""))
}

type fakeBackend struct {
	pending []*models.PendingSegment
}

func (f *fakeBackend) Pending(context.Context) ([]*models.PendingSegment, error) {
	return f.pending, nil
}

func (f *fakeBackend) Confirm(context.Context, string, string, string) (models.Outcome, error) {
	return models.Outcome{}, nil
}

func (f *fakeBackend) Dismiss(context.Context, string) (models.Outcome, error) {
	return models.Outcome{}, nil
}

func (f *fakeBackend) Records(context.Context, time.Time, time.Time) ([]*models.RegistrationRecord, error) {
	return nil, nil
}

func (f *fakeBackend) Close() error {
	return nil
}

func TestFindPending(t *testing.T) {
	b := &fakeBackend{pending: []*models.PendingSegment{{Key: "a"}, {Key: "b"}}}

	p, err := findPending(context.Background(), b, "b")
	require.NoError(t, err)
	assert.Equal(t, "b", p.Key)

	_, err = findPending(context.Background(), b, "c")
	assert.ErrorIs(t, err, engine.ErrPendingNotFound)
}

func TestValidateLabel(t *testing.T) {
	require.NoError(t, validateLabel("Email @ Admin"))
	require.ErrorIs(t, validateLabel(" @ Admin"), errEmptyLabel)
	require.ErrorIs(t, validateLabel(""), errEmptyLabel)
}

func TestPrune(t *testing.T) {
	db, err := store.NewClient(filepath.Join(t.TempDir(), "tally.db"))
	require.NoError(t, err)

	t.Cleanup(func() { _ = db.Close() })

	base := time.Date(2024, 5, 6, 9, 0, 0, 0, time.UTC)

	for i := range 4 {
		require.NoError(t, db.AppendSample(&models.Sample{
			Time:  base.Add(time.Duration(i) * time.Hour),
			Title: "Inbox - Mail",
		}))
	}

	require.NoError(t, db.SetWatermark(base.Add(4*time.Hour)))
	require.NoError(t, prune(db, base.Add(2*time.Hour), true))

	samples, _, err := db.Query(base, base.Add(4*time.Hour))
	require.NoError(t, err)
	assert.Len(t, samples, 2)
}
