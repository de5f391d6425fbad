package daemon

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayoisaiah/tally/internal/config"
	"github.com/ayoisaiah/tally/internal/engine"
	"github.com/ayoisaiah/tally/internal/models"
	"github.com/ayoisaiah/tally/internal/notify"
)

var now = time.Date(2024, 5, 6, 9, 7, 0, 0, time.UTC)

type fakeAnalyzer struct {
	err     error
	reports []*engine.CycleReport
	calls   []time.Time
	mu      sync.Mutex
}

func (a *fakeAnalyzer) CatchUp(_ context.Context, t time.Time) ([]*engine.CycleReport, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.calls = append(a.calls, t)

	return a.reports, a.err
}

type fakePruner struct {
	before []time.Time
}

func (p *fakePruner) Prune(before time.Time) (int, error) {
	p.before = append(p.before, before)
	return 3, nil
}

type blockingRunner struct {
	started chan struct{}
}

func (r *blockingRunner) Run(ctx context.Context) error {
	close(r.started)
	<-ctx.Done()

	return nil
}

type failingRunner struct{}

func (failingRunner) Run(context.Context) error {
	return errors.New("address already in use")
}

func loadConfig(context.Context) (*config.Config, error) {
	return &config.Config{
		General: config.GeneralConfig{
			CycleLength: 15 * time.Minute,
			Retention:   720 * time.Hour,
		},
	}, nil
}

func TestNextBoundary(t *testing.T) {
	cycle := 15 * time.Minute

	assert.Equal(t, time.Date(2024, 5, 6, 9, 15, 0, 0, time.UTC), NextBoundary(now, cycle))
	assert.Equal(
		t,
		time.Date(2024, 5, 6, 9, 30, 0, 0, time.UTC),
		NextBoundary(time.Date(2024, 5, 6, 9, 15, 0, 0, time.UTC), cycle),
	)
}

func TestTick(t *testing.T) {
	var titles []string

	a := &fakeAnalyzer{
		reports: []*engine.CycleReport{
			{Outcomes: []models.Outcome{{Kind: models.AutoRegistered}}},
			{Outcomes: []models.Outcome{{Kind: models.Skipped, Reason: models.ReasonIdle}}},
		},
	}
	p := &fakePruner{}

	d := &Daemon{
		Analyzer: a,
		Pruner:   p,
		Config:   loadConfig,
		Now:      func() time.Time { return now },
		Notifier: notify.NotifierFunc(func(title, _ string) error {
			titles = append(titles, title)
			return nil
		}),
	}

	d.Tick(context.Background())

	require.Len(t, a.calls, 1)
	assert.Equal(t, now, a.calls[0])
	assert.Equal(t, []string{"Time tracked"}, titles)

	require.Len(t, p.before, 1)
	assert.Equal(t, now.Add(-720*time.Hour), p.before[0])
}

func TestTickSurvivesFailures(t *testing.T) {
	a := &fakeAnalyzer{err: engine.ErrCycleRunning}

	d := &Daemon{Analyzer: a, Config: loadConfig}

	d.Tick(context.Background())

	a.err = errors.New("disk full")

	d.Tick(context.Background())

	assert.Len(t, a.calls, 2)
}

func TestRunStopsWithContext(t *testing.T) {
	r := &blockingRunner{started: make(chan struct{})}
	a := &fakeAnalyzer{}

	d := &Daemon{
		Analyzer: a,
		Config:   loadConfig,
		Runners:  []Runner{r},
	}

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)

	go func() { done <- d.Run(ctx) }()

	<-r.started

	require.Eventually(t, func() bool {
		a.mu.Lock()
		defer a.mu.Unlock()

		return len(a.calls) == 1
	}, time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestRunFailsWhenATaskFails(t *testing.T) {
	d := &Daemon{
		Analyzer: &fakeAnalyzer{},
		Config:   loadConfig,
		Runners:  []Runner{failingRunner{}},
	}

	err := d.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "address already in use")
}
