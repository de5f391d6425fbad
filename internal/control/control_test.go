package control

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayoisaiah/tally/internal/apperr"
	"github.com/ayoisaiah/tally/internal/engine"
	"github.com/ayoisaiah/tally/internal/metrics"
	"github.com/ayoisaiah/tally/internal/models"
)

const pendingKey = "2024-05-06T09:00:00Z/2024-05-06T09:15:00Z#0123456789abcdef"

type fakeEngine struct {
	pending map[string]*models.PendingSegment
	failure error
	mu      sync.Mutex
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		pending: map[string]*models.PendingSegment{
			pendingKey: {
				Key:   pendingKey,
				Title: "Zebra feeding rota",
				Start: time.Date(2024, 5, 6, 9, 0, 0, 0, time.UTC),
				End:   time.Date(2024, 5, 6, 9, 15, 0, 0, time.UTC),
				Candidates: []models.Candidate{
					{Label: "Zebra feeding rota", Confidence: 0.1, Source: models.SourceOffline},
				},
			},
		},
	}
}

func (f *fakeEngine) Pending() ([]*models.PendingSegment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var list []*models.PendingSegment

	for _, p := range f.pending {
		list = append(list, p)
	}

	return list, nil
}

func (f *fakeEngine) Confirm(
	_ context.Context,
	key, label, project string,
) (models.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failure != nil {
		return models.Outcome{}, f.failure
	}

	if _, ok := f.pending[key]; !ok {
		return models.Outcome{}, engine.ErrPendingNotFound.Fmt(key)
	}

	delete(f.pending, key)

	return models.Outcome{
		Kind:    models.AutoRegistered,
		Key:     key,
		EntryID: "1001",
		Label:   label,
		Project: project,
	}, nil
}

func (f *fakeEngine) Dismiss(_ context.Context, key string) (models.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.pending[key]; !ok {
		return models.Outcome{}, engine.ErrPendingNotFound.Fmt(key)
	}

	delete(f.pending, key)

	return models.Outcome{Kind: models.Skipped, Key: key, Reason: models.ReasonDismissed}, nil
}

func (f *fakeEngine) Records(start, end time.Time) ([]*models.RegistrationRecord, error) {
	rec := &models.RegistrationRecord{
		Key:     pendingKey,
		EntryID: "1001",
		Label:   "Zoo",
		End:     time.Date(2024, 5, 6, 9, 15, 0, 0, time.UTC),
	}

	if rec.End.Before(start) || rec.End.After(end) {
		return nil, nil
	}

	return []*models.RegistrationRecord{rec}, nil
}

func newTestClient(t *testing.T, e Engine) (*Client, *httptest.Server) {
	t.Helper()

	srv := httptest.NewServer(NewServer("", e).Handler())
	t.Cleanup(srv.Close)

	return NewClient(srv.URL), srv
}

func TestPendingRoundTrip(t *testing.T) {
	c, _ := newTestClient(t, newFakeEngine())
	ctx := context.Background()

	list, err := c.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, pendingKey, list[0].Key)

	o, err := c.Confirm(ctx, pendingKey, "Zoo", "Volunteering")
	require.NoError(t, err)
	assert.Equal(t, models.AutoRegistered, o.Kind)
	assert.Equal(t, "1001", o.EntryID)

	list, err = c.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestErrorsKeepTheirMeaning(t *testing.T) {
	e := newFakeEngine()
	c, _ := newTestClient(t, e)
	ctx := context.Background()

	_, err := c.Dismiss(ctx, "missing")
	require.ErrorIs(t, err, errRemote)
	assert.Contains(t, err.Error(), "404")
	assert.Contains(t, err.Error(), "missing")

	e.mu.Lock()
	e.failure = (&apperr.Error{Kind: apperr.KindRegistration, Message: "registration failed"}).
		Wrap(io.ErrUnexpectedEOF)
	e.mu.Unlock()

	_, err = c.Confirm(ctx, pendingKey, "Zoo", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestBadRequestBody(t *testing.T) {
	_, srv := newTestClient(t, newFakeEngine())

	resp, err := http.Post(srv.URL+"/pending/confirm", "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	metrics.Get().RecordOutcome(string(models.Skipped), string(models.ReasonIdle))

	_, srv := newTestClient(t, newFakeEngine())

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "tally_outcomes_total")
}

func TestRecords(t *testing.T) {
	c, _ := newTestClient(t, newFakeEngine())
	day := time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC)

	list, err := c.Records(context.Background(), day, day.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Zoo", list[0].Label)

	list, err = c.Records(context.Background(), day.Add(-48*time.Hour), day)
	require.NoError(t, err)
	assert.Empty(t, list)
}
