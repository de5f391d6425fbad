package calendar

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayoisaiah/tally/internal/models"
	"github.com/ayoisaiah/tally/internal/timeutil"
)

var now = time.Date(2024, 5, 6, 9, 0, 0, 0, time.UTC)

type memorySink struct {
	window timeutil.Window
	events []*models.CalendarEvent
	calls  int
}

func (m *memorySink) AppendEvents(w timeutil.Window, events []*models.CalendarEvent) error {
	m.calls++
	m.window, m.events = w, events

	return nil
}

type fakeGoogle struct {
	tokens  atomic.Int32
	failing string
}

func (f *fakeGoogle) server(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()

	mux.HandleFunc("POST /token", func(w http.ResponseWriter, r *http.Request) {
		if !assert.NoError(t, r.ParseForm()) {
			return
		}

		assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		assert.Equal(t, "refresh-me", r.PostForm.Get("refresh_token"))

		f.tokens.Add(1)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok","token_type":"Bearer","expires_in":3600}`))
	})

	mux.HandleFunc("GET /calendars/{id}/events", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		id := r.PathValue("id")
		if id == f.failing {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		assert.Equal(t, "true", r.URL.Query().Get("singleEvents"))

		var list eventList

		switch r.URL.Query().Get("pageToken") {
		case "":
			list = eventList{
				NextPageToken: "p2",
				Items: []event{
					{
						ID:      id + "-standup",
						Summary: "Standup",
						Start:   eventTime{DateTime: "2024-05-06T09:00:00Z"},
						End:     eventTime{DateTime: "2024-05-06T09:15:00Z"},
					},
					{
						ID:      id + "-holiday",
						Summary: "Bank holiday",
						Start:   eventTime{Date: "2024-05-06"},
						End:     eventTime{Date: "2024-05-07"},
					},
				},
			}
		case "p2":
			list = eventList{
				Items: []event{
					{
						ID:      id + "-cancelled",
						Status:  "cancelled",
						Summary: "Retro",
						Start:   eventTime{DateTime: "2024-05-06T09:30:00Z"},
						End:     eventTime{DateTime: "2024-05-06T10:00:00Z"},
					},
					{
						ID:          id + "-review",
						Summary:     " Design review ",
						Description: "Q3 roadmap",
						Start:       eventTime{DateTime: "2024-05-06T10:30:00+01:00"},
						End:         eventTime{DateTime: "2024-05-06T11:00:00+01:00"},
					},
				},
			}
		}

		_ = json.NewEncoder(w).Encode(list)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return srv
}

func options(srv *httptest.Server, ids ...string) Options {
	return Options{
		ClientID:     "id",
		ClientSecret: "secret",
		RefreshToken: "refresh-me",
		BaseURL:      srv.URL,
		TokenURL:     srv.URL + "/token",
		CalendarIDs:  ids,
	}
}

func TestSync(t *testing.T) {
	f := &fakeGoogle{}
	srv := f.server(t)
	sink := &memorySink{}

	s := New(context.Background(), sink, options(srv, "primary", "team@example.com"))
	require.True(t, s.Enabled())

	n, err := s.Sync(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	require.Equal(t, 1, sink.calls)
	assert.True(t, sink.window.Start.Equal(now.Add(-syncLookback)))
	assert.True(t, sink.window.End.Equal(now.Add(defaultLookahead)))

	require.Len(t, sink.events, 4)

	review := sink.events[1]
	assert.Equal(t, "primary-review", review.ID)
	assert.Equal(t, "Design review", review.Title)
	assert.Equal(t, "Q3 roadmap", review.Description)
	assert.True(t, review.Start.Equal(now.Add(30*time.Minute)))
	assert.Equal(t, "team@example.com", sink.events[2].CalendarID)

	_, err = s.Sync(context.Background(), now)
	require.NoError(t, err)
	assert.EqualValues(t, 1, f.tokens.Load(), "access token is reused")
}

func TestSyncFailureWritesNothing(t *testing.T) {
	f := &fakeGoogle{failing: "broken"}
	srv := f.server(t)
	sink := &memorySink{}

	s := New(context.Background(), sink, options(srv, "primary", "broken"))

	_, err := s.Sync(context.Background(), now)
	require.ErrorIs(t, err, errFetch)
	assert.Zero(t, sink.calls)
}

func TestUnconfiguredSyncIsNoop(t *testing.T) {
	sink := &memorySink{}

	s := New(context.Background(), sink, Options{ClientID: "id"})
	assert.False(t, s.Enabled())

	n, err := s.Sync(context.Background(), now)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, sink.calls)

	require.NoError(t, s.Run(context.Background()))
}
