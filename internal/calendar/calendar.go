// Package calendar copies Google Calendar events into the sample store
package calendar

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/ayoisaiah/tally/internal/apperr"
	"github.com/ayoisaiah/tally/internal/metrics"
	"github.com/ayoisaiah/tally/internal/models"
	"github.com/ayoisaiah/tally/internal/timeutil"
)

const (
	defaultBaseURL   = "https://www.googleapis.com/calendar/v3"
	readonlyScope    = "https://www.googleapis.com/auth/calendar.readonly"
	defaultLookahead = time.Hour
	defaultInterval  = 10 * time.Minute
	requestTimeout   = 30 * time.Second
	// events that started this long ago may still be refreshed
	syncLookback = 24 * time.Hour
	maxPages     = 20
)

var (
	errFetch = &apperr.Error{
		Kind:    apperr.KindCollection,
		Message: "unable to fetch events of calendar %q",
	}

	errStatus = &apperr.Error{
		Kind:    apperr.KindCollection,
		Message: "calendar api returned status %d",
	}
)

// Sink stores calendar events.
type Sink interface {
	AppendEvents(window timeutil.Window, events []*models.CalendarEvent) error
}

// Options configures a Syncer.
type Options struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	BaseURL      string
	TokenURL     string
	CalendarIDs  []string
	Interval     time.Duration
	Lookahead    time.Duration
}

// Configured reports whether every credential is present.
func (o Options) Configured() bool {
	return o.ClientID != "" &&
		o.ClientSecret != "" &&
		o.RefreshToken != "" &&
		len(o.CalendarIDs) > 0
}

// Syncer fetches events on its own schedule. Without credentials it syncs
// nothing and never fails.
type Syncer struct {
	client *http.Client
	sink   Sink
	opts   Options
}

type eventTime struct {
	DateTime string `json:"dateTime"`
	Date     string `json:"date"`
}

type event struct {
	Start       eventTime `json:"start"`
	End         eventTime `json:"end"`
	ID          string    `json:"id"`
	Status      string    `json:"status"`
	Summary     string    `json:"summary"`
	Description string    `json:"description"`
}

type eventList struct {
	NextPageToken string  `json:"nextPageToken"`
	Items         []event `json:"items"`
}

// New returns a Syncer that refreshes its access token with the configured
// refresh token.
func New(ctx context.Context, sink Sink, opts Options) *Syncer {
	if opts.BaseURL == "" {
		opts.BaseURL = defaultBaseURL
	}

	opts.BaseURL = strings.TrimSuffix(opts.BaseURL, "/")

	if opts.Lookahead <= 0 {
		opts.Lookahead = defaultLookahead
	}

	if opts.Interval <= 0 {
		opts.Interval = defaultInterval
	}

	s := &Syncer{sink: sink, opts: opts}

	if !opts.Configured() {
		return s
	}

	endpoint := google.Endpoint
	if opts.TokenURL != "" {
		endpoint = oauth2.Endpoint{
			AuthURL:  endpoint.AuthURL,
			TokenURL: opts.TokenURL,
		}
	}

	conf := &oauth2.Config{
		ClientID:     opts.ClientID,
		ClientSecret: opts.ClientSecret,
		Endpoint:     endpoint,
		Scopes:       []string{readonlyScope},
	}

	base := &http.Client{Timeout: requestTimeout}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, base)

	s.client = conf.Client(ctx, &oauth2.Token{RefreshToken: opts.RefreshToken})
	s.client.Timeout = requestTimeout

	return s
}

// Enabled reports whether the syncer has credentials.
func (s *Syncer) Enabled() bool {
	return s.client != nil
}

// Sync replaces the stored events around now with the current ones. When any
// calendar fails nothing is written so that no event is lost.
func (s *Syncer) Sync(ctx context.Context, now time.Time) (int, error) {
	if !s.Enabled() {
		return 0, nil
	}

	m := metrics.Get()

	window := timeutil.Window{
		Start: now.Add(-syncLookback),
		End:   now.Add(s.opts.Lookahead),
	}

	var events []*models.CalendarEvent

	for _, id := range s.opts.CalendarIDs {
		evs, err := s.fetch(ctx, id, window)
		if err != nil {
			m.CalendarSyncsTotal.WithLabelValues("error").Inc()
			return 0, errFetch.Fmt(id).Wrap(err)
		}

		events = append(events, evs...)
	}

	if err := s.sink.AppendEvents(window, events); err != nil {
		m.CalendarSyncsTotal.WithLabelValues("error").Inc()
		return 0, err
	}

	m.CalendarSyncsTotal.WithLabelValues("ok").Inc()

	slog.DebugContext(
		ctx,
		"calendar synced",
		slog.Int("events", len(events)),
		slog.String("window", window.String()),
	)

	return len(events), nil
}

func (s *Syncer) fetch(
	ctx context.Context,
	calendarID string,
	window timeutil.Window,
) ([]*models.CalendarEvent, error) {
	var (
		events    []*models.CalendarEvent
		pageToken string
	)

	for range maxPages {
		q := url.Values{}
		q.Set("timeMin", window.Start.UTC().Format(time.RFC3339))
		q.Set("timeMax", window.End.UTC().Format(time.RFC3339))
		q.Set("singleEvents", "true")
		q.Set("orderBy", "startTime")

		if pageToken != "" {
			q.Set("pageToken", pageToken)
		}

		endpoint := fmt.Sprintf(
			"%s/calendars/%s/events?%s",
			s.opts.BaseURL,
			url.PathEscape(calendarID),
			q.Encode(),
		)

		list, err := s.get(ctx, endpoint)
		if err != nil {
			return nil, err
		}

		for i := range list.Items {
			if ev := convert(calendarID, &list.Items[i]); ev != nil {
				events = append(events, ev)
			}
		}

		pageToken = list.NextPageToken
		if pageToken == "" {
			break
		}
	}

	return events, nil
}

func (s *Syncer) get(ctx context.Context, endpoint string) (*eventList, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, errStatus.Fmt(resp.StatusCode)
	}

	var list eventList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, err
	}

	return &list, nil
}

// convert drops cancelled and all-day events, which say nothing about what
// the user is doing at a given time.
func convert(calendarID string, e *event) *models.CalendarEvent {
	if e.Status == "cancelled" || e.Start.DateTime == "" || e.End.DateTime == "" {
		return nil
	}

	start, err := time.Parse(time.RFC3339, e.Start.DateTime)
	if err != nil {
		return nil
	}

	end, err := time.Parse(time.RFC3339, e.End.DateTime)
	if err != nil || !end.After(start) {
		return nil
	}

	return &models.CalendarEvent{
		ID:          e.ID,
		CalendarID:  calendarID,
		Title:       strings.TrimSpace(e.Summary),
		Description: strings.TrimSpace(e.Description),
		Start:       start,
		End:         end,
	}
}

// Run syncs immediately and then at every interval until ctx is done.
// Failures are logged and retried on the next tick.
func (s *Syncer) Run(ctx context.Context) error {
	if !s.Enabled() {
		slog.InfoContext(ctx, "calendar sync disabled, no credentials configured")
		return nil
	}

	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	for {
		if _, err := s.Sync(ctx, time.Now()); err != nil && ctx.Err() == nil {
			slog.WarnContext(ctx, "calendar sync failed", slog.Any("error", err))
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
