package classify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayoisaiah/tally/internal/apperr"
	"github.com/ayoisaiah/tally/internal/models"
	"github.com/ayoisaiah/tally/internal/segment"
	"github.com/ayoisaiah/tally/internal/testutil"
)

var base = time.Date(2024, 5, 6, 9, 0, 0, 0, time.UTC)

type fakeHistory []*models.RegistrationRecord

func (h fakeHistory) Records(start, end time.Time) ([]*models.RegistrationRecord, error) {
	var out []*models.RegistrationRecord

	for _, r := range h {
		if !r.End.Before(start) && !r.End.After(end) {
			out = append(out, r)
		}
	}

	return out, nil
}

type brokenHistory struct{}

func (brokenHistory) Records(time.Time, time.Time) ([]*models.RegistrationRecord, error) {
	return nil, errors.New("disk on fire")
}

func newSegment(titles ...string) *models.Segment {
	return &models.Segment{
		Start:    base,
		End:      base.Add(12 * time.Minute),
		Kind:     models.KindActive,
		Title:    titles[0],
		TitleKey: segment.Normalize(titles[0]),
		Titles:   titles,
	}
}

// history returns n records of title, one per day going back from base.
func history(n int, title, label, project string) fakeHistory {
	var h fakeHistory

	for i := range n {
		end := base.Add(-time.Duration(i+1) * 24 * time.Hour)

		h = append(h, &models.RegistrationRecord{
			Key:      fmt.Sprintf("%s/%s/%s/%d", title, label, project, i),
			Start:    end.Add(-15 * time.Minute),
			End:      end,
			Label:    label,
			Project:  project,
			TitleKey: segment.Normalize(title),
		})
	}

	return h
}

func TestOfflineScenarioA(t *testing.T) {
	h := history(8, "Email - Inbox", "Admin", "Admin")

	c := NewOffline(h, 30*24*time.Hour)

	candidates, err := c.Classify(context.Background(), newSegment("Email - Inbox"))
	require.NoError(t, err)
	require.NotEmpty(t, candidates)

	top := candidates[0]
	assert.Equal(t, "Admin", top.Label)
	assert.Equal(t, "Admin", top.Project)
	assert.Equal(t, models.SourceOffline, top.Source)
	assert.GreaterOrEqual(t, top.Confidence, 0.5)
}

func TestOfflineScenarioB(t *testing.T) {
	c := NewOffline(fakeHistory{}, 0)

	candidates, err := c.Classify(context.Background(), newSegment("Quarterly numbers - Untitled"))
	require.NoError(t, err)
	require.NotEmpty(t, candidates)

	assert.Less(t, candidates[0].Confidence, 0.5)
	assert.Equal(t, "Quarterly numbers - Untitled", candidates[0].Label)
}

func TestOfflineNeverEmpty(t *testing.T) {
	c := NewOffline(brokenHistory{}, 0)

	seg := newSegment("")
	seg.Titles = nil

	candidates, err := c.Classify(context.Background(), seg)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, untitled, candidates[0].Label)
}

func TestOfflineDeterminism(t *testing.T) {
	h := append(
		history(5, "main.go - tally - Code", "Programming", "tally"),
		history(3, "main.go - tally - Code", "Review", "tally")...,
	)
	h = append(h, history(4, "store.go - tally - Code", "Programming", "tally")...)

	reversed := slices.Clone(h)
	slices.Reverse(reversed)

	seg := newSegment("main.go - tally - Code", "Slack | general")
	seg.Events = []*models.CalendarEvent{
		{ID: "1", Title: "Programming pairing", Start: base, End: base.Add(5 * time.Minute)},
	}

	first, err := NewOffline(h, 0).Classify(context.Background(), seg)
	require.NoError(t, err)

	second, err := NewOffline(reversed, 0).Classify(context.Background(), seg)
	require.NoError(t, err)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("offline output depends on history order (-first +second):\n%s", diff)
	}

	a, err := json.Marshal(first)
	require.NoError(t, err)

	b, err := json.Marshal(second)
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Equal(t, "Programming", first[0].Label)
}

func TestOfflineFuzzyMatchIsWeaker(t *testing.T) {
	h := history(8, "main.go - tally - Code", "Programming", "tally")

	c := NewOffline(h, 0)

	exact, err := c.Classify(context.Background(), newSegment("main.go - tally - Code"))
	require.NoError(t, err)

	fuzzy, err := c.Classify(context.Background(), newSegment("store.go - tally - Code"))
	require.NoError(t, err)

	assert.Equal(t, "Programming", fuzzy[0].Label)
	assert.Less(t, fuzzy[0].Confidence, exact[0].Confidence)
	assert.Less(t, fuzzy[0].Confidence, 0.5)
}

func TestOfflineRecency(t *testing.T) {
	recent := history(3, "notes - Obsidian", "Writing", "Blog")

	var old fakeHistory

	for _, r := range history(4, "notes - Obsidian", "Research", "Thesis") {
		r.End = r.End.Add(-365 * 24 * time.Hour)
		old = append(old, r)
	}

	c := NewOffline(append(old, recent...), 30*24*time.Hour)

	candidates, err := c.Classify(context.Background(), newSegment("notes - Obsidian"))
	require.NoError(t, err)

	assert.Equal(t, "Writing", candidates[0].Label)
}

func TestOfflineIgnoresFutureRecords(t *testing.T) {
	h := history(8, "Email - Inbox", "Admin", "Admin")
	for _, r := range h {
		r.End = r.End.Add(30 * 24 * time.Hour)
	}

	candidates, err := NewOffline(h, 0).Classify(context.Background(), newSegment("Email - Inbox"))
	require.NoError(t, err)

	assert.Equal(t, "Email", candidates[0].Label)
}

func TestOfflineUntilLearnsFromLaterRecords(t *testing.T) {
	h := history(8, "Zebra feeding rota", "Zoo", "Volunteering")
	for _, r := range h {
		r.End = r.End.Add(9 * 24 * time.Hour)
	}

	seg := newSegment("Zebra feeding rota")

	candidates, err := NewOffline(h, 0).Classify(context.Background(), seg)
	require.NoError(t, err)
	assert.NotEqual(t, "Zoo", candidates[0].Label)

	candidates, err = NewOffline(h, 0).
		Until(base.Add(10*24*time.Hour)).
		Classify(context.Background(), seg)
	require.NoError(t, err)

	assert.Equal(t, "Zoo", candidates[0].Label)
	assert.Equal(t, "Volunteering", candidates[0].Project)
	assert.GreaterOrEqual(t, candidates[0].Confidence, 0.5)
}

func TestOfflineCalendar(t *testing.T) {
	seg := newSegment("Zoom Meeting")
	seg.Events = []*models.CalendarEvent{
		{ID: "1", Title: "Sprint planning", Start: base, End: base.Add(time.Hour)},
	}

	candidates, err := NewOffline(nil, 0).Classify(context.Background(), seg)
	require.NoError(t, err)

	want := []models.Candidate{
		{Label: "Sprint planning", Source: models.SourceOffline, Confidence: 0.45},
		{Label: "Meeting", Source: models.SourceOffline, Confidence: 0.25},
	}

	if diff := cmp.Diff(want, candidates); diff != "" {
		t.Fatalf("unexpected candidates (-want +got):\n%s", diff)
	}

	// an event sharing a word with a keyword label raises it
	seg.Events[0].Title = "Team meeting"
	seg.Events[0].End = base.Add(3 * time.Minute)

	candidates, err = NewOffline(nil, 0).Classify(context.Background(), seg)
	require.NoError(t, err)

	assert.Equal(t, "Meeting", candidates[0].Label)
	assert.InDelta(t, 0.35, candidates[0].Confidence, 1e-9)
	assert.Equal(t, "Team meeting", candidates[1].Label)
	assert.InDelta(t, 0.3, candidates[1].Confidence, 1e-9)
}

func TestKeywordLabels(t *testing.T) {
	testCases := []struct {
		Title string
		Want  []string
	}{
		{"Inbox - Gmail - Mozilla Firefox", []string{"Email"}},
		{"Quarterly report - Google Docs - Google Chrome", []string{"Documents"}},
		{"Hacker News - Mozilla Firefox", []string{"Browsing"}},
		{"~/src/tally - Alacritty", []string{"Terminal"}},
		{"notes.txt", nil},
	}

	for _, tc := range testCases {
		t.Run(tc.Title, func(t *testing.T) {
			assert.Equal(t, tc.Want, keywordLabels([]string{tc.Title}))
		})
	}
}

func TestSortTieBreak(t *testing.T) {
	got := []models.Candidate{
		{Label: "task10", Confidence: 0.4},
		{Label: "task9", Confidence: 0.4},
		{Label: "b", Confidence: 0.9},
		{Label: "task9", Project: "a", Confidence: 0.4},
	}

	Sort(got)

	labels := make([]string, 0, len(got))
	for _, c := range got {
		labels = append(labels, c.Label+"/"+c.Project)
	}

	assert.Equal(t, []string{"b/", "task9/", "task9/a", "task10/"}, labels)
}

type promptCase struct {
	Snapshot []byte
}

func (p promptCase) Output() ([]byte, string) {
	return p.Snapshot, "prompt"
}

func TestPrompt(t *testing.T) {
	seg := newSegment("main.go - tally - Code", "Slack | general")
	seg.End = base.Add(15 * time.Minute)
	seg.Events = []*models.CalendarEvent{
		{ID: "1", Title: "Standup", Start: base, End: base.Add(10 * time.Minute)},
	}

	records := []*models.RegistrationRecord{
		{Label: "Programming", Project: "tally"},
		{Label: "Admin", Project: "Admin"},
		{Label: "Programming", Project: "tally"},
	}

	testutil.CompareGoldenFile(t, promptCase{
		Snapshot: []byte(Prompt(seg, knownPairs(records))),
	})
}

// fakeModel answers chat completion requests with content, or sleeps for
// segments whose prompt mentions "slow".
func fakeModel(t *testing.T, content string, status int) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)

		var req chatRequest
		if !assert.NoError(t, json.Unmarshal(body, &req)) || !assert.Len(t, req.Messages, 2) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		if strings.Contains(req.Messages[1].Content, "slow") {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}

			return
		}

		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}

		resp := map[string]any{
			"choices": []any{
				map[string]any{
					"message": map[string]string{"role": "assistant", "content": content},
				},
			},
		}

		_ = json.NewEncoder(w).Encode(resp)
	}))

	t.Cleanup(srv.Close)

	return srv
}

func newOnline(t *testing.T, endpoint string) *Online {
	t.Helper()

	o, err := NewOnline(OnlineOptions{
		Endpoint:  endpoint,
		APIKey:    "secret",
		RateLimit: 100,
		Burst:     10,
	}, nil)
	require.NoError(t, err)

	return o
}

func TestOnline(t *testing.T) {
	testCases := []struct {
		Name    string
		Content string
		Status  int
		Want    []models.Candidate
		Err     error
	}{
		{
			Name:    "valid answer is sorted",
			Content: `{"candidates":[{"label":"Chat","confidence":0.4},{"label":"Programming","project":"tally","confidence":0.85}]}`,
			Status:  http.StatusOK,
			Want: []models.Candidate{
				{Label: "Programming", Project: "tally", Source: models.SourceOnline, Confidence: 0.85},
				{Label: "Chat", Source: models.SourceOnline, Confidence: 0.4},
			},
		},
		{
			Name:    "code fence is stripped",
			Content: "```json\n{\"candidates\":[{\"label\":\"Admin\",\"confidence\":0.7}]}\n```",
			Status:  http.StatusOK,
			Want: []models.Candidate{
				{Label: "Admin", Source: models.SourceOnline, Confidence: 0.7},
			},
		},
		{
			Name:    "confidence out of range",
			Content: `{"candidates":[{"label":"Admin","confidence":7}]}`,
			Status:  http.StatusOK,
			Err:     errMalformed,
		},
		{
			Name:    "missing confidence",
			Content: `{"candidates":[{"label":"Admin"}]}`,
			Status:  http.StatusOK,
			Err:     errMalformed,
		},
		{
			Name:    "empty answer",
			Content: `{"candidates":[]}`,
			Status:  http.StatusOK,
			Err:     errMalformed,
		},
		{
			Name:    "not json",
			Content: `I think you were coding`,
			Status:  http.StatusOK,
			Err:     errMalformed,
		},
		{
			Name:   "server error",
			Status: http.StatusInternalServerError,
			Err:    errOnlineStatus,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.Name, func(t *testing.T) {
			srv := fakeModel(t, tc.Content, tc.Status)

			got, err := newOnline(t, srv.URL).Classify(context.Background(), newSegment("main.go - tally - Code"))

			if tc.Err != nil {
				assert.ErrorIs(t, err, tc.Err)
				assert.Equal(t, apperr.KindClassification, apperr.KindOf(err))

				return
			}

			require.NoError(t, err)

			if diff := cmp.Diff(tc.Want, got); diff != "" {
				t.Fatalf("unexpected candidates (-want +got):\n%s", diff)
			}
		})
	}
}

func TestNewOnlineRequiresKey(t *testing.T) {
	_, err := NewOnline(OnlineOptions{Endpoint: "https://example.com"}, nil)
	assert.ErrorIs(t, err, errNotConfigured)
}

func TestFallbackScenarioC(t *testing.T) {
	srv := fakeModel(
		t,
		`{"candidates":[{"label":"Programming","project":"tally","confidence":0.9}]}`,
		http.StatusOK,
	)

	offline := NewOffline(nil, 0)
	f := NewFallback(newOnline(t, srv.URL), offline, 200*time.Millisecond)

	slow, err := f.Classify(context.Background(), newSegment("slow build - Terminal"))
	require.NoError(t, err)
	require.NotEmpty(t, slow)
	assert.Equal(t, models.SourceOffline, slow[0].Source)

	fast, err := f.Classify(context.Background(), newSegment("main.go - tally - Code"))
	require.NoError(t, err)
	require.NotEmpty(t, fast)
	assert.Equal(t, models.SourceOnline, fast[0].Source)
	assert.Equal(t, "Programming", fast[0].Label)
}

func TestSelector(t *testing.T) {
	offline := NewOffline(nil, 0)
	online := newOnline(t, "https://llm.invalid")

	up := func(context.Context, string) bool { return true }
	down := func(context.Context, string) bool { return false }

	s := &Selector{Offline: offline}
	assert.Same(t, offline, s.Select(context.Background()))

	s = &Selector{Offline: offline, Online: online, Probe: down}
	assert.Same(t, offline, s.Select(context.Background()))

	s = &Selector{Offline: offline, Online: online, Probe: up}
	assert.IsType(t, &Fallback{}, s.Select(context.Background()))
}

func TestTCPProbe(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	assert.True(t, TCPProbe(context.Background(), srv.URL))

	srv.Close()
	assert.False(t, TCPProbe(context.Background(), srv.URL))
	assert.False(t, TCPProbe(context.Background(), "::not a url"))
}
