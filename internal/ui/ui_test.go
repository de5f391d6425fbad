package ui

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayoisaiah/tally/internal/models"
)

type fakeReviewer struct {
	confirmed map[string]string
	dismissed []string
	err       error
}

func (f *fakeReviewer) Confirm(
	_ context.Context,
	key, label, project string,
) (models.Outcome, error) {
	if f.err != nil {
		return models.Outcome{}, f.err
	}

	f.confirmed[key] = label + "|" + project

	return models.Outcome{Kind: models.AutoRegistered, Key: key, Label: label}, nil
}

func (f *fakeReviewer) Dismiss(_ context.Context, key string) (models.Outcome, error) {
	f.dismissed = append(f.dismissed, key)

	return models.Outcome{Kind: models.Skipped, Key: key, Reason: models.ReasonDismissed}, nil
}

func pendingList() []*models.PendingSegment {
	start := time.Date(2024, 5, 6, 9, 0, 0, 0, time.UTC)

	return []*models.PendingSegment{
		{
			Key:   "a",
			Title: "Zebra feeding rota",
			Start: start,
			End:   start.Add(15 * time.Minute),
			Candidates: []models.Candidate{
				{Label: "Zoo", Project: "Volunteering", Confidence: 0.3},
			},
		},
		{
			Key:   "b",
			Title: "Quokka census",
			Start: start.Add(15 * time.Minute),
			End:   start.Add(30 * time.Minute),
		},
	}
}

// send feeds msg to m and then every message its command produces, the way
// the bubbletea runtime would.
func send(m *Review, msg tea.Msg) tea.Cmd {
	_, cmd := m.Update(msg)

	for cmd != nil {
		next := cmd()

		if _, ok := next.(resultMsg); !ok {
			return cmd
		}

		_, cmd = m.Update(next)
	}

	return nil
}

func newTestReview(r Reviewer, pending []*models.PendingSegment) *Review {
	m := NewReview(context.Background(), r, pending)
	m.list.StatusMessageLifetime = time.Millisecond
	m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})

	return m
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestReviewAcceptAndDismiss(t *testing.T) {
	r := &fakeReviewer{confirmed: map[string]string{}}
	m := newTestReview(r, pendingList())

	send(m, tea.KeyMsg{Type: tea.KeyEnter})

	assert.Equal(t, "Zoo|Volunteering", r.confirmed["a"])
	assert.Len(t, m.list.Items(), 1)

	send(m, runes("x"))

	assert.Equal(t, []string{"b"}, r.dismissed)
	assert.Equal(t, 2, m.Resolved())
	assert.Empty(t, m.list.Items())
}

func TestReviewEditLabel(t *testing.T) {
	r := &fakeReviewer{confirmed: map[string]string{}}
	m := newTestReview(r, pendingList()[1:])

	send(m, runes("e"))
	require.True(t, m.editing)
	assert.Equal(t, "Quokka census", m.input.Value())

	m.input.SetValue("Fieldwork @ Research")
	send(m, tea.KeyMsg{Type: tea.KeyEnter})

	assert.False(t, m.editing)
	assert.Equal(t, "Fieldwork|Research", r.confirmed["b"])
}

func TestReviewKeepsItemOnError(t *testing.T) {
	r := &fakeReviewer{err: errors.New("toggl is down")}
	m := newTestReview(r, pendingList())

	send(m, tea.KeyMsg{Type: tea.KeyEnter})

	assert.Len(t, m.list.Items(), 2)
	assert.Zero(t, m.Resolved())
}

func TestParseLabel(t *testing.T) {
	label, project := ParseLabel(" Email @ Admin ")
	assert.Equal(t, "Email", label)
	assert.Equal(t, "Admin", project)

	label, project = ParseLabel("ops@example.com triage")
	assert.Equal(t, "ops@example.com triage", label)
	assert.Empty(t, project)
}

func TestConfidence(t *testing.T) {
	assert.Contains(t, Confidence(0.85, 0.5), "85%")
	assert.Contains(t, Confidence(0.1, 0.5), "10%")
}

func TestTableRender(t *testing.T) {
	var buf bytes.Buffer

	table := &Table{Header: []string{"LABEL", "TIME"}}
	table.Render(&buf)
	assert.Empty(t, buf.String())

	table.Append("Email", "15m")
	table.Render(&buf)

	assert.Contains(t, buf.String(), "LABEL")
	assert.Contains(t, buf.String(), "Email")
}
