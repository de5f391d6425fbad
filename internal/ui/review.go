package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/ayoisaiah/tally/internal/models"
	"github.com/ayoisaiah/tally/internal/timeutil"
)

// projectSep separates a label from a project in the label editor.
const projectSep = " @ "

// Reviewer resolves pending segments.
type Reviewer interface {
	Confirm(ctx context.Context, key, label, project string) (models.Outcome, error)
	Dismiss(ctx context.Context, key string) (models.Outcome, error)
}

type keymap struct {
	accept  key.Binding
	edit    key.Binding
	dismiss key.Binding
	cancel  key.Binding
}

var defaultKeymap = keymap{
	accept: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "accept"),
	),
	edit: key.NewBinding(
		key.WithKeys("e"),
		key.WithHelp("e", "edit label"),
	),
	dismiss: key.NewBinding(
		key.WithKeys("x"),
		key.WithHelp("x", "dismiss"),
	),
	cancel: key.NewBinding(
		key.WithKeys("esc"),
		key.WithHelp("esc", "cancel"),
	),
}

type pendingItem struct {
	p *models.PendingSegment
}

func (i pendingItem) top() models.Candidate {
	if len(i.p.Candidates) == 0 {
		return models.Candidate{Label: i.p.Title}
	}

	return i.p.Candidates[0]
}

func (i pendingItem) Title() string {
	return fmt.Sprintf(
		"%s-%s  %s",
		i.p.Start.Local().Format("Jan 02 15:04"),
		i.p.End.Local().Format("15:04"),
		i.p.Title,
	)
}

func (i pendingItem) Description() string {
	top := i.top()

	desc := fmt.Sprintf("%s (%.0f%%)", top.Label, top.Confidence*100)
	if top.Project != "" {
		desc += projectSep + top.Project
	}

	return desc + "  " + timeutil.HumanDuration(i.p.End.Sub(i.p.Start))
}

func (i pendingItem) FilterValue() string {
	return i.p.Title
}

type resultMsg struct {
	err     error
	key     string
	outcome models.Outcome
}

// Review is an interactive list of pending segments.
type Review struct {
	ctx      context.Context
	reviewer Reviewer
	list     list.Model
	input    textinput.Model
	resolved int
	editing  bool
}

// NewReview returns the review model for pending.
func NewReview(
	ctx context.Context,
	r Reviewer,
	pending []*models.PendingSegment,
) *Review {
	items := make([]list.Item, len(pending))
	for i, p := range pending {
		items[i] = pendingItem{p: p}
	}

	l := list.New(items, list.NewDefaultDelegate(), 0, 0)
	l.Title = "Pending segments"
	l.SetStatusBarItemName("segment", "segments")
	l.AdditionalShortHelpKeys = func() []key.Binding {
		return []key.Binding{
			defaultKeymap.accept,
			defaultKeymap.edit,
			defaultKeymap.dismiss,
		}
	}

	input := textinput.New()
	input.Placeholder = "label" + projectSep + "project"
	input.Prompt = "Label: "

	return &Review{
		ctx:      ctx,
		reviewer: r,
		list:     l,
		input:    input,
	}
}

// Resolved returns the number of segments confirmed or dismissed.
func (m *Review) Resolved() int {
	return m.resolved
}

func (m *Review) Init() tea.Cmd {
	return nil
}

func (m *Review) selected() (pendingItem, bool) {
	item, ok := m.list.SelectedItem().(pendingItem)
	return item, ok
}

func (m *Review) confirm(item pendingItem, label, project string) tea.Cmd {
	return func() tea.Msg {
		o, err := m.reviewer.Confirm(m.ctx, item.p.Key, label, project)
		return resultMsg{key: item.p.Key, outcome: o, err: err}
	}
}

func (m *Review) dismiss(item pendingItem) tea.Cmd {
	return func() tea.Msg {
		o, err := m.reviewer.Dismiss(m.ctx, item.p.Key)
		return resultMsg{key: item.p.Key, outcome: o, err: err}
	}
}

// ParseLabel splits "label @ project".
func ParseLabel(s string) (label, project string) {
	label, project, _ = strings.Cut(s, projectSep)

	return strings.TrimSpace(label), strings.TrimSpace(project)
}

func (m *Review) handleResult(msg resultMsg) tea.Cmd {
	if msg.err != nil {
		return m.list.NewStatusMessage(Failure("error: " + msg.err.Error()))
	}

	for i, item := range m.list.Items() {
		if p, ok := item.(pendingItem); ok && p.p.Key == msg.key {
			m.list.RemoveItem(i)
			break
		}
	}

	m.resolved++

	if len(m.list.Items()) == 0 {
		return tea.Quit
	}

	status := "dismissed"
	if msg.outcome.Kind == models.AutoRegistered {
		status = "registered as " + msg.outcome.Label
	} else if msg.outcome.Reason == models.ReasonRegistrationFailed {
		status = "registration failed: " + msg.outcome.Detail
	}

	return m.list.NewStatusMessage(Success(status))
}

func (m *Review) updateEditor(msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, defaultKeymap.cancel):
		m.editing = false
		m.input.Blur()

		return nil
	case key.Matches(msg, defaultKeymap.accept):
		item, ok := m.selected()
		m.editing = false
		m.input.Blur()

		label, project := ParseLabel(m.input.Value())
		if !ok || label == "" {
			return nil
		}

		return m.confirm(item, label, project)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)

	return cmd
}

func (m *Review) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.list.SetSize(msg.Width, msg.Height-2)
	case resultMsg:
		return m, m.handleResult(msg)
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}

		if m.editing {
			return m, m.updateEditor(msg)
		}

		if m.list.FilterState() == list.Filtering {
			break
		}

		item, ok := m.selected()

		switch {
		case !ok:
		case key.Matches(msg, defaultKeymap.accept):
			top := item.top()
			return m, m.confirm(item, top.Label, top.Project)
		case key.Matches(msg, defaultKeymap.dismiss):
			return m, m.dismiss(item)
		case key.Matches(msg, defaultKeymap.edit):
			top := item.top()
			value := top.Label

			if top.Project != "" {
				value += projectSep + top.Project
			}

			m.editing = true
			m.input.SetValue(value)
			m.input.CursorEnd()

			return m, m.input.Focus()
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)

	return m, cmd
}

func (m *Review) View() string {
	if m.editing {
		return m.list.View() + "\n" + m.input.View()
	}

	return m.list.View()
}

// RunReview lets the user resolve pending interactively. It returns the
// number of resolved segments.
func RunReview(
	ctx context.Context,
	r Reviewer,
	pending []*models.PendingSegment,
) (int, error) {
	m := NewReview(ctx, r, pending)

	if _, err := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run(); err != nil {
		return m.Resolved(), err
	}

	return m.Resolved(), nil
}
