// Package report prints analysis results, pending segments and registration
// totals to the terminal
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/maruel/natural"
	"github.com/pterm/pterm"

	"github.com/ayoisaiah/tally/internal/engine"
	"github.com/ayoisaiah/tally/internal/models"
	"github.com/ayoisaiah/tally/internal/timeutil"
	"github.com/ayoisaiah/tally/internal/ui"
)

const (
	dateFormat = "Jan 02 15:04"

	noPendingMsg = "Nothing waiting for confirmation"
	noRecordsMsg = "No registrations found for the specified time range"
)

// Total is the tracked time of one label and project.
type Total struct {
	Label    string        `json:"label"`
	Project  string        `json:"project,omitempty"`
	Duration time.Duration `json:"duration"`
	Entries  int           `json:"entries"`
}

// Totals groups records by label and project, longest first.
func Totals(records []*models.RegistrationRecord) []Total {
	type group struct{ label, project string }

	index := make(map[group]int)

	var totals []Total

	for _, rec := range records {
		g := group{rec.Label, rec.Project}

		i, ok := index[g]
		if !ok {
			i = len(totals)
			index[g] = i
			totals = append(totals, Total{Label: rec.Label, Project: rec.Project})
		}

		totals[i].Duration += rec.End.Sub(rec.Start)

		// extensions share the entry of the record they continue
		if !rec.Continued {
			totals[i].Entries++
		}
	}

	slices.SortFunc(totals, func(a, b Total) int {
		if a.Duration != b.Duration {
			if a.Duration > b.Duration {
				return -1
			}

			return 1
		}

		if a.Label != b.Label {
			if natural.Less(a.Label, b.Label) {
				return -1
			}

			return 1
		}

		return strings.Compare(a.Project, b.Project)
	})

	return totals
}

// JSON writes v as indented JSON.
func JSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(v)
}

// PrintTotals prints a table of totals followed by the overall time.
func PrintTotals(w io.Writer, totals []Total) {
	if len(totals) == 0 {
		pterm.Info.Println(noRecordsMsg)
		return
	}

	var all time.Duration

	table := &ui.Table{Header: []string{"LABEL", "PROJECT", "ENTRIES", "TIME"}}

	for _, t := range totals {
		all += t.Duration

		table.Append(
			t.Label,
			t.Project,
			strconv.Itoa(t.Entries),
			timeutil.HumanDuration(t.Duration),
		)
	}

	table.Render(w)

	fmt.Fprintf(w, "Total: %s\n", ui.Success(timeutil.HumanDuration(all)))
}

// PrintRecords prints one row per registration.
func PrintRecords(w io.Writer, records []*models.RegistrationRecord) {
	if len(records) == 0 {
		pterm.Info.Println(noRecordsMsg)
		return
	}

	table := &ui.Table{
		Header: []string{"#", "START", "END", "LABEL", "PROJECT", "SOURCE", "ENTRY"},
	}

	for i, rec := range records {
		entry := rec.EntryID
		if rec.Continued {
			entry += ui.Hint(" (continued)")
		}

		table.Append(
			strconv.Itoa(i+1),
			rec.Start.Local().Format(dateFormat),
			rec.End.Local().Format(dateFormat),
			rec.Label,
			rec.Project,
			string(rec.Source),
			entry,
		)
	}

	table.Render(w)
}

// PrintPending prints the pending segments with their best candidates.
func PrintPending(w io.Writer, list []*models.PendingSegment, threshold float64) {
	if len(list) == 0 {
		pterm.Info.Println(noPendingMsg)
		return
	}

	table := &ui.Table{
		Header:   []string{"#", "WHEN", "TITLE", "SUGGESTIONS", "KEY"},
		Separate: true,
	}

	for i, p := range list {
		table.Append(
			strconv.Itoa(i+1),
			p.Start.Local().Format(dateFormat)+" "+ui.Hint(timeutil.HumanDuration(p.End.Sub(p.Start))),
			p.Title,
			suggestions(p.Candidates, threshold),
			p.Key,
		)
	}

	table.Render(w)
}

func suggestions(candidates []models.Candidate, threshold float64) string {
	const limit = 3

	parts := make([]string, 0, limit)

	for i, c := range candidates {
		if i == limit {
			break
		}

		s := ui.Confidence(c.Confidence, threshold) + " " + c.Label
		if c.Project != "" {
			s += ui.Hint(" @ " + c.Project)
		}

		parts = append(parts, s)
	}

	return strings.Join(parts, "\n")
}

// PrintCycle prints every outcome of an analysis cycle.
func PrintCycle(w io.Writer, r *engine.CycleReport, threshold float64) {
	pterm.Info.Printfln("%s (%s)", r.Window, ui.Hint(r.ID))

	table := &ui.Table{Header: []string{"WHEN", "TITLE", "OUTCOME", "DETAIL"}}

	for i := range r.Outcomes {
		o := &r.Outcomes[i]

		table.Append(
			o.Start.Local().Format("15:04")+"-"+o.End.Local().Format("15:04"),
			o.Title,
			outcomeText(o),
			detail(o, threshold),
		)
	}

	table.Render(w)
}

func outcomeText(o *models.Outcome) string {
	switch o.Kind {
	case models.AutoRegistered:
		return ui.Success("registered")
	case models.PendingConfirmation:
		return ui.Waiting("pending")
	case models.Skipped:
		if o.Reason == models.ReasonRegistrationFailed {
			return ui.Failure("failed")
		}

		return ui.Hint("skipped: " + string(o.Reason))
	}

	return string(o.Kind)
}

func detail(o *models.Outcome, threshold float64) string {
	switch {
	case o.Kind == models.AutoRegistered:
		s := o.Label
		if o.Project != "" {
			s += " @ " + o.Project
		}

		if o.Existing {
			s += ui.Hint(" (already registered)")
		}

		return s
	case o.Detail != "":
		return o.Detail
	case len(o.Candidates) > 0:
		return suggestions(o.Candidates[:1], threshold)
	}

	return ""
}

// Error prints err.
func Error(err error) {
	pterm.Error.Println(err)
}
