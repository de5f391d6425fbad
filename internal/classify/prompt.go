package classify

import (
	"fmt"
	"slices"
	"strings"

	"github.com/maruel/natural"

	"github.com/ayoisaiah/tally/internal/models"
	"github.com/ayoisaiah/tally/internal/timeutil"
)

const systemPrompt = `You classify what a person was doing on their computer from the window titles they had open and their calendar. Answer with JSON only.`

const maxKnownLabels = 40

// Prompt describes a segment for the online classifier. known lists the
// label and project pairs already used so the model can reuse them.
func Prompt(seg *models.Segment, known []pair) string {
	var b strings.Builder

	b.WriteString("Classify the activity in the following time segment.\n\n")

	fmt.Fprintf(
		&b,
		"Segment: %s to %s (%s)\n\n",
		seg.Start.Format("2006-01-02 15:04"),
		seg.End.Format("2006-01-02 15:04"),
		timeutil.HumanDuration(seg.Duration()),
	)

	b.WriteString("Window titles:\n")

	for _, title := range seg.Titles {
		fmt.Fprintf(&b, "- %s\n", title)
	}

	if len(seg.Events) > 0 {
		b.WriteString("\nCalendar events:\n")

		for _, ev := range seg.Events {
			fmt.Fprintf(
				&b,
				"- %s (%s-%s)\n",
				ev.Title,
				ev.Start.Format("15:04"),
				ev.End.Format("15:04"),
			)
		}
	}

	if len(known) > 0 {
		b.WriteString("\nKnown labels (label | project):\n")

		for _, p := range known {
			fmt.Fprintf(&b, "- %s | %s\n", p.label, p.project)
		}
	}

	b.WriteString("\nRespond with JSON only, in the form:\n")
	b.WriteString(`{"candidates":[{"label":"...","project":"...","confidence":0.0}]}`)
	b.WriteString("\nList up to three candidates, most likely first. Reuse a known label when one fits. Confidence is between 0 and 1.\n")

	return b.String()
}

// knownPairs returns the distinct label and project pairs of the most recent
// records, in natural label order.
func knownPairs(records []*models.RegistrationRecord) []pair {
	seen := make(map[pair]bool)

	var out []pair

	for i := len(records) - 1; i >= 0 && len(out) < maxKnownLabels; i-- {
		rec := records[i]
		p := pair{label: rec.Label, project: rec.Project}

		if rec.Label == "" || seen[p] {
			continue
		}

		seen[p] = true
		out = append(out, p)
	}

	slices.SortFunc(out, func(a, b pair) int {
		if a.label != b.label {
			if natural.Less(a.label, b.label) {
				return -1
			}

			return 1
		}

		return strings.Compare(a.project, b.project)
	})

	return out
}
