package gateway

import (
	"context"
	"slices"
	"strings"
)

// minProjectScore is the lowest score InferProject accepts.
const minProjectScore = 0.5

// ProjectLister is implemented by gateways that can list the projects an
// entry may be filed under.
type ProjectLister interface {
	Projects(ctx context.Context) ([]string, error)
}

// ProjectHint is what is known about an activity when its project has to be
// guessed.
type ProjectHint struct {
	Label         string
	WindowTitle   string
	CalendarTitle string
}

// ProjectMatch is a scored project.
type ProjectMatch struct {
	Name  string
	Score float64
}

// ScoreProject rates how well project fits the hint. A name match with the
// label scores 1 when equal, 0.8 when the name contains the label, 0.7 when
// the label contains the name and otherwise 0.6 times the share of the
// name's words found in the label. A name found in the window title adds
// 0.2, one found in the calendar title adds 0.3.
func ScoreProject(project string, hint ProjectHint) float64 {
	name := strings.ToLower(strings.TrimSpace(project))
	if name == "" {
		return 0
	}

	var score float64

	if label := strings.ToLower(strings.TrimSpace(hint.Label)); label != "" {
		switch {
		case name == label:
			score = 1
		case strings.Contains(name, label):
			score = 0.8
		case strings.Contains(label, name):
			score = 0.7
		default:
			labelWords := strings.Fields(label)
			nameWords := strings.Fields(name)

			var matching int

			for _, w := range nameWords {
				if slices.Contains(labelWords, w) {
					matching++
				}
			}

			score = 0.6 * float64(matching) / float64(len(nameWords))
		}
	}

	if strings.Contains(strings.ToLower(hint.WindowTitle), name) {
		score += 0.2
	}

	if strings.Contains(strings.ToLower(hint.CalendarTitle), name) {
		score += 0.3
	}

	return score
}

// InferProject returns the best scoring project for hint. ok is false when
// no project reaches 0.5. Ties go to the project listed first.
func InferProject(projects []string, hint ProjectHint) (ProjectMatch, bool) {
	var best ProjectMatch

	for _, p := range projects {
		if s := ScoreProject(p, hint); s > best.Score {
			best = ProjectMatch{Name: p, Score: s}
		}
	}

	return best, best.Score >= minProjectScore
}
