package engine

import (
	"strings"

	"github.com/ayoisaiah/tally/internal/models"
)

// Action is what the engine does with a classified segment.
type Action int

const (
	ActionPending Action = iota
	ActionRegister
	ActionExclude
)

func (a Action) String() string {
	switch a {
	case ActionRegister:
		return "register"
	case ActionExclude:
		return "exclude"
	default:
		return "pending"
	}
}

// Policy is the auto-registration policy of one analysis cycle.
type Policy struct {
	ExcludedProjects []string
	Threshold        float64
}

// Excluded reports whether project is never registered automatically.
func (p Policy) Excluded(project string) bool {
	project = strings.TrimSpace(project)
	if project == "" {
		return false
	}

	for _, ex := range p.ExcludedProjects {
		if strings.EqualFold(strings.TrimSpace(ex), project) {
			return true
		}
	}

	return false
}

// Decision is the result of applying a Policy to a candidate list.
type Decision struct {
	Top    models.Candidate
	Action Action
}

// Decide applies the threshold policy to the top candidate. candidates must
// be sorted by descending confidence. An empty list always asks the user.
func Decide(candidates []models.Candidate, p Policy) Decision {
	if len(candidates) == 0 {
		return Decision{Action: ActionPending}
	}

	top := candidates[0]

	if top.Confidence < p.Threshold {
		return Decision{Top: top, Action: ActionPending}
	}

	if p.Excluded(top.Project) {
		return Decision{Top: top, Action: ActionExclude}
	}

	return Decision{Top: top, Action: ActionRegister}
}
