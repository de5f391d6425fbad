package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/ayoisaiah/tally/internal/engine"
	"github.com/ayoisaiah/tally/internal/models"
	"github.com/ayoisaiah/tally/internal/timeutil"
	"github.com/ayoisaiah/tally/internal/ui"
)

const otherLabel = "\x00other"

var errEmptyLabel = errors.New("label must not be empty")

func findPending(
	ctx context.Context,
	b backend,
	key string,
) (*models.PendingSegment, error) {
	list, err := b.Pending(ctx)
	if err != nil {
		return nil, err
	}

	for _, p := range list {
		if p.Key == key {
			return p, nil
		}
	}

	return nil, engine.ErrPendingNotFound.Fmt(key)
}

func formatLabel(label, project string) string {
	if project == "" {
		return label
	}

	return label + " @ " + project
}

// pickLabel asks the user to choose one of the candidates of p or type a
// label of their own.
func pickLabel(p *models.PendingSegment) (label, project string, err error) {
	options := make([]huh.Option[string], 0, len(p.Candidates)+1)

	for _, c := range p.Candidates {
		text := fmt.Sprintf(
			"%s (%.0f%%, %s)",
			formatLabel(c.Label, c.Project),
			c.Confidence*100,
			c.Source,
		)

		options = append(options, huh.NewOption(text, formatLabel(c.Label, c.Project)))
	}

	options = append(options, huh.NewOption("Something else", otherLabel))

	var choice string

	title := fmt.Sprintf(
		"%s (%s, %s)",
		p.Title,
		p.Start.Local().Format("Jan 02 15:04"),
		timeutil.HumanDuration(p.End.Sub(p.Start)),
	)

	err = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title(title).
				Options(options...).
				Value(&choice),
		),
	).Run()
	if err != nil {
		return "", "", err
	}

	if choice == otherLabel {
		choice = ""

		err = huh.NewForm(
			huh.NewGroup(
				huh.NewInput().
					Title("Label").
					Description("Use 'label @ project' to pick a project").
					Validate(validateLabel).
					Value(&choice),
			),
		).Run()
		if err != nil {
			return "", "", err
		}
	}

	label, project = ui.ParseLabel(choice)

	return label, project, nil
}

func validateLabel(s string) error {
	if label, _ := ui.ParseLabel(s); strings.TrimSpace(label) == "" {
		return errEmptyLabel
	}

	return nil
}
