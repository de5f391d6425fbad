package app

import (
	"fmt"
	"io"

	"github.com/pterm/pterm"

	"github.com/ayoisaiah/tally/internal/config"
	"github.com/ayoisaiah/tally/internal/models"
	"github.com/ayoisaiah/tally/internal/ui"
)

const (
	noSamplesMsg = "No samples found for the specified time range"
	timeFormat   = "Jan 02 15:04:05"
)

// printSamplesTable prints one row per sample.
func printSamplesTable(w io.Writer, samples []*models.Sample) {
	table := &ui.Table{Header: []string{"#", "TIME", "TITLE", "PROCESS"}}

	for i, s := range samples {
		title := s.Title
		if s.Idle {
			title = ui.Hint("idle")
		}

		table.Append(
			fmt.Sprintf("%d", i+1),
			s.Time.Local().Format(timeFormat),
			title,
			s.ProcessHint,
		)
	}

	table.Render(w)
}

func printEventsTable(w io.Writer, events []*models.CalendarEvent) {
	table := &ui.Table{Header: []string{"START", "END", "EVENT", "CALENDAR"}}

	for _, e := range events {
		table.Append(
			e.Start.Local().Format(timeFormat),
			e.End.Local().Format(timeFormat),
			e.Title,
			e.CalendarID,
		)
	}

	table.Render(w)
}

// listSamples prints out the samples and calendar events of a time range.
func listSamples(samples []*models.Sample, events []*models.CalendarEvent) error {
	if len(samples) == 0 {
		pterm.Info.Println(noSamplesMsg)
	} else {
		printSamplesTable(config.Stdout, samples)
	}

	if len(events) > 0 {
		printEventsTable(config.Stdout, events)
	}

	return nil
}
