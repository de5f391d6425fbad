// Package notify shows desktop notifications for analysis results
package notify

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/adrg/xdg"
	"github.com/gen2brain/beeep"

	"github.com/ayoisaiah/tally/internal/engine"
	"github.com/ayoisaiah/tally/internal/models"
	"github.com/ayoisaiah/tally/internal/static"
)

// Notifier delivers a message to the user.
type Notifier interface {
	Notify(title, msg string) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(title, msg string) error

func (f NotifierFunc) Notify(title, msg string) error {
	return f(title, msg)
}

// Desktop sends notifications through the OS notification service.
type Desktop struct {
	icon string
}

// NewDesktop returns a desktop notifier. The icon is looked up in the data
// directory and left out when missing.
func NewDesktop() *Desktop {
	// empty string if the icon is not found
	icon, _ := xdg.SearchDataFile(filepath.Join("tally", filepath.FromSlash(static.IconFile)))

	return &Desktop{icon: icon}
}

func (d *Desktop) Notify(title, msg string) error {
	return beeep.Notify(title, msg, d.icon)
}

// New returns a desktop notifier, or one that does nothing when disabled.
func New(enabled bool) Notifier {
	if !enabled {
		return NotifierFunc(func(string, string) error { return nil })
	}

	return NewDesktop()
}

// Summary describes the outcomes of a cycle that need the user's attention.
// ok is false when there is nothing worth interrupting the user for.
func Summary(report *engine.CycleReport) (title, msg string, ok bool) {
	var registered, pending, failed int

	for i := range report.Outcomes {
		o := &report.Outcomes[i]

		switch {
		case o.Kind == models.AutoRegistered && !o.Existing:
			registered++
		case o.Kind == models.PendingConfirmation:
			pending++
		case o.Kind == models.Skipped && o.Reason == models.ReasonRegistrationFailed:
			failed++
		}
	}

	switch {
	case failed > 0:
		title = "Time tracking failed"
		msg = fmt.Sprintf("%s could not be registered. Run 'tally analyze' to retry.", plural(failed, "segment"))
	case pending > 0:
		title = "Confirm your activity"
		msg = fmt.Sprintf("%s waiting for a label. Run 'tally pending' to review.", plural(pending, "segment"))
	case registered > 0:
		title = "Time tracked"
		msg = fmt.Sprintf("%s registered.", plural(registered, "entry"))
	default:
		return "", "", false
	}

	return title, msg, true
}

// Report notifies the user about report. Delivery failures are logged.
func Report(n Notifier, report *engine.CycleReport) {
	title, msg, ok := Summary(report)
	if !ok {
		return
	}

	if err := n.Notify(title, msg); err != nil {
		slog.Warn("unable to display notification", slog.Any("error", err))
	}
}

func plural(n int, word string) string {
	if n == 1 {
		return "1 " + word
	}

	if word == "entry" {
		return fmt.Sprintf("%d entries", n)
	}

	return fmt.Sprintf("%d %ss", n, word)
}
