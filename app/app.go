// Package app defines the tally command-line interface
package app

import (
	"github.com/pterm/pterm"
	"github.com/urfave/cli/v2"

	"github.com/ayoisaiah/tally/internal/config"
)

// disableStyling disables all styling provided by pterm.
func disableStyling() {
	pterm.DisableColor()
	pterm.DisableStyling()
	pterm.Debug.Prefix.Text = ""
	pterm.Info.Prefix.Text = ""
	pterm.Success.Prefix.Text = ""
	pterm.Warning.Prefix.Text = ""
	pterm.Error.Prefix.Text = ""
	pterm.Fatal.Prefix.Text = ""
}

// Get retrieves the tally app instance.
func Get() *cli.App {
	rangeFlags := []cli.Flag{startFlag, endFlag, periodFlag, jsonFlag}

	tallyApp := &cli.App{
		Name: "tally",
		Authors: []*cli.Author{
			{
				Name:  "Ayooluwa Isaiah",
				Email: "ayo@freshman.tech",
			},
		},
		Usage: `
		Tally watches which window you work in, works out what you were doing 
		and registers it with your time tracker. Anything it is unsure about 
		waits for you to confirm.`,
		UsageText:            "[COMMAND] [OPTIONS]",
		Version:              config.Version,
		EnableBashCompletion: true,
		Commands: []*cli.Command{
			{
				Name:  "daemon",
				Usage: "Sample activity and register time entries until stopped",
				Flags: []cli.Flag{
					cycleFlag,
					thresholdFlag,
					offlineFlag,
					disableNotificationFlag,
				},
				Action: daemonAction,
			},
			{
				Name: "analyze",
				Usage: `
				Analyse the cycles that are due. With --start, re-run every cycle 
				in the range`,
				Flags: []cli.Flag{
					startFlag,
					endFlag,
					cycleFlag,
					thresholdFlag,
					offlineFlag,
					jsonFlag,
				},
				Action: analyzeAction,
			},
			{
				Name:   "pending",
				Usage:  "List the segments waiting for confirmation",
				Flags:  []cli.Flag{jsonFlag},
				Action: pendingAction,
			},
			{
				Name:   "review",
				Usage:  "Confirm or dismiss pending segments interactively",
				Action: reviewAction,
			},
			{
				Name:      "confirm",
				Usage:     "Register a pending segment",
				ArgsUsage: "KEY",
				Flags:     []cli.Flag{labelFlag, projectFlag},
				Action:    confirmAction,
			},
			{
				Name:      "dismiss",
				Usage:     "Drop a pending segment without registering it",
				ArgsUsage: "KEY",
				Action:    dismissAction,
			},
			{
				Name:   "records",
				Usage:  "List registered time entries. Defaults to today",
				Flags:  rangeFlags,
				Action: recordsAction,
			},
			{
				Name:   "summary",
				Usage:  "Print the time registered per label and project",
				Flags:  rangeFlags,
				Action: summaryAction,
			},
			{
				Name:   "samples",
				Usage:  "Print the raw samples and calendar events",
				Flags:  rangeFlags,
				Action: samplesAction,
			},
			{
				Name:   "prune",
				Usage:  "Delete old samples and calendar events",
				Flags:  []cli.Flag{beforeFlag, yesFlag},
				Action: pruneAction,
			},
			{
				Name:   "edit-config",
				Usage:  "Edit the configuration file",
				Action: editConfigAction,
			},
		},
		Flags: []cli.Flag{
			logLevelFlag,
			verboseFlag,
			noColorFlag,
		},
		Before: beforeAction,
		After:  afterAction,
	}

	return tallyApp
}
