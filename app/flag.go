package app

import (
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/ayoisaiah/tally/internal/timeutil"
)

func periods() string {
	s := make([]string, len(timeutil.PeriodCollection))

	for i, p := range timeutil.PeriodCollection {
		s[i] = string(p)
	}

	return strings.Join(s, ", ")
}

var (
	startFlag = &cli.StringFlag{
		Name:    "start",
		Aliases: []string{"s"},
		Usage:   "Start of the time range (e.g. '2 hours ago', 'yesterday 9am')",
	}

	endFlag = &cli.StringFlag{
		Name:    "end",
		Aliases: []string{"e"},
		Usage:   "End of the time range. Defaults to now",
	}

	periodFlag = &cli.StringFlag{
		Name:    "period",
		Aliases: []string{"p"},
		Usage:   "Reporting period when --start is not set: " + periods(),
		Value:   string(timeutil.PeriodToday),
	}

	cycleFlag = &cli.StringFlag{
		Name:    "cycle",
		Aliases: []string{"c"},
		Usage:   "Analysis cycle length (e.g. 15m)",
	}

	thresholdFlag = &cli.Float64Flag{
		Name:    "threshold",
		Aliases: []string{"t"},
		Usage:   "Confidence needed to register a segment without asking (0-1)",
	}

	offlineFlag = &cli.BoolFlag{
		Name:  "offline",
		Usage: "Never call the online classifier",
	}

	logLevelFlag = &cli.StringFlag{
		Name:  "log-level",
		Usage: "Minimum log level: debug, info, warn or error",
	}

	verboseFlag = &cli.BoolFlag{
		Name:    "verbose",
		Aliases: []string{"V"},
		Usage:   "Mirror log output to stderr",
	}

	noColorFlag = &cli.BoolFlag{
		Name:  "no-color",
		Usage: "Disable coloured output",
	}

	disableNotificationFlag = &cli.BoolFlag{
		Name:    "disable-notification",
		Aliases: []string{"d"},
		Usage:   "Disable the system notification that appears after an analysis cycle",
	}

	jsonFlag = &cli.BoolFlag{
		Name:  "json",
		Usage: "Print JSON instead of a table",
	}

	labelFlag = &cli.StringFlag{
		Name:    "label",
		Aliases: []string{"l"},
		Usage:   "Label to register. Prompts with the suggestions when empty",
	}

	projectFlag = &cli.StringFlag{
		Name:  "project",
		Usage: "Project to register the label under",
	}

	beforeFlag = &cli.StringFlag{
		Name:  "before",
		Usage: "Delete samples older than this time. Defaults to the retention period",
	}

	yesFlag = &cli.BoolFlag{
		Name:    "yes",
		Aliases: []string{"y"},
		Usage:   "Do not ask for confirmation",
	}
)
