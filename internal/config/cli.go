package config

import (
	"time"

	"github.com/urfave/cli/v2"

	"github.com/ayoisaiah/tally/internal/timeutil"
)

// CLIOptions represents command-line configuration options.
type CLIOptions struct {
	Start     string
	End       string
	Cycle     string
	LogLevel  string
	Threshold float64
	Offline   bool
	Verbose   bool
	NoNotify  bool
}

// WithCLIConfig returns an Option that loads configuration from CLI flags.
func WithCLIConfig(ctx *cli.Context) Option {
	return func(c *Config) error {
		opts := CLIOptions{
			Start:    ctx.String("start"),
			End:      ctx.String("end"),
			Cycle:    ctx.String("cycle"),
			LogLevel: ctx.String("log-level"),
			Offline:  ctx.Bool("offline"),
			Verbose:  ctx.Bool("verbose"),
			NoNotify: ctx.Bool("disable-notification"),
		}

		if ctx.IsSet("threshold") {
			opts.Threshold = ctx.Float64("threshold")
		} else {
			opts.Threshold = -1
		}

		return applyCLIOptions(c, opts, time.Now())
	}
}

// applyCLIOptions applies CLI options to the config.
func applyCLIOptions(c *Config, opts CLIOptions, now time.Time) error {
	if opts.Threshold >= 0 {
		c.Decision.Threshold = opts.Threshold
	}

	if opts.Offline {
		c.Classifier.Online = false
	}

	if opts.NoNotify {
		c.Notifications.Enabled = false
	}

	if opts.LogLevel != "" {
		c.Log.Level = opts.LogLevel
	}

	c.CLI.Verbose = opts.Verbose

	if opts.Cycle != "" {
		dur, err := parseDuration(opts.Cycle)
		if err != nil {
			return errInvalidCLIDuration.Fmt("cycle", err)
		}

		c.General.CycleLength = dur
	}

	c.CLI.EndTime = now

	if opts.End != "" {
		end, err := timeutil.FromStr(opts.End)
		if err != nil {
			return errInvalidCLIDuration.Fmt("end time", err)
		}

		c.CLI.EndTime = end
	}

	if opts.Start != "" {
		start, err := timeutil.FromStr(opts.Start)
		if err != nil {
			return errInvalidCLIDuration.Fmt("start time", err)
		}

		c.CLI.StartTime = start
	}

	return nil
}
