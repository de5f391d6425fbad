package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"runtime"
	"slices"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/pterm/pterm"
	"github.com/urfave/cli/v2"

	"github.com/ayoisaiah/tally/internal/apperr"
	"github.com/ayoisaiah/tally/internal/calendar"
	"github.com/ayoisaiah/tally/internal/config"
	"github.com/ayoisaiah/tally/internal/control"
	"github.com/ayoisaiah/tally/internal/daemon"
	"github.com/ayoisaiah/tally/internal/engine"
	"github.com/ayoisaiah/tally/internal/models"
	"github.com/ayoisaiah/tally/internal/notify"
	"github.com/ayoisaiah/tally/internal/osutil"
	"github.com/ayoisaiah/tally/internal/pathutil"
	"github.com/ayoisaiah/tally/internal/sampler"
	"github.com/ayoisaiah/tally/internal/static"
	"github.com/ayoisaiah/tally/internal/timeutil"
	"github.com/ayoisaiah/tally/internal/ui"
	"github.com/ayoisaiah/tally/report"
	"github.com/ayoisaiah/tally/store"
)

const (
	envNoColor      = "NO_COLOR"
	envTallyNoColor = "TALLY_NO_COLOR"
)

var (
	errDaemonLocked = &apperr.Error{
		Message: "another tally daemon is already running",
	}

	errMissingKey = &apperr.Error{
		Message: "a pending segment key is required: see 'tally pending'",
	}

	errUnknownPeriod = &apperr.Error{
		Kind:    apperr.KindConfiguration,
		Message: "unknown period %q: expected one of %s",
	}
)

// firstNonEmptyString returns its first non-empty argument, or "" if all
// arguments are empty.
func firstNonEmptyString(ss ...string) string {
	for _, s := range ss {
		if s != "" {
			return s
		}
	}

	return ""
}

// timeRange resolves --start/--end, falling back to --period.
func timeRange(ctx *cli.Context, cfg *config.Config, now time.Time) (start, end time.Time, err error) {
	if !cfg.CLI.StartTime.IsZero() {
		return cfg.CLI.StartTime, cfg.CLI.EndTime, nil
	}

	period := timeutil.Period(ctx.String("period"))
	if !slices.Contains(timeutil.PeriodCollection, period) {
		return start, end, errUnknownPeriod.Fmt(period, periods())
	}

	start, end = timeutil.PeriodRange(period, now)

	return start, end, nil
}

// withBackend runs fn against the local database or the daemon.
func withBackend(
	ctx *cli.Context,
	fn func(s *session, b backend) error,
) error {
	s, err := newSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	b, err := s.backend(ctx.Context)
	if err != nil {
		return err
	}
	defer b.Close()

	return fn(s, b)
}

// daemonAction runs the sampler, calendar sync, analysis cycles and the
// control server until interrupted.
func daemonAction(ctx *cli.Context) error {
	c, stop := signal.NotifyContext(ctx.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := newSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	cfg := s.cfg

	if err = cfg.ValidateRegistration(); err != nil {
		return err
	}

	db, err := s.openStore()
	if errors.Is(err, store.ErrTallyRunning) {
		return errDaemonLocked
	}

	if err != nil {
		return err
	}
	defer db.Close()

	probe, err := sampler.NewCommandProbe(
		cfg.Sampler.WindowCmd,
		cfg.Sampler.ClassCmd,
		cfg.Sampler.IdleCmd,
	)
	if err != nil {
		return err
	}

	if err = static.Install(pathutil.Dir()); err != nil {
		slog.WarnContext(c, "unable to install static files", slog.Any("error", err))
	}

	e := s.engine(db)

	d := &daemon.Daemon{
		Analyzer: engine.NewAnalyzer(e),
		Pruner:   db,
		Notifier: notify.New(cfg.Notifications.Enabled),
		Config:   e.Config,
		Runners: []daemon.Runner{
			sampler.New(probe, db, sampler.Options{
				Interval:      cfg.Sampler.Interval,
				IdleThreshold: cfg.Segment.IdleThreshold,
			}),
			calendar.New(c, db, calendarOptions(cfg)),
			control.NewServer(cfg.Control.Addr, e),
		},
	}

	pterm.Info.Printfln(
		"tally %s is tracking activity. Control server on %s",
		config.Version,
		cfg.Control.Addr,
	)

	err = d.Run(c)
	if errors.Is(err, context.Canceled) {
		return nil
	}

	return err
}

// analyzeAction runs the cycles that are due, or re-runs the cycles within
// --start and --end.
func analyzeAction(ctx *cli.Context) error {
	s, err := newSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	db, err := s.localStore("analyze")
	if err != nil {
		return err
	}
	defer db.Close()

	e := s.engine(db)
	a := engine.NewAnalyzer(e)

	var reports []*engine.CycleReport

	if s.cfg.CLI.StartTime.IsZero() {
		reports, err = a.CatchUp(ctx.Context, time.Now())
	} else {
		reports, err = rerun(ctx.Context, a, s.cfg)
	}

	if ctx.Bool("json") {
		if jerr := report.JSON(config.Stdout, reports); jerr != nil {
			return jerr
		}

		return err
	}

	if len(reports) == 0 && err == nil {
		pterm.Info.Println("No complete cycle is due for analysis")
	}

	for _, r := range reports {
		report.PrintCycle(config.Stdout, r, s.cfg.Decision.Threshold)
	}

	return err
}

func rerun(
	ctx context.Context,
	a *engine.Analyzer,
	cfg *config.Config,
) ([]*engine.CycleReport, error) {
	windows := timeutil.Windows(
		cfg.CLI.StartTime,
		cfg.CLI.EndTime,
		cfg.General.CycleLength,
	)

	reports := make([]*engine.CycleReport, 0, len(windows))

	for _, w := range windows {
		r, err := a.Run(ctx, w)
		if err != nil {
			return reports, err
		}

		reports = append(reports, r)
	}

	return reports, nil
}

// pendingAction lists the segments waiting for confirmation.
func pendingAction(ctx *cli.Context) error {
	return withBackend(ctx, func(s *session, b backend) error {
		list, err := b.Pending(ctx.Context)
		if err != nil {
			return err
		}

		if ctx.Bool("json") {
			return report.JSON(config.Stdout, list)
		}

		report.PrintPending(config.Stdout, list, s.cfg.Decision.Threshold)

		return nil
	})
}

// reviewAction opens the interactive review of pending segments.
func reviewAction(ctx *cli.Context) error {
	return withBackend(ctx, func(_ *session, b backend) error {
		list, err := b.Pending(ctx.Context)
		if err != nil {
			return err
		}

		if len(list) == 0 {
			pterm.Info.Println("Nothing waiting for confirmation")
			return nil
		}

		n, err := ui.RunReview(ctx.Context, b, list)
		if err != nil {
			return err
		}

		pterm.Success.Printfln("Resolved %d of %d pending segments", n, len(list))

		return nil
	})
}

// confirmAction registers a pending segment with a label chosen by the user.
func confirmAction(ctx *cli.Context) error {
	key := ctx.Args().First()
	if key == "" {
		return errMissingKey
	}

	return withBackend(ctx, func(_ *session, b backend) error {
		label, project := ctx.String("label"), ctx.String("project")

		if label == "" {
			p, err := findPending(ctx.Context, b, key)
			if err != nil {
				return err
			}

			label, project, err = pickLabel(p)
			if err != nil {
				return err
			}
		}

		o, err := b.Confirm(ctx.Context, key, label, project)
		if err != nil {
			return err
		}

		printOutcome(&o)

		return nil
	})
}

// dismissAction drops a pending segment.
func dismissAction(ctx *cli.Context) error {
	key := ctx.Args().First()
	if key == "" {
		return errMissingKey
	}

	return withBackend(ctx, func(_ *session, b backend) error {
		o, err := b.Dismiss(ctx.Context, key)
		if err != nil {
			return err
		}

		printOutcome(&o)

		return nil
	})
}

func printOutcome(o *models.Outcome) {
	switch {
	case o.Kind == models.AutoRegistered && o.Existing:
		pterm.Info.Printfln("%s was already registered as %s", o.Key, o.Label)
	case o.Kind == models.AutoRegistered:
		pterm.Success.Printfln("Registered %s as entry %s", o.Label, o.EntryID)
	case o.Reason == models.ReasonRegistrationFailed:
		pterm.Error.Printfln("Registration failed: %s", o.Detail)
	default:
		pterm.Info.Printfln("%s: %s", o.Kind, o.Reason)
	}
}

// recordsAction lists registrations within a time range.
func recordsAction(ctx *cli.Context) error {
	return withBackend(ctx, func(s *session, b backend) error {
		start, end, err := timeRange(ctx, s.cfg, time.Now())
		if err != nil {
			return err
		}

		records, err := b.Records(ctx.Context, start, end)
		if err != nil {
			return err
		}

		if ctx.Bool("json") {
			return report.JSON(config.Stdout, records)
		}

		report.PrintRecords(config.Stdout, records)

		return nil
	})
}

// summaryAction prints the tracked time per label and project.
func summaryAction(ctx *cli.Context) error {
	return withBackend(ctx, func(s *session, b backend) error {
		start, end, err := timeRange(ctx, s.cfg, time.Now())
		if err != nil {
			return err
		}

		records, err := b.Records(ctx.Context, start, end)
		if err != nil {
			return err
		}

		totals := report.Totals(records)

		if ctx.Bool("json") {
			return report.JSON(config.Stdout, totals)
		}

		report.PrintTotals(config.Stdout, totals)

		return nil
	})
}

// samplesAction prints the raw samples within a time range.
func samplesAction(ctx *cli.Context) error {
	s, err := newSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	start, end, err := timeRange(ctx, s.cfg, time.Now())
	if err != nil {
		return err
	}

	db, err := s.localStore("samples")
	if err != nil {
		return err
	}
	defer db.Close()

	samples, events, err := db.Query(start, end)
	if err != nil {
		return err
	}

	if ctx.Bool("json") {
		return report.JSON(config.Stdout, map[string]any{
			"samples": samples,
			"events":  events,
		})
	}

	return listSamples(samples, events)
}

// pruneAction deletes old samples and calendar events.
func pruneAction(ctx *cli.Context) error {
	s, err := newSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	before := time.Now().Add(-s.cfg.General.Retention)

	if v := ctx.String("before"); v != "" {
		before, err = timeutil.FromStr(v)
		if err != nil {
			return err
		}
	}

	db, err := s.localStore("prune")
	if err != nil {
		return err
	}
	defer db.Close()

	return prune(db, before, ctx.Bool("yes"))
}

// editConfigAction handles the edit-config command which opens the tally
// config file in the user's default text editor.
func editConfigAction(_ *cli.Context) error {
	defaultEditor := "nano"

	if runtime.GOOS == osutil.Windows {
		defaultEditor = "C:\\Windows\\system32\\notepad.exe"
	}

	editor := firstNonEmptyString(
		os.Getenv("VISUAL"),
		os.Getenv("EDITOR"),
		defaultEditor,
	)

	if err := pathutil.Initialize(); err != nil {
		return err
	}

	cmd := exec.Command(editor, pathutil.ConfigFilePath())

	cmd.Stderr = os.Stderr
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout

	return cmd.Run()
}

func beforeAction(ctx *cli.Context) error {
	// Override the default help template
	cli.AppHelpTemplate = helpText()

	// Override the default version printer
	oldVersionPrinter := cli.VersionPrinter
	cli.VersionPrinter = func(c *cli.Context) {
		oldVersionPrinter(c)
		fmt.Printf(
			"https://github.com/ayoisaiah/tally/releases/%s\n",
			c.App.Version,
		)
	}

	ui.DarkTheme = lipgloss.HasDarkBackground()

	pterm.Error.MessageStyle = pterm.NewStyle(pterm.FgRed)
	pterm.Error.Prefix = pterm.Prefix{
		Text:  "ERROR",
		Style: pterm.NewStyle(pterm.BgRed, pterm.FgBlack),
	}

	// Disable colour output if NO_COLOR is set
	if _, exists := os.LookupEnv(envNoColor); exists {
		disableStyling()
	}

	// Disable colour output if TALLY_NO_COLOR is set
	if _, exists := os.LookupEnv(envTallyNoColor); exists {
		disableStyling()
	}

	if ctx.Bool("no-color") {
		disableStyling()
	}

	return nil
}

func afterAction(ctx *cli.Context) error {
	slog.DebugContext(ctx.Context, "exiting tally")

	return nil
}
