package sampler

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/kballard/go-shellquote"

	"github.com/ayoisaiah/tally/internal/apperr"
)

var (
	errParseCmd = &apperr.Error{
		Kind:    apperr.KindConfiguration,
		Message: "unable to parse sampler command %q",
	}

	errNoWindowCmd = &apperr.Error{
		Kind:    apperr.KindConfiguration,
		Message: "sampler.window_cmd is required",
	}

	errProbe = &apperr.Error{
		Kind:    apperr.KindCollection,
		Message: "window probe failed",
	}
)

// Probe inspects the desktop.
type Probe interface {
	// ActiveWindow returns the title of the focused window and, when known,
	// the name of the program that owns it.
	ActiveWindow(ctx context.Context) (title, hint string, err error)
	// IdleTime returns the time since the last user input.
	IdleTime(ctx context.Context) (time.Duration, error)
}

// CommandProbe runs external commands such as xdotool or xprintidle.
type CommandProbe struct {
	window []string
	class  []string
	idle   []string
}

// NewCommandProbe parses the commands with shell quoting rules. Only the
// window command is required.
func NewCommandProbe(windowCmd, classCmd, idleCmd string) (*CommandProbe, error) {
	p := &CommandProbe{}

	var err error

	if p.window, err = split(windowCmd); err != nil {
		return nil, err
	}

	if len(p.window) == 0 {
		return nil, errNoWindowCmd
	}

	if p.class, err = split(classCmd); err != nil {
		return nil, err
	}

	if p.idle, err = split(idleCmd); err != nil {
		return nil, err
	}

	return p, nil
}

func split(cmd string) ([]string, error) {
	if strings.TrimSpace(cmd) == "" {
		return nil, nil
	}

	args, err := shellquote.Split(cmd)
	if err != nil {
		return nil, errParseCmd.Fmt(cmd).Wrap(err)
	}

	return args, nil
}

func run(ctx context.Context, args []string) (string, error) {
	var stdout, stderr bytes.Buffer

	//nolint:gosec // commands come from the user's config file
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", errProbe.Wrap(
			fmt.Errorf("%s: %w: %s", args[0], err, strings.TrimSpace(stderr.String())),
		)
	}

	return strings.TrimSpace(stdout.String()), nil
}

func (p *CommandProbe) ActiveWindow(ctx context.Context) (string, string, error) {
	title, err := run(ctx, p.window)
	if err != nil {
		return "", "", err
	}

	if len(p.class) == 0 {
		return title, "", nil
	}

	// the class is only a hint
	hint, err := run(ctx, p.class)
	if err != nil {
		hint = ""
	}

	return title, hint, nil
}

// IdleTime expects the idle command to print milliseconds. Without an idle
// command the user is never idle.
func (p *CommandProbe) IdleTime(ctx context.Context) (time.Duration, error) {
	if len(p.idle) == 0 {
		return 0, nil
	}

	out, err := run(ctx, p.idle)
	if err != nil {
		return 0, err
	}

	ms, err := strconv.ParseInt(out, 10, 64)
	if err != nil {
		return 0, errProbe.Wrap(fmt.Errorf("idle time %q: %w", out, err))
	}

	return time.Duration(ms) * time.Millisecond, nil
}
