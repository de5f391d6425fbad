package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/pterm/pterm"
	"github.com/pterm/pterm/putils"
)

const asciiLogo = `
████████╗ █████╗ ██╗     ██╗  ██╗   ██╗
╚══██╔══╝██╔══██╗██║     ██║  ╚██╗ ██╔╝
   ██║   ███████║██║     ██║   ╚████╔╝
   ██║   ██╔══██║██║     ██║    ╚██╔╝
   ██║   ██║  ██║███████╗███████╗██║
   ╚═╝   ╚═╝  ╚═╝╚══════╝╚══════╝╚═╝`

// PromptOptions holds the user's responses to the configuration prompts.
type PromptOptions struct {
	TogglToken  string
	WorkspaceID string
	APIKey      string
	Threshold   float64
}

// WithPromptConfig returns an Option that configures settings via interactive
// prompts. It does nothing once a config file exists.
func WithPromptConfig(configPath string) Option {
	return func(c *Config) error {
		_, err := os.Stat(configPath)
		if err == nil || !errors.Is(err, os.ErrNotExist) {
			return err
		}

		opts, err := promptUser()
		if err != nil {
			return fmt.Errorf("user prompt failed: %w", err)
		}

		return applyPromptOptions(c, opts)
	}
}

// promptUser handles the interactive configuration process.
func promptUser() (PromptOptions, error) {
	var opts PromptOptions

	pterm.Println(asciiLogo)

	_ = putils.BulletListFromString(`Follow the prompts below to configure tally for the first time.
Leave a field empty to fill it in later.
Edit the config file with 'tally edit-config' to change any settings.`, " ").
		Render()

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Toggl API token").
				EchoMode(huh.EchoModePassword).
				Value(&opts.TogglToken),
			huh.NewInput().
				Title("Toggl workspace id").
				Validate(validateWorkspace).
				Value(&opts.WorkspaceID),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("OpenAI API key (optional)").
				Description("Without a key, activities are classified offline").
				EchoMode(huh.EchoModePassword).
				Value(&opts.APIKey),
		),
		huh.NewGroup(
			huh.NewSelect[float64]().
				Title("Confidence needed to register without asking").
				Options(
					huh.NewOption("Low (0.3)", 0.3),
					huh.NewOption("Medium (0.5)", 0.5).Selected(true),
					huh.NewOption("High (0.7)", 0.7),
					huh.NewOption("Always ask (1.0)", 1.0),
				).
				Value(&opts.Threshold),
		),
	)

	err := form.Run()
	if err != nil {
		return opts, fmt.Errorf("form interaction failed: %w", err)
	}

	return opts, nil
}

func validateWorkspace(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}

	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return errInvalidWorkspace
	}

	return nil
}

// applyPromptOptions applies the user's prompt responses to the configuration.
func applyPromptOptions(c *Config, opts PromptOptions) error {
	c.Toggl.Token = strings.TrimSpace(opts.TogglToken)
	c.Classifier.APIKey = strings.TrimSpace(opts.APIKey)
	c.Decision.Threshold = opts.Threshold

	ws := strings.TrimSpace(opts.WorkspaceID)
	if ws != "" {
		id, err := strconv.ParseInt(ws, 10, 64)
		if err != nil {
			return errInvalidWorkspace.Wrap(err)
		}

		c.Toggl.WorkspaceID = id
	}

	return nil
}
