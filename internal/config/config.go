// Package config loads tally's settings from the config file, the
// environment, command-line flags and the first-run prompt
package config

import (
	"io"
	"os"
	"time"
)

type (
	// Config holds all configuration settings
	Config struct {
		General       GeneralConfig      `mapstructure:"general"`
		Decision      DecisionConfig     `mapstructure:"decision"`
		Segment       SegmentConfig      `mapstructure:"segment"`
		Sampler       SamplerConfig      `mapstructure:"sampler"`
		Classifier    ClassifierConfig   `mapstructure:"classifier"`
		Toggl         TogglConfig        `mapstructure:"toggl"`
		Calendar      CalendarConfig     `mapstructure:"calendar"`
		Notifications NotificationConfig `mapstructure:"notifications"`
		Control       ControlConfig      `mapstructure:"control"`
		Log           LogConfig          `mapstructure:"log"`
		CLI           CLIConfig          `mapstructure:"-"`
	}

	// GeneralConfig holds analysis cycle settings
	GeneralConfig struct {
		CycleLength time.Duration `mapstructure:"cycle_length"`
		Lookback    time.Duration `mapstructure:"lookback"`
		Retention   time.Duration `mapstructure:"retention"`
		PendingTTL  time.Duration `mapstructure:"pending_ttl"`
		MaxCatchUp  int           `mapstructure:"max_catch_up"`
	}

	// DecisionConfig holds the auto-registration policy
	DecisionConfig struct {
		ExcludedProjects []string      `mapstructure:"excluded_projects"`
		PrivatePatterns  []string      `mapstructure:"private_patterns"`
		Threshold        float64       `mapstructure:"threshold"`
		ContinuityGap    time.Duration `mapstructure:"continuity_gap"`
	}

	// SegmentConfig holds segmentation settings
	SegmentConfig struct {
		Debounce      time.Duration `mapstructure:"debounce"`
		IdleThreshold time.Duration `mapstructure:"idle_threshold"`
		Bridge        time.Duration `mapstructure:"bridge"`
	}

	// SamplerConfig holds the commands used to probe the active window
	SamplerConfig struct {
		WindowCmd string        `mapstructure:"window_cmd"`
		ClassCmd  string        `mapstructure:"class_cmd"`
		IdleCmd   string        `mapstructure:"idle_cmd"`
		Interval  time.Duration `mapstructure:"interval"`
	}

	// ClassifierConfig holds online and offline classifier settings
	ClassifierConfig struct {
		Endpoint  string        `mapstructure:"endpoint"`
		APIKey    string        `mapstructure:"api_key"`
		Model     string        `mapstructure:"model"`
		Timeout   time.Duration `mapstructure:"timeout"`
		HalfLife  time.Duration `mapstructure:"half_life"`
		RateLimit float64       `mapstructure:"rate_limit"`
		Burst     int           `mapstructure:"burst"`
		Online    bool          `mapstructure:"online"`
	}

	// TogglConfig holds the time tracker credentials
	TogglConfig struct {
		Token       string        `mapstructure:"token"`
		BaseURL     string        `mapstructure:"base_url"`
		WorkspaceID int64         `mapstructure:"workspace_id"`
		Timeout     time.Duration `mapstructure:"timeout"`
	}

	// CalendarConfig holds Google Calendar credentials
	CalendarConfig struct {
		ClientID     string        `mapstructure:"client_id"`
		ClientSecret string        `mapstructure:"client_secret"`
		RefreshToken string        `mapstructure:"refresh_token"`
		BaseURL      string        `mapstructure:"base_url"`
		TokenURL     string        `mapstructure:"token_url"`
		CalendarIDs  []string      `mapstructure:"calendar_ids"`
		SyncInterval time.Duration `mapstructure:"sync_interval"`
		Lookahead    time.Duration `mapstructure:"lookahead"`
	}

	// NotificationConfig holds notification settings
	NotificationConfig struct {
		Enabled bool `mapstructure:"enabled"`
	}

	// ControlConfig holds the local control server settings
	ControlConfig struct {
		Addr string `mapstructure:"addr"`
	}

	// LogConfig holds log file settings
	LogConfig struct {
		Level      string `mapstructure:"level"`
		MaxSize    int    `mapstructure:"max_size"`
		MaxBackups int    `mapstructure:"max_backups"`
	}

	// CLIConfig holds per-invocation settings that are never persisted
	CLIConfig struct {
		StartTime time.Time
		EndTime   time.Time
		Verbose   bool
	}

	// Option is a function that modifies Config
	Option func(*Config) error
)

const Version = "v0.3.0"

var (
	Stdin  io.Reader = os.Stdin
	Stdout io.Writer = os.Stdout
	Stderr io.Writer = os.Stderr
)

// New creates a new Config and applies options
func New(opts ...Option) (*Config, error) {
	cfg := &Config{}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, errConfigOption.Wrap(err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, errConfigValidation.Wrap(err)
	}

	return cfg, nil
}

// Loader returns a function that re-reads the config file on every call.
// The daemon calls it once per analysis cycle.
func Loader(configPath string, opts ...Option) func() (*Config, error) {
	return func() (*Config, error) {
		all := append([]Option{WithViperConfig(configPath)}, opts...)

		return New(all...)
	}
}

// TogglConfigured reports whether registration credentials are present.
func (c *Config) TogglConfigured() bool {
	return c.Toggl.Token != "" && c.Toggl.WorkspaceID > 0
}

// CalendarConfigured reports whether calendar sync can run.
func (c *Config) CalendarConfigured() bool {
	return c.Calendar.ClientID != "" &&
		c.Calendar.ClientSecret != "" &&
		c.Calendar.RefreshToken != "" &&
		len(c.Calendar.CalendarIDs) > 0
}

// OnlineConfigured reports whether the online classifier may be used.
func (c *Config) OnlineConfigured() bool {
	return c.Classifier.Online &&
		c.Classifier.Endpoint != "" &&
		c.Classifier.APIKey != ""
}
