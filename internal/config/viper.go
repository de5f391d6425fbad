package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/ayoisaiah/tally/internal/osutil"
)

// viperKeys defines the mapping between config keys and their Viper counterparts.
const (
	keyCycleLength      = "general.cycle_length"
	keyLookback         = "general.lookback"
	keyRetention        = "general.retention"
	keyPendingTTL       = "general.pending_ttl"
	keyMaxCatchUp       = "general.max_catch_up"
	keyThreshold        = "decision.threshold"
	keyExcludedProjects = "decision.excluded_projects"
	keyPrivatePatterns  = "decision.private_patterns"
	keyContinuityGap    = "decision.continuity_gap"
	keyDebounce         = "segment.debounce"
	keyIdleThreshold    = "segment.idle_threshold"
	keyBridge           = "segment.bridge"
	keyWindowCmd        = "sampler.window_cmd"
	keyClassCmd         = "sampler.class_cmd"
	keyIdleCmd          = "sampler.idle_cmd"
	keySamplerInterval  = "sampler.interval"
	keyOnline           = "classifier.online"
	keyEndpoint         = "classifier.endpoint"
	keyAPIKey           = "classifier.api_key"
	keyModel            = "classifier.model"
	keyClassifyTimeout  = "classifier.timeout"
	keyHalfLife         = "classifier.half_life"
	keyRateLimit        = "classifier.rate_limit"
	keyBurst            = "classifier.burst"
	keyTogglToken       = "toggl.token"
	keyTogglBaseURL     = "toggl.base_url"
	keyTogglWorkspace   = "toggl.workspace_id"
	keyTogglTimeout     = "toggl.timeout"
	keyCalClientID      = "calendar.client_id"
	keyCalClientSecret  = "calendar.client_secret"
	keyCalRefreshToken  = "calendar.refresh_token"
	keyCalBaseURL       = "calendar.base_url"
	keyCalTokenURL      = "calendar.token_url"
	keyCalIDs           = "calendar.calendar_ids"
	keyCalSyncInterval  = "calendar.sync_interval"
	keyCalLookahead     = "calendar.lookahead"
	keyNotifications    = "notifications.enabled"
	keyControlAddr      = "control.addr"
	keyLogLevel         = "log.level"
	keyLogMaxSize       = "log.max_size"
	keyLogMaxBackups    = "log.max_backups"
)

const envPrefix = "TALLY"

// WithViperConfig returns an Option that loads configuration from Viper.
// A config file with default values is written if none exists.
func WithViperConfig(configPath string) Option {
	return func(c *Config) error {
		v := viper.New()

		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")

		setupViper(v, c)

		err := v.ReadInConfig()
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return errReadConfig.Wrap(err)
			}

			err = os.MkdirAll(filepath.Dir(configPath), osutil.DirPermission)
			if err != nil {
				return errWriteConfig.Wrap(err)
			}

			if err := v.WriteConfig(); err != nil {
				return errWriteConfig.Wrap(err)
			}
		}

		// environment values are never written to the file
		v.SetEnvPrefix(envPrefix)
		v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		v.AutomaticEnv()

		return loadViperConfig(v, c)
	}
}

// setupViper configures Viper with defaults and prompt values.
func setupViper(v *viper.Viper, c *Config) {
	v.SetDefault(keyCycleLength, "15m")
	v.SetDefault(keyLookback, "2m")
	v.SetDefault(keyRetention, "720h")
	v.SetDefault(keyPendingTTL, "24h")
	v.SetDefault(keyMaxCatchUp, 96)
	v.SetDefault(keyThreshold, 0.5)
	v.SetDefault(keyExcludedProjects, []string{})
	v.SetDefault(
		keyPrivatePatterns,
		[]string{"private browsing", "incognito", "inprivate"},
	)
	v.SetDefault(keyContinuityGap, "2m")
	v.SetDefault(keyDebounce, "1m")
	v.SetDefault(keyIdleThreshold, "5m")
	v.SetDefault(keyBridge, "10m")
	v.SetDefault(keyWindowCmd, "xdotool getactivewindow getwindowname")
	v.SetDefault(keyClassCmd, "xdotool getactivewindow getwindowclassname")
	v.SetDefault(keyIdleCmd, "xprintidle")
	v.SetDefault(keySamplerInterval, "1m")
	v.SetDefault(keyOnline, true)
	v.SetDefault(keyEndpoint, "https://api.openai.com/v1")
	v.SetDefault(keyAPIKey, "")
	v.SetDefault(keyModel, "gpt-4o-mini")
	v.SetDefault(keyClassifyTimeout, "20s")
	v.SetDefault(keyHalfLife, "720h")
	v.SetDefault(keyRateLimit, 1.0)
	v.SetDefault(keyBurst, 2)
	v.SetDefault(keyTogglToken, "")
	v.SetDefault(keyTogglBaseURL, "https://api.track.toggl.com/api/v9")
	v.SetDefault(keyTogglWorkspace, 0)
	v.SetDefault(keyTogglTimeout, "15s")
	v.SetDefault(keyCalClientID, "")
	v.SetDefault(keyCalClientSecret, "")
	v.SetDefault(keyCalRefreshToken, "")
	v.SetDefault(keyCalBaseURL, "https://www.googleapis.com/calendar/v3")
	v.SetDefault(keyCalTokenURL, "")
	v.SetDefault(keyCalIDs, []string{"primary"})
	v.SetDefault(keyCalSyncInterval, "10m")
	v.SetDefault(keyCalLookahead, "1h")
	v.SetDefault(keyNotifications, true)
	v.SetDefault(keyControlAddr, "127.0.0.1:7767")
	v.SetDefault(keyLogLevel, "info")
	v.SetDefault(keyLogMaxSize, 10)
	v.SetDefault(keyLogMaxBackups, 3)

	// values gathered by the first-run prompt
	if c.Toggl.Token != "" {
		v.Set(keyTogglToken, c.Toggl.Token)
	}

	if c.Toggl.WorkspaceID != 0 {
		v.Set(keyTogglWorkspace, c.Toggl.WorkspaceID)
	}

	if c.Classifier.APIKey != "" {
		v.Set(keyAPIKey, c.Classifier.APIKey)
	}

	if c.Decision.Threshold != 0 {
		v.Set(keyThreshold, c.Decision.Threshold)
	}
}

// loadViperConfig loads configuration from Viper into the Config struct.
func loadViperConfig(v *viper.Viper, c *Config) error {
	cli := c.CLI

	if err := v.Unmarshal(c); err != nil {
		return errReadConfig.Wrap(err)
	}

	c.CLI = cli

	return nil
}

// parseDuration parses duration strings. A bare number is read as minutes.
func parseDuration(s string) (time.Duration, error) {
	dur, err := time.ParseDuration(s)
	if err == nil {
		return dur, nil
	}

	mins, err := time.ParseDuration(s + "m")
	if err != nil {
		return 0, err
	}

	return mins, nil
}
