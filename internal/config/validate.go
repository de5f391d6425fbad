package config

import (
	"log/slog"
	"time"
)

var (
	minCycleLength = 1 * time.Minute
	maxCycleLength = 24 * time.Hour
)

// Validate performs validation checks on the Config struct and its fields.
func (c *Config) Validate() error {
	if c.Decision.Threshold < 0 || c.Decision.Threshold > 1 {
		return errInvalidThreshold.Fmt(c.Decision.Threshold)
	}

	if c.General.CycleLength < minCycleLength ||
		c.General.CycleLength > maxCycleLength {
		return errInvalidCycle.Fmt(
			minCycleLength,
			maxCycleLength,
			c.General.CycleLength,
		)
	}

	if c.Sampler.Interval <= 0 ||
		c.Sampler.Interval >= c.General.CycleLength {
		return errInvalidInterval.Fmt(
			c.Sampler.Interval,
			c.General.CycleLength,
		)
	}

	durations := []struct {
		name string
		d    time.Duration
	}{
		{"general.lookback", c.General.Lookback},
		{"general.retention", c.General.Retention},
		{"general.pending_ttl", c.General.PendingTTL},
		{"decision.continuity_gap", c.Decision.ContinuityGap},
		{"segment.debounce", c.Segment.Debounce},
		{"segment.idle_threshold", c.Segment.IdleThreshold},
		{"segment.bridge", c.Segment.Bridge},
	}

	for _, v := range durations {
		if v.d < 0 {
			return errNegativeDuration.Fmt(v.name, v.d)
		}
	}

	if _, err := c.LogLevel(); err != nil {
		return err
	}

	return nil
}

// ValidateRegistration reports an error if entries cannot be registered with
// the current settings.
func (c *Config) ValidateRegistration() error {
	if !c.TogglConfigured() {
		return errTogglMissing
	}

	return nil
}

// LogLevel parses the configured log level.
func (c *Config) LogLevel() (slog.Level, error) {
	var level slog.Level

	if c.Log.Level == "" {
		return slog.LevelInfo, nil
	}

	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return level, errInvalidLogLevel.Fmt(c.Log.Level)
	}

	return level, nil
}
