package config

import "github.com/ayoisaiah/tally/internal/apperr"

var (
	errConfigOption = &apperr.Error{
		Kind:    apperr.KindConfiguration,
		Message: "config option error",
	}

	errConfigValidation = &apperr.Error{
		Kind:    apperr.KindConfiguration,
		Message: "config validation error",
	}

	errReadConfig = &apperr.Error{
		Kind:    apperr.KindConfiguration,
		Message: "reading config file failed",
	}

	errWriteConfig = &apperr.Error{
		Kind:    apperr.KindConfiguration,
		Message: "writing default config failed",
	}

	errInvalidThreshold = &apperr.Error{
		Kind:    apperr.KindConfiguration,
		Message: "decision threshold must be between 0 and 1, got %v",
	}

	errInvalidCycle = &apperr.Error{
		Kind:    apperr.KindConfiguration,
		Message: "cycle length must be between %v and %v, got %v",
	}

	errInvalidInterval = &apperr.Error{
		Kind:    apperr.KindConfiguration,
		Message: "sampler interval (%v) must be positive and shorter than the cycle length (%v)",
	}

	errNegativeDuration = &apperr.Error{
		Kind:    apperr.KindConfiguration,
		Message: "%s must not be negative, got %v",
	}

	errInvalidLogLevel = &apperr.Error{
		Kind:    apperr.KindConfiguration,
		Message: "unknown log level: %s",
	}

	errTogglMissing = &apperr.Error{
		Kind:    apperr.KindConfiguration,
		Message: "toggl token and workspace id are required: run 'tally edit-config'",
	}

	errInvalidCLIDuration = &apperr.Error{
		Kind:    apperr.KindConfiguration,
		Message: "invalid %s: %v",
	}

	errInvalidWorkspace = &apperr.Error{
		Kind:    apperr.KindConfiguration,
		Message: "workspace id must be a positive number",
	}
)
