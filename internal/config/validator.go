package config

import (
	"fmt"
	"slices"
	"strings"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "watch.interval_seconds")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// ValidStoreBackends returns the list of valid store backends
func ValidStoreBackends() []string {
	return []string{"sqlite", "memory"}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateSession()...)
	errors = append(errors, c.validateWatch()...)
	errors = append(errors, c.validateDaemon()...)
	errors = append(errors, c.validatePaths()...)
	errors = append(errors, c.validateStore()...)
	errors = append(errors, c.validateLogging()...)

	return errors
}

// validateSession validates the SessionConfig
func (c *Config) validateSession() []ValidationError {
	var errors []ValidationError

	if c.Session.ReadyTimeoutSeconds <= 0 {
		errors = append(errors, ValidationError{
			Field:   "session.ready_timeout_seconds",
			Value:   c.Session.ReadyTimeoutSeconds,
			Message: "must be positive",
		})
	}

	const minPollInterval = 100  // 100ms minimum
	const maxPollInterval = 5000 // 5 seconds maximum
	if c.Session.ReadyPollIntervalMs < minPollInterval {
		errors = append(errors, ValidationError{
			Field:   "session.ready_poll_interval_ms",
			Value:   c.Session.ReadyPollIntervalMs,
			Message: fmt.Sprintf("must be at least %dms", minPollInterval),
		})
	}
	if c.Session.ReadyPollIntervalMs > maxPollInterval {
		errors = append(errors, ValidationError{
			Field:   "session.ready_poll_interval_ms",
			Value:   c.Session.ReadyPollIntervalMs,
			Message: fmt.Sprintf("exceeds maximum of %dms", maxPollInterval),
		})
	}

	if c.Session.CaptureLines <= 0 {
		errors = append(errors, ValidationError{
			Field:   "session.capture_lines",
			Value:   c.Session.CaptureLines,
			Message: "must be positive",
		})
	}

	if c.Session.AgentCommand == "" {
		errors = append(errors, ValidationError{
			Field:   "session.agent_command",
			Value:   c.Session.AgentCommand,
			Message: "cannot be empty",
		})
	}

	if c.Session.KillGraceSeconds < 0 {
		errors = append(errors, ValidationError{
			Field:   "session.kill_grace_seconds",
			Value:   c.Session.KillGraceSeconds,
			Message: "must be non-negative",
		})
	}

	return errors
}

// validateWatch validates the WatchConfig
func (c *Config) validateWatch() []ValidationError {
	var errors []ValidationError

	if c.Watch.IntervalSeconds <= 0 {
		errors = append(errors, ValidationError{
			Field:   "watch.interval_seconds",
			Value:   c.Watch.IntervalSeconds,
			Message: "must be positive",
		})
	}

	// Timeout of 0 means no timeout, which is valid; negative is not
	if c.Watch.TimeoutMinutes < 0 {
		errors = append(errors, ValidationError{
			Field:   "watch.timeout_minutes",
			Value:   c.Watch.TimeoutMinutes,
			Message: "must be non-negative (0 disables timeout)",
		})
	}

	return errors
}

// validateDaemon validates the DaemonConfig
func (c *Config) validateDaemon() []ValidationError {
	var errors []ValidationError

	const minSyncInterval = 5
	if c.Daemon.SyncIntervalSeconds < minSyncInterval {
		errors = append(errors, ValidationError{
			Field:   "daemon.sync_interval_seconds",
			Value:   c.Daemon.SyncIntervalSeconds,
			Message: fmt.Sprintf("must be at least %d seconds", minSyncInterval),
		})
	}

	return errors
}

// validatePaths validates the PathsConfig
func (c *Config) validatePaths() []ValidationError {
	var errors []ValidationError

	if c.Paths.StateDir != "" {
		path := c.Paths.StateDir

		if strings.ContainsRune(path, '\x00') {
			errors = append(errors, ValidationError{
				Field:   "paths.state_dir",
				Value:   path,
				Message: "path contains invalid null character",
			})
		}

		const maxPathLength = 4096
		if len(path) > maxPathLength {
			errors = append(errors, ValidationError{
				Field:   "paths.state_dir",
				Value:   path,
				Message: fmt.Sprintf("path exceeds maximum length of %d characters", maxPathLength),
			})
		}
	}

	if c.Paths.PlansDir == "" {
		errors = append(errors, ValidationError{
			Field:   "paths.plans_dir",
			Value:   c.Paths.PlansDir,
			Message: "cannot be empty",
		})
	} else {
		if strings.HasPrefix(c.Paths.PlansDir, "/") {
			errors = append(errors, ValidationError{
				Field:   "paths.plans_dir",
				Value:   c.Paths.PlansDir,
				Message: "must be a relative path (remove leading /)",
			})
		}
		if strings.Contains(c.Paths.PlansDir, "..") {
			errors = append(errors, ValidationError{
				Field:   "paths.plans_dir",
				Value:   c.Paths.PlansDir,
				Message: "cannot contain parent directory references (..)",
			})
		}
	}

	return errors
}

// validateStore validates the StoreConfig
func (c *Config) validateStore() []ValidationError {
	var errors []ValidationError

	if c.Store.Backend != "" && !slices.Contains(ValidStoreBackends(), c.Store.Backend) {
		errors = append(errors, ValidationError{
			Field:   "store.backend",
			Value:   c.Store.Backend,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidStoreBackends(), ", ")),
		})
	}

	return errors
}

// validateLogging validates the LoggingConfig
func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), c.Logging.Level) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	return errors
}
