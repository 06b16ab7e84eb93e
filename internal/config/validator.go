package config

import (
	"fmt"
	"net"
	"slices"
	"strings"
)

// ValidationError represents a configuration validation error
type ValidationError struct {
	Path    string
	Message string
}

// Error returns the error message
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// ValidationErrors is returned by Validate when at least one setting is
// invalid.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return "invalid configuration: " + strings.Join(msgs, "; ")
}

var (
	validLogLevels  = []string{"debug", "info", "warn", "error"}
	validLogFormats = []string{"console", "json"}
)

// ValidateConfig validates the configuration.
//
// The base URL is not checked. It is used verbatim and an empty or
// malformed value only makes every request fail.
func ValidateConfig(config *Config) []ValidationError {
	var errors []ValidationError

	if !slices.Contains(validLogLevels, strings.ToLower(config.LogLevel)) {
		errors = append(errors, ValidationError{
			Path:    KeyLogLevel,
			Message: fmt.Sprintf("must be one of %s, got %q", strings.Join(validLogLevels, ", "), config.LogLevel),
		})
	}

	if !slices.Contains(validLogFormats, strings.ToLower(config.LogFormat)) {
		errors = append(errors, ValidationError{
			Path:    KeyLogFormat,
			Message: fmt.Sprintf("must be one of %s, got %q", strings.Join(validLogFormats, ", "), config.LogFormat),
		})
	}

	if config.HTTPTimeout <= 0 {
		errors = append(errors, ValidationError{
			Path:    KeyHTTPTimeout,
			Message: fmt.Sprintf("must be > 0, got %s", config.HTTPTimeout),
		})
	}

	if config.GracefulStop < 0 {
		errors = append(errors, ValidationError{
			Path:    KeyGracefulStop,
			Message: fmt.Sprintf("must be >= 0, got %s", config.GracefulStop),
		})
	}

	if config.MetricsAddr != "" {
		if _, _, err := net.SplitHostPort(config.MetricsAddr); err != nil {
			errors = append(errors, ValidationError{
				Path:    KeyMetricsAddr,
				Message: fmt.Sprintf("invalid listen address %q: %v", config.MetricsAddr, err),
			})
		}
	}

	return errors
}

// Validate returns ValidationErrors if any setting is invalid.
func (c *Config) Validate() error {
	if errs := ValidateConfig(c); len(errs) > 0 {
		return ValidationErrors(errs)
	}
	return nil
}
