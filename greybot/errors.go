package greybot

import (
	"errors"
	"fmt"
)

// UpstreamError indicates a failure from one of the third-party
// services the bot depends on (completion, search or image lookup).
// It wraps the underlying cause and, when the upstream responded at
// all, the HTTP status it returned.
type UpstreamError struct {
	// Service identifies the upstream ("openai", "brave", "pexels")
	Service string

	// Status is the HTTP status returned by the upstream, or 0 if
	// the request never completed (timeout, connection refused, ...)
	Status int

	Err error
}

func (e *UpstreamError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf(
			"%s: upstream returned status %d: %v",
			e.Service,
			e.Status,
			e.Err,
		)
	}
	return fmt.Sprintf("%s: upstream unreachable: %v", e.Service, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// NewUpstreamError wraps err as an UpstreamError for the named service.
func NewUpstreamError(service string, status int, err error) *UpstreamError {
	return &UpstreamError{Service: service, Status: status, Err: err}
}

// IsUpstreamError reports whether any error in err's chain is
// an UpstreamError.
func IsUpstreamError(err error) bool {
	var ue *UpstreamError
	return errors.As(err, &ue)
}

// ConfigurationError indicates the bot can't start with the provided
// configuration (ex: a missing API credential). It's only returned
// during startup - once Run is underway, configuration is settled.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}

// NewConfigurationError creates a ConfigurationError for the given
// config field.
func NewConfigurationError(field string, reason string) *ConfigurationError {
	return &ConfigurationError{Field: field, Reason: reason}
}
