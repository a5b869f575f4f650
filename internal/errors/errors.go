package errors

import (
	"errors"
	"fmt"
)

// Common error types for the session layer
var (
	// Construction errors
	ErrConfiguration = errors.New("configuration error")
	ErrContext       = errors.New("wrong client context")

	// Session errors
	ErrSessionExpired = errors.New("session expired")
	ErrSessionMissing = errors.New("auth session missing")

	// Token errors
	ErrInvalidToken = errors.New("invalid token")

	// Authentication errors
	ErrIncompleteCredentials = errors.New("incomplete credentials")

	// OAuth flow errors
	ErrFlowStateNotFound = errors.New("flow state not found")

	// General errors
	ErrNotFound = errors.New("not found")
)

// ConfigurationError reports a missing or invalid setting detected while
// constructing a client. It matches ErrConfiguration with errors.Is.
type ConfigurationError struct {
	Setting string
	Reason  string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s %s", e.Setting, e.Reason)
}

func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

// ContextError reports a client requested in a context that lacks the
// transport it needs. It matches ErrContext with errors.Is.
type ContextError struct {
	Kind   string
	Reason string
}

func (e *ContextError) Error() string {
	return fmt.Sprintf("wrong client context: %s client %s", e.Kind, e.Reason)
}

func (e *ContextError) Is(target error) bool {
	return target == ErrContext
}

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// New is errors.New, re-exported so callers only import this package
func New(text string) error {
	return errors.New(text)
}
