// Package apperr holds the error taxonomy shared by every handler.
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConfigured marks a collaborator whose credentials are missing.
	ErrNotConfigured = errors.New("not configured")
	// ErrTransient marks a failed call to the completion service or the platform.
	ErrTransient = errors.New("external call failed")
	// ErrValidation marks a malformed directive; the action is not attempted.
	ErrValidation = errors.New("invalid directive")
	// ErrPermission marks an action the platform refused.
	ErrPermission = errors.New("permission denied")
	// ErrStorageCorrupt marks a persistent store that failed its integrity probe.
	ErrStorageCorrupt = errors.New("storage corrupt")
)

func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func Transient(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrTransient, op, err)
}

func Permission(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrPermission, op, err)
}

// Notice turns an error into the short text shown in the invoking channel.
func Notice(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotConfigured):
		return "⚠️ That system is not configured."
	case errors.Is(err, ErrValidation):
		return "⚠️ I couldn't make sense of that directive."
	case errors.Is(err, ErrPermission):
		return "⛔ I don't have permission to do that."
	default:
		return "⚠️ Something went wrong on my end. Please try again."
	}
}
