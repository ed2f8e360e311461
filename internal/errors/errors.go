package errors

import (
	"errors"
	"fmt"
)

// Common error types for the admin console session layer
var (
	// Authentication errors
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrValidation         = errors.New("validation failed")
	ErrConflict           = errors.New("account already exists")

	// Token errors
	ErrRefreshInvalid = errors.New("refresh credential rejected")

	// Profile errors
	ErrProfileUnavailable = errors.New("profile unavailable")

	// Navigation errors
	ErrRouteNotFound = errors.New("route not found")

	// General errors
	ErrTransport = errors.New("transport failure")
)

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
