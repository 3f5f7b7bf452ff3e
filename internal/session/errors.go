package session

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthFailed matches every *AuthError.
	ErrAuthFailed = errors.New("session: authentication rejected")

	// ErrNotLoggedIn is returned by EnsureValid before the first
	// successful Login.
	ErrNotLoggedIn = errors.New("session: not logged in")
)

// AuthError is a login or renewal rejected upstream.
type AuthError struct {
	// Status is the upstream HTTP status.
	Status int

	// Err is the underlying client error.
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("session: authentication rejected (status %d): %v", e.Status, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// Is reports ErrAuthFailed.
func (e *AuthError) Is(target error) bool {
	return target == ErrAuthFailed
}
