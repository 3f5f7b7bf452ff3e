// Package session owns the account credentials and the current session
// token, and renews the token when it expires.
//
// A Session that has never logged in successfully has no token, and
// EnsureValid fails closed with ErrNotLoggedIn. Once logged in, EnsureValid
// returns the cached token until its expiry and then performs exactly one
// renewal no matter how many goroutines ask at the same time; they all
// observe the same result.
//
// A failed renewal never touches the stored token or expiry. Callers keep
// failing with the renewal's error until a later renewal succeeds.
package session
