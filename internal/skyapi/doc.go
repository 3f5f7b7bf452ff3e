// Package skyapi is the request/response client for the remote account API.
//
// It covers the calls the runtime needs and nothing else: login, the
// authorised-user lookup, system snapshots, the three desired-state writes
// (arm state, lock, garage door) and panel credentials for camera streams.
//
// Every call other than Login obtains its session token from a TokenSource
// (normally *session.Session) so an expired token is renewed transparently
// before the request is sent. Non-2xx responses are returned as *StatusError,
// which matches ErrUpstream under errors.Is. Nothing is retried here.
//
// Command writes are fire-and-forget: a nil error means the write was
// accepted for submission, not that the device reached the requested state.
package skyapi
