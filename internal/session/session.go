package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/nerrad567/skysync/internal/skyapi"
)

// renewKey is the single singleflight key; login and renewal share it so a
// Login racing an EnsureValid still performs one upstream call.
const renewKey = "login"

// Credentials are the account username and password. Immutable.
type Credentials struct {
	username string
	password string
}

// NewCredentials builds Credentials.
func NewCredentials(username, password string) Credentials {
	return Credentials{username: username, password: password}
}

// Username returns the account username.
func (c Credentials) Username() string { return c.username }

// String never prints the password.
func (c Credentials) String() string { return c.username + ":***" }

// Authenticator performs the upstream login call. *skyapi.Client satisfies it.
type Authenticator interface {
	Login(ctx context.Context, username, password string) (skyapi.Token, error)
}

// Logger is the logging interface used by Session.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any) {}
func (noopLogger) Warn(string, ...any) {}

// Session holds the current token and its expiry.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - At most one login/renewal call is in flight at any time.
type Session struct {
	creds  Credentials
	auth   Authenticator
	now    func() time.Time
	logger Logger

	group singleflight.Group

	mu     sync.RWMutex
	token  string
	expiry time.Time
}

// New creates a Session that has not logged in yet.
func New(creds Credentials, auth Authenticator) *Session {
	return &Session{
		creds:  creds,
		auth:   auth,
		now:    time.Now,
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for login and renewal outcomes.
func (s *Session) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	s.logger = logger
}

// Login authenticates with the stored credentials and replaces the token.
//
// Returns:
//   - error: *AuthError when upstream rejects the credentials, or the
//     transport error when the call could not be made
func (s *Session) Login(ctx context.Context) error {
	_, err := s.renew(ctx, true)
	return err
}

// EnsureValid returns the current token, renewing it first if it has expired.
//
// Concurrent callers share a single renewal. A caller whose ctx ends while
// waiting returns ctx.Err(); the renewal itself carries on for the others.
func (s *Session) EnsureValid(ctx context.Context) (string, error) {
	s.mu.RLock()
	token, expiry := s.token, s.expiry
	s.mu.RUnlock()

	if token == "" {
		return "", ErrNotLoggedIn
	}
	if s.now().Before(expiry) {
		return token, nil
	}

	return s.renew(ctx, false)
}

// Token returns the last successfully issued token and its expiry.
// The token may already be expired.
func (s *Session) Token() (string, time.Time) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, s.expiry
}

// Valid reports whether a token exists and has not expired.
func (s *Session) Valid() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token != "" && s.now().Before(s.expiry)
}

func (s *Session) renew(ctx context.Context, force bool) (string, error) {
	ch := s.group.DoChan(renewKey, func() (any, error) {
		// A renewal that finished while this caller was queued already
		// produced a usable token.
		if !force {
			s.mu.RLock()
			token, expiry := s.token, s.expiry
			s.mu.RUnlock()
			if token != "" && s.now().Before(expiry) {
				return token, nil
			}
		}

		tok, err := s.auth.Login(context.WithoutCancel(ctx), s.creds.username, s.creds.password)
		if err != nil {
			return "", s.loginError(err)
		}

		s.mu.Lock()
		s.token = tok.Value
		// Expiry only moves forward across successful renewals.
		if tok.Expiry.After(s.expiry) {
			s.expiry = tok.Expiry
		}
		expiry := s.expiry
		s.mu.Unlock()

		if expiry.After(tok.Expiry) {
			s.logger.Info("kept later session expiry", "issued", tok.Expiry, "expires", expiry)
		}
		s.logger.Info("session established", "user", s.creds.username, "expires", expiry)
		return tok.Value, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (s *Session) loginError(err error) error {
	var se *skyapi.StatusError
	if errors.As(err, &se) {
		s.logger.Warn("login rejected", "user", s.creds.username, "status", se.Status)
		return &AuthError{Status: se.Status, Err: err}
	}
	s.logger.Warn("login failed", "user", s.creds.username, "error", err)
	return fmt.Errorf("session: login: %w", err)
}
