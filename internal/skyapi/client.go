package skyapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultBaseURL is the production API root.
	DefaultBaseURL = "https://www.vivintsky.com/api/"

	// DefaultTimeout bounds a single call when Config.Timeout is zero.
	DefaultTimeout = 30 * time.Second

	// sessionCookie carries the session token on every authenticated call.
	sessionCookie = "s"

	// maxErrorBody caps how much of a failing response body is kept.
	maxErrorBody = 512
)

// TokenSource yields a currently valid session token.
// *session.Session satisfies it; renewal happens inside EnsureValid.
type TokenSource interface {
	EnsureValid(ctx context.Context) (string, error)
}

// Logger is the subset of logging used by the client.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// Config configures a Client.
type Config struct {
	// BaseURL is the API root. Defaults to DefaultBaseURL.
	BaseURL string

	// Timeout bounds each call. Defaults to DefaultTimeout.
	Timeout time.Duration

	// HTTPClient overrides the transport. Timeout is ignored when set.
	HTTPClient *http.Client
}

// Client issues request/response calls against the account API.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Client struct {
	baseURL *url.URL
	http    *http.Client
	now     func() time.Time

	mu     sync.RWMutex
	tokens TokenSource
	logger Logger
}

// New creates a Client.
//
// Parameters:
//   - cfg: Base URL and timeout settings
//
// Returns:
//   - *Client: Ready for Login; authenticated calls need SetTokenSource
//   - error: If the base URL cannot be parsed
func New(cfg Config) (*Client, error) {
	raw := cfg.BaseURL
	if raw == "" {
		raw = DefaultBaseURL
	}
	if !strings.HasSuffix(raw, "/") {
		raw += "/"
	}
	base, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parsing base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("parsing base url: %q is not absolute", raw)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		baseURL: base,
		http:    httpClient,
		now:     time.Now,
		logger:  noopLogger{},
	}, nil
}

// SetTokenSource sets where authenticated calls get their session token.
func (c *Client) SetTokenSource(ts TokenSource) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens = ts
}

// SetLogger sets the logger for request diagnostics.
func (c *Client) SetLogger(logger Logger) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if logger == nil {
		c.logger = noopLogger{}
		return
	}
	c.logger = logger
}

func (c *Client) log() Logger {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.logger
}

func (c *Client) token(ctx context.Context) (string, error) {
	c.mu.RLock()
	ts := c.tokens
	c.mu.RUnlock()

	if ts == nil {
		return "", ErrNoTokenSource
	}
	return ts.EnsureValid(ctx)
}

// endpoint resolves path segments against the base URL, escaping each one.
func (c *Client) endpoint(segments ...string) string {
	escaped := make([]string, len(segments))
	for i, s := range segments {
		escaped[i] = url.PathEscape(s)
	}
	return c.baseURL.String() + strings.Join(escaped, "/")
}

// call performs one authenticated request. body is JSON-encoded when non-nil;
// out is JSON-decoded from a 2xx response when non-nil.
func (c *Client) call(ctx context.Context, op, method, endpoint string, body, out any) error {
	token, err := c.token(ctx)
	if err != nil {
		return err
	}

	resp, err := c.send(ctx, method, endpoint, body, func(req *http.Request) {
		req.AddCookie(&http.Cookie{Name: sessionCookie, Value: token})
	})
	if err != nil {
		return fmt.Errorf("skyapi: %s: %w", op, err)
	}
	defer resp.Body.Close()

	return c.decode(op, resp, out)
}

func (c *Client) send(ctx context.Context, method, endpoint string, body any, decorate func(*http.Request)) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if decorate != nil {
		decorate(req)
	}

	c.log().Debug("api request", "method", method, "url", endpoint)
	return c.http.Do(req)
}

func (c *Client) decode(op string, resp *http.Response, out any) error {
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.log().Warn("api call failed", "op", op, "status", resp.StatusCode)
		return &StatusError{
			Op:     op,
			Status: resp.StatusCode,
			Body:   strings.TrimSpace(string(snippet)),
		}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformedResponse, op, err)
	}
	return nil
}
