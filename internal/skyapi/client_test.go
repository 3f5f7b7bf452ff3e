package skyapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type staticTokens struct {
	token string
	err   error
}

func (s staticTokens) EnsureValid(context.Context) (string, error) {
	return s.token, s.err
}

type recorded struct {
	Method string
	Path   string
	Cookie string
	Body   map[string]any
}

// fakeServer records every request and answers from a path → handler table.
type fakeServer struct {
	mu       sync.Mutex
	requests []recorded
}

func (f *fakeServer) record(t *testing.T, r *http.Request) {
	t.Helper()
	rec := recorded{Method: r.Method, Path: r.URL.Path}
	if c, err := r.Cookie("s"); err == nil {
		rec.Cookie = c.Value
	}
	if r.Body != nil {
		data, _ := io.ReadAll(r.Body)
		if len(data) > 0 {
			if err := json.Unmarshal(data, &rec.Body); err != nil {
				t.Errorf("request body is not JSON: %v", err)
			}
		}
	}
	f.mu.Lock()
	f.requests = append(f.requests, rec)
	f.mu.Unlock()
}

func (f *fakeServer) last() recorded {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.requests) == 0 {
		return recorded{}
	}
	return f.requests[len(f.requests)-1]
}

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *fakeServer) {
	t.Helper()
	fs := &fakeServer{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fs.record(t, r)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	c, err := New(Config{BaseURL: srv.URL + "/api"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	c.SetTokenSource(staticTokens{token: "tok-1"})
	return c, fs
}

func TestNew_InvalidBaseURL(t *testing.T) {
	if _, err := New(Config{BaseURL: "not a url"}); err == nil {
		t.Error("New() expected error for relative base url")
	}
}

func TestLogin(t *testing.T) {
	fixed := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": fixed.Add(45 * time.Minute).Unix(),
	}).SignedString([]byte("k"))
	if err != nil {
		t.Fatalf("signing: %v", err)
	}

	tests := []struct {
		name       string
		cookie     *http.Cookie
		status     int
		wantErr    error
		wantStatus int
		wantExpiry time.Time
	}{
		{
			name:       "max-age cookie",
			cookie:     &http.Cookie{Name: "s", Value: "abc", MaxAge: 600},
			status:     http.StatusOK,
			wantExpiry: fixed.Add(10 * time.Minute),
		},
		{
			name:       "expires cookie",
			cookie:     &http.Cookie{Name: "s", Value: "abc", Expires: fixed.Add(time.Hour)},
			status:     http.StatusOK,
			wantExpiry: fixed.Add(time.Hour),
		},
		{
			name:       "jwt exp claim",
			cookie:     &http.Cookie{Name: "s", Value: signed},
			status:     http.StatusOK,
			wantExpiry: fixed.Add(45 * time.Minute),
		},
		{
			name:       "opaque token falls back to default ttl",
			cookie:     &http.Cookie{Name: "s", Value: "opaque"},
			status:     http.StatusOK,
			wantExpiry: fixed.Add(DefaultTokenTTL),
		},
		{
			name:    "missing cookie",
			status:  http.StatusOK,
			wantErr: ErrNoSessionCookie,
		},
		{
			name:       "rejected",
			status:     http.StatusUnauthorized,
			wantErr:    ErrUpstream,
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, fs := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				if tt.cookie != nil {
					http.SetCookie(w, tt.cookie)
				}
				w.WriteHeader(tt.status)
			})
			c.now = func() time.Time { return fixed }

			tok, err := c.Login(context.Background(), "owner@example.com", "hunter2")
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Login() error = %v, want %v", err, tt.wantErr)
				}
				if tt.wantStatus != 0 && StatusCode(err) != tt.wantStatus {
					t.Errorf("StatusCode() = %d, want %d", StatusCode(err), tt.wantStatus)
				}
				return
			}
			if err != nil {
				t.Fatalf("Login() error = %v", err)
			}
			if tok.Value != tt.cookie.Value {
				t.Errorf("token = %q, want %q", tok.Value, tt.cookie.Value)
			}
			if !tok.Expiry.Equal(tt.wantExpiry) {
				t.Errorf("expiry = %v, want %v", tok.Expiry, tt.wantExpiry)
			}

			req := fs.last()
			if req.Method != http.MethodPost || req.Path != "/api/login" {
				t.Errorf("request = %s %s, want POST /api/login", req.Method, req.Path)
			}
			if req.Body["username"] != "owner@example.com" || req.Body["password"] != "hunter2" {
				t.Errorf("login body = %v", req.Body)
			}
		})
	}
}

func TestAuthorizedUser(t *testing.T) {
	c, fs := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"u":{"mbc":"mbx-9","system":[{"panid":123456,"sn":"Home","par":[{"parid":1,"s":0}]},{"panid":"777","sn":"Cabin"}]}}`)
	})

	user, err := c.AuthorizedUser(context.Background())
	if err != nil {
		t.Fatalf("AuthorizedUser() error = %v", err)
	}

	if user.MailboxID != "mbx-9" {
		t.Errorf("MailboxID = %q, want mbx-9", user.MailboxID)
	}
	if len(user.Systems) != 2 {
		t.Fatalf("len(Systems) = %d, want 2", len(user.Systems))
	}
	if user.Systems[0].PanelID != "123456" || user.Systems[0].Name != "Home" {
		t.Errorf("Systems[0] = %+v", user.Systems[0])
	}
	if user.Systems[1].PanelID != "777" {
		t.Errorf("Systems[1].PanelID = %q, want 777", user.Systems[1].PanelID)
	}
	if _, ok := user.Systems[0].Raw["par"]; !ok {
		t.Error("Raw descriptor should keep par")
	}

	if got := fs.last(); got.Cookie != "tok-1" || got.Path != "/api/authuser" {
		t.Errorf("request = %+v, want cookie tok-1 on /api/authuser", got)
	}
}

func TestSystemSnapshot(t *testing.T) {
	c, fs := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"system":{"panid":123456,"csce":"heat","par":[{"parid":1,"s":0,"d":[{"_id":5,"t":"door_lock_device","s":false}]}]}}`)
	})

	sys, err := c.SystemSnapshot(context.Background(), "123456")
	if err != nil {
		t.Fatalf("SystemSnapshot() error = %v", err)
	}
	if sys["csce"] != "heat" {
		t.Errorf("csce = %v, want heat", sys["csce"])
	}
	if got := fs.last().Path; got != "/api/systems/123456" {
		t.Errorf("path = %q", got)
	}
}

func TestSystemSnapshot_MissingSystem(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{}`)
	})

	if _, err := c.SystemSnapshot(context.Background(), "1"); !errors.Is(err, ErrMalformedResponse) {
		t.Errorf("error = %v, want ErrMalformedResponse", err)
	}
}

func TestCommands(t *testing.T) {
	tests := []struct {
		name     string
		call     func(*Client) error
		wantPath string
		wantBody map[string]any
	}{
		{
			name: "armed state",
			call: func(c *Client) error {
				return c.SetArmedState(context.Background(), "123456", "1", 4)
			},
			wantPath: "/api/123456/1/armedstates",
			wantBody: map[string]any{"system": 123456.0, "partitionId": 1.0, "armState": 4.0, "forceArm": false},
		},
		{
			name: "lock",
			call: func(c *Client) error {
				return c.SetLockState(context.Background(), "123456", "1", "42", true)
			},
			wantPath: "/api/123456/1/locks/42",
			wantBody: map[string]any{"s": true, "_id": 42.0},
		},
		{
			name: "garage door",
			call: func(c *Client) error {
				return c.SetGarageDoorState(context.Background(), "123456", "1", "43", 2)
			},
			wantPath: "/api/123456/1/door/43",
			wantBody: map[string]any{"s": 2.0, "_id": 43.0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, fs := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			})

			if err := tt.call(c); err != nil {
				t.Fatalf("call error = %v", err)
			}

			req := fs.last()
			if req.Method != http.MethodPut || req.Path != tt.wantPath {
				t.Errorf("request = %s %s, want PUT %s", req.Method, req.Path, tt.wantPath)
			}
			for k, want := range tt.wantBody {
				if req.Body[k] != want {
					t.Errorf("body[%q] = %v (%T), want %v", k, req.Body[k], req.Body[k], want)
				}
			}
		})
	}
}

func TestCommands_UpstreamFailure(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "panel offline", http.StatusBadGateway)
	})

	err := c.SetLockState(context.Background(), "1", "1", "2", false)
	if !errors.Is(err, ErrUpstream) {
		t.Fatalf("error = %v, want ErrUpstream", err)
	}

	var se *StatusError
	if !errors.As(err, &se) || se.Op != "locks" || se.Status != http.StatusBadGateway {
		t.Errorf("StatusError = %+v", se)
	}
	if se.Body != "panel offline" {
		t.Errorf("Body = %q", se.Body)
	}
}

func TestAuthenticatedCall_TokenSourceFailure(t *testing.T) {
	c, fs := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})
	authErr := errors.New("renewal rejected")
	c.SetTokenSource(staticTokens{err: authErr})

	if _, err := c.PanelCredentials(context.Background(), "1"); !errors.Is(err, authErr) {
		t.Errorf("error = %v, want token source error", err)
	}
	if len(fs.requests) != 0 {
		t.Errorf("made %d requests, want none", len(fs.requests))
	}
}

func TestAuthenticatedCall_NoTokenSource(t *testing.T) {
	c, err := New(Config{BaseURL: "http://127.0.0.1:1/api/"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, err := c.AuthorizedUser(context.Background()); !errors.Is(err, ErrNoTokenSource) {
		t.Errorf("error = %v, want ErrNoTokenSource", err)
	}
}

func TestPanelCredentials(t *testing.T) {
	c, fs := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"n":"panel-user","pswd":"panel-pass"}`)
	})

	creds, err := c.PanelCredentials(context.Background(), "123456")
	if err != nil {
		t.Fatalf("PanelCredentials() error = %v", err)
	}
	if creds.Name != "panel-user" || creds.Password != "panel-pass" {
		t.Errorf("creds = %+v", creds)
	}
	if got := fs.last().Path; got != "/api/panel-login/123456" {
		t.Errorf("path = %q", got)
	}
}

func TestID_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		in   string
		want ID
	}{
		{`123`, "123"},
		{`123.0`, "123"},
		{`"abc"`, "abc"},
		{`"42"`, "42"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var id ID
			if err := json.Unmarshal([]byte(tt.in), &id); err != nil {
				t.Fatalf("Unmarshal error = %v", err)
			}
			if id != tt.want {
				t.Errorf("id = %q, want %q", id, tt.want)
			}
		})
	}
}
