package skyapi

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTokenTTL is assumed when the login response gives no usable expiry.
const DefaultTokenTTL = 20 * time.Minute

// Token is a server-issued session token and the instant it stops being valid.
type Token struct {
	Value  string
	Expiry time.Time
}

// ID is a remote identifier that may arrive as a JSON number or string.
type ID string

// UnmarshalJSON accepts 123, 123.0 and "123".
func (id *ID) UnmarshalJSON(data []byte) error {
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		if i, err := n.Int64(); err == nil {
			*id = ID(strconv.FormatInt(i, 10))
			return nil
		}
		if f, err := n.Float64(); err == nil && f == math.Trunc(f) {
			*id = ID(strconv.FormatFloat(f, 'f', -1, 64))
			return nil
		}
		*id = ID(n.String())
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("id: %w", err)
	}
	*id = ID(s)
	return nil
}

func (id ID) String() string { return string(id) }

// SystemDescriptor is the account-scoped static description of one panel,
// as listed in the authorised-user response.
type SystemDescriptor struct {
	PanelID ID     `json:"panid"`
	Name    string `json:"sn"`

	// Raw keeps every key of the descriptor, including "par".
	Raw map[string]any `json:"-"`
}

// AuthorizedUser is the subset of the authuser response the runtime uses.
type AuthorizedUser struct {
	// MailboxID names the account's push channel.
	MailboxID string
	Systems   []SystemDescriptor
}

// PanelCredentials authenticate camera streams proxied by the panel.
type PanelCredentials struct {
	Name     string `json:"n"`
	Password string `json:"pswd"`
}

// Login authenticates with username and password.
//
// The session token is the "s" cookie of the response. Its expiry comes
// from the cookie's Expires or Max-Age, else from the JWT "exp" claim when
// the token is a JWT, else now+DefaultTokenTTL.
//
// Returns:
//   - Token: Session token and expiry
//   - error: *StatusError on non-2xx, ErrNoSessionCookie if the cookie is missing
func (c *Client) Login(ctx context.Context, username, password string) (Token, error) {
	body := map[string]string{
		"username": username,
		"password": password,
	}

	resp, err := c.send(ctx, http.MethodPost, c.endpoint("login"), body, nil)
	if err != nil {
		return Token{}, fmt.Errorf("skyapi: login: %w", err)
	}
	defer resp.Body.Close()

	if err := c.decode("login", resp, nil); err != nil {
		return Token{}, err
	}

	for _, cookie := range resp.Cookies() {
		if cookie.Name != sessionCookie || cookie.Value == "" {
			continue
		}
		return Token{
			Value:  cookie.Value,
			Expiry: c.tokenExpiry(cookie),
		}, nil
	}

	return Token{}, ErrNoSessionCookie
}

func (c *Client) tokenExpiry(cookie *http.Cookie) time.Time {
	now := c.now()

	if cookie.MaxAge > 0 {
		return now.Add(time.Duration(cookie.MaxAge) * time.Second)
	}
	if !cookie.Expires.IsZero() {
		return cookie.Expires
	}
	if exp, ok := jwtExpiry(cookie.Value); ok {
		return exp
	}
	return now.Add(DefaultTokenTTL)
}

// jwtExpiry reads the exp claim without verifying the signature; the token
// is only ever presented back to the server that issued it.
func jwtExpiry(token string) (time.Time, bool) {
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return time.Time{}, false
	}
	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

// AuthorizedUser fetches the account description: mailbox id and panels.
func (c *Client) AuthorizedUser(ctx context.Context) (*AuthorizedUser, error) {
	var out struct {
		User struct {
			MailboxID string            `json:"mbc"`
			Systems   []json.RawMessage `json:"system"`
		} `json:"u"`
	}

	if err := c.call(ctx, "authuser", http.MethodGet, c.endpoint("authuser"), nil, &out); err != nil {
		return nil, err
	}

	user := &AuthorizedUser{MailboxID: out.User.MailboxID}
	for _, raw := range out.User.Systems {
		var desc SystemDescriptor
		if err := json.Unmarshal(raw, &desc); err != nil {
			return nil, fmt.Errorf("%w: authuser: system: %v", ErrMalformedResponse, err)
		}
		if err := json.Unmarshal(raw, &desc.Raw); err != nil {
			return nil, fmt.Errorf("%w: authuser: system: %v", ErrMalformedResponse, err)
		}
		user.Systems = append(user.Systems, desc)
	}

	return user, nil
}
