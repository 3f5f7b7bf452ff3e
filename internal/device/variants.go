package device

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// Lock is a door lock. Raw "s": true is locked.
type Lock struct {
	*Base
}

func newLock(b *Base) Device { return &Lock{Base: b} }

// State interprets the raw state.
func (l *Lock) State() LockState {
	return parseLockState(l.state())
}

// Lock submits a lock request. Local state is unchanged until a push diff
// reports the result.
func (l *Lock) Lock(ctx context.Context) error {
	return l.panel.submitLock(ctx, l.id, true)
}

// Unlock submits an unlock request.
func (l *Lock) Unlock(ctx context.Context) error {
	return l.panel.submitLock(ctx, l.id, false)
}

// GarageDoor is a garage door opener. Raw "s" is a 0..5 code.
type GarageDoor struct {
	*Base
}

func newGarageDoor(b *Base) Device { return &GarageDoor{Base: b} }

// State interprets the raw state code.
func (g *GarageDoor) State() GarageDoorState {
	return parseGarageDoorState(g.state())
}

// Open submits state Opening. Local state is unchanged.
func (g *GarageDoor) Open(ctx context.Context) error {
	return g.panel.submitGarageDoor(ctx, g.id, GarageDoorOpening)
}

// Close submits state Closing. Local state is unchanged.
func (g *GarageDoor) Close(ctx context.Context) error {
	return g.panel.submitGarageDoor(ctx, g.id, GarageDoorClosing)
}

// Sensor is a wireless contact or motion sensor. Raw "s": true is opened
// (or motion detected).
type Sensor struct {
	*Base
}

func newSensor(b *Base) Device { return &Sensor{Base: b} }

// State interprets the raw state.
func (s *Sensor) State() SensorState {
	return parseSensorState(s.state())
}

// Camera is a video camera, streamed either through the panel or directly.
type Camera struct {
	*Base
}

func newCamera(b *Base) Device { return &Camera{Base: b} }

// RTSPURL returns a panel-proxied stream URL with the panel's credentials
// embedded. internal selects the LAN address ("ciu"/"cius") over the
// external one ("ceu"/"ceus"); hd selects the full-resolution stream.
func (c *Camera) RTSPURL(ctx context.Context, internal, hd bool) (string, error) {
	key := "ceu"
	if internal {
		key = "ciu"
	}
	if !hd {
		key += "s"
	}

	raw, ok := c.firstString(key)
	if !ok {
		return "", fmt.Errorf("%w: camera %s has no %q stream", ErrNotSupported, c.id, key)
	}

	creds, err := c.panel.credentials(ctx)
	if err != nil {
		return "", err
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("camera %s: parsing stream url: %w", c.id, err)
	}
	u.User = url.UserPassword(creds.Name, creds.Password)
	return u.String(), nil
}

// DirectRTSPURL returns the camera's own stream URL when direct access
// ("cda") is enabled. ok is false otherwise.
func (c *Camera) DirectRTSPURL(hd bool) (string, bool) {
	c.panel.mu.RLock()
	defer c.panel.mu.RUnlock()

	if enabled, _ := c.attrs["cda"].(bool); !enabled {
		return "", false
	}

	host := stringValue(c.attrs, "caip")
	if host == "" {
		return "", false
	}
	port := FormatID(c.attrs["cap"])

	pathKey := "cdps"
	if hd {
		pathKey = "cdp"
	}

	u := url.URL{
		Scheme: "rtsp",
		User:   url.UserPassword(stringValue(c.attrs, "un"), stringValue(c.attrs, "pswd")),
		Host:   host,
		Path:   "/" + strings.TrimPrefix(stringValue(c.attrs, pathKey), "/"),
	}
	if port != "" {
		u.Host = host + ":" + port
	}
	return u.String(), true
}

func (c *Camera) firstString(key string) (string, bool) {
	c.panel.mu.RLock()
	defer c.panel.mu.RUnlock()

	list, _ := c.attrs[key].([]any)
	if len(list) == 0 {
		return "", false
	}
	s, ok := list[0].(string)
	return s, ok && s != ""
}

// Command actions accepted by Do.
const (
	ActionLock   = "lock"
	ActionUnlock = "unlock"
	ActionOpen   = "open"
	ActionClose  = "close"
)

// Do submits a named command to d. Locks take ActionLock and ActionUnlock,
// garage doors take ActionOpen and ActionClose. Anything else returns
// ErrNotSupported.
func Do(ctx context.Context, d Device, action string) error {
	switch v := d.(type) {
	case *Lock:
		switch action {
		case ActionLock:
			return v.Lock(ctx)
		case ActionUnlock:
			return v.Unlock(ctx)
		}
	case *GarageDoor:
		switch action {
		case ActionOpen:
			return v.Open(ctx)
		case ActionClose:
			return v.Close(ctx)
		}
	}
	return fmt.Errorf("%w: %q on %s device %s", ErrNotSupported, action, d.Kind(), d.ID())
}

// StateOf returns the interpreted state of d as a string, or "" for kinds
// without one.
func StateOf(d Device) string {
	return interpretState(d, d.base().state())
}

func interpretState(d Device, raw any) string {
	switch d.(type) {
	case *Lock:
		return parseLockState(raw).String()
	case *GarageDoor:
		return parseGarageDoorState(raw).String()
	case *Sensor:
		return parseSensorState(raw).String()
	}
	return ""
}
