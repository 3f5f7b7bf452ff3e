package skyapi

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
)

// SystemSnapshot fetches the full system state for one panel.
//
// Returns the object under the response's "system" key. Devices live at
// system.par[0].d.
func (c *Client) SystemSnapshot(ctx context.Context, panelID string) (map[string]any, error) {
	var out struct {
		System map[string]any `json:"system"`
	}

	if err := c.call(ctx, "systems", http.MethodGet, c.endpoint("systems", panelID), nil, &out); err != nil {
		return nil, err
	}
	if out.System == nil {
		return nil, fmt.Errorf("%w: systems: missing system object", ErrMalformedResponse)
	}

	return out.System, nil
}

// SetArmedState submits a desired arm state for one partition.
func (c *Client) SetArmedState(ctx context.Context, panelID, partitionID string, state int) error {
	body := map[string]any{
		"system":      wireID(panelID),
		"partitionId": wireID(partitionID),
		"armState":    state,
		"forceArm":    false,
	}
	return c.call(ctx, "armedstates", http.MethodPut, c.endpoint(panelID, partitionID, "armedstates"), body, nil)
}

// SetLockState submits a desired lock state.
func (c *Client) SetLockState(ctx context.Context, panelID, partitionID, deviceID string, locked bool) error {
	body := map[string]any{
		"s":   locked,
		"_id": wireID(deviceID),
	}
	return c.call(ctx, "locks", http.MethodPut, c.endpoint(panelID, partitionID, "locks", deviceID), body, nil)
}

// SetGarageDoorState submits a desired garage door state code.
func (c *Client) SetGarageDoorState(ctx context.Context, panelID, partitionID, deviceID string, state int) error {
	body := map[string]any{
		"s":   state,
		"_id": wireID(deviceID),
	}
	return c.call(ctx, "door", http.MethodPut, c.endpoint(panelID, partitionID, "door", deviceID), body, nil)
}

// PanelCredentials fetches the credentials the panel uses for proxied
// camera streams.
func (c *Client) PanelCredentials(ctx context.Context, panelID string) (PanelCredentials, error) {
	var out PanelCredentials
	if err := c.call(ctx, "panel-login", http.MethodGet, c.endpoint("panel-login", panelID), nil, &out); err != nil {
		return PanelCredentials{}, err
	}
	return out, nil
}

// wireID sends numeric ids as JSON numbers, matching what the server issued.
func wireID(id string) any {
	if n, err := strconv.ParseInt(id, 10, 64); err == nil {
		return n
	}
	return id
}
