package router

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/nerrad567/skysync/internal/device"
)

// Envelope keys.
const (
	keyPanelID = "panid"
	keyType    = "t"
	keyData    = "da"
	keyDevices = "d"
)

// ErrMalformed is returned for payloads that do not have the envelope shape.
var ErrMalformed = errors.New("router: malformed payload")

// Logger is the logging interface used by Router.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// Stats counts routed payloads.
type Stats struct {
	DeviceDiffs uint64 `json:"device_diffs"`
	SystemDiffs uint64 `json:"system_diffs"`
	Dropped     uint64 `json:"dropped"`
	Failed      uint64 `json:"failed"`
}

// Router dispatches payloads to panels. The panel set is fixed at New.
//
// Route is safe for concurrent use, but payloads for one panel must be
// routed one at a time, in delivery order, to keep that order.
type Router struct {
	panels map[string]*device.Panel
	logger Logger

	deviceDiffs atomic.Uint64
	systemDiffs atomic.Uint64
	dropped     atomic.Uint64
	failed      atomic.Uint64
}

// New creates a Router over panels.
func New(panels []*device.Panel, logger Logger) *Router {
	if logger == nil {
		logger = noopLogger{}
	}
	r := &Router{
		panels: make(map[string]*device.Panel, len(panels)),
		logger: logger,
	}
	for _, p := range panels {
		r.panels[p.ID()] = p
	}
	return r
}

// Route applies one payload.
//
// Returns:
//   - nil if the payload was applied or addressed an untracked panel
//   - ErrMalformed if the payload is not an envelope
//   - device.ErrDeviceNotFound (joined) for device entries the panel lacks;
//     the panel's known entries are still applied
func (r *Router) Route(payload any) error {
	msg, ok := payload.(map[string]any)
	if !ok {
		r.failed.Add(1)
		return fmt.Errorf("%w: payload is %T", ErrMalformed, payload)
	}

	panelID := device.FormatID(msg[keyPanelID])
	panel, ok := r.panels[panelID]
	if !ok {
		r.dropped.Add(1)
		r.logger.Debug("dropping payload for untracked panel", "panel_id", panelID)
		return nil
	}

	data, ok := msg[keyData].(map[string]any)
	if !ok {
		r.failed.Add(1)
		return fmt.Errorf("%w: panel %s: no data section", ErrMalformed, panelID)
	}

	if list, has := data[keyDevices]; has {
		entries, ok := list.([]any)
		if !ok {
			r.failed.Add(1)
			return fmt.Errorf("%w: panel %s: device list is %T", ErrMalformed, panelID, list)
		}
		r.deviceDiffs.Add(1)
		if err := panel.ApplyDeviceDiffs(entries); err != nil {
			r.failed.Add(1)
			r.logger.Warn("device diff addressed unknown devices", "panel_id", panelID, "error", err)
			return err
		}
		return nil
	}

	r.systemDiffs.Add(1)
	r.logger.Debug("applying system diff", "panel_id", panelID, "type", msg[keyType], "keys", len(data))
	panel.ApplySystemDiff(data)
	return nil
}

// Stats returns the current counters.
func (r *Router) Stats() Stats {
	return Stats{
		DeviceDiffs: r.deviceDiffs.Load(),
		SystemDiffs: r.systemDiffs.Load(),
		Dropped:     r.dropped.Load(),
		Failed:      r.failed.Load(),
	}
}
