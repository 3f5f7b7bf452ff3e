package events

import (
	"time"

	"github.com/nerrad567/skysync/internal/device"
)

// Kind names an event. The values double as WebSocket channel names.
type Kind string

const (
	KindDeviceChanged Kind = "device.changed"
	KindPanelChanged  Kind = "panel.changed"
	KindPanelArming   Kind = "panel.arming"
)

// Valid reports whether k is one of the kinds above.
func (k Kind) Valid() bool {
	switch k {
	case KindDeviceChanged, KindPanelChanged, KindPanelArming:
		return true
	}
	return false
}

// Event is one change, detached from the panel tree so sinks can read it
// without locking.
type Event struct {
	Kind    Kind   `json:"kind"`
	PanelID string `json:"panel_id"`

	// Device events only.
	DeviceID   string `json:"device_id,omitempty"`
	DeviceKind string `json:"device_kind,omitempty"`

	Name string `json:"name,omitempty"`

	// State is the interpreted device state, or the panel arm state name.
	State  string `json:"state,omitempty"`
	Active bool   `json:"active"`

	// Armed is set on panel events.
	Armed *bool `json:"armed,omitempty"`

	Attributes map[string]any `json:"attributes,omitempty"`
	Time       time.Time      `json:"time"`
}

// DeviceChanged builds a KindDeviceChanged event from one consistent view
// of d.
func DeviceChanged(d device.Device, now time.Time) Event {
	v := device.ViewOf(d)
	return Event{
		Kind:       KindDeviceChanged,
		PanelID:    d.Panel().ID(),
		DeviceID:   d.ID(),
		DeviceKind: d.Kind().String(),
		Name:       v.Name,
		State:      v.State,
		Active:     v.Active,
		Attributes: v.Attributes,
		Time:       now,
	}
}

// PanelChanged builds a KindPanelChanged event. Attributes are the panel's
// system attributes without the device list.
func PanelChanged(p *device.Panel, now time.Time) Event {
	v := p.View()
	armed := v.ArmState.Armed()
	return Event{
		Kind:       KindPanelChanged,
		PanelID:    p.ID(),
		Name:       v.Name,
		State:      v.ArmState.String(),
		Active:     true,
		Armed:      &armed,
		Attributes: v.System,
		Time:       now,
	}
}

// PanelArming builds a KindPanelArming event. Armed reflects the key that
// triggered it, not the resulting arm state.
func PanelArming(ev device.ArmingEvent, now time.Time) Event {
	armed := ev.Armed
	attrs := map[string]any{"key": ev.Key}
	if ev.Data != nil {
		attrs["data"] = ev.Data
	}
	return Event{
		Kind:       KindPanelArming,
		PanelID:    ev.PanelID,
		State:      ev.State.String(),
		Active:     true,
		Armed:      &armed,
		Attributes: attrs,
		Time:       now,
	}
}
