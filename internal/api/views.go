package api

import (
	"github.com/nerrad567/skysync/internal/device"
)

// panelView is the JSON form of a panel.
type panelView struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	ArmState     string         `json:"arm_state"`
	Armed        bool           `json:"armed"`
	ClimateState string         `json:"climate_state,omitempty"`
	PartitionID  string         `json:"partition_id,omitempty"`
	Street       string         `json:"street,omitempty"`
	City         string         `json:"city,omitempty"`
	ZipCode      string         `json:"zip_code,omitempty"`
	DeviceCount  int            `json:"device_count"`
	Devices      []deviceView   `json:"devices,omitempty"`
	System       map[string]any `json:"system,omitempty"`
}

// deviceView is the JSON form of a device.
type deviceView struct {
	ID              string         `json:"id"`
	PanelID         string         `json:"panel_id"`
	Kind            string         `json:"kind"`
	KindTag         string         `json:"kind_tag"`
	Name            string         `json:"name"`
	Active          bool           `json:"active"`
	State           string         `json:"state,omitempty"`
	BatteryLevel    *int           `json:"battery_level,omitempty"`
	SoftwareVersion string         `json:"software_version,omitempty"`
	Attributes      map[string]any `json:"attributes,omitempty"`
}

// newPanelView summarises p. detail adds the device list and the raw
// system snapshot.
func newPanelView(p *device.Panel, detail bool) panelView {
	state := p.ArmState()
	v := panelView{
		ID:           p.ID(),
		Name:         p.Name(),
		ArmState:     state.String(),
		Armed:        state.Armed(),
		ClimateState: p.ClimateState(),
		PartitionID:  p.PartitionID(),
		Street:       p.Street(),
		City:         p.City(),
		ZipCode:      p.ZipCode(),
		DeviceCount:  p.DeviceCount(),
	}
	if detail {
		v.Devices = newDeviceViews(p.Devices(), false)
		v.System = p.Snapshot()
	}
	return v
}

func newDeviceView(d device.Device, detail bool) deviceView {
	v := deviceView{
		ID:              d.ID(),
		PanelID:         d.Panel().ID(),
		Kind:            d.Kind().String(),
		KindTag:         d.KindTag(),
		Name:            d.Name(),
		Active:          d.Active(),
		State:           device.StateOf(d),
		SoftwareVersion: d.SoftwareVersion(),
	}
	if level, ok := d.BatteryLevel(); ok {
		v.BatteryLevel = &level
	}
	if detail {
		v.Attributes = d.Attributes()
	}
	return v
}

func newDeviceViews(devices []device.Device, detail bool) []deviceView {
	views := make([]deviceView, 0, len(devices))
	for _, d := range devices {
		views = append(views, newDeviceView(d, detail))
	}
	return views
}
