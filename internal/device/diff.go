package device

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
)

// Reserved system-diff keys.
const (
	// KeyPanelContext is bookkeeping from the panel and never merged.
	KeyPanelContext = "plctx"

	// KeyArmed and KeyDisarmed signal an arm/disarm transition.
	KeyArmed    = "seca"
	KeyDisarmed = "secd"
)

// notifications collects hooks to run once the panel lock is released.
type notifications struct {
	panel   *Panel
	devices []Device
	changed bool
	arming  []ArmingEvent

	onChange       func(*Panel)
	onDeviceChange func(Device)
	onArming       func(ArmingEvent)
	deviceHooks    []func(Device)
}

func (p *Panel) newNotifications() *notifications {
	return &notifications{
		panel:          p,
		onChange:       p.onChange,
		onDeviceChange: p.onDeviceChange,
		onArming:       p.onArming,
	}
}

// addDevice must be called with the panel lock held.
func (n *notifications) addDevice(d Device) {
	n.devices = append(n.devices, d)
	n.deviceHooks = append(n.deviceHooks, d.base().onChange)
}

func (n *notifications) fire() {
	for i, d := range n.devices {
		if hook := n.deviceHooks[i]; hook != nil {
			hook(d)
		}
		if n.onDeviceChange != nil {
			n.onDeviceChange(d)
		}
	}
	if n.changed && n.onChange != nil {
		n.onChange(n.panel)
	}
	if n.onArming != nil {
		for _, ev := range n.arming {
			n.onArming(ev)
		}
	}
}

// ApplyDeviceDiff merges attrs into one device's attributes and fires its
// change hook.
//
// Returns ErrDeviceNotFound if the panel has no device with that id.
func (p *Panel) ApplyDeviceDiff(id string, attrs map[string]any) error {
	p.mu.Lock()
	d, ok := p.devices[id]
	if !ok {
		p.mu.Unlock()
		return fmt.Errorf("%w: %s/%s", ErrDeviceNotFound, p.id, id)
	}
	n := p.newNotifications()
	mergeInto(d.base().attrs, attrs)
	n.addDevice(d)
	p.mu.Unlock()

	n.fire()
	return nil
}

// ApplyDeviceDiffs applies a device list from one push payload. Each entry
// is a device attribute object carrying its "_id". The whole list is
// applied under one lock so readers see all of it or none of it.
//
// Entries for unknown devices or without an id are skipped; their errors
// are joined and returned after the known entries are applied and notified.
func (p *Panel) ApplyDeviceDiffs(entries []any) error {
	var errs []error

	p.mu.Lock()
	n := p.newNotifications()
	for _, raw := range entries {
		entry, ok := raw.(map[string]any)
		if !ok {
			errs = append(errs, fmt.Errorf("%w: panel %s: entry is %T", ErrMissingID, p.id, raw))
			continue
		}
		id := FormatID(entry[keyID])
		if id == "" {
			errs = append(errs, fmt.Errorf("%w: panel %s", ErrMissingID, p.id))
			continue
		}
		d, ok := p.devices[id]
		if !ok {
			errs = append(errs, fmt.Errorf("%w: %s/%s", ErrDeviceNotFound, p.id, id))
			continue
		}
		mergeInto(d.base().attrs, entry)
		n.addDevice(d)
	}
	p.mu.Unlock()

	n.fire()
	return errors.Join(errs...)
}

// ApplySystemDiff merges system-level attributes into the panel snapshot.
//
// KeyPanelContext is ignored. Object values are merged into an existing
// object key by key; anything else, lists included, replaces the existing
// value. KeyArmed and KeyDisarmed are stored like any other key and also
// raise an ArmingEvent. The panel hook fires once per diff when at least
// one key was applied.
func (p *Panel) ApplySystemDiff(attrs map[string]any) {
	p.mu.Lock()
	n := p.newNotifications()
	var armingKeys []string

	for k, v := range attrs {
		if k == KeyPanelContext {
			continue
		}
		mergeInto(p.system, map[string]any{k: v})
		if k == keyPartList {
			stripDevices(p.system)
		}
		n.changed = true

		if k == KeyArmed || k == KeyDisarmed {
			armingKeys = append(armingKeys, k)
		}
	}

	if len(armingKeys) > 0 {
		sort.Strings(armingKeys)
		state := p.armStateLocked()
		for _, k := range armingKeys {
			n.arming = append(n.arming, ArmingEvent{
				PanelID: p.id,
				Key:     k,
				Armed:   k == KeyArmed,
				State:   state,
				Data:    deepCopyValue(attrs[k]),
			})
		}
	}
	p.mu.Unlock()

	n.fire()
}

// ApplySnapshotRefresh replaces the panel's system attributes with a fresh
// snapshot and refreshes each known device in place.
//
// Device objects are never recreated. A known device missing from the new
// snapshot is kept but marked inactive; if a later refresh lists it again
// it becomes active again. Devices that appear only in a refresh are logged
// and ignored. Hooks fire for every device whose attributes or activity
// changed, then the panel hook fires once.
func (p *Panel) ApplySnapshotRefresh(system map[string]any) error {
	if id := FormatID(system[keyPanelID]); id != "" && id != p.id {
		return fmt.Errorf("%w: snapshot for panel %s applied to %s", ErrInvalidSnapshot, id, p.id)
	}

	var ignored []string

	p.mu.Lock()
	n := p.newNotifications()
	p.system = withoutDevices(system)
	n.changed = true

	seen := make(map[string]bool)
	for _, raw := range deviceEntries(system) {
		entry, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		id := FormatID(entry[keyID])
		d, ok := p.devices[id]
		if !ok {
			if id != "" {
				ignored = append(ignored, id)
			}
			continue
		}
		seen[id] = true

		b := d.base()
		if b.active && reflect.DeepEqual(b.attrs, entry) {
			continue
		}
		b.attrs = deepCopyMap(entry)
		b.active = true
		n.addDevice(d)
	}

	for _, id := range p.order {
		b := p.devices[id].base()
		if !seen[id] && b.active {
			b.active = false
			n.addDevice(b.self)
		}
	}
	p.mu.Unlock()

	for _, id := range ignored {
		p.logger.Info("ignoring device first seen in refresh", "panel_id", p.id, "device_id", id)
	}

	n.fire()
	return nil
}
