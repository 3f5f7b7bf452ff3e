package device

import (
	"strconv"
	"strings"
)

// Device is the capability set every device kind offers.
//
// Implementations are *Lock, *GarageDoor, *Sensor, *Camera and *Generic.
// Use a type switch or Kind() for kind-specific behaviour.
type Device interface {
	// ID is the stable device id, as a decimal string.
	ID() string

	// Kind is the specialization chosen at construction.
	Kind() Kind

	// KindTag is the raw type tag seen at construction.
	KindTag() string

	Name() string

	// Panel returns the owning panel.
	Panel() *Panel

	// Attributes returns a deep copy of the raw attribute map.
	Attributes() map[string]any

	// Attribute returns a deep copy of one raw attribute.
	Attribute(key string) (any, bool)

	// Active is false while the latest snapshot refresh omitted the device.
	Active() bool

	// BatteryLevel reports 0..100 if the device reports a battery.
	BatteryLevel() (int, bool)

	// SoftwareVersion reports the device's firmware/software string, or "".
	SoftwareVersion() string

	// SetOnChange registers the hook fired after each applied change.
	// A nil fn removes it.
	SetOnChange(fn func(Device))

	base() *Base
}

// Base holds state common to every kind. Kind-specific types embed *Base.
// All fields are guarded by the owning panel's lock.
type Base struct {
	id      string
	kind    Kind
	kindTag string
	panel   *Panel
	attrs   map[string]any
	active  bool
	self    Device

	onChange func(Device)
}

func (b *Base) base() *Base { return b }

// ID returns the device id.
func (b *Base) ID() string { return b.id }

// Kind returns the specialization chosen at construction.
func (b *Base) Kind() Kind { return b.kind }

// KindTag returns the raw type tag seen at construction.
func (b *Base) KindTag() string { return b.kindTag }

// Panel returns the owning panel.
func (b *Base) Panel() *Panel { return b.panel }

// Name returns the "n" attribute, or "" if unset.
func (b *Base) Name() string {
	b.panel.mu.RLock()
	defer b.panel.mu.RUnlock()
	return stringValue(b.attrs, keyName)
}

// Attributes returns a deep copy of the raw attribute map.
func (b *Base) Attributes() map[string]any {
	b.panel.mu.RLock()
	defer b.panel.mu.RUnlock()
	return deepCopyMap(b.attrs)
}

// Attribute returns a deep copy of one raw attribute.
func (b *Base) Attribute(key string) (any, bool) {
	b.panel.mu.RLock()
	defer b.panel.mu.RUnlock()
	v, ok := b.attrs[key]
	return deepCopyValue(v), ok
}

// Active reports whether the latest snapshot refresh included the device.
func (b *Base) Active() bool {
	b.panel.mu.RLock()
	defer b.panel.mu.RUnlock()
	return b.active
}

// SetOnChange registers the hook fired after each applied change. A nil fn
// removes it.
func (b *Base) SetOnChange(fn func(Device)) {
	b.panel.mu.Lock()
	defer b.panel.mu.Unlock()
	b.onChange = fn
}

// BatteryLevel prefers the numeric "bl"; a bare low-battery flag "lb" maps
// to 0 (low) or 100.
func (b *Base) BatteryLevel() (int, bool) {
	b.panel.mu.RLock()
	defer b.panel.mu.RUnlock()

	if level, ok := intValue(b.attrs["bl"]); ok {
		return level, true
	}
	if low, ok := b.attrs["lb"].(bool); ok {
		if low {
			return 0, true
		}
		return 100, true
	}
	return 0, false
}

// SoftwareVersion checks, in order: "csv" (panels), "sv" (cameras), "fwv"
// (z-wave, a list of number lists joined with dots) and
// "sensor_firmware_version".
func (b *Base) SoftwareVersion() string {
	b.panel.mu.RLock()
	defer b.panel.mu.RUnlock()

	if v := stringValue(b.attrs, "csv"); v != "" {
		return v
	}
	if v := stringValue(b.attrs, "sv"); v != "" {
		return v
	}
	if v := joinFirmware(b.attrs["fwv"]); v != "" {
		return v
	}
	return stringValue(b.attrs, "sensor_firmware_version")
}

func joinFirmware(v any) string {
	groups, _ := v.([]any)
	var parts []string
	for _, g := range groups {
		nums, _ := g.([]any)
		for _, n := range nums {
			switch x := n.(type) {
			case float64:
				parts = append(parts, strconv.FormatFloat(x, 'f', -1, 64))
			case string:
				parts = append(parts, x)
			}
		}
	}
	return strings.Join(parts, ".")
}

// state reads the raw "s" attribute under the read lock.
// View is a consistent copy of a device's mutable state.
type View struct {
	Name       string
	State      string
	Active     bool
	Attributes map[string]any
}

// ViewOf reads d's name, interpreted state, active flag and attributes
// under one panel read lock, so a concurrent diff is seen entirely or not
// at all.
func ViewOf(d Device) View {
	b := d.base()
	b.panel.mu.RLock()
	defer b.panel.mu.RUnlock()
	return View{
		Name:       stringValue(b.attrs, keyName),
		State:      interpretState(d, b.attrs[keyState]),
		Active:     b.active,
		Attributes: deepCopyMap(b.attrs),
	}
}

func (b *Base) state() any {
	b.panel.mu.RLock()
	defer b.panel.mu.RUnlock()
	return b.attrs[keyState]
}

// Generic wraps a device whose kind tag has no specialization.
type Generic struct {
	*Base
}

func newGeneric(b *Base) Device { return &Generic{Base: b} }
