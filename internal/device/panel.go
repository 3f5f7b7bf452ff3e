package device

import (
	"context"
	"fmt"
	"sync"

	"github.com/nerrad567/skysync/internal/skyapi"
)

// Logger defines the logging interface used by panels.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}

// Commander submits desired-state writes. *skyapi.Client satisfies it.
// A nil error means the write was submitted, not that it took effect.
type Commander interface {
	SetArmedState(ctx context.Context, panelID, partitionID string, state int) error
	SetLockState(ctx context.Context, panelID, partitionID, deviceID string, locked bool) error
	SetGarageDoorState(ctx context.Context, panelID, partitionID, deviceID string, state int) error
	PanelCredentials(ctx context.Context, panelID string) (skyapi.PanelCredentials, error)
}

// Env carries the collaborators a panel is built with.
type Env struct {
	// Kinds resolves type tags. Defaults to DefaultKinds().
	Kinds *KindTable

	// Commander is used by device and panel commands. Optional.
	Commander Commander

	Logger Logger
}

// ArmingEvent is raised when a system diff carries an arm or disarm key.
type ArmingEvent struct {
	PanelID string

	// Key is the reserved key that triggered the event ("seca" or "secd").
	Key string

	// Armed is true for "seca".
	Armed bool

	// State is the panel arm state after the diff was applied.
	State ArmState

	// Data is a copy of the key's value.
	Data any
}

// Panel is one control panel and the devices it owns.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - Diffs are applied one at a time; readers never see a partial merge.
type Panel struct {
	id         string
	descriptor map[string]any
	commander  Commander
	logger     Logger

	mu      sync.RWMutex
	system  map[string]any
	devices map[string]Device
	order   []string

	onChange       func(*Panel)
	onDeviceChange func(Device)
	onArming       func(ArmingEvent)
}

// BuildPanel constructs a panel and its devices from an account descriptor
// and a system snapshot (the object under the snapshot response's "system"
// key).
//
// Device entries with an unrecognised type tag become *Generic. Entries
// without an id are logged and skipped.
//
// Returns:
//   - *Panel: The new panel; its device membership is fixed from here on
//   - error: ErrInvalidSnapshot if no panel id can be found
func BuildPanel(descriptor, system map[string]any, env Env) (*Panel, error) {
	id := FormatID(system[keyPanelID])
	if id == "" {
		id = FormatID(descriptor[keyPanelID])
	}
	if id == "" {
		return nil, fmt.Errorf("%w: no panel id", ErrInvalidSnapshot)
	}

	kinds := env.Kinds
	if kinds == nil {
		kinds = DefaultKinds()
	}
	logger := env.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	p := &Panel{
		id:         id,
		descriptor: deepCopyMap(descriptor),
		commander:  env.Commander,
		logger:     logger,
		system:     withoutDevices(system),
		devices:    make(map[string]Device),
	}

	for _, raw := range deviceEntries(system) {
		entry, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		devID := FormatID(entry[keyID])
		if devID == "" {
			logger.Warn("skipping device entry without id", "panel_id", id)
			continue
		}
		if _, dup := p.devices[devID]; dup {
			logger.Warn("skipping duplicate device entry", "panel_id", id, "device_id", devID)
			continue
		}

		tag := stringValue(entry, keyKindTag)
		kind, ctor := kinds.resolve(tag)
		b := &Base{
			id:      devID,
			kind:    kind,
			kindTag: tag,
			panel:   p,
			attrs:   deepCopyMap(entry),
			active:  true,
		}
		b.self = ctor(b)

		p.devices[devID] = b.self
		p.order = append(p.order, devID)

		if kind == KindUnknown {
			logger.Debug("device kind has no specialization", "panel_id", id, "device_id", devID, "type", tag)
		}
	}

	logger.Info("panel built", "panel_id", id, "devices", len(p.order))
	return p, nil
}

// ID returns the panel id.
func (p *Panel) ID() string { return p.id }

// Name returns the account's name for the panel ("sn").
func (p *Panel) Name() string {
	if n := stringValue(p.descriptor, "sn"); n != "" {
		return n
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return stringValue(p.system, "sn")
}

// Descriptor returns a copy of the account descriptor.
func (p *Panel) Descriptor() map[string]any {
	return deepCopyMap(p.descriptor)
}

// Snapshot returns a deep copy of the system-level attributes. Device lists
// are not included; use Devices.
func (p *Panel) Snapshot() map[string]any {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return deepCopyMap(p.system)
}

// PanelView is a consistent copy of a panel's system state.
type PanelView struct {
	Name     string
	ArmState ArmState
	System   map[string]any
}

// View reads the panel name, arm state and system attributes under one read
// lock.
func (p *Panel) View() PanelView {
	p.mu.RLock()
	defer p.mu.RUnlock()
	name := stringValue(p.descriptor, "sn")
	if name == "" {
		name = stringValue(p.system, "sn")
	}
	return PanelView{
		Name:     name,
		ArmState: p.armStateLocked(),
		System:   deepCopyMap(p.system),
	}
}

// SystemAttribute returns a copy of one system-level attribute.
func (p *Panel) SystemAttribute(key string) (any, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	v, ok := p.system[key]
	return deepCopyValue(v), ok
}

func (p *Panel) systemString(key string) string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return stringValue(p.system, key)
}

// Street returns the installation street address.
func (p *Panel) Street() string { return p.systemString("add") }

// City returns the installation city.
func (p *Panel) City() string { return p.systemString("cit") }

// ZipCode returns the installation postal code.
func (p *Panel) ZipCode() string { return p.systemString("poc") }

// ClimateState returns the climate state ("csce").
func (p *Panel) ClimateState() string { return p.systemString("csce") }

// ArmState returns the first partition's arm state.
func (p *Panel) ArmState() ArmState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.armStateLocked()
}

func (p *Panel) armStateLocked() ArmState {
	if part := firstPartition(p.system); part != nil {
		return ParseArmState(part[keyState])
	}
	if part := firstPartition(p.descriptor); part != nil {
		return ParseArmState(part[keyState])
	}
	return ArmStateUnknown
}

// PartitionID returns the first partition's id, defaulting to "1".
func (p *Panel) PartitionID() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if part := firstPartition(p.system); part != nil {
		if id := FormatID(part[keyPartID]); id != "" {
			return id
		}
	}
	if part := firstPartition(p.descriptor); part != nil {
		if id := FormatID(part[keyPartID]); id != "" {
			return id
		}
	}
	return "1"
}

// Device returns the device with the given id.
//
// Returns:
//   - Device: The same object for the life of the panel
//   - error: ErrDeviceNotFound if the panel has no such device
func (p *Panel) Device(id string) (Device, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	d, ok := p.devices[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrDeviceNotFound, p.id, id)
	}
	return d, nil
}

// Devices returns all devices in snapshot order, inactive ones included.
func (p *Panel) Devices() []Device {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Device, 0, len(p.order))
	for _, id := range p.order {
		out = append(out, p.devices[id])
	}
	return out
}

// DeviceCount returns the number of devices.
func (p *Panel) DeviceCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.order)
}

// SetOnChange registers the hook fired once per applied system diff or
// snapshot refresh.
func (p *Panel) SetOnChange(fn func(*Panel)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onChange = fn
}

// SetOnDeviceChange registers a hook fired for every device change on this
// panel, after the device's own hook.
func (p *Panel) SetOnDeviceChange(fn func(Device)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onDeviceChange = fn
}

// SetOnArming registers the arming-event hook.
func (p *Panel) SetOnArming(fn func(ArmingEvent)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onArming = fn
}

// SetArmState submits a desired arm state. The panel's ArmState is not
// changed until a push diff reports it.
func (p *Panel) SetArmState(ctx context.Context, state ArmState) error {
	if !state.Valid() {
		return fmt.Errorf("device: invalid arm state %d", int(state))
	}
	if p.commander == nil {
		return ErrNoCommander
	}
	return p.commander.SetArmedState(ctx, p.id, p.PartitionID(), int(state))
}

func (p *Panel) submitLock(ctx context.Context, deviceID string, locked bool) error {
	if p.commander == nil {
		return ErrNoCommander
	}
	return p.commander.SetLockState(ctx, p.id, p.PartitionID(), deviceID, locked)
}

func (p *Panel) submitGarageDoor(ctx context.Context, deviceID string, state GarageDoorState) error {
	if p.commander == nil {
		return ErrNoCommander
	}
	return p.commander.SetGarageDoorState(ctx, p.id, p.PartitionID(), deviceID, int(state))
}

func (p *Panel) credentials(ctx context.Context) (skyapi.PanelCredentials, error) {
	if p.commander == nil {
		return skyapi.PanelCredentials{}, ErrNoCommander
	}
	return p.commander.PanelCredentials(ctx, p.id)
}
