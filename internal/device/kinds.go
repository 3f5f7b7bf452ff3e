package device

// Kind is the specialization chosen for a device at construction.
type Kind int

const (
	KindUnknown Kind = iota
	KindLock
	KindGarageDoor
	KindSensor
	KindCamera
)

func (k Kind) String() string {
	switch k {
	case KindLock:
		return "lock"
	case KindGarageDoor:
		return "garage_door"
	case KindSensor:
		return "sensor"
	case KindCamera:
		return "camera"
	default:
		return "unknown"
	}
}

// Raw type tags with a specialization.
const (
	TagDoorLock     = "door_lock_device"
	TagGarageDoor   = "garage_door_device"
	TagWirelessSens = "wireless_sensor"
	TagCamera       = "camera_device"
)

// Constructor wraps a Base in its kind-specific type.
type Constructor func(b *Base) Device

// KindTable maps raw type tags to constructors. It cannot be changed after
// NewKindTable returns.
type KindTable struct {
	entries map[string]kindEntry
}

type kindEntry struct {
	kind Kind
	ctor Constructor
}

// KindBinding describes one table entry.
type KindBinding struct {
	Kind        Kind
	Constructor Constructor
}

// NewKindTable copies bindings into an immutable table.
func NewKindTable(bindings map[string]KindBinding) *KindTable {
	t := &KindTable{entries: make(map[string]kindEntry, len(bindings))}
	for tag, b := range bindings {
		t.entries[tag] = kindEntry{kind: b.Kind, ctor: b.Constructor}
	}
	return t
}

// DefaultKinds returns the built-in table.
func DefaultKinds() *KindTable {
	return NewKindTable(map[string]KindBinding{
		TagDoorLock:     {Kind: KindLock, Constructor: newLock},
		TagGarageDoor:   {Kind: KindGarageDoor, Constructor: newGarageDoor},
		TagWirelessSens: {Kind: KindSensor, Constructor: newSensor},
		TagCamera:       {Kind: KindCamera, Constructor: newCamera},
	})
}

// resolve returns the entry for tag, falling back to Generic.
func (t *KindTable) resolve(tag string) (Kind, Constructor) {
	if t != nil {
		if e, ok := t.entries[tag]; ok && e.ctor != nil {
			return e.kind, e.ctor
		}
	}
	return KindUnknown, newGeneric
}
