package device

import (
	"fmt"
	"math"
	"strconv"
)

// Raw attribute keys shared across kinds.
const (
	keyID       = "_id"
	keyKindTag  = "t"
	keyName     = "n"
	keyState    = "s"
	keyDevices  = "d"
	keyPartList = "par"
	keyPanelID  = "panid"
	keyPartID   = "parid"
)

// deepCopyMap creates a deep copy of a map[string]any.
// Nested maps and slices are recursively copied.
func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cpy := make(map[string]any, len(m))
	for k, v := range m {
		cpy[k] = deepCopyValue(v)
	}
	return cpy
}

// deepCopyValue recursively copies a value, handling nested maps and slices.
func deepCopyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return deepCopyMap(val)
	case []any:
		cpy := make([]any, len(val))
		for i, elem := range val {
			cpy[i] = deepCopyValue(elem)
		}
		return cpy
	default:
		return v
	}
}

// mergeInto merges src into dst. Object values present on both sides are
// merged recursively; every other value in src replaces dst's.
func mergeInto(dst, src map[string]any) {
	for k, v := range src {
		incoming, isMap := v.(map[string]any)
		if isMap {
			if existing, ok := dst[k].(map[string]any); ok {
				mergeInto(existing, incoming)
				continue
			}
		}
		dst[k] = deepCopyValue(v)
	}
}

// FormatID renders a raw id (JSON number or string) as the canonical string
// key used for panels and devices. It returns "" for nil and other types.
func FormatID(v any) string {
	switch id := v.(type) {
	case string:
		return id
	case float64:
		if id == math.Trunc(id) && !math.IsInf(id, 0) {
			return strconv.FormatFloat(id, 'f', -1, 64)
		}
		return strconv.FormatFloat(id, 'g', -1, 64)
	case int:
		return strconv.Itoa(id)
	case int64:
		return strconv.FormatInt(id, 10)
	case fmt.Stringer:
		return id.String()
	default:
		return ""
	}
}

// intValue reads an integral JSON number.
func intValue(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) || math.IsNaN(n) {
			return 0, false
		}
		return int(n), true
	case int:
		return n, true
	case int64:
		return int(n), true
	default:
		return 0, false
	}
}

func stringValue(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

// firstPartition returns par[0] of a system map, or nil.
func firstPartition(system map[string]any) map[string]any {
	parts, _ := system[keyPartList].([]any)
	if len(parts) == 0 {
		return nil
	}
	p, _ := parts[0].(map[string]any)
	return p
}

// deviceEntries returns the raw device list at par[0].d.
func deviceEntries(system map[string]any) []any {
	p := firstPartition(system)
	if p == nil {
		return nil
	}
	entries, _ := p[keyDevices].([]any)
	return entries
}

// withoutDevices deep-copies a system map, dropping each partition's device
// list. Device attributes live on the Device objects instead.
func withoutDevices(system map[string]any) map[string]any {
	cpy := deepCopyMap(system)
	stripDevices(cpy)
	return cpy
}

// stripDevices removes the device list from every partition of system, in
// place.
func stripDevices(system map[string]any) {
	parts, _ := system[keyPartList].([]any)
	for _, p := range parts {
		if pm, ok := p.(map[string]any); ok {
			delete(pm, keyDevices)
		}
	}
}
