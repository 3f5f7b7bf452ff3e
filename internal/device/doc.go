// Package device holds the in-process mirror of one account: Panels and
// the Devices they own.
//
// A Panel is built once from a full system snapshot. After that it is only
// ever mutated in place: device diffs and system diffs from the push
// channel, and snapshot refreshes, merge into the existing attribute maps.
// Panel and Device pointers handed out stay valid and current for the life
// of the process, so callers may hold them and attach change hooks.
//
// # Device kinds
//
// The raw type tag ("t") selects a constructor from a KindTable exactly
// once, when the panel is built. Unrecognised tags get a Generic device.
//
//	door_lock_device   → *Lock        (s: bool → Locked/Unlocked)
//	garage_door_device → *GarageDoor  (s: 0..5)
//	wireless_sensor    → *Sensor      (s: bool → Opened/Closed)
//	camera_device      → *Camera
//	anything else      → *Generic
//
// # Concurrency
//
// Each Panel has one RWMutex shared by all of its devices. Every diff is
// applied under the write lock, so readers see either the state before a
// diff or the state after it, never a partial merge. Different panels do
// not contend. Change hooks run after the lock is released, on the
// goroutine that applied the diff, in application order.
//
// # Merge rules
//
// Incoming values are deep-copied. When both the existing and incoming
// values for a key are JSON objects they are merged key by key,
// recursively. Anything else, lists included, replaces the existing value.
package device
