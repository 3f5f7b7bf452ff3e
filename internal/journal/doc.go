// Package journal records every change applied to the mirror in SQLite.
//
// The journal is history only: it answers "what happened to this device"
// for the local API and survives restarts, but the device tree is always
// rebuilt from a fresh snapshot, never from the journal.
package journal
