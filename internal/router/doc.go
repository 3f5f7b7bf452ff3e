// Package router classifies inbound push payloads and applies them to the
// panel they address.
//
// Envelope: {"panid": <id>, "t": <type>, "da": {...}}. If "da" holds a
// device list ("d") the payload is a device diff and nothing else; any other
// keys next to the list are ignored. Otherwise "da" is a system diff.
// Payloads for a panel this process does not track are dropped quietly.
// Device entries naming a device the panel does not own are reported.
package router
