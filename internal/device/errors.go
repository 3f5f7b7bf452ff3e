package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, device.ErrDeviceNotFound) {
//	    // diff addressed a device this panel does not own
//	}
var (
	// ErrDeviceNotFound is returned when a device id is not in the panel.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrPanelNotFound is returned when a panel id is not tracked.
	ErrPanelNotFound = errors.New("device: panel not found")

	// ErrMissingID is returned for a device entry with no "_id".
	ErrMissingID = errors.New("device: entry has no id")

	// ErrInvalidSnapshot is returned when a snapshot has no panel id.
	ErrInvalidSnapshot = errors.New("device: invalid snapshot")

	// ErrNoCommander is returned by commands on a panel built without one.
	ErrNoCommander = errors.New("device: no command client configured")

	// ErrNotSupported is returned by camera calls the device does not offer.
	ErrNotSupported = errors.New("device: not supported")
)
