package registry

import "errors"

// Domain errors for the registry package.
// Check with errors.Is() in calling code.
var (
	// ErrDeviceUnknown is returned when a device ID has never been
	// registered (no discovery message and no restored identity).
	ErrDeviceUnknown = errors.New("registry: device unknown")

	// ErrNotLost is returned when removing a device whose link is not
	// in the lost state. Removal is explicit and only for lost devices.
	ErrNotLost = errors.New("registry: device link is not lost")
)
