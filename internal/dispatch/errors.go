package dispatch

import "errors"

// Command failure modes surfaced to dispatch callers. None of them is
// fatal to the hub; check with errors.Is().
var (
	// ErrLinkNotReady is returned by Dispatch when the target device's
	// link is not active. Commands are never queued for silent devices.
	ErrLinkNotReady = errors.New("dispatch: link not ready")

	// ErrLinkLost fails every pending command of a device whose link
	// transitioned to lost, bypassing the remaining retries.
	ErrLinkLost = errors.New("dispatch: link lost")

	// ErrCommandTimeout fails a command whose retry budget is
	// exhausted without an acknowledgement.
	ErrCommandTimeout = errors.New("dispatch: command timed out")

	// ErrCommandRejected reports a command the node acknowledged with a
	// non-zero status code.
	ErrCommandRejected = errors.New("dispatch: command rejected by node")

	// ErrNotActuator is returned when dispatching a command to a
	// sensor-class device, whose type has no command schema.
	ErrNotActuator = errors.New("dispatch: device is not an actuator")
)
