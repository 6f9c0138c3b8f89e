package radio

import "errors"

// Sentinel errors for radio bridge operations.
var (
	// ErrQueueFull indicates the downlink queue is at capacity.
	// The caller should retry later; the dispatcher's retry cycle
	// handles this for command frames.
	ErrQueueFull = errors.New("radio: downlink queue full")

	// ErrStopped indicates the bridge has been stopped.
	ErrStopped = errors.New("radio: bridge stopped")
)
