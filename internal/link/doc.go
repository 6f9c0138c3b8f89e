// Package link tracks link liveness for every peripheral node.
//
// One small state machine runs per device:
//
//	discovering → active → degraded → lost
//
// Any valid message promotes the device to active and re-arms its
// liveness timer. Silence for one liveness window demotes active to
// degraded; a further grace period demotes degraded to lost. Lost is
// terminal until the node sends a new discovery message, which restarts
// the cycle from discovering.
//
// The two-stage demotion (active → degraded → lost instead of a single
// timeout) absorbs transient radio loss without flapping the device's
// visibility in the UI while still bounding staleness.
//
// The manager is pure and synchronous: the hub controller's event loop
// owns it, feeds it messages and tick times, and asks it for the
// earliest pending deadline so a single timer can serve all devices.
// Deadlines live in the per-device records; there is no per-device
// timer and no allocation churn on the message path.
package link
