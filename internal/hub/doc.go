// Package hub implements the Nodo Core controller: a single-goroutine
// event loop that owns the device registry, the link manager, the
// command dispatcher and the gateway sync buffer.
//
// # Concurrency Model
//
// All protocol state lives on one loop goroutine. Inputs (inbound
// frames, timer expiries, dispatch/cancel requests, snapshot and drain
// requests) arrive as events on a single channel and are handled as
// pure, synchronous state transitions. The loop never blocks on I/O:
// frame transmission goes through a non-blocking Transport, persistence
// through a dedicated persister goroutine, telemetry export through the
// sink's own batching.
//
// Messages from a single device are processed in arrival order;
// cross-device ordering is unspecified and nothing may rely on it.
//
// External collaborators (the local API, the gateway link) interact
// only through copies: Snapshot, DrainEvents and Stats hand out
// detached values, never references into loop-owned state. This removes
// the need for locks at the cost of copy-on-read.
//
// All deadline work (liveness windows, grace periods, command retries)
// is served by a single timer armed to the earliest deadline across
// every device and pending command; there is no per-device OS timer.
//
// # Failure Policy
//
// Protocol-level failures (malformed frames, unknown devices, payload
// mismatches, command timeouts) are logged, counted and dropped; none
// of them can take the loop down. One misbehaving peripheral node never
// affects the rest of the hub.
package hub
