// Package registry provides the in-memory device catalogue for Nodo Core.
//
// The registry holds the identity and last-observed state of every
// peripheral node the hub has heard from. It is a pure, synchronous
// data structure: the hub controller's event loop owns it exclusively,
// so no locking is needed. External consumers only ever see copies
// returned by Snapshot() and Get().
//
// # Key Types
//
//   - Device: identity plus last-known state of a peripheral node
//   - LinkState: the link manager's view of the node (discovering,
//     active, degraded, lost)
//
// # Rules
//
//   - A record is created only by a node's first valid discovery
//     message, or by identity restore from the persistence collaborator
//     on boot (in which case it starts over in the discovering state).
//   - Sequence numbers accepted for a device are strictly increasing;
//     a message whose sequence is not greater than the stored one is a
//     retransmission and is rejected as a no-op.
//   - No state history is kept: LastState is overwritten in place.
//   - Remove is explicit and permitted only for lost devices.
package registry
