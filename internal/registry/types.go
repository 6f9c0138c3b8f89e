package registry

import (
	"time"

	"github.com/nodoproject/nodo-core/internal/protocol"
)

// LinkState is the link manager's liveness classification of a device.
type LinkState string

// Link states, in lifecycle order.
const (
	LinkDiscovering LinkState = "discovering"
	LinkActive      LinkState = "active"
	LinkDegraded    LinkState = "degraded"
	LinkLost        LinkState = "lost"
)

// Device is the identity and last-observed state of a peripheral node.
//
// LastState is the most recent decoded payload and is overwritten on
// every accepted telemetry message; the hub keeps no history. LastSeenAt
// is the timestamp of the last successfully decoded message from the
// device and is zero for restored identities that have not yet spoken.
type Device struct {
	ID           uint32               `json:"id"`
	Name         string               `json:"name,omitempty"`
	Class        protocol.DeviceClass `json:"class"`
	LastState    protocol.State       `json:"last_state,omitempty"`
	LastSeenAt   time.Time            `json:"last_seen_at,omitzero"`
	LinkState    LinkState            `json:"link_state"`
	LastSequence uint32               `json:"last_sequence"`
}

// Identity is the subset of a device record that survives a hub
// restart. State and link state are deliberately not part of it:
// physical link presence cannot be assumed across a power cycle.
type Identity struct {
	ID    uint32
	Class protocol.DeviceClass
	Name  string
}
