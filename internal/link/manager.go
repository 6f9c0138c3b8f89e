package link

import (
	"time"

	"github.com/nodoproject/nodo-core/internal/protocol"
	"github.com/nodoproject/nodo-core/internal/registry"
)

// Config holds the liveness timing parameters.
type Config struct {
	// LivenessWindow is the silence after which an active device is
	// considered degraded (one missed heartbeat interval).
	LivenessWindow time.Duration

	// GracePeriod is the additional silence after which a degraded
	// device is considered lost.
	GracePeriod time.Duration
}

// Transition reports a link state change for one device.
type Transition struct {
	DeviceID uint32
	From     registry.LinkState
	To       registry.LinkState
	At       time.Time
}

// node is the per-device liveness record. Records are reused across the
// device's lifetime; only Forget releases one.
type node struct {
	state    registry.LinkState
	deadline time.Time // zero when no expiry is pending
}

// Manager runs the per-device link state machines.
//
// It is not safe for concurrent use: the hub controller's event loop
// owns it exclusively.
type Manager struct {
	cfg   Config
	nodes map[uint32]*node
}

// NewManager creates a link manager with the given timing parameters.
func NewManager(cfg Config) *Manager {
	return &Manager{
		cfg:   cfg,
		nodes: make(map[uint32]*node),
	}
}

// Track registers a device in the discovering state, used for restored
// identities on boot. A discovering device has no deadline: it stays
// invisible to the timer until it speaks. Tracking a known device is a
// no-op.
func (m *Manager) Track(deviceID uint32) {
	if _, ok := m.nodes[deviceID]; ok {
		return
	}
	m.nodes[deviceID] = &node{state: registry.LinkDiscovering}
}

// Observe feeds a valid, accepted message from a device into its state
// machine and returns the resulting transition, if any.
//
// Rules:
//   - discovering, active or degraded: any message → active, liveness
//     timer re-armed.
//   - lost: only a discovery message restarts the cycle. It moves the
//     device to discovering; the next telemetry or heartbeat then
//     promotes it to active. Other messages from a lost device are
//     ignored (the record stays lost).
func (m *Manager) Observe(deviceID uint32, msgType protocol.MsgType, now time.Time) (Transition, bool) {
	n, ok := m.nodes[deviceID]
	if !ok {
		n = &node{state: registry.LinkDiscovering}
		m.nodes[deviceID] = n
	}

	from := n.state
	switch n.state {
	case registry.LinkLost:
		if msgType != protocol.MsgDiscovery {
			return Transition{}, false
		}
		n.state = registry.LinkDiscovering
		n.deadline = time.Time{}

	case registry.LinkDiscovering, registry.LinkActive, registry.LinkDegraded:
		n.state = registry.LinkActive
		n.deadline = now.Add(m.cfg.LivenessWindow)
	}

	if n.state == from {
		// Still active: the deadline moved but the state did not.
		return Transition{}, false
	}
	return Transition{DeviceID: deviceID, From: from, To: n.state, At: now}, true
}

// Expire applies every deadline that is due at or before now and
// returns the resulting transitions in device-scan order.
//
// active → degraded arms the grace period; degraded → lost clears the
// deadline (lost is terminal until rediscovery).
func (m *Manager) Expire(now time.Time) []Transition {
	var out []Transition
	for id, n := range m.nodes {
		if n.deadline.IsZero() || n.deadline.After(now) {
			continue
		}
		from := n.state
		switch n.state {
		case registry.LinkActive:
			n.state = registry.LinkDegraded
			n.deadline = n.deadline.Add(m.cfg.GracePeriod)
			// The grace deadline may itself already be due (a long
			// stall); it is picked up on the next call.
		case registry.LinkDegraded:
			n.state = registry.LinkLost
			n.deadline = time.Time{}
		default:
			n.deadline = time.Time{}
			continue
		}
		out = append(out, Transition{DeviceID: id, From: from, To: n.state, At: now})
	}
	return out
}

// NextDeadline returns the earliest pending deadline across all
// devices, or false when no timer is needed.
func (m *Manager) NextDeadline() (time.Time, bool) {
	var next time.Time
	for _, n := range m.nodes {
		if n.deadline.IsZero() {
			continue
		}
		if next.IsZero() || n.deadline.Before(next) {
			next = n.deadline
		}
	}
	return next, !next.IsZero()
}

// State returns the current link state for a device, defaulting to
// discovering for unknown IDs.
func (m *Manager) State(deviceID uint32) registry.LinkState {
	if n, ok := m.nodes[deviceID]; ok {
		return n.state
	}
	return registry.LinkDiscovering
}

// Forget releases the record for a removed device.
func (m *Manager) Forget(deviceID uint32) {
	delete(m.nodes, deviceID)
}
