package registry

import (
	"fmt"
	"sort"
	"time"

	"github.com/nodoproject/nodo-core/internal/protocol"
)

// Logger defines the logging interface used by the Registry.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}

// record is the internal per-device entry. seqKnown distinguishes a
// restored identity that has not spoken yet (any first sequence is
// accepted) from a device with an established counter.
type record struct {
	dev      Device
	seqKnown bool
}

// Registry is the hub's catalogue of peripheral nodes.
//
// It is not safe for concurrent use: the hub controller's event loop
// owns it exclusively and all access happens on that goroutine.
// Consumers outside the loop receive copies via Snapshot() and Get().
type Registry struct {
	devices map[uint32]*record
	logger  Logger
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		devices: make(map[uint32]*record),
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// Restore recreates a device record from a persisted identity.
//
// The record starts in the discovering state with no last state, last
// sequence unknown and a zero last-seen timestamp: link presence is
// never assumed across a restart. Restoring an ID that already exists
// is a no-op.
func (r *Registry) Restore(id Identity) {
	if _, ok := r.devices[id.ID]; ok {
		return
	}
	r.devices[id.ID] = &record{
		dev: Device{
			ID:        id.ID,
			Name:      id.Name,
			Class:     id.Class,
			LinkState: LinkDiscovering,
		},
	}
	r.logger.Debug("device identity restored", "device_id", id.ID, "class", id.Class.String())
}

// Upsert applies a decoded message to the catalogue.
//
// A discovery message creates the record on first contact. For known
// devices, the message is accepted only if its sequence is strictly
// greater than the stored one; a replayed or reordered sequence is
// rejected as a no-op and the previous record is returned with
// accepted=false. The dedup is scoped to a link session: a discovery
// frame from a lost device resets the stored counter, so a rebooted
// node whose sequence restarted from zero can rejoin. Telemetry
// payloads are validated against the device's declared class; a
// mismatch neither advances the sequence nor touches the stored state.
//
// Link state is owned by the link manager and is never modified here.
func (r *Registry) Upsert(msg protocol.Message, now time.Time) (Device, bool, error) {
	rec, ok := r.devices[msg.DeviceID]
	if !ok {
		if msg.Type != protocol.MsgDiscovery {
			return Device{}, false, fmt.Errorf("%w: id %d", ErrDeviceUnknown, msg.DeviceID)
		}
		disc, err := protocol.DecodeDiscovery(msg.Payload)
		if err != nil {
			return Device{}, false, err
		}
		dev := Device{
			ID:           msg.DeviceID,
			Name:         disc.Name,
			Class:        disc.Class,
			LinkState:    LinkDiscovering,
			LastSeenAt:   now,
			LastSequence: msg.Sequence,
		}
		r.devices[msg.DeviceID] = &record{dev: dev, seqKnown: true}
		r.logger.Info("device discovered",
			"device_id", msg.DeviceID,
			"class", disc.Class.String(),
			"name", disc.Name,
		)
		return dev, true, nil
	}

	// A discovery frame from a lost device opens a new link session:
	// the node has restarted and its sequence counter restarted with
	// it, so the stored counter no longer applies. State decoded in the
	// previous session is stale and dropped with it.
	if msg.Type == protocol.MsgDiscovery && rec.dev.LinkState == LinkLost {
		rec.seqKnown = false
		rec.dev.LastState = nil
	}

	if rec.seqKnown && msg.Sequence <= rec.dev.LastSequence {
		r.logger.Debug("duplicate message rejected",
			"device_id", msg.DeviceID,
			"sequence", msg.Sequence,
			"last_sequence", rec.dev.LastSequence,
		)
		return rec.dev, false, nil
	}

	switch msg.Type {
	case protocol.MsgTelemetry:
		state, err := protocol.DecodeTelemetry(rec.dev.Class, msg.Payload)
		if err != nil {
			return rec.dev, false, err
		}
		rec.dev.LastState = state

	case protocol.MsgDiscovery:
		disc, err := protocol.DecodeDiscovery(msg.Payload)
		if err != nil {
			return rec.dev, false, err
		}
		if disc.Name != "" {
			rec.dev.Name = disc.Name
		}
		if disc.Class != rec.dev.Class {
			// A re-announce with a different class invalidates any
			// stored state decoded under the old schema.
			rec.dev.Class = disc.Class
			rec.dev.LastState = nil
		}

	case protocol.MsgHeartbeat, protocol.MsgCommandAck:
		// Liveness only; no state carried.

	case protocol.MsgCommand:
		// Commands are hub-to-node; an inbound one is a protocol
		// violation but harmless, so it only refreshes liveness.
		r.logger.Warn("inbound command frame ignored", "device_id", msg.DeviceID)
	}

	rec.dev.LastSequence = msg.Sequence
	rec.seqKnown = true
	rec.dev.LastSeenAt = now
	return rec.dev, true, nil
}

// Get returns a copy of the device record.
func (r *Registry) Get(id uint32) (Device, bool) {
	rec, ok := r.devices[id]
	if !ok {
		return Device{}, false
	}
	return rec.dev, true
}

// SetLinkState records the link manager's classification for a device.
// Returns false if the device is unknown.
func (r *Registry) SetLinkState(id uint32, state LinkState) bool {
	rec, ok := r.devices[id]
	if !ok {
		return false
	}
	rec.dev.LinkState = state
	return true
}

// Snapshot returns a consistent point-in-time copy of every device,
// ordered by device ID for determinism.
func (r *Registry) Snapshot() []Device {
	devices := make([]Device, 0, len(r.devices))
	for _, rec := range r.devices {
		devices = append(devices, rec.dev)
	}
	sort.Slice(devices, func(i, j int) bool { return devices[i].ID < devices[j].ID })
	return devices
}

// Remove deletes a device record. It is permitted only when the link
// state is lost; disappearance stays visible in snapshots until an
// operator (or the gateway) removes it explicitly.
func (r *Registry) Remove(id uint32) error {
	rec, ok := r.devices[id]
	if !ok {
		return fmt.Errorf("%w: id %d", ErrDeviceUnknown, id)
	}
	if rec.dev.LinkState != LinkLost {
		return fmt.Errorf("%w: id %d is %s", ErrNotLost, id, rec.dev.LinkState)
	}
	delete(r.devices, id)
	r.logger.Info("device removed", "device_id", id)
	return nil
}

// Count returns the number of catalogued devices.
func (r *Registry) Count() int {
	return len(r.devices)
}
