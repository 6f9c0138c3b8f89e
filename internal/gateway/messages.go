package gateway

import (
	"fmt"
	"time"

	"github.com/nodoproject/nodo-core/internal/protocol"
	"github.com/nodoproject/nodo-core/internal/registry"
)

// CommandRequest is a gateway-originated command, received as JSON on
// nodo/gateway/command.
type CommandRequest struct {
	// RequestID correlates the result with the request. Assigned by
	// the gateway; opaque to the hub.
	RequestID string `json:"request_id"`

	DeviceID uint32 `json:"device_id"`
	Channel  uint8  `json:"channel"`
	Mode     string `json:"mode"`
	Value    uint8  `json:"value"`
}

// CommandResult is the terminal outcome of a gateway command, published
// as JSON on nodo/gateway/command/result.
type CommandResult struct {
	RequestID string    `json:"request_id"`
	CommandID string    `json:"command_id,omitempty"`
	DeviceID  uint32    `json:"device_id"`
	Status    string    `json:"status"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Command result statuses.
const (
	StatusApplied  = "applied"
	StatusRejected = "rejected"
	StatusTimeout  = "timeout"
	StatusLinkLost = "link_lost"
	StatusFailed   = "failed"
)

// SnapshotMessage is the full device snapshot, published as JSON on
// nodo/gateway/snapshot/state.
type SnapshotMessage struct {
	Timestamp time.Time         `json:"timestamp"`
	Devices   []registry.Device `json:"devices"`
}

// parseMode maps the wire mode name onto the protocol constant.
func parseMode(s string) (protocol.ActuatorMode, error) {
	switch s {
	case "on_off":
		return protocol.ModeOnOff, nil
	case "level":
		return protocol.ModeLevel, nil
	default:
		return 0, fmt.Errorf("gateway: unknown actuator mode %q", s)
	}
}
