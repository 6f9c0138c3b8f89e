package hub

import (
	"errors"

	"github.com/google/uuid"
	"github.com/nodoproject/nodo-core/internal/dispatch"
	"github.com/nodoproject/nodo-core/internal/protocol"
	"github.com/nodoproject/nodo-core/internal/registry"
)

// JSON payloads carried inside gateway sync events. The gateway treats
// them as opaque; these shapes are the contract with the cloud side.

type telemetryEventPayload struct {
	Class protocol.DeviceClass `json:"class"`
	State protocol.State       `json:"state"`
}

type discoveryEventPayload struct {
	Name  string               `json:"name"`
	Class protocol.DeviceClass `json:"class"`
}

type linkStatePayload struct {
	From registry.LinkState `json:"from"`
	To   registry.LinkState `json:"to"`
}

type commandResultPayload struct {
	CommandID uuid.UUID `json:"command_id"`
	Status    string    `json:"status"`
}

// resultStatus maps a dispatcher outcome onto the sync event vocabulary.
func resultStatus(err error) string {
	switch {
	case err == nil:
		return "applied"
	case errors.Is(err, dispatch.ErrCommandRejected):
		return "rejected"
	case errors.Is(err, dispatch.ErrCommandTimeout):
		return "timeout"
	case errors.Is(err, dispatch.ErrLinkLost):
		return "link_lost"
	default:
		return "failed"
	}
}
