package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/nodoproject/nodo-core/internal/dispatch"
	"github.com/nodoproject/nodo-core/internal/protocol"
	"github.com/nodoproject/nodo-core/internal/registry"
)

// CommandRequest is the body of POST /api/v1/devices/{id}/commands.
type CommandRequest struct {
	Channel uint8  `json:"channel"`
	Mode    string `json:"mode"`
	Value   uint8  `json:"value"`
}

// CommandAccepted is the 202 response: the command is in flight, its
// terminal outcome arrives on the WebSocket feed.
type CommandAccepted struct {
	CommandID string `json:"command_id"`
	DeviceID  uint32 `json:"device_id"`
	Status    string `json:"status"`
}

// commandOutcome is the WebSocket payload broadcast when a command
// reaches a terminal state.
type commandOutcome struct {
	CommandID string    `json:"command_id"`
	DeviceID  uint32    `json:"device_id"`
	Status    string    `json:"status"`
	Error     string    `json:"error,omitempty"`
	At        time.Time `json:"at"`
}

// wsChannelCommandResult is the WebSocket channel for command outcomes.
const wsChannelCommandResult = "command.result"

// handleDispatchCommand dispatches a command to an actuator. The
// response is 202 Accepted with the command ID; the outcome is
// broadcast on the command.result WebSocket channel.
func (s *Server) handleDispatchCommand(w http.ResponseWriter, r *http.Request) {
	deviceID, ok := parseDeviceID(w, r)
	if !ok {
		return
	}

	var req CommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	var mode protocol.ActuatorMode
	switch req.Mode {
	case "on_off":
		mode = protocol.ModeOnOff
	case "level":
		mode = protocol.ModeLevel
	default:
		writeBadRequest(w, "mode must be on_off or level")
		return
	}

	hub := s.hub
	cb := func(res dispatch.Result) {
		if hub == nil {
			return
		}
		hub.Broadcast(wsChannelCommandResult, commandOutcome{
			CommandID: res.CommandID.String(),
			DeviceID:  res.DeviceID,
			Status:    outcomeStatus(res.Err),
			Error:     outcomeError(res.Err),
			At:        time.Now().UTC(),
		})
	}

	commandID, err := s.ctrl.Dispatch(r.Context(), deviceID, req.Channel, mode, req.Value, cb)
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, CommandAccepted{
			CommandID: commandID.String(),
			DeviceID:  deviceID,
			Status:    "pending",
		})
	case errors.Is(err, registry.ErrDeviceUnknown):
		writeNotFound(w, "device not found")
	case errors.Is(err, dispatch.ErrNotActuator):
		writeError(w, http.StatusUnprocessableEntity, ErrCodeValidation,
			"device is not an actuator")
	case errors.Is(err, dispatch.ErrLinkNotReady):
		writeError(w, http.StatusConflict, ErrCodeConflict,
			"device link is not ready for commands")
	default:
		writeInternalError(w, "failed to dispatch command")
	}
}

// handleCancelCommand abandons a pending command.
func (s *Server) handleCancelCommand(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "id")
	commandID, err := uuid.Parse(raw)
	if err != nil {
		writeBadRequest(w, "command id must be a UUID")
		return
	}

	cancelled, err := s.ctrl.Cancel(r.Context(), commandID)
	if err != nil {
		writeInternalError(w, "failed to cancel command")
		return
	}
	if !cancelled {
		writeNotFound(w, "command not pending")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"cancelled": commandID.String()})
}

// outcomeStatus maps a dispatch outcome onto the feed status.
func outcomeStatus(err error) string {
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

func outcomeError(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
