package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nodoproject/nodo-core/internal/registry"
)

// handleListDevices returns the full device snapshot.
//
// Query parameters:
//   - link_state: filter by link state (discovering, active, degraded, lost)
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.ctrl.Snapshot(r.Context())
	if err != nil {
		writeInternalError(w, "failed to list devices")
		return
	}

	if ls := r.URL.Query().Get("link_state"); ls != "" {
		filtered := devices[:0]
		for _, d := range devices {
			if string(d.LinkState) == ls {
				filtered = append(filtered, d)
			}
		}
		devices = filtered
	}

	writeJSON(w, http.StatusOK, map[string]any{"devices": devices, "count": len(devices)})
}

// handleGetDevice returns a single device by ID.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	id, ok := parseDeviceID(w, r)
	if !ok {
		return
	}

	dev, found, err := s.ctrl.Device(r.Context(), id)
	if err != nil {
		writeInternalError(w, "failed to get device")
		return
	}
	if !found {
		writeNotFound(w, "device not found")
		return
	}

	writeJSON(w, http.StatusOK, dev)
}

// handleDeleteDevice removes a device record. Removal is only allowed
// once the device's link is lost; anything else is a conflict.
func (s *Server) handleDeleteDevice(w http.ResponseWriter, r *http.Request) {
	id, ok := parseDeviceID(w, r)
	if !ok {
		return
	}

	err := s.ctrl.Remove(r.Context(), id)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]any{"removed": id})
	case errors.Is(err, registry.ErrDeviceUnknown):
		writeNotFound(w, "device not found")
	case errors.Is(err, registry.ErrNotLost):
		writeError(w, http.StatusConflict, ErrCodeConflict,
			"device link is not lost; only lost devices can be removed")
	default:
		writeInternalError(w, "failed to remove device")
	}
}

// parseDeviceID extracts and validates the {id} route parameter.
func parseDeviceID(w http.ResponseWriter, r *http.Request) (uint32, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		writeBadRequest(w, "device id must be an unsigned 32-bit integer")
		return 0, false
	}
	return uint32(id), true
}
