package api

import (
	"net/http"
)

// handleStats returns the hub controller's counters plus the number of
// connected WebSocket clients.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.ctrl.Stats(r.Context())
	if err != nil {
		writeInternalError(w, "failed to read stats")
		return
	}

	clients := 0
	if s.hub != nil {
		clients = s.hub.ClientCount()
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"hub":        stats,
		"ws_clients": clients,
		"version":    s.version,
	})
}
