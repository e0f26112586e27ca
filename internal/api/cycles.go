package api

import (
	"net/http"
)

// handleListCycles returns the watering cycles that are queued or running,
// ordered by Water id.
func (s *Server) handleListCycles(w http.ResponseWriter, _ *http.Request) {
	cycles := s.cycles.Active()
	writeJSON(w, http.StatusOK, map[string]any{"cycles": cycles, "count": len(cycles)})
}
