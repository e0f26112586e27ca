package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/joakim000/grow/internal/device"
	"github.com/joakim000/grow/internal/event"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// handleGetHistory returns the recorded alert, lamp, tank and cycle events
// of one device, newest first.
func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	ref, ok := parseRef(w, r)
	if !ok {
		return
	}

	limit, err := parseHistoryLimit(r.URL.Query().Get("limit"))
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	if _, err := s.registry.Get(ref.Kind, ref.ID); err != nil {
		if errors.Is(err, device.ErrNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		writeInternalError(w, "failed to get device")
		return
	}

	if s.history == nil {
		writeUnavailable(w, "event history unavailable")
		return
	}

	events, err := s.history.Recent(r.Context(), ref, limit)
	if err != nil {
		s.logger.Error("failed to load event history", "device", ref.String(), "error", err)
		writeInternalError(w, "failed to load event history")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"device": ref,
		"events": events,
		"count":  len(events),
	})
}

// handleListEvents returns the latest events held in memory, oldest first.
// Repeated ?type= parameters filter by event type; ?limit= keeps the newest n.
func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		writeUnavailable(w, "event feed unavailable")
		return
	}

	limit, err := parseHistoryLimit(r.URL.Query().Get("limit"))
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	var types []event.Type
	for _, t := range r.URL.Query()["type"] {
		types = append(types, event.Type(t))
	}

	events := s.events.Events(types...)
	if len(events) > limit {
		events = events[len(events)-limit:]
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events, "count": len(events)})
}

// parseHistoryLimit validates the optional limit query parameter.
func parseHistoryLimit(raw string) (int, error) {
	if raw == "" {
		return defaultHistoryLimit, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 0, fmt.Errorf("limit must be a positive integer")
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	return limit, nil
}
