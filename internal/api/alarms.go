package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/pillfleet/pillfleet-core/internal/alarm"
)

// parseLimit reads the optional ?limit= query parameter.
func parseLimit(r *http.Request) (int, bool) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return 0, true
	}
	limit, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return limit, true
}

// handleListAlarms returns the most recent alarm events fleet-wide.
func (s *Server) handleListAlarms(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(r)
	if !ok {
		writeBadRequest(w, "limit must be an integer")
		return
	}

	events, err := s.alarms.List(r.Context(), limit)
	if err != nil {
		s.logger.Error("listing alarms", "error", err)
		writeInternalError(w, "listing alarms failed")
		return
	}
	if events == nil {
		events = []alarm.Event{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"events": events,
		"count":  len(events),
	})
}

// handleDeviceAlarms returns the most recent alarm events for one device.
func (s *Server) handleDeviceAlarms(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(r)
	if !ok {
		writeBadRequest(w, "limit must be an integer")
		return
	}

	id := chi.URLParam(r, "id")
	events, err := s.alarms.ListByDevice(r.Context(), id, limit)
	if err != nil {
		s.logger.Error("listing device alarms", "device_id", id, "error", err)
		writeInternalError(w, "listing alarms failed")
		return
	}
	if events == nil {
		events = []alarm.Event{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"events": events,
		"count":  len(events),
	})
}
