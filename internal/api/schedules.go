package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/pillfleet/pillfleet-core/internal/device"
	"github.com/pillfleet/pillfleet-core/internal/schedule"
)

// handleGetSchedule returns a device's stored schedule.
func (s *Server) handleGetSchedule(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	set, err := s.schedules.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, schedule.ErrScheduleNotFound) {
			writeNotFound(w, "no schedule for device")
			return
		}
		s.logger.Error("getting schedule", "device_id", id, "error", err)
		writeInternalError(w, "getting schedule failed")
		return
	}

	writeJSON(w, http.StatusOK, set)
}

// putScheduleRequest is the whole-set schedule replacement body.
type putScheduleRequest struct {
	Entries []schedule.Entry `json:"entries"`
}

// handlePutSchedule replaces a device's schedule wholesale. The write
// commits to SQLite synchronously; the retained MQTT mirror follows in
// the background and can never fail this request.
func (s *Server) handlePutSchedule(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if _, err := s.registry.GetDevice(r.Context(), id); err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		s.logger.Error("resolving device for schedule", "device_id", id, "error", err)
		writeInternalError(w, "storing schedule failed")
		return
	}

	var req putScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}

	set, err := s.schedules.Put(r.Context(), id, req.Entries)
	if err != nil {
		if errors.Is(err, schedule.ErrInvalidEntry) {
			writeValidationError(w, err.Error())
			return
		}
		s.logger.Error("storing schedule", "device_id", id, "error", err)
		writeInternalError(w, "storing schedule failed")
		return
	}

	writeJSON(w, http.StatusOK, set)
}

// handleDeleteSchedule removes a device's schedule and clears the
// retained topic.
func (s *Server) handleDeleteSchedule(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.schedules.Delete(r.Context(), id); err != nil {
		if errors.Is(err, schedule.ErrScheduleNotFound) {
			writeNotFound(w, "no schedule for device")
			return
		}
		s.logger.Error("deleting schedule", "device_id", id, "error", err)
		writeInternalError(w, "deleting schedule failed")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
