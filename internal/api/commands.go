package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/pillfleet/pillfleet-core/internal/command"
	"github.com/pillfleet/pillfleet-core/internal/device"
)

// enqueueCommandRequest is the body for queueing a command.
type enqueueCommandRequest struct {
	Type    string `json:"type"`
	Payload string `json:"payload"`
}

// handleEnqueueCommand appends a command to a device's queue. The
// device collects it on its next heartbeat; if MQTT is up, a push
// notification nudges it sooner.
func (s *Server) handleEnqueueCommand(w http.ResponseWriter, r *http.Request) {
	var req enqueueCommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}

	id := chi.URLParam(r, "id")

	// The queue doesn't know about devices; reject unknown IDs here so
	// commands can't pile up for a device that was never registered.
	if _, err := s.registry.GetDevice(r.Context(), id); err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		s.logger.Error("resolving device for command", "device_id", id, "error", err)
		writeInternalError(w, "enqueueing command failed")
		return
	}

	cmd, err := s.commands.Enqueue(r.Context(), id, req.Type, req.Payload)
	if err != nil {
		if errors.Is(err, command.ErrInvalidType) {
			writeValidationError(w, err.Error())
			return
		}
		s.logger.Error("enqueueing command", "device_id", id, "error", err)
		writeInternalError(w, "enqueueing command failed")
		return
	}

	writeJSON(w, http.StatusCreated, cmd)
}

// handleCommandHistory lists a device's recent commands, newest first,
// including delivered ones (delivered_at marks delivery).
func (s *Server) handleCommandHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			writeBadRequest(w, "limit must be an integer")
			return
		}
		limit = parsed
	}

	commands, err := s.commands.History(r.Context(), id, limit)
	if err != nil {
		s.logger.Error("listing command history", "device_id", id, "error", err)
		writeInternalError(w, "listing command history failed")
		return
	}
	if commands == nil {
		commands = []command.Command{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"commands": commands,
		"count":    len(commands),
	})
}
