package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/pillfleet/pillfleet-core/internal/alarm"
	"github.com/pillfleet/pillfleet-core/internal/device"
	"github.com/pillfleet/pillfleet-core/internal/schedule"
)

// deviceView is the admin-facing shape of a device: the stored record
// plus the derived online flag and the masked key.
type deviceView struct {
	device.Device
	Online    bool   `json:"online"`
	MaskedKey string `json:"masked_key"`
}

func (s *Server) deviceView(d *device.Device) deviceView {
	return deviceView{
		Device:    *d,
		Online:    s.registry.IsOnline(d),
		MaskedKey: d.MaskedKey(),
	}
}

// registerDeviceRequest is the body for registering a new dispenser.
type registerDeviceRequest struct {
	MAC  string `json:"mac"`
	Name string `json:"name"`
}

// handleRegisterDevice creates a device record and issues its API key.
// The raw key appears in this response and never again.
func (s *Server) handleRegisterDevice(w http.ResponseWriter, r *http.Request) {
	var req registerDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}

	d, rawKey, err := s.registry.Register(r.Context(), req.MAC, req.Name)
	if err != nil {
		switch {
		case errors.Is(err, device.ErrDeviceExists):
			writeConflict(w, "a device with this MAC is already registered")
		case errors.Is(err, device.ErrInvalidMAC), errors.Is(err, device.ErrInvalidName):
			writeValidationError(w, err.Error())
		default:
			s.logger.Error("registering device", "error", err)
			writeInternalError(w, "registering device failed")
		}
		return
	}

	if _, err := s.alarms.Record(r.Context(), d.ID, alarm.TypeDeviceRegistered,
		alarm.SeverityInfo, "device registered: "+d.Name); err != nil {
		s.logger.Warn("recording registration alarm", "device_id", d.ID, "error", err)
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"device":  s.deviceView(d),
		"api_key": rawKey,
	})
}

// handleListDevices returns all devices with their derived online state.
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.registry.ListDevices(r.Context())
	if err != nil {
		s.logger.Error("listing devices", "error", err)
		writeInternalError(w, "listing devices failed")
		return
	}

	views := make([]deviceView, 0, len(devices))
	for i := range devices {
		views = append(views, s.deviceView(&devices[i]))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"devices": views,
		"count":   len(views),
	})
}

// handleFleetStats returns fleet-wide device counts.
func (s *Server) handleFleetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.registry.FleetStats(r.Context())
	if err != nil {
		s.logger.Error("computing fleet stats", "error", err)
		writeInternalError(w, "computing fleet stats failed")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// handleGetDevice returns one device.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	d, err := s.registry.GetDevice(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		s.logger.Error("getting device", "error", err)
		writeInternalError(w, "getting device failed")
		return
	}
	writeJSON(w, http.StatusOK, s.deviceView(d))
}

// renameDeviceRequest is the body for renaming a device.
type renameDeviceRequest struct {
	Name string `json:"name"`
}

// handleRenameDevice updates a device's display name. The MAC is
// immutable; name is the only mutable identity field.
func (s *Server) handleRenameDevice(w http.ResponseWriter, r *http.Request) {
	var req renameDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}

	id := chi.URLParam(r, "id")
	if err := s.registry.Rename(r.Context(), id, req.Name); err != nil {
		switch {
		case errors.Is(err, device.ErrDeviceNotFound):
			writeNotFound(w, "device not found")
		case errors.Is(err, device.ErrInvalidName):
			writeValidationError(w, err.Error())
		default:
			s.logger.Error("renaming device", "device_id", id, "error", err)
			writeInternalError(w, "renaming device failed")
		}
		return
	}

	d, err := s.registry.GetDevice(r.Context(), id)
	if err != nil {
		writeInternalError(w, "reloading device failed")
		return
	}
	writeJSON(w, http.StatusOK, s.deviceView(d))
}

// setDeviceStateRequest is the body for an administrative state change.
type setDeviceStateRequest struct {
	State string `json:"state"`
}

// handleSetDeviceState moves a device between administrative states.
func (s *Server) handleSetDeviceState(w http.ResponseWriter, r *http.Request) {
	var req setDeviceStateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}

	id := chi.URLParam(r, "id")
	if err := s.registry.Transition(r.Context(), id, device.AdminState(req.State)); err != nil {
		switch {
		case errors.Is(err, device.ErrDeviceNotFound):
			writeNotFound(w, "device not found")
		case errors.Is(err, device.ErrInvalidState):
			writeValidationError(w, err.Error())
		default:
			s.logger.Error("transitioning device", "device_id", id, "error", err)
			writeInternalError(w, "state change failed")
		}
		return
	}

	d, err := s.registry.GetDevice(r.Context(), id)
	if err != nil {
		writeInternalError(w, "reloading device failed")
		return
	}
	writeJSON(w, http.StatusOK, s.deviceView(d))
}

// setDeviceOTARequest is the body for changing a device's OTA policy.
type setDeviceOTARequest struct {
	Enabled       bool    `json:"enabled"`
	TargetVersion *string `json:"target_version"`
}

// handleSetDeviceOTA sets a device's OTA enabled flag and pinned
// target version. A null target clears the pin.
func (s *Server) handleSetDeviceOTA(w http.ResponseWriter, r *http.Request) {
	var req setDeviceOTARequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}

	id := chi.URLParam(r, "id")
	if err := s.registry.SetOTA(r.Context(), id, req.Enabled, req.TargetVersion); err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		s.logger.Error("setting ota policy", "device_id", id, "error", err)
		writeInternalError(w, "setting ota policy failed")
		return
	}

	d, err := s.registry.GetDevice(r.Context(), id)
	if err != nil {
		writeInternalError(w, "reloading device failed")
		return
	}
	writeJSON(w, http.StatusOK, s.deviceView(d))
}

// handleDeleteDevice removes a device and its queued commands and
// schedule. The device's next contact resolves as unauthorized.
func (s *Server) handleDeleteDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.registry.DeleteDevice(r.Context(), id); err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		s.logger.Error("deleting device", "device_id", id, "error", err)
		writeInternalError(w, "deleting device failed")
		return
	}

	// Rows cascade in SQLite; the queue purge also clears stripe-local
	// bookkeeping, and the schedule delete clears the retained topic.
	if err := s.commands.Purge(r.Context(), id); err != nil {
		s.logger.Warn("purging commands for deleted device", "device_id", id, "error", err)
	}
	if err := s.schedules.Delete(r.Context(), id); err != nil && !errors.Is(err, schedule.ErrScheduleNotFound) {
		s.logger.Warn("deleting schedule for deleted device", "device_id", id, "error", err)
	}

	w.WriteHeader(http.StatusNoContent)
}
