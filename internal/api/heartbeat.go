package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/pillfleet/pillfleet-core/internal/alarm"
	"github.com/pillfleet/pillfleet-core/internal/command"
	"github.com/pillfleet/pillfleet-core/internal/device"
	"github.com/pillfleet/pillfleet-core/internal/ota"
)

// heartbeatRequest is the body a dispenser posts on every beat.
type heartbeatRequest struct {
	IPAddress       string `json:"ip_address"`
	NetworkName     string `json:"network_name"`
	FirmwareVersion string `json:"firmware_version"`
	FreeHeap        int64  `json:"free_heap"`
	UptimeSeconds   int64  `json:"uptime_seconds"`
}

// heartbeatResponse carries everything a device learns per beat.
type heartbeatResponse struct {
	Commands []command.Command `json:"commands"`
	OTA      ota.Decision      `json:"ota"`
}

// handleHeartbeat is the device check-in endpoint.
//
// The step order is a contract, not an implementation detail:
//
//  1. authenticate the key; unknown keys get 401 with NO side effects
//  2. blocked devices get 401 and last_seen stays untouched, so a
//     blocked device goes administratively dark
//  3. apply reported facts and advance last_seen; a pending device is
//     activated by this first verified beat
//  4. suspended devices get a bare ack: contact is recorded but no
//     commands and no OTA flow to them
//  5. drain the command queue
//  6. evaluate the OTA decision
//
// A drain or decision failure degrades to "no commands, no OTA" rather
// than failing the beat; the device must not retry-storm over a
// transient engine fault.
func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	d, err := s.registry.Authenticate(r.Context(), r.Header.Get(deviceKeyHeader))
	if err != nil {
		if errors.Is(err, device.ErrUnauthorized) {
			writeUnauthorized(w, "invalid device key")
			return
		}
		s.logger.Error("heartbeat authentication failed", "error", err)
		writeInternalError(w, "authentication failed")
		return
	}

	if d.AdminState == device.StateBlocked {
		writeUnauthorized(w, "device blocked")
		return
	}

	var req heartbeatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid heartbeat body")
		return
	}

	facts := device.HeartbeatFacts{
		IPAddress:       req.IPAddress,
		NetworkName:     req.NetworkName,
		FirmwareVersion: req.FirmwareVersion,
		FreeHeap:        req.FreeHeap,
		UptimeSeconds:   req.UptimeSeconds,
	}
	if err := s.registry.ReportHeartbeat(r.Context(), d.ID, facts); err != nil {
		s.logger.Error("recording heartbeat", "device_id", d.ID, "error", err)
		writeInternalError(w, "recording heartbeat failed")
		return
	}

	if s.telemetry != nil {
		s.telemetry.WriteHeartbeat(d.ID, req.FreeHeap, req.UptimeSeconds)
	}

	resp := heartbeatResponse{
		Commands: []command.Command{},
		OTA:      ota.Decision{Outcome: ota.OutcomeNone},
	}

	// Suspended devices keep reporting liveness but receive nothing.
	if d.AdminState == device.StateSuspended {
		writeJSON(w, http.StatusOK, resp)
		return
	}

	commands, err := s.commands.Drain(r.Context(), d.ID)
	if err != nil {
		s.logger.Error("draining commands", "device_id", d.ID, "error", err)
		writeJSON(w, http.StatusOK, resp)
		return
	}
	if commands != nil {
		resp.Commands = commands
	}

	// Decide against the post-heartbeat view so a freshly reported
	// firmware_version counts.
	current, err := s.registry.GetDevice(r.Context(), d.ID)
	if err != nil {
		s.logger.Error("reloading device for ota decision", "device_id", d.ID, "error", err)
		writeJSON(w, http.StatusOK, resp)
		return
	}
	resp.OTA = s.ota.Decide(r.Context(), current)

	writeJSON(w, http.StatusOK, resp)
}

// deviceEventRequest is a device-reported alarm event.
type deviceEventRequest struct {
	Type     string `json:"type"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
}

// handleDeviceEvent records a device-reported event (dose taken or
// missed, compartment jam, low battery) in the alarm log.
func (s *Server) handleDeviceEvent(w http.ResponseWriter, r *http.Request) {
	d := deviceFromContext(r.Context())

	var req deviceEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid event body")
		return
	}

	event, err := s.alarms.Record(r.Context(), d.ID, req.Type, alarm.Severity(req.Severity), req.Message)
	if err != nil {
		switch {
		case errors.Is(err, alarm.ErrTypeRequired), errors.Is(err, alarm.ErrInvalidSeverity):
			writeValidationError(w, err.Error())
		default:
			s.logger.Error("recording device event", "device_id", d.ID, "error", err)
			writeInternalError(w, "recording event failed")
		}
		return
	}

	writeJSON(w, http.StatusCreated, event)
}
