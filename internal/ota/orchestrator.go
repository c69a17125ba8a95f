package ota

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/pillfleet/pillfleet-core/internal/alarm"
	"github.com/pillfleet/pillfleet-core/internal/device"
	"github.com/pillfleet/pillfleet-core/internal/firmware"
)

// Logger defines the logging interface used by the orchestrator.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// ReleaseLookup resolves a firmware version to its release metadata.
// Satisfied by *firmware.Registry.
type ReleaseLookup interface {
	Lookup(ctx context.Context, version string) (*firmware.Release, error)
}

// AlarmRecorder appends engine alarm events. Satisfied by *alarm.Log.
type AlarmRecorder interface {
	Record(ctx context.Context, deviceID, eventType string, severity alarm.Severity, message string) (*alarm.Event, error)
}

// downloadPathPrefix is where devices fetch firmware images.
const downloadPathPrefix = "/api/v1/device/firmware/"

// Outcome is the kind of OTA decision returned to a device.
type Outcome string

// Decision outcomes.
const (
	// OutcomeNone means no OTA action: device not active, OTA
	// disabled, no target pinned, or the target is missing.
	OutcomeNone Outcome = "none"

	// OutcomeUpToDate means the device already runs the target version.
	OutcomeUpToDate Outcome = "up_to_date"

	// OutcomeUpgrade instructs the device to download and flash.
	OutcomeUpgrade Outcome = "upgrade"
)

// Decision is the OTA verdict for one heartbeat. Version, ContentHash,
// SizeBytes, and URL are populated only for OutcomeUpgrade; the device
// verifies the hash before flashing.
type Decision struct {
	Outcome     Outcome `json:"outcome"`
	Version     string  `json:"version,omitempty"`
	ContentHash string  `json:"content_hash,omitempty"`
	SizeBytes   int64   `json:"size_bytes,omitempty"`
	URL         string  `json:"url,omitempty"`
}

// Orchestrator decides, per heartbeat, whether a device should
// upgrade. The decision is a pure function of the device record and
// the firmware registry; the orchestrator holds no per-device state
// except a rate limiter so a missing target alarms once per target
// change rather than every 30 seconds.
type Orchestrator struct {
	releases ReleaseLookup
	alarms   AlarmRecorder
	logger   Logger

	mu      sync.Mutex
	alarmed map[string]string // deviceID -> target version already alarmed
}

// NewOrchestrator creates an OTA orchestrator.
// alarms may be nil; missing targets are then only logged.
func NewOrchestrator(releases ReleaseLookup, alarms AlarmRecorder) *Orchestrator {
	return &Orchestrator{
		releases: releases,
		alarms:   alarms,
		logger:   noopLogger{},
		alarmed:  make(map[string]string),
	}
}

// SetLogger sets the logger for the orchestrator.
func (o *Orchestrator) SetLogger(logger Logger) {
	o.logger = logger
}

// Decide evaluates the OTA decision table for one device.
//
// The table is ordered; the first matching row wins:
//  1. admin state not active        -> none
//  2. OTA disabled                  -> none
//  3. no target version pinned      -> none
//  4. target release missing        -> none (+ alarm, rate-limited)
//  5. running version == target     -> up_to_date
//  6. otherwise                     -> upgrade
//
// Decide never mutates the device and never fails: a registry error
// resolves to the same "target missing" row as a deleted release, so a
// degraded lookup can only withhold an upgrade, never invent one.
func (o *Orchestrator) Decide(ctx context.Context, dev *device.Device) Decision {
	if dev.AdminState != device.StateActive {
		return Decision{Outcome: OutcomeNone}
	}
	if !dev.OTAEnabled {
		return Decision{Outcome: OutcomeNone}
	}
	if dev.OTATargetVersion == nil || *dev.OTATargetVersion == "" {
		return Decision{Outcome: OutcomeNone}
	}

	target := *dev.OTATargetVersion

	release, err := o.releases.Lookup(ctx, target)
	if err != nil || release.BlobDeleted {
		o.alarmMissingTarget(ctx, dev.ID, target, err)
		return Decision{Outcome: OutcomeNone}
	}

	// Target exists again; re-arm the alarm for this device.
	o.mu.Lock()
	delete(o.alarmed, dev.ID)
	o.mu.Unlock()

	if dev.FirmwareVersion == target {
		return Decision{Outcome: OutcomeUpToDate}
	}

	return Decision{
		Outcome:     OutcomeUpgrade,
		Version:     release.Version,
		ContentHash: release.ContentHash,
		SizeBytes:   release.SizeBytes,
		URL:         downloadPathPrefix + release.Version,
	}
}

// alarmMissingTarget records one alarm per (device, target) pair. The
// same device heartbeating against the same missing target stays
// silent until the target changes or reappears.
func (o *Orchestrator) alarmMissingTarget(ctx context.Context, deviceID, target string, cause error) {
	o.mu.Lock()
	already := o.alarmed[deviceID] == target
	if !already {
		o.alarmed[deviceID] = target
	}
	o.mu.Unlock()

	if already {
		return
	}

	o.logger.Warn("ota target unavailable",
		"device_id", deviceID, "target", target, "error", cause)

	if o.alarms == nil {
		return
	}

	msg := fmt.Sprintf("ota target %q unavailable", target)
	if cause != nil && !errors.Is(cause, firmware.ErrReleaseNotFound) {
		msg = fmt.Sprintf("ota target %q lookup failed: %v", target, cause)
	}

	if _, err := o.alarms.Record(ctx, deviceID, alarm.TypeOTATargetMissing, alarm.SeverityWarning, msg); err != nil {
		o.logger.Error("recording ota alarm", "device_id", deviceID, "error", err)
	}
}
