package alarm

import (
	"time"

	"github.com/google/uuid"
)

// Severity classifies an alarm event.
type Severity string

// Valid severities, lowest to highest.
const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// IsValid returns true if the severity is a known value.
func (s Severity) IsValid() bool {
	switch s {
	case SeverityInfo, SeverityWarning, SeverityCritical:
		return true
	}
	return false
}

// Engine-originated event types. Devices report their own free-form
// types ("dose_taken", "dose_missed", "compartment_jam", ...).
const (
	TypeDeviceRegistered     = "device_registered"
	TypeOTATargetMissing     = "ota_target_missing"
	TypeScheduleDeliveryRisk = "schedule_delivery_risk"
)

// Event is a single entry in the append-only alarm log.
// DeviceID is empty for fleet-wide engine events.
type Event struct {
	ID        string    `json:"id"`
	DeviceID  string    `json:"device_id,omitempty"`
	Type      string    `json:"type"`
	Severity  Severity  `json:"severity"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// GenerateID creates a new unique event identifier.
func GenerateID() string {
	return "alm-" + uuid.NewString()[:8]
}
