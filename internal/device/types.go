package device

import (
	"time"

	"github.com/google/uuid"
)

// AdminState is the administrative lifecycle state of a device.
//
// The state is set by operators, never by devices. It gates what a
// device is allowed to do when it contacts the fleet:
//
//   - pending: registered, not yet heard from; the first verified
//     heartbeat promotes it to active (operators may also approve
//     manually before first contact)
//   - active: full participation
//   - suspended: heartbeats accepted (liveness tracked), no commands
//     or OTA offered
//   - blocked: rejected at the door; last_seen is not updated
type AdminState string

// Administrative states. This is a closed enum; Transition rejects
// anything else.
const (
	StatePending   AdminState = "pending"
	StateActive    AdminState = "active"
	StateSuspended AdminState = "suspended"
	StateBlocked   AdminState = "blocked"
)

// IsValid reports whether s is one of the four administrative states.
func (s AdminState) IsValid() bool {
	switch s {
	case StatePending, StateActive, StateSuspended, StateBlocked:
		return true
	}
	return false
}

// Device represents a medication dispenser appliance in the fleet.
// This matches the devices table in the initial schema migration.
type Device struct {
	// Identity
	ID   string `json:"id"`
	MAC  string `json:"mac"` // immutable after registration
	Name string `json:"name"`

	// Last reported network facts (advisory, device-supplied)
	IPAddress   string `json:"ip_address,omitempty"`
	NetworkName string `json:"network_name,omitempty"`

	// Firmware
	FirmwareVersion string `json:"firmware_version,omitempty"`

	// Lifecycle
	AdminState AdminState `json:"admin_state"`

	// OTA policy
	OTAEnabled       bool    `json:"ota_enabled"`
	OTATargetVersion *string `json:"ota_target_version,omitempty"`

	// Credential material. Only the SHA-256 hash is stored; the raw key
	// is returned exactly once at registration.
	APIKeyHash   string `json:"-"`
	APIKeyPrefix string `json:"-"`
	APIKeySuffix string `json:"-"`

	// Liveness
	LastSeen *time.Time `json:"last_seen,omitempty"`

	// Last reported health facts (advisory)
	FreeHeap      int64 `json:"free_heap"`
	UptimeSeconds int64 `json:"uptime_seconds"`

	// Timestamps
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HeartbeatFacts carries the device-reported values applied on each
// heartbeat. All fields are advisory; none of them feed back into
// fleet decisions.
type HeartbeatFacts struct {
	IPAddress       string `json:"ip_address"`
	NetworkName     string `json:"network_name"`
	FirmwareVersion string `json:"firmware_version"`
	FreeHeap        int64  `json:"free_heap"`
	UptimeSeconds   int64  `json:"uptime_seconds"`
}

// DeepCopy creates a complete independent copy of the Device.
// Pointer fields are cloned so modifications to the copy do not affect
// the original. This is essential for cache isolation.
func (d *Device) DeepCopy() *Device {
	if d == nil {
		return nil
	}

	cpy := *d // Shallow copy of value fields

	if d.OTATargetVersion != nil {
		v := *d.OTATargetVersion
		cpy.OTATargetVersion = &v
	}
	if d.LastSeen != nil {
		t := *d.LastSeen
		cpy.LastSeen = &t
	}

	return &cpy
}

// IsOnline reports whether the device has been heard from within the
// staleness threshold. Online/offline is always derived at read time
// from last_seen; it is never stored, so there is no state to go stale.
//
// The boundary is exclusive: a device exactly at the threshold is
// offline.
func (d *Device) IsOnline(now time.Time, staleness time.Duration) bool {
	if d.LastSeen == nil {
		return false
	}
	return now.Sub(*d.LastSeen) < staleness
}

// MaskedKey returns the display form of the device API key, e.g.
// "pfk_a1b2…9f3e". The full key is never recoverable after issuance.
func (d *Device) MaskedKey() string {
	if d.APIKeyPrefix == "" {
		return ""
	}
	return d.APIKeyPrefix + "…" + d.APIKeySuffix
}

// GenerateID creates a new unique device identifier.
func GenerateID() string {
	return uuid.NewString()
}
