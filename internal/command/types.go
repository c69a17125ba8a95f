package command

import "time"

// Command is a single queued instruction for a device.
//
// IDs come from the commands table rowid (AUTOINCREMENT), so they are
// monotonic and never reused; devices use them for deduplication.
type Command struct {
	ID          int64      `json:"id"`
	DeviceID    string     `json:"device_id"`
	Type        string     `json:"type"`
	Payload     string     `json:"payload,omitempty"`
	EnqueuedAt  time.Time  `json:"enqueued_at"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
}

// Well-known command types. The set is open; operators may enqueue
// custom types their firmware understands.
const (
	TypeReboot        = "reboot"
	TypeSyncSchedule  = "sync_schedule"
	TypeIdentify      = "identify"
	TypeFactoryReset  = "factory_reset"
	TypeTestDispense  = "test_dispense"
	TypeClearSchedule = "clear_schedule"
)
