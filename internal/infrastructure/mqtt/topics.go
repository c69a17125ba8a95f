package mqtt

import "fmt"

// Topic prefixes for the PillFleet MQTT namespace.
//
// All device topics use the scheme: pillfleet/device/{device_id}/{channel}
// Devices subscribe to their own subtree only; the broker ACL enforces this.
const (
	// TopicPrefixDevice is the base for all per-device topics.
	TopicPrefixDevice = "pillfleet/device"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "pillfleet/system"
)

// Topics provides builders for PillFleet MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	scheduleTopic := topics.DeviceSchedule("a1b2c3")
//	// Returns: "pillfleet/device/a1b2c3/schedule"
type Topics struct{}

// DeviceSchedule returns the retained schedule topic for a device.
// The full schedule set is published here retained, so a device that
// reconnects after an outage immediately receives the latest set.
//
// Example: pillfleet/device/a1b2c3/schedule
func (Topics) DeviceSchedule(deviceID string) string {
	return fmt.Sprintf("%s/%s/schedule", TopicPrefixDevice, deviceID)
}

// DeviceCommand returns the command push topic for a device.
// This is a best-effort fast path; the heartbeat drain remains the
// guaranteed delivery channel.
//
// Example: pillfleet/device/a1b2c3/command
func (Topics) DeviceCommand(deviceID string) string {
	return fmt.Sprintf("%s/%s/command", TopicPrefixDevice, deviceID)
}

// DeviceStatus returns the status topic a device publishes its own
// LWT/online state to.
//
// Example: pillfleet/device/a1b2c3/status
func (Topics) DeviceStatus(deviceID string) string {
	return fmt.Sprintf("%s/%s/status", TopicPrefixDevice, deviceID)
}

// SystemStatus returns the Core system status topic.
// Core publishes "online" here on connect and the broker publishes
// "offline" via LWT when Core drops.
//
// Example: pillfleet/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// AllDeviceStatus returns a pattern matching all device status topics.
//
// Pattern: pillfleet/device/+/status
func (Topics) AllDeviceStatus() string {
	return fmt.Sprintf("%s/+/status", TopicPrefixDevice)
}

// AllTopics returns a pattern matching all PillFleet topics.
// Use with caution - this receives ALL traffic.
//
// Pattern: pillfleet/#
func (Topics) AllTopics() string {
	return "pillfleet/#"
}
