package telemetry

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteHeartbeat records the advisory facts a device reported with its
// heartbeat.
//
// The write is non-blocking; data is batched and sent asynchronously.
// Heartbeat facts are advisory only and never feed back into fleet
// decisions, so a lost point is harmless.
//
// Parameters:
//   - deviceID: Unique identifier for the device
//   - freeHeap: Reported free heap in bytes
//   - uptimeSeconds: Reported uptime in seconds
//
// Example:
//
//	client.WriteHeartbeat("a1b2c3", 148220, 86400)
func (c *Client) WriteHeartbeat(deviceID string, freeHeap int64, uptimeSeconds int64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"heartbeat",
		map[string]string{
			"device_id": deviceID,
		},
		map[string]interface{}{
			"free_heap":      freeHeap,
			"uptime_seconds": uptimeSeconds,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteFleetSnapshot records an aggregate view of fleet liveness.
//
// Written periodically so dashboards can graph fleet health over time
// without querying the relational store.
//
// Parameters:
//   - total: Total registered devices
//   - online: Devices currently within the staleness threshold
func (c *Client) WriteFleetSnapshot(total int, online int) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"fleet",
		map[string]string{},
		map[string]interface{}{
			"total":   total,
			"online":  online,
			"offline": total - online,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for custom measurements that don't fit the helper methods.
//
// Parameters:
//   - measurement: The measurement name (table)
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
//
// Example:
//
//	client.WritePoint("system_stats",
//	    map[string]string{"host": "core-01"},
//	    map[string]interface{}{"cpu_percent": 45.2, "memory_mb": 512})
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// WritePointWithTime writes a custom point with a specific timestamp.
//
// Use this when the timestamp is not "now" (e.g., delayed data).
//
// Parameters:
//   - measurement: The measurement name
//   - tags: Key-value pairs for indexing
//   - fields: Key-value pairs for the data
//   - timestamp: The exact time for this data point
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
