// Package telemetry provides InfluxDB connectivity for PillFleet Core.
//
// It wraps the official influxdb-client-go v2 library with PillFleet-specific
// patterns for connection management, metric writing, and health monitoring.
//
// # Purpose
//
// This package handles time-series data storage for:
//   - Device heartbeat facts (free heap, uptime)
//   - Fleet liveness snapshots (total/online/offline)
//
// Telemetry is optional and advisory. When disabled (the default) or
// unreachable, the fleet engine runs unchanged; no decision reads from
// the time-series store.
//
// # Usage
//
//	cfg := config.InfluxDBConfig{
//	    Enabled: true,
//	    URL:     "http://localhost:8086",
//	    Token:   "your-token",
//	    Org:     "pillfleet",
//	    Bucket:  "metrics",
//	}
//
//	client, err := telemetry.Connect(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Record heartbeat facts
//	client.WriteHeartbeat("a1b2c3", 148220, 86400)
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes.
//
// # Error Handling
//
// Write operations are non-blocking and batch errors are logged via a callback.
// Connection and health check errors are returned directly.
//
// # Performance
//
// Writes are batched according to config.yaml settings (batch_size, flush_interval).
// This reduces network overhead for high-frequency telemetry data.
package telemetry
