// Package mqtt provides MQTT client connectivity for PillFleet Core.
//
// This package manages:
//   - Connection to Mosquitto broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// PillFleet uses MQTT for the push channel to dispenser appliances:
// schedule sets are published retained so a device that reconnects after
// an outage immediately receives the latest set, and command pushes give
// a low-latency complement to heartbeat polling.
//
//	PillFleet Core → MQTT Broker → Dispenser devices
//
// # Security Considerations
//
//   - TLS is required for production deployments (cfg.Broker.TLS=true)
//   - Credentials are validated against broker ACL
//   - Devices are ACL-restricted to their own pillfleet/device/{id}/# subtree
//   - Anonymous access is only for local development
//   - Message payloads are not encrypted beyond TLS transport
//
// # Performance Characteristics
//
//   - Connection: <1 second to local broker
//   - Publish latency: <10ms for QoS 1 to local broker
//   - Reconnect: Exponential backoff 1s-60s with jitter
//   - Message throughput: Broker-limited (typically 10K+ msg/sec)
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Publish a retained schedule set
//	topic := mqtt.Topics{}.DeviceSchedule("a1b2c3")
//	client.Publish(topic, scheduleJSON, 1, true)
package mqtt
