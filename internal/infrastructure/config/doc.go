// Package config handles loading and validating PillFleet Core configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - Sensitive values (admin token, MQTT credentials, InfluxDB token)
//     should be set via environment variables
//   - The config file should have restricted permissions (0600)
//   - The admin token must be set before the API will start; there is no
//     usable default for a fleet that dispenses medication
//
// Performance Characteristics:
//   - Configuration is loaded once at startup
//   - No runtime overhead after initial load
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Fleet.Staleness())
package config
