package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const testAdminToken = "test-admin-token-at-least-32-chars!!"

func TestLoad_ValidConfig(t *testing.T) {
	content := `
fleet:
  heartbeat_interval: 15
  staleness_threshold: 45
database:
  path: "/tmp/test.db"
  wal_mode: true
  busy_timeout: 5
mqtt:
  broker:
    host: "broker.local"
    port: 1883
    client_id: "test-client"
  qos: 1
api:
  host: "0.0.0.0"
  port: 8080
security:
  admin_token: "` + testAdminToken + `"
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Fleet.HeartbeatInterval != 15 {
		t.Errorf("Fleet.HeartbeatInterval = %d, want 15", cfg.Fleet.HeartbeatInterval)
	}

	if cfg.Fleet.Staleness() != 45*time.Second {
		t.Errorf("Fleet.Staleness() = %v, want 45s", cfg.Fleet.Staleness())
	}

	if cfg.Database.Path != "/tmp/test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/tmp/test.db")
	}

	if cfg.MQTT.Broker.Host != "broker.local" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "broker.local")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("invalid: [yaml: content"), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_MissingAdminToken(t *testing.T) {
	content := `
database:
  path: "/tmp/test.db"
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected error for missing admin token, got nil")
	}
}

func TestLoad_StalenessMustExceedHeartbeat(t *testing.T) {
	content := `
fleet:
  heartbeat_interval: 30
  staleness_threshold: 30
security:
  admin_token: "` + testAdminToken + `"
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected error when staleness_threshold <= heartbeat_interval, got nil")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	content := `
database:
  path: "/tmp/original.db"
security:
  admin_token: "` + testAdminToken + `"
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	t.Setenv("PILLFLEET_DATABASE_PATH", "/tmp/override.db")
	t.Setenv("PILLFLEET_MQTT_HOST", "mqtt.example.com")
	t.Setenv("PILLFLEET_API_PORT", "9090")

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Database.Path != "/tmp/override.db" {
		t.Errorf("Database.Path = %q, want env override", cfg.Database.Path)
	}
	if cfg.MQTT.Broker.Host != "mqtt.example.com" {
		t.Errorf("MQTT.Broker.Host = %q, want env override", cfg.MQTT.Broker.Host)
	}
	if cfg.API.Port != 9090 {
		t.Errorf("API.Port = %d, want 9090", cfg.API.Port)
	}
}

func TestDefaults(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Fleet.HeartbeatInterval != 30 {
		t.Errorf("default heartbeat_interval = %d, want 30", cfg.Fleet.HeartbeatInterval)
	}
	if cfg.Fleet.StalenessThreshold != 90 {
		t.Errorf("default staleness_threshold = %d, want 90", cfg.Fleet.StalenessThreshold)
	}
	if !cfg.Database.WALMode {
		t.Error("default wal_mode should be true")
	}
	if cfg.MQTT.QoS != 1 {
		t.Errorf("default mqtt qos = %d, want 1", cfg.MQTT.QoS)
	}
	if cfg.Firmware.MaxUploadBytes != 16<<20 {
		t.Errorf("default firmware max upload = %d, want 16MB", cfg.Firmware.MaxUploadBytes)
	}
}
