// PillFleet Core - medication dispenser fleet coordination engine.
//
// This is the main entry point for the PillFleet Core application.
// Core tracks fleet liveness, runs the device lifecycle state machine,
// drains per-device command queues over heartbeat polling, decides OTA
// upgrades against the firmware registry, and propagates dose
// schedules to dispensers over retained MQTT.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/pillfleet/pillfleet-core/migrations"

	"github.com/pillfleet/pillfleet-core/internal/alarm"
	"github.com/pillfleet/pillfleet-core/internal/api"
	"github.com/pillfleet/pillfleet-core/internal/command"
	"github.com/pillfleet/pillfleet-core/internal/device"
	"github.com/pillfleet/pillfleet-core/internal/firmware"
	"github.com/pillfleet/pillfleet-core/internal/infrastructure/config"
	"github.com/pillfleet/pillfleet-core/internal/infrastructure/database"
	"github.com/pillfleet/pillfleet-core/internal/infrastructure/logging"
	"github.com/pillfleet/pillfleet-core/internal/infrastructure/mqtt"
	"github.com/pillfleet/pillfleet-core/internal/infrastructure/telemetry"
	"github.com/pillfleet/pillfleet-core/internal/ota"
	"github.com/pillfleet/pillfleet-core/internal/schedule"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error { //nolint:gocognit,gocyclo // composition root: linear wiring of every subsystem
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting PillFleet Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	// Run migrations
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Device registry
	deviceRepo := device.NewSQLiteRepository(db.DB)
	deviceRegistry := device.NewRegistry(deviceRepo, cfg.Fleet.Staleness())
	deviceRegistry.SetLogger(log)
	if refreshErr := deviceRegistry.RefreshCache(ctx); refreshErr != nil {
		return fmt.Errorf("loading device registry: %w", refreshErr)
	}
	stats, err := deviceRegistry.FleetStats(ctx)
	if err != nil {
		return fmt.Errorf("reading fleet stats: %w", err)
	}
	log.Info("device registry initialised", "devices", stats.Total)

	// Alarm log
	alarmLog := alarm.NewLog(alarm.NewSQLiteRepository(db.DB))
	alarmLog.SetLogger(log)

	// Command queue
	commandQueue := command.NewQueue(command.NewSQLiteRepository(db.DB))
	commandQueue.SetLogger(log)

	// Firmware registry
	firmwareRegistry, err := firmware.NewRegistry(firmware.NewSQLiteRepository(db.DB), cfg.Firmware.Dir)
	if err != nil {
		return fmt.Errorf("initialising firmware registry: %w", err)
	}
	firmwareRegistry.SetLogger(log)
	log.Info("firmware registry initialised", "dir", cfg.Firmware.Dir)

	// OTA orchestrator
	orchestrator := ota.NewOrchestrator(firmwareRegistry, alarmLog)
	orchestrator.SetLogger(log)

	// MQTT broker connection (optional: heartbeat polling covers command
	// delivery and the schedule sync retries ride out short outages, so
	// a down broker degrades propagation rather than blocking startup)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			log.Warn("MQTT unavailable, continuing without push channel", "error", err)
			mqttClient = nil
		} else {
			defer func() {
				log.Info("disconnecting from MQTT")
				if closeErr := mqttClient.Close(); closeErr != nil {
					log.Error("error closing MQTT", "error", closeErr)
				}
			}()
			log.Info("MQTT connected",
				"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
				"client_id", cfg.MQTT.Broker.ClientID,
			)
			mqttClient.SetOnConnect(func() {
				log.Info("MQTT reconnected")
			})
			mqttClient.SetOnDisconnect(func(err error) {
				log.Warn("MQTT disconnected", "error", err)
			})

			// Best-effort command push: nudges an idle device to beat
			// early. Heartbeat drain remains the guaranteed channel.
			commandQueue.SetNotifier(&mqttCommandNotifier{client: mqttClient, log: log})

			// Device status is advisory visibility only; liveness is
			// derived from heartbeat last_seen, not broker presence.
			statusTopic := mqtt.Topics{}.AllDeviceStatus()
			if subErr := mqttClient.Subscribe(statusTopic, 1, func(topic string, payload []byte) error {
				log.Info("device status", "topic", topic, "payload", string(payload))
				return nil
			}); subErr != nil {
				log.Warn("subscribing to device status", "topic", statusTopic, "error", subErr)
			}
		}
	} else {
		log.Info("MQTT disabled")
	}

	// Schedule sync (retained publish mirrors the SQLite schedule)
	var publisher schedule.Publisher
	if mqttClient != nil {
		publisher = mqttClient
	}
	scheduleSync := schedule.NewSync(schedule.NewSQLiteRepository(db.DB), publisher, alarmLog)
	scheduleSync.SetLogger(log)
	defer func() {
		log.Info("waiting for pending schedule publishes")
		scheduleSync.Wait()
	}()

	// InfluxDB telemetry (optional)
	var telemetryClient *telemetry.Client
	if cfg.InfluxDB.Enabled {
		telemetryClient, err = telemetry.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := telemetryClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
		telemetryClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})

		// Periodic fleet liveness snapshot for dashboards
		go fleetSnapshotLoop(ctx, deviceRegistry, telemetryClient, log)
	} else {
		log.Info("InfluxDB disabled")
	}

	// API server
	deps := api.Deps{
		Config:    cfg.API,
		Security:  cfg.Security,
		Firmware:  cfg.Firmware,
		Logger:    log,
		Registry:  deviceRegistry,
		Commands:  commandQueue,
		Releases:  firmwareRegistry,
		OTA:       orchestrator,
		Schedules: scheduleSync,
		Alarms:    alarmLog,
		Version:   version,
	}
	if telemetryClient != nil {
		deps.Telemetry = telemetryClient
	}
	apiServer, err := api.New(deps)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := apiServer.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()
	log.Info("API server started", "host", cfg.API.Host, "port", cfg.API.Port)

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, telemetryClient, apiServer); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// 1. API server (stop accepting requests first)
	// 2. InfluxDB (if enabled)
	// 3. Schedule sync drain
	// 4. MQTT (if connected)
	// 5. Database

	log.Info("PillFleet Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses PILLFLEET_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("PILLFLEET_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - mqttClient: MQTT client to check (may be nil if disabled/unavailable)
//   - telemetryClient: InfluxDB client to check (may be nil if disabled)
//   - apiServer: API server to check
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, telemetryClient *telemetry.Client, apiServer *api.Server) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}

	if telemetryClient != nil {
		if err := telemetryClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	if err := apiServer.HealthCheck(ctx); err != nil {
		return fmt.Errorf("api: %w", err)
	}

	return nil
}

// fleetSnapshotInterval is how often aggregate fleet liveness is
// written to InfluxDB.
const fleetSnapshotInterval = time.Minute

// fleetSnapshotLoop periodically writes an aggregate fleet liveness
// point until the context is cancelled. Online/offline is derived from
// last_seen against the staleness threshold, the same calculation the
// fleet stats endpoint serves.
func fleetSnapshotLoop(ctx context.Context, registry *device.Registry, tc *telemetry.Client, log *logging.Logger) {
	ticker := time.NewTicker(fleetSnapshotInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats, err := registry.FleetStats(ctx)
			if err != nil {
				log.Error("reading fleet stats for snapshot", "error", err)
				continue
			}
			tc.WriteFleetSnapshot(stats.Total, stats.Online)
		}
	}
}

// mqttCommandNotifier pushes a just-enqueued command to the device's
// command topic. Delivery is best effort and never retained: the
// heartbeat drain is the guaranteed channel, and a retained command
// could double-fire on reconnect.
type mqttCommandNotifier struct {
	client *mqtt.Client
	log    *logging.Logger
}

// CommandEnqueued implements command.Notifier.
func (n *mqttCommandNotifier) CommandEnqueued(deviceID string, cmd command.Command) {
	payload, err := json.Marshal(cmd)
	if err != nil {
		n.log.Error("marshalling command push", "device_id", deviceID, "error", err)
		return
	}

	topic := mqtt.Topics{}.DeviceCommand(deviceID)
	if err := n.client.Publish(topic, payload, 1, false); err != nil {
		n.log.Debug("command push skipped", "device_id", deviceID, "error", err)
	}
}
