// Package api provides the HTTP API for PillFleet Core.
//
// Two audiences share the server. Dispensers authenticate with their
// per-device API key (X-Device-Key) and use the heartbeat, event, and
// firmware download endpoints. The administrative CRUD layer
// authenticates with a static bearer token and manages devices,
// commands, firmware, schedules, and the alarm log.
//
// The server follows the same lifecycle pattern as other infrastructure
// components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/pillfleet/pillfleet-core/internal/alarm"
	"github.com/pillfleet/pillfleet-core/internal/command"
	"github.com/pillfleet/pillfleet-core/internal/device"
	"github.com/pillfleet/pillfleet-core/internal/firmware"
	"github.com/pillfleet/pillfleet-core/internal/infrastructure/config"
	"github.com/pillfleet/pillfleet-core/internal/infrastructure/logging"
	"github.com/pillfleet/pillfleet-core/internal/ota"
	"github.com/pillfleet/pillfleet-core/internal/schedule"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// HeartbeatWriter records heartbeat facts to the telemetry backend.
// Satisfied by *telemetry.Client. Writes are non-blocking and advisory.
type HeartbeatWriter interface {
	WriteHeartbeat(deviceID string, freeHeap int64, uptimeSeconds int64)
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config    config.APIConfig
	Security  config.SecurityConfig
	Firmware  config.FirmwareConfig
	Logger    *logging.Logger
	Registry  *device.Registry
	Commands  *command.Queue
	Releases  *firmware.Registry
	OTA       *ota.Orchestrator
	Schedules *schedule.Sync
	Alarms    *alarm.Log
	Telemetry HeartbeatWriter // optional
	Version   string
}

// Server is the HTTP API server for PillFleet Core.
//
// It manages the HTTP listener, routes, and middleware. The server is
// created with New() and started with Start().
type Server struct {
	cfg       config.APIConfig
	secCfg    config.SecurityConfig
	fwCfg     config.FirmwareConfig
	logger    *logging.Logger
	registry  *device.Registry
	commands  *command.Queue
	releases  *firmware.Registry
	ota       *ota.Orchestrator
	schedules *schedule.Sync
	alarms    *alarm.Log
	telemetry HeartbeatWriter
	version   string
	server    *http.Server
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Required dependencies (config, logger, registries)
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Registry == nil {
		return nil, fmt.Errorf("device registry is required")
	}
	if deps.Commands == nil {
		return nil, fmt.Errorf("command queue is required")
	}
	if deps.Releases == nil {
		return nil, fmt.Errorf("firmware registry is required")
	}
	if deps.OTA == nil {
		return nil, fmt.Errorf("ota orchestrator is required")
	}
	if deps.Schedules == nil {
		return nil, fmt.Errorf("schedule sync is required")
	}
	if deps.Alarms == nil {
		return nil, fmt.Errorf("alarm log is required")
	}

	return &Server{
		cfg:       deps.Config,
		secCfg:    deps.Security,
		fwCfg:     deps.Firmware,
		logger:    deps.Logger,
		registry:  deps.Registry,
		commands:  deps.Commands,
		releases:  deps.Releases,
		ota:       deps.OTA,
		schedules: deps.Schedules,
		alarms:    deps.Alarms,
		telemetry: deps.Telemetry,
		version:   deps.Version,
	}, nil
}

// Start begins listening for HTTP connections.
//
// It sets up the router and launches the HTTP listener in a background
// goroutine. The server can be stopped with Close().
//
// Parameters:
//   - ctx: Context for cancellation (not used for listener lifetime)
//
// Returns:
//   - error: If the server fails to start (port in use, etc.)
func (s *Server) Start(_ context.Context) error {
	router := s.buildRouter()

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           router,
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", s.server.Addr)
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
//
// Returns:
//   - error: If shutdown encounters an error
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running and responsive.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if healthy, error describing the issue otherwise
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}
