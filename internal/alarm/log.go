package alarm

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Logger defines the logging interface used by the alarm log.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Log is the append-only alarm event log. Events come from two
// directions: devices reporting dose outcomes and hardware faults, and
// the engine itself flagging conditions an operator should see
// (missing OTA target, schedule delivery at risk).
type Log struct {
	repo   Repository
	logger Logger
}

// NewLog creates an alarm log backed by the given repository.
func NewLog(repo Repository) *Log {
	return &Log{
		repo:   repo,
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the alarm log.
func (l *Log) SetLogger(logger Logger) {
	l.logger = logger
}

// Record validates and appends an event.
//
// Parameters:
//   - deviceID: Originating device, or "" for fleet-wide engine events
//   - eventType: Short machine-readable type ("dose_missed", "ota_target_missing")
//   - severity: One of info, warning, critical
//   - message: Human-readable detail
//
// Returns:
//   - *Event: The recorded event with generated ID and timestamp
//   - error: Validation or persistence failure
func (l *Log) Record(ctx context.Context, deviceID, eventType string, severity Severity, message string) (*Event, error) {
	eventType = strings.TrimSpace(eventType)
	if eventType == "" {
		return nil, ErrTypeRequired
	}
	if !severity.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSeverity, severity)
	}

	event := &Event{
		ID:        GenerateID(),
		DeviceID:  deviceID,
		Type:      eventType,
		Severity:  severity,
		Message:   message,
		CreatedAt: time.Now().UTC(),
	}

	if err := l.repo.Create(ctx, event); err != nil {
		return nil, err
	}

	l.logger.Info("alarm recorded",
		"event_id", event.ID,
		"device_id", deviceID,
		"type", eventType,
		"severity", string(severity))

	return event, nil
}

// List retrieves the most recent events across all devices, newest first.
func (l *Log) List(ctx context.Context, limit int) ([]Event, error) {
	return l.repo.List(ctx, limit)
}

// ListByDevice retrieves the most recent events for one device, newest first.
func (l *Log) ListByDevice(ctx context.Context, deviceID string, limit int) ([]Event, error) {
	return l.repo.ListByDevice(ctx, deviceID, limit)
}
