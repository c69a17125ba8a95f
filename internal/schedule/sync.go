package schedule

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/pillfleet/pillfleet-core/internal/alarm"
	"github.com/pillfleet/pillfleet-core/internal/infrastructure/mqtt"
)

// Logger defines the logging interface used by the sync service.
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

// Publisher sends MQTT messages. Satisfied by *mqtt.Client.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// AlarmRecorder appends engine alarm events. Satisfied by *alarm.Log.
type AlarmRecorder interface {
	Record(ctx context.Context, deviceID, eventType string, severity alarm.Severity, message string) (*alarm.Event, error)
}

// Publish retry policy: 5 attempts with delays doubling 1s -> 16s.
const (
	publishQoS           = 1
	defaultRetryAttempts = 5
	defaultRetryBase     = time.Second
)

// Sync keeps each device's retained schedule topic mirroring the
// SQLite source of truth.
//
// Writes commit to the database first and always succeed or fail on
// that alone; the retained publish happens in the background with
// bounded retries. A broker outage can therefore delay propagation
// but never roll back an admin's change. Exhausted retries raise a
// delivery-risk alarm so an operator knows a device may be running a
// stale schedule.
type Sync struct {
	repo      Repository
	publisher Publisher
	alarms    AlarmRecorder
	logger    Logger
	topics    mqtt.Topics

	retryAttempts int
	retryBase     time.Duration

	wg sync.WaitGroup
}

// NewSync creates a schedule sync service.
// publisher and alarms may be nil: without a publisher, schedules are
// persisted only; without alarms, exhausted retries are only logged.
func NewSync(repo Repository, publisher Publisher, alarms AlarmRecorder) *Sync {
	return &Sync{
		repo:          repo,
		publisher:     publisher,
		alarms:        alarms,
		logger:        noopLogger{},
		retryAttempts: defaultRetryAttempts,
		retryBase:     defaultRetryBase,
	}
}

// SetLogger sets the logger for the sync service.
func (s *Sync) SetLogger(logger Logger) {
	s.logger = logger
}

// Get retrieves a device's stored schedule.
func (s *Sync) Get(ctx context.Context, deviceID string) (*Set, error) {
	return s.repo.Get(ctx, deviceID)
}

// Put validates and stores a device's schedule, replacing the whole
// set, then mirrors it to the retained topic in the background.
//
// Parameters:
//   - deviceID: Target device
//   - entries: The complete new schedule; an empty slice clears all doses
//
// Returns:
//   - *Set: The stored set with its update timestamp
//   - error: Validation or persistence failure; publish failures never
//     surface here
func (s *Sync) Put(ctx context.Context, deviceID string, entries []Entry) (*Set, error) {
	set := &Set{
		DeviceID:  deviceID,
		Entries:   entries,
		UpdatedAt: time.Now().UTC(),
	}
	if err := set.Validate(); err != nil {
		return nil, err
	}

	if err := s.repo.Put(ctx, set); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(set)
	if err != nil {
		return nil, fmt.Errorf("marshalling schedule payload: %w", err)
	}

	s.publishAsync(deviceID, payload)

	return set, nil
}

// Delete removes a device's schedule and clears the retained topic
// (an empty retained publish deletes the broker's copy).
func (s *Sync) Delete(ctx context.Context, deviceID string) error {
	if err := s.repo.Delete(ctx, deviceID); err != nil {
		return err
	}

	s.publishAsync(deviceID, nil)

	return nil
}

// Republish mirrors the stored schedule to the retained topic again,
// for recovery after a broker wipe.
func (s *Sync) Republish(ctx context.Context, deviceID string) error {
	set, err := s.repo.Get(ctx, deviceID)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(set)
	if err != nil {
		return fmt.Errorf("marshalling schedule payload: %w", err)
	}

	s.publishAsync(deviceID, payload)

	return nil
}

// Wait blocks until all background publishes have finished or given
// up. Called during shutdown.
func (s *Sync) Wait() {
	s.wg.Wait()
}

// publishAsync retries the retained publish in its own goroutine so
// the admin request that already committed never waits on the broker.
func (s *Sync) publishAsync(deviceID string, payload []byte) {
	if s.publisher == nil {
		return
	}

	topic := s.topics.DeviceSchedule(deviceID)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		delay := s.retryBase
		var lastErr error
		for attempt := 1; attempt <= s.retryAttempts; attempt++ {
			lastErr = s.publisher.Publish(topic, payload, publishQoS, true)
			if lastErr == nil {
				s.logger.Debug("schedule published", "device_id", deviceID, "attempt", attempt)
				return
			}

			s.logger.Warn("schedule publish failed",
				"device_id", deviceID, "attempt", attempt, "error", lastErr)

			if attempt < s.retryAttempts {
				time.Sleep(delay)
				delay *= 2
			}
		}

		s.logger.Error("schedule publish abandoned",
			"device_id", deviceID, "attempts", s.retryAttempts, "error", lastErr)

		if s.alarms == nil {
			return
		}
		msg := fmt.Sprintf("schedule publish failed after %d attempts: %v", s.retryAttempts, lastErr)
		if _, err := s.alarms.Record(context.Background(), deviceID,
			alarm.TypeScheduleDeliveryRisk, alarm.SeverityWarning, msg); err != nil {
			s.logger.Error("recording schedule alarm", "device_id", deviceID, "error", err)
		}
	}()
}
