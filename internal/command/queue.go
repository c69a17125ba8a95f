package command

import (
	"context"
	"hash/fnv"
	"sync"
)

// Logger defines the logging interface used by the Queue.
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

// Notifier receives best-effort notice that a command was enqueued.
// The MQTT push channel implements this; delivery remains guaranteed by
// the heartbeat drain regardless of what the notifier does.
type Notifier interface {
	CommandEnqueued(deviceID string, cmd Command)
}

// stripeCount is the number of per-device mutex stripes.
const stripeCount = 64

// Queue provides the per-device command queue.
//
// Ordering and exactly-once drain semantics come from the repository
// transaction; the mutex stripes additionally serialise enqueue and
// drain for the same device so interleavings stay simple to reason
// about. Commands are delivered at most once: a drained command that
// the device loses is gone. Operators re-issue commands rather than the
// queue re-delivering them, which keeps duplicate dispensing actions
// impossible by construction.
type Queue struct {
	repo     Repository
	stripes  [stripeCount]sync.Mutex
	logger   Logger
	notifier Notifier
	notifyMu sync.RWMutex
}

// NewQueue creates a command queue on top of a repository.
func NewQueue(repo Repository) *Queue {
	return &Queue{
		repo:   repo,
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the queue.
func (q *Queue) SetLogger(logger Logger) {
	q.logger = logger
}

// SetNotifier installs a best-effort enqueue notifier (e.g. MQTT push).
func (q *Queue) SetNotifier(n Notifier) {
	q.notifyMu.Lock()
	q.notifier = n
	q.notifyMu.Unlock()
}

// stripe returns the mutex serialising operations for a device ID.
func (q *Queue) stripe(deviceID string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(deviceID)) //nolint:errcheck // fnv Write never fails
	return &q.stripes[h.Sum32()%stripeCount]
}

// Enqueue appends a command for a device and returns the full record.
func (q *Queue) Enqueue(ctx context.Context, deviceID, cmdType, payload string) (*Command, error) {
	mu := q.stripe(deviceID)
	mu.Lock()
	id, err := q.repo.Enqueue(ctx, deviceID, cmdType, payload)
	mu.Unlock()
	if err != nil {
		return nil, err
	}

	cmd := Command{ID: id, DeviceID: deviceID, Type: cmdType, Payload: payload}
	q.logger.Info("command enqueued", "device_id", deviceID, "command_id", id, "type", cmdType)

	q.notifyMu.RLock()
	notifier := q.notifier
	q.notifyMu.RUnlock()
	if notifier != nil {
		notifier.CommandEnqueued(deviceID, cmd)
	}

	return &cmd, nil
}

// Drain returns and consumes all pending commands for a device in
// enqueue order. A second drain with nothing new enqueued returns
// empty.
func (q *Queue) Drain(ctx context.Context, deviceID string) ([]Command, error) {
	mu := q.stripe(deviceID)
	mu.Lock()
	defer mu.Unlock()

	commands, err := q.repo.Drain(ctx, deviceID)
	if err != nil {
		return nil, err
	}

	if len(commands) > 0 {
		q.logger.Debug("commands drained", "device_id", deviceID, "count", len(commands))
	}

	return commands, nil
}

// History lists recent commands for a device, newest first.
func (q *Queue) History(ctx context.Context, deviceID string, limit int) ([]Command, error) {
	return q.repo.History(ctx, deviceID, limit)
}

// Purge removes all commands for a device. Called on device deletion.
func (q *Queue) Purge(ctx context.Context, deviceID string) error {
	mu := q.stripe(deviceID)
	mu.Lock()
	defer mu.Unlock()
	return q.repo.DeleteForDevice(ctx, deviceID)
}
