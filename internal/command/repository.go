package command

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Repository defines the interface for command persistence.
type Repository interface {
	// Enqueue appends a command for a device and returns its ID.
	Enqueue(ctx context.Context, deviceID, cmdType, payload string) (int64, error)

	// Drain returns all undelivered commands for a device in enqueue
	// order and marks them delivered in the same transaction. A command
	// is returned by exactly one Drain call, ever.
	Drain(ctx context.Context, deviceID string) ([]Command, error)

	// History lists the most recent commands for a device, newest
	// first, delivered or not.
	History(ctx context.Context, deviceID string, limit int) ([]Command, error)

	// DeleteForDevice removes all commands for a device.
	// Used when a device is deleted.
	DeleteForDevice(ctx context.Context, deviceID string) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed command repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Enqueue appends a command for a device.
func (r *SQLiteRepository) Enqueue(ctx context.Context, deviceID, cmdType, payload string) (int64, error) {
	if deviceID == "" {
		return 0, ErrDeviceRequired
	}
	if cmdType == "" {
		return 0, ErrInvalidType
	}

	now := time.Now().UTC().Format(time.RFC3339)
	result, err := r.db.ExecContext(ctx,
		"INSERT INTO commands (device_id, type, payload, enqueued_at) VALUES (?, ?, ?, ?)",
		deviceID, cmdType, payload, now,
	)
	if err != nil {
		return 0, fmt.Errorf("inserting command: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading command id: %w", err)
	}

	return id, nil
}

// Drain returns undelivered commands in enqueue order and marks them
// delivered atomically.
//
// The select and the update run in one transaction scoped to the ids
// actually read, so a command enqueued while the drain is in flight is
// never lost (next drain) and never delivered twice.
func (r *SQLiteRepository) Drain(ctx context.Context, deviceID string) ([]Command, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("starting drain transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // No-op if committed

	rows, err := tx.QueryContext(ctx, `
		SELECT id, device_id, type, payload, enqueued_at, delivered_at
		FROM commands
		WHERE device_id = ? AND delivered_at IS NULL
		ORDER BY id`,
		deviceID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying pending commands: %w", err)
	}

	commands, err := scanCommands(rows)
	if err != nil {
		return nil, err
	}

	if len(commands) == 0 {
		return nil, tx.Commit()
	}

	delivered := time.Now().UTC()
	deliveredStr := delivered.Format(time.RFC3339)
	lastID := commands[len(commands)-1].ID

	// Scope the update to the ids read above. Commands enqueued after
	// the select keep delivered_at NULL for the next drain.
	_, err = tx.ExecContext(ctx, `
		UPDATE commands SET delivered_at = ?
		WHERE device_id = ? AND delivered_at IS NULL AND id <= ?`,
		deliveredStr, deviceID, lastID,
	)
	if err != nil {
		return nil, fmt.Errorf("marking commands delivered: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing drain: %w", err)
	}

	for i := range commands {
		t := delivered
		commands[i].DeliveredAt = &t
	}

	return commands, nil
}

// History lists the most recent commands for a device, newest first.
func (r *SQLiteRepository) History(ctx context.Context, deviceID string, limit int) ([]Command, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, device_id, type, payload, enqueued_at, delivered_at
		FROM commands
		WHERE device_id = ?
		ORDER BY id DESC
		LIMIT ?`,
		deviceID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying command history: %w", err)
	}

	return scanCommands(rows)
}

// DeleteForDevice removes all commands for a device.
func (r *SQLiteRepository) DeleteForDevice(ctx context.Context, deviceID string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM commands WHERE device_id = ?", deviceID); err != nil {
		return fmt.Errorf("deleting commands: %w", err)
	}
	return nil
}

// scanCommands drains a rows result into a slice, closing it.
func scanCommands(rows *sql.Rows) ([]Command, error) {
	defer rows.Close() //nolint:errcheck // Read-only iteration

	var commands []Command
	for rows.Next() {
		var c Command
		var enqueuedAt string
		var deliveredAt sql.NullString

		if err := rows.Scan(&c.ID, &c.DeviceID, &c.Type, &c.Payload, &enqueuedAt, &deliveredAt); err != nil {
			return nil, fmt.Errorf("scanning command: %w", err)
		}

		t, err := time.Parse(time.RFC3339, enqueuedAt)
		if err != nil {
			return nil, fmt.Errorf("parsing enqueued_at: %w", err)
		}
		c.EnqueuedAt = t

		if deliveredAt.Valid {
			dt, err := time.Parse(time.RFC3339, deliveredAt.String)
			if err == nil {
				c.DeliveredAt = &dt
			}
		}

		commands = append(commands, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating commands: %w", err)
	}

	return commands, nil
}
