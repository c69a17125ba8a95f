package schedule

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Repository defines the interface for schedule persistence.
// SQLite is the source of truth; the retained MQTT copy is a mirror.
type Repository interface {
	// Get retrieves a device's schedule.
	// Returns ErrScheduleNotFound if the device has none.
	Get(ctx context.Context, deviceID string) (*Set, error)

	// Put replaces a device's schedule wholesale, creating it if absent.
	Put(ctx context.Context, set *Set) error

	// Delete removes a device's schedule.
	// Returns ErrScheduleNotFound if the device has none.
	Delete(ctx context.Context, deviceID string) error
}

// SQLiteRepository implements Repository using SQLite. The entries
// array is stored as one JSON document per device.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed schedule repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Get retrieves a device's schedule.
func (r *SQLiteRepository) Get(ctx context.Context, deviceID string) (*Set, error) {
	var entriesJSON string
	var updatedAt string

	err := r.db.QueryRowContext(ctx,
		`SELECT entries, updated_at FROM schedules WHERE device_id = ?`,
		deviceID).Scan(&entriesJSON, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrScheduleNotFound
		}
		return nil, fmt.Errorf("querying schedule: %w", err)
	}

	set := &Set{DeviceID: deviceID}
	if err := json.Unmarshal([]byte(entriesJSON), &set.Entries); err != nil {
		return nil, fmt.Errorf("unmarshalling schedule entries: %w", err)
	}

	t, err := time.Parse(time.RFC3339, updatedAt)
	if err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	set.UpdatedAt = t

	return set, nil
}

// Put replaces a device's schedule wholesale.
func (r *SQLiteRepository) Put(ctx context.Context, set *Set) error {
	if set.UpdatedAt.IsZero() {
		set.UpdatedAt = time.Now().UTC()
	}

	entriesJSON, err := json.Marshal(set.Entries)
	if err != nil {
		return fmt.Errorf("marshalling schedule entries: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO schedules (device_id, entries, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(device_id) DO UPDATE SET
			entries = excluded.entries,
			updated_at = excluded.updated_at`,
		set.DeviceID,
		string(entriesJSON),
		set.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("upserting schedule: %w", err)
	}

	return nil
}

// Delete removes a device's schedule.
func (r *SQLiteRepository) Delete(ctx context.Context, deviceID string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM schedules WHERE device_id = ?`, deviceID)
	if err != nil {
		return fmt.Errorf("deleting schedule: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking delete result: %w", err)
	}
	if affected == 0 {
		return ErrScheduleNotFound
	}

	return nil
}
