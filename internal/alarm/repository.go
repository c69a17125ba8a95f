package alarm

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Repository defines the interface for alarm event persistence.
// The log is append-only: events are inserted and listed, never
// updated or deleted.
type Repository interface {
	// Create inserts a new alarm event.
	Create(ctx context.Context, event *Event) error

	// List retrieves the most recent events across all devices,
	// newest first.
	List(ctx context.Context, limit int) ([]Event, error)

	// ListByDevice retrieves the most recent events for one device,
	// newest first.
	ListByDevice(ctx context.Context, deviceID string, limit int) ([]Event, error)
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed alarm repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// clampLimit bounds a caller-supplied page size.
func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}

// Create inserts a new alarm event.
func (r *SQLiteRepository) Create(ctx context.Context, event *Event) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO alarm_events (id, device_id, type, severity, message, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		event.ID,
		event.DeviceID,
		event.Type,
		string(event.Severity),
		event.Message,
		event.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting alarm event: %w", err)
	}

	return nil
}

// List retrieves the most recent events across all devices, newest first.
func (r *SQLiteRepository) List(ctx context.Context, limit int) ([]Event, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, device_id, type, severity, message, created_at
		 FROM alarm_events ORDER BY created_at DESC, id DESC LIMIT ?`,
		clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("querying alarm events: %w", err)
	}
	defer rows.Close() //nolint:errcheck // Read-only iteration

	return scanEvents(rows)
}

// ListByDevice retrieves the most recent events for one device, newest first.
func (r *SQLiteRepository) ListByDevice(ctx context.Context, deviceID string, limit int) ([]Event, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, device_id, type, severity, message, created_at
		 FROM alarm_events WHERE device_id = ?
		 ORDER BY created_at DESC, id DESC LIMIT ?`,
		deviceID, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("querying device alarm events: %w", err)
	}
	defer rows.Close() //nolint:errcheck // Read-only iteration

	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]Event, error) {
	var events []Event
	for rows.Next() {
		var event Event
		var severity string
		var createdAt string

		err := rows.Scan(
			&event.ID,
			&event.DeviceID,
			&event.Type,
			&severity,
			&event.Message,
			&createdAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning alarm event: %w", err)
		}

		event.Severity = Severity(severity)

		t, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		event.CreatedAt = t

		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating alarm events: %w", err)
	}

	return events, nil
}
