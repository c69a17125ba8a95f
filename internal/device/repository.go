package device

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Repository defines the interface for device persistence operations.
// This abstraction allows for different implementations (SQLite, mock, etc.)
// and enables unit testing without database dependencies.
type Repository interface {
	// GetByID retrieves a device by its unique identifier.
	// Returns ErrDeviceNotFound if the device does not exist.
	GetByID(ctx context.Context, id string) (*Device, error)

	// GetByMAC retrieves a device by its MAC address.
	// Returns ErrDeviceNotFound if no device has that MAC.
	GetByMAC(ctx context.Context, mac string) (*Device, error)

	// GetByKeyHash retrieves a device by its API key hash.
	// Returns ErrDeviceNotFound if no device matches.
	GetByKeyHash(ctx context.Context, hash string) (*Device, error)

	// List retrieves all devices ordered by name.
	List(ctx context.Context) ([]Device, error)

	// Create inserts a new device.
	// Returns ErrDeviceExists if the MAC is already registered.
	Create(ctx context.Context, device *Device) error

	// Update modifies an existing device.
	// Returns ErrDeviceNotFound if the device does not exist.
	Update(ctx context.Context, device *Device) error

	// Delete removes a device by ID.
	// Returns ErrDeviceNotFound if the device does not exist.
	Delete(ctx context.Context, id string) error

	// UpdateHeartbeat applies device-reported facts and advances last_seen.
	// This is optimised for the per-heartbeat hot path.
	UpdateHeartbeat(ctx context.Context, id string, facts HeartbeatFacts, seen time.Time) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
// The db parameter should be an open SQLite connection.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// deviceColumns is the canonical column list for device queries.
const deviceColumns = `id, mac, name, ip_address, network_name, firmware_version,
	admin_state, ota_enabled, ota_target_version,
	api_key_hash, api_key_prefix, api_key_suffix,
	last_seen, free_heap, uptime_seconds, created_at, updated_at`

// GetByID retrieves a device by its unique identifier.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE id = ?`

	row := r.db.QueryRowContext(ctx, query, id)
	d, err := scanDevice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("querying device by id: %w", err)
	}
	return d, nil
}

// GetByMAC retrieves a device by its MAC address.
func (r *SQLiteRepository) GetByMAC(ctx context.Context, mac string) (*Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE mac = ?`

	row := r.db.QueryRowContext(ctx, query, mac)
	d, err := scanDevice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("querying device by mac: %w", err)
	}
	return d, nil
}

// GetByKeyHash retrieves a device by its API key hash.
func (r *SQLiteRepository) GetByKeyHash(ctx context.Context, hash string) (*Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE api_key_hash = ?`

	row := r.db.QueryRowContext(ctx, query, hash)
	d, err := scanDevice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("querying device by key hash: %w", err)
	}
	return d, nil
}

// List retrieves all devices ordered by name.
func (r *SQLiteRepository) List(ctx context.Context) ([]Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices ORDER BY name`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close() //nolint:errcheck // Read-only iteration

	var devices []Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning device: %w", err)
		}
		devices = append(devices, *d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating devices: %w", err)
	}

	return devices, nil
}

// Create inserts a new device.
func (r *SQLiteRepository) Create(ctx context.Context, device *Device) error {
	now := time.Now().UTC()
	if device.CreatedAt.IsZero() {
		device.CreatedAt = now
	}
	device.UpdatedAt = now

	query := `
		INSERT INTO devices (
			id, mac, name, ip_address, network_name, firmware_version,
			admin_state, ota_enabled, ota_target_version,
			api_key_hash, api_key_prefix, api_key_suffix,
			last_seen, free_heap, uptime_seconds, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		device.ID,
		device.MAC,
		device.Name,
		device.IPAddress,
		device.NetworkName,
		device.FirmwareVersion,
		string(device.AdminState),
		boolToInt(device.OTAEnabled),
		nullableString(device.OTATargetVersion),
		device.APIKeyHash,
		device.APIKeyPrefix,
		device.APIKeySuffix,
		nullableTime(device.LastSeen),
		device.FreeHeap,
		device.UptimeSeconds,
		device.CreatedAt.Format(time.RFC3339),
		device.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrDeviceExists
		}
		return fmt.Errorf("inserting device: %w", err)
	}

	return nil
}

// Update modifies an existing device.
// The MAC column is deliberately absent: it is immutable after registration.
func (r *SQLiteRepository) Update(ctx context.Context, device *Device) error {
	device.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE devices SET
			name = ?, ip_address = ?, network_name = ?, firmware_version = ?,
			admin_state = ?, ota_enabled = ?, ota_target_version = ?,
			last_seen = ?, free_heap = ?, uptime_seconds = ?, updated_at = ?
		WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query,
		device.Name,
		device.IPAddress,
		device.NetworkName,
		device.FirmwareVersion,
		string(device.AdminState),
		boolToInt(device.OTAEnabled),
		nullableString(device.OTATargetVersion),
		nullableTime(device.LastSeen),
		device.FreeHeap,
		device.UptimeSeconds,
		device.UpdatedAt.Format(time.RFC3339),
		device.ID,
	)
	if err != nil {
		return fmt.Errorf("updating device: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking update result: %w", err)
	}
	if affected == 0 {
		return ErrDeviceNotFound
	}

	return nil
}

// Delete removes a device by ID.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM devices WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting device: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking delete result: %w", err)
	}
	if affected == 0 {
		return ErrDeviceNotFound
	}

	return nil
}

// UpdateHeartbeat applies device-reported facts and advances last_seen.
func (r *SQLiteRepository) UpdateHeartbeat(ctx context.Context, id string, facts HeartbeatFacts, seen time.Time) error {
	query := `
		UPDATE devices SET
			ip_address = ?, network_name = ?, firmware_version = ?,
			free_heap = ?, uptime_seconds = ?, last_seen = ?, updated_at = ?
		WHERE id = ?`

	now := time.Now().UTC().Format(time.RFC3339)
	result, err := r.db.ExecContext(ctx, query,
		facts.IPAddress,
		facts.NetworkName,
		facts.FirmwareVersion,
		facts.FreeHeap,
		facts.UptimeSeconds,
		seen.UTC().Format(time.RFC3339),
		now,
		id,
	)
	if err != nil {
		return fmt.Errorf("updating heartbeat: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking heartbeat result: %w", err)
	}
	if affected == 0 {
		return ErrDeviceNotFound
	}

	return nil
}

// rowScanner is an interface that sql.Row and sql.Rows both implement.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanDevice scans a row or rows result into a Device.
func scanDevice(scanner rowScanner) (*Device, error) {
	var d Device
	var otaTarget sql.NullString
	var lastSeen sql.NullString
	var otaEnabled int
	var adminState string
	var createdAt, updatedAt string

	err := scanner.Scan(
		&d.ID,
		&d.MAC,
		&d.Name,
		&d.IPAddress,
		&d.NetworkName,
		&d.FirmwareVersion,
		&adminState,
		&otaEnabled,
		&otaTarget,
		&d.APIKeyHash,
		&d.APIKeyPrefix,
		&d.APIKeySuffix,
		&lastSeen,
		&d.FreeHeap,
		&d.UptimeSeconds,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	d.AdminState = AdminState(adminState)
	d.OTAEnabled = otaEnabled != 0

	if otaTarget.Valid {
		d.OTATargetVersion = &otaTarget.String
	}
	if lastSeen.Valid {
		t, err := time.Parse(time.RFC3339, lastSeen.String)
		if err == nil {
			d.LastSeen = &t
		}
	}

	var parseErr error
	d.CreatedAt, parseErr = time.Parse(time.RFC3339, createdAt)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing created_at: %w", parseErr)
	}
	d.UpdatedAt, parseErr = time.Parse(time.RFC3339, updatedAt)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", parseErr)
	}

	return &d, nil
}

// nullableString returns a sql.NullString for optional string pointers.
func nullableString(s *string) sql.NullString {
	if s == nil || *s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// nullableTime returns a sql.NullString for optional time pointers (as RFC3339 strings).
func nullableTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339), Valid: true}
}

// boolToInt converts a boolean to 0/1 for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// isUniqueConstraintError checks if an error is a SQLite unique constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "unique constraint")
}
