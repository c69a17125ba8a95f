package firmware

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Repository defines the interface for release metadata persistence.
type Repository interface {
	// GetByID retrieves a release by ID.
	// Returns ErrReleaseNotFound if it does not exist.
	GetByID(ctx context.Context, id string) (*Release, error)

	// GetByVersion retrieves a release by version string.
	// Returns ErrReleaseNotFound if it does not exist.
	GetByVersion(ctx context.Context, version string) (*Release, error)

	// GetByHash retrieves a release by content hash.
	// Returns ErrReleaseNotFound if no release has that hash.
	GetByHash(ctx context.Context, hash string) (*Release, error)

	// List retrieves all releases, newest first.
	List(ctx context.Context) ([]Release, error)

	// Create inserts a new release.
	// Returns ErrDuplicateVersion if the version already exists.
	Create(ctx context.Context, release *Release) error

	// MarkBlobDeleted flags a release's blob as removed.
	MarkBlobDeleted(ctx context.Context, id string) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed firmware repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const releaseColumns = `id, version, content_hash, size_bytes, blob_path, blob_deleted, created_at`

// GetByID retrieves a release by ID.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Release, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+releaseColumns+` FROM firmware_releases WHERE id = ?`, id)
	return scanRelease(row, "querying release by id")
}

// GetByVersion retrieves a release by version string.
func (r *SQLiteRepository) GetByVersion(ctx context.Context, version string) (*Release, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+releaseColumns+` FROM firmware_releases WHERE version = ?`, version)
	return scanRelease(row, "querying release by version")
}

// GetByHash retrieves a release by content hash.
func (r *SQLiteRepository) GetByHash(ctx context.Context, hash string) (*Release, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+releaseColumns+` FROM firmware_releases WHERE content_hash = ?`, hash)
	return scanRelease(row, "querying release by hash")
}

// List retrieves all releases, newest first.
func (r *SQLiteRepository) List(ctx context.Context) ([]Release, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+releaseColumns+` FROM firmware_releases ORDER BY created_at DESC, version DESC`)
	if err != nil {
		return nil, fmt.Errorf("querying releases: %w", err)
	}
	defer rows.Close() //nolint:errcheck // Read-only iteration

	var releases []Release
	for rows.Next() {
		rel, err := scanReleaseRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning release: %w", err)
		}
		releases = append(releases, *rel)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating releases: %w", err)
	}

	return releases, nil
}

// Create inserts a new release.
func (r *SQLiteRepository) Create(ctx context.Context, release *Release) error {
	if release.CreatedAt.IsZero() {
		release.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO firmware_releases (id, version, content_hash, size_bytes, blob_path, blob_deleted, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		release.ID,
		release.Version,
		release.ContentHash,
		release.SizeBytes,
		release.BlobPath,
		boolToInt(release.BlobDeleted),
		release.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrDuplicateVersion
		}
		return fmt.Errorf("inserting release: %w", err)
	}

	return nil
}

// MarkBlobDeleted flags a release's blob as removed.
func (r *SQLiteRepository) MarkBlobDeleted(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		"UPDATE firmware_releases SET blob_deleted = 1 WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("marking blob deleted: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking mark result: %w", err)
	}
	if affected == 0 {
		return ErrReleaseNotFound
	}

	return nil
}

// rowScanner is an interface that sql.Row and sql.Rows both implement.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRelease(row *sql.Row, opDesc string) (*Release, error) {
	rel, err := scanReleaseRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrReleaseNotFound
		}
		return nil, fmt.Errorf("%s: %w", opDesc, err)
	}
	return rel, nil
}

func scanReleaseRow(scanner rowScanner) (*Release, error) {
	var rel Release
	var blobDeleted int
	var createdAt string

	err := scanner.Scan(
		&rel.ID,
		&rel.Version,
		&rel.ContentHash,
		&rel.SizeBytes,
		&rel.BlobPath,
		&blobDeleted,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}

	rel.BlobDeleted = blobDeleted != 0

	t, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	rel.CreatedAt = t

	return &rel, nil
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
