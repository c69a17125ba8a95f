package firmware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Logger defines the logging interface used by the Registry.
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

// blobDirPermissions is the permission mode for the blob directory.
const blobDirPermissions = 0750

// versionPattern bounds version strings to simple dotted identifiers
// ("1.4.2", "2.0.0-rc1"). Keeps them safe in topic names and URLs.
var versionPattern = regexp.MustCompile(`^[0-9A-Za-z][0-9A-Za-z._-]{0,63}$`)

// Registry manages firmware releases: metadata in SQLite, blobs on
// disk named by content hash.
//
// Uploads stream through a SHA-256 hash into a temp file; nothing is
// ever buffered wholesale in memory, so artifact size is bounded by
// disk, not RAM. Any failure removes the partial blob.
type Registry struct {
	repo   Repository
	dir    string
	logger Logger
}

// NewRegistry creates a firmware registry storing blobs under dir.
// The directory is created if it does not exist.
func NewRegistry(repo Repository, dir string) (*Registry, error) {
	if err := os.MkdirAll(dir, blobDirPermissions); err != nil {
		return nil, fmt.Errorf("creating firmware directory: %w", err)
	}
	return &Registry{
		repo:   repo,
		dir:    dir,
		logger: noopLogger{},
	}, nil
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// Store streams a firmware image to disk and records its release.
//
// The upload is hashed while writing. If expectedHash is non-empty and
// the streamed bytes hash differently, the upload is rejected with
// ErrHashMismatch and the partial blob removed. Duplicate versions and
// duplicate content are rejected; releases are immutable.
//
// Parameters:
//   - version: Release version string (unique)
//   - expectedHash: Optional SHA-256 hex the uploader claims; "" skips the check
//   - src: The image bytes; read exactly once
//
// Returns:
//   - *Release: The recorded release
//   - error: Validation, hashing, or persistence failure (no partial state)
func (r *Registry) Store(ctx context.Context, version, expectedHash string, src io.Reader) (*Release, error) {
	version = strings.TrimSpace(version)
	if !versionPattern.MatchString(version) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidVersion, version)
	}

	// Fail fast on a known version before touching the disk. The
	// unique constraint still backstops a concurrent upload race.
	if _, err := r.repo.GetByVersion(ctx, version); err == nil {
		return nil, ErrDuplicateVersion
	}

	tmp, err := os.CreateTemp(r.dir, "upload-*.partial")
	if err != nil {
		return nil, fmt.Errorf("creating upload temp file: %w", err)
	}
	tmpPath := tmp.Name()

	cleanup := func() {
		tmp.Close()        //nolint:errcheck // Best effort on error path
		os.Remove(tmpPath) //nolint:errcheck // Best effort on error path
	}

	hasher := sha256.New()
	size, err := io.Copy(io.MultiWriter(tmp, hasher), src)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("streaming upload: %w", err)
	}
	if size == 0 {
		cleanup()
		return nil, ErrEmptyUpload
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath) //nolint:errcheck // Best effort on error path
		return nil, fmt.Errorf("closing upload temp file: %w", err)
	}

	hash := hex.EncodeToString(hasher.Sum(nil))

	if expectedHash != "" && !strings.EqualFold(expectedHash, hash) {
		os.Remove(tmpPath) //nolint:errcheck // Best effort on error path
		return nil, fmt.Errorf("%w: declared %s, got %s", ErrHashMismatch, expectedHash, hash)
	}

	// Identical bytes under a different version label is almost always
	// a mislabelled build; reject rather than silently alias.
	if existing, err := r.repo.GetByHash(ctx, hash); err == nil {
		os.Remove(tmpPath) //nolint:errcheck // Best effort on error path
		return nil, fmt.Errorf("%w: matches version %s", ErrDuplicateContent, existing.Version)
	}

	blobPath := filepath.Join(r.dir, hash+".bin")
	if err := os.Rename(tmpPath, blobPath); err != nil {
		os.Remove(tmpPath) //nolint:errcheck // Best effort on error path
		return nil, fmt.Errorf("placing blob: %w", err)
	}

	release := &Release{
		ID:          GenerateID(),
		Version:     version,
		ContentHash: hash,
		SizeBytes:   size,
		BlobPath:    blobPath,
	}

	if err := r.repo.Create(ctx, release); err != nil {
		// A racing upload of identical bytes can land on the same
		// content-addressed path and win; only remove the blob when no
		// surviving release references this hash.
		if _, hashErr := r.repo.GetByHash(ctx, hash); errors.Is(hashErr, ErrReleaseNotFound) {
			os.Remove(blobPath) //nolint:errcheck // Best effort on error path
		}
		return nil, err
	}

	r.logger.Info("firmware stored", "version", version, "hash", hash, "size_bytes", size)
	return release, nil
}

// Lookup retrieves release metadata by version.
// Returns ErrReleaseNotFound if the version does not exist. Metadata is
// returned even when the blob has been deleted; callers check
// BlobDeleted when they need the bytes.
func (r *Registry) Lookup(ctx context.Context, version string) (*Release, error) {
	return r.repo.GetByVersion(ctx, version)
}

// Open returns a reader over the blob for a version, for device download.
//
// The caller owns the returned ReadCloser and must close it; the file
// handle is independent of all registry state, so concurrent downloads
// and uploads never contend.
//
// Returns ErrReleaseNotFound for unknown versions and ErrBlobMissing
// when metadata survives but the blob was deleted.
func (r *Registry) Open(ctx context.Context, version string) (io.ReadCloser, *Release, error) {
	release, err := r.repo.GetByVersion(ctx, version)
	if err != nil {
		return nil, nil, err
	}
	if release.BlobDeleted {
		return nil, nil, fmt.Errorf("%w: version %s", ErrBlobMissing, version)
	}

	f, err := os.Open(release.BlobPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, fmt.Errorf("%w: version %s", ErrBlobMissing, version)
		}
		return nil, nil, fmt.Errorf("opening blob: %w", err)
	}

	return f, release, nil
}

// Delete removes a release's blob but retains its metadata flagged
// BlobDeleted. Devices still targeting the version get a defined
// "target missing" outcome instead of a dangling reference.
func (r *Registry) Delete(ctx context.Context, id string) error {
	release, err := r.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if !release.BlobDeleted {
		if err := os.Remove(release.BlobPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing blob: %w", err)
		}
	}

	if err := r.repo.MarkBlobDeleted(ctx, id); err != nil {
		return err
	}

	r.logger.Info("firmware blob deleted", "id", id, "version", release.Version)
	return nil
}

// List retrieves all releases, newest first.
func (r *Registry) List(ctx context.Context) ([]Release, error) {
	return r.repo.List(ctx)
}
