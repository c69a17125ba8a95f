package firmware

import "errors"

// Domain errors for the firmware package.
var (
	// ErrReleaseNotFound is returned when a version or ID does not exist.
	ErrReleaseNotFound = errors.New("firmware: release not found")

	// ErrDuplicateVersion is returned when uploading a version that
	// already exists. Releases are immutable: re-uploading the same
	// version is rejected whether or not the content matches.
	ErrDuplicateVersion = errors.New("firmware: version already exists")

	// ErrDuplicateContent is returned when uploaded bytes are identical
	// to an existing release under a different version. Two versions
	// with the same image almost always means a mislabelled build.
	ErrDuplicateContent = errors.New("firmware: identical content already released")

	// ErrHashMismatch is returned when the uploaded bytes do not match
	// the declared content hash.
	ErrHashMismatch = errors.New("firmware: content hash mismatch")

	// ErrBlobMissing is returned when release metadata exists but the
	// blob has been deleted.
	ErrBlobMissing = errors.New("firmware: blob deleted")

	// ErrInvalidVersion is returned when a version string fails validation.
	ErrInvalidVersion = errors.New("firmware: invalid version")

	// ErrEmptyUpload is returned when an upload contains no bytes.
	ErrEmptyUpload = errors.New("firmware: empty upload")
)
