package firmware

import (
	"time"

	"github.com/google/uuid"
)

// Release is the metadata for one immutable firmware version.
//
// The blob lives on disk named by its content hash ("<sha256>.bin").
// Metadata outlives the blob: deleting a release removes the bytes but
// keeps the row flagged BlobDeleted so devices still targeting the
// version get a defined outcome instead of a dangling reference.
type Release struct {
	ID          string    `json:"id"`
	Version     string    `json:"version"`
	ContentHash string    `json:"content_hash"`
	SizeBytes   int64     `json:"size_bytes"`
	BlobPath    string    `json:"-"`
	BlobDeleted bool      `json:"blob_deleted"`
	CreatedAt   time.Time `json:"created_at"`
}

// GenerateID creates a new unique release identifier.
func GenerateID() string {
	return uuid.NewString()
}
