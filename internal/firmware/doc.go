// Package firmware provides the firmware release registry for PillFleet Core.
//
// Releases are immutable: a version is uploaded once and never
// replaced. Metadata (version, SHA-256 content hash, size) lives in
// SQLite; the image bytes live on disk in a content-addressed blob
// ("<sha256>.bin").
//
// # Integrity
//
// Uploads are hashed while streaming to a temp file, never buffered
// wholesale. The declared hash (when provided) is verified before the
// blob is placed; any failure removes the partial file. A device
// downloading an image verifies the same hash before flashing, so a
// corrupted artifact can never reach a dispenser.
//
// # Deletion
//
// Deleting a release removes the blob but keeps the metadata row
// flagged blob_deleted. Devices still pinned to the version get a
// defined "target missing" outcome from the OTA decision instead of a
// dangling reference.
//
// # Usage
//
//	registry, err := firmware.NewRegistry(firmware.NewSQLiteRepository(db.DB), cfg.Firmware.Dir)
//
//	release, err := registry.Store(ctx, "1.4.2", declaredHash, uploadBody)
//
//	rc, release, err := registry.Open(ctx, "1.4.2")
//	defer rc.Close()
package firmware
