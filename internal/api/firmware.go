package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/pillfleet/pillfleet-core/internal/firmware"
)

// handleFirmwareUpload accepts a streamed multipart firmware image.
//
// Expected parts, in order: optional "version" and "hash" text fields,
// then the "image" file part. The image is streamed straight into the
// firmware registry; it is never buffered in memory, and the handler
// holds no lock shared with other requests. The body cap comes from
// firmware.max_upload_bytes, not the global request limit.
func (s *Server) handleFirmwareUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.fwCfg.MaxUploadBytes)

	mr, err := r.MultipartReader()
	if err != nil {
		writeBadRequest(w, "expected multipart/form-data")
		return
	}

	var version, declaredHash string
	var release *firmware.Release

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			writeBadRequest(w, "reading multipart body failed")
			return
		}

		switch part.FormName() {
		case "version":
			version = readFormValue(part)
		case "hash":
			declaredHash = readFormValue(part)
		case "image":
			release, err = s.releases.Store(r.Context(), version, declaredHash, part)
			part.Close() //nolint:errcheck // Reader fully consumed or abandoned
			if err != nil {
				s.writeFirmwareStoreError(w, err)
				return
			}
		default:
			part.Close() //nolint:errcheck // Unknown part skipped
		}
	}

	if release == nil {
		writeBadRequest(w, "missing image part")
		return
	}

	s.logger.Info("firmware uploaded",
		"version", release.Version, "hash", release.ContentHash, "size_bytes", release.SizeBytes)

	writeJSON(w, http.StatusCreated, release)
}

// readFormValue reads a small text form part.
func readFormValue(part io.ReadCloser) string {
	defer part.Close() //nolint:errcheck // Small in-memory read
	// Version and hash fields are tiny; 256 bytes is generous.
	b, _ := io.ReadAll(io.LimitReader(part, 256))
	return strings.TrimSpace(string(b))
}

// writeFirmwareStoreError maps firmware store failures to HTTP responses.
func (s *Server) writeFirmwareStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, firmware.ErrDuplicateVersion):
		writeConflict(w, "version already exists")
	case errors.Is(err, firmware.ErrDuplicateContent):
		writeConflict(w, err.Error())
	case errors.Is(err, firmware.ErrHashMismatch):
		writeValidationError(w, err.Error())
	case errors.Is(err, firmware.ErrInvalidVersion), errors.Is(err, firmware.ErrEmptyUpload):
		writeValidationError(w, err.Error())
	default:
		s.logger.Error("storing firmware", "error", err)
		writeInternalError(w, "storing firmware failed")
	}
}

// handleListFirmware returns all releases, newest first.
func (s *Server) handleListFirmware(w http.ResponseWriter, r *http.Request) {
	releases, err := s.releases.List(r.Context())
	if err != nil {
		s.logger.Error("listing firmware", "error", err)
		writeInternalError(w, "listing firmware failed")
		return
	}
	if releases == nil {
		releases = []firmware.Release{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"releases": releases,
		"count":    len(releases),
	})
}

// handleDeleteFirmware removes a release's blob. The metadata row
// survives so devices pinned to the version resolve to "target missing".
func (s *Server) handleDeleteFirmware(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.releases.Delete(r.Context(), id); err != nil {
		if errors.Is(err, firmware.ErrReleaseNotFound) {
			writeNotFound(w, "release not found")
			return
		}
		s.logger.Error("deleting firmware", "release_id", id, "error", err)
		writeInternalError(w, "deleting firmware failed")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleFirmwareDownload streams a firmware image to a device.
//
// The file handle is scoped to this request: concurrent downloads and
// uploads never contend. The Content-Length and hash headers let the
// device preallocate and verify before flashing.
func (s *Server) handleFirmwareDownload(w http.ResponseWriter, r *http.Request) {
	version := chi.URLParam(r, "version")

	rc, release, err := s.releases.Open(r.Context(), version)
	if err != nil {
		switch {
		case errors.Is(err, firmware.ErrReleaseNotFound):
			writeNotFound(w, "release not found")
		case errors.Is(err, firmware.ErrBlobMissing):
			writeNotFound(w, "firmware image no longer available")
		default:
			s.logger.Error("opening firmware blob", "version", version, "error", err)
			writeInternalError(w, "opening firmware failed")
		}
		return
	}
	defer rc.Close() //nolint:errcheck // Read-only stream

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.FormatInt(release.SizeBytes, 10))
	w.Header().Set("X-Content-Hash", release.ContentHash)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", release.Version+".bin"))

	if _, err := io.Copy(w, rc); err != nil {
		// Client disconnects mid-flash attempt are routine on flaky
		// appliance Wi-Fi; log at debug, not error.
		s.logger.Debug("firmware download interrupted", "version", version, "error", err)
	}
}
