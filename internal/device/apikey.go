package device

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// API key layout constants.
const (
	// apiKeyPrefix marks PillFleet device keys so they are recognisable
	// in logs and secret scanners.
	apiKeyPrefix = "pfk_"

	// apiKeyRandomBytes is the entropy of a device key (24 bytes = 48 hex chars).
	apiKeyRandomBytes = 24

	// maskPrefixLen and maskSuffixLen control the masked display form.
	maskPrefixLen = 8
	maskSuffixLen = 4
)

// IssueKey generates a new device API key.
//
// The raw key is returned for one-time display; only the hash and the
// masked prefix/suffix are ever persisted.
//
// Returns:
//   - raw: The full key (e.g. "pfk_3f9a...")
//   - hash: SHA-256 hex of the raw key, for storage and lookup
//   - prefix, suffix: masked display fragments
func IssueKey() (raw, hash, prefix, suffix string, err error) {
	b := make([]byte, apiKeyRandomBytes)
	if _, err := rand.Read(b); err != nil {
		return "", "", "", "", fmt.Errorf("generating api key: %w", err)
	}

	raw = apiKeyPrefix + hex.EncodeToString(b)
	hash = HashKey(raw)
	prefix = raw[:maskPrefixLen]
	suffix = raw[len(raw)-maskSuffixLen:]

	return raw, hash, prefix, suffix, nil
}

// HashKey returns the SHA-256 hex digest of a raw API key.
// Keys are stored and looked up by hash only; a database leak does not
// expose usable credentials.
func HashKey(raw string) string {
	h := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(h[:])
}
