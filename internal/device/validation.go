package device

import (
	"fmt"
	"regexp"
	"strings"
)

// Validation limits.
const (
	// maxNameLength bounds device names for UI and log sanity.
	maxNameLength = 100
)

// macPattern matches six colon-separated hex octets.
var macPattern = regexp.MustCompile(`^([0-9a-f]{2}:){5}[0-9a-f]{2}$`)

// NormalizeMAC canonicalises a MAC address to lowercase colon form.
// Accepts separators ":" and "-"; returns ErrInvalidMAC for anything
// that is not six hex octets.
func NormalizeMAC(mac string) (string, error) {
	m := strings.ToLower(strings.TrimSpace(mac))
	m = strings.ReplaceAll(m, "-", ":")
	if !macPattern.MatchString(m) {
		return "", fmt.Errorf("%w: %q", ErrInvalidMAC, mac)
	}
	return m, nil
}

// ValidateName checks a device name is non-empty and within length limits.
func ValidateName(name string) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidName)
	}
	if len(trimmed) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidName, maxNameLength)
	}
	return nil
}
