package schedule

import (
	"fmt"
	"regexp"
	"time"
)

// Dispensers have six compartments, numbered 0-5.
const maxCompartment = 5

var (
	ledColorPattern = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)
	timePattern     = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)
)

// Entry is one dose slot in a device's schedule: which compartment
// opens, when, on which weekdays, and what the carousel LED shows.
type Entry struct {
	Compartment int    `json:"compartment"`
	LEDColor    string `json:"led_color"`
	Medication  string `json:"medication"`
	Dosage      string `json:"dosage"`
	Time        string `json:"time"` // "HH:MM", device-local
	Days        []int  `json:"days"` // 0 = Sunday .. 6 = Saturday
}

// Validate checks a single entry.
func (e *Entry) Validate() error {
	if e.Compartment < 0 || e.Compartment > maxCompartment {
		return fmt.Errorf("%w: compartment %d out of range 0-%d", ErrInvalidEntry, e.Compartment, maxCompartment)
	}
	if e.LEDColor != "" && !ledColorPattern.MatchString(e.LEDColor) {
		return fmt.Errorf("%w: led colour %q is not #RRGGBB", ErrInvalidEntry, e.LEDColor)
	}
	if e.Medication == "" {
		return fmt.Errorf("%w: medication required", ErrInvalidEntry)
	}
	if !timePattern.MatchString(e.Time) {
		return fmt.Errorf("%w: time %q is not HH:MM", ErrInvalidEntry, e.Time)
	}
	if len(e.Days) == 0 {
		return fmt.Errorf("%w: at least one day required", ErrInvalidEntry)
	}
	for _, d := range e.Days {
		if d < 0 || d > 6 {
			return fmt.Errorf("%w: day %d out of range 0-6", ErrInvalidEntry, d)
		}
	}
	return nil
}

// Set is the complete schedule for one device. Writes replace the
// whole set; there are no per-entry updates.
type Set struct {
	DeviceID  string    `json:"device_id"`
	Entries   []Entry   `json:"entries"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks every entry in the set.
func (s *Set) Validate() error {
	for i := range s.Entries {
		if err := s.Entries[i].Validate(); err != nil {
			return fmt.Errorf("entry %d: %w", i, err)
		}
	}
	return nil
}
