package device

import (
	"errors"
	"strings"
	"testing"
)

func TestNormalizeMAC(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{
			name:  "lowercase colons",
			input: "aa:bb:cc:dd:ee:ff",
			want:  "aa:bb:cc:dd:ee:ff",
		},
		{
			name:  "uppercase colons",
			input: "AA:BB:CC:DD:EE:FF",
			want:  "aa:bb:cc:dd:ee:ff",
		},
		{
			name:  "dash separators",
			input: "AA-BB-CC-DD-EE-FF",
			want:  "aa:bb:cc:dd:ee:ff",
		},
		{
			name:  "surrounding whitespace",
			input: "  aa:bb:cc:dd:ee:ff  ",
			want:  "aa:bb:cc:dd:ee:ff",
		},
		{
			name:    "too short",
			input:   "aa:bb:cc:dd:ee",
			wantErr: true,
		},
		{
			name:    "non-hex",
			input:   "zz:bb:cc:dd:ee:ff",
			wantErr: true,
		},
		{
			name:    "empty",
			input:   "",
			wantErr: true,
		},
		{
			name:    "no separators",
			input:   "aabbccddeeff",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeMAC(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidMAC) {
					t.Errorf("NormalizeMAC(%q) error = %v, want ErrInvalidMAC", tt.input, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("NormalizeMAC(%q) error = %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("NormalizeMAC(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestValidateName(t *testing.T) {
	if err := ValidateName("Ward 3 dispenser"); err != nil {
		t.Errorf("ValidateName() error = %v", err)
	}

	if err := ValidateName(""); !errors.Is(err, ErrInvalidName) {
		t.Errorf("ValidateName(empty) error = %v, want ErrInvalidName", err)
	}

	if err := ValidateName("   "); !errors.Is(err, ErrInvalidName) {
		t.Errorf("ValidateName(blank) error = %v, want ErrInvalidName", err)
	}

	long := strings.Repeat("x", maxNameLength+1)
	if err := ValidateName(long); !errors.Is(err, ErrInvalidName) {
		t.Errorf("ValidateName(long) error = %v, want ErrInvalidName", err)
	}
}

func TestAdminStateIsValid(t *testing.T) {
	for _, s := range []AdminState{StatePending, StateActive, StateSuspended, StateBlocked} {
		if !s.IsValid() {
			t.Errorf("%q should be valid", s)
		}
	}
	for _, s := range []AdminState{"", "retired", "Pending", "ACTIVE"} {
		if s.IsValid() {
			t.Errorf("%q should be invalid", s)
		}
	}
}
