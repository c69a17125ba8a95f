package device

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// MockRepository is an in-memory Repository for unit tests.
type MockRepository struct {
	mu      sync.Mutex
	devices map[string]*Device

	// failWith, when set, is returned by every method.
	failWith error
}

func NewMockRepository() *MockRepository {
	return &MockRepository{devices: make(map[string]*Device)}
}

func (m *MockRepository) GetByID(_ context.Context, id string) (*Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	d, ok := m.devices[id]
	if !ok {
		return nil, ErrDeviceNotFound
	}
	return d.DeepCopy(), nil
}

func (m *MockRepository) GetByMAC(_ context.Context, mac string) (*Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	for _, d := range m.devices {
		if d.MAC == mac {
			return d.DeepCopy(), nil
		}
	}
	return nil, ErrDeviceNotFound
}

func (m *MockRepository) GetByKeyHash(_ context.Context, hash string) (*Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	for _, d := range m.devices {
		if d.APIKeyHash == hash {
			return d.DeepCopy(), nil
		}
	}
	return nil, ErrDeviceNotFound
}

func (m *MockRepository) List(_ context.Context) ([]Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	out := make([]Device, 0, len(m.devices))
	for _, d := range m.devices {
		out = append(out, *d.DeepCopy())
	}
	return out, nil
}

func (m *MockRepository) Create(_ context.Context, d *Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	for _, existing := range m.devices {
		if existing.MAC == d.MAC {
			return ErrDeviceExists
		}
	}
	now := time.Now().UTC()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	d.UpdatedAt = now
	m.devices[d.ID] = d.DeepCopy()
	return nil
}

func (m *MockRepository) Update(_ context.Context, d *Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	if _, ok := m.devices[d.ID]; !ok {
		return ErrDeviceNotFound
	}
	d.UpdatedAt = time.Now().UTC()
	m.devices[d.ID] = d.DeepCopy()
	return nil
}

func (m *MockRepository) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	if _, ok := m.devices[id]; !ok {
		return ErrDeviceNotFound
	}
	delete(m.devices, id)
	return nil
}

func (m *MockRepository) UpdateHeartbeat(_ context.Context, id string, facts HeartbeatFacts, seen time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	d, ok := m.devices[id]
	if !ok {
		return ErrDeviceNotFound
	}
	d.IPAddress = facts.IPAddress
	d.NetworkName = facts.NetworkName
	d.FirmwareVersion = facts.FirmwareVersion
	d.FreeHeap = facts.FreeHeap
	d.UptimeSeconds = facts.UptimeSeconds
	d.LastSeen = &seen
	return nil
}

const testStaleness = 90 * time.Second

func newTestRegistry() (*Registry, *MockRepository) {
	repo := NewMockRepository()
	return NewRegistry(repo, testStaleness), repo
}

func TestRegister(t *testing.T) {
	ctx := context.Background()

	t.Run("creates device with pending state", func(t *testing.T) {
		reg, _ := newTestRegistry()

		d, rawKey, err := reg.Register(ctx, "AA:BB:CC:DD:EE:FF", "Ward 3 dispenser")
		if err != nil {
			t.Fatalf("Register() error = %v", err)
		}

		if d.AdminState != StatePending {
			t.Errorf("AdminState = %q, want %q", d.AdminState, StatePending)
		}
		if d.MAC != "aa:bb:cc:dd:ee:ff" {
			t.Errorf("MAC = %q, want normalised lowercase", d.MAC)
		}
		if rawKey == "" {
			t.Fatal("expected raw key to be returned")
		}
		if HashKey(rawKey) != d.APIKeyHash {
			t.Error("stored hash does not match raw key")
		}
		if d.APIKeyPrefix == "" || d.APIKeySuffix == "" {
			t.Error("expected masked prefix and suffix to be set")
		}
	})

	t.Run("rejects duplicate mac", func(t *testing.T) {
		reg, _ := newTestRegistry()

		if _, _, err := reg.Register(ctx, "aa:bb:cc:dd:ee:ff", "first"); err != nil {
			t.Fatalf("first Register() error = %v", err)
		}

		_, _, err := reg.Register(ctx, "AA-BB-CC-DD-EE-FF", "second")
		if !errors.Is(err, ErrDeviceExists) {
			t.Errorf("Register() error = %v, want ErrDeviceExists", err)
		}
	})

	t.Run("rejects invalid mac", func(t *testing.T) {
		reg, _ := newTestRegistry()

		_, _, err := reg.Register(ctx, "not-a-mac", "dispenser")
		if !errors.Is(err, ErrInvalidMAC) {
			t.Errorf("Register() error = %v, want ErrInvalidMAC", err)
		}
	})

	t.Run("rejects empty name", func(t *testing.T) {
		reg, _ := newTestRegistry()

		_, _, err := reg.Register(ctx, "aa:bb:cc:dd:ee:ff", "  ")
		if !errors.Is(err, ErrInvalidName) {
			t.Errorf("Register() error = %v, want ErrInvalidName", err)
		}
	})
}

func TestAuthenticate(t *testing.T) {
	ctx := context.Background()

	t.Run("resolves raw key to device", func(t *testing.T) {
		reg, _ := newTestRegistry()

		created, rawKey, err := reg.Register(ctx, "aa:bb:cc:dd:ee:ff", "dispenser")
		if err != nil {
			t.Fatalf("Register() error = %v", err)
		}

		d, err := reg.Authenticate(ctx, rawKey)
		if err != nil {
			t.Fatalf("Authenticate() error = %v", err)
		}
		if d.ID != created.ID {
			t.Errorf("Authenticate() returned device %q, want %q", d.ID, created.ID)
		}
	})

	t.Run("unknown key is unauthorized", func(t *testing.T) {
		reg, _ := newTestRegistry()

		_, err := reg.Authenticate(ctx, "pfk_0000000000000000000000000000000000000000000000")
		if !errors.Is(err, ErrUnauthorized) {
			t.Errorf("Authenticate() error = %v, want ErrUnauthorized", err)
		}
	})

	t.Run("empty key is unauthorized", func(t *testing.T) {
		reg, _ := newTestRegistry()

		_, err := reg.Authenticate(ctx, "")
		if !errors.Is(err, ErrUnauthorized) {
			t.Errorf("Authenticate() error = %v, want ErrUnauthorized", err)
		}
	})

	t.Run("deleted device fails on next contact", func(t *testing.T) {
		reg, _ := newTestRegistry()

		created, rawKey, err := reg.Register(ctx, "aa:bb:cc:dd:ee:ff", "dispenser")
		if err != nil {
			t.Fatalf("Register() error = %v", err)
		}
		if err := reg.DeleteDevice(ctx, created.ID); err != nil {
			t.Fatalf("DeleteDevice() error = %v", err)
		}

		_, err = reg.Authenticate(ctx, rawKey)
		if !errors.Is(err, ErrUnauthorized) {
			t.Errorf("Authenticate() after delete error = %v, want ErrUnauthorized", err)
		}
	})
}

func TestReportHeartbeat(t *testing.T) {
	ctx := context.Background()
	reg, repo := newTestRegistry()

	d, _, err := reg.Register(ctx, "aa:bb:cc:dd:ee:ff", "dispenser")
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	facts := HeartbeatFacts{
		IPAddress:       "10.0.0.12",
		NetworkName:     "ward-wifi",
		FirmwareVersion: "1.4.2",
		FreeHeap:        148220,
		UptimeSeconds:   86400,
	}
	if err := reg.ReportHeartbeat(ctx, d.ID, facts); err != nil {
		t.Fatalf("ReportHeartbeat() error = %v", err)
	}

	stored, err := repo.GetByID(ctx, d.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if stored.LastSeen == nil {
		t.Fatal("last_seen not set after heartbeat")
	}
	if stored.FirmwareVersion != "1.4.2" {
		t.Errorf("FirmwareVersion = %q, want 1.4.2", stored.FirmwareVersion)
	}
	if stored.FreeHeap != 148220 {
		t.Errorf("FreeHeap = %d, want 148220", stored.FreeHeap)
	}

	// Cache must reflect the same facts.
	cached, err := reg.GetDevice(ctx, d.ID)
	if err != nil {
		t.Fatalf("GetDevice() error = %v", err)
	}
	if cached.LastSeen == nil {
		t.Error("cached last_seen not set after heartbeat")
	}
}

func TestHeartbeatActivation(t *testing.T) {
	ctx := context.Background()

	t.Run("first verified heartbeat activates a pending device", func(t *testing.T) {
		reg, repo := newTestRegistry()

		d, _, err := reg.Register(ctx, "aa:bb:cc:dd:ee:ff", "dispenser")
		if err != nil {
			t.Fatalf("Register() error = %v", err)
		}

		if err := reg.ReportHeartbeat(ctx, d.ID, HeartbeatFacts{FirmwareVersion: "1.0.0"}); err != nil {
			t.Fatalf("ReportHeartbeat() error = %v", err)
		}

		stored, err := repo.GetByID(ctx, d.ID)
		if err != nil {
			t.Fatalf("GetByID() error = %v", err)
		}
		if stored.AdminState != StateActive {
			t.Errorf("state = %q after first heartbeat, want %q", stored.AdminState, StateActive)
		}

		cached, err := reg.GetDevice(ctx, d.ID)
		if err != nil {
			t.Fatalf("GetDevice() error = %v", err)
		}
		if cached.AdminState != StateActive {
			t.Errorf("cached state = %q after first heartbeat, want %q", cached.AdminState, StateActive)
		}
	})

	t.Run("suspended device stays suspended", func(t *testing.T) {
		reg, repo := newTestRegistry()

		d, _, err := reg.Register(ctx, "aa:bb:cc:dd:ee:ff", "dispenser")
		if err != nil {
			t.Fatalf("Register() error = %v", err)
		}
		if err := reg.Transition(ctx, d.ID, StateSuspended); err != nil {
			t.Fatalf("Transition() error = %v", err)
		}

		if err := reg.ReportHeartbeat(ctx, d.ID, HeartbeatFacts{}); err != nil {
			t.Fatalf("ReportHeartbeat() error = %v", err)
		}

		stored, _ := repo.GetByID(ctx, d.ID)
		if stored.AdminState != StateSuspended {
			t.Errorf("state = %q after heartbeat, want suspended untouched", stored.AdminState)
		}
	})
}

func TestTransition(t *testing.T) {
	ctx := context.Background()

	t.Run("any state to any state", func(t *testing.T) {
		states := []AdminState{StatePending, StateActive, StateSuspended, StateBlocked}
		for _, from := range states {
			for _, to := range states {
				if from == to {
					continue
				}
				reg, repo := newTestRegistry()
				d, _, err := reg.Register(ctx, "aa:bb:cc:dd:ee:ff", "dispenser")
				if err != nil {
					t.Fatalf("Register() error = %v", err)
				}
				if err := reg.Transition(ctx, d.ID, from); err != nil {
					t.Fatalf("Transition(%s) error = %v", from, err)
				}
				if err := reg.Transition(ctx, d.ID, to); err != nil {
					t.Errorf("Transition %s -> %s error = %v", from, to, err)
				}
				stored, _ := repo.GetByID(ctx, d.ID)
				if stored.AdminState != to {
					t.Errorf("state = %q after transition, want %q", stored.AdminState, to)
				}
			}
		}
	})

	t.Run("rejects out-of-enum target", func(t *testing.T) {
		reg, repo := newTestRegistry()
		d, _, err := reg.Register(ctx, "aa:bb:cc:dd:ee:ff", "dispenser")
		if err != nil {
			t.Fatalf("Register() error = %v", err)
		}

		err = reg.Transition(ctx, d.ID, AdminState("retired"))
		if !errors.Is(err, ErrInvalidState) {
			t.Errorf("Transition() error = %v, want ErrInvalidState", err)
		}

		stored, _ := repo.GetByID(ctx, d.ID)
		if stored.AdminState != StatePending {
			t.Errorf("state = %q after rejected transition, want unchanged pending", stored.AdminState)
		}
	})

	t.Run("unknown device", func(t *testing.T) {
		reg, _ := newTestRegistry()
		err := reg.Transition(ctx, "nope", StateActive)
		if !errors.Is(err, ErrDeviceNotFound) {
			t.Errorf("Transition() error = %v, want ErrDeviceNotFound", err)
		}
	})
}

func TestIsOnline(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		lastSeen *time.Time
		want     bool
	}{
		{
			name:     "never seen",
			lastSeen: nil,
			want:     false,
		},
		{
			name:     "just under threshold",
			lastSeen: timePtr(now.Add(-testStaleness + time.Millisecond)),
			want:     true,
		},
		{
			name:     "exactly at threshold",
			lastSeen: timePtr(now.Add(-testStaleness)),
			want:     false,
		},
		{
			name:     "well past threshold",
			lastSeen: timePtr(now.Add(-10 * time.Minute)),
			want:     false,
		},
		{
			name:     "seen right now",
			lastSeen: timePtr(now),
			want:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &Device{LastSeen: tt.lastSeen}
			if got := d.IsOnline(now, testStaleness); got != tt.want {
				t.Errorf("IsOnline() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSetOTA(t *testing.T) {
	ctx := context.Background()
	reg, repo := newTestRegistry()

	d, _, err := reg.Register(ctx, "aa:bb:cc:dd:ee:ff", "dispenser")
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	target := "2.0.0"
	if err := reg.SetOTA(ctx, d.ID, true, &target); err != nil {
		t.Fatalf("SetOTA() error = %v", err)
	}

	stored, _ := repo.GetByID(ctx, d.ID)
	if !stored.OTAEnabled {
		t.Error("OTAEnabled = false, want true")
	}
	if stored.OTATargetVersion == nil || *stored.OTATargetVersion != "2.0.0" {
		t.Errorf("OTATargetVersion = %v, want 2.0.0", stored.OTATargetVersion)
	}

	// Clearing the target.
	if err := reg.SetOTA(ctx, d.ID, true, nil); err != nil {
		t.Fatalf("SetOTA() clear error = %v", err)
	}
	stored, _ = repo.GetByID(ctx, d.ID)
	if stored.OTATargetVersion != nil {
		t.Errorf("OTATargetVersion = %v after clear, want nil", stored.OTATargetVersion)
	}
}

func TestFleetStats(t *testing.T) {
	ctx := context.Background()
	reg, repo := newTestRegistry()

	online, _, err := reg.Register(ctx, "aa:bb:cc:dd:ee:01", "online dispenser")
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := reg.Transition(ctx, online.ID, StateActive); err != nil {
		t.Fatalf("Transition() error = %v", err)
	}
	if err := reg.ReportHeartbeat(ctx, online.ID, HeartbeatFacts{}); err != nil {
		t.Fatalf("ReportHeartbeat() error = %v", err)
	}

	if _, _, err := reg.Register(ctx, "aa:bb:cc:dd:ee:02", "silent dispenser"); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	_ = repo // stats read through the registry cache

	stats, err := reg.FleetStats(ctx)
	if err != nil {
		t.Fatalf("FleetStats() error = %v", err)
	}
	if stats.Total != 2 {
		t.Errorf("Total = %d, want 2", stats.Total)
	}
	if stats.Online != 1 {
		t.Errorf("Online = %d, want 1", stats.Online)
	}
	if stats.Offline != 1 {
		t.Errorf("Offline = %d, want 1", stats.Offline)
	}
	if stats.ByState[StateActive] != 1 || stats.ByState[StatePending] != 1 {
		t.Errorf("ByState = %v, want one active and one pending", stats.ByState)
	}
}

func TestConcurrentHeartbeats(t *testing.T) {
	ctx := context.Background()
	reg, _ := newTestRegistry()

	d, _, err := reg.Register(ctx, "aa:bb:cc:dd:ee:ff", "dispenser")
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			facts := HeartbeatFacts{UptimeSeconds: int64(n)}
			if err := reg.ReportHeartbeat(ctx, d.ID, facts); err != nil {
				t.Errorf("ReportHeartbeat() error = %v", err)
			}
		}(i)
	}
	wg.Wait()

	got, err := reg.GetDevice(ctx, d.ID)
	if err != nil {
		t.Fatalf("GetDevice() error = %v", err)
	}
	if got.LastSeen == nil {
		t.Error("last_seen not set after concurrent heartbeats")
	}
}

func timePtr(t time.Time) *time.Time {
	return &t
}
