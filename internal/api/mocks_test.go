package api

import (
	"context"
	"sync"
	"time"

	"github.com/pillfleet/pillfleet-core/internal/alarm"
	"github.com/pillfleet/pillfleet-core/internal/command"
	"github.com/pillfleet/pillfleet-core/internal/device"
	"github.com/pillfleet/pillfleet-core/internal/firmware"
	"github.com/pillfleet/pillfleet-core/internal/schedule"
)

// In-memory repository implementations backing the handler tests.
// Firmware uses its real registry against t.TempDir(); everything else
// is mocked at the repository seam, the same boundary the package
// tests use.

type mockDeviceRepo struct {
	mu      sync.Mutex
	devices map[string]*device.Device
}

func newMockDeviceRepo() *mockDeviceRepo {
	return &mockDeviceRepo{devices: make(map[string]*device.Device)}
}

func (m *mockDeviceRepo) GetByID(_ context.Context, id string) (*device.Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.devices[id]
	if !ok {
		return nil, device.ErrDeviceNotFound
	}
	return d.DeepCopy(), nil
}

func (m *mockDeviceRepo) GetByMAC(_ context.Context, mac string) (*device.Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.devices {
		if d.MAC == mac {
			return d.DeepCopy(), nil
		}
	}
	return nil, device.ErrDeviceNotFound
}

func (m *mockDeviceRepo) GetByKeyHash(_ context.Context, hash string) (*device.Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.devices {
		if d.APIKeyHash == hash {
			return d.DeepCopy(), nil
		}
	}
	return nil, device.ErrDeviceNotFound
}

func (m *mockDeviceRepo) List(_ context.Context) ([]device.Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]device.Device, 0, len(m.devices))
	for _, d := range m.devices {
		out = append(out, *d.DeepCopy())
	}
	return out, nil
}

func (m *mockDeviceRepo) Create(_ context.Context, d *device.Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.devices {
		if existing.MAC == d.MAC {
			return device.ErrDeviceExists
		}
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	d.UpdatedAt = d.CreatedAt
	m.devices[d.ID] = d.DeepCopy()
	return nil
}

func (m *mockDeviceRepo) Update(_ context.Context, d *device.Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.devices[d.ID]; !ok {
		return device.ErrDeviceNotFound
	}
	d.UpdatedAt = time.Now().UTC()
	m.devices[d.ID] = d.DeepCopy()
	return nil
}

func (m *mockDeviceRepo) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.devices[id]; !ok {
		return device.ErrDeviceNotFound
	}
	delete(m.devices, id)
	return nil
}

func (m *mockDeviceRepo) UpdateHeartbeat(_ context.Context, id string, facts device.HeartbeatFacts, seen time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.devices[id]
	if !ok {
		return device.ErrDeviceNotFound
	}
	d.IPAddress = facts.IPAddress
	d.NetworkName = facts.NetworkName
	d.FirmwareVersion = facts.FirmwareVersion
	d.FreeHeap = facts.FreeHeap
	d.UptimeSeconds = facts.UptimeSeconds
	d.LastSeen = &seen
	d.UpdatedAt = seen
	return nil
}

type mockCommandRepo struct {
	mu       sync.Mutex
	nextID   int64
	commands []command.Command
}

func newMockCommandRepo() *mockCommandRepo {
	return &mockCommandRepo{}
}

func (m *mockCommandRepo) Enqueue(_ context.Context, deviceID, cmdType, payload string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if deviceID == "" {
		return 0, command.ErrDeviceRequired
	}
	if cmdType == "" {
		return 0, command.ErrInvalidType
	}
	m.nextID++
	m.commands = append(m.commands, command.Command{
		ID:         m.nextID,
		DeviceID:   deviceID,
		Type:       cmdType,
		Payload:    payload,
		EnqueuedAt: time.Now().UTC(),
	})
	return m.nextID, nil
}

func (m *mockCommandRepo) Drain(_ context.Context, deviceID string) ([]command.Command, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	var drained []command.Command
	for i := range m.commands {
		c := &m.commands[i]
		if c.DeviceID == deviceID && c.DeliveredAt == nil {
			c.DeliveredAt = &now
			drained = append(drained, *c)
		}
	}
	return drained, nil
}

func (m *mockCommandRepo) History(_ context.Context, deviceID string, limit int) ([]command.Command, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 {
		limit = 50
	}
	var out []command.Command
	for i := len(m.commands) - 1; i >= 0 && len(out) < limit; i-- {
		if m.commands[i].DeviceID == deviceID {
			out = append(out, m.commands[i])
		}
	}
	return out, nil
}

func (m *mockCommandRepo) DeleteForDevice(_ context.Context, deviceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.commands[:0]
	for _, c := range m.commands {
		if c.DeviceID != deviceID {
			kept = append(kept, c)
		}
	}
	m.commands = kept
	return nil
}

type mockFirmwareRepo struct {
	mu       sync.Mutex
	releases map[string]*firmware.Release
}

func newMockFirmwareRepo() *mockFirmwareRepo {
	return &mockFirmwareRepo{releases: make(map[string]*firmware.Release)}
}

func (m *mockFirmwareRepo) GetByID(_ context.Context, id string) (*firmware.Release, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rel, ok := m.releases[id]
	if !ok {
		return nil, firmware.ErrReleaseNotFound
	}
	cpy := *rel
	return &cpy, nil
}

func (m *mockFirmwareRepo) GetByVersion(_ context.Context, version string) (*firmware.Release, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rel := range m.releases {
		if rel.Version == version {
			cpy := *rel
			return &cpy, nil
		}
	}
	return nil, firmware.ErrReleaseNotFound
}

func (m *mockFirmwareRepo) GetByHash(_ context.Context, hash string) (*firmware.Release, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rel := range m.releases {
		if rel.ContentHash == hash {
			cpy := *rel
			return &cpy, nil
		}
	}
	return nil, firmware.ErrReleaseNotFound
}

func (m *mockFirmwareRepo) List(_ context.Context) ([]firmware.Release, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]firmware.Release, 0, len(m.releases))
	for _, rel := range m.releases {
		out = append(out, *rel)
	}
	return out, nil
}

func (m *mockFirmwareRepo) Create(_ context.Context, release *firmware.Release) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rel := range m.releases {
		if rel.Version == release.Version {
			return firmware.ErrDuplicateVersion
		}
	}
	if release.CreatedAt.IsZero() {
		release.CreatedAt = time.Now().UTC()
	}
	cpy := *release
	m.releases[release.ID] = &cpy
	return nil
}

func (m *mockFirmwareRepo) MarkBlobDeleted(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rel, ok := m.releases[id]
	if !ok {
		return firmware.ErrReleaseNotFound
	}
	rel.BlobDeleted = true
	return nil
}

type mockScheduleRepo struct {
	mu   sync.Mutex
	sets map[string]*schedule.Set
}

func newMockScheduleRepo() *mockScheduleRepo {
	return &mockScheduleRepo{sets: make(map[string]*schedule.Set)}
}

func (m *mockScheduleRepo) Get(_ context.Context, deviceID string) (*schedule.Set, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.sets[deviceID]
	if !ok {
		return nil, schedule.ErrScheduleNotFound
	}
	cpy := *set
	cpy.Entries = append([]schedule.Entry(nil), set.Entries...)
	return &cpy, nil
}

func (m *mockScheduleRepo) Put(_ context.Context, set *schedule.Set) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cpy := *set
	cpy.Entries = append([]schedule.Entry(nil), set.Entries...)
	m.sets[set.DeviceID] = &cpy
	return nil
}

func (m *mockScheduleRepo) Delete(_ context.Context, deviceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sets[deviceID]; !ok {
		return schedule.ErrScheduleNotFound
	}
	delete(m.sets, deviceID)
	return nil
}

type mockAlarmRepo struct {
	mu     sync.Mutex
	events []alarm.Event
}

func newMockAlarmRepo() *mockAlarmRepo {
	return &mockAlarmRepo{}
}

func (m *mockAlarmRepo) Create(_ context.Context, event *alarm.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, *event)
	return nil
}

func (m *mockAlarmRepo) List(_ context.Context, limit int) ([]alarm.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.newestFirst(m.events, limit), nil
}

func (m *mockAlarmRepo) ListByDevice(_ context.Context, deviceID string, limit int) ([]alarm.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var matched []alarm.Event
	for _, e := range m.events {
		if e.DeviceID == deviceID {
			matched = append(matched, e)
		}
	}
	return m.newestFirst(matched, limit), nil
}

func (m *mockAlarmRepo) newestFirst(events []alarm.Event, limit int) []alarm.Event {
	if limit <= 0 {
		limit = 50
	}
	out := make([]alarm.Event, 0, len(events))
	for i := len(events) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, events[i])
	}
	return out
}
