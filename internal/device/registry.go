package device

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"
)

// Logger defines the logging interface used by the Registry.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// stripeCount is the number of per-device mutex stripes.
// Heartbeats for the same device serialise on one stripe; devices on
// different stripes never contend.
const stripeCount = 64

// Registry provides fleet device management with caching and
// per-device serialisation.
//
// It wraps a Repository and adds an in-memory cache for fast lookups
// plus mutex striping so concurrent heartbeats from the same device
// apply in order. There is no global cross-device lock.
//
// All public methods are thread-safe.
type Registry struct {
	repo      Repository
	staleness time.Duration

	cache   map[string]*Device // Cached devices by ID
	cacheMu sync.RWMutex       // Protects cache

	stripes [stripeCount]sync.Mutex

	logger Logger
}

// NewRegistry creates a new device registry.
//
// Parameters:
//   - repo: Persistence backend
//   - staleness: Silence interval after which a device counts as offline
func NewRegistry(repo Repository, staleness time.Duration) *Registry {
	return &Registry{
		repo:      repo,
		staleness: staleness,
		cache:     make(map[string]*Device),
		logger:    noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// Staleness returns the configured staleness threshold.
func (r *Registry) Staleness() time.Duration {
	return r.staleness
}

// stripe returns the mutex serialising operations for a device ID.
func (r *Registry) stripe(id string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(id)) //nolint:errcheck // fnv Write never fails
	return &r.stripes[h.Sum32()%stripeCount]
}

// RefreshCache reloads all devices from the repository into the cache.
// This should be called on application startup.
func (r *Registry) RefreshCache(ctx context.Context) error {
	devices, err := r.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading devices: %w", err)
	}

	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()

	r.cache = make(map[string]*Device, len(devices))
	for i := range devices {
		d := devices[i]
		r.cache[d.ID] = d.DeepCopy()
	}

	r.logger.Info("device cache refreshed", "count", len(devices))
	return nil
}

// Register creates a new device record and issues its API key.
//
// The raw key is returned exactly once; only its hash and a masked
// prefix/suffix are stored. Returns ErrDeviceExists if the MAC is
// already registered.
//
// Returns:
//   - *Device: The created device
//   - string: The raw API key (show once, never again)
//   - error: Validation or persistence failure
func (r *Registry) Register(ctx context.Context, mac, name string) (*Device, string, error) {
	normalised, err := NormalizeMAC(mac)
	if err != nil {
		return nil, "", err
	}
	if err := ValidateName(name); err != nil {
		return nil, "", err
	}

	raw, hash, prefix, suffix, err := IssueKey()
	if err != nil {
		return nil, "", err
	}

	d := &Device{
		ID:           GenerateID(),
		MAC:          normalised,
		Name:         name,
		AdminState:   StatePending,
		APIKeyHash:   hash,
		APIKeyPrefix: prefix,
		APIKeySuffix: suffix,
	}

	if err := r.repo.Create(ctx, d); err != nil {
		return nil, "", err
	}

	r.cacheMu.Lock()
	r.cache[d.ID] = d.DeepCopy()
	r.cacheMu.Unlock()

	r.logger.Info("device registered", "id", d.ID, "mac", d.MAC, "key", d.MaskedKey())
	return d, raw, nil
}

// Authenticate resolves a raw API key to a device.
//
// Unknown keys return ErrUnauthorized. Administrative state is NOT
// checked here; the ingress decides what a blocked or suspended device
// may do.
func (r *Registry) Authenticate(ctx context.Context, rawKey string) (*Device, error) {
	if rawKey == "" {
		return nil, ErrUnauthorized
	}

	hash := HashKey(rawKey)

	// The cache holds every device, so scan it before touching the
	// repository. Heartbeats hit this on every request.
	r.cacheMu.RLock()
	for _, d := range r.cache {
		if d.APIKeyHash == hash {
			cpy := d.DeepCopy()
			r.cacheMu.RUnlock()
			return cpy, nil
		}
	}
	r.cacheMu.RUnlock()

	d, err := r.repo.GetByKeyHash(ctx, hash)
	if err != nil {
		if errors.Is(err, ErrDeviceNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, err
	}

	r.cacheMu.Lock()
	r.cache[d.ID] = d.DeepCopy()
	r.cacheMu.Unlock()

	return d, nil
}

// ReportHeartbeat applies device-reported facts and advances last_seen.
//
// Callers must have already authenticated the device and applied the
// blocked-state gate; this method unconditionally records contact.
// Heartbeats for the same device serialise on a mutex stripe so facts
// are applied in arrival order.
//
// The first verified heartbeat activates a pending device: the key
// checked out, which is the evidence enrolment waits for. Suspended
// and blocked are operator verdicts and are never touched here.
func (r *Registry) ReportHeartbeat(ctx context.Context, id string, facts HeartbeatFacts) error {
	mu := r.stripe(id)
	mu.Lock()
	defer mu.Unlock()

	seen := time.Now().UTC()
	if err := r.repo.UpdateHeartbeat(ctx, id, facts, seen); err != nil {
		return err
	}

	d, err := r.getForUpdate(ctx, id)
	if err != nil {
		return err
	}

	if d.AdminState == StatePending {
		d.AdminState = StateActive
		if err := r.repo.Update(ctx, d); err != nil {
			return err
		}
		r.logger.Info("device activated by first verified heartbeat", "id", id)
	}

	r.cacheMu.Lock()
	r.cache[id] = d.DeepCopy()
	r.cacheMu.Unlock()

	return nil
}

// Transition moves a device to a new administrative state.
//
// Any state can move to any other state: operators may block a device
// that has never been approved, or reinstate a blocked one directly to
// active. The only rejection is a target outside the enum.
func (r *Registry) Transition(ctx context.Context, id string, target AdminState) error {
	if !target.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidState, target)
	}

	mu := r.stripe(id)
	mu.Lock()
	defer mu.Unlock()

	d, err := r.getForUpdate(ctx, id)
	if err != nil {
		return err
	}

	from := d.AdminState
	d.AdminState = target
	if err := r.repo.Update(ctx, d); err != nil {
		return err
	}

	r.cacheMu.Lock()
	r.cache[id] = d.DeepCopy()
	r.cacheMu.Unlock()

	r.logger.Info("device state changed", "id", id, "from", from, "to", target)
	return nil
}

// SetOTA updates a device's OTA enablement and target version.
// A nil target clears the pin; the device then never upgrades until a
// new target is set.
func (r *Registry) SetOTA(ctx context.Context, id string, enabled bool, target *string) error {
	mu := r.stripe(id)
	mu.Lock()
	defer mu.Unlock()

	d, err := r.getForUpdate(ctx, id)
	if err != nil {
		return err
	}

	d.OTAEnabled = enabled
	d.OTATargetVersion = target
	if err := r.repo.Update(ctx, d); err != nil {
		return err
	}

	r.cacheMu.Lock()
	r.cache[id] = d.DeepCopy()
	r.cacheMu.Unlock()

	r.logger.Info("device ota updated", "id", id, "enabled", enabled, "target", target)
	return nil
}

// Rename changes a device's display name.
func (r *Registry) Rename(ctx context.Context, id, name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}

	mu := r.stripe(id)
	mu.Lock()
	defer mu.Unlock()

	d, err := r.getForUpdate(ctx, id)
	if err != nil {
		return err
	}

	d.Name = name
	if err := r.repo.Update(ctx, d); err != nil {
		return err
	}

	r.cacheMu.Lock()
	r.cache[id] = d.DeepCopy()
	r.cacheMu.Unlock()

	return nil
}

// GetDevice retrieves a device by ID.
// Returns ErrDeviceNotFound if the device does not exist.
// The returned device is a deep copy; callers can safely modify it.
func (r *Registry) GetDevice(ctx context.Context, id string) (*Device, error) {
	r.cacheMu.RLock()
	cached, ok := r.cache[id]
	r.cacheMu.RUnlock()

	if ok {
		return cached.DeepCopy(), nil
	}

	d, err := r.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	r.cacheMu.Lock()
	r.cache[id] = d.DeepCopy()
	r.cacheMu.Unlock()

	return d, nil
}

// ListDevices retrieves all devices.
// The returned devices are deep copies; callers can safely modify them.
func (r *Registry) ListDevices(ctx context.Context) ([]Device, error) {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	if len(r.cache) > 0 {
		devices := make([]Device, 0, len(r.cache))
		for _, d := range r.cache {
			devices = append(devices, *d.DeepCopy())
		}
		return devices, nil
	}

	return r.repo.List(ctx)
}

// DeleteDevice removes a device.
//
// An in-flight heartbeat from the deleted device resolves naturally:
// its next contact fails authentication.
func (r *Registry) DeleteDevice(ctx context.Context, id string) error {
	if err := r.repo.Delete(ctx, id); err != nil {
		return err
	}

	r.cacheMu.Lock()
	delete(r.cache, id)
	r.cacheMu.Unlock()

	r.logger.Info("device deleted", "id", id)
	return nil
}

// IsOnline reports whether a device is currently within the staleness
// threshold. Always derived from last_seen, never cached.
func (r *Registry) IsOnline(d *Device) bool {
	return d.IsOnline(time.Now().UTC(), r.staleness)
}

// Stats summarises fleet liveness and lifecycle distribution.
type Stats struct {
	Total   int                `json:"total"`
	Online  int                `json:"online"`
	Offline int                `json:"offline"`
	ByState map[AdminState]int `json:"by_state"`
}

// FleetStats computes the current fleet summary.
func (r *Registry) FleetStats(ctx context.Context) (*Stats, error) {
	devices, err := r.ListDevices(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	stats := &Stats{
		Total:   len(devices),
		ByState: make(map[AdminState]int),
	}
	for i := range devices {
		d := &devices[i]
		if d.IsOnline(now, r.staleness) {
			stats.Online++
		}
		stats.ByState[d.AdminState]++
	}
	stats.Offline = stats.Total - stats.Online

	return stats, nil
}

// getForUpdate fetches the authoritative row for mutation.
// Reads from the repository, not the cache, so updates never resurrect
// stale cached fields.
func (r *Registry) getForUpdate(ctx context.Context, id string) (*Device, error) {
	return r.repo.GetByID(ctx, id)
}
