package device

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/nerrad567/fleet-telemetry-core/internal/geo"
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

// Options configures a Registry.
type Options struct {
	// Origin is the reference point for distance and signal.
	Origin geo.Point

	// Catalog is the set of statically configured devices seeded by Load.
	Catalog []CatalogEntry

	// Clock returns the current time. Defaults to time.Now.
	Clock func() time.Time
}

// Registry provides device management with caching and thread safety.
// Registered devices are written through to the Repository when one is
// configured; runtime updates from scans and commands stay in memory.
//
// Every stored distance is measured from one current origin. It starts at
// the configured origin and moves with each Rescan.
//
// All public methods are thread-safe.
type Registry struct {
	repo    Repository
	catalog []CatalogEntry
	now     func() time.Time

	mu       sync.RWMutex // protects devices, origin and reserved
	devices  map[string]*Device
	origin   geo.Point
	reserved map[string]struct{} // IDs being persisted by Register

	logger Logger
}

// NewRegistry creates an empty device registry.
// repo may be nil, in which case registrations live in memory only.
func NewRegistry(repo Repository, opts Options) *Registry {
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}

	return &Registry{
		repo:     repo,
		origin:   opts.Origin,
		catalog:  slices.Clone(opts.Catalog),
		now:      clock,
		devices:  make(map[string]*Device),
		reserved: make(map[string]struct{}),
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// Origin returns the point every stored distance is measured from.
func (r *Registry) Origin() geo.Point {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.origin
}

// Load seeds the catalog devices and merges devices persisted by the
// repository. It should be called once on application startup.
//
// Catalog entries win over persisted devices with the same ID. Distances
// are measured from the current origin; a persisted device keeps its stored
// signal.
func (r *Registry) Load(ctx context.Context) error {
	var persisted []Device
	if r.repo != nil {
		var err error
		persisted, err = r.repo.List(ctx)
		if err != nil {
			return fmt.Errorf("loading devices: %w", err)
		}
	}

	now := r.now().UTC()

	r.mu.Lock()
	defer r.mu.Unlock()

	r.devices = make(map[string]*Device, len(r.catalog)+len(persisted))
	for _, entry := range r.catalog {
		r.devices[entry.ID] = r.fromCatalog(entry, now)
	}

	merged := 0
	for i := range persisted {
		d := persisted[i].DeepCopy()
		if _, exists := r.devices[d.ID]; exists {
			r.logger.Warn("persisted device shadowed by catalog entry", "device_id", d.ID)
			continue
		}
		d.Distance = geo.Distance(r.origin, d.Location)
		r.devices[d.ID] = d
		merged++
	}

	r.logger.Info("device registry loaded", "catalog", len(r.catalog), "persisted", merged)
	return nil
}

func (r *Registry) fromCatalog(entry CatalogEntry, now time.Time) *Device {
	distance := geo.Distance(r.origin, entry.Location)
	d := &Device{
		ID:        entry.ID,
		Name:      entry.Name,
		Type:      entry.Type,
		Location:  entry.Location,
		Distance:  distance,
		Signal:    geo.SignalAt(distance),
		Battery:   clampBattery(entry.Battery),
		LastSeen:  now,
		Status:    StatusActive,
		CreatedAt: now,
	}
	if entry.Frequency != nil {
		f := *entry.Frequency
		d.Frequency = &f
	}
	return d
}

// List returns every device matching the filter, sorted by ascending
// distance with ties broken by ID. The returned devices are copies.
func (r *Registry) List(filter Filter) []Device {
	r.mu.RLock()
	out := make([]Device, 0, len(r.devices))
	for _, d := range r.devices {
		if filter.Matches(d) {
			out = append(out, *d.DeepCopy())
		}
	}
	r.mu.RUnlock()

	sortByDistance(out)
	return out
}

// Get retrieves a device by ID.
// Returns ErrDeviceNotFound if the device does not exist.
// The returned device is a deep copy; callers can safely modify it.
func (r *Registry) Get(id string) (*Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.devices[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
	}
	return d.DeepCopy(), nil
}

// Register adds a new device with status "registered".
//
// Missing id, name or type returns ErrInvalidDevice. An ID that is already
// known returns ErrDeviceExists. The device gets the default signal and
// battery, last_seen of now, and the current origin as location when none
// is given.
//
// The ID is reserved under the lock and the device is persisted without
// holding it, so readers never wait on the repository. A persistence
// failure releases the reservation and leaves the registry unchanged.
func (r *Registry) Register(ctx context.Context, req RegisterRequest) (*Device, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	now := r.now().UTC()
	d := &Device{
		ID:        req.ID,
		Name:      req.Name,
		Type:      req.Type,
		Signal:    DefaultSignal,
		Battery:   DefaultBattery,
		LastSeen:  now,
		Status:    StatusRegistered,
		CreatedAt: now,
	}
	if req.Frequency != nil {
		f := *req.Frequency
		d.Frequency = &f
	}

	if err := r.reserve(d.ID); err != nil {
		return nil, err
	}

	r.mu.RLock()
	d.Location = r.origin
	r.mu.RUnlock()
	if req.Location != nil {
		d.Location = *req.Location
	}

	if r.repo != nil {
		if err := r.repo.Create(ctx, d); err != nil {
			r.release(d.ID)
			return nil, fmt.Errorf("persisting device %s: %w", d.ID, err)
		}
	}

	r.mu.Lock()
	delete(r.reserved, d.ID)
	d.Distance = geo.Distance(r.origin, d.Location)
	r.devices[d.ID] = d
	out := d.DeepCopy()
	r.mu.Unlock()

	r.logger.Info("device registered", "device_id", d.ID, "type", d.Type)
	return out, nil
}

// reserve claims id for a registration in progress. It fails with
// ErrDeviceExists if the ID is known or already being registered.
func (r *Registry) reserve(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.devices[id]; exists {
		return fmt.Errorf("%w: %s", ErrDeviceExists, id)
	}
	if _, pending := r.reserved[id]; pending {
		return fmt.Errorf("%w: %s", ErrDeviceExists, id)
	}
	r.reserved[id] = struct{}{}
	return nil
}

func (r *Registry) release(id string) {
	r.mu.Lock()
	delete(r.reserved, id)
	r.mu.Unlock()
}

// Rescan makes origin the current origin and recomputes distance and
// signal of every device from it. Devices within maxRange km have
// last_seen set to now and are returned, sorted by ascending distance.
func (r *Registry) Rescan(origin geo.Point, maxRange float64) []Device {
	now := r.now().UTC()

	r.mu.Lock()
	r.origin = origin
	found := make([]Device, 0, len(r.devices))
	for _, d := range r.devices {
		d.Distance = geo.Distance(origin, d.Location)
		d.Signal = geo.SignalAt(d.Distance)
		if d.Distance <= maxRange {
			d.LastSeen = now
			found = append(found, *d.DeepCopy())
		}
	}
	r.mu.Unlock()

	sortByDistance(found)
	r.logger.Debug("devices rescanned", "origin", origin, "range_km", maxRange, "found", len(found))
	return found
}

// Touch records contact with a device: last_seen becomes now and the
// battery drops by batteryCost, clamped to [0, 100].
// It reports false if the device is unknown.
func (r *Registry) Touch(id string, batteryCost float64) bool {
	now := r.now().UTC()

	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.devices[id]
	if !ok {
		return false
	}
	d.LastSeen = now
	d.Battery = clampBattery(d.Battery - math.Max(0, batteryCost))
	return true
}

// Stats returns counts and averages over all devices.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s := Stats{
		Total:    len(r.devices),
		ByStatus: make(map[Status]int),
		ByType:   make(map[DeviceType]int),
	}
	if s.Total == 0 {
		return s
	}

	var battery, signal float64
	for _, d := range r.devices {
		s.ByStatus[d.Status]++
		s.ByType[d.Type]++
		battery += d.Battery
		signal += float64(d.Signal)
		if d.Battery < LowBatteryThreshold {
			s.LowBattery++
		}
	}

	n := float64(s.Total)
	s.ActivePercent = geo.Round1(float64(s.ByStatus[StatusActive]) / n * 100)
	s.AverageBattery = geo.Round1(battery / n)
	s.AverageSignal = geo.Round1(signal / n)
	return s
}

func sortByDistance(devices []Device) {
	slices.SortFunc(devices, func(a, b Device) int {
		if c := cmp.Compare(a.Distance, b.Distance); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}

func clampBattery(v float64) float64 {
	return geo.Round1(math.Min(100, math.Max(0, v)))
}
