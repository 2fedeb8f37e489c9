package query

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/nerrad567/fleet-telemetry-core/internal/device"
	"github.com/nerrad567/fleet-telemetry-core/internal/geo"
	"github.com/nerrad567/fleet-telemetry-core/internal/latency"
	"github.com/nerrad567/fleet-telemetry-core/internal/telemetry"
)

// Engine defaults.
const (
	DefaultScanDelay     = 2 * time.Second
	DefaultScanRange     = 15.0
	DefaultHistoryPoints = 24
	MaxHistoryPoints     = 720
	DefaultBatteryDecay  = 0.5
	DefaultSignalJitter  = 5
)

// Jitter supplies the random signal perturbation of synthesised series.
// Implementations must be safe for concurrent use.
type Jitter interface {
	IntN(n int) int
}

// globalJitter draws from the goroutine-safe top-level generator.
type globalJitter struct{}

func (globalJitter) IntN(n int) int { return rand.IntN(n) }

// Options configures an Engine. Zero values select the defaults; a
// negative ScanDelay or SignalJitter disables the delay or the jitter.
type Options struct {
	ScanDelay     time.Duration
	DefaultRange  float64
	HistoryPoints int

	// BatteryDecayPerHour is subtracted per hour when projecting battery
	// levels backwards.
	BatteryDecayPerHour float64

	// SignalJitter bounds the ± dBm perturbation of synthesised signal.
	SignalJitter int

	Clock  func() time.Time
	Jitter Jitter
}

// Engine answers device and telemetry queries.
type Engine struct {
	registry *device.Registry
	streams  *telemetry.Streams
	opts     Options
}

// NewEngine creates an engine over the given registry and streams.
func NewEngine(registry *device.Registry, streams *telemetry.Streams, opts Options) *Engine {
	switch {
	case opts.ScanDelay == 0:
		opts.ScanDelay = DefaultScanDelay
	case opts.ScanDelay < 0:
		opts.ScanDelay = 0
	}
	if opts.DefaultRange <= 0 {
		opts.DefaultRange = DefaultScanRange
	}
	if opts.HistoryPoints <= 0 {
		opts.HistoryPoints = DefaultHistoryPoints
	}
	if opts.BatteryDecayPerHour <= 0 {
		opts.BatteryDecayPerHour = DefaultBatteryDecay
	}
	switch {
	case opts.SignalJitter == 0:
		opts.SignalJitter = DefaultSignalJitter
	case opts.SignalJitter < 0:
		opts.SignalJitter = 0
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Jitter == nil {
		opts.Jitter = globalJitter{}
	}

	return &Engine{registry: registry, streams: streams, opts: opts}
}

// Scan waits for the scan delay and then returns the devices within range.
//
// With coordinates the registry is rescanned from that origin, refreshing
// distance, signal and last_seen. Without them the stored distances are
// filtered. No lock is held during the delay. If ctx ends first, Scan
// returns ctx.Err() and the registry is not touched.
func (e *Engine) Scan(ctx context.Context, req ScanRequest) (*ScanResult, error) {
	if (req.Lat == nil) != (req.Lng == nil) {
		return nil, fmt.Errorf("%w: lat and lng must be given together", ErrInvalidQuery)
	}
	if req.Lat != nil && (math.Abs(*req.Lat) > 90 || math.Abs(*req.Lng) > 180) {
		return nil, fmt.Errorf("%w: coordinates out of range", ErrInvalidQuery)
	}
	if req.Range < 0 || math.IsNaN(req.Range) {
		return nil, fmt.Errorf("%w: range must not be negative", ErrInvalidQuery)
	}

	maxRange := req.Range
	if maxRange == 0 {
		maxRange = e.opts.DefaultRange
	}

	start := e.opts.Clock()
	if err := latency.Wait(ctx, e.opts.ScanDelay); err != nil {
		return nil, err
	}

	var (
		origin  geo.Point
		devices []device.Device
	)
	if req.Lat != nil {
		origin = geo.Point{Lat: *req.Lat, Lng: *req.Lng}
		devices = e.registry.Rescan(origin, maxRange)
	} else {
		origin = e.registry.Origin()
		devices = e.registry.List(device.Filter{MaxDistance: &maxRange})
	}

	end := e.opts.Clock()
	return &ScanResult{
		Devices:    devices,
		Count:      len(devices),
		Range:      maxRange,
		Origin:     origin,
		ScannedAt:  end.UTC(),
		DurationMS: end.Sub(start).Milliseconds(),
	}, nil
}

// ListDevices returns the devices matching filter, nearest first.
func (e *Engine) ListDevices(filter device.Filter) []device.Device {
	return e.registry.List(filter)
}

// DeviceDetail returns a device with a synthesised hourly series of points
// entries, oldest first. Signal is the current signal perturbed by up to
// ±SignalJitter dBm; battery is projected backwards from the current level
// at BatteryDecayPerHour and floored at 0. points <= 0 selects the default.
//
// Returns device.ErrDeviceNotFound for unknown IDs.
func (e *Engine) DeviceDetail(id string, points int) (*DeviceDetail, error) {
	d, err := e.registry.Get(id)
	if err != nil {
		return nil, err
	}

	if points <= 0 {
		points = e.opts.HistoryPoints
	}
	if points > MaxHistoryPoints {
		points = MaxHistoryPoints
	}

	now := e.opts.Clock().UTC()
	jitter := e.opts.SignalJitter
	history := make([]HistoryPoint, 0, points)
	for hoursBack := points - 1; hoursBack >= 0; hoursBack-- {
		offset := 0
		if jitter > 0 {
			offset = e.opts.Jitter.IntN(2*jitter+1) - jitter
		}
		battery := math.Max(0, d.Battery-e.opts.BatteryDecayPerHour*float64(hoursBack))

		history = append(history, HistoryPoint{
			Timestamp: now.Add(-time.Duration(hoursBack) * time.Hour),
			Signal:    d.Signal + offset,
			Battery:   geo.Round1(battery),
		})
	}

	return &DeviceDetail{Device: *d, History: history}, nil
}

// DeviceReadings returns the stored readings reported by a device, keyed by
// stream. An empty stream searches every stream. limit <= 0 selects the
// stream default.
//
// Returns device.ErrDeviceNotFound or telemetry.ErrStreamNotFound.
func (e *Engine) DeviceReadings(id, stream string, limit int) (map[string][]telemetry.Reading, error) {
	if _, err := e.registry.Get(id); err != nil {
		return nil, err
	}

	stores := e.streams.All()
	if stream != "" {
		s, err := e.streams.Get(stream)
		if err != nil {
			return nil, err
		}
		stores = []*telemetry.Store{s}
	}

	out := make(map[string][]telemetry.Reading, len(stores))
	for _, s := range stores {
		out[s.Name()] = s.DeviceHistory(id, limit)
	}
	return out, nil
}

// Analytics returns fleet and stream aggregates at the current time.
func (e *Engine) Analytics() *Analytics {
	stores := e.streams.All()
	streams := make([]StreamSummary, 0, len(stores))
	for _, s := range stores {
		streams = append(streams, StreamSummary{
			Stats:  s.Stats(),
			Health: s.Health(),
			Latest: s.Latest(),
		})
	}

	return &Analytics{
		Devices:     e.registry.Stats(),
		Streams:     streams,
		GeneratedAt: e.opts.Clock().UTC(),
	}
}
