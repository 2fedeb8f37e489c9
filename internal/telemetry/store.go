package telemetry

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// Store defaults.
const (
	DefaultCapacity     = 100
	DefaultHistoryLimit = 60
	DefaultStaleAfter   = 60 * time.Second
)

// Logger defines the logging interface used by the Store.
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

// Observer receives every reading after it has been stored.
//
// Observers run on the ingesting goroutine after the store lock has been
// released. They must not call Ingest on the same store.
type Observer interface {
	ReadingStored(stream string, r Reading)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(stream string, r Reading)

// ReadingStored calls f(stream, r).
func (f ObserverFunc) ReadingStored(stream string, r Reading) {
	f(stream, r)
}

// Options tunes a Store. Zero values select the package defaults.
type Options struct {
	// Capacity is the maximum history length.
	Capacity int

	// DefaultLimit is the history length returned when no limit is given.
	DefaultLimit int

	// StaleAfter is the maximum reading age still reported as healthy.
	StaleAfter time.Duration

	// Clock returns the current time. Defaults to time.Now.
	Clock func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Capacity <= 0 {
		o.Capacity = DefaultCapacity
	}
	if o.DefaultLimit <= 0 {
		o.DefaultLimit = DefaultHistoryLimit
	}
	if o.StaleAfter <= 0 {
		o.StaleAfter = DefaultStaleAfter
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	return o
}

// HealthStatus is the freshness classification of a stream.
type HealthStatus string

// Health statuses.
const (
	HealthHealthy HealthStatus = "healthy"
	HealthStale   HealthStatus = "stale"
)

// Health is the freshness report of a stream.
type Health struct {
	Status     HealthStatus `json:"status"`
	LastUpdate *time.Time   `json:"last_update"`
	AgeSeconds *float64     `json:"age_seconds"`
	Count      int          `json:"count"`
}

// Stats are the counters of a stream.
type Stats struct {
	Stream   string `json:"stream"`
	Primary  string `json:"primary"`
	Capacity int    `json:"capacity"`
	Length   int    `json:"length"`
	Ingested uint64 `json:"ingested"`
	Rejected uint64 `json:"rejected"`
}

// Store holds the latest-value cache and bounded history of one stream.
//
// All public methods are thread-safe.
type Store struct {
	schema Schema
	opts   Options

	mu       sync.RWMutex // protects history, latest, ingested
	history  *Ring[Reading]
	latest   Reading
	ingested uint64

	rejected atomic.Uint64

	obsMu     sync.RWMutex
	observers []Observer

	logger Logger
}

// NewStore creates an empty store for the given schema.
// Returns ErrInvalidSchema if the schema is unusable.
func NewStore(schema Schema, opts Options) (*Store, error) {
	if err := schema.Validate(); err != nil {
		return nil, err
	}

	opts = opts.withDefaults()
	return &Store{
		schema:  schema,
		opts:    opts,
		history: NewRing[Reading](opts.Capacity),
		latest:  zeroReading(schema),
		logger:  noopLogger{},
	}, nil
}

// SetLogger sets the logger for the store.
func (s *Store) SetLogger(logger Logger) {
	s.logger = logger
}

// Name returns the stream name.
func (s *Store) Name() string {
	return s.schema.Name
}

// Schema returns the stream schema.
func (s *Store) Schema() Schema {
	out := s.schema
	out.Fields = append([]string(nil), s.schema.Fields...)
	return out
}

// Subscribe registers an observer for readings stored after this call.
func (s *Store) Subscribe(obs Observer) {
	s.obsMu.Lock()
	s.observers = append(s.observers, obs)
	s.obsMu.Unlock()
}

// Ingest validates and stores a sample.
//
// The primary metric must be present and numeric, otherwise ErrInvalidReading
// is returned and nothing is modified. Optional fields that are missing or
// not numeric are stored as 0. The reading is timestamped with the store
// clock; any timestamp in the sample is ignored.
//
// On success the latest-value cache is replaced and the reading is appended
// to history, evicting the oldest entry when history is full. Both happen in
// one critical section.
func (s *Store) Ingest(sample Sample) (Reading, error) {
	reading, err := normalise(s.schema, sample)
	if err != nil {
		s.rejected.Add(1)
		s.logger.Debug("reading rejected", "stream", s.schema.Name, "error", err)
		return Reading{}, fmt.Errorf("stream %s: %w", s.schema.Name, err)
	}

	s.mu.Lock()
	ts := s.opts.Clock().UTC()
	reading.Timestamp = &ts
	s.latest = reading
	s.history.Push(reading)
	s.ingested++
	s.mu.Unlock()

	s.notify(reading)

	return reading.Clone(), nil
}

func (s *Store) notify(r Reading) {
	s.obsMu.RLock()
	observers := s.observers
	s.obsMu.RUnlock()

	for _, obs := range observers {
		obs.ReadingStored(s.schema.Name, r.Clone())
	}
}

// Latest returns the most recent reading, or the zero-value reading (every
// metric 0, device id and timestamp nil) if nothing has been ingested.
func (s *Store) Latest() Reading {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest.Clone()
}

// History returns up to limit of the most recent readings, oldest first.
// A limit <= 0 selects the default limit; a limit above the stored length
// returns everything.
func (s *Store) History(limit int) []Reading {
	if limit <= 0 {
		limit = s.opts.DefaultLimit
	}

	s.mu.RLock()
	tail := s.history.Tail(limit)
	s.mu.RUnlock()

	for i := range tail {
		tail[i] = tail[i].Clone()
	}
	return tail
}

// DeviceHistory returns up to limit of the most recent readings reported by
// deviceID, oldest first. A limit <= 0 selects the default limit.
func (s *Store) DeviceHistory(deviceID string, limit int) []Reading {
	if limit <= 0 {
		limit = s.opts.DefaultLimit
	}

	s.mu.RLock()
	all := s.history.Snapshot()
	s.mu.RUnlock()

	matched := make([]Reading, 0, len(all))
	for _, r := range all {
		if r.Device() == deviceID {
			matched = append(matched, r.Clone())
		}
	}
	if len(matched) > limit {
		matched = matched[len(matched)-limit:]
	}
	return matched
}

// Clear empties the history. The latest-value cache is kept.
func (s *Store) Clear() {
	s.mu.Lock()
	s.history.Clear()
	s.mu.Unlock()

	s.logger.Info("history cleared", "stream", s.schema.Name)
}

// Health reports stream freshness at the current clock time.
//
// The stream is healthy when the latest reading is at most StaleAfter old.
// A stream that has never received a reading is stale with a nil LastUpdate.
func (s *Store) Health() Health {
	s.mu.RLock()
	ts := s.latest.Timestamp
	count := s.history.Len()
	s.mu.RUnlock()

	h := Health{Status: HealthStale, Count: count}
	if ts == nil {
		return h
	}

	last := *ts
	age := s.opts.Clock().Sub(last)
	ageSeconds := math.Round(age.Seconds()*10) / 10
	h.LastUpdate = &last
	h.AgeSeconds = &ageSeconds
	if age <= s.opts.StaleAfter {
		h.Status = HealthHealthy
	}
	return h
}

// Stats returns the stream counters.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Stats{
		Stream:   s.schema.Name,
		Primary:  s.schema.Primary,
		Capacity: s.history.Cap(),
		Length:   s.history.Len(),
		Ingested: s.ingested,
		Rejected: s.rejected.Load(),
	}
}
