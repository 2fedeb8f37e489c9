package telemetry

import (
	"fmt"
)

// Spec configures one stream of a Streams set.
type Spec struct {
	Schema Schema

	// Capacity overrides Options.Capacity for this stream when positive.
	Capacity int
}

// DefaultSpecs returns the built-in soil and climate streams.
func DefaultSpecs() []Spec {
	return []Spec{
		{Schema: Schema{Name: "soil", Primary: "soil_moisture", Fields: []string{"temperature", "humidity"}}},
		{Schema: Schema{Name: "climate", Primary: "temperature", Fields: []string{"humidity", "pressure"}}},
	}
}

// Streams is the set of named stores served by the process.
// The set is fixed at construction; the stores themselves are mutable.
type Streams struct {
	stores map[string]*Store
	order  []string
}

// NewStreams builds one store per spec. Stream names must be unique.
func NewStreams(specs []Spec, opts Options) (*Streams, error) {
	if len(specs) == 0 {
		return nil, fmt.Errorf("%w: at least one stream is required", ErrInvalidSchema)
	}

	ss := &Streams{stores: make(map[string]*Store, len(specs))}
	for _, spec := range specs {
		if _, dup := ss.stores[spec.Schema.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate stream %q", ErrInvalidSchema, spec.Schema.Name)
		}

		o := opts
		if spec.Capacity > 0 {
			o.Capacity = spec.Capacity
		}
		store, err := NewStore(spec.Schema, o)
		if err != nil {
			return nil, err
		}
		ss.stores[spec.Schema.Name] = store
		ss.order = append(ss.order, spec.Schema.Name)
	}
	return ss, nil
}

// Get returns the named store or ErrStreamNotFound.
func (ss *Streams) Get(name string) (*Store, error) {
	s, ok := ss.stores[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrStreamNotFound, name)
	}
	return s, nil
}

// Names returns the stream names in configuration order.
func (ss *Streams) Names() []string {
	return append([]string(nil), ss.order...)
}

// All returns every store in configuration order.
func (ss *Streams) All() []*Store {
	out := make([]*Store, 0, len(ss.order))
	for _, name := range ss.order {
		out = append(out, ss.stores[name])
	}
	return out
}

// Subscribe registers obs on every stream.
func (ss *Streams) Subscribe(obs Observer) {
	for _, s := range ss.stores {
		s.Subscribe(obs)
	}
}

// SetLogger sets the logger on every stream.
func (ss *Streams) SetLogger(logger Logger) {
	for _, s := range ss.stores {
		s.SetLogger(logger)
	}
}
