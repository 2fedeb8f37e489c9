package ingest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/nerrad567/fleet-telemetry-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/fleet-telemetry-core/internal/telemetry"
)

// Logger defines the logging interface used by the Bridge.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Subscriber is the MQTT surface the bridge needs.
// *mqtt.Client satisfies it.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

// Toucher records contact with a device. *device.Registry satisfies it.
type Toucher interface {
	Touch(id string, batteryCost float64) bool
}

// Metrics counts bridge traffic since construction.
type Metrics struct {
	Received uint64 `json:"received"`
	Ingested uint64 `json:"ingested"`
	Rejected uint64 `json:"rejected"`
}

// Bridge subscribes to device telemetry and ingests it into the streams.
type Bridge struct {
	sub     Subscriber
	streams *telemetry.Streams
	qos     byte
	devices Toucher
	logger  Logger

	received atomic.Uint64
	ingested atomic.Uint64
	rejected atomic.Uint64
}

// NewBridge creates a bridge between sub and streams.
// qos is the subscription QoS (0, 1, or 2).
func NewBridge(sub Subscriber, streams *telemetry.Streams, qos byte) *Bridge {
	return &Bridge{
		sub:     sub,
		streams: streams,
		qos:     qos,
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger for the bridge.
func (b *Bridge) SetLogger(logger Logger) {
	b.logger = logger
}

// SetDevices makes the bridge refresh last_seen of known devices whenever
// one of their readings is ingested.
func (b *Bridge) SetDevices(devices Toucher) {
	b.devices = devices
}

// Start subscribes to fleet/telemetry/+/+.
func (b *Bridge) Start() error {
	topic := mqtt.Topics{}.AllTelemetry()
	if err := b.sub.Subscribe(topic, b.qos, b.HandleMessage); err != nil {
		return fmt.Errorf("subscribing to %s: %w", topic, err)
	}
	b.logger.Info("telemetry ingest started", "topic", topic, "streams", b.streams.Names())
	return nil
}

// Stop removes the telemetry subscription.
func (b *Bridge) Stop() error {
	topic := mqtt.Topics{}.AllTelemetry()
	if err := b.sub.Unsubscribe(topic); err != nil {
		return fmt.Errorf("unsubscribing from %s: %w", topic, err)
	}
	return nil
}

// HandleMessage ingests one telemetry message. It is the MessageHandler
// registered by Start and is exported for direct use in tests and tools.
//
// Parameters:
//   - topic: fleet/telemetry/{stream}/{device_id}
//   - payload: JSON object holding the sample
//
// Returns:
//   - error: ErrInvalidTopic, ErrInvalidPayload, or a telemetry error
func (b *Bridge) HandleMessage(topic string, payload []byte) error {
	b.received.Add(1)

	reading, stream, err := b.ingest(topic, payload)
	if err != nil {
		b.rejected.Add(1)
		b.logger.Warn("telemetry message rejected", "topic", topic, "error", err)
		return err
	}
	b.ingested.Add(1)

	if b.devices != nil {
		b.devices.Touch(reading.Device(), 0)
	}
	b.logger.Debug("telemetry ingested", "stream", stream, "device_id", reading.Device())
	return nil
}

func (b *Bridge) ingest(topic string, payload []byte) (telemetry.Reading, string, error) {
	stream, deviceID, ok := mqtt.ParseTelemetryTopic(topic)
	if !ok {
		return telemetry.Reading{}, "", fmt.Errorf("%w: %s", ErrInvalidTopic, topic)
	}

	store, err := b.streams.Get(stream)
	if err != nil {
		return telemetry.Reading{}, stream, err
	}

	sample, err := decodeSample(payload)
	if err != nil {
		return telemetry.Reading{}, stream, err
	}
	if id, _ := sample["device_id"].(string); strings.TrimSpace(id) == "" {
		sample["device_id"] = deviceID
	}

	reading, err := store.Ingest(sample)
	if err != nil {
		return telemetry.Reading{}, stream, err
	}
	return reading, stream, nil
}

// decodeSample parses a JSON object, keeping numbers as json.Number.
func decodeSample(payload []byte) (telemetry.Sample, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()

	var sample telemetry.Sample
	if err := dec.Decode(&sample); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	if sample == nil {
		return nil, fmt.Errorf("%w: expected a JSON object", ErrInvalidPayload)
	}
	return sample, nil
}

// Metrics returns the bridge counters.
func (b *Bridge) Metrics() Metrics {
	return Metrics{
		Received: b.received.Load(),
		Ingested: b.ingested.Load(),
		Rejected: b.rejected.Load(),
	}
}
