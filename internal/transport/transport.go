package transport

import (
	"context"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/fleet-telemetry-core/internal/audit"
	"github.com/nerrad567/fleet-telemetry-core/internal/device"
	"github.com/nerrad567/fleet-telemetry-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/fleet-telemetry-core/internal/latency"
)

// Transport defaults.
const (
	DefaultCommandDelay = time.Second
	DefaultBatteryCost  = 0.1

	// AckStatusReceived is the only acknowledgment status the link reports.
	AckStatusReceived = "received"

	// DefaultSource is recorded when a request does not name its origin.
	DefaultSource = "api"
)

// Logger defines the logging interface used by the Transport.
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

// Publisher sends a command message to the devices' broker.
// *mqtt.Client satisfies it.
type Publisher interface {
	PublishJSON(topic string, v any) error
}

// Recorder appends an entry to the audit trail.
// *audit.SQLiteRepository satisfies it.
type Recorder interface {
	Create(ctx context.Context, entry *audit.Entry) error
}

// Options configures a Transport. A zero CommandDelay selects the default
// and a negative one disables the delay. A zero BatteryCost selects the
// default; a negative one disables battery drain.
type Options struct {
	CommandDelay time.Duration
	BatteryCost  float64

	// Gateways is the radio topology. Nil selects DefaultGateways.
	Gateways []Gateway

	Clock func() time.Time
}

// CommandRequest is a command addressed to one device.
type CommandRequest struct {
	DeviceID   string         `json:"device_id"`
	Command    string         `json:"command"`
	Parameters map[string]any `json:"parameters,omitempty"`
	Source     string         `json:"source,omitempty"`
}

// Validate checks that device_id and command are present and names every
// missing field.
func (r CommandRequest) Validate() error {
	var missing []string
	if strings.TrimSpace(r.DeviceID) == "" {
		missing = append(missing, "device_id")
	}
	if strings.TrimSpace(r.Command) == "" {
		missing = append(missing, "command")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing required fields: %s", ErrInvalidCommand, strings.Join(missing, ", "))
	}
	return nil
}

// Ack is the acknowledgment returned for a delivered command.
type Ack struct {
	CommandID    string         `json:"command_id"`
	DeviceID     string         `json:"device_id"`
	Command      string         `json:"command"`
	Parameters   map[string]any `json:"parameters,omitempty"`
	Status       string         `json:"status"`
	ResponseTime string         `json:"response_time"`
	Timestamp    time.Time      `json:"timestamp"`
}

// CommandMessage is the payload published on fleet/command/{device_id}.
type CommandMessage struct {
	CommandID  string         `json:"command_id"`
	DeviceID   string         `json:"device_id"`
	Command    string         `json:"command"`
	Parameters map[string]any `json:"parameters,omitempty"`
	Source     string         `json:"source"`
	Timestamp  time.Time      `json:"timestamp"`
}

// Transport sends commands to devices and reports the network topology.
//
// Thread Safety:
//   - SendCommand and NetworkStatus are safe for concurrent use.
//   - SetPublisher, SetRecorder and SetLogger must be called before use.
type Transport struct {
	registry  *device.Registry
	publisher Publisher
	recorder  Recorder
	opts      Options
	logger    Logger
}

// New creates a Transport over the registry.
func New(registry *device.Registry, opts Options) *Transport {
	switch {
	case opts.CommandDelay == 0:
		opts.CommandDelay = DefaultCommandDelay
	case opts.CommandDelay < 0:
		opts.CommandDelay = 0
	}
	switch {
	case opts.BatteryCost == 0:
		opts.BatteryCost = DefaultBatteryCost
	case opts.BatteryCost < 0:
		opts.BatteryCost = 0
	}
	if opts.Gateways == nil {
		opts.Gateways = DefaultGateways()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	return &Transport{
		registry: registry,
		opts:     opts,
		logger:   noopLogger{},
	}
}

// SetPublisher enables publishing commands to the broker.
func (t *Transport) SetPublisher(p Publisher) {
	t.publisher = p
}

// SetRecorder enables the audit trail for commands.
func (t *Transport) SetRecorder(r Recorder) {
	t.recorder = r
}

// SetLogger sets the logger for the transport.
func (t *Transport) SetLogger(logger Logger) {
	t.logger = logger
}

// SendCommand validates req, waits for the modelled link latency and
// returns the acknowledgment.
//
// The wait holds no lock, so any number of commands may be in flight. A
// context that ends during the wait returns its error and leaves no trace.
// After the wait the device's last_seen and battery are updated, and the
// command is published and audited when those are configured; failures
// there are logged and do not affect the Ack.
//
// Parameters:
//   - ctx: Context for cancellation of the wait
//   - req: The command; device_id and command are required
//
// Returns:
//   - *Ack: Acknowledgment with status "received"
//   - error: ErrInvalidCommand, or the context error
func (t *Transport) SendCommand(ctx context.Context, req CommandRequest) (*Ack, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.Source == "" {
		req.Source = DefaultSource
	}

	start := t.opts.Clock()
	if err := latency.Wait(ctx, t.opts.CommandDelay); err != nil {
		return nil, fmt.Errorf("sending command to %s: %w", req.DeviceID, err)
	}
	now := t.opts.Clock().UTC()

	ack := &Ack{
		CommandID:    uuid.NewString(),
		DeviceID:     req.DeviceID,
		Command:      req.Command,
		Parameters:   maps.Clone(req.Parameters),
		Status:       AckStatusReceived,
		ResponseTime: fmt.Sprintf("%dms", now.Sub(start).Milliseconds()),
		Timestamp:    now,
	}

	if !t.registry.Touch(req.DeviceID, t.opts.BatteryCost) {
		t.logger.Debug("command for unregistered device", "device_id", req.DeviceID)
	}
	t.publish(req, ack)
	t.audit(ctx, req, ack)

	t.logger.Info("device command sent",
		"device_id", req.DeviceID,
		"command", req.Command,
		"command_id", ack.CommandID,
		"response_time", ack.ResponseTime,
	)
	return ack, nil
}

func (t *Transport) publish(req CommandRequest, ack *Ack) {
	if t.publisher == nil {
		return
	}
	msg := CommandMessage{
		CommandID:  ack.CommandID,
		DeviceID:   ack.DeviceID,
		Command:    ack.Command,
		Parameters: ack.Parameters,
		Source:     req.Source,
		Timestamp:  ack.Timestamp,
	}
	if err := t.publisher.PublishJSON(mqtt.Topics{}.Command(req.DeviceID), msg); err != nil {
		t.logger.Warn("command publish failed", "device_id", req.DeviceID, "error", err)
	}
}

func (t *Transport) audit(ctx context.Context, req CommandRequest, ack *Ack) {
	if t.recorder == nil {
		return
	}
	details := map[string]any{
		"command_id": ack.CommandID,
		"command":    ack.Command,
	}
	if len(ack.Parameters) > 0 {
		details["parameters"] = ack.Parameters
	}
	entry := &audit.Entry{
		Action:    audit.ActionCommand,
		DeviceID:  req.DeviceID,
		Source:    req.Source,
		Details:   details,
		CreatedAt: ack.Timestamp,
	}
	if err := t.recorder.Create(context.WithoutCancel(ctx), entry); err != nil {
		t.logger.Warn("command audit failed", "device_id", req.DeviceID, "error", err)
	}
}
