package mqtt

import (
	"fmt"
	"strings"
)

// Topic prefixes of the fleet MQTT hierarchy.
const (
	// TopicPrefix is the root of every fleet topic.
	TopicPrefix = "fleet"

	// TopicPrefixTelemetry carries readings: fleet/telemetry/{stream}/{device_id}
	TopicPrefixTelemetry = "fleet/telemetry"

	// TopicPrefixCommand carries commands to devices: fleet/command/{device_id}
	TopicPrefixCommand = "fleet/command"

	// TopicPrefixSystem is the base for service status topics.
	TopicPrefixSystem = "fleet/system"
)

// Topics provides builders for fleet MQTT topics.
// Using these helpers keeps topic naming consistent across the codebase.
//
//	topics := mqtt.Topics{}
//	topic := topics.Telemetry("soil", "sm-001")
//	// Returns: "fleet/telemetry/soil/sm-001"
type Topics struct{}

// Telemetry returns the topic a device publishes readings of one stream to.
//
// Example: fleet/telemetry/soil/sm-001
func (Topics) Telemetry(stream, deviceID string) string {
	return fmt.Sprintf("%s/%s/%s", TopicPrefixTelemetry, stream, deviceID)
}

// Command returns the topic commands to a device are published on.
//
// Example: fleet/command/wt-001
func (Topics) Command(deviceID string) string {
	return fmt.Sprintf("%s/%s", TopicPrefixCommand, deviceID)
}

// SystemStatus returns the service status topic used for the online
// message and the Last Will.
//
// Example: fleet/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// AllTelemetry returns a pattern matching every reading of every stream.
//
// Pattern: fleet/telemetry/+/+
func (Topics) AllTelemetry() string {
	return fmt.Sprintf("%s/+/+", TopicPrefixTelemetry)
}

// StreamTelemetry returns a pattern matching every reading of one stream.
//
// Pattern: fleet/telemetry/soil/+
func (Topics) StreamTelemetry(stream string) string {
	return fmt.Sprintf("%s/%s/+", TopicPrefixTelemetry, stream)
}

// AllCommands returns a pattern matching commands to every device.
//
// Pattern: fleet/command/+
func (Topics) AllCommands() string {
	return fmt.Sprintf("%s/+", TopicPrefixCommand)
}

// ParseTelemetryTopic splits a telemetry topic into its stream and device
// id. It reports false for any other topic or for empty segments.
func ParseTelemetryTopic(topic string) (stream, deviceID string, ok bool) {
	rest, found := strings.CutPrefix(topic, TopicPrefixTelemetry+"/")
	if !found {
		return "", "", false
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}
