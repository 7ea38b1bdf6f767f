package mqtt

import (
	"fmt"
	"strings"
)

// DefaultTopicPrefix is the root of the telemetry topic tree when none is configured.
const DefaultTopicPrefix = "telemetry"

// Topics builds telemetry MQTT topics under a common prefix.
//
// Device telemetry uses two levels below the prefix:
//
//	{prefix}/{device_id}/{channel}
//
// Service status sits one level below the prefix so the telemetry
// wildcard never matches it:
//
//	{prefix}/status
type Topics struct {
	Prefix string
}

// NewTopics returns builders for prefix, trimming surrounding slashes.
// An empty prefix selects DefaultTopicPrefix.
func NewTopics(prefix string) Topics {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{Prefix: prefix}
}

func (t Topics) root() string {
	if t.Prefix == "" {
		return DefaultTopicPrefix
	}
	return t.Prefix
}

// Telemetry returns the topic a device publishes a channel reading on.
//
// Example: telemetry/boiler-01/flow_temp
func (t Topics) Telemetry(deviceID, channel string) string {
	return fmt.Sprintf("%s/%s/%s", t.root(), deviceID, channel)
}

// AllTelemetry returns the subscription pattern for every device and channel.
//
// Pattern: telemetry/+/+
func (t Topics) AllTelemetry() string {
	return t.root() + "/+/+"
}

// Status returns the retained service status topic.
//
// Example: telemetry/status
func (t Topics) Status() string {
	return t.root() + "/status"
}

// ParseTelemetry splits a received telemetry topic into device and channel.
// It reports false for topics outside the prefix, with the wrong depth,
// or with an empty segment.
func (t Topics) ParseTelemetry(topic string) (deviceID, channel string, ok bool) {
	rest, found := strings.CutPrefix(topic, t.root()+"/")
	if !found {
		return "", "", false
	}
	deviceID, channel, found = strings.Cut(rest, "/")
	if !found || deviceID == "" || channel == "" || strings.Contains(channel, "/") {
		return "", "", false
	}
	return deviceID, channel, true
}
