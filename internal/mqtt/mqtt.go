// Package mqtt publishes pod telemetry to MQTT with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"math"
	"time"

	"github.com/sweeney/treadmill-pod/internal/pace"
)

// DefaultTopicPrefix is the root of every topic the pod publishes on.
const DefaultTopicPrefix = "fitness/treadmill/pod"

// Topics names the telemetry and system topics.
type Topics struct {
	Telemetry string
	System    string
}

// TopicsFor derives the topic set from a prefix.
func TopicsFor(prefix string) Topics {
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{
		Telemetry: prefix + "/telemetry",
		System:    prefix + "/system",
	}
}

// Publisher publishes telemetry to MQTT.
type Publisher interface {
	// Publish sends a telemetry record to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(tel pace.Telemetry) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Units converts device units back to physical values for payloads.
type Units struct {
	Speed    uint32 // device units per m/s
	Distance uint32 // device units per metre
}

// DefaultUnits matches pace.DefaultConfig.
var DefaultUnits = Units{Speed: pace.DefaultSpeedUnit, Distance: pace.DefaultDistanceUnit}

// Payload represents the MQTT telemetry message.
type Payload struct {
	Pod PodPayload `json:"pod"`
}

// PodPayload carries the raw device-unit fields plus their physical values.
type PodPayload struct {
	Timestamp string  `json:"timestamp"`
	Event     string  `json:"event"`
	Speed     uint32  `json:"speed"`
	Distance  uint32  `json:"distance"`
	Strides   uint32  `json:"strides"`
	SpeedMPS  float64 `json:"speed_mps"`
	DistanceM float64 `json:"distance_m"`
}

// FormatPayload creates the JSON payload for a telemetry record.
func FormatPayload(tel pace.Telemetry, units Units) ([]byte, error) {
	payload := Payload{
		Pod: PodPayload{
			Timestamp: tel.Timestamp.UTC().Format(time.RFC3339Nano),
			Event:     string(tel.Event),
			Speed:     tel.Speed,
			Distance:  tel.Distance,
			Strides:   tel.StrideCount,
			SpeedMPS:  physical(tel.Speed, units.Speed),
			DistanceM: physical(tel.Distance, units.Distance),
		},
	}
	return json.Marshal(payload)
}

// physical converts a device value to SI rounded to three decimals.
func physical(v, unit uint32) float64 {
	if unit == 0 {
		return 0
	}
	return math.Round(float64(v)/float64(unit)*1000) / 1000
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}
