package status

import (
	"encoding/json"
	"math"
	"time"

	"github.com/sweeney/treadmill-pod/internal/pace"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	Ready         bool         `json:"ready"`
	Moving        bool         `json:"moving"`
	Pace          PaceJSON     `json:"pace"`
	Watchdog      WatchdogJSON `json:"watchdog"`
	Edges         EdgesJSON    `json:"edges"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Network       *NetworkJSON `json:"network,omitempty"`
	Config        ConfigJSON   `json:"config"`
}

// PaceJSON reports the estimator fields in device and physical units.
type PaceJSON struct {
	Speed      uint32  `json:"speed"`
	SpeedMPS   float64 `json:"speed_mps"`
	Distance   uint32  `json:"distance"`
	DistanceM  float64 `json:"distance_m"`
	DistanceMM uint32  `json:"distance_mm"`
	Strides    uint32  `json:"strides"`
	LastEvent  string  `json:"last_event,omitempty"`
	LastUpdate string  `json:"last_update,omitempty"`
}

// WatchdogJSON reports the decay watchdog.
type WatchdogJSON struct {
	Armed    bool  `json:"armed"`
	PeriodMs int64 `json:"period_ms"`
	Decays   int   `json:"decays"`
}

// EdgesJSON is the JSON representation of edge counters.
type EdgesJSON struct {
	Total   int `json:"total"`
	Ticks   int `json:"ticks"`
	Bounces int `json:"bounces"`
	Ignored int `json:"ignored"`
	Dropped int `json:"dropped"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	BeltLengthMM uint32 `json:"belt_length_mm"`
	DebounceMs   uint32 `json:"debounce_ms"`
	SpeedUnit    uint32 `json:"speed_unit"`
	DistanceUnit uint32 `json:"distance_unit"`
	Pin          int    `json:"pin"`
	HeartbeatMs  int64  `json:"heartbeat_ms"`
	Broker       string `json:"broker"`
	HTTPAddr     string `json:"http_addr"`
	SerialPort   string `json:"serial_port,omitempty"`
	HistoryPath  string `json:"history_path,omitempty"`
	WSBroker     string `json:"ws_broker,omitempty"`
	TopicPrefix  string `json:"topic_prefix,omitempty"`
}

func perUnit(v, unit uint32) float64 {
	if unit == 0 {
		return 0
	}
	return math.Round(float64(v)/float64(unit)*1000) / 1000
}

func buildInner(snap Snapshot) StatusInner {
	distance := pace.Rescale(snap.Pace.DistanceAccumulator, 1000, snap.Config.DistanceUnit)
	inner := StatusInner{
		Ready:  snap.Referenced,
		Moving: snap.Moving(),
		Pace: PaceJSON{
			Speed:      snap.Pace.Speed,
			SpeedMPS:   perUnit(snap.Pace.Speed, snap.Config.SpeedUnit),
			Distance:   distance,
			DistanceM:  perUnit(distance, snap.Config.DistanceUnit),
			DistanceMM: snap.Pace.DistanceAccumulator,
			Strides:    snap.Pace.StrideCount,
			LastEvent:  string(snap.Last.Event),
		},
		Watchdog: WatchdogJSON{
			Armed:    snap.Pace.WatchdogArmed,
			PeriodMs: snap.Pace.WatchdogPeriod.Milliseconds(),
			Decays:   snap.Decays,
		},
		Edges: EdgesJSON{
			Total:   snap.Counts.Edges,
			Ticks:   snap.Counts.Ticks,
			Bounces: snap.Counts.Bounces,
			Ignored: snap.Counts.Ignored,
			Dropped: snap.Dropped,
		},
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Config: ConfigJSON{
			BeltLengthMM: snap.Config.BeltLengthMM,
			DebounceMs:   snap.Config.DebounceMs,
			SpeedUnit:    snap.Config.SpeedUnit,
			DistanceUnit: snap.Config.DistanceUnit,
			Pin:          snap.Config.Pin,
			HeartbeatMs:  snap.Config.HeartbeatMs,
			Broker:       snap.Config.Broker,
			HTTPAddr:     snap.Config.HTTPAddr,
			SerialPort:   snap.Config.SerialPort,
			HistoryPath:  snap.Config.HistoryPath,
			WSBroker:     snap.Config.WSBroker,
			TopicPrefix:  snap.Config.TopicPrefix,
		},
	}
	if !snap.Last.Timestamp.IsZero() {
		inner.Pace.LastUpdate = snap.Last.Timestamp.UTC().Format(time.RFC3339)
	}
	return inner
}

func buildNetwork(snap Snapshot, inner *StatusInner) {
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)
	buildNetwork(snap, &inner)

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	buildNetwork(snap, &inner)

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
