// Package status provides a thread-safe status tracker for the treadmill-pod daemon.
// The dispatch loop writes to it; HTTP handlers and MQTT lifecycle events read
// point-in-time snapshots.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/treadmill-pod/internal/pace"
)

// NetworkInfo contains network state written by pi-helper.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	BeltLengthMM uint32
	DebounceMs   uint32
	SpeedUnit    uint32
	DistanceUnit uint32
	Pin          int
	HeartbeatMs  int64
	Broker       string
	HTTPAddr     string
	SerialPort   string // empty = disabled
	HistoryPath  string // empty = disabled
	WSBroker     string // websocket broker for the live page; empty = no live updates
	TopicPrefix  string
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Pace          pace.State
	Last          pace.Telemetry
	Counts        pace.SourceCounts
	Dropped       int // edges lost to a full channel
	Decays        int
	Referenced    bool // a previous tick timestamp is held
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Moving reports whether the pod currently reports a non-zero speed.
func (s Snapshot) Moving() bool {
	return s.Pace.Speed > 0
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
	now  func() time.Time
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
		now: time.Now,
	}
}

// SetClock replaces the time source used to stamp snapshots.
func (t *Tracker) SetClock(now func() time.Time) {
	t.mu.Lock()
	t.now = now
	t.mu.Unlock()
}

// Update records the estimator state and edge counters.
// Called from the dispatch loop after every edge and every decay.
func (t *Tracker) Update(st pace.State, counts pace.SourceCounts, referenced bool, dropped int) {
	t.mu.Lock()
	t.snap.Pace = st
	t.snap.Counts = counts
	t.snap.Referenced = referenced
	t.snap.Dropped = dropped
	t.mu.Unlock()
}

// Record stores the most recent telemetry record.
func (t *Tracker) Record(tel pace.Telemetry) {
	t.mu.Lock()
	t.snap.Last = tel
	if tel.Event != pace.EventTick {
		t.snap.Decays++
	}
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	now := t.now
	t.mu.RUnlock()
	if s.Network != nil {
		n := *s.Network
		s.Network = &n
	}
	s.Now = now()
	return s
}
