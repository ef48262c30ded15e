// Package pace contains the pace estimation core for the treadmill pod:
// debounced tick timestamping, speed and distance computation, and the
// watchdog that decays speed when ticks stop arriving.
// This package has NO external dependencies (no GPIO, MQTT, OS, or time.Sleep).
// Time enters only through edge counter values, explicit time.Time
// parameters and the timeutil.Clock handed to the Watchdog.
package pace

import (
	"errors"
	"fmt"
	"time"
)

// Direction is the transition direction of a sensor edge.
type Direction int

const (
	DirectionRising Direction = iota + 1
	DirectionFalling
)

func (d Direction) String() string {
	switch d {
	case DirectionRising:
		return "RISING"
	case DirectionFalling:
		return "FALLING"
	}
	return "UNKNOWN"
}

// Edge is a raw transition reported by the optical sensor input.
// The sensor reads high when nothing is detected and low on detection,
// so only falling edges mark a belt revolution.
type Edge struct {
	Counter   uint32 // wrapping hardware timestamp, see Counter
	Direction Direction
}

// Tick is a validated, debounced belt-revolution detection.
type Tick struct {
	RawTimestamp uint32
	ElapsedMs    uint32
}

// EventType identifies what produced a telemetry record.
type EventType string

const (
	EventTick  EventType = "TICK"
	EventDecay EventType = "DECAY"
	EventStop  EventType = "STOP"
)

// Telemetry is the record pushed to telemetry sinks after every tick and
// every decay.
type Telemetry struct {
	Timestamp   time.Time
	Event       EventType
	Speed       uint32 // device speed units
	Distance    uint32 // device distance units
	StrideCount uint32
}

// State is the estimator's view of the runner. It starts zeroed and is only
// mutated by Estimator.OnTick and Estimator.Decay.
type State struct {
	DistanceAccumulator uint32 // millimeters, always < RolloverModulus
	StrideCount         uint32
	Speed               uint32
	WatchdogArmed       bool
	WatchdogPeriod      time.Duration
}

// SourceCounts tracks how raw edges were classified since startup.
type SourceCounts struct {
	Edges   int // every edge seen
	Ignored int // wrong direction
	Bounces int // falling edges inside the debounce window
	Primed  int // first falling edge, used only as a reference
	Ticks   int
}

// Defaults describe the stock treadmill accessory: a 3162mm belt, ANT+ SDM
// units of 1/256 m/s and 1/16 m, and a 24-bit RTC counter at 32768Hz.
const (
	DefaultBeltLengthMM    = 3162
	DefaultRolloverModulus = 0x3E800 // 256 * 1000 mm
	DefaultDebounceMs      = 300
	DefaultSpeedUnit       = 256
	DefaultDistanceUnit    = 16
	DefaultCounterBits     = 24
	DefaultCounterHz       = 32768

	// MaxBeltLengthMM is the largest belt length the reporting path accepts.
	MaxBeltLengthMM = 0xFFFF

	// MinSpeedUnit keeps StopThreshold at 2 or more. Halving with rounding
	// leaves a speed of 1 at 1, so decay only ends if 1 is below the
	// threshold.
	MinSpeedUnit = 8
)

// Config holds the constants of the pace core. It is fixed once the
// estimator is built.
type Config struct {
	BeltLengthMM    uint32
	RolloverModulus uint32
	DebounceMs      uint32
	SpeedUnit       uint32
	DistanceUnit    uint32
	Counter         Counter
}

// DefaultConfig returns the stock accessory configuration.
func DefaultConfig() Config {
	return Config{
		BeltLengthMM:    DefaultBeltLengthMM,
		RolloverModulus: DefaultRolloverModulus,
		DebounceMs:      DefaultDebounceMs,
		SpeedUnit:       DefaultSpeedUnit,
		DistanceUnit:    DefaultDistanceUnit,
		Counter:         Counter{Bits: DefaultCounterBits, Hz: DefaultCounterHz},
	}
}

// StopThreshold is the speed below which decay snaps to zero (a quarter of
// one m/s in device units).
func (c Config) StopThreshold() uint32 {
	return c.SpeedUnit / 4
}

// Validate reports the first inconsistent constant.
func (c Config) Validate() error {
	if c.BeltLengthMM < 1 || c.BeltLengthMM > MaxBeltLengthMM {
		return fmt.Errorf("belt length %dmm out of range 1-%d", c.BeltLengthMM, MaxBeltLengthMM)
	}
	if c.RolloverModulus <= c.BeltLengthMM {
		return fmt.Errorf("rollover modulus %d must exceed belt length %d", c.RolloverModulus, c.BeltLengthMM)
	}
	if c.DebounceMs == 0 {
		return errors.New("debounce must be at least 1ms")
	}
	if c.SpeedUnit < MinSpeedUnit {
		return fmt.Errorf("speed unit %d below minimum %d", c.SpeedUnit, MinSpeedUnit)
	}
	if c.DistanceUnit == 0 {
		return errors.New("distance unit must be non-zero")
	}
	if c.Counter.Bits < 8 || c.Counter.Bits > 32 {
		return fmt.Errorf("counter width %d bits out of range 8-32", c.Counter.Bits)
	}
	if c.Counter.Hz == 0 {
		return errors.New("counter frequency must be non-zero")
	}
	return nil
}
