package pace

import "time"

// Scheduler arms and cancels the decay watchdog.
type Scheduler interface {
	// Arm cancels any pending expiry and schedules repeating expiries
	// every period.
	Arm(period time.Duration)

	// Disarm cancels any pending expiry.
	Disarm()
}

// Estimator owns the pace State and converts tick intervals into speed,
// distance and stride count.
//
// OnTick and Decay must not run concurrently. The daemon calls both from a
// single dispatch loop.
type Estimator struct {
	cfg   Config
	sched Scheduler
	state State
}

// NewEstimator creates an Estimator with zeroed state and the watchdog
// disarmed.
func NewEstimator(cfg Config, sched Scheduler) *Estimator {
	return &Estimator{cfg: cfg, sched: sched}
}

// OnTick applies one accepted belt revolution measured elapsedMs after the
// previous one.
func (e *Estimator) OnTick(now time.Time, elapsedMs uint32) Telemetry {
	// Cancel first: a decay queued behind this tick must not overwrite
	// the speed computed below.
	e.disarm()

	e.state.DistanceAccumulator = uint32((uint64(e.state.DistanceAccumulator) + uint64(e.cfg.BeltLengthMM)) % uint64(e.cfg.RolloverModulus))
	e.state.StrideCount++

	speed := Rescale(e.cfg.BeltLengthMM, elapsedMs, e.cfg.SpeedUnit)
	if speed == 0 {
		// Only decay may report a stop.
		speed = 1
	}
	e.state.Speed = speed

	period := 2 * time.Duration(elapsedMs) * time.Millisecond
	e.sched.Arm(period)
	e.state.WatchdogArmed = true
	e.state.WatchdogPeriod = period

	return e.telemetry(now, EventTick)
}

// Decay halves the speed estimate. Once speed falls below the stop
// threshold it becomes zero and the watchdog is disarmed. Decay reports
// false, and changes nothing, when the watchdog is not armed.
func (e *Estimator) Decay(now time.Time) (Telemetry, bool) {
	if !e.state.WatchdogArmed {
		return Telemetry{}, false
	}

	e.state.Speed = Rescale(e.state.Speed, 2, 1)

	event := EventDecay
	if e.state.Speed < e.cfg.StopThreshold() {
		e.state.Speed = 0
		e.disarm()
		event = EventStop
	}

	return e.telemetry(now, event), true
}

// State returns a copy of the current state.
func (e *Estimator) State() State {
	return e.state
}

// Config returns the constants the estimator was built with.
func (e *Estimator) Config() Config {
	return e.cfg
}

// DistanceReported converts the accumulator to device distance units.
func (e *Estimator) DistanceReported() uint32 {
	return Rescale(e.state.DistanceAccumulator, 1000, e.cfg.DistanceUnit)
}

func (e *Estimator) disarm() {
	e.sched.Disarm()
	e.state.WatchdogArmed = false
	e.state.WatchdogPeriod = 0
}

func (e *Estimator) telemetry(now time.Time, event EventType) Telemetry {
	return Telemetry{
		Timestamp:   now,
		Event:       event,
		Speed:       e.state.Speed,
		Distance:    e.DistanceReported(),
		StrideCount: e.state.StrideCount,
	}
}

// Rescale returns round(numerator * unit / denominator), rounding halves
// up. All speed and distance unit conversions go through it. A zero
// denominator yields zero.
func Rescale(numerator, denominator, unit uint32) uint32 {
	if denominator == 0 {
		return 0
	}
	d := uint64(denominator)
	return uint32((uint64(numerator)*uint64(unit) + d/2) / d)
}
