package pace

import (
	"time"

	"github.com/sweeney/treadmill-pod/internal/timeutil"
)

// WatchdogState is the arming state of the decay watchdog.
type WatchdogState string

const (
	WatchdogDisarmed WatchdogState = "DISARMED"
	WatchdogArmed    WatchdogState = "ARMED"
)

// Watchdog is a self-rearming timer that asks for a decay when no tick has
// arrived for a full period. It implements Scheduler.
//
// The owner selects on C and calls Expire for every value received. Expire
// filters expiries that were already queued when the watchdog was re-armed
// or disarmed.
type Watchdog struct {
	clock  timeutil.Clock
	timer  timeutil.Timer
	period time.Duration
	armed  bool
	fires  int
}

// NewWatchdog creates a disarmed watchdog.
func NewWatchdog(clock timeutil.Clock) *Watchdog {
	return &Watchdog{clock: clock}
}

// Arm cancels the current cycle and starts a new one with the given period.
func (w *Watchdog) Arm(period time.Duration) {
	w.stop()
	w.period = period
	w.armed = true
	if w.timer == nil {
		w.timer = w.clock.NewTimer(period)
		return
	}
	w.timer.Reset(period)
}

// Disarm cancels the current cycle.
func (w *Watchdog) Disarm() {
	w.stop()
	w.armed = false
	w.period = 0
}

// C returns the expiry channel. It is nil, and so never ready, before the
// first Arm.
func (w *Watchdog) C() <-chan time.Time {
	if w.timer == nil {
		return nil
	}
	return w.timer.C()
}

// Expire handles a value received from C. It reports whether a decay is
// due, and if so schedules the next cycle with the same period.
func (w *Watchdog) Expire() bool {
	if !w.armed {
		return false
	}
	w.fires++
	w.timer.Reset(w.period)
	return true
}

// State returns Armed or Disarmed.
func (w *Watchdog) State() WatchdogState {
	if w.armed {
		return WatchdogArmed
	}
	return WatchdogDisarmed
}

// Period returns the current cycle length, zero when disarmed.
func (w *Watchdog) Period() time.Duration {
	return w.period
}

// Fires returns how many expiries have requested a decay.
func (w *Watchdog) Fires() int {
	return w.fires
}

func (w *Watchdog) stop() {
	if w.timer == nil {
		return
	}
	if !w.timer.Stop() {
		// Drop an expiry that fired but was never received.
		select {
		case <-w.timer.C():
		default:
		}
	}
}
