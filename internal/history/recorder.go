package history

import (
	"time"

	"github.com/google/uuid"

	"github.com/sweeney/treadmill-pod/internal/pace"
)

// Recorder turns the telemetry stream into Runs. A run opens on a tick
// while no run is open and closes on the STOP record.
type Recorder struct {
	beltMM      uint32
	newID       func() uuid.UUID
	open        bool
	run         Run
	baseStrides uint32
}

// NewRecorder creates a Recorder for a belt of the given length.
func NewRecorder(beltMM uint32) *Recorder {
	return &Recorder{beltMM: beltMM, newID: uuid.New}
}

// Observe feeds one telemetry record. It returns the finished run when the
// record closes one.
func (r *Recorder) Observe(tel pace.Telemetry) (Run, bool) {
	switch tel.Event {
	case pace.EventTick:
		if !r.open {
			r.open = true
			// The opening tick is the first stride of the run.
			r.baseStrides = tel.StrideCount - 1
			r.run = Run{ID: r.newID(), Start: tel.Timestamp}
		}
		r.update(tel)
	case pace.EventDecay:
		if r.open {
			r.run.End = tel.Timestamp
		}
	case pace.EventStop:
		if r.open {
			r.run.End = tel.Timestamp
			return r.close(), true
		}
	}
	return Run{}, false
}

// Flush closes the open run at now, if any. Used at shutdown.
func (r *Recorder) Flush(now time.Time) (Run, bool) {
	if !r.open {
		return Run{}, false
	}
	r.run.End = now
	return r.close(), true
}

// Active returns the run in progress.
func (r *Recorder) Active() (Run, bool) {
	return r.run, r.open
}

func (r *Recorder) update(tel pace.Telemetry) {
	// Unsigned subtraction survives stride counter wrap.
	r.run.Strides = tel.StrideCount - r.baseStrides
	r.run.DistanceMM = uint64(r.run.Strides) * uint64(r.beltMM)
	r.run.End = tel.Timestamp
	if tel.Speed > r.run.PeakSpeed {
		r.run.PeakSpeed = tel.Speed
	}
}

func (r *Recorder) close() Run {
	done := r.run
	r.open = false
	r.run = Run{}
	return done
}
