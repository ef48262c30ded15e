package pace

import "time"

// Counter describes a fixed-width free-running timestamp counter.
type Counter struct {
	Bits uint   // width, 8-32
	Hz   uint32 // increments per second
}

// Mask returns the largest value the counter holds before wrapping.
func (c Counter) Mask() uint32 {
	if c.Bits >= 32 {
		return ^uint32(0)
	}
	return uint32(1)<<c.Bits - 1
}

// Diff returns the number of counter increments from prev to cur,
// accounting for at most one wrap.
func (c Counter) Diff(cur, prev uint32) uint32 {
	return (cur - prev) & c.Mask()
}

// Millis converts a number of counter increments to milliseconds, truncating.
func (c Counter) Millis(ticks uint32) uint32 {
	return uint32(uint64(ticks) * 1000 / uint64(c.Hz))
}

// FromDuration converts a monotonic timestamp into a counter value.
func (c Counter) FromDuration(d time.Duration) uint32 {
	if d < 0 {
		d = 0
	}
	// Split to keep the product inside 64 bits for long uptimes.
	sec := uint64(d / time.Second)
	frac := uint64(d % time.Second)
	ticks := sec*uint64(c.Hz) + frac*uint64(c.Hz)/uint64(time.Second)
	return uint32(ticks) & c.Mask()
}

// Period returns how long the counter takes to wrap.
func (c Counter) Period() time.Duration {
	return time.Duration(uint64(c.Mask())+1) * time.Second / time.Duration(c.Hz)
}
