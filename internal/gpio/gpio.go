// Package gpio delivers optical sensor edges with hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

import "github.com/sweeney/treadmill-pod/internal/pace"

// EdgeSource delivers timestamped sensor edges.
type EdgeSource interface {
	// Edges returns the channel on which edges are delivered in the order
	// the hardware reported them.
	Edges() <-chan pace.Edge

	// Level reports whether the sensor currently sees the belt marker.
	// The raw line is active low: raw 0 = detected.
	Level() (bool, error)

	// Dropped returns how many edges were discarded because the channel
	// was full.
	Dropped() int

	// Close releases GPIO resources.
	Close() error
}

// Defaults for a Raspberry Pi with the sensor on BCM 17.
const (
	DefaultChip = "gpiochip0"
	DefaultPin  = 17

	// EdgeBuffer is the capacity of the edge channel.
	EdgeBuffer = 64
)
