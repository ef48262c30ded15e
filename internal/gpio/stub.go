//go:build !linux

package gpio

import (
	"errors"

	"github.com/sweeney/treadmill-pod/internal/pace"
)

// RealEdgeSource is not available on non-Linux platforms.
type RealEdgeSource struct{}

// NewRealEdgeSource returns an error on non-Linux platforms.
func NewRealEdgeSource(chipName string, pin int, counter pace.Counter) (*RealEdgeSource, error) {
	return nil, errors.New("gpio: not supported on this platform (requires Linux)")
}

// Edges returns nil on non-Linux platforms.
func (s *RealEdgeSource) Edges() <-chan pace.Edge {
	return nil
}

// Level is not implemented on non-Linux platforms.
func (s *RealEdgeSource) Level() (bool, error) {
	return false, errors.New("gpio: not supported")
}

// Dropped always returns 0 on non-Linux platforms.
func (s *RealEdgeSource) Dropped() int {
	return 0
}

// Close is not implemented on non-Linux platforms.
func (s *RealEdgeSource) Close() error {
	return nil
}
