package gpio

import (
	"errors"
	"sync"

	"github.com/sweeney/treadmill-pod/internal/pace"
)

// FakeEdgeSource is a test double fed with scripted edges.
type FakeEdgeSource struct {
	mu      sync.Mutex
	edges   chan pace.Edge
	dropped int

	// Detected is returned by Level.
	Detected bool

	// LevelError, if set, will be returned by Level.
	LevelError error

	// Closed tracks if Close was called.
	Closed bool
}

// NewFakeEdgeSource creates a FakeEdgeSource with a channel of the given
// capacity.
func NewFakeEdgeSource(capacity int) *FakeEdgeSource {
	return &FakeEdgeSource{edges: make(chan pace.Edge, capacity)}
}

// Push queues an edge. When the channel is full the edge is dropped and
// counted, as the real source does.
func (f *FakeEdgeSource) Push(e pace.Edge) bool {
	select {
	case f.edges <- e:
		return true
	default:
		f.mu.Lock()
		f.dropped++
		f.mu.Unlock()
		return false
	}
}

// Fall queues a falling edge at the given counter value.
func (f *FakeEdgeSource) Fall(counter uint32) bool {
	return f.Push(pace.Edge{Counter: counter, Direction: pace.DirectionFalling})
}

// Edges returns the edge channel.
func (f *FakeEdgeSource) Edges() <-chan pace.Edge {
	return f.edges
}

// Level returns the scripted level.
func (f *FakeEdgeSource) Level() (bool, error) {
	if f.LevelError != nil {
		return false, f.LevelError
	}
	return f.Detected, nil
}

// Dropped returns how many pushed edges did not fit.
func (f *FakeEdgeSource) Dropped() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dropped
}

// Close marks the source as closed. Closing twice is an error.
func (f *FakeEdgeSource) Close() error {
	if f.Closed {
		return errors.New("already closed")
	}
	f.Closed = true
	return nil
}
