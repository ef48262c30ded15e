//go:build linux

package gpio

import (
	"fmt"
	"sync/atomic"

	"github.com/warthog618/go-gpiocdev"

	"github.com/sweeney/treadmill-pod/internal/pace"
)

// RealEdgeSource watches a GPIO line through the Linux GPIO character device.
type RealEdgeSource struct {
	chip    *gpiocdev.Chip
	line    *gpiocdev.Line
	counter pace.Counter
	edges   chan pace.Edge
	dropped atomic.Int64
}

// NewRealEdgeSource requests pin on chipName as an input with pull-up and
// watches both edges. Kernel event timestamps are converted to values of
// counter so the debounce logic sees the same wrapping counter on every
// platform.
func NewRealEdgeSource(chipName string, pin int, counter pace.Counter) (*RealEdgeSource, error) {
	chip, err := gpiocdev.NewChip(chipName, gpiocdev.WithConsumer("treadmill-pod"))
	if err != nil {
		return nil, fmt.Errorf("open gpio chip %s: %w", chipName, err)
	}

	s := &RealEdgeSource{
		chip:    chip,
		counter: counter,
		edges:   make(chan pace.Edge, EdgeBuffer),
	}

	// The sensor output idles high and is pulled low on detection.
	line, err := chip.RequestLine(pin,
		gpiocdev.AsInput,
		gpiocdev.WithPullUp,
		gpiocdev.WithBothEdges,
		gpiocdev.WithEventHandler(s.handle),
	)
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request sensor pin %d: %w", pin, err)
	}
	s.line = line

	return s, nil
}

// handle runs on the gpiocdev watcher goroutine.
func (s *RealEdgeSource) handle(evt gpiocdev.LineEvent) {
	e := pace.Edge{
		Counter:   s.counter.FromDuration(evt.Timestamp),
		Direction: pace.DirectionRising,
	}
	if evt.Type == gpiocdev.LineEventFallingEdge {
		e.Direction = pace.DirectionFalling
	}

	select {
	case s.edges <- e:
	default:
		s.dropped.Add(1)
	}
}

// Edges returns the edge channel.
func (s *RealEdgeSource) Edges() <-chan pace.Edge {
	return s.edges
}

// Level reads the current line value. Raw 0 = marker detected.
func (s *RealEdgeSource) Level() (bool, error) {
	v, err := s.line.Value()
	if err != nil {
		return false, fmt.Errorf("read sensor pin: %w", err)
	}
	return v == 0, nil
}

// Dropped returns the number of edges lost to a full channel.
func (s *RealEdgeSource) Dropped() int {
	return int(s.dropped.Load())
}

// Close releases GPIO resources.
// Reconfigures the pin to input with pull-down (matching Pi boot defaults)
// before closing so external hardware cannot hold it in an odd state
// during early boot.
func (s *RealEdgeSource) Close() error {
	var errs []error

	if s.line != nil {
		if err := s.line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure sensor pin: %w", err))
		}
		if err := s.line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close sensor pin: %w", err))
		}
	}
	if s.chip != nil {
		if err := s.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
