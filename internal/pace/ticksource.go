package pace

// TickSource debounces raw sensor edges and measures the interval between
// accepted ticks.
type TickSource struct {
	counter    Counter
	debounceMs uint32
	last       uint32
	hasLast    bool
	counts     SourceCounts
}

// NewTickSource creates a TickSource with no previous tick.
func NewTickSource(cfg Config) *TickSource {
	return &TickSource{
		counter:    cfg.Counter,
		debounceMs: cfg.DebounceMs,
	}
}

// OnEdge classifies a raw edge. It returns a Tick only for a falling edge
// arriving at least the debounce interval after the previous accepted tick.
//
// The first falling edge after startup has nothing to measure against. It
// becomes the reference and produces no tick.
func (s *TickSource) OnEdge(e Edge) (Tick, bool) {
	s.counts.Edges++

	if e.Direction != DirectionFalling {
		s.counts.Ignored++
		return Tick{}, false
	}

	if !s.hasLast {
		s.last = e.Counter & s.counter.Mask()
		s.hasLast = true
		s.counts.Primed++
		return Tick{}, false
	}

	elapsed := s.counter.Millis(s.counter.Diff(e.Counter, s.last))
	if elapsed < s.debounceMs {
		// Contact bounce. The reference stays put so a burst of bounces
		// cannot creep the window forward.
		s.counts.Bounces++
		return Tick{}, false
	}

	s.last = e.Counter & s.counter.Mask()
	s.counts.Ticks++
	return Tick{RawTimestamp: s.last, ElapsedMs: elapsed}, true
}

// HasReference reports whether a previous tick timestamp is held.
func (s *TickSource) HasReference() bool {
	return s.hasLast
}

// Counts returns a copy of the edge classification counters.
func (s *TickSource) Counts() SourceCounts {
	return s.counts
}
