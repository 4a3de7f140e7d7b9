package wgfmu

// timeline is the state of one named pattern.
type timeline struct {
	initV   float64
	samples []Measurement
	clock   float64 // time of the last sample, 0 when empty
}

// PatternStore maps pattern names to their timelines. Iteration follows the
// order in which names were first created; re-creating a name resets its
// timeline but keeps its position.
//
// A PatternStore is not safe for concurrent use.
type PatternStore struct {
	patterns map[string]*timeline
	order    []string
}

// NewPatternStore returns an empty store.
func NewPatternStore() *PatternStore {
	return &PatternStore{patterns: make(map[string]*timeline)}
}

// Create resets (or creates) the timeline for name.
func (s *PatternStore) Create(name string, initV float64) {
	if _, ok := s.patterns[name]; !ok {
		s.order = append(s.order, name)
	}
	s.patterns[name] = &timeline{initV: initV}
}

// Clear discards every pattern.
func (s *PatternStore) Clear() {
	s.patterns = make(map[string]*timeline)
	s.order = nil
}

// Len returns the number of patterns.
func (s *PatternStore) Len() int {
	return len(s.order)
}

// names returns the pattern names in store order.
func (s *PatternStore) names() []string {
	return append([]string(nil), s.order...)
}

// has reports whether a pattern named name exists.
func (s *PatternStore) has(name string) bool {
	_, ok := s.patterns[name]
	return ok
}

// Samples returns a copy of the named timeline.
func (s *PatternStore) Samples(name string) ([]Measurement, bool) {
	tl, ok := s.patterns[name]
	if !ok {
		return nil, false
	}
	return copySamples(tl.samples), true
}

// Count returns the number of samples in the named timeline, 0 when the
// pattern does not exist.
func (s *PatternStore) Count(name string) int {
	if tl, ok := s.patterns[name]; ok {
		return len(tl.samples)
	}
	return 0
}

// Clock returns the cumulative elapsed time of the named timeline.
func (s *PatternStore) Clock(name string) (float64, bool) {
	tl, ok := s.patterns[name]
	if !ok {
		return 0, false
	}
	return tl.clock, true
}

// initialVoltage returns the voltage the pattern was created with.
func (s *PatternStore) initialVoltage(name string) (float64, bool) {
	tl, ok := s.patterns[name]
	if !ok {
		return 0, false
	}
	return tl.initV, true
}

// FirstWithMoreThan returns the name and a copy of the timeline of the first
// pattern, in store order, holding more than n samples.
func (s *PatternStore) FirstWithMoreThan(n int) (string, []Measurement, bool) {
	for _, name := range s.order {
		tl := s.patterns[name]
		if len(tl.samples) > n {
			return name, copySamples(tl.samples), true
		}
	}
	return "", nil, false
}

func copySamples(in []Measurement) []Measurement {
	out := make([]Measurement, len(in))
	for i, m := range in {
		out[i] = m.clone()
	}
	return out
}
