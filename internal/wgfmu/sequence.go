package wgfmu

// Replicate tiles the named timeline so that it holds count cycles in total.
// Each added cycle is a copy of the samples present at call time, shifted by
// the clock at the end of the previous cycle. A count of 0 or 1 leaves the
// timeline unchanged. It reports false when the pattern does not exist.
func (s *PatternStore) Replicate(name string, count int) bool {
	tl, ok := s.patterns[name]
	if !ok {
		return false
	}

	base := copySamples(tl.samples)
	cycle := tl.clock
	for rep := 1; rep < count; rep++ {
		offset := tl.clock
		for _, m := range base {
			shifted := m.clone()
			shifted.Time += offset
			tl.samples = append(tl.samples, shifted)
		}
		tl.clock += cycle
	}
	return true
}
