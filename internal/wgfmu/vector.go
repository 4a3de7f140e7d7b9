package wgfmu

// MinDeltaTime replaces any non-positive step passed to Append so that a
// timeline never stalls or runs backwards.
const MinDeltaTime = 1e-8

// effectiveDelta returns dTime, or MinDeltaTime when dTime is not strictly
// positive. NaN is not positive.
func effectiveDelta(dTime float64) float64 {
	if !(dTime > 0) {
		return MinDeltaTime
	}
	return dTime
}

// Append adds one sample to the named timeline dTime after its current clock
// and advances the clock. The current is derived as voltage/2. It reports
// false, without error, when the pattern does not exist.
func (s *PatternStore) Append(name string, dTime, voltage float64) bool {
	tl, ok := s.patterns[name]
	if !ok {
		return false
	}

	tl.clock += effectiveDelta(dTime)
	current := voltage / 2
	tl.samples = append(tl.samples, Measurement{
		Voltage: voltage,
		Current: &current,
		Time:    tl.clock,
	})
	return true
}
