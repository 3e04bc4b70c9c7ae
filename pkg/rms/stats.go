package rms

import "math"

// RunningStats accumulates mean and variance in a single pass (Welford).
// No samples are retained. The zero value is an empty accumulator.
type RunningStats struct {
	count int
	mean  float64
	m2    float64 // Sum of squared deviations from the running mean
}

// Add folds x into the accumulator.
func (s *RunningStats) Add(x float64) {
	s.count++
	delta := x - s.mean
	s.mean += delta / float64(s.count)
	delta2 := x - s.mean
	s.m2 += delta * delta2
}

// Reset empties the accumulator for a new window.
func (s *RunningStats) Reset() {
	*s = RunningStats{}
}

// Count returns the number of samples added since the last Reset.
func (s *RunningStats) Count() int { return s.count }

// Mean returns the running mean.
func (s *RunningStats) Mean() float64 { return s.mean }

// Variance returns the population variance, or 0 with fewer than two samples.
func (s *RunningStats) Variance() float64 {
	if s.count <= 1 {
		return 0
	}
	return s.m2 / float64(s.count)
}

// StdDev returns the population standard deviation. For a sampled AC signal
// riding on a DC bias this is the RMS of the AC component.
func (s *RunningStats) StdDev() float64 {
	return math.Sqrt(s.Variance())
}
